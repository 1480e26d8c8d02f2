package pairing

import (
	"testing"
	"time"
)

func TestQRStoreOneShotConsumption(t *testing.T) {
	q := NewQRStore(2 * time.Second)
	now := time.Now()
	tok := q.Issue(now)

	if !q.Consume(tok, now) {
		t.Fatalf("expected first consume to succeed")
	}
	if q.Consume(tok, now) {
		t.Fatalf("expected second consume of same token to fail")
	}
}

func TestQRStoreExpiry(t *testing.T) {
	q := NewQRStore(time.Second)
	now := time.Now()
	tok := q.Issue(now)

	later := now.Add(5 * time.Second)
	if q.Consume(tok, later) {
		t.Fatalf("expected expired token to fail consumption")
	}
}
