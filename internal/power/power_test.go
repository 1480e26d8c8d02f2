package power

import (
	"testing"
	"time"
)

func TestNewClampsTimeoutBounds(t *testing.T) {
	r := New(Config{CommandTimeout: 0})
	if r.timeout != 200*time.Millisecond {
		t.Fatalf("expected floor clamp, got %v", r.timeout)
	}
	r = New(Config{CommandTimeout: time.Minute})
	if r.timeout != 30*time.Second {
		t.Fatalf("expected ceiling clamp, got %v", r.timeout)
	}
}

func TestActionUnknownNameErrors(t *testing.T) {
	r := New(Config{CommandTimeout: time.Second})
	if err := r.Action("teleport"); err == nil {
		t.Fatalf("expected error for unknown action")
	}
}

func TestRunFirstOKReturnsFalseWhenAllCommandsMissing(t *testing.T) {
	r := New(Config{CommandTimeout: 500 * time.Millisecond})
	ok := r.runFirstOK([][]string{{"cyberdeck-definitely-not-a-real-binary"}})
	if ok {
		t.Fatalf("expected false for nonexistent binary")
	}
}
