package pinlimit

import (
	"testing"
	"time"
)

func TestCheckAllowsUntilThreshold(t *testing.T) {
	l := New(Config{WindowS: 60, MaxFails: 2, BlockS: 300, StaleS: 7200, MaxIPs: 10})
	now := time.Now()

	allowed, _ := l.Check("1.2.3.4", now)
	if !allowed {
		t.Fatalf("expected allowed on first check")
	}
	l.RecordFailure("1.2.3.4", now)
	l.RecordFailure("1.2.3.4", now)

	allowed, retry := l.Check("1.2.3.4", now)
	if allowed {
		t.Fatalf("expected blocked after reaching max fails")
	}
	if retry != 300 {
		t.Fatalf("expected retry_after=300, got %d", retry)
	}
}

func TestRecordSuccessClearsState(t *testing.T) {
	l := New(Config{WindowS: 60, MaxFails: 2, BlockS: 300, StaleS: 7200, MaxIPs: 10})
	now := time.Now()
	l.RecordFailure("1.1.1.1", now)
	l.RecordSuccess("1.1.1.1")
	allowed, _ := l.Check("1.1.1.1", now)
	if !allowed {
		t.Fatalf("expected allowed after success resets state")
	}
}

func TestWindowExpiryResetsFails(t *testing.T) {
	l := New(Config{WindowS: 10, MaxFails: 2, BlockS: 300, StaleS: 7200, MaxIPs: 10})
	now := time.Now()
	l.RecordFailure("2.2.2.2", now)
	later := now.Add(20 * time.Second)
	allowed, _ := l.Check("2.2.2.2", later)
	if !allowed {
		t.Fatalf("expected allowed after window expiry")
	}
}

func TestMaxIPsCompaction(t *testing.T) {
	l := New(Config{WindowS: 60, MaxFails: 8, BlockS: 300, StaleS: 7200, MaxIPs: 2})
	now := time.Now()
	l.RecordFailure("a", now)
	l.RecordFailure("b", now.Add(time.Second))
	l.RecordFailure("c", now.Add(2*time.Second))
	if len(l.byIP) > 2 {
		t.Fatalf("expected compaction to cap at 2 entries, got %d", len(l.byIP))
	}
	if _, ok := l.byIP["a"]; ok {
		t.Fatalf("expected oldest entry 'a' evicted by LRU compaction")
	}
}
