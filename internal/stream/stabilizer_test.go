package stream

import (
	"testing"
	"time"
)

func TestParseWidthLadderDefaultsWhenEmpty(t *testing.T) {
	got := ParseWidthLadder("", []int{640, 1280})
	if len(got) != 2 || got[0] != 1280 || got[1] != 640 {
		t.Fatalf("unexpected ladder: %v", got)
	}
}

func TestParseWidthLadderDedupesAndSorts(t *testing.T) {
	got := ParseWidthLadder("640,1280,640,960", nil)
	want := []int{1280, 960, 640}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestWidthStabilizerSnapsToLadder(t *testing.T) {
	s := NewWidthStabilizer([]int{1920, 1280, 960, 640}, 8*time.Second, 0.18, 0, true)
	now := time.Now()
	if got := s.Decide("a", 1400, now); got != 1280 {
		t.Fatalf("expected snap to 1280, got %d", got)
	}
}

func TestWidthStabilizerSuppressesMicroJitter(t *testing.T) {
	s := NewWidthStabilizer([]int{1920, 1600, 1280, 960, 768, 640}, 8*time.Second, 0.18, 0, true)
	now := time.Now()
	first := s.Decide("tok", 1920, now)
	if first != 1920 {
		t.Fatalf("expected 1920, got %d", first)
	}
	second := s.Decide("tok", 1600, now.Add(1*time.Second))
	if second != first {
		t.Fatalf("expected hysteresis to hold at %d, got %d", first, second)
	}
}

func TestWidthStabilizerAllowsMajorJumpDuringCooldown(t *testing.T) {
	s := NewWidthStabilizer([]int{1920, 1280, 960, 640}, 8*time.Second, 0.18, 0, true)
	now := time.Now()
	s.Decide("tok", 1920, now)
	got := s.Decide("tok", 640, now.Add(1*time.Second))
	if got != 640 {
		t.Fatalf("expected major drop to bypass cooldown, got %d", got)
	}
}

func TestWidthStabilizerHonorsMinSwitchForModerateChange(t *testing.T) {
	s := NewWidthStabilizer([]int{1920, 1280, 960, 640}, 8*time.Second, 0.18, 0, true)
	now := time.Now()
	s.Decide("tok", 1280, now)
	got := s.Decide("tok", 960, now.Add(1*time.Second))
	if got != 1280 {
		t.Fatalf("expected cooldown to hold moderate change, got %d", got)
	}
}

func TestWidthStabilizerDisabledPassesThroughSnap(t *testing.T) {
	s := NewWidthStabilizer([]int{1920, 1280, 960, 640}, 8*time.Second, 0.18, 0, false)
	now := time.Now()
	s.Decide("tok", 1920, now)
	got := s.Decide("tok", 1000, now.Add(time.Millisecond))
	if got != 960 {
		t.Fatalf("expected disabled stabilizer to always snap fresh, got %d", got)
	}
}
