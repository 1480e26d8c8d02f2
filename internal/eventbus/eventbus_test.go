package eventbus

import "testing"

func TestListAfterReturnsOnlyNewer(t *testing.T) {
	b := New()
	id1 := b.Emit("a", "", "", nil)
	id2 := b.Emit("b", "", "", nil)
	id3 := b.Emit("c", "", "", nil)

	events, latest := b.ListAfter(id1, 10)
	if len(events) != 2 || events[0].ID != id2 || events[1].ID != id3 {
		t.Fatalf("unexpected events: %+v", events)
	}
	if latest != id3 {
		t.Fatalf("expected latest=%d, got %d", id3, latest)
	}
}

func TestRingBufferCap(t *testing.T) {
	b := New()
	for i := 0; i < maxEvents+50; i++ {
		b.Emit("x", "", "", nil)
	}
	if len(b.events) != maxEvents {
		t.Fatalf("expected ring buffer capped at %d, got %d", maxEvents, len(b.events))
	}
}
