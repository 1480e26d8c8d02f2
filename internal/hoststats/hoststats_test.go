package hoststats

import "testing"

func TestReadReturnsNonNegativeValues(t *testing.T) {
	snap := Read()
	if snap.CPU < 0 || snap.RAM < 0 {
		t.Fatalf("expected non-negative CPU/RAM, got %+v", snap)
	}
	if snap.RAM > 100 {
		t.Fatalf("expected RAM percentage within 0-100, got %v", snap.RAM)
	}
}
