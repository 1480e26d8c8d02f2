package stream

import (
	"testing"

	"github.com/overl1te/cyberdeck/internal/capture"
)

func TestMaxInt(t *testing.T) {
	if got := maxInt(3, 5); got != 5 {
		t.Fatalf("got %d want 5", got)
	}
	if got := maxInt(5, 3); got != 5 {
		t.Fatalf("got %d want 5", got)
	}
}

func TestScreenshotSourceDelegatesToBackendGrab(t *testing.T) {
	backend := capture.NewScreenshotBackend(1.0)
	src := &screenshotSource{backend: backend}

	// Grab() is expected to fail in a sandboxed test environment with no
	// screenshot tool installed; the point is that screenshotSource calls
	// through to it rather than silently returning a fixed value.
	_, err := src.GetJPEG(0, 0, false, 0)
	if err == nil {
		t.Skip("screenshot tool available in this environment, nothing to assert")
	}
}

func TestOpenMJPEGReturnsErrorWhenNoBackendAvailable(t *testing.T) {
	neg := NewNegotiator(nil, func() bool { return false })
	caps := capture.NewManager()

	_, err := OpenMJPEG(nil, neg, caps, nil, "auto", 1280, 15)
	if err == nil {
		t.Fatalf("expected an error when no capture backend is available")
	}
}
