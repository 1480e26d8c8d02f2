package stream

import (
	"bytes"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeSource struct {
	frame []byte
	calls int
}

func (f *fakeSource) GetJPEG(width, quality int, cursor bool, monitor int) ([]byte, error) {
	f.calls++
	if f.calls > 3 {
		return nil, nil
	}
	return f.frame, nil
}

func TestWriteMultipartEmitsFramesThenStops(t *testing.T) {
	rec := httptest.NewRecorder()
	src := &fakeSource{frame: []byte{0xFF, 0xD8, 1, 2, 0xFF, 0xD9}}
	stop := make(chan struct{})
	go func() {
		time.Sleep(40 * time.Millisecond)
		close(stop)
	}()

	err := WriteMultipart(rec, rec, stop, src, StreamParams{Width: 640, Quality: 60, FPS: 30})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("Content-Type: image/jpeg")) {
		t.Fatalf("expected multipart boundary header in output")
	}
	if !bytes.Contains(rec.Body.Bytes(), src.frame) {
		t.Fatalf("expected frame bytes in output")
	}
}

func TestLowLatencyBitrateCapClampsToBounds(t *testing.T) {
	if got := LowLatencyBitrateCapKbps(100, 1, "h264"); got != 1200 {
		t.Fatalf("expected floor of 1200, got %d", got)
	}
	if got := LowLatencyBitrateCapKbps(4000, 60, "h264"); got != 18000 {
		t.Fatalf("expected ceiling of 18000, got %d", got)
	}
}

func TestLowLatencyBitrateCapH265Discount(t *testing.T) {
	h264 := LowLatencyBitrateCapKbps(1280, 30, "h264")
	h265 := LowLatencyBitrateCapKbps(1280, 30, "h265")
	if h265 >= h264 {
		t.Fatalf("expected h265 cap (%d) below h264 cap (%d)", h265, h264)
	}
}
