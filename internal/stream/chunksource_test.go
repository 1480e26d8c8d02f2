package stream

import (
	"bytes"
	"testing"
)

func TestScanLatestJPEGFrameReturnsLastCompleteFrame(t *testing.T) {
	frame1 := []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}
	frame2 := []byte{0xFF, 0xD8, 0x03, 0xFF, 0xD9}
	buf := append(append([]byte{}, frame1...), frame2...)

	frame, rest, ok := scanLatestJPEGFrame(buf)
	if !ok {
		t.Fatalf("expected a frame to be found")
	}
	if !bytes.Equal(frame, frame2) {
		t.Fatalf("got %v want %v", frame, frame2)
	}
	if len(rest) != 0 {
		t.Fatalf("expected no trailing bytes, got %v", rest)
	}
}

func TestScanLatestJPEGFrameKeepsPartialTail(t *testing.T) {
	frame := []byte{0xFF, 0xD8, 0x01, 0xFF, 0xD9}
	partial := []byte{0xFF, 0xD8, 0x02}
	buf := append(append([]byte{}, frame...), partial...)

	got, rest, ok := scanLatestJPEGFrame(buf)
	if !ok {
		t.Fatalf("expected a frame to be found")
	}
	if !bytes.Equal(got, frame) {
		t.Fatalf("got %v want %v", got, frame)
	}
	if !bytes.Equal(rest, partial) {
		t.Fatalf("expected partial tail preserved, got %v", rest)
	}
}

func TestScanLatestJPEGFrameNoEOIFound(t *testing.T) {
	_, rest, ok := scanLatestJPEGFrame([]byte{0xFF, 0xD8, 0x01})
	if ok {
		t.Fatalf("expected no frame without an EOI marker")
	}
	if len(rest) != 3 {
		t.Fatalf("expected buf returned unchanged, got %v", rest)
	}
}

func TestChunkJPEGSourceDrainsChannelAndReturnsLatestFrame(t *testing.T) {
	ch := make(chan []byte, 4)
	src := NewChunkJPEGSource(ch)

	ch <- []byte{0xFF, 0xD8, 0x01, 0xFF, 0xD9}
	ch <- []byte{0xFF, 0xD8, 0x02, 0xFF, 0xD9}

	frame, err := src.GetJPEG(0, 0, false, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []byte{0xFF, 0xD8, 0x02, 0xFF, 0xD9}
	if !bytes.Equal(frame, want) {
		t.Fatalf("got %v want %v", frame, want)
	}
}

func TestChunkJPEGSourceReturnsErrNoFrameWhenEmpty(t *testing.T) {
	ch := make(chan []byte)
	src := NewChunkJPEGSource(ch)
	if _, err := src.GetJPEG(0, 0, false, 0); err != ErrNoFrame {
		t.Fatalf("expected ErrNoFrame, got %v", err)
	}
}
