package stream

import "testing"

func TestBgraToImageConvertsChannelsToRGBA(t *testing.T) {
	// single BGRA pixel: blue=10, green=20, red=30, alpha=255
	data := []byte{10, 20, 30, 255}
	img := bgraToImage(data, 1, 1, 4)

	r, g, b, a := img.At(0, 0).RGBA()
	if r>>8 != 30 || g>>8 != 20 || b>>8 != 10 || a>>8 != 255 {
		t.Fatalf("got r=%d g=%d b=%d a=%d, want r=30 g=20 b=10 a=255", r>>8, g>>8, b>>8, a>>8)
	}
}

func TestNearestScalePreservesAspectRatio(t *testing.T) {
	data := make([]byte, 4*4*2) // 4x2 image, BGRA
	img := bgraToImage(data, 4, 2, 16)

	scaled := nearestScale(img, 2)
	bounds := scaled.Bounds()
	if bounds.Dx() != 2 || bounds.Dy() != 1 {
		t.Fatalf("expected 2x1 scaled image, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestNearestScaleHandlesZeroWidthSource(t *testing.T) {
	img := bgraToImage(nil, 0, 0, 0)
	scaled := nearestScale(img, 10)
	if scaled.Bounds().Dx() != 0 {
		t.Fatalf("expected zero-width source returned unchanged, got %v", scaled.Bounds())
	}
}
