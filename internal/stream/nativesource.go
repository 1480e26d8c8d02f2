package stream

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/overl1te/cyberdeck/internal/capture"
)

// NativeJPEGSource adapts capture.NativeBackend's raw BGRA grabs into the
// FrameSource interface the MJPEG writer expects, downscaling with a
// simple nearest-neighbor sampler and re-encoding through image/jpeg.
type NativeJPEGSource struct {
	backend *capture.NativeBackend
}

// NewNativeJPEGSource wraps an already-started native backend.
func NewNativeJPEGSource(backend *capture.NativeBackend) *NativeJPEGSource {
	return &NativeJPEGSource{backend: backend}
}

// GetJPEG grabs the latest frame and encodes it as a JPEG at the
// requested width (0 keeps the native resolution) and quality.
func (s *NativeJPEGSource) GetJPEG(width, quality int, cursor bool, monitor int) ([]byte, error) {
	frame, err := s.backend.Grab()
	if err != nil {
		return nil, err
	}
	img := bgraToImage(frame.Data, frame.Width, frame.Height, frame.Stride)
	if width > 0 && width < frame.Width {
		img = nearestScale(img, width)
	}
	if quality <= 0 {
		quality = 80
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("native jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}

func bgraToImage(data []byte, width, height, stride int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		srcRow := data[y*stride : y*stride+width*4]
		dstRow := img.Pix[y*img.Stride : y*img.Stride+width*4]
		for x := 0; x < width; x++ {
			b := srcRow[x*4+0]
			g := srcRow[x*4+1]
			r := srcRow[x*4+2]
			a := srcRow[x*4+3]
			dstRow[x*4+0] = r
			dstRow[x*4+1] = g
			dstRow[x*4+2] = b
			dstRow[x*4+3] = a
		}
	}
	return img
}

func nearestScale(src *image.RGBA, targetWidth int) *image.RGBA {
	bounds := src.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW == 0 {
		return src
	}
	targetHeight := srcH * targetWidth / srcW
	if targetHeight < 1 {
		targetHeight = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))
	for y := 0; y < targetHeight; y++ {
		sy := y * srcH / targetHeight
		for x := 0; x < targetWidth; x++ {
			sx := x * srcW / targetWidth
			dst.Set(x, y, src.At(sx, sy))
		}
	}
	return dst
}
