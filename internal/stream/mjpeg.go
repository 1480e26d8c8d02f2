package stream

import (
	"fmt"
	"net/http"
	"time"
)

// FrameSource produces JPEG frames for the MJPEG streamer. GetJPEG
// returns nil when no fresh frame is available yet (the streamer then
// falls back to re-emitting the last frame as a keepalive).
type FrameSource interface {
	GetJPEG(width, quality int, cursor bool, monitor int) ([]byte, error)
}

var mjpegBoundary = []byte("--frame\r\nContent-Type: image/jpeg\r\n\r\n")

// StreamParams are the per-request knobs negotiated from query string
// and stabilizer output.
type StreamParams struct {
	Width        int
	Quality      int
	FPS          int
	Cursor       bool
	Monitor      int
	StaleKeepalive time.Duration
}

// WriteMultipart drains src at roughly FPS frames/sec into w as a
// multipart/x-mixed-replace stream, re-sending the last good frame as a
// keepalive when the source goes quiet for StaleKeepalive, until stop is
// closed (client disconnect) or an unrecoverable write error occurs.
func WriteMultipart(w http.ResponseWriter, flusher http.Flusher, stop <-chan struct{}, src FrameSource, p StreamParams) error {
	fps := p.FPS
	if fps < 5 {
		fps = 5
	}
	minDt := time.Second / time.Duration(fps)
	staleKeepalive := p.StaleKeepalive
	if staleKeepalive <= 0 {
		staleKeepalive = 3 * time.Second
	}

	var lastFrame []byte
	var lastEmit time.Time

	for {
		select {
		case <-stop:
			return nil
		default:
		}

		t0 := time.Now()
		frame, err := src.GetJPEG(p.Width, p.Quality, p.Cursor, p.Monitor)
		if err == nil && len(frame) > 0 {
			if werr := writeFrame(w, frame); werr != nil {
				return werr
			}
			flusher.Flush()
			lastFrame = frame
			lastEmit = time.Now()
		} else if len(lastFrame) > 0 && time.Since(lastEmit) >= staleKeepalive {
			if werr := writeFrame(w, lastFrame); werr != nil {
				return werr
			}
			flusher.Flush()
			lastEmit = time.Now()
		}

		elapsed := time.Since(t0)
		if elapsed < minDt {
			select {
			case <-stop:
				return nil
			case <-time.After(minDt - elapsed):
			}
		}
	}
}

func writeFrame(w http.ResponseWriter, frame []byte) error {
	if _, err := w.Write(mjpegBoundary); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	if _, err := w.Write([]byte("\r\n")); err != nil {
		return err
	}
	return nil
}

// ContentType is the header value clients must see for a multipart MJPEG
// response.
const ContentType = "multipart/x-mixed-replace; boundary=frame"

// LowLatencyBitrateCapKbps estimates a conservative bitrate ceiling (kbps)
// for an h264/h265 low-latency transport at the given width/fps, scaled
// down for h265's better compression efficiency.
func LowLatencyBitrateCapKbps(maxWidth, fps int, codec string) int {
	if maxWidth < 320 {
		maxWidth = 320
	}
	if fps < 10 {
		fps = 10
	}
	base := 4200.0 * (float64(maxWidth) / 1280.0) * (float64(fps) / 30.0)
	if codec == "h265" {
		base *= 0.72
	}
	cap := int(base + 0.5)
	if cap < 1200 {
		return 1200
	}
	if cap > 18000 {
		return 18000
	}
	return cap
}

// ErrNoFrame is a sentinel FrameSource implementations can return to mean
// "not ready yet" without it being treated as a hard failure.
var ErrNoFrame = fmt.Errorf("stream: no frame available")
