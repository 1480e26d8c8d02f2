package stream

import (
	"context"
	"fmt"

	"github.com/overl1te/cyberdeck/internal/capture"
	"github.com/overl1te/cyberdeck/internal/supervisor"
)

// Session is an open MJPEG source plus the teardown function the caller
// must run when the client disconnects.
type Session struct {
	Source  FrameSource
	Backend string
	Close   func()
}

// OpenMJPEG negotiates a backend order and opens the first one that
// produces usable frames: native grabs are adapted in-process,
// ffmpeg/gstreamer run under the supervisor with a JPEGGate, and the
// screenshot backend is started directly without the supervisor.
func OpenMJPEG(ctx context.Context, neg *Negotiator, caps *capture.Manager, sv *supervisor.Supervisor, preferred string, width, fps int) (*Session, error) {
	order := neg.Order(preferred, caps.Availability())
	if len(order) == 0 {
		return nil, fmt.Errorf("stream: no capture backend available")
	}

	var lastErr error
	for _, name := range order {
		switch name {
		case BackendNative:
			native := caps.Native()
			if native == nil {
				lastErr = fmt.Errorf("native backend not registered")
				continue
			}
			return &Session{Source: NewNativeJPEGSource(native), Backend: name, Close: func() {}}, nil
		case BackendFFmpeg:
			args := capture.NewFFmpegBackend("", width, fps).Args()
			s, err := sv.Supervise(ctx, []supervisor.Candidate{{Name: name, Args: args, Gate: supervisor.JPEGGate{}}})
			if err != nil {
				lastErr = err
				continue
			}
			return &Session{Source: NewChunkJPEGSource(s.Chunks), Backend: name, Close: s.Stop}, nil
		case BackendGstreamer:
			args := capture.NewGstreamerBackend(width, fps).Args()
			s, err := sv.Supervise(ctx, []supervisor.Candidate{{Name: name, Args: args, Gate: supervisor.JPEGGate{}}})
			if err != nil {
				lastErr = err
				continue
			}
			return &Session{Source: NewChunkJPEGSource(s.Chunks), Backend: name, Close: s.Stop}, nil
		case BackendScreenshot:
			sb := capture.NewScreenshotBackend(1.0 / float64(maxInt(fps, 1)))
			if err := sb.Start(); err != nil {
				lastErr = err
				continue
			}
			return &Session{Source: &screenshotSource{backend: sb}, Backend: name, Close: sb.Stop}, nil
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("stream: no candidate backend produced a usable stream")
	}
	return nil, lastErr
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// screenshotSource adapts the screenshot-tool backend's one-shot Grab
// into the FrameSource interface: each GetJPEG call runs the tool once,
// so the caller's polling rate sets the capture cadence.
type screenshotSource struct {
	backend *capture.ScreenshotBackend
}

func (s *screenshotSource) GetJPEG(width, quality int, cursor bool, monitor int) ([]byte, error) {
	return s.backend.Grab()
}
