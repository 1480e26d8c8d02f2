package capture

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// ScreenshotBackend is the last-resort capture path: each Grab shells
// out once to a one-shot screenshot tool (grim on wlroots, spectacle or
// gnome-screenshot elsewhere), rather than holding a long-lived
// subprocess open like the ffmpeg/gstreamer backends.
type ScreenshotBackend struct {
	intervalS float64
	tool      string

	mu      sync.Mutex
	stop     chan struct{}
	grabs   int64
	fails   int64
	running bool
}

// NewScreenshotBackend builds a screenshot backend using the first
// available tool. intervalS is stored on the backend but not used for
// pacing: a capture happens only when Grab is called.
func NewScreenshotBackend(intervalS float64) *ScreenshotBackend {
	if intervalS <= 0 {
		intervalS = 1
	}
	return &ScreenshotBackend{intervalS: intervalS, tool: resolveScreenshotTool()}
}

func resolveScreenshotTool() string {
	for _, tool := range []string{"grim", "spectacle", "gnome-screenshot"} {
		if binaryExists(tool) {
			return tool
		}
	}
	return ""
}

func (s *ScreenshotBackend) Name() string { return BackendScreenshot }

// Start validates a tool is available; the loop itself is driven by
// repeated calls to Grab from the MJPEG streamer rather than a
// background goroutine, matching the on-demand nature of a screenshot
// fallback.
func (s *ScreenshotBackend) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tool == "" && runtime.GOOS != "windows" {
		return fmt.Errorf("screenshot capture: no screenshot tool found")
	}
	s.running = true
	s.stop = make(chan struct{})
	return nil
}

func (s *ScreenshotBackend) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.running = false
}

// Grab invokes the screenshot tool once and returns the resulting image
// bytes (PNG or JPEG depending on the tool).
func (s *ScreenshotBackend) Grab() ([]byte, error) {
	s.mu.Lock()
	tool := s.tool
	s.mu.Unlock()
	if tool == "" {
		s.mu.Lock()
		s.fails++
		s.mu.Unlock()
		return nil, fmt.Errorf("screenshot capture: no tool available")
	}

	dir, err := os.MkdirTemp("", "cyberdeck-shot-*")
	if err != nil {
		return nil, fmt.Errorf("screenshot capture: tempdir: %w", err)
	}
	defer os.RemoveAll(dir)
	out := filepath.Join(dir, "frame.png")

	var cmd *exec.Cmd
	switch tool {
	case "grim":
		cmd = exec.Command("grim", out)
	case "spectacle":
		cmd = exec.Command("spectacle", "-b", "-n", "-o", out)
	case "gnome-screenshot":
		cmd = exec.Command("gnome-screenshot", "-f", out)
	default:
		return nil, fmt.Errorf("screenshot capture: unknown tool %q", tool)
	}

	ctxErr := runWithTimeout(cmd, 5*time.Second)
	if ctxErr != nil {
		s.mu.Lock()
		s.fails++
		s.mu.Unlock()
		return nil, fmt.Errorf("screenshot capture: %s: %w", tool, ctxErr)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		s.mu.Lock()
		s.fails++
		s.mu.Unlock()
		return nil, fmt.Errorf("screenshot capture: read output: %w", err)
	}
	s.mu.Lock()
	s.grabs++
	s.mu.Unlock()
	return data, nil
}

func runWithTimeout(cmd *exec.Cmd, timeout time.Duration) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		cmd.Process.Kill()
		<-done
		return fmt.Errorf("timed out after %s", timeout)
	}
}

func (s *ScreenshotBackend) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Name: BackendScreenshot, Available: s.tool != "" || runtime.GOOS == "windows", FramesGrabbed: s.grabs, GrabFailures: s.fails}
}

func (s *ScreenshotBackend) Health() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tool != "" || runtime.GOOS == "windows"
}
