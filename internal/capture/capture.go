// Package capture implements the pluggable screen-capture backends (C7):
// a native grabber plus ffmpeg/gstreamer/screenshot-tool subprocess
// producers, each behind an availability probe.
package capture

import (
	"os/exec"
	"runtime"
	"sync"
	"time"
)

// Names of the four interchangeable backends, in the order the spec
// enumerates them.
const (
	BackendNative     = "native"
	BackendFFmpeg     = "ffmpeg"
	BackendGstreamer  = "gstreamer"
	BackendScreenshot = "screenshot"
)

// Aliases maps user-facing backend hints to canonical names.
var Aliases = map[string]string{
	"auto":       "auto",
	"native":     BackendNative,
	"mss":        BackendNative,
	"ffmpeg":     BackendFFmpeg,
	"gst":        BackendGstreamer,
	"gstreamer":  BackendGstreamer,
	"grim":       BackendScreenshot,
	"screenshot": BackendScreenshot,
	"tool":       BackendScreenshot,
}

// Stats is what a backend reports through diagnostics.
type Stats struct {
	Name           string `json:"name"`
	Available      bool   `json:"available"`
	DisabledReason string `json:"disabled_reason,omitempty"`
	FramesGrabbed  int64  `json:"frames_grabbed"`
	GrabFailures   int64  `json:"grab_failures"`
}

// Backend is the capability every capture producer implements.
type Backend interface {
	Name() string
	Start() error
	Stop()
	Stats() Stats
	Health() bool
}

// cachedProbe memoizes a boolean probe function for ttl, generalizing the
// three duplicated probe-cache blocks (ffmpeg/gstreamer/screenshot-tool)
// original_source keeps as copy-pasted globals.
type cachedProbe struct {
	mu   sync.Mutex
	ttl  time.Duration
	at   time.Time
	ok   bool
	fn   func() bool
}

func newCachedProbe(ttl time.Duration, fn func() bool) *cachedProbe {
	return &cachedProbe{ttl: ttl, fn: fn}
}

func (p *cachedProbe) Get() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if time.Since(p.at) < p.ttl {
		return p.ok
	}
	p.ok = p.fn()
	p.at = time.Now()
	return p.ok
}

const probeCacheTTL = 8 * time.Second

// Manager tracks availability of all four backends and hands out an
// ordered candidate list for the Stream Negotiator.
type Manager struct {
	ffmpegProbe     *cachedProbe
	gstreamerProbe  *cachedProbe
	screenshotProbe *cachedProbe

	mu     sync.Mutex
	active map[string]Backend
	native *NativeBackend
}

// NewManager builds a Manager with lazily-cached availability probes.
func NewManager() *Manager {
	m := &Manager{active: make(map[string]Backend)}
	m.ffmpegProbe = newCachedProbe(probeCacheTTL, func() bool { return binaryExists("ffmpeg") })
	m.gstreamerProbe = newCachedProbe(probeCacheTTL, func() bool { return binaryExists("gst-launch-1.0") })
	m.screenshotProbe = newCachedProbe(probeCacheTTL, func() bool { return screenshotToolAvailable() })
	return m
}

// SetNative registers the native backend instance so Availability can
// reflect its live health (it auto-disables after repeated grab failures).
func (m *Manager) SetNative(n *NativeBackend) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.native = n
}

// Native returns the registered native backend instance, or nil if none
// has been set (unsupported platform, or not yet started).
func (m *Manager) Native() *NativeBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.native
}

// Availability returns the current status map queried by the Negotiator.
func (m *Manager) Availability() map[string]bool {
	m.mu.Lock()
	native := m.native
	m.mu.Unlock()
	nativeOK := native != nil && native.Health()
	return map[string]bool{
		BackendNative:     nativeOK,
		BackendFFmpeg:     m.ffmpegProbe.Get(),
		BackendGstreamer:  m.gstreamerProbe.Get() && isWaylandSession(),
		BackendScreenshot: m.screenshotProbe.Get(),
	}
}

func binaryExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func screenshotToolAvailable() bool {
	for _, tool := range []string{"grim", "spectacle", "gnome-screenshot"} {
		if binaryExists(tool) {
			return true
		}
	}
	return runtime.GOOS == "windows"
}

func isWaylandSession() bool {
	return waylandDisplay() != "" || sessionType() == "wayland"
}
