package stream

import "strings"

// Backend name constants repeat the values of internal/capture's
// constants of the same names.
const (
	BackendNative     = "native"
	BackendFFmpeg     = "ffmpeg"
	BackendGstreamer  = "gstreamer"
	BackendScreenshot = "screenshot"
)

var allBackends = []string{BackendNative, BackendFFmpeg, BackendGstreamer, BackendScreenshot}

// Negotiator picks an ordered, available-only candidate list for a
// stream request, honoring an explicit preference, an operator-configured
// order override, and a Wayland-session bias toward gstreamer/screenshot
// over x11grab-based ffmpeg.
type Negotiator struct {
	envOrder  []string
	isWayland func() bool
}

// NewNegotiator builds a Negotiator. envOrder is the operator's
// CYBERDECK_MJPEG_BACKEND_ORDER override (already comma-split); isWayland
// reports whether the current session is Wayland.
func NewNegotiator(envOrder []string, isWayland func() bool) *Negotiator {
	if isWayland == nil {
		isWayland = func() bool { return false }
	}
	return &Negotiator{envOrder: envOrder, isWayland: isWayland}
}

// NormalizeBackend maps a user-facing hint to a canonical backend name,
// or "auto" if unrecognized.
func NormalizeBackend(value string, aliases map[string]string) string {
	raw := strings.ToLower(strings.TrimSpace(value))
	if raw == "" {
		return "auto"
	}
	if v, ok := aliases[raw]; ok {
		return v
	}
	return "auto"
}

// Order computes the effective backend order: preferred first (if not
// "auto"), then the configured or session-biased base order, filtered to
// backends status reports available, with order preserved.
func (n *Negotiator) Order(preferred string, status map[string]bool) []string {
	var base []string
	if len(n.envOrder) > 0 {
		seen := map[string]bool{}
		for _, name := range n.envOrder {
			if name == "auto" || seen[name] {
				continue
			}
			valid := false
			for _, b := range allBackends {
				if b == name {
					valid = true
				}
			}
			if valid {
				seen[name] = true
				base = append(base, name)
			}
		}
	}
	if len(base) == 0 {
		if n.isWayland() {
			base = []string{BackendGstreamer, BackendScreenshot, BackendFFmpeg, BackendNative}
		} else {
			base = []string{BackendNative, BackendFFmpeg, BackendGstreamer, BackendScreenshot}
		}
	}

	var ordered []string
	if preferred != "" && preferred != "auto" {
		ordered = append(ordered, preferred)
		for _, b := range base {
			if b != preferred {
				ordered = append(ordered, b)
			}
		}
	} else {
		ordered = append(ordered, base...)
	}
	for _, b := range allBackends {
		found := false
		for _, o := range ordered {
			if o == b {
				found = true
			}
		}
		if !found {
			ordered = append(ordered, b)
		}
	}

	var available []string
	for _, b := range ordered {
		if status[b] {
			available = append(available, b)
		}
	}
	return available
}
