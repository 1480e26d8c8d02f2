package capture

import (
	"os"
	"strings"
)

func waylandDisplay() string {
	return os.Getenv("WAYLAND_DISPLAY")
}

func sessionType() string {
	return strings.ToLower(strings.TrimSpace(os.Getenv("XDG_SESSION_TYPE")))
}
