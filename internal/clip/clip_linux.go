//go:build linux

package clip

import (
	"log/slog"
	"os"
)

// New selects the Linux backend by probing the display environment once at
// startup: Wayland (wl-clipboard tools) first, then X11 via
// golang.design/x/clipboard, then the headless no-op.
func New() Backend {
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		b, err := newWaylandBackend()
		if err == nil {
			return b
		}
		slog.Warn("wayland clipboard unavailable, trying X11", "err", err)
	}
	if os.Getenv("DISPLAY") != "" {
		b, err := newGDBackend("X11 clipboard")
		if err == nil {
			return b
		}
		slog.Warn("X11 clipboard unavailable", "err", err)
	}
	slog.Warn("no display environment, clipboard disabled")
	return NewHeadless()
}
