//go:build darwin

package clip

import "log/slog"

// New returns the macOS clipboard backend.
func New() Backend {
	b, err := newGDBackend("macOS clipboard")
	if err != nil {
		slog.Warn("clipboard unavailable, running headless", "err", err)
		return NewHeadless()
	}
	return b
}
