//go:build windows

package clip

import "log/slog"

// New returns the Windows clipboard backend.
func New() Backend {
	b, err := newGDBackend("Windows clipboard")
	if err != nil {
		slog.Warn("clipboard unavailable, running headless", "err", err)
		return NewHeadless()
	}
	return b
}
