// Package clip provides a unified, capability-based interface to the system
// clipboard. Build constraints and environment probing select the
// implementation once at startup:
//
//	clip_linux.go   — Wayland via wl-clipboard tools, else X11 via
//	                  golang.design/x/clipboard, else headless
//	clip_windows.go — golang.design/x/clipboard
//	clip_darwin.go  — golang.design/x/clipboard
//	clip_other.go   — headless no-op
//
// Callers never probe platforms themselves; they ask the backend for its
// capability set and skip content kinds it cannot handle.
package clip

import (
	"errors"

	"go.klb.dev/clipmesh/internal/protocol"
)

// ErrUnsupported reports a content kind the backend has no capability for.
var ErrUnsupported = errors.New("content kind not supported by clipboard backend")

// Caps describes which clipboard operations a backend supports.
type Caps struct {
	ReadText   bool
	WriteText  bool
	ReadImage  bool
	WriteImage bool
	ReadFiles  bool
	WriteFiles bool
}

// Backend is the interface all platform clipboard implementations satisfy.
type Backend interface {
	// Name returns a human-readable name for the backend.
	Name() string

	// Caps returns the backend's capability set. Fixed for the backend's
	// lifetime.
	Caps() Caps

	// Read returns the current clipboard content, preferring file lists over
	// images over text, or nil when the clipboard is empty or holds only
	// unsupported formats. File entries carry Path and Size only; content
	// bytes are loaded later, when the engine decides the list is going on
	// the wire.
	Read() (*protocol.Content, error)

	// Write sets the clipboard to the given content. Fails with
	// ErrUnsupported when the backend lacks the capability for its kind.
	Write(*protocol.Content) error

	// Close releases any resources held by the backend.
	Close()
}
