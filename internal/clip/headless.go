package clip

import "go.klb.dev/clipmesh/internal/protocol"

// headlessBackend is a no-op clipboard backend for environments without a
// display server (headless Linux servers, containers, etc.). It reads
// nothing, discards writes, and reports an empty capability set.
type headlessBackend struct{}

// NewHeadless returns the no-op backend.
func NewHeadless() Backend { return headlessBackend{} }

func (headlessBackend) Name() string                     { return "headless (no-op)" }
func (headlessBackend) Caps() Caps                       { return Caps{} }
func (headlessBackend) Read() (*protocol.Content, error) { return nil, nil }
func (headlessBackend) Write(*protocol.Content) error    { return ErrUnsupported }
func (headlessBackend) Close()                           {}
