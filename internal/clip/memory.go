package clip

import (
	"sync"

	"go.klb.dev/clipmesh/internal/protocol"
)

// Memory is an in-process clipboard backend. It backs the engine and watcher
// tests and doubles as a functional stand-in where no system clipboard
// exists but the node should still relay content.
type Memory struct {
	mu      sync.Mutex
	content *protocol.Content
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Caps() Caps {
	return Caps{
		ReadText: true, WriteText: true,
		ReadImage: true, WriteImage: true,
		ReadFiles: true, WriteFiles: true,
	}
}

func (m *Memory) Read() (*protocol.Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.content, nil
}

func (m *Memory) Write(c *protocol.Content) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.content = c
	return nil
}

func (m *Memory) Close() {}
