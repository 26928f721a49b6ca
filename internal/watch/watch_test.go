package watch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipmesh/internal/clip"
	"go.klb.dev/clipmesh/internal/protocol"
)

const tick = 5 * time.Millisecond

func startWatcher(t *testing.T, backend clip.Backend) *Watcher {
	t.Helper()
	w := New(backend, tick)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Run(ctx)
	return w
}

func recvChange(t *testing.T, w *Watcher) *protocol.Content {
	t.Helper()
	select {
	case c := <-w.Changes():
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change event")
		return nil
	}
}

func assertNoChange(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case c := <-w.Changes():
		t.Fatalf("unexpected change event: %v", c.Kind)
	case <-time.After(20 * tick):
	}
}

func TestEmitsOnGenuineChange(t *testing.T) {
	mem := clip.NewMemory()
	w := startWatcher(t, mem)

	require.NoError(t, mem.Write(protocol.TextContent("hello")))
	got := recvChange(t, w)
	assert.Equal(t, "hello", got.Text)
}

func TestDebouncesUnchangedContent(t *testing.T) {
	mem := clip.NewMemory()
	w := startWatcher(t, mem)

	require.NoError(t, mem.Write(protocol.TextContent("hello")))
	recvChange(t, w)

	// Every subsequent poll re-reads the same content; none may re-emit.
	assertNoChange(t, w)

	// Writing identical content is also not a change.
	require.NoError(t, mem.Write(protocol.TextContent("hello")))
	assertNoChange(t, w)

	require.NoError(t, mem.Write(protocol.TextContent("world")))
	got := recvChange(t, w)
	assert.Equal(t, "world", got.Text)
}

func TestStartupContentIsBaselineNotChange(t *testing.T) {
	mem := clip.NewMemory()
	require.NoError(t, mem.Write(protocol.TextContent("preexisting")))

	w := startWatcher(t, mem)
	assertNoChange(t, w)
}

func TestBaselineTakenAtConstruction(t *testing.T) {
	mem := clip.NewMemory()
	w := New(mem, tick)

	// Written after New but before Run: must surface as a change, however
	// quickly the polling goroutine comes up.
	require.NoError(t, mem.Write(protocol.TextContent("hello")))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Run(ctx)

	got := recvChange(t, w)
	assert.Equal(t, "hello", got.Text)
}

func TestEmptyClipboardEmitsNothing(t *testing.T) {
	w := startWatcher(t, clip.NewMemory())
	assertNoChange(t, w)
}
