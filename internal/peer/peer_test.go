package peer

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) notify(_ string, st State, _ error) {
	r.mu.Lock()
	r.states = append(r.states, st)
	r.mu.Unlock()
}

func (r *stateRecorder) last() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return StateDisconnected
	}
	return r.states[len(r.states)-1]
}

func TestLinkConnectsAndSends(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	rec := &stateRecorder{}
	l := New(ln.Addr().String(), rec.notify)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	conn, err := ln.Accept()
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return l.State() == StateConnected },
		2*time.Second, 10*time.Millisecond)
	assert.Equal(t, StateConnected, rec.last())
	assert.NoError(t, l.LastErr())

	l.Send([]byte("frame-bytes"))

	buf := make([]byte, 32)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "frame-bytes", string(buf[:n]))
}

func TestLinkBacksOffWhenUnreachable(t *testing.T) {
	// Grab a port and release it so nothing is listening there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	l := New(addr, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	require.Eventually(t, func() bool { return l.LastErr() != nil },
		2*time.Second, 10*time.Millisecond)
	assert.NotEqual(t, StateConnected, l.State())

	// Fire-and-forget while down: must not block or panic.
	l.Send([]byte("dropped"))
}

func TestLinkNoticesCloseWhileIdle(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	l := New(ln.Addr().String(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	conn, err := ln.Accept()
	require.NoError(t, err)
	require.Eventually(t, func() bool { return l.State() == StateConnected },
		2*time.Second, 10*time.Millisecond)

	// Close the remote end with nothing in flight. The link must observe
	// the close on its own, without a write to trip over.
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return l.State() != StateConnected },
		2*time.Second, 10*time.Millisecond, "link still believes a closed connection is up")

	// After reconnecting, the next clipboard update goes out on the fresh
	// connection instead of vanishing into the dead one.
	require.NoError(t, ln.(*net.TCPListener).SetDeadline(time.Now().Add(5*time.Second)))
	conn2, err := ln.Accept()
	require.NoError(t, err)
	defer conn2.Close()
	require.Eventually(t, func() bool { return l.State() == StateConnected },
		2*time.Second, 10*time.Millisecond)

	l.Send([]byte("after-idle"))
	buf := make([]byte, 32)
	require.NoError(t, conn2.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err := conn2.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "after-idle", string(buf[:n]))
}

func TestLinkReconnectsAfterConnectionLoss(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	l := New(ln.Addr().String(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	conn, err := ln.Accept()
	require.NoError(t, err)
	require.Eventually(t, func() bool { return l.State() == StateConnected },
		2*time.Second, 10*time.Millisecond)

	// Kill the connection; the link only notices on its next write.
	require.NoError(t, conn.Close())
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case <-time.After(20 * time.Millisecond):
				l.Send([]byte("ping"))
			}
		}
	}()

	require.NoError(t, ln.(*net.TCPListener).SetDeadline(time.Now().Add(5*time.Second)))
	conn2, err := ln.Accept()
	require.NoError(t, err, "link did not reconnect")
	conn2.Close()
}
