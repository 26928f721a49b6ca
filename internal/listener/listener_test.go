package listener

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipmesh/internal/crypto"
	"go.klb.dev/clipmesh/internal/protocol"
	"go.klb.dev/clipmesh/internal/wire"
)

func startListener(t *testing.T) (*Listener, chan *protocol.Payload, *[crypto.KeySize]byte) {
	t.Helper()
	key, err := crypto.NewKey()
	require.NoError(t, err)

	inbound := make(chan *protocol.Payload, 8)
	l, err := Listen(0, key, inbound)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go l.Run(ctx)
	return l, inbound, key
}

func dial(t *testing.T, l *Listener, key *[crypto.KeySize]byte) *wire.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return wire.New(conn, key)
}

func recvPayload(t *testing.T, inbound chan *protocol.Payload) *protocol.Payload {
	t.Helper()
	select {
	case p := <-inbound:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbound payload")
		return nil
	}
}

func TestForwardsDecodedPayloads(t *testing.T) {
	l, inbound, key := startListener(t)
	c := dial(t, l, key)

	require.NoError(t, c.WritePayload(&protocol.Payload{
		Origin:  "desktop",
		Content: protocol.TextContent("first"),
	}))
	require.NoError(t, c.WritePayload(&protocol.Payload{
		Origin:  "desktop",
		Content: protocol.TextContent("second"),
	}))

	p := recvPayload(t, inbound)
	assert.Equal(t, "desktop", p.Origin)
	assert.Equal(t, "first", p.Content.Text)
	assert.Equal(t, "second", recvPayload(t, inbound).Content.Text)
}

func TestWrongKeyDropsConnection(t *testing.T) {
	l, inbound, _ := startListener(t)
	other, err := crypto.NewKey()
	require.NoError(t, err)

	c := dial(t, l, other)
	require.NoError(t, c.WritePayload(&protocol.Payload{
		Origin:  "intruder",
		Content: protocol.TextContent("nope"),
	}))

	// The listener must close the connection on the auth failure.
	c.SetReadDeadline(2 * time.Second)
	_, err = c.ReadPayload()
	require.Error(t, err)

	select {
	case p := <-inbound:
		t.Fatalf("payload leaked through with wrong key: %v", p.Content.Kind)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBadConnectionDoesNotAffectOthers(t *testing.T) {
	l, inbound, key := startListener(t)

	bad := dial(t, l, key)
	garbage := []byte{0, 0, 0, 8, 1, 2, 3, 4, 5, 6, 7, 8}
	require.NoError(t, bad.WriteFrame(garbage))

	good := dial(t, l, key)
	require.NoError(t, good.WritePayload(&protocol.Payload{
		Origin:  "desktop",
		Content: protocol.TextContent("still here"),
	}))
	assert.Equal(t, "still here", recvPayload(t, inbound).Content.Text)
}

func TestShutdownClosesIdleConnections(t *testing.T) {
	key, err := crypto.NewKey()
	require.NoError(t, err)
	inbound := make(chan *protocol.Payload, 8)
	l, err := Listen(0, key, inbound)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(stopped)
	}()

	// Park a connection in the handler's read loop: one payload through
	// proves the handler is up, then the connection goes idle.
	c := dial(t, l, key)
	require.NoError(t, c.WritePayload(&protocol.Payload{
		Origin:  "desktop",
		Content: protocol.TextContent("x"),
	}))
	recvPayload(t, inbound)

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not shut down while a connection sat idle")
	}
}

func TestBindFailureIsFatal(t *testing.T) {
	l, _, key := startListener(t)
	port := uint16(l.Addr().(*net.TCPAddr).Port)

	_, err := Listen(port, key, make(chan *protocol.Payload))
	require.Error(t, err)
}
