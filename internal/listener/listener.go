// Package listener accepts inbound TCP connections from peers and forwards
// their decoded payloads to the engine.
//
// Each accepted connection gets an independent read loop. A decode failure —
// authentication, framing, or structure — terminates only that connection;
// the listener and every other connection carry on.
package listener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"go.klb.dev/clipmesh/internal/crypto"
	"go.klb.dev/clipmesh/internal/protocol"
	"go.klb.dev/clipmesh/internal/wire"
)

// Listener owns the bound listen socket.
type Listener struct {
	ln      net.Listener
	key     *[crypto.KeySize]byte
	inbound chan<- *protocol.Payload
	wg      sync.WaitGroup
}

// Listen binds port on all interfaces. A bind failure (port in use,
// insufficient privilege) is returned to the caller and is fatal to startup.
func Listen(port uint16, key *[crypto.KeySize]byte, inbound chan<- *protocol.Payload) (*Listener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("listen port %d: %w", port, err)
	}
	return &Listener{ln: ln, key: key, inbound: inbound}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Run accepts connections until ctx is cancelled, then closes the socket and
// waits for in-flight connection handlers to drain.
func (l *Listener) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		l.ln.Close()
	}()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			slog.Error("accept failed", "err", err)
			continue
		}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handle(ctx, conn)
		}()
	}
	l.wg.Wait()
}

func (l *Listener) handle(ctx context.Context, conn net.Conn) {
	c := wire.New(conn, l.key)
	defer c.Close()
	log := slog.With("remote", conn.RemoteAddr().String())

	// Peer links are persistent and only send when the clipboard changes,
	// which can be hours apart: an idle connection is healthy, so reads
	// carry no deadline. Shutdown instead closes the connection out from
	// under a blocked read.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-done:
		}
	}()

	for {
		p, err := c.ReadPayload()
		if err != nil {
			logReadEnd(log, err)
			return
		}

		select {
		case l.inbound <- p:
		case <-ctx.Done():
			return
		}
	}
}

func logReadEnd(log *slog.Logger, err error) {
	switch {
	case errors.Is(err, io.EOF):
		log.Debug("connection closed by peer")
	case errors.Is(err, crypto.ErrDecrypt):
		log.Warn("dropping connection: decryption failed (mismatched key?)", "err", err)
	case errors.Is(err, wire.ErrFrameTooLarge), errors.Is(err, protocol.ErrMalformed):
		log.Warn("dropping connection: bad frame", "err", err)
	case errors.Is(err, net.ErrClosed):
	default:
		log.Info("connection read failed", "err", err)
	}
}
