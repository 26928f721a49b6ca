// Package peer maintains the persistent outbound link to one configured
// remote node.
//
// Each link is a small state machine — Disconnected → Connecting →
// Connected — driven by its own goroutine. Any I/O error returns the link to
// Disconnected and schedules a reconnect with exponential backoff. Sending
// is fire-and-forget: a frame offered while the link is down is dropped, not
// queued, so a peer that is offline during an update simply misses it.
package peer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

// State is the connection state of a link.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// StateFunc observes link state transitions. err is the error that caused a
// disconnect, nil otherwise. Must not block.
type StateFunc func(addr string, st State, err error)

const (
	dialTimeout    = 2 * time.Second
	writeDeadline  = 5 * time.Second
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	sendBuffer     = 16
)

// Link is the persistent connection toward one peer.
type Link struct {
	addr   string
	frames chan []byte
	notify StateFunc

	mu      sync.Mutex
	state   State
	lastErr error
}

// New creates a link to addr. notify may be nil. Call Run to start it.
func New(addr string, notify StateFunc) *Link {
	return &Link{
		addr:   addr,
		frames: make(chan []byte, sendBuffer),
		notify: notify,
	}
}

// Addr returns the peer's dial address.
func (l *Link) Addr() string { return l.addr }

// State returns the current connection state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// LastErr returns the most recent connection error, nil when healthy.
func (l *Link) LastErr() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// Send queues an encoded frame for delivery. Fire-and-forget: frames offered
// while the link is not connected, or while the queue is full, are dropped.
func (l *Link) Send(frame []byte) {
	if l.State() != StateConnected {
		slog.Debug("peer not connected, dropping frame", "peer", l.addr)
		return
	}
	select {
	case l.frames <- frame:
	default:
		slog.Warn("peer send queue full, dropping frame", "peer", l.addr)
	}
}

// Run drives the connect/write/backoff cycle until ctx is cancelled.
func (l *Link) Run(ctx context.Context) {
	log := slog.With("peer", l.addr)
	backoff := initialBackoff

	for {
		l.setState(StateConnecting, nil)
		d := net.Dialer{Timeout: dialTimeout}
		conn, err := d.DialContext(ctx, "tcp", l.addr)
		if err != nil {
			if ctx.Err() != nil {
				l.setState(StateDisconnected, nil)
				return
			}
			l.setState(StateDisconnected, err)
			log.Warn("connect failed", "err", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		backoff = initialBackoff
		l.setState(StateConnected, nil)
		log.Info("peer connected")

		err = l.writeLoop(ctx, conn)
		conn.Close()
		l.drain()

		if ctx.Err() != nil {
			l.setState(StateDisconnected, nil)
			return
		}
		l.setState(StateDisconnected, err)
		log.Warn("peer disconnected", "err", err, "retry_in", backoff)
		if !sleep(ctx, backoff) {
			return
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (l *Link) writeLoop(ctx context.Context, conn net.Conn) error {
	// The remote end never sends application data on this connection, so a
	// blocking read returns only when the connection dies. Without it a
	// remote close goes unnoticed until the next write, and that frame is
	// written into the dead socket and lost.
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 1)
		_, err := conn.Read(buf)
		readErr <- err
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err == nil || errors.Is(err, io.EOF) {
				return errors.New("connection closed by peer")
			}
			return err
		case frame := <-l.frames:
			_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if _, err := conn.Write(frame); err != nil {
				return err
			}
		}
	}
}

// drain discards frames buffered before the disconnect; there is no
// store-and-forward.
func (l *Link) drain() {
	for {
		select {
		case <-l.frames:
		default:
			return
		}
	}
}

func (l *Link) setState(st State, err error) {
	l.mu.Lock()
	changed := l.state != st
	l.state = st
	if err != nil {
		l.lastErr = err
	} else if st == StateConnected {
		l.lastErr = nil
	}
	l.mu.Unlock()

	if changed && l.notify != nil {
		l.notify(l.addr, st, err)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
