// Package engine orchestrates clipboard synchronisation between the local
// machine and the configured peers.
//
// One serialized event loop consumes local clipboard changes from the
// watcher and decoded payloads from the listener. The loop alone owns the
// last-applied fingerprint, so echo suppression needs no locking: content
// the engine just wrote to the local clipboard is recognised on the
// watcher's next poll and never broadcast back into the mesh.
package engine

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"go.klb.dev/clipmesh/internal/clip"
	"go.klb.dev/clipmesh/internal/config"
	"go.klb.dev/clipmesh/internal/listener"
	"go.klb.dev/clipmesh/internal/peer"
	"go.klb.dev/clipmesh/internal/protocol"
	"go.klb.dev/clipmesh/internal/receiver"
	"go.klb.dev/clipmesh/internal/watch"
	"go.klb.dev/clipmesh/internal/wire"
)

// Event is an observational notification for the surrounding UI/tray layer.
// Events carry no control flow back into the engine.
type Event interface{ event() }

// PeerStateEvent reports a connection state change on one peer link.
type PeerStateEvent struct {
	Addr  string
	State peer.State
	Err   error
}

// AppliedEvent reports remote content applied to this node.
type AppliedEvent struct {
	Origin string
	Kind   protocol.Kind
	Bytes  uint64
}

func (PeerStateEvent) event() {}
func (AppliedEvent) event()   {}

// PeerStatus is a point-in-time snapshot of one peer link.
type PeerStatus struct {
	Addr    string
	State   peer.State
	LastErr error
}

// link is the slice of peer.Link the engine drives; tests substitute fakes.
type link interface {
	Addr() string
	State() peer.State
	LastErr() error
	Send(frame []byte)
	Run(ctx context.Context)
}

// Engine wires the watcher, the peer links, the listener, and the file
// receiver together.
type Engine struct {
	cfg     *config.Config
	backend clip.Backend
	links   []link
	ln      *listener.Listener
	watcher *watch.Watcher
	recv    *receiver.Receiver

	inbound chan *protocol.Payload
	events  chan Event

	// lastApplied is read and written only inside the Run loop.
	lastApplied *protocol.Fingerprint
}

// New builds an engine from a validated config. The listen socket is bound
// here: a bind failure aborts startup.
func New(cfg *config.Config, backend clip.Backend) (*Engine, error) {
	e := &Engine{
		cfg:     cfg,
		backend: backend,
		inbound: make(chan *protocol.Payload, 32),
		events:  make(chan Event, 64),
		watcher: watch.New(backend, cfg.PollInterval),
		recv:    receiver.New(cfg.DownloadRoot),
	}

	ln, err := listener.Listen(cfg.ListenPort, cfg.SecretKey, e.inbound)
	if err != nil {
		return nil, err
	}
	e.ln = ln

	for _, p := range cfg.Peers {
		e.links = append(e.links, peer.New(p.Addr(), e.peerStateChanged))
	}
	return e, nil
}

// Events returns the observational event stream. Events are dropped, not
// blocked on, when nobody consumes them. The channel is closed when Run
// returns.
func (e *Engine) Events() <-chan Event { return e.events }

// PeerStatus snapshots every peer link.
func (e *Engine) PeerStatus() []PeerStatus {
	out := make([]PeerStatus, 0, len(e.links))
	for _, l := range e.links {
		out = append(out, PeerStatus{Addr: l.Addr(), State: l.State(), LastErr: l.LastErr()})
	}
	return out
}

// Run starts all component loops and consumes events until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("sync engine starting",
		"instance", e.cfg.InstanceID,
		"listen", e.ln.Addr().String(),
		"peers", len(e.links),
		"backend", e.backend.Name(),
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		e.ln.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		e.watcher.Run(ctx)
	}()
	for _, l := range e.links {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Run(ctx)
		}()
	}

	for {
		select {
		case <-ctx.Done():
			// All emitters are in the WaitGroup, so closing after the wait
			// cannot race a send. Consumers see the stream end.
			wg.Wait()
			close(e.events)
			slog.Info("sync engine stopped")
			return nil
		case content := <-e.watcher.Changes():
			e.handleLocal(content)
		case p := <-e.inbound:
			e.handleInbound(p)
		}
	}
}

// handleLocal is the outbound path: a genuine local clipboard change is
// encoded once and fanned out to every link, best effort.
func (e *Engine) handleLocal(c *protocol.Content) {
	fp := c.Fingerprint()
	if e.lastApplied != nil && fp == *e.lastApplied {
		slog.Debug("suppressed echo of just-applied content", "kind", c.Kind)
		return
	}

	if c.Kind == protocol.KindFiles {
		if total := c.TotalFileSize(); total > e.cfg.MaxFileSize {
			slog.Warn("file payload over max_file_size, keeping local",
				"total", total, "max", e.cfg.MaxFileSize)
			return
		}
		loaded := loadFiles(c.Files)
		if len(loaded) == 0 {
			return
		}
		c = protocol.FilesContent(loaded)
		// Re-check on actual bytes; files may have grown since the poll.
		if total := c.TotalFileSize(); total > e.cfg.MaxFileSize {
			slog.Warn("file payload over max_file_size, keeping local",
				"total", total, "max", e.cfg.MaxFileSize)
			return
		}
	}

	frame, err := wire.Encode(e.cfg.SecretKey, &protocol.Payload{
		Origin:  e.cfg.InstanceID,
		Content: c,
	})
	if err != nil {
		slog.Error("payload encode failed", "err", err)
		return
	}

	slog.Info("broadcasting clipboard update",
		"kind", c.Kind, "bytes", c.ByteSize(), "peers", len(e.links))
	for _, l := range e.links {
		l.Send(frame)
	}
}

// handleInbound is the inbound path: validate, record the fingerprint, then
// apply. The fingerprint is recorded before the clipboard write so the
// watcher's next poll cannot observe the new content first and re-send it.
func (e *Engine) handleInbound(p *protocol.Payload) {
	if p.Origin == e.cfg.InstanceID {
		slog.Debug("ignoring payload with own origin id")
		return
	}
	c := p.Content

	if c.Kind == protocol.KindFiles {
		// Receiving-side limit: never trust a peer to have honoured the
		// sender-side check.
		if total := c.TotalFileSize(); total > e.cfg.MaxFileSize {
			slog.Warn("rejecting oversized inbound file payload",
				"origin", p.Origin, "total", total, "max", e.cfg.MaxFileSize)
			return
		}
		for _, f := range c.Files {
			if f.Size != uint64(len(f.Data)) {
				slog.Warn("rejecting file payload with mismatched entry sizes",
					"origin", p.Origin, "path", f.Path)
				return
			}
		}
	}

	fp := c.Fingerprint()
	e.lastApplied = &fp

	caps := e.backend.Caps()
	switch c.Kind {
	case protocol.KindText, protocol.KindImage:
		if (c.Kind == protocol.KindText && !caps.WriteText) ||
			(c.Kind == protocol.KindImage && !caps.WriteImage) {
			slog.Debug("backend cannot apply content", "kind", c.Kind, "backend", e.backend.Name())
			return
		}
		if err := e.backend.Write(c); err != nil {
			slog.Error("clipboard write failed", "kind", c.Kind, "err", err)
			return
		}

	case protocol.KindFiles:
		saved, err := e.recv.Save(c.Files)
		if err != nil {
			slog.Error("saving received files failed", "err", err)
			return
		}
		// Put the downloaded paths on the local clipboard where possible;
		// their fingerprint matches the inbound payload (base name + size),
		// so the watcher will not re-broadcast them.
		if caps.WriteFiles {
			if err := e.backend.Write(protocol.FilesContent(saved)); err != nil {
				slog.Error("clipboard write failed", "kind", c.Kind, "err", err)
			}
		}
	}

	slog.Info("applied remote clipboard",
		"origin", p.Origin, "kind", c.Kind, "bytes", c.ByteSize())
	e.emit(AppliedEvent{Origin: p.Origin, Kind: c.Kind, Bytes: c.ByteSize()})
}

func (e *Engine) peerStateChanged(addr string, st peer.State, err error) {
	e.emit(PeerStateEvent{Addr: addr, State: st, Err: err})
}

func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
	}
}

// loadFiles reads entry bytes from disk before a file list goes on the wire.
// Paths are reduced to base names; the receiving side recreates the list
// under its own download directory. Unreadable entries are skipped.
func loadFiles(entries []protocol.FileEntry) []protocol.FileEntry {
	out := make([]protocol.FileEntry, 0, len(entries))
	for _, f := range entries {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			slog.Warn("skipping unreadable clipboard file", "path", f.Path, "err", err)
			continue
		}
		out = append(out, protocol.FileEntry{
			Path: filepath.Base(f.Path),
			Size: uint64(len(data)),
			Data: data,
		})
	}
	return out
}
