// Package watch detects local clipboard changes by polling.
//
// Platform change notifications are unreliable or absent on several targets,
// so the watcher re-reads the backend at a fixed sub-second interval and
// fingerprints what it sees. A change event is emitted only when the
// fingerprint differs from the previous observation, which debounces the
// unchanged re-reads every tick produces.
package watch

import (
	"context"
	"log/slog"
	"time"

	"go.klb.dev/clipmesh/internal/clip"
	"go.klb.dev/clipmesh/internal/protocol"
)

// Watcher polls a clipboard backend and reports genuine content changes.
type Watcher struct {
	backend  clip.Backend
	interval time.Duration
	out      chan *protocol.Content

	// last is written here and in Run; New happens-before the Run goroutine
	// starts, and Run alone touches it afterwards.
	last *protocol.Fingerprint
}

// New creates a watcher polling backend every interval. Whatever is on the
// clipboard at construction becomes the baseline, not a change to broadcast;
// taking it here, not in Run, means content written after New is always
// observed as a change.
func New(backend clip.Backend, interval time.Duration) *Watcher {
	w := &Watcher{
		backend:  backend,
		interval: interval,
		out:      make(chan *protocol.Content, 16),
	}
	if content, err := backend.Read(); err == nil && content != nil {
		fp := content.Fingerprint()
		w.last = &fp
	}
	return w
}

// Changes returns the channel change events are delivered on.
func (w *Watcher) Changes() <-chan *protocol.Content { return w.out }

// Run polls until ctx is cancelled. Read failures are non-fatal: the tick is
// skipped and the next one retries.
func (w *Watcher) Run(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			content, err := w.backend.Read()
			if err != nil {
				slog.Debug("clipboard read failed, retrying next tick", "err", err)
				continue
			}
			if content == nil {
				continue
			}
			fp := content.Fingerprint()
			if w.last != nil && fp == *w.last {
				continue
			}
			w.last = &fp

			select {
			case w.out <- content:
			default:
				slog.Warn("watcher channel full, dropping change",
					"kind", content.Kind)
			}
		}
	}
}
