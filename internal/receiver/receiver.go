// Package receiver materialises inbound file-list payloads on disk.
package receiver

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.klb.dev/clipmesh/internal/protocol"
)

// Subdir is the directory created beneath the download root.
const Subdir = "lan-clipboard"

// Receiver writes received file lists under a download root.
type Receiver struct {
	root string
}

// New returns a receiver rooted at the platform download directory.
func New(root string) *Receiver { return &Receiver{root: root} }

// Save writes each entry beneath a fresh timestamped directory,
// <root>/lan-clipboard/<YYYYMMDD-HHMMSS>/, preserving relative paths. The
// directory is created at apply time, so concurrent applies cannot collide
// on stale names. A write failure for one entry is logged and does not abort
// the rest.
//
// The returned entries mirror the input with Path rewritten to the
// materialised location, so the caller can place them on the local
// clipboard.
func (r *Receiver) Save(entries []protocol.FileEntry) ([]protocol.FileEntry, error) {
	dir := filepath.Join(r.root, Subdir, time.Now().Format("20060102-150405"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	saved := make([]protocol.FileEntry, 0, len(entries))
	for _, e := range entries {
		rel, ok := sanitizePath(e.Path)
		if !ok {
			slog.Warn("skipping file entry with unusable path", "path", e.Path)
			continue
		}
		dst := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			slog.Warn("file write failed", "path", dst, "err", err)
			continue
		}
		if err := os.WriteFile(dst, e.Data, 0o644); err != nil {
			slog.Warn("file write failed", "path", dst, "err", err)
			continue
		}
		saved = append(saved, protocol.FileEntry{Path: dst, Size: e.Size})
	}

	if len(saved) == 0 {
		return nil, fmt.Errorf("no file entries written under %s", dir)
	}
	slog.Info("received files saved", "dir", dir, "count", len(saved))
	return saved, nil
}

// sanitizePath confines an entry path beneath the destination directory. A
// peer-supplied path that is absolute or escapes upward is reduced to its
// base name rather than trusted.
func sanitizePath(p string) (string, bool) {
	cleaned := path.Clean(filepath.ToSlash(p))
	if cleaned == "" || cleaned == "." || cleaned == ".." || cleaned == "/" {
		return "", false
	}
	if path.IsAbs(cleaned) || strings.HasPrefix(cleaned, "../") || strings.Contains(cleaned, ":") {
		base := path.Base(cleaned)
		if base == "" || base == "." || base == ".." || base == "/" {
			return "", false
		}
		return base, true
	}
	return cleaned, true
}
