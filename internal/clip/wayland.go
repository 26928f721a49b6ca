//go:build linux

package clip

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"

	"go.klb.dev/clipmesh/internal/protocol"
)

// waylandBackend shells out to wl-paste / wl-copy from the wl-clipboard
// tools. Unlike the X11 backend it can carry file lists: copied files travel
// as text/uri-list, the format GTK file managers place on the clipboard.
type waylandBackend struct{}

func newWaylandBackend() (Backend, error) {
	for _, tool := range []string{"wl-paste", "wl-copy"} {
		if _, err := exec.LookPath(tool); err != nil {
			return nil, fmt.Errorf("%s not in PATH: %w", tool, err)
		}
	}
	return waylandBackend{}, nil
}

func (waylandBackend) Name() string { return "Wayland clipboard (wl-clipboard)" }

func (waylandBackend) Caps() Caps {
	return Caps{
		ReadText: true, WriteText: true,
		ReadImage: true, WriteImage: true,
		ReadFiles: true, WriteFiles: true,
	}
}

func (waylandBackend) Read() (*protocol.Content, error) {
	types := pasteTypes()
	if len(types) == 0 {
		return nil, nil
	}

	for _, t := range types {
		if t == "text/uri-list" {
			raw, err := paste(t, false)
			if err != nil {
				return nil, err
			}
			if entries := uriListEntries(string(raw)); len(entries) > 0 {
				return protocol.FilesContent(entries), nil
			}
		}
	}
	for _, t := range types {
		if strings.HasPrefix(t, "image/") {
			raw, err := paste(t, false)
			if err != nil {
				return nil, err
			}
			if len(raw) > 0 {
				return protocol.ImageContent(raw, strings.TrimPrefix(t, "image/")), nil
			}
		}
	}
	for _, t := range types {
		if t == "text/plain" || strings.HasPrefix(t, "text/plain;") {
			raw, err := paste(t, true)
			if err != nil {
				return nil, err
			}
			if len(raw) > 0 {
				return protocol.TextContent(string(raw)), nil
			}
		}
	}
	return nil, nil
}

func (waylandBackend) Write(c *protocol.Content) error {
	switch c.Kind {
	case protocol.KindText:
		return copyTo("", []byte(c.Text))
	case protocol.KindImage:
		enc := c.ImageEncoding
		if enc == "" {
			enc = protocol.DefaultImageEncoding
		}
		return copyTo("image/"+enc, c.Image)
	case protocol.KindFiles:
		var b strings.Builder
		for _, f := range c.Files {
			b.WriteString("file://")
			b.WriteString(f.Path)
			b.WriteString("\n")
		}
		return copyTo("text/uri-list", []byte(b.String()))
	}
	return ErrUnsupported
}

func (waylandBackend) Close() {}

// pasteTypes lists the MIME types currently offered. An error here almost
// always means an empty clipboard, which is not worth surfacing every poll
// tick, so it is folded into "nothing available".
func pasteTypes() []string {
	out, err := exec.Command("wl-paste", "--list-types").Output()
	if err != nil {
		return nil
	}
	var types []string
	for _, line := range strings.Split(string(out), "\n") {
		if t := strings.TrimSpace(line); t != "" {
			types = append(types, t)
		}
	}
	return types
}

func paste(mime string, stripNewline bool) ([]byte, error) {
	args := []string{"--type", mime}
	if stripNewline {
		args = append(args, "--no-newline")
	}
	out, err := exec.Command("wl-paste", args...).Output()
	if err != nil {
		return nil, fmt.Errorf("wl-paste %s: %w", mime, err)
	}
	return out, nil
}

func copyTo(mime string, data []byte) error {
	var args []string
	if mime != "" {
		args = []string{"--type", mime}
	}
	cmd := exec.Command("wl-copy", args...)
	cmd.Stdin = bytes.NewReader(data)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("wl-copy: %w", err)
	}
	return nil
}

// uriListEntries resolves a text/uri-list body into file entries with sizes.
// Missing files and directories are skipped; the clipboard frequently offers
// stale URIs after a file manager refresh.
func uriListEntries(raw string) []protocol.FileEntry {
	var entries []protocol.FileEntry
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(strings.TrimSpace(line), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		path := strings.TrimPrefix(line, "file://")
		if decoded, err := url.PathUnescape(path); err == nil {
			path = decoded
		}
		fi, err := os.Stat(path)
		if err != nil || fi.IsDir() {
			continue
		}
		entries = append(entries, protocol.FileEntry{
			Path: path,
			Size: uint64(fi.Size()),
		})
	}
	return entries
}
