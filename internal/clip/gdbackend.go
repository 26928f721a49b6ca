//go:build linux || windows || darwin

package clip

import (
	"golang.design/x/clipboard"

	"go.klb.dev/clipmesh/internal/protocol"
)

// gdBackend wraps golang.design/x/clipboard: text and PNG images, no file
// lists. Shared by the X11, Windows, and macOS selections.
type gdBackend struct {
	name string
}

func newGDBackend(name string) (Backend, error) {
	if err := clipboard.Init(); err != nil {
		return nil, err
	}
	return &gdBackend{name: name}, nil
}

func (b *gdBackend) Name() string { return b.name }

func (b *gdBackend) Caps() Caps {
	return Caps{
		ReadText: true, WriteText: true,
		ReadImage: true, WriteImage: true,
	}
}

func (b *gdBackend) Read() (*protocol.Content, error) {
	if img := clipboard.Read(clipboard.FmtImage); len(img) > 0 {
		return protocol.ImageContent(img, protocol.DefaultImageEncoding), nil
	}
	if text := clipboard.Read(clipboard.FmtText); len(text) > 0 {
		return protocol.TextContent(string(text)), nil
	}
	return nil, nil
}

func (b *gdBackend) Write(c *protocol.Content) error {
	switch c.Kind {
	case protocol.KindText:
		clipboard.Write(clipboard.FmtText, []byte(c.Text))
	case protocol.KindImage:
		clipboard.Write(clipboard.FmtImage, c.Image)
	default:
		return ErrUnsupported
	}
	return nil
}

func (b *gdBackend) Close() {}
