// Package protocol defines the clipmesh payload: the decrypted logical
// message exchanged between nodes.
//
// A payload serialises to a compact binary record:
//
//	[ u8 origin len ][ origin ][ u8 kind ][ u64 BE body len ][ body ]
//
// The body depends on the kind:
//
//	text  — raw UTF-8 bytes
//	image — [ u8 encoding len ][ encoding ][ raw image bytes ]
//	files — JSON array of file entries, data base64-encoded
//
// The body length field must match the actual body length; a mismatch means
// the record was corrupted or truncated and decoding fails with ErrMalformed.
// Framing and encryption live in the wire and crypto packages — this package
// only knows about plaintext bytes.
package protocol

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"unicode/utf8"
)

// ErrMalformed reports a structurally invalid payload record.
var ErrMalformed = errors.New("malformed payload")

// Kind identifies the active clipboard content variant.
type Kind uint8

const (
	KindText  Kind = 1
	KindImage Kind = 2
	KindFiles Kind = 3
)

// String returns the kind name for logging.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindFiles:
		return "files"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k Kind) valid() bool { return k >= KindText && k <= KindFiles }

// DefaultImageEncoding is assumed when an image record carries no encoding tag.
const DefaultImageEncoding = "png"

// FileEntry is one file in a files payload. On the sending side Data may be
// nil until the engine loads it from disk; on the wire and on the receiving
// side Data always holds the file content.
type FileEntry struct {
	Path string `json:"path"`
	Size uint64 `json:"size"`
	Data []byte `json:"data,omitempty"`
}

// Content is the clipboard payload: exactly one variant is active, selected
// by Kind.
type Content struct {
	Kind Kind

	Text string

	Image         []byte
	ImageEncoding string

	Files []FileEntry
}

// TextContent wraps a string as text content.
func TextContent(s string) *Content {
	return &Content{Kind: KindText, Text: s}
}

// ImageContent wraps raw image bytes. An empty encoding defaults to "png".
func ImageContent(data []byte, encoding string) *Content {
	if encoding == "" {
		encoding = DefaultImageEncoding
	}
	return &Content{Kind: KindImage, Image: data, ImageEncoding: encoding}
}

// FilesContent wraps a file entry list.
func FilesContent(entries []FileEntry) *Content {
	return &Content{Kind: KindFiles, Files: entries}
}

// TotalFileSize returns the summed declared size of all file entries.
// Zero for non-file content.
func (c *Content) TotalFileSize() uint64 {
	var total uint64
	for _, f := range c.Files {
		total += f.Size
	}
	return total
}

// ByteSize returns a rough content size for logging and events.
func (c *Content) ByteSize() uint64 {
	switch c.Kind {
	case KindText:
		return uint64(len(c.Text))
	case KindImage:
		return uint64(len(c.Image))
	case KindFiles:
		return c.TotalFileSize()
	}
	return 0
}

// Fingerprint is a digest of clipboard content, used to recognise content the
// engine just applied so it is not broadcast back into the mesh.
type Fingerprint [sha256.Size]byte

// Fingerprint digests the content. File lists hash each entry's base name and
// size rather than its full path or bytes, so the same logical list
// fingerprints identically on the sender (original paths) and the receiver
// (download directory paths).
func (c *Content) Fingerprint() Fingerprint {
	h := sha256.New()
	h.Write([]byte{byte(c.Kind)})
	switch c.Kind {
	case KindText:
		io.WriteString(h, c.Text)
	case KindImage:
		h.Write(c.Image)
	case KindFiles:
		var sz [8]byte
		for _, f := range c.Files {
			io.WriteString(h, filepath.Base(filepath.ToSlash(f.Path)))
			binary.BigEndian.PutUint64(sz[:], f.Size)
			h.Write(sz[:])
		}
	}
	var fp Fingerprint
	h.Sum(fp[:0])
	return fp
}

// Payload is the logical unit exchanged between nodes: the originating
// node's identifier plus the clipboard content it observed.
type Payload struct {
	Origin  string
	Content *Content
}

// MarshalBinary serialises the payload.
func (p *Payload) MarshalBinary() ([]byte, error) {
	if len(p.Origin) > 255 {
		return nil, fmt.Errorf("%w: origin id too long (%d bytes)", ErrMalformed, len(p.Origin))
	}
	if p.Content == nil || !p.Content.Kind.valid() {
		return nil, fmt.Errorf("%w: no content variant", ErrMalformed)
	}

	body, err := marshalBody(p.Content)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, 2+len(p.Origin)+8+len(body))
	buf = append(buf, byte(len(p.Origin)))
	buf = append(buf, p.Origin...)
	buf = append(buf, byte(p.Content.Kind))
	buf = binary.BigEndian.AppendUint64(buf, uint64(len(body)))
	buf = append(buf, body...)
	return buf, nil
}

// Unmarshal parses a serialised payload, validating its structure.
func Unmarshal(b []byte) (*Payload, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("%w: empty record", ErrMalformed)
	}
	originLen := int(b[0])
	b = b[1:]
	if len(b) < originLen+1+8 {
		return nil, fmt.Errorf("%w: truncated header", ErrMalformed)
	}
	origin := string(b[:originLen])
	kind := Kind(b[originLen])
	bodyLen := binary.BigEndian.Uint64(b[originLen+1 : originLen+9])
	body := b[originLen+9:]

	if !kind.valid() {
		return nil, fmt.Errorf("%w: unknown content kind %d", ErrMalformed, kind)
	}
	if uint64(len(body)) != bodyLen {
		return nil, fmt.Errorf("%w: body length %d does not match declared %d",
			ErrMalformed, len(body), bodyLen)
	}

	content, err := unmarshalBody(kind, body)
	if err != nil {
		return nil, err
	}
	return &Payload{Origin: origin, Content: content}, nil
}

func marshalBody(c *Content) ([]byte, error) {
	switch c.Kind {
	case KindText:
		return []byte(c.Text), nil
	case KindImage:
		enc := c.ImageEncoding
		if enc == "" {
			enc = DefaultImageEncoding
		}
		if len(enc) > 255 {
			return nil, fmt.Errorf("%w: image encoding tag too long", ErrMalformed)
		}
		body := make([]byte, 0, 1+len(enc)+len(c.Image))
		body = append(body, byte(len(enc)))
		body = append(body, enc...)
		body = append(body, c.Image...)
		return body, nil
	case KindFiles:
		if len(c.Files) == 0 {
			return nil, fmt.Errorf("%w: empty file list", ErrMalformed)
		}
		body, err := json.Marshal(c.Files)
		if err != nil {
			return nil, fmt.Errorf("encode file entries: %w", err)
		}
		return body, nil
	}
	return nil, fmt.Errorf("%w: unknown content kind %d", ErrMalformed, c.Kind)
}

func unmarshalBody(kind Kind, body []byte) (*Content, error) {
	switch kind {
	case KindText:
		if !utf8.Valid(body) {
			return nil, fmt.Errorf("%w: text body is not valid UTF-8", ErrMalformed)
		}
		return TextContent(string(body)), nil
	case KindImage:
		if len(body) < 1 {
			return nil, fmt.Errorf("%w: image body missing encoding tag", ErrMalformed)
		}
		encLen := int(body[0])
		if len(body) < 1+encLen {
			return nil, fmt.Errorf("%w: image body shorter than encoding tag", ErrMalformed)
		}
		enc := string(body[1 : 1+encLen])
		return ImageContent(body[1+encLen:], enc), nil
	case KindFiles:
		var entries []FileEntry
		if err := json.Unmarshal(body, &entries); err != nil {
			return nil, fmt.Errorf("%w: file entries: %v", ErrMalformed, err)
		}
		if len(entries) == 0 {
			return nil, fmt.Errorf("%w: empty file list", ErrMalformed)
		}
		return FilesContent(entries), nil
	}
	return nil, fmt.Errorf("%w: unknown content kind %d", ErrMalformed, kind)
}
