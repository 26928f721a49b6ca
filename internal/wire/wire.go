// Package wire handles reading and writing encrypted clipmesh frames over a
// net.Conn.
//
// Wire format, one frame per message:
//
//	[ u32 BE length ][ 12-byte nonce ][ ciphertext || 16-byte tag ]
//
// The length covers everything after itself. Frames are independent of TCP
// segmentation; the reader blocks until a whole frame has arrived. There is
// no version byte — the format is fixed, and a node that cannot authenticate
// a frame drops the connection rather than negotiating.
package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go.klb.dev/clipmesh/internal/crypto"
	"go.klb.dev/clipmesh/internal/protocol"
)

const (
	// MaxFrameSize is the largest frame body we will read (50 MiB). The
	// length prefix is checked against it before any allocation so a
	// malicious or corrupted peer cannot exhaust memory.
	MaxFrameSize = 50 * 1024 * 1024

	writeDeadline = 5 * time.Second
)

// ErrFrameTooLarge reports a length prefix above MaxFrameSize.
var ErrFrameTooLarge = errors.New("frame too large")

// Encode serialises and encrypts a payload into a complete frame, length
// prefix included. Each call uses a fresh nonce, so the same payload encodes
// differently every time.
func Encode(key *[crypto.KeySize]byte, p *protocol.Payload) ([]byte, error) {
	plain, err := p.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	sealed, err := crypto.Seal(plain, key)
	if err != nil {
		return nil, fmt.Errorf("encrypt payload: %w", err)
	}
	frame := make([]byte, 0, 4+len(sealed))
	frame = binary.BigEndian.AppendUint32(frame, uint32(len(sealed)))
	return append(frame, sealed...), nil
}

// Decode authenticates and parses one frame body (everything after the
// length prefix).
func Decode(key *[crypto.KeySize]byte, body []byte) (*protocol.Payload, error) {
	plain, err := crypto.Open(body, key)
	if err != nil {
		return nil, err
	}
	return protocol.Unmarshal(plain)
}

// Conn wraps a net.Conn with buffered frame reading and encryption.
type Conn struct {
	conn net.Conn
	br   *bufio.Reader
	key  *[crypto.KeySize]byte
}

// New wraps conn. All frames are encrypted under key.
func New(conn net.Conn, key *[crypto.KeySize]byte) *Conn {
	return &Conn{
		conn: conn,
		br:   bufio.NewReaderSize(conn, 64*1024),
		key:  key,
	}
}

// SetReadDeadline sets or clears the read deadline.
func (c *Conn) SetReadDeadline(d time.Duration) {
	if d == 0 {
		_ = c.conn.SetReadDeadline(time.Time{})
	} else {
		_ = c.conn.SetReadDeadline(time.Now().Add(d))
	}
}

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.conn.Close() }

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// WriteFrame writes an already encoded frame with a write deadline.
func (c *Conn) WriteFrame(frame []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	_, err := c.conn.Write(frame)
	_ = c.conn.SetWriteDeadline(time.Time{})
	return err
}

// WritePayload encodes and writes one payload.
func (c *Conn) WritePayload(p *protocol.Payload) error {
	frame, err := Encode(c.key, p)
	if err != nil {
		return err
	}
	return c.WriteFrame(frame)
}

// ReadPayload reads one frame, authenticates it, and parses the payload.
// A too-large length prefix fails with ErrFrameTooLarge before the body is
// read; an unauthentic body fails with crypto.ErrDecrypt; a structurally
// invalid plaintext fails with protocol.ErrMalformed. All three mean the
// caller should drop the connection.
func (c *Conn) ReadPayload() (*protocol.Payload, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(c.br, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, length, MaxFrameSize)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(c.br, body); err != nil {
		return nil, err
	}
	return Decode(c.key, body)
}
