// Package crypto provides the authenticated encryption for clipmesh frames.
//
// Every node shares one 32-byte ChaCha20-Poly1305 key. Each payload is
// encrypted with a fresh random 12-byte nonce prepended to the ciphertext:
//
//	[ 12-byte nonce ][ ciphertext || 16-byte tag ]
//
// Nonces are never reused or persisted; reuse under a fixed key would void
// the cipher's guarantees. Authentication failure means a wrong key,
// tampering, or corruption — callers must drop the connection, never fall
// back to plaintext.
//
// The key is normally supplied as 64 hex characters. DeriveKey offers an
// HKDF-SHA256 alternative for installs that prefer a shared passphrase.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the required symmetric key length in bytes.
const KeySize = chacha20poly1305.KeySize

// NonceSize is the per-message nonce length in bytes.
const NonceSize = chacha20poly1305.NonceSize

// Overhead is the sealing overhead per message: nonce plus auth tag.
const Overhead = NonceSize + chacha20poly1305.Overhead

// ErrDecrypt reports an authentication failure: wrong key, tampered
// ciphertext, or a truncated message.
var ErrDecrypt = errors.New("decryption failed")

var hkdfInfo = []byte("clipmesh-v1")

// KeyFromHex decodes a 64-character hex string into a key.
func KeyFromHex(s string) (*[KeySize]byte, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("secret key is not valid hex: %w", err)
	}
	if len(raw) != KeySize {
		return nil, fmt.Errorf("secret key must be %d bytes, got %d", KeySize, len(raw))
	}
	var key [KeySize]byte
	copy(key[:], raw)
	return &key, nil
}

// DeriveKey derives a key from a shared passphrase using HKDF-SHA256.
// All nodes must use the same passphrase to derive the same key.
func DeriveKey(passphrase string) (*[KeySize]byte, error) {
	h := hkdf.New(sha256.New, []byte(passphrase), nil, hkdfInfo)
	var key [KeySize]byte
	if _, err := io.ReadFull(h, key[:]); err != nil {
		return nil, fmt.Errorf("key derivation: %w", err)
	}
	return &key, nil
}

// NewKey generates a random key.
func NewKey() (*[KeySize]byte, error) {
	var key [KeySize]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return nil, fmt.Errorf("key generation: %w", err)
	}
	return &key, nil
}

// Seal encrypts plaintext with key under a fresh random nonce.
// Returns nonce+ciphertext+tag.
func Seal(plaintext []byte, key *[KeySize]byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("cipher init: %w", err)
	}
	out := make([]byte, NonceSize, NonceSize+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, out[:NonceSize]); err != nil {
		return nil, fmt.Errorf("nonce generation: %w", err)
	}
	return aead.Seal(out, out[:NonceSize], plaintext, nil), nil
}

// Open authenticates and decrypts a nonce+ciphertext+tag message.
func Open(sealed []byte, key *[KeySize]byte) ([]byte, error) {
	if len(sealed) < Overhead {
		return nil, fmt.Errorf("%w: message shorter than nonce and tag", ErrDecrypt)
	}
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("cipher init: %w", err)
	}
	plain, err := aead.Open(nil, sealed[:NonceSize], sealed[NonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: wrong key or tampered data", ErrDecrypt)
	}
	return plain, nil
}
