// Package config defines the engine configuration and loads it from viper.
//
// The engine owns the loaded Config for its whole lifetime; changing peers,
// ports, or keys requires a restart.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"go.klb.dev/clipmesh/internal/crypto"
	"go.klb.dev/clipmesh/internal/wire"
)

const (
	// DefaultMaxFileSize bounds the summed size of a file-list payload (10 MiB).
	DefaultMaxFileSize = 10 * 1024 * 1024

	// MaxFileSizeLimit caps max_file_size. File payloads travel as JSON with
	// base64 data, expanding the raw bytes by a third plus per-entry
	// framing; half the wire frame cap leaves room for that expansion, so a
	// payload that passes the size check always encodes to a frame every
	// receiver accepts.
	MaxFileSizeLimit = wire.MaxFrameSize / 2

	// DefaultPollInterval is how often the watcher re-reads the clipboard.
	DefaultPollInterval = 250 * time.Millisecond
)

// Peer is one remote node this engine pushes clipboard updates to.
type Peer struct {
	Host string `mapstructure:"host"`
	Port uint16 `mapstructure:"port"`
}

// Addr returns the dialable host:port form.
func (p Peer) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(int(p.Port)))
}

// Config is the validated engine configuration.
type Config struct {
	ListenPort   uint16
	SecretKey    *[crypto.KeySize]byte
	MaxFileSize  uint64
	Peers        []Peer
	InstanceID   string
	DownloadRoot string
	PollInterval time.Duration
}

// Load reads and validates the engine configuration from v.
// Keys: listen_port, secret_key (64 hex chars) or secret_passphrase,
// max_file_size, poll_interval, download_root, instance_id, and a peers
// list of {host, port} tables.
func Load(v *viper.Viper) (*Config, error) {
	v.SetDefault("max_file_size", DefaultMaxFileSize)
	v.SetDefault("poll_interval", DefaultPollInterval)

	cfg := &Config{
		ListenPort:   v.GetUint16("listen_port"),
		MaxFileSize:  v.GetUint64("max_file_size"),
		InstanceID:   v.GetString("instance_id"),
		DownloadRoot: v.GetString("download_root"),
		PollInterval: v.GetDuration("poll_interval"),
	}

	key, err := resolveKey(v.GetString("secret_key"), v.GetString("secret_passphrase"))
	if err != nil {
		return nil, err
	}
	cfg.SecretKey = key

	if err := v.UnmarshalKey("peers", &cfg.Peers); err != nil {
		return nil, fmt.Errorf("config: peers: %w", err)
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = defaultInstanceID()
	}
	if cfg.DownloadRoot == "" {
		cfg.DownloadRoot = defaultDownloadRoot()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the semantic constraints that are fatal at startup.
func (c *Config) Validate() error {
	if c.ListenPort == 0 {
		return fmt.Errorf("config: listen_port must be set")
	}
	if c.SecretKey == nil {
		return fmt.Errorf("config: no secret key")
	}
	if c.MaxFileSize == 0 {
		return fmt.Errorf("config: max_file_size must be > 0")
	}
	if c.MaxFileSize > MaxFileSizeLimit {
		return fmt.Errorf("config: max_file_size %d exceeds the %d byte limit",
			c.MaxFileSize, MaxFileSizeLimit)
	}
	for i, p := range c.Peers {
		if p.Host == "" {
			return fmt.Errorf("config: peer %d has no host", i)
		}
		if p.Port == 0 {
			return fmt.Errorf("config: peer %q has no port", p.Host)
		}
	}
	return nil
}

func resolveKey(keyHex, passphrase string) (*[crypto.KeySize]byte, error) {
	switch {
	case keyHex != "":
		key, err := crypto.KeyFromHex(keyHex)
		if err != nil {
			return nil, fmt.Errorf("config: secret_key: %w", err)
		}
		return key, nil
	case passphrase != "":
		key, err := crypto.DeriveKey(passphrase)
		if err != nil {
			return nil, fmt.Errorf("config: secret_passphrase: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("config: either secret_key or secret_passphrase is required")
	}
}

func defaultInstanceID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "clipmesh"
}

// defaultDownloadRoot picks the platform download directory; received file
// lists are materialised beneath it.
func defaultDownloadRoot() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "Downloads")
	}
	return "clipmesh-downloads"
}
