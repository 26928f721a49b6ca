package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipmesh/internal/clip"
	"go.klb.dev/clipmesh/internal/config"
	"go.klb.dev/clipmesh/internal/engine"
)

func newRunCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the clipboard sync engine",
		Long: `Starts the sync engine: watches the local clipboard, pushes changes
encrypted to every configured peer, and applies updates received from them.

Engine settings (listen_port, secret_key, peers, max_file_size, …) come from
the config file or CLIPMESH_* env vars; see the root help for the search
order. Example config:

  listen_port = 8931
  secret_key  = "<64 hex chars, from "clipmesh genkey">"

  [[peers]]
  host = "192.168.1.20"
  port = 8931`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runEngine(v) },
	}

	addLoggingFlags(cmd)
	addConfigFlag(cmd)
	return cmd
}

func runEngine(v *viper.Viper) error {
	setupLogging(v)

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	slog.Info("clipmesh starting",
		"version", Version,
		"listen_port", cfg.ListenPort,
		"peers", len(cfg.Peers),
		"max_file_size", cfg.MaxFileSize,
	)

	backend := clip.New()
	defer backend.Close()

	eng, err := engine.New(cfg, backend)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go logEvents(eng.Events())

	return eng.Run(ctx)
}

// logEvents drains the engine's observational event stream. A tray or UI
// layer would consume this instead; the daemon just logs it.
func logEvents(events <-chan engine.Event) {
	for ev := range events {
		switch ev := ev.(type) {
		case engine.PeerStateEvent:
			if ev.Err != nil {
				slog.Debug("peer event", "peer", ev.Addr, "state", ev.State, "err", ev.Err)
			} else {
				slog.Debug("peer event", "peer", ev.Addr, "state", ev.State)
			}
		case engine.AppliedEvent:
			slog.Debug("applied event", "origin", ev.Origin, "kind", ev.Kind, "bytes", ev.Bytes)
		}
	}
}
