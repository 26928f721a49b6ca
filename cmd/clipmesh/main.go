// clipmesh: encrypted clipboard synchronisation for trusted local networks.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "clipmesh",
		Short: "Encrypted LAN clipboard synchronisation",
		Long: `clipmesh keeps the system clipboard of several machines on a trusted
local network in sync. Whichever machine copies last pushes its clipboard —
text, an image, or a set of files — encrypted to every configured peer.

Run "clipmesh run" on each machine with the same shared key ("clipmesh
genkey" makes one) and each machine listed as a peer of every other.

Config file search order (first found wins):
  /etc/clipmesh/clipmesh.toml
  $HOME/.config/clipmesh/clipmesh.toml
  path supplied via --config

Config keys can also be set via CLIPMESH_<KEY> env vars.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newRunCmd(),
		newGenkeyCmd(),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("clipmesh %s\n", Version)
		},
	}
}
