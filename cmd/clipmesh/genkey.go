package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"go.klb.dev/clipmesh/internal/crypto"
)

func newGenkeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "genkey",
		Short: "Generate a random shared secret key",
		Long: `Generates a fresh 32-byte key as 64 hex characters. Put the same key in
the secret_key config field on every machine in the mesh.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			key, err := crypto.NewKey()
			if err != nil {
				return err
			}
			fmt.Println(hex.EncodeToString(key[:]))
			return nil
		},
	}
}
