// Package commands implements the splitledger command line.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/mmynk/splitledger/internal/config"
	"github.com/mmynk/splitledger/pkg/logging"
)

// version is set at build time with -ldflags "-X .../commands.version=...".
var version = "dev"

var cfg *config.Config

func Execute() error {
	root := &cobra.Command{
		Use:          "splitledger",
		Short:        "Shared expense ledger with wallet settlement",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logging.Setup()
			var err error
			cfg, err = config.Load()
			return err
		},
	}

	root.AddCommand(serveCmd(), tokenCmd(), versionCmd())
	return root.Execute()
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("splitledger %s\n", version)
		},
	}
}
