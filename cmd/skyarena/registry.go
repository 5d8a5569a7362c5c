package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"skyarena/internal/logging"
	"skyarena/internal/registry"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Manage fences and safe zones",
}

var registryImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Seed fences and safe zones from YAML",
	Long:  "import validates every entry of FILE and then upserts them. A running server picks the change up on its next registry refresh.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, closer, err := setup()
		if err != nil {
			return err
		}
		defer closer.Close()
		seed, err := registry.LoadSeed(args[0])
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()
		ctx = logging.NewContext(ctx, log)
		db, err := openStore(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer db.Close()
		fences, zones, err := registry.Import(ctx, db, seed)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d fences, %d safe zones\n", fences, zones)
		return nil
	},
}

func init() {
	registryCmd.AddCommand(registryImportCmd)
}
