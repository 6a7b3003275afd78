package main

import (
	"os"

	"github.com/spf13/cobra"

	"sdnlab/internal/config"
)

func newSampleConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sample-config",
		Short: "Print a configuration file with every default",
		Args:  cobra.NoArgs,
		// Needs no configuration of its own.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			raw, err := config.Sample()
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(raw)
			return err
		},
	}
}
