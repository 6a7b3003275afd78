package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newExecCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec <host> <command> [args...]",
		Short: "Execute a command on a lab host",
		Example: `  sdnlab exec h1 ip addr show
  sdnlab exec h2 -- ping -c 3 10.0.0.1`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			n, err := g.openLab()
			if err != nil {
				return err
			}
			host, argv := args[0], args[1:]
			g.log.Debug("Executing: " + strings.Join(argv, " "))

			code, err := n.Exec(cmd.Context(), host, argv...)
			if err != nil {
				return err
			}
			if code != 0 {
				g.log.Sync()
				os.Exit(code)
			}
			return nil
		},
	}
	// Everything after the host belongs to the command.
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func newAttachCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "attach <host>",
		Short: "Open a shell on a lab host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			n, err := g.openLab()
			if err != nil {
				return err
			}
			fmt.Printf("Attaching to '%s' in lab '%s' (exit to leave)\n", args[0], n.Lab().Name)
			return n.Attach(args[0])
		},
	}
}
