package main

import (
	"errors"
	"fmt"

	"github.com/docker/docker/pkg/stringid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRemoveCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <lab-id|name>...",
		Aliases: []string{"remove"},
		Short:   "Remove labs left behind by an interrupted run",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			rt, err := g.runtime()
			if err != nil {
				return err
			}
			var errs []error
			for _, ref := range args {
				n, err := rt.Open(ref)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				lab := n.Lab()
				fmt.Printf("Deleting lab '%s' (ID: %s)...\n", lab.Name, stringid.TruncateID(lab.ID))
				if err := n.Stop(cmd.Context()); err != nil {
					errs = append(errs, fmt.Errorf("remove lab %s: %w", lab.Name, err))
					continue
				}
				fmt.Println("✓ Deleted")
			}
			return errors.Join(errs...)
		},
	}
}

func newCleanupCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove every lab",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			rt, err := g.runtime()
			if err != nil {
				return err
			}
			labs, err := rt.List()
			if err != nil {
				return err
			}
			if len(labs) == 0 {
				fmt.Println("No labs to clean up")
				return nil
			}

			fmt.Printf("Cleaning up %d lab(s)...\n", len(labs))
			failed := 0
			for _, lab := range labs {
				n, err := rt.Open(lab.ID)
				if err == nil {
					err = n.Stop(cmd.Context())
				}
				if err != nil {
					failed++
					g.log.Warn("Removing lab failed", zap.String("lab", lab.Name), zap.Error(err))
					continue
				}
				fmt.Printf("  ✓ %s\n", lab.Name)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d labs could not be removed", failed, len(labs))
			}
			fmt.Println("✓ Cleanup complete")
			return nil
		},
	}
}
