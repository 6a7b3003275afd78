package main

import (
	"fmt"

	"github.com/docker/docker/pkg/stringid"
	"github.com/spf13/cobra"
)

func newListCmd(g *globals) *cobra.Command {
	var flags struct {
		showHosts bool
	}

	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List labs",
		Args:    cobra.NoArgs,
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

			// Docker-like format
			fmt.Printf("%-12s  %-10s  %-6s  %-8s  %-8s  %-24s  %s\n",
				"LAB ID", "NAME", "HOSTS", "SWITCHES", "STARTED", "CONTROLLER", "CREATED")
			for _, lab := range labs {
				fmt.Printf("%-12s  %-10s  %-6d  %-8d  %-8t  %-24s  %s\n",
					stringid.TruncateID(lab.ID),
					lab.Name,
					len(lab.Hosts),
					len(lab.Bridges),
					lab.Started,
					lab.Controller,
					lab.CreatedAt,
				)
			}

			if !flags.showHosts {
				return nil
			}
			for _, lab := range labs {
				n, err := rt.Open(lab.ID)
				if err != nil {
					return err
				}
				fmt.Printf("\n%s:\n", lab.Name)
				for _, host := range lab.Hosts {
					addr := "-"
					if a, ok, err := n.CurrentAddress(cmd.Context(), host.Name); err == nil && ok {
						addr = a.String()
					}
					ns := "-"
					if host.Namespace != nil {
						ns = host.Namespace.Name
					}
					fmt.Printf("  %-6s  %-10s  %-24s  %s\n", host.Name, host.Interface, ns, addr)
				}
			}
			return nil
		},
	}

	// Not "hosts": that flag name sets topology.hosts.
	cmd.Flags().BoolVar(&flags.showHosts, "show-hosts", false, "Also list hosts with their current address")
	return cmd
}
