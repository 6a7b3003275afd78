package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sdnlab/internal/topology"
)

func newTopoCmd(g *globals) *cobra.Command {
	var flags struct {
		json bool
	}

	cmd := &cobra.Command{
		Use:   "topo",
		Short: "Print the topology and provisioning plan without building anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			topo, err := topology.BuildLinear(g.cfg.Topology.Hosts)
			if err != nil {
				return err
			}
			if err := topo.Validate(); err != nil {
				return err
			}
			plan, err := planFor(g.cfg.Plan, topo)
			if err != nil {
				return err
			}

			if flags.json {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"topology": topo, "plan": plan})
			}

			fmt.Println(topo)
			fmt.Println()
			for _, sw := range topo.Switches() {
				fmt.Printf("  %-6s dpid=%-4s %v\n", sw.Name, sw.DPID, sw.Protocols)
			}
			for _, host := range topo.Hosts() {
				intf, err := topo.HostInterface(host.Name)
				if err != nil {
					return err
				}
				sw, err := topo.Attachment(host.Name)
				if err != nil {
					return err
				}
				fmt.Printf("  %-6s %s -> %s\n", host.Name, intf, sw.Name)
			}

			fmt.Println()
			for _, inst := range plan.Instances {
				fmt.Printf("  dhcp %s: %s-%s router %s switches %v\n",
					inst.Name, inst.StartIP, inst.EndIP, inst.RouterIP, inst.Switches)
			}
			fmt.Printf("  gateway %s (%s): %d interfaces, switches %v\n",
				plan.Gateway.Name, plan.Gateway.IP, len(plan.Gateway.Interfaces), plan.Gateway.Switches)
			return nil
		},
	}

	cmd.Flags().Int("hosts", 0, "Number of hosts")
	cmd.Flags().BoolVar(&flags.json, "json", false, "Print as JSON")
	return cmd
}
