package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sdnlab/internal/config"
	"sdnlab/internal/emulation/domain"
	"sdnlab/internal/emulation/manager"
	"sdnlab/internal/emulation/repository"
	"sdnlab/internal/log"
)

// globals is shared by every subcommand. It is filled in before RunE.
type globals struct {
	configPath string
	cfg        config.Config
	log        *zap.Logger
}

func newRootCmd() *cobra.Command {
	g := &globals{log: zap.NewNop()}

	cmd := &cobra.Command{
		Use:   "sdnlab",
		Short: "Linear SDN lab with controller-managed DHCP and L3 routing",
		Args:  cobra.NoArgs,
		// Errors are printed by main.
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.configPath, cmd.Flags())
			if err != nil {
				return err
			}
			logger, err := log.New(cfg.Log)
			if err != nil {
				return err
			}
			g.cfg = cfg
			g.log = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			g.log.Sync()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&g.configPath, "config", "c", "", "TOML configuration file")
	flags.String("lab", "", "Lab name (default from config)")
	flags.String("state-dir", "", "Directory holding lab records")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.String("log-format", "", "Log format: console or json")

	cmd.AddCommand(
		newRunCmd(g),
		newTopoCmd(g),
		newListCmd(g),
		newExecCmd(g),
		newAttachCmd(g),
		newRemoveCmd(g),
		newCleanupCmd(g),
		newSampleConfigCmd(),
		newFakeControllerCmd(g),
	)
	return cmd
}

// runtime returns the Linux runtime for the configured lab.
func (g *globals) runtime() (*manager.LinuxRuntime, error) {
	repo, err := repository.NewLabRepository(g.cfg.Lab.StateDir)
	if err != nil {
		return nil, fmt.Errorf("open lab records: %w", err)
	}
	return manager.NewLinuxRuntime(repo, domain.NewOVS(nil), manager.Options{
		LabName:    g.cfg.Lab.Name,
		Controller: g.cfg.Controller.OpenFlowTarget(),
		Logger:     g.log,
	}), nil
}

// openLab opens the lab named by --lab or the configuration.
func (g *globals) openLab() (*manager.Network, error) {
	rt, err := g.runtime()
	if err != nil {
		return nil, err
	}
	return rt.Open(g.cfg.Lab.Name)
}
