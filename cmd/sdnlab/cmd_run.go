package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sdnlab/internal/controller"
	"sdnlab/internal/metrics"
	"sdnlab/internal/provision"
	"sdnlab/internal/topology"
)

const teardownTimeout = 30 * time.Second

func newRunCmd(g *globals) *cobra.Command {
	var flags struct {
		noWait bool
	}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build the lab, provision DHCP and routing, wait, then tear down",
		Long: `'run' builds a linear topology of N hosts and N-1 switches, connects the
switches to the controller and configures its DHCP and routing services.
Once every host has an address it waits for SIGINT or SIGTERM; use
'sdnlab exec' or 'sdnlab attach' from another terminal meanwhile.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runLab(cmd.Context(), g, flags.noWait)
		},
	}

	cmd.Flags().String("controller", "", "Controller address (default: discovered from controller.discover_interface)")
	cmd.Flags().Int("rest-port", 0, "Controller REST port")
	cmd.Flags().Int("hosts", 0, "Number of hosts")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&flags.noWait, "no-wait", false, "Tear down right after provisioning")
	return cmd
}

func runLab(ctx context.Context, g *globals, noWait bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := &g.cfg
	if err := cfg.ResolveController(); err != nil {
		return err
	}

	topo, err := topology.BuildLinear(cfg.Topology.Hosts)
	if err != nil {
		return err
	}
	plan, err := planFor(cfg.Plan, topo)
	if err != nil {
		return err
	}

	reg := metrics.NewRegistry()
	if cfg.Metrics.Addr != "" {
		srv := serveMetrics(cfg.Metrics.Addr, reg, g.log)
		defer srv.Shutdown(context.Background())
	}

	rt, err := g.runtime()
	if err != nil {
		return err
	}
	client := controller.NewClient(cfg.Controller.URL(),
		controller.WithHTTPClient(&http.Client{Timeout: cfg.Controller.Timeout.Duration}),
		controller.WithLogger(g.log.Named("controller")),
		controller.WithMetrics(reg),
	)
	orch := provision.New(client, rt, plan, provision.Options{
		SettleDelay:       cfg.Convergence.SettleDelay.Duration,
		PrivateResolvConf: cfg.Hosts.PrivateResolvConf,
		Waiter: &provision.Waiter{
			Interval: cfg.Convergence.PollInterval.Duration,
			Timeout:  cfg.Convergence.Timeout.Duration,
			Metrics:  reg,
		},
		Logger:  g.log.Named("provision"),
		Metrics: reg,
	})

	fmt.Printf("Building lab '%s': %s\n", cfg.Lab.Name, topo)
	fmt.Printf("Controller: %s (OpenFlow %s)\n", client.BaseURL(), cfg.Controller.OpenFlowTarget())

	sess := provision.NewSession(topo)
	provisionErr := orch.Provision(ctx, sess)
	if provisionErr == nil {
		fmt.Println("\n✓ Lab provisioned")
		printAddresses(topo, sess)
		if !noWait {
			fmt.Println("\nPress Ctrl-C to tear down.")
			<-ctx.Done()
		}
	}

	// The run context may already be cancelled.
	tctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	fmt.Println("\nTearing down...")
	if err := orch.Teardown(tctx, sess); err != nil {
		g.log.Warn("Teardown incomplete", zap.Error(err))
	} else {
		fmt.Println("✓ Lab removed")
	}

	if provisionErr != nil {
		var stageErr *provision.StageError
		if errors.As(provisionErr, &stageErr) {
			fmt.Printf("\n✗ Provisioning stopped at stage %d (%s)\n", int(stageErr.Stage), stageErr.Stage)
		}
		if hint := failureHint(provisionErr, cfg.Controller.Timeout.Duration); hint != "" {
			fmt.Println("  " + hint)
		}
	}
	return provisionErr
}

// failureHint suggests where to look for common provisioning failures.
func failureHint(err error, timeout time.Duration) string {
	var transport *controller.TransportError
	switch {
	case errors.As(err, &transport) && transport.Timeout():
		return fmt.Sprintf("The controller did not answer %s within %s (controller.timeout).", transport.Path, timeout)
	case errors.As(err, &transport):
		return "The controller is unreachable; check controller.host and controller.rest_port."
	case errors.Is(err, provision.ErrConvergenceTimeout):
		return "A host got no address; check /tmp/dhclient-<host>.log inside the lab."
	}
	return ""
}

// planFor returns the configured plan, or the default layout for topo.
func planFor(configured *provision.Plan, topo *topology.Topology) (provision.Plan, error) {
	var plan provision.Plan
	if configured != nil {
		plan = *configured
	} else {
		p, err := provision.DefaultPlan(topo)
		if err != nil {
			return provision.Plan{}, err
		}
		plan = p
	}
	if err := provision.ValidatePlan(plan, topo); err != nil {
		return provision.Plan{}, err
	}
	return plan, nil
}

func printAddresses(topo *topology.Topology, sess *provision.Session) {
	fmt.Printf("%-8s  %-10s  %-8s  %s\n", "HOST", "INTERFACE", "SWITCH", "ADDRESS")
	for _, host := range topo.Hosts() {
		intf, _ := topo.HostInterface(host.Name)
		sw, _ := topo.Attachment(host.Name)
		fmt.Printf("%-8s  %-10s  %-8s  %s\n", host.Name, intf, sw.Name, sess.Addresses[host.Name])
	}
}

func serveMetrics(addr string, reg *metrics.Registry, logger *zap.Logger) *http.Server {
	r := chi.NewRouter()
	r.Handle("/metrics", reg.Handler())
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("Serving metrics", zap.String("addr", addr))
	return srv
}
