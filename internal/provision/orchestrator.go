// Package provision drives the controller and the emulated network through
// the DHCP and L3 provisioning sequence.
package provision

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"go.uber.org/zap"

	"sdnlab/internal/controller"
	"sdnlab/internal/emulation"
	"sdnlab/internal/metrics"
	"sdnlab/internal/topology"
)

// Controller is the part of the controller API the orchestrator uses.
type Controller interface {
	EnableDHCP(ctx context.Context, cfg controller.DHCPConfig) (*controller.Result, error)
	CreateDHCPInstance(ctx context.Context, inst controller.DHCPInstance) (*controller.Result, error)
	BindSwitchesToInstance(ctx context.Context, name string, dpids []topology.DPID) (*controller.Result, error)
	SetRouting(ctx context.Context, enable bool) (*controller.Result, error)
	CreateGateway(ctx context.Context, gw controller.Gateway) (*controller.Result, error)
	AddGatewayInterfaces(ctx context.Context, name string, intfs []controller.GatewayInterface) (*controller.Result, error)
	BindSwitchesToGateway(ctx context.Context, name, gatewayIP string, dpids []topology.DPID) (*controller.Result, error)
	DeleteGateway(ctx context.Context, name string) (*controller.Result, error)
}

type Options struct {
	// SettleDelay is waited between binding DHCP switches and starting the
	// host clients.
	SettleDelay time.Duration
	// PrivateResolvConf runs each host's dhclient over a private copy of
	// /etc.
	PrivateResolvConf bool

	Waiter  *Waiter
	Logger  *zap.Logger
	Metrics *metrics.Registry
}

// Orchestrator runs the provisioning sequence. It holds no per-run state;
// everything a run creates lives in its Session.
type Orchestrator struct {
	ctrl    Controller
	runtime emulation.Runtime
	plan    Plan
	opts    Options
	log     *zap.Logger
}

func New(ctrl Controller, runtime emulation.Runtime, plan Plan, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Waiter == nil {
		opts.Waiter = &Waiter{Interval: time.Second}
	}
	if opts.Waiter.Logger == nil {
		opts.Waiter.Logger = opts.Logger
	}
	return &Orchestrator{
		ctrl:    ctrl,
		runtime: runtime,
		plan:    plan,
		opts:    opts,
		log:     opts.Logger,
	}
}

// Session is the context of one provisioning run.
type Session struct {
	Topology *topology.Topology
	Network  emulation.Network
	State    State
	// Addresses holds the address each host acquired.
	Addresses map[string]netip.Addr

	// clients has an entry for every host a DHCP client was started on,
	// true once the start succeeded.
	clients map[string]bool
}

func NewSession(topo *topology.Topology) *Session {
	return &Session{
		Topology:  topo,
		Addresses: map[string]netip.Addr{},
		clients:   map[string]bool{},
	}
}

// Provision runs every stage in order and stops at the first failure,
// which is returned as a *StageError. The session records how far it got.
func (o *Orchestrator) Provision(ctx context.Context, sess *Session) error {
	steps := []struct {
		stage Stage
		run   func(context.Context, *Session) (*controller.Result, error)
	}{
		{StageStartNetwork, o.startNetwork},
		{StageEnableDHCP, o.enableDHCP},
		{StageCreateInstances, o.createInstances},
		{StageBindInstanceSwitches, o.bindInstanceSwitches},
		{StageWaitForAddresses, o.waitForAddresses},
		{StageEnableRouting, o.enableRouting},
		{StageCreateGateway, o.createGateway},
		{StageAttachInterfaces, o.attachInterfaces},
		{StageBindGatewaySwitches, o.bindGatewaySwitches},
	}

	for _, step := range steps {
		if sess.State.Completed(step.stage) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return &StageError{Stage: step.stage, Err: err}
		}

		o.log.Info("Running stage", zap.Int("index", int(step.stage)), zap.Stringer("stage", step.stage))
		start := time.Now()
		res, err := step.run(ctx, sess)
		o.opts.Metrics.RecordStage(step.stage.String(), time.Since(start), err)
		if err != nil {
			o.log.Error("Stage failed",
				zap.Stringer("stage", step.stage),
				zap.Stringer("response", res),
				zap.Error(err),
			)
			return &StageError{Stage: step.stage, Result: res, Err: err}
		}
		if res != nil {
			o.log.Debug("Stage acknowledged", zap.Stringer("stage", step.stage), zap.Stringer("response", res))
		}
		if err := sess.State.Complete(step.stage); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) startNetwork(ctx context.Context, sess *Session) (*controller.Result, error) {
	if sess.Network == nil {
		network, err := o.runtime.Build(ctx, sess.Topology)
		if err != nil {
			return nil, fmt.Errorf("build network: %w", err)
		}
		sess.Network = network
	}
	if err := sess.Network.Start(ctx); err != nil {
		return nil, fmt.Errorf("start network: %w", err)
	}
	return nil, nil
}

func (o *Orchestrator) enableDHCP(ctx context.Context, _ *Session) (*controller.Result, error) {
	return o.ctrl.EnableDHCP(ctx, controller.DHCPConfig{
		Enable:        true,
		LeaseGCPeriod: o.plan.DHCP.LeaseGCPeriod,
		DynamicLease:  o.plan.DHCP.DynamicLease,
	})
}

func (o *Orchestrator) createInstances(ctx context.Context, _ *Session) (*controller.Result, error) {
	var last *controller.Result
	for _, inst := range o.plan.Instances {
		res, err := o.ctrl.CreateDHCPInstance(ctx, inst.Wire())
		if err != nil {
			return res, fmt.Errorf("create dhcp instance %s: %w", inst.Name, err)
		}
		last = res
	}
	return last, nil
}

func (o *Orchestrator) bindInstanceSwitches(ctx context.Context, _ *Session) (*controller.Result, error) {
	var last *controller.Result
	for _, inst := range o.plan.Instances {
		res, err := o.ctrl.BindSwitchesToInstance(ctx, inst.Name, inst.Switches)
		if err != nil {
			return res, fmt.Errorf("bind switches to dhcp instance %s: %w", inst.Name, err)
		}
		last = res
	}
	return last, nil
}

func (o *Orchestrator) waitForAddresses(ctx context.Context, sess *Session) (*controller.Result, error) {
	if o.opts.SettleDelay > 0 {
		timer := time.NewTimer(o.opts.SettleDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	for _, host := range sess.Topology.Hosts() {
		intf, err := sess.Topology.HostInterface(host.Name)
		if err != nil {
			return nil, err
		}
		sh := hostShell{net: sess.Network, host: host.Name, intf: intf}

		if !sess.clients[host.Name] {
			if err := sh.releaseLease(ctx); err != nil {
				o.log.Warn("Releasing lease failed", zap.String("host", host.Name), zap.Error(err))
			}
			sess.clients[host.Name] = false
			if err := sh.startDHCPClient(ctx, o.opts.PrivateResolvConf); err != nil {
				return nil, err
			}
			sess.clients[host.Name] = true
		}

		addr, err := o.opts.Waiter.WaitForAddress(ctx, sess.Network, host.Name)
		if err != nil {
			return nil, err
		}
		sess.Addresses[host.Name] = addr
		o.log.Info("Host acquired address",
			zap.String("host", host.Name),
			zap.Stringer("addr", addr),
			zap.String("nameserver", sh.nameserver(ctx, o.opts.PrivateResolvConf)),
		)
	}
	return nil, nil
}

func (o *Orchestrator) enableRouting(ctx context.Context, _ *Session) (*controller.Result, error) {
	return o.ctrl.SetRouting(ctx, true)
}

func (o *Orchestrator) createGateway(ctx context.Context, _ *Session) (*controller.Result, error) {
	return o.ctrl.CreateGateway(ctx, controller.Gateway{Name: o.plan.Gateway.Name, MAC: o.plan.Gateway.MAC})
}

func (o *Orchestrator) attachInterfaces(ctx context.Context, _ *Session) (*controller.Result, error) {
	return o.ctrl.AddGatewayInterfaces(ctx, o.plan.Gateway.Name, o.plan.Gateway.WireInterfaces())
}

func (o *Orchestrator) bindGatewaySwitches(ctx context.Context, _ *Session) (*controller.Result, error) {
	gw := o.plan.Gateway
	return o.ctrl.BindSwitchesToGateway(ctx, gw.Name, gw.IP, gw.Switches)
}

// Teardown deletes the gateway if it was created, then stops the host DHCP
// clients along with the network. DHCP instances and the DHCP and routing
// service flags stay on the controller. All failures are joined.
func (o *Orchestrator) Teardown(ctx context.Context, sess *Session) error {
	var errs []error

	if sess.State.Completed(StageCreateGateway) {
		o.log.Info("Deleting gateway", zap.String("gateway", o.plan.Gateway.Name))
		if _, err := o.ctrl.DeleteGateway(ctx, o.plan.Gateway.Name); err != nil {
			errs = append(errs, fmt.Errorf("delete gateway %s: %w", o.plan.Gateway.Name, err))
		}
	}

	if sess.Network != nil {
		for _, host := range sess.Topology.Hosts() {
			if _, ok := sess.clients[host.Name]; !ok {
				continue
			}
			intf, err := sess.Topology.HostInterface(host.Name)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			sh := hostShell{net: sess.Network, host: host.Name, intf: intf}
			if err := sh.stopDHCPClient(ctx); err != nil {
				errs = append(errs, err)
			}
			delete(sess.clients, host.Name)
		}

		o.log.Info("Tearing down network")
		if err := sess.Network.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop network: %w", err))
		}
	}
	return errors.Join(errs...)
}
