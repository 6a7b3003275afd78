// Package manager realizes topologies on the local Linux host with network
// namespaces, veth pairs and Open vSwitch bridges.
package manager

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"

	"go.uber.org/zap"

	"sdnlab/internal/emulation"
	"sdnlab/internal/emulation/domain"
	"sdnlab/internal/emulation/repository"
	"sdnlab/internal/topology"
)

var ErrLabExists = errors.New("lab already exists")

type Options struct {
	// LabName names the lab and prefixes its namespaces.
	LabName string
	// Controller is the OpenFlow target of every bridge, e.g.
	// tcp:192.168.56.1:6653.
	Controller string
	Logger     *zap.Logger
}

// LinuxRuntime builds labs and records them in a repository so that other
// sdnlab processes can find them.
type LinuxRuntime struct {
	repo *repository.LabRepository
	ovs  *domain.OVS
	opts Options
	log  *zap.Logger
}

var _ emulation.Runtime = (*LinuxRuntime)(nil)

func NewLinuxRuntime(repo *repository.LabRepository, ovs *domain.OVS, opts Options) *LinuxRuntime {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LinuxRuntime{repo: repo, ovs: ovs, opts: opts, log: logger}
}

// Build creates every namespace, bridge and link of topo. On failure
// whatever was created is removed again.
func (r *LinuxRuntime) Build(ctx context.Context, topo *topology.Topology) (emulation.Network, error) {
	if _, err := r.repo.FindByName(r.opts.LabName); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrLabExists, r.opts.LabName)
	} else if !errors.Is(err, repository.ErrLabNotFound) {
		return nil, err
	}

	n := &Network{
		lab:  domain.NewLab(r.opts.LabName, r.opts.Controller),
		repo: r.repo,
		ovs:  r.ovs,
		log:  r.log.With(zap.String("lab", r.opts.LabName)),
	}
	if err := n.build(ctx, topo); err != nil {
		if derr := n.Stop(ctx); derr != nil {
			n.log.Warn("Rolling back partial lab failed", zap.Error(derr))
		}
		return nil, fmt.Errorf("build lab %s: %w", r.opts.LabName, err)
	}
	return n, nil
}

// Open returns the recorded lab matching ref, by name or ID prefix.
func (r *LinuxRuntime) Open(ref string) (*Network, error) {
	lab, err := r.repo.Find(ref)
	if err != nil {
		return nil, err
	}
	return &Network{
		lab:  lab,
		repo: r.repo,
		ovs:  r.ovs,
		log:  r.log.With(zap.String("lab", lab.Name)),
	}, nil
}

// List returns every recorded lab.
func (r *LinuxRuntime) List() ([]*domain.Lab, error) {
	return r.repo.List()
}

// Network is one realized lab.
type Network struct {
	lab  *domain.Lab
	repo *repository.LabRepository
	ovs  *domain.OVS
	log  *zap.Logger
}

var _ emulation.Network = (*Network)(nil)

// Lab returns the lab record.
func (n *Network) Lab() *domain.Lab {
	return n.lab
}

func (n *Network) build(ctx context.Context, topo *topology.Topology) error {
	if err := n.repo.Save(n.lab); err != nil {
		return fmt.Errorf("save lab: %w", err)
	}

	namespaces := map[string]*domain.Namespace{}
	for _, host := range topo.Hosts() {
		intf, err := topo.HostInterface(host.Name)
		if err != nil {
			return err
		}
		ns, err := domain.CreateNamespace(domain.NamespaceName(n.lab.Name, host.Name))
		if err != nil {
			return fmt.Errorf("create host %s: %w", host.Name, err)
		}
		namespaces[host.Name] = ns
		n.lab.Hosts = append(n.lab.Hosts, domain.Host{Name: host.Name, Interface: intf, Namespace: ns})
		if err := n.repo.Save(n.lab); err != nil {
			return fmt.Errorf("save lab: %w", err)
		}
		n.log.Debug("Host created", zap.String("host", host.Name), zap.String("netns", ns.Name))
	}

	for _, sw := range topo.Switches() {
		br := domain.Bridge{Name: sw.Name, DPID: sw.DPID, Protocols: sw.Protocols}
		if err := n.ovs.AddBridge(ctx, br); err != nil {
			return fmt.Errorf("create switch %s: %w", sw.Name, err)
		}
		n.lab.Bridges = append(n.lab.Bridges, br)
		if err := n.repo.Save(n.lab); err != nil {
			return fmt.Errorf("save lab: %w", err)
		}
		n.log.Debug("Switch created", zap.String("switch", sw.Name), zap.Stringer("dpid", sw.DPID))
	}

	for _, link := range topo.Links {
		veth, err := domain.CreateVeth(link.IntfA(), namespaces[link.NodeA], link.IntfB(), namespaces[link.NodeB])
		if err != nil {
			return fmt.Errorf("create link %s-%s: %w", link.NodeA, link.NodeB, err)
		}
		n.lab.Veths = append(n.lab.Veths, *veth)

		for _, end := range []struct{ node, intf string }{
			{link.NodeA, link.IntfA()},
			{link.NodeB, link.IntfB()},
		} {
			br, err := n.lab.Bridge(end.node)
			if err != nil {
				continue
			}
			if err := n.ovs.AddPort(ctx, br.Name, end.intf); err != nil {
				return fmt.Errorf("create link %s-%s: %w", link.NodeA, link.NodeB, err)
			}
			br.Ports = append(br.Ports, end.intf)
		}
		if err := veth.Up(); err != nil {
			return fmt.Errorf("create link %s-%s: %w", link.NodeA, link.NodeB, err)
		}
		if err := n.repo.Save(n.lab); err != nil {
			return fmt.Errorf("save lab: %w", err)
		}
		n.log.Debug("Link created", zap.String("a", link.IntfA()), zap.String("b", link.IntfB()))
	}
	return nil
}

// Start connects every switch to the controller.
func (n *Network) Start(ctx context.Context) error {
	for _, br := range n.lab.Bridges {
		if err := n.ovs.SetController(ctx, br.Name, n.lab.Controller); err != nil {
			return err
		}
	}
	n.lab.Started = true
	if err := n.repo.Save(n.lab); err != nil {
		return fmt.Errorf("save lab: %w", err)
	}
	n.log.Info("Switches connected", zap.String("controller", n.lab.Controller), zap.Int("switches", len(n.lab.Bridges)))
	return nil
}

// Stop kills the DHCP clients of every host, then removes the bridges,
// links and namespaces of the lab and forgets it. It keeps going past
// failures and reports all of them.
func (n *Network) Stop(ctx context.Context) error {
	var errs []error
	for _, host := range n.lab.Hosts {
		if err := n.stopDHCPClient(ctx, host); err != nil {
			errs = append(errs, err)
		}
	}
	for _, br := range n.lab.Bridges {
		if err := n.ovs.DelBridge(ctx, br.Name); err != nil {
			errs = append(errs, err)
		}
	}
	for i := range n.lab.Veths {
		if err := n.lab.Veths[i].Delete(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, host := range n.lab.Hosts {
		if host.Namespace == nil {
			continue
		}
		if _, err := os.Stat(host.Namespace.Path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := host.Namespace.Delete(); err != nil {
			errs = append(errs, err)
		}
	}
	if n.lab.ID != "" {
		if err := n.repo.Delete(n.lab.ID); err != nil && !errors.Is(err, repository.ErrLabNotFound) {
			errs = append(errs, err)
		}
	}
	n.log.Info("Lab removed", zap.Int("errors", len(errs)))
	return errors.Join(errs...)
}

func (n *Network) RunCommand(ctx context.Context, host string, argv ...string) (emulation.CommandResult, error) {
	ns, err := n.lab.Namespace(host)
	if err != nil {
		return emulation.CommandResult{}, err
	}
	res, err := domain.RunIn(ctx, ns, argv...)
	return emulation.CommandResult{Stdout: res.Stdout, Stderr: res.Stderr, ExitCode: res.ExitCode}, err
}

// RunIsolated runs argv on host in a mount namespace of its own.
func (n *Network) RunIsolated(ctx context.Context, host string, argv ...string) (emulation.CommandResult, error) {
	ns, err := n.lab.Namespace(host)
	if err != nil {
		return emulation.CommandResult{}, err
	}
	res, err := domain.RunInPrivateMounts(ctx, ns, argv...)
	return emulation.CommandResult{Stdout: res.Stdout, Stderr: res.Stderr, ExitCode: res.ExitCode}, err
}

// stopDHCPClient kills dhclient on the host interface. Namespaces that are
// already gone are skipped.
func (n *Network) stopDHCPClient(ctx context.Context, host domain.Host) error {
	if host.Namespace == nil {
		return nil
	}
	if _, err := os.Stat(host.Namespace.Path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	// pkill exits 1 when nothing matched.
	res, err := domain.RunIn(ctx, host.Namespace, "pkill", "-f", emulation.DHCPClientPattern(host.Interface))
	if err != nil {
		return fmt.Errorf("stop dhcp client on %s: %w", host.Name, err)
	}
	if res.ExitCode > 1 {
		return fmt.Errorf("stop dhcp client on %s: pkill exited %d: %s", host.Name, res.ExitCode, res.Stderr)
	}
	return nil
}

func (n *Network) CurrentAddress(_ context.Context, host string) (netip.Addr, bool, error) {
	h, err := n.lab.Host(host)
	if err != nil {
		return netip.Addr{}, false, err
	}
	prefixes, err := domain.IPv4Addresses(h.Namespace, h.Interface)
	if err != nil {
		return netip.Addr{}, false, err
	}
	if len(prefixes) == 0 {
		return netip.Addr{}, false, nil
	}
	return prefixes[0].Addr(), true, nil
}

// Exec runs argv on host attached to the terminal and returns its exit
// code.
func (n *Network) Exec(ctx context.Context, host string, argv ...string) (int, error) {
	ns, err := n.lab.Namespace(host)
	if err != nil {
		return -1, err
	}
	return domain.Exec(ctx, ns, argv...)
}

// Attach opens a shell on host.
func (n *Network) Attach(host string) error {
	ns, err := n.lab.Namespace(host)
	if err != nil {
		return err
	}
	return domain.Attach(ns, host)
}
