// Package emulationtest provides a scripted emulation runtime.
package emulationtest

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"sync"

	"sdnlab/internal/emulation"
	"sdnlab/internal/topology"
)

// Runtime hands out a single Network.
type Runtime struct {
	Network  *Network
	BuildErr error
	Built    *topology.Topology
}

func (r *Runtime) Build(_ context.Context, topo *topology.Topology) (emulation.Network, error) {
	if r.BuildErr != nil {
		return nil, r.BuildErr
	}
	r.Built = topo
	if r.Network == nil {
		r.Network = NewNetwork()
	}
	return r.Network, nil
}

// Command is one RunCommand or RunIsolated invocation.
type Command struct {
	Host     string
	Argv     []string
	Isolated bool
}

func (c Command) String() string {
	return c.Host + ": " + strings.Join(c.Argv, " ")
}

// Network records every call. A host gets its address from Addresses once
// a DHCP client was started on it and PollsBeforeLease polls have passed.
type Network struct {
	mu sync.Mutex

	Addresses        map[string]netip.Addr
	PollsBeforeLease int
	// Fail makes RunCommand return a non-zero exit for matching hosts
	// when the command contains the given substring.
	Fail map[string]string

	started  bool
	stopped  bool
	commands []Command
	leasing  map[string]int
	polls    map[string]int
}

func NewNetwork() *Network {
	return &Network{
		Addresses: map[string]netip.Addr{},
		Fail:      map[string]string{},
		leasing:   map[string]int{},
		polls:     map[string]int{},
	}
}

func (n *Network) Start(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.started = true
	return nil
}

func (n *Network) Stop(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopped = true
	return nil
}

func (n *Network) RunCommand(_ context.Context, host string, argv ...string) (emulation.CommandResult, error) {
	return n.run(Command{Host: host, Argv: argv})
}

func (n *Network) RunIsolated(_ context.Context, host string, argv ...string) (emulation.CommandResult, error) {
	return n.run(Command{Host: host, Argv: argv, Isolated: true})
}

func (n *Network) run(c Command) (emulation.CommandResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.commands = append(n.commands, c)
	host, argv := c.Host, c.Argv

	line := strings.Join(argv, " ")
	if sub, ok := n.Fail[host]; ok && strings.Contains(line, sub) {
		return emulation.CommandResult{ExitCode: 1, Stderr: "scripted failure"}, nil
	}
	if strings.Contains(line, "dhclient") && !strings.Contains(line, " -r") && !strings.Contains(line, "kill") {
		n.leasing[host] = 0
	}
	if strings.Contains(line, "grep nameserver") {
		return emulation.CommandResult{Stdout: fmt.Sprintf("nameserver %s\n", n.Addresses[host])}, nil
	}
	return emulation.CommandResult{}, nil
}

func (n *Network) CurrentAddress(_ context.Context, host string) (netip.Addr, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.polls[host]++
	polls, ok := n.leasing[host]
	if !ok {
		return netip.Addr{}, false, nil
	}
	addr, ok := n.Addresses[host]
	if !ok {
		return netip.Addr{}, false, nil
	}
	if polls < n.PollsBeforeLease {
		n.leasing[host] = polls + 1
		return netip.Addr{}, false, nil
	}
	return addr, true, nil
}

// Started reports whether Start was called.
func (n *Network) Started() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.started
}

// Stopped reports whether Stop was called.
func (n *Network) Stopped() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stopped
}

// Commands returns the commands run so far.
func (n *Network) Commands() []Command {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Command(nil), n.commands...)
}

// CommandsOn returns the commands run on one host.
func (n *Network) CommandsOn(host string) []Command {
	var out []Command
	for _, c := range n.Commands() {
		if c.Host == host {
			out = append(out, c)
		}
	}
	return out
}

// Polls returns how often CurrentAddress was called for host.
func (n *Network) Polls(host string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.polls[host]
}
