// Package emulation defines how the provisioning logic talks to the process
// manager that realizes hosts and switches.
package emulation

import (
	"context"
	"net/netip"

	"sdnlab/internal/topology"
)

// Runtime realizes a topology.
type Runtime interface {
	Build(ctx context.Context, topo *topology.Topology) (Network, error)
}

// Network is a realized topology.
type Network interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	// RunCommand runs argv inside the host and waits for it to exit. A
	// non-zero exit code is reported in the result, not as an error.
	RunCommand(ctx context.Context, host string, argv ...string) (CommandResult, error)
	// RunIsolated is RunCommand in a fresh mount namespace with private
	// propagation. Mounts made by argv are invisible to the machine and
	// disappear with the last process argv leaves behind.
	RunIsolated(ctx context.Context, host string, argv ...string) (CommandResult, error)
	// CurrentAddress returns the IPv4 address currently on the host's
	// interface, if any.
	CurrentAddress(ctx context.Context, host string) (netip.Addr, bool, error)
}

type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// OK reports whether the command exited with status 0.
func (r CommandResult) OK() bool {
	return r.ExitCode == 0
}
