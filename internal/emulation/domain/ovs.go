package domain

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"sdnlab/internal/topology"
)

// Runner runs a host command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.Bytes(), fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(out.String()))
	}
	return out.Bytes(), nil
}

// Bridge is an Open vSwitch bridge standing in for one switch.
type Bridge struct {
	Name      string        `json:"name"`
	DPID      topology.DPID `json:"dpid"`
	Protocols []string      `json:"protocols,omitempty"`
	Ports     []string      `json:"ports,omitempty"`
}

// DatapathID is the 16 hex digit form ovs-vsctl expects.
func (b Bridge) DatapathID() string {
	return fmt.Sprintf("%016x", uint64(b.DPID))
}

// OVS drives ovs-vsctl.
type OVS struct {
	runner Runner
}

func NewOVS(runner Runner) *OVS {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &OVS{runner: runner}
}

func (o *OVS) vsctl(ctx context.Context, args ...string) error {
	_, err := o.runner.Run(ctx, "ovs-vsctl", args...)
	return err
}

// AddBridge creates the bridge with a fixed datapath id and without any
// fallback forwarding, so it only forwards what the controller installs.
func (o *OVS) AddBridge(ctx context.Context, br Bridge) error {
	args := []string{"add-br", br.Name,
		"--", "set", "bridge", br.Name,
		"other-config:datapath-id=" + br.DatapathID(),
		"fail-mode=secure",
	}
	if len(br.Protocols) > 0 {
		args = append(args, "protocols="+strings.Join(br.Protocols, ","))
	}
	if err := o.vsctl(ctx, args...); err != nil {
		return fmt.Errorf("add bridge %s: %w", br.Name, err)
	}
	return nil
}

func (o *OVS) AddPort(ctx context.Context, bridge, port string) error {
	if err := o.vsctl(ctx, "add-port", bridge, port); err != nil {
		return fmt.Errorf("add port %s to %s: %w", port, bridge, err)
	}
	return nil
}

// SetController points the bridge at target, e.g. tcp:10.0.0.1:6653.
func (o *OVS) SetController(ctx context.Context, bridge, target string) error {
	if err := o.vsctl(ctx, "set-controller", bridge, target); err != nil {
		return fmt.Errorf("set controller of %s: %w", bridge, err)
	}
	return nil
}

// DelBridge removes the bridge and its ports. A missing bridge is not an
// error.
func (o *OVS) DelBridge(ctx context.Context, name string) error {
	if err := o.vsctl(ctx, "--if-exists", "del-br", name); err != nil {
		return fmt.Errorf("delete bridge %s: %w", name, err)
	}
	return nil
}
