package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdnlab/internal/config"
	"sdnlab/internal/controller"
	"sdnlab/internal/provision"
	"sdnlab/internal/topology"
)

func TestPlanFor(t *testing.T) {
	topo, err := topology.BuildLinear(6)
	require.NoError(t, err)

	t.Run("default", func(t *testing.T) {
		plan, err := planFor(nil, topo)
		require.NoError(t, err)
		require.Len(t, plan.Instances, 2)
		assert.Len(t, plan.Gateway.Interfaces, 5)
	})

	t.Run("configured", func(t *testing.T) {
		def, err := provision.DefaultPlan(topo)
		require.NoError(t, err)
		def.Gateway.Name = "edge"
		plan, err := planFor(&def, topo)
		require.NoError(t, err)
		assert.Equal(t, "edge", plan.Gateway.Name)
	})

	t.Run("invalid", func(t *testing.T) {
		def, err := provision.DefaultPlan(topo)
		require.NoError(t, err)
		def.Instances[0].Switches = []topology.DPID{42}
		_, err = planFor(&def, topo)
		assert.ErrorIs(t, err, provision.ErrInvalidPlan)
	})
}

func TestRootCmdConfigErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[topology]\nhosts = 1\n"), 0o644))

	testCases := map[string][]string{
		"missing file":  {"topo", "--config", filepath.Join(dir, "nope.toml")},
		"invalid value": {"topo", "--config", bad},
		"too few hosts": {"topo", "--hosts", "1"},
		"bad lab name":  {"topo", "--lab", "not-alnum!"},
		"unknown flag":  {"topo", "--bogus"},
	}
	for name, args := range testCases {
		t.Run(name, func(t *testing.T) {
			cmd := newRootCmd()
			cmd.SetArgs(args)
			cmd.SetOut(new(discard))
			cmd.SetErr(new(discard))
			assert.Error(t, cmd.Execute())
		})
	}
}

func TestRootCmdOwnFlags(t *testing.T) {
	testCases := map[string][]string{
		"topo":            {"topo", "--hosts", "3", "--json"},
		"ls":              {"ls"},
		"ls show hosts":   {"ls", "--show-hosts"},
		"cleanup nothing": {"cleanup"},
		"sample config":   {"sample-config"},
	}
	for name, args := range testCases {
		t.Run(name, func(t *testing.T) {
			cmd := newRootCmd()
			cmd.SetArgs(append(args, "--state-dir", t.TempDir(), "--log-level", "error"))
			cmd.SetOut(new(discard))
			cmd.SetErr(new(discard))
			assert.NoError(t, cmd.Execute())
		})
	}
}

func TestRunFlagsBindToConfig(t *testing.T) {
	root := newRootCmd()
	run, _, err := root.Find([]string{"run"})
	require.NoError(t, err)
	require.NoError(t, run.ParseFlags([]string{
		"--controller", "10.0.0.9",
		"--rest-port", "8181",
		"--hosts", "4",
		"--metrics-addr", "127.0.0.1:9100",
		"--lab", "lab2",
		"--no-wait",
	}))

	cfg, err := config.Load("", run.Flags())
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.9", cfg.Controller.Host)
	assert.Equal(t, 8181, cfg.Controller.RESTPort)
	assert.Equal(t, 4, cfg.Topology.Hosts)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Addr)
	assert.Equal(t, "lab2", cfg.Lab.Name)
}

func TestFailureHint(t *testing.T) {
	testCases := map[string]struct {
		err  error
		want string
	}{
		"convergence": {
			err:  &provision.StageError{Stage: provision.StageWaitForAddresses, Err: provision.ErrConvergenceTimeout},
			want: "dhclient",
		},
		"unreachable": {
			err:  &controller.TransportError{Method: "POST", Path: "/wm/dhcp/config", Err: errors.New("connection refused")},
			want: "unreachable",
		},
		"timeout": {
			err:  &controller.TransportError{Method: "POST", Path: "/wm/dhcp/config", Err: timeoutErr{}},
			want: "did not answer /wm/dhcp/config within 10s",
		},
		"other": {err: errors.New("boom")},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			hint := failureHint(tc.err, 10*time.Second)
			if tc.want == "" {
				assert.Empty(t, hint)
				return
			}
			assert.Contains(t, hint, tc.want)
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }
func (timeoutErr) Timeout() bool { return true }

func TestRootCmdSubcommands(t *testing.T) {
	cmd := newRootCmd()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{
		"run", "topo", "ls", "exec", "attach", "rm", "cleanup", "sample-config", "fake-controller",
	})
}

type discard struct{}

func (*discard) Write(p []byte) (int, error) { return len(p), nil }
