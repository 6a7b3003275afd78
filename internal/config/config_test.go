package config_test

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdnlab/internal/config"
	"sdnlab/internal/topology"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sdnlab.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
	assert.Equal(t, 8080, cfg.Controller.RESTPort)
	assert.Equal(t, 6653, cfg.Controller.OpenFlowPort)
	assert.Equal(t, 5*time.Second, cfg.Convergence.SettleDelay.Duration)
	assert.Equal(t, 6, cfg.Topology.Hosts)
	assert.Nil(t, cfg.Plan)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
[controller]
host = "10.1.1.1"
timeout = "3s"

[topology]
hosts = 4

[convergence]
timeout = "0s"
poll_interval = "250ms"

[log]
level = "debug"
`)
	cfg, err := config.Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "10.1.1.1", cfg.Controller.Host)
	assert.Equal(t, 3*time.Second, cfg.Controller.Timeout.Duration)
	assert.Equal(t, 8080, cfg.Controller.RESTPort)
	assert.Equal(t, 4, cfg.Topology.Hosts)
	assert.Zero(t, cfg.Convergence.Timeout.Duration)
	assert.Equal(t, 250*time.Millisecond, cfg.Convergence.PollInterval.Duration)
	assert.Equal(t, 5*time.Second, cfg.Convergence.SettleDelay.Duration)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "http://10.1.1.1:8080", cfg.Controller.URL())
	assert.Equal(t, "tcp:10.1.1.1:6653", cfg.Controller.OpenFlowTarget())
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
[controller]
host = "10.1.1.1"

[topology]
hosts = 4
`)
	t.Setenv("SDNLAB_CONTROLLER_HOST", "10.2.2.1")
	t.Setenv("SDNLAB_LAB_NAME", "envlab")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("hosts", 6, "")
	fs.String("controller", "", "")
	fs.String("lab", "", "")
	require.NoError(t, fs.Parse([]string{"--hosts", "8"}))

	cfg, err := config.Load(path, fs)
	require.NoError(t, err)
	// Flag set on the command line wins over the file.
	assert.Equal(t, 8, cfg.Topology.Hosts)
	// Unset flags leave the environment in charge.
	assert.Equal(t, "10.2.2.1", cfg.Controller.Host)
	assert.Equal(t, "envlab", cfg.Lab.Name)
}

func TestLoadInvalid(t *testing.T) {
	testCases := map[string]string{
		"one host":          "[topology]\nhosts = 1\n",
		"bad port":          "[controller]\nrest_port = 70000\n",
		"bad log level":     "[log]\nlevel = \"loud\"\n",
		"no controller":     "[controller]\nhost = \"\"\ndiscover_interface = \"\"\n",
		"bad lab name":      "[lab]\nname = \"my-lab\"\n",
		"bad metrics addr":  "[metrics]\naddr = \"nope\"\n",
		"bad duration":      "[convergence]\ntimeout = \"soon\"\n",
		"malformed toml":    "[controller\n",
		"missing state dir": "[lab]\nstate_dir = \"\"\n",
	}

	for name, content := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, content), nil)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"), nil)
	assert.Error(t, err)
}

func TestSampleRoundTrip(t *testing.T) {
	raw, err := config.Sample()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, toml.Unmarshal(raw, &decoded))
	assert.Contains(t, decoded, "plan")

	cfg, err := config.Load(writeConfig(t, string(raw)), nil)
	require.NoError(t, err)
	require.NotNil(t, cfg.Plan)
	assert.Equal(t, "192.168.56.1", cfg.Controller.Host)
	require.Len(t, cfg.Plan.Instances, 2)
	assert.Equal(t, []topology.DPID{3, 4, 5}, cfg.Plan.Instances[1].Switches)
	assert.Len(t, cfg.Plan.Gateway.Interfaces, 5)
	assert.Equal(t, "mininet-gateway-1", cfg.Plan.Gateway.Name)
}

func TestControllerAddress(t *testing.T) {
	testCases := map[string]struct {
		in      string
		want    string
		wantErr bool
	}{
		"host-only":   {in: "192.168.56.101", want: "192.168.56.1"},
		"already .1":  {in: "10.0.0.1", want: "10.0.0.1"},
		"mapped v4":   {in: "::ffff:172.16.4.20", want: "172.16.4.1"},
		"ipv6 refuse": {in: "fe80::1", wantErr: true},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			got, err := config.ControllerAddress(netip.MustParseAddr(tc.in))
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.String())
		})
	}
}

func TestResolveControllerKeepsHost(t *testing.T) {
	cfg := config.Default()
	cfg.Controller.Host = "10.9.9.1"
	require.NoError(t, cfg.ResolveController())
	assert.Equal(t, "10.9.9.1", cfg.Controller.Host)

	cfg = config.Default()
	cfg.Controller.DiscoverInterface = ""
	assert.Error(t, cfg.ResolveController())
}

func TestDurationFlag(t *testing.T) {
	var d config.Duration
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Var(&d, "timeout", "")
	require.NoError(t, fs.Parse([]string{"--timeout", "90s"}))
	assert.Equal(t, 90*time.Second, d.Duration)
	assert.Equal(t, "1m30s", d.String())
}

func TestLoadRejectsMistypedFlag(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Bool("hosts", false, "")
	require.NoError(t, fs.Parse([]string{"--hosts"}))

	_, err := config.Load("", fs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flag --hosts is bool")
}
