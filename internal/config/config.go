// Package config loads the sdnlab configuration from TOML, the environment
// and command-line flags.
package config

import (
	"bytes"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"sdnlab/internal/log"
	"sdnlab/internal/provision"
	"sdnlab/internal/topology"
)

// EnvPrefix prefixes every environment override, e.g.
// SDNLAB_CONTROLLER_HOST.
const EnvPrefix = "SDNLAB"

// validate is a singleton validator instance
var validate = validator.New()

type Config struct {
	Log         log.Config        `mapstructure:"log" toml:"log"`
	Controller  ControllerConfig  `mapstructure:"controller" toml:"controller"`
	Topology    TopologyConfig    `mapstructure:"topology" toml:"topology"`
	Convergence ConvergenceConfig `mapstructure:"convergence" toml:"convergence"`
	Hosts       HostsConfig       `mapstructure:"hosts" toml:"hosts"`
	Lab         LabConfig         `mapstructure:"lab" toml:"lab"`
	Metrics     MetricsConfig     `mapstructure:"metrics" toml:"metrics"`
	// Plan replaces the default DHCP and gateway layout when set. It is
	// checked against the topology by provision.ValidatePlan.
	Plan *provision.Plan `mapstructure:"plan" toml:"plan,omitempty" validate:"-"`
}

type ControllerConfig struct {
	// Host is the controller address. When empty it is derived from
	// DiscoverInterface.
	Host              string   `mapstructure:"host" toml:"host" validate:"required_without=DiscoverInterface"`
	RESTPort          int      `mapstructure:"rest_port" toml:"rest_port" validate:"min=1,max=65535"`
	OpenFlowPort      int      `mapstructure:"openflow_port" toml:"openflow_port" validate:"min=1,max=65535"`
	Timeout           Duration `mapstructure:"timeout" toml:"timeout"`
	DiscoverInterface string   `mapstructure:"discover_interface" toml:"discover_interface"`
}

// URL returns the base URL of the REST API.
func (c ControllerConfig) URL() string {
	return "http://" + net.JoinHostPort(c.Host, strconv.Itoa(c.RESTPort))
}

// OpenFlowTarget returns the address switches connect to.
func (c ControllerConfig) OpenFlowTarget() string {
	return "tcp:" + net.JoinHostPort(c.Host, strconv.Itoa(c.OpenFlowPort))
}

type TopologyConfig struct {
	Hosts int `mapstructure:"hosts" toml:"hosts" validate:"min=2"`
}

type ConvergenceConfig struct {
	// SettleDelay is waited after binding the DHCP switches.
	SettleDelay  Duration `mapstructure:"settle_delay" toml:"settle_delay"`
	PollInterval Duration `mapstructure:"poll_interval" toml:"poll_interval"`
	// Timeout bounds the wait per host. Zero waits forever.
	Timeout Duration `mapstructure:"timeout" toml:"timeout"`
}

type HostsConfig struct {
	PrivateResolvConf bool `mapstructure:"private_resolv_conf" toml:"private_resolv_conf"`
}

type LabConfig struct {
	Name     string `mapstructure:"name" toml:"name" validate:"required,alphanum,max=8"`
	StateDir string `mapstructure:"state_dir" toml:"state_dir" validate:"required"`
}

type MetricsConfig struct {
	// Addr is the listen address of the Prometheus endpoint. Empty
	// disables it.
	Addr string `mapstructure:"addr" toml:"addr" validate:"omitempty,hostname_port"`
}

func Default() Config {
	return Config{
		Log: log.DefaultConfig(),
		Controller: ControllerConfig{
			RESTPort:          8080,
			OpenFlowPort:      6653,
			Timeout:           Duration{10 * time.Second},
			DiscoverInterface: "eth1",
		},
		Topology: TopologyConfig{Hosts: 6},
		Convergence: ConvergenceConfig{
			SettleDelay:  Duration{5 * time.Second},
			PollInterval: Duration{time.Second},
			Timeout:      Duration{60 * time.Second},
		},
		Lab: LabConfig{
			Name:     "lab",
			StateDir: "/var/lib/sdnlab",
		},
	}
}

type flagKey struct {
	key string
	// typ is the pflag value type the flag must have.
	typ string
}

// flagKeys maps command-line flags to configuration keys. Commands must not
// reuse these names for flags of their own.
var flagKeys = map[string]flagKey{
	"controller":   {"controller.host", "string"},
	"rest-port":    {"controller.rest_port", "int"},
	"hosts":        {"topology.hosts", "int"},
	"lab":          {"lab.name", "string"},
	"state-dir":    {"lab.state_dir", "string"},
	"log-level":    {"log.level", "string"},
	"log-format":   {"log.format", "string"},
	"metrics-addr": {"metrics.addr", "string"},
}

// Load reads the defaults, then the file at path if not empty, then the
// environment, then the flags in fs that were set. The result is
// validated.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	defaults, err := toml.Marshal(Default())
	if err != nil {
		return Config{}, fmt.Errorf("encode defaults: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, fk := range flagKeys {
			f := fs.Lookup(name)
			if f == nil {
				continue
			}
			if typ := f.Value.Type(); typ != fk.typ {
				return Config{}, fmt.Errorf("flag --%s is %s, %s needs %s", name, typ, fk.key, fk.typ)
			}
			if err := v.BindPFlag(fk.key, f); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	cfg := Default()
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Sample renders a configuration file holding every default and the
// default plan of the default topology.
func Sample() ([]byte, error) {
	cfg := Default()
	topo, err := topology.BuildLinear(cfg.Topology.Hosts)
	if err != nil {
		return nil, err
	}
	plan, err := provision.DefaultPlan(topo)
	if err != nil {
		return nil, err
	}
	cfg.Plan = &plan
	cfg.Controller.Host = "192.168.56.1"
	return toml.Marshal(cfg)
}
