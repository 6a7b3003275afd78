package provision

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/go-playground/validator/v10"
	"go4.org/netipx"

	"sdnlab/internal/controller"
	"sdnlab/internal/topology"
)

var ErrInvalidPlan = errors.New("invalid provisioning plan")

// validate is a singleton validator instance
var validate = validator.New()

// Plan is the controller configuration to reach for one topology.
type Plan struct {
	DHCP      DHCPService    `mapstructure:"dhcp" toml:"dhcp"`
	Instances []InstanceSpec `mapstructure:"instances" toml:"instances" validate:"required,min=1,dive"`
	Gateway   GatewaySpec    `mapstructure:"gateway" toml:"gateway"`
}

type DHCPService struct {
	LeaseGCPeriod int  `mapstructure:"lease_gc_period" toml:"lease_gc_period" validate:"min=1"`
	DynamicLease  bool `mapstructure:"dynamic_lease" toml:"dynamic_lease"`
}

// InstanceSpec describes one DHCP instance and the switches relaying to it.
type InstanceSpec struct {
	Name         string          `mapstructure:"name" toml:"name" validate:"required"`
	StartIP      string          `mapstructure:"start_ip" toml:"start_ip" validate:"required,ipv4"`
	EndIP        string          `mapstructure:"end_ip" toml:"end_ip" validate:"required,ipv4"`
	ServerID     string          `mapstructure:"server_id" toml:"server_id" validate:"required,ipv4"`
	ServerMAC    string          `mapstructure:"server_mac" toml:"server_mac" validate:"required,mac"`
	RouterIP     string          `mapstructure:"router_ip" toml:"router_ip" validate:"required,ipv4"`
	BroadcastIP  string          `mapstructure:"broadcast_ip" toml:"broadcast_ip" validate:"required,ipv4"`
	SubnetMask   string          `mapstructure:"subnet_mask" toml:"subnet_mask" validate:"required,ipv4"`
	LeaseTime    int             `mapstructure:"lease_time" toml:"lease_time" validate:"min=1"`
	IPForwarding bool            `mapstructure:"ip_forwarding" toml:"ip_forwarding"`
	DomainName   string          `mapstructure:"domain_name" toml:"domain_name"`
	Switches     []topology.DPID `mapstructure:"switches" toml:"switches" validate:"required,min=1"`
}

// Wire returns the controller payload for the instance.
func (s InstanceSpec) Wire() controller.DHCPInstance {
	return controller.DHCPInstance{
		Name:         s.Name,
		StartIP:      s.StartIP,
		EndIP:        s.EndIP,
		ServerID:     s.ServerID,
		ServerMAC:    s.ServerMAC,
		RouterIP:     s.RouterIP,
		BroadcastIP:  s.BroadcastIP,
		SubnetMask:   s.SubnetMask,
		LeaseTime:    s.LeaseTime,
		IPForwarding: s.IPForwarding,
		DomainName:   s.DomainName,
	}
}

// Prefix returns the subnet served by the instance.
func (s InstanceSpec) Prefix() (netip.Prefix, error) {
	router, err := netip.ParseAddr(s.RouterIP)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("router ip: %w", err)
	}
	bits, err := maskBits(s.SubnetMask)
	if err != nil {
		return netip.Prefix{}, err
	}
	return router.Prefix(bits)
}

type GatewaySpec struct {
	Name       string          `mapstructure:"name" toml:"name" validate:"required"`
	MAC        string          `mapstructure:"mac" toml:"mac" validate:"required,mac"`
	IP         string          `mapstructure:"ip" toml:"ip" validate:"required,ip"`
	Interfaces []InterfaceSpec `mapstructure:"interfaces" toml:"interfaces" validate:"required,min=1,dive"`
	Switches   []topology.DPID `mapstructure:"switches" toml:"switches" validate:"required,min=1"`
}

type InterfaceSpec struct {
	Name string `mapstructure:"name" toml:"name" validate:"required"`
	IP   string `mapstructure:"ip" toml:"ip" validate:"required,ipv4"`
	Mask string `mapstructure:"mask" toml:"mask" validate:"required,ipv4"`
}

// WireInterfaces returns the controller payload for the gateway interfaces.
func (g GatewaySpec) WireInterfaces() []controller.GatewayInterface {
	intfs := make([]controller.GatewayInterface, 0, len(g.Interfaces))
	for _, intf := range g.Interfaces {
		intfs = append(intfs, controller.GatewayInterface{Name: intf.Name, IP: intf.IP, Mask: intf.Mask})
	}
	return intfs
}

// Defaults of the standard lab layout.
const (
	DefaultGatewayName = "mininet-gateway-1"
	DefaultGatewayIP   = "127.0.0.1"
	DefaultMAC         = "aa:bb:cc:dd:ee:ff"
	DefaultDomainName  = "mininet-domain-name"
	DefaultLeaseTime   = 60
	DefaultLeaseGC     = 10

	// switchesOnFirstSegment is how many switches relay to the first DHCP
	// instance; the rest relay to the second.
	switchesOnFirstSegment = 2
	maxSegments            = 25
)

// DefaultPlan lays the standard two-segment DHCP setup and the single
// gateway over topo: switches 1-2 relay to 10.0.0.0/24, the remaining
// switches to 20.0.0.0/24, and the gateway gets one interface
// <10k>.0.0.1/24 per switch k.
func DefaultPlan(topo *topology.Topology) (Plan, error) {
	dpids := topo.DPIDs()
	if len(dpids) == 0 {
		return Plan{}, fmt.Errorf("%w: topology has no switches", ErrInvalidPlan)
	}
	if len(dpids) > maxSegments {
		return Plan{}, fmt.Errorf("%w: default plan supports at most %d switches, got %d",
			ErrInvalidPlan, maxSegments, len(dpids))
	}

	split := min(switchesOnFirstSegment, len(dpids))
	plan := Plan{
		DHCP: DHCPService{LeaseGCPeriod: DefaultLeaseGC},
		Instances: []InstanceSpec{
			segment(1, dpids[:split]),
		},
		Gateway: GatewaySpec{
			Name:     DefaultGatewayName,
			MAC:      DefaultMAC,
			IP:       DefaultGatewayIP,
			Switches: append([]topology.DPID(nil), dpids...),
		},
	}
	if rest := dpids[split:]; len(rest) > 0 {
		plan.Instances = append(plan.Instances, segment(2, rest))
	}
	for k := 1; k <= len(dpids); k++ {
		plan.Gateway.Interfaces = append(plan.Gateway.Interfaces, InterfaceSpec{
			Name: fmt.Sprintf("interface-%d", k),
			IP:   fmt.Sprintf("%d.0.0.1", 10*k),
			Mask: "255.255.255.0",
		})
	}
	return plan, nil
}

func segment(k int, dpids []topology.DPID) InstanceSpec {
	net := fmt.Sprintf("%d.0.0", 10*k)
	return InstanceSpec{
		Name:         fmt.Sprintf("mininet-dhcp-%d", k),
		StartIP:      net + ".101",
		EndIP:        net + ".200",
		ServerID:     net + ".2",
		ServerMAC:    DefaultMAC,
		RouterIP:     net + ".1",
		BroadcastIP:  net + ".255",
		SubnetMask:   "255.255.255.0",
		LeaseTime:    DefaultLeaseTime,
		IPForwarding: true,
		DomainName:   DefaultDomainName,
		Switches:     append([]topology.DPID(nil), dpids...),
	}
}

// ValidatePlan checks the plan's fields and that it fits topo.
func ValidatePlan(plan Plan, topo *topology.Topology) error {
	if err := validate.Struct(plan); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}

	names := map[string]bool{}
	bound := map[topology.DPID]string{}
	for _, inst := range plan.Instances {
		if names[inst.Name] {
			return fmt.Errorf("%w: duplicate instance %s", ErrInvalidPlan, inst.Name)
		}
		names[inst.Name] = true

		if err := checkRange(inst); err != nil {
			return fmt.Errorf("%w: instance %s: %v", ErrInvalidPlan, inst.Name, err)
		}
		for _, dpid := range inst.Switches {
			if !topo.HasDPID(dpid) {
				return fmt.Errorf("%w: instance %s binds unknown switch %s", ErrInvalidPlan, inst.Name, dpid)
			}
			if other, ok := bound[dpid]; ok {
				return fmt.Errorf("%w: switch %s bound to %s and %s", ErrInvalidPlan, dpid, other, inst.Name)
			}
			bound[dpid] = inst.Name
		}
	}

	intfs := map[string]bool{}
	for _, intf := range plan.Gateway.Interfaces {
		if intfs[intf.Name] {
			return fmt.Errorf("%w: duplicate gateway interface %s", ErrInvalidPlan, intf.Name)
		}
		intfs[intf.Name] = true
		if _, err := maskBits(intf.Mask); err != nil {
			return fmt.Errorf("%w: gateway interface %s: %v", ErrInvalidPlan, intf.Name, err)
		}
	}
	for _, dpid := range plan.Gateway.Switches {
		if !topo.HasDPID(dpid) {
			return fmt.Errorf("%w: gateway binds unknown switch %s", ErrInvalidPlan, dpid)
		}
	}
	return nil
}

func checkRange(inst InstanceSpec) error {
	prefix, err := inst.Prefix()
	if err != nil {
		return err
	}
	start := netip.MustParseAddr(inst.StartIP)
	end := netip.MustParseAddr(inst.EndIP)
	r := netipx.IPRangeFrom(start, end)
	if !r.IsValid() {
		return fmt.Errorf("range %s-%s is empty", start, end)
	}
	if !prefix.Contains(start) || !prefix.Contains(end) {
		return fmt.Errorf("range %s lies outside %s", r, prefix)
	}
	for field, s := range map[string]string{"server-id": inst.ServerID, "broadcast-ip": inst.BroadcastIP} {
		if !prefix.Contains(netip.MustParseAddr(s)) {
			return fmt.Errorf("%s %s lies outside %s", field, s, prefix)
		}
	}
	return nil
}

func maskBits(mask string) (int, error) {
	addr, err := netip.ParseAddr(mask)
	if err != nil || !addr.Is4() {
		return 0, fmt.Errorf("bad subnet mask %q", mask)
	}
	b := addr.As4()
	ones, size := net.IPMask(b[:]).Size()
	if size == 0 {
		return 0, fmt.Errorf("non-contiguous subnet mask %q", mask)
	}
	return ones, nil
}
