package controller

import (
	"strconv"

	"sdnlab/internal/topology"
)

// DHCPConfig toggles the controller's DHCP service.
type DHCPConfig struct {
	Enable        bool `json:"enable,string"`
	LeaseGCPeriod int  `json:"lease-gc-period,string"`
	DynamicLease  bool `json:"dynamic-lease,string"`
}

// DHCPInstance is a DHCP server configuration scoped to one subnet.
type DHCPInstance struct {
	Name         string `json:"name"`
	StartIP      string `json:"start-ip"`
	EndIP        string `json:"end-ip"`
	ServerID     string `json:"server-id"`
	ServerMAC    string `json:"server-mac"`
	RouterIP     string `json:"router-ip"`
	BroadcastIP  string `json:"broadcast-ip"`
	SubnetMask   string `json:"subnet-mask"`
	LeaseTime    int    `json:"lease-time,string"`
	IPForwarding bool   `json:"ip-forwarding,string"`
	DomainName   string `json:"domain-name"`
}

type SwitchRef struct {
	DPID string `json:"dpid"`
}

// SwitchRefs converts DPIDs to their wire form.
func SwitchRefs(dpids []topology.DPID) []SwitchRef {
	refs := make([]SwitchRef, 0, len(dpids))
	for _, dpid := range dpids {
		refs = append(refs, SwitchRef{DPID: strconv.FormatUint(uint64(dpid), 10)})
	}
	return refs
}

type InstanceSwitches struct {
	Switches []SwitchRef `json:"switches"`
}

type RoutingConfig struct {
	Enable bool `json:"enable,string"`
}

type Gateway struct {
	Name string `json:"gateway-name"`
	MAC  string `json:"gateway-mac"`
}

type GatewayInterface struct {
	Name string `json:"interface-name"`
	IP   string `json:"interface-ip"`
	Mask string `json:"interface-mask"`
}

type GatewayInterfaces struct {
	Interfaces []GatewayInterface `json:"interfaces"`
}

type GatewaySwitches struct {
	Name     string      `json:"gateway-name"`
	IP       string      `json:"gateway-ip"`
	Switches []SwitchRef `json:"switches"`
}

// Result is what the controller answered to one request.
type Result struct {
	StatusCode int
	Reason     string
	Body       []byte
}

func (r *Result) String() string {
	if r == nil {
		return "<no response>"
	}
	return strconv.Itoa(r.StatusCode) + " " + r.Reason + " " + string(r.Body)
}
