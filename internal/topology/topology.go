package topology

import (
	"fmt"
	"sort"
	"strings"
)

type NodeType string

const (
	NodeHost   NodeType = "host"
	NodeSwitch NodeType = "switch"
)

// DPID is the datapath identifier the controller uses for a switch.
type DPID uint64

func (d DPID) String() string {
	return fmt.Sprintf("%d", uint64(d))
}

type Node struct {
	Name      string   `json:"name"`
	Type      NodeType `json:"type"`
	DPID      DPID     `json:"dpid,omitempty"`
	Protocols []string `json:"protocols,omitempty"`

	ports int
}

// Link is an unordered connection between two nodes. Ports are numbered per
// node in creation order: hosts start at 0, switches at 1.
type Link struct {
	NodeA string `json:"node_a"`
	NodeB string `json:"node_b"`
	PortA int    `json:"port_a"`
	PortB int    `json:"port_b"`
}

// IntfA returns the interface name of the A end.
func (l Link) IntfA() string {
	return IntfName(l.NodeA, l.PortA)
}

// IntfB returns the interface name of the B end.
func (l Link) IntfB() string {
	return IntfName(l.NodeB, l.PortB)
}

// Has reports whether name is one of the link endpoints.
func (l Link) Has(name string) bool {
	return l.NodeA == name || l.NodeB == name
}

// IntfName formats an interface name the way Mininet does.
func IntfName(node string, port int) string {
	return fmt.Sprintf("%s-eth%d", node, port)
}

type Topology struct {
	Nodes map[string]Node `json:"nodes"`
	Links []Link          `json:"links"`

	hosts    []string
	switches []string
}

func NewTopology() *Topology {
	return &Topology{
		Nodes: map[string]Node{},
		Links: []Link{},
	}
}

func (t *Topology) AddHost(name string) error {
	if _, exists := t.Nodes[name]; exists {
		return fmt.Errorf("node %s already exists", name)
	}
	t.Nodes[name] = Node{
		Name: name,
		Type: NodeHost,
	}
	t.hosts = append(t.hosts, name)
	return nil
}

func (t *Topology) AddSwitch(name string, dpid DPID, protocols ...string) error {
	if _, exists := t.Nodes[name]; exists {
		return fmt.Errorf("node %s already exists", name)
	}
	for _, other := range t.switches {
		if t.Nodes[other].DPID == dpid {
			return fmt.Errorf("dpid %s already used by %s", dpid, other)
		}
	}
	t.Nodes[name] = Node{
		Name:      name,
		Type:      NodeSwitch,
		DPID:      dpid,
		Protocols: protocols,
		ports:     1,
	}
	t.switches = append(t.switches, name)
	return nil
}

func (t *Topology) AddLink(a, b string) error {
	nodeA, ok := t.Nodes[a]
	if !ok {
		return fmt.Errorf("unknown node %s", a)
	}
	nodeB, ok := t.Nodes[b]
	if !ok {
		return fmt.Errorf("unknown node %s", b)
	}
	if a == b {
		return fmt.Errorf("self link on %s", a)
	}

	link := Link{
		NodeA: a,
		NodeB: b,
		PortA: nodeA.ports,
		PortB: nodeB.ports,
	}
	nodeA.ports++
	nodeB.ports++
	t.Nodes[a] = nodeA
	t.Nodes[b] = nodeB

	t.Links = append(t.Links, link)
	return nil
}

// Hosts returns the hosts in allocation order.
func (t *Topology) Hosts() []Node {
	return t.collect(t.hosts)
}

// Switches returns the switches in allocation order.
func (t *Topology) Switches() []Node {
	return t.collect(t.switches)
}

func (t *Topology) collect(names []string) []Node {
	nodes := make([]Node, 0, len(names))
	for _, name := range names {
		nodes = append(nodes, t.Nodes[name])
	}
	return nodes
}

// DPIDs returns the switch DPIDs in chain order.
func (t *Topology) DPIDs() []DPID {
	dpids := make([]DPID, 0, len(t.switches))
	for _, name := range t.switches {
		dpids = append(dpids, t.Nodes[name].DPID)
	}
	return dpids
}

// HasDPID reports whether a switch with the given DPID exists.
func (t *Topology) HasDPID(dpid DPID) bool {
	for _, name := range t.switches {
		if t.Nodes[name].DPID == dpid {
			return true
		}
	}
	return false
}

// Degree returns the number of links touching the node.
func (t *Topology) Degree(name string) int {
	degree := 0
	for _, link := range t.Links {
		if link.Has(name) {
			degree++
		}
	}
	return degree
}

// LinksOf returns the links touching the node.
func (t *Topology) LinksOf(name string) []Link {
	var links []Link
	for _, link := range t.Links {
		if link.Has(name) {
			links = append(links, link)
		}
	}
	return links
}

// HostInterface returns the name of the single interface of a host.
func (t *Topology) HostInterface(host string) (string, error) {
	node, ok := t.Nodes[host]
	if !ok || node.Type != NodeHost {
		return "", fmt.Errorf("unknown host %s", host)
	}
	links := t.LinksOf(host)
	if len(links) != 1 {
		return "", fmt.Errorf("host %s has %d links, want 1", host, len(links))
	}
	if links[0].NodeA == host {
		return links[0].IntfA(), nil
	}
	return links[0].IntfB(), nil
}

// Attachment returns the switch a host is linked to.
func (t *Topology) Attachment(host string) (Node, error) {
	for _, link := range t.LinksOf(host) {
		peer := link.NodeA
		if peer == host {
			peer = link.NodeB
		}
		if node := t.Nodes[peer]; node.Type == NodeSwitch {
			return node, nil
		}
	}
	return Node{}, fmt.Errorf("host %s is not attached to a switch", host)
}

// String renders the topology as one line per switch with its hosts.
func (t *Topology) String() string {
	var b strings.Builder
	for i, sw := range t.switches {
		if i > 0 {
			b.WriteString(" <-> ")
		}
		var hosts []string
		for _, link := range t.LinksOf(sw) {
			peer := link.NodeA
			if peer == sw {
				peer = link.NodeB
			}
			if t.Nodes[peer].Type == NodeHost {
				hosts = append(hosts, peer)
			}
		}
		sort.Strings(hosts)
		fmt.Fprintf(&b, "%s[%s]", sw, strings.Join(hosts, ","))
	}
	return b.String()
}
