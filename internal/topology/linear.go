package topology

import (
	"errors"
	"fmt"
)

// OpenFlow13 is the protocol tag set on every switch of a linear topology.
const OpenFlow13 = "OpenFlow13"

var ErrInvalidTopology = errors.New("invalid topology")

// BuildLinear constructs N hosts and N-1 switches connected as follows:
//
//	h1 <-> s1 <-> s2 .. sN-1
//	       |      |     |
//	       h2     h3    hN
//
// Switch s<i> gets DPID i.
func BuildLinear(hostCount int) (*Topology, error) {
	if hostCount < 2 {
		return nil, fmt.Errorf("%w: need at least 2 hosts, got %d", ErrInvalidTopology, hostCount)
	}

	t := NewTopology()
	hosts := make([]string, hostCount)
	for i := range hosts {
		hosts[i] = fmt.Sprintf("h%d", i+1)
		if err := t.AddHost(hosts[i]); err != nil {
			return nil, err
		}
	}

	switches := make([]string, hostCount-1)
	for i := range switches {
		switches[i] = fmt.Sprintf("s%d", i+1)
		if err := t.AddSwitch(switches[i], DPID(i+1), OpenFlow13); err != nil {
			return nil, err
		}
	}

	// Wire up switches
	for i := 0; i+1 < len(switches); i++ {
		if err := t.AddLink(switches[i], switches[i+1]); err != nil {
			return nil, err
		}
	}

	// Wire up hosts
	if err := t.AddLink(hosts[0], switches[0]); err != nil {
		return nil, err
	}
	for i := 1; i < hostCount; i++ {
		if err := t.AddLink(hosts[i], switches[i-1]); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// Validate checks the shape BuildLinear produces: every host has one link
// to a switch, the switches form a simple path and the graph is a tree.
func (t *Topology) Validate() error {
	if len(t.hosts) < 2 || len(t.switches) != len(t.hosts)-1 {
		return fmt.Errorf("%w: %d hosts and %d switches", ErrInvalidTopology, len(t.hosts), len(t.switches))
	}
	if len(t.Links) != len(t.Nodes)-1 {
		return fmt.Errorf("%w: %d links for %d nodes", ErrInvalidTopology, len(t.Links), len(t.Nodes))
	}

	for _, host := range t.hosts {
		if d := t.Degree(host); d != 1 {
			return fmt.Errorf("%w: host %s has degree %d", ErrInvalidTopology, host, d)
		}
		if _, err := t.Attachment(host); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTopology, err)
		}
	}

	// Switch-to-switch links must join consecutive chain positions.
	position := make(map[string]int, len(t.switches))
	for i, sw := range t.switches {
		position[sw] = i
	}
	seen := make(map[int]bool)
	for _, link := range t.Links {
		pa, okA := position[link.NodeA]
		pb, okB := position[link.NodeB]
		if !okA || !okB {
			continue
		}
		lo, hi := pa, pb
		if lo > hi {
			lo, hi = hi, lo
		}
		if hi-lo != 1 || seen[lo] {
			return fmt.Errorf("%w: unexpected switch link %s-%s", ErrInvalidTopology, link.NodeA, link.NodeB)
		}
		seen[lo] = true
	}
	if len(seen) != len(t.switches)-1 {
		return fmt.Errorf("%w: switch chain is broken", ErrInvalidTopology)
	}

	return t.checkConnected()
}

func (t *Topology) checkConnected() error {
	if len(t.Nodes) == 0 {
		return nil
	}
	adjacent := make(map[string][]string, len(t.Nodes))
	for _, link := range t.Links {
		adjacent[link.NodeA] = append(adjacent[link.NodeA], link.NodeB)
		adjacent[link.NodeB] = append(adjacent[link.NodeB], link.NodeA)
	}

	start := t.hosts[0]
	visited := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adjacent[cur] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	if len(visited) != len(t.Nodes) {
		return fmt.Errorf("%w: %d of %d nodes reachable", ErrInvalidTopology, len(visited), len(t.Nodes))
	}
	return nil
}
