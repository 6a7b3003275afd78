package topology_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdnlab/internal/topology"
)

func TestBuildLinearShape(t *testing.T) {
	for n := 2; n <= 12; n++ {
		t.Run(fmt.Sprintf("hosts=%d", n), func(t *testing.T) {
			topo, err := topology.BuildLinear(n)
			require.NoError(t, err)

			assert.Len(t, topo.Hosts(), n)
			assert.Len(t, topo.Switches(), n-1)
			// A tree over 2n-1 nodes: n host links plus n-2 switch links.
			assert.Len(t, topo.Links, 2*n-2)
			assert.NoError(t, topo.Validate())

			hostLinks := 0
			for _, link := range topo.Links {
				if topo.Nodes[link.NodeA].Type == topology.NodeHost ||
					topo.Nodes[link.NodeB].Type == topology.NodeHost {
					hostLinks++
				}
			}
			assert.Equal(t, n, hostLinks)

			for _, host := range topo.Hosts() {
				assert.Equal(t, 1, topo.Degree(host.Name), host.Name)
			}

			// Switch subgraph is a simple path s1-s2-...-sN-1.
			var switchLinks []topology.Link
			for _, link := range topo.Links {
				if topo.Nodes[link.NodeA].Type == topology.NodeSwitch &&
					topo.Nodes[link.NodeB].Type == topology.NodeSwitch {
					switchLinks = append(switchLinks, link)
				}
			}
			require.Len(t, switchLinks, n-2)
			for i, link := range switchLinks {
				assert.Equal(t, fmt.Sprintf("s%d", i+1), link.NodeA)
				assert.Equal(t, fmt.Sprintf("s%d", i+2), link.NodeB)
			}
		})
	}
}

func TestBuildLinearAttachments(t *testing.T) {
	topo, err := topology.BuildLinear(6)
	require.NoError(t, err)

	expected := map[string]string{
		"h1": "s1",
		"h2": "s1",
		"h3": "s2",
		"h4": "s3",
		"h5": "s4",
		"h6": "s5",
	}
	for host, sw := range expected {
		node, err := topo.Attachment(host)
		require.NoError(t, err)
		assert.Equal(t, sw, node.Name, host)
	}

	assert.Equal(t, 3, topo.Degree("s1"))
	assert.Equal(t, 3, topo.Degree("s2"))
	assert.Equal(t, 2, topo.Degree("s5"))
	assert.Equal(t, []topology.DPID{1, 2, 3, 4, 5}, topo.DPIDs())

	for _, sw := range topo.Switches() {
		assert.Equal(t, []string{topology.OpenFlow13}, sw.Protocols)
	}
	assert.Equal(t, "s1[h1,h2] <-> s2[h3] <-> s3[h4] <-> s4[h5] <-> s5[h6]", topo.String())
}

func TestBuildLinearInterfaces(t *testing.T) {
	topo, err := topology.BuildLinear(3)
	require.NoError(t, err)

	// Switch links come first, so s1-eth1 faces s2 and hosts follow.
	assert.Equal(t, []topology.Link{
		{NodeA: "s1", NodeB: "s2", PortA: 1, PortB: 1},
		{NodeA: "h1", NodeB: "s1", PortA: 0, PortB: 2},
		{NodeA: "h2", NodeB: "s1", PortA: 0, PortB: 3},
		{NodeA: "h3", NodeB: "s2", PortA: 0, PortB: 2},
	}, topo.Links)

	intf, err := topo.HostInterface("h3")
	require.NoError(t, err)
	assert.Equal(t, "h3-eth0", intf)

	_, err = topo.HostInterface("s1")
	assert.Error(t, err)
}

func TestBuildLinearInvalid(t *testing.T) {
	for _, n := range []int{-1, 0, 1} {
		topo, err := topology.BuildLinear(n)
		assert.ErrorIs(t, err, topology.ErrInvalidTopology, "hosts=%d", n)
		assert.Nil(t, topo)
	}
}

func TestValidateRejectsBrokenShapes(t *testing.T) {
	testCases := map[string]func(t *testing.T) *topology.Topology{
		"host with two links": func(t *testing.T) *topology.Topology {
			topo := topology.NewTopology()
			require.NoError(t, topo.AddHost("h1"))
			require.NoError(t, topo.AddHost("h2"))
			require.NoError(t, topo.AddSwitch("s1", 1))
			require.NoError(t, topo.AddLink("h1", "s1"))
			require.NoError(t, topo.AddLink("h1", "h2"))
			return topo
		},
		"switch cycle": func(t *testing.T) *topology.Topology {
			topo := topology.NewTopology()
			for i := 1; i <= 4; i++ {
				require.NoError(t, topo.AddHost(fmt.Sprintf("h%d", i)))
			}
			for i := 1; i <= 3; i++ {
				require.NoError(t, topo.AddSwitch(fmt.Sprintf("s%d", i), topology.DPID(i)))
			}
			require.NoError(t, topo.AddLink("s1", "s2"))
			require.NoError(t, topo.AddLink("s2", "s3"))
			require.NoError(t, topo.AddLink("s3", "s1"))
			return topo
		},
		"too few switches": func(t *testing.T) *topology.Topology {
			topo := topology.NewTopology()
			require.NoError(t, topo.AddHost("h1"))
			require.NoError(t, topo.AddHost("h2"))
			require.NoError(t, topo.AddHost("h3"))
			require.NoError(t, topo.AddSwitch("s1", 1))
			return topo
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, tc(t).Validate(), topology.ErrInvalidTopology)
		})
	}
}

func TestAddChecks(t *testing.T) {
	topo := topology.NewTopology()
	require.NoError(t, topo.AddHost("h1"))
	assert.Error(t, topo.AddHost("h1"))
	require.NoError(t, topo.AddSwitch("s1", 1))
	assert.Error(t, topo.AddSwitch("s2", 1))
	assert.Error(t, topo.AddLink("h1", "s9"))
	assert.Error(t, topo.AddLink("s1", "s1"))
	assert.True(t, topo.HasDPID(1))
	assert.False(t, topo.HasDPID(2))
}
