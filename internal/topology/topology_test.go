package topology

import (
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netlab/pkg/wire"
)

const sampleTopology = `
# five-node ring
127.0.0.1,9001 127.0.0.1,9002 127.0.0.1,9005
127.0.0.1,9002 127.0.0.1,9001 127.0.0.1,9003
127.0.0.1,9003 127.0.0.1,9002 127.0.0.1,9004
127.0.0.1,9004 127.0.0.1,9003 127.0.0.1,9005
127.0.0.1,9005 127.0.0.1,9004 127.0.0.1,9001
`

func mustAddr(t *testing.T, port int) wire.Addr {
	t.Helper()
	a, err := wire.AddrFromUDP(&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: port})
	require.NoError(t, err)
	return a
}

func TestLoadRingTopology(t *testing.T) {
	topo, err := Load(strings.NewReader(sampleTopology))
	require.NoError(t, err)

	require.Len(t, topo.Neighbors, 5)
	n1 := topo.Neighbors[mustAddr(t, 9001)]
	require.Len(t, n1, 2)
	assert.Contains(t, n1, mustAddr(t, 9002))
	assert.Contains(t, n1, mustAddr(t, 9005))
}

func TestNodeCountIncludesNeighborOnlyNodes(t *testing.T) {
	// 9002 never gets its own line but is named as a neighbor.
	topo, err := Load(strings.NewReader("127.0.0.1,9001 127.0.0.1,9002\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, topo.NodeCount())

	nodes := topo.Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, mustAddr(t, 9001), nodes[0])
	assert.Equal(t, mustAddr(t, 9002), nodes[1])
}

func TestLoadRejectsBadAddress(t *testing.T) {
	_, err := Load(strings.NewReader("127.0.0.1:9001 127.0.0.1,9002\n"))
	assert.Error(t, err)

	_, err = Load(strings.NewReader("127.0.0.1,9001 127.0.0.1,notaport\n"))
	assert.Error(t, err)
}

func TestLoadSkipsBlankAndCommentLines(t *testing.T) {
	topo, err := Load(strings.NewReader("\n# comment\n127.0.0.1,9001 127.0.0.1,9002\n"))
	require.NoError(t, err)
	assert.Len(t, topo.Neighbors, 1)
}
