package tracker

import (
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netlab/pkg/wire"
)

const sampleTracker = `
report.bin 2 127.0.0.1 9102
report.bin 1 127.0.0.1 9101
other.bin 1 127.0.0.1 9103
`

func TestLoadOrdersPeersByID(t *testing.T) {
	peers, err := Load(strings.NewReader(sampleTracker), "report.bin")
	require.NoError(t, err)
	require.Len(t, peers, 2)

	assert.Equal(t, 1, peers[0].ID)
	assert.Equal(t, 2, peers[1].ID)

	first, err := wire.AddrFromUDP(&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9101})
	require.NoError(t, err)
	assert.Equal(t, first, peers[0].Addr)
}

func TestLoadFiltersByFilename(t *testing.T) {
	peers, err := Load(strings.NewReader(sampleTracker), "other.bin")
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, uint16(9103), peers[0].Addr.Port)
}

func TestLoadUnknownFilenameYieldsNoPeers(t *testing.T) {
	peers, err := Load(strings.NewReader(sampleTracker), "missing.bin")
	require.NoError(t, err)
	assert.Empty(t, peers)
}

func TestLoadRejectsMalformedLine(t *testing.T) {
	_, err := Load(strings.NewReader("report.bin 1 127.0.0.1\n"), "report.bin")
	assert.Error(t, err)

	_, err = Load(strings.NewReader("report.bin one 127.0.0.1 9101\n"), "report.bin")
	assert.Error(t, err)
}
