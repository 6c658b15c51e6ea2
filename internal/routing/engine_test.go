package routing

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netlab/internal/netlog"
	"netlab/pkg/wire"
)

func listenLoopback(t *testing.T) (*net.UDPConn, wire.Addr) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	a, err := wire.AddrFromUDP(conn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	return conn, a
}

func readControl(t *testing.T, conn *net.UDPConn) wire.ControlMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 64*1024)
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)
	msg, err := wire.DecodeControl(buf[:n])
	require.NoError(t, err)
	return msg
}

func TestHelloBootstrapsAdjacencyAndRoute(t *testing.T) {
	conn, self := listenLoopback(t)
	_, peer := listenLoopback(t)

	e := NewEngine(self, conn, nil, []wire.Addr{self, peer}, netlog.New("test"))

	e.handleHello(peer)

	table := e.Table()
	require.Contains(t, table, peer)
	assert.Equal(t, peer, table[peer])

	liveness := e.Neighbors()
	assert.Contains(t, liveness, peer)
}

func TestLSMSequenceSuppression(t *testing.T) {
	conn, self := listenLoopback(t)
	_, peer := listenLoopback(t)
	far := wire.Addr{IP: 0x7F000001, Port: 65000}

	e := NewEngine(self, conn, []wire.Addr{peer}, []wire.Addr{self, peer, far}, netlog.New("test"))

	lsm := wire.ControlMessage{
		Kind:      wire.Lsm,
		Source:    peer,
		SeqNum:    5,
		TTL:       4,
		Neighbors: []wire.Addr{self, far},
	}
	e.handleLSM(lsm, peer)

	table := e.Table()
	require.Contains(t, table, far)
	assert.Equal(t, peer, table[far])
	assert.Equal(t, uint32(5), e.seqTracking[peer])

	// A stale advertisement with the same sequence must not win even if
	// its neighbor set differs.
	stale := lsm
	stale.Neighbors = []wire.Addr{self}
	e.handleLSM(stale, peer)
	assert.Contains(t, e.Table(), far)

	// A newer sequence replaces the adjacency and reroutes.
	newer := lsm
	newer.SeqNum = 6
	newer.Neighbors = []wire.Addr{self}
	e.handleLSM(newer, peer)
	assert.NotContains(t, e.Table(), far)
	assert.Equal(t, uint32(6), e.seqTracking[peer])
}

func TestLSMWithZeroTTLIsDropped(t *testing.T) {
	conn, self := listenLoopback(t)
	_, peer := listenLoopback(t)
	far := wire.Addr{IP: 0x7F000001, Port: 65001}

	e := NewEngine(self, conn, []wire.Addr{peer}, []wire.Addr{self, peer, far}, netlog.New("test"))

	lsm := wire.ControlMessage{Kind: wire.Lsm, Source: peer, SeqNum: 1, TTL: 0, Neighbors: []wire.Addr{self, far}}
	e.handleLSM(lsm, peer)

	assert.NotContains(t, e.Table(), far)
	assert.Zero(t, e.seqTracking[peer])
}

func TestLSMRefloodsToOtherNeighborsWithDecrementedTTL(t *testing.T) {
	conn, self := listenLoopback(t)
	otherConn, other := listenLoopback(t)
	_, origin := listenLoopback(t)

	e := NewEngine(self, conn, []wire.Addr{origin, other}, []wire.Addr{self, origin, other}, netlog.New("test"))

	lsm := wire.ControlMessage{
		Kind:      wire.Lsm,
		Source:    origin,
		SeqNum:    3,
		TTL:       4,
		Neighbors: []wire.Addr{self},
	}
	e.handleLSM(lsm, origin)

	got := readControl(t, otherConn)
	assert.Equal(t, wire.Lsm, got.Kind)
	assert.Equal(t, origin, got.Source)
	assert.Equal(t, uint32(3), got.SeqNum)
	assert.Equal(t, uint32(3), got.TTL)
}

func TestLivenessSweepDropsStaleNeighborAndReroutes(t *testing.T) {
	conn, self := listenLoopback(t)
	_, peer := listenLoopback(t)

	e := NewEngine(self, conn, []wire.Addr{peer}, []wire.Addr{self, peer}, netlog.New("test"))
	require.Contains(t, e.Table(), peer)

	e.livenessSweep(time.Now().Add(NeighborTimeout + time.Second))

	assert.NotContains(t, e.Table(), peer)
	assert.NotContains(t, e.Neighbors(), peer)
}

func TestTraceExhaustedTTLRepliesDirectlyToOriginator(t *testing.T) {
	conn, self := listenLoopback(t)
	probeConn, probe := listenLoopback(t)
	_, dest := listenLoopback(t)

	e := NewEngine(self, conn, nil, []wire.Addr{self, dest}, netlog.New("test"))

	e.handleTrace(wire.ControlMessage{Kind: wire.Trace, Source: probe, TTL: 0, Destination: dest})

	reply := readControl(t, probeConn)
	assert.Equal(t, wire.Trace, reply.Kind)
	assert.Equal(t, self, reply.Source)
	assert.Equal(t, probe, reply.Destination)
}

func TestTraceForwardsWithDecrementedTTL(t *testing.T) {
	conn, self := listenLoopback(t)
	hopConn, hop := listenLoopback(t)
	_, probe := listenLoopback(t)
	far := wire.Addr{IP: 0x7F000001, Port: 65002}

	e := NewEngine(self, conn, []wire.Addr{hop}, []wire.Addr{self, hop, far}, netlog.New("test"))
	e.handleLSM(wire.ControlMessage{
		Kind:      wire.Lsm,
		Source:    hop,
		SeqNum:    1,
		TTL:       4,
		Neighbors: []wire.Addr{self, far},
	}, hop)
	require.Contains(t, e.Table(), far)

	e.handleTrace(wire.ControlMessage{Kind: wire.Trace, Source: probe, TTL: 2, Destination: far})

	got := readControl(t, hopConn)
	assert.Equal(t, wire.Trace, got.Kind)
	assert.Equal(t, probe, got.Source)
	assert.Equal(t, uint32(1), got.TTL)
	assert.Equal(t, far, got.Destination)
}

func TestTickBroadcastsHelloToAliveNeighbors(t *testing.T) {
	conn, self := listenLoopback(t)
	peerConn, peer := listenLoopback(t)

	e := NewEngine(self, conn, []wire.Addr{peer}, []wire.Addr{self, peer}, netlog.New("test"))

	e.Tick(time.Now().Add(HelloInterval + time.Millisecond))

	// The tick sends both a HELLO and (LSM interval also elapsed) an
	// LSM; the first record on the socket must be one of the two with
	// self as source.
	got := readControl(t, peerConn)
	assert.Equal(t, self, got.Source)
	assert.Contains(t, []wire.ControlKind{wire.Hello, wire.Lsm}, got.Kind)
}
