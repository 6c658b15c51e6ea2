// Package routing implements the link-state control plane: neighbor
// liveness via HELLO, flooded LSM advertisements with sequence
// suppression and TTL, BFS shortest-path forwarding table recomputation,
// and the TRACE responder.
package routing

import (
	"net"
	"sync"
	"time"

	"netlab/internal/netlog"
	"netlab/pkg/wire"
)

const (
	HelloInterval   = 1500 * time.Millisecond
	LSMInterval     = 1500 * time.Millisecond
	NeighborTimeout = 3500 * time.Millisecond
)

// Engine owns all control-plane state for one node: its adjacency list,
// neighbor liveness, LSM sequence tracker, and the BFS-derived forwarding
// table. It implements forwarder.ControlHandler so a single cooperative
// loop can drive both the data plane and the control plane, and
// forwarder.RuleResolver so that same table can answer routing lookups.
type Engine struct {
	self wire.Addr
	conn *net.UDPConn
	log  *netlog.Logger

	adj         map[wire.Addr]adjacencySet
	known       map[wire.Addr]struct{}
	liveness    map[wire.Addr]time.Time
	seqTracking map[wire.Addr]uint32
	table       map[wire.Addr]wire.Addr

	localSeq uint32
	ttlInit  uint32

	lastHello time.Time
	lastLSM   time.Time

	Events *EventManager

	// snapshotMu guards reads of table/liveness from the status API's
	// goroutine; every mutation below still happens on the engine's own
	// cooperative loop goroutine.
	snapshotMu sync.RWMutex
}

// NewEngine builds an engine for self, seeded with its direct neighbors
// from the topology file (selfNeighbors) and the full node set across
// the whole topology (nodes, used both to derive TTL_INIT = len(nodes)+1
// and to assert LSM sources are known). Other nodes' adjacency is
// unknown until their LSMs arrive.
func NewEngine(self wire.Addr, conn *net.UDPConn, selfNeighbors, nodes []wire.Addr, log *netlog.Logger) *Engine {
	e := &Engine{
		self:        self,
		conn:        conn,
		log:         log,
		adj:         make(map[wire.Addr]adjacencySet),
		known:       make(map[wire.Addr]struct{}, len(nodes)),
		liveness:    make(map[wire.Addr]time.Time),
		seqTracking: make(map[wire.Addr]uint32),
		ttlInit:     uint32(len(nodes) + 1),
		Events:      NewEventManager(),
	}
	for _, n := range nodes {
		e.known[n] = struct{}{}
	}
	set := make(adjacencySet, len(selfNeighbors))
	now := time.Now()
	for _, n := range selfNeighbors {
		set[n] = struct{}{}
		e.liveness[n] = now
	}
	e.adj[self] = set
	e.rebuildTable()
	return e
}

// Resolve implements forwarder.RuleResolver. Dynamic routing carries no
// per-link delay or loss configuration, so both are reported as zero;
// the data-plane delay/loss model belongs to the static rules file used
// by the other emulator binary.
func (e *Engine) Resolve(dst wire.Addr) (nextHop wire.Addr, delayMs, lossPercent int, ok bool) {
	hop, found := e.table[dst]
	return hop, 0, 0, found
}

// Table returns a snapshot of the current forwarding table, for the
// status API. Safe to call from any goroutine.
func (e *Engine) Table() map[wire.Addr]wire.Addr {
	e.snapshotMu.RLock()
	defer e.snapshotMu.RUnlock()
	snapshot := make(map[wire.Addr]wire.Addr, len(e.table))
	for k, v := range e.table {
		snapshot[k] = v
	}
	return snapshot
}

// Neighbors returns a snapshot of self's current live neighbor set and
// last-HELLO timestamps, for the status API. Safe to call from any
// goroutine.
func (e *Engine) Neighbors() map[wire.Addr]time.Time {
	e.snapshotMu.RLock()
	defer e.snapshotMu.RUnlock()
	snapshot := make(map[wire.Addr]time.Time, len(e.liveness))
	for k, v := range e.liveness {
		snapshot[k] = v
	}
	return snapshot
}

func (e *Engine) isAlive(n wire.Addr, now time.Time) bool {
	ts, ok := e.liveness[n]
	return ok && now.Sub(ts) <= NeighborTimeout
}

func (e *Engine) rebuildTable() {
	table := buildForwardingTable(e.self, e.adj)
	e.snapshotMu.Lock()
	e.table = table
	e.snapshotMu.Unlock()
	e.Events.Fire(Event{Kind: EventTableRebuilt})
}

// HandleControl implements forwarder.ControlHandler.
func (e *Engine) HandleControl(data []byte, from *net.UDPAddr) {
	msg, err := wire.DecodeControl(data)
	if err != nil {
		e.log.Warn("malformed control record").Str("from", from.String()).Send()
		return
	}

	fromAddr, addrErr := wire.AddrFromUDP(from)
	if addrErr != nil {
		return
	}

	switch msg.Kind {
	case wire.Hello:
		e.handleHello(msg.Source)
	case wire.Lsm:
		e.handleLSM(msg, fromAddr)
	case wire.Trace:
		e.handleTrace(msg)
	}
}

func (e *Engine) handleHello(from wire.Addr) {
	e.snapshotMu.Lock()
	e.liveness[from] = time.Now()
	e.snapshotMu.Unlock()

	self := e.adj[e.self]
	if self == nil {
		self = make(adjacencySet)
		e.adj[e.self] = self
	}
	e.known[from] = struct{}{}

	if _, adjacent := self[from]; adjacent {
		return
	}
	self[from] = struct{}{}

	peer := e.adj[from]
	if peer == nil {
		peer = make(adjacencySet)
		e.adj[from] = peer
	}
	peer[e.self] = struct{}{}

	e.seqTracking[from] = 0
	e.rebuildTable()
	e.Events.Fire(Event{Kind: EventNeighborUp, Node: from})
}

func (e *Engine) handleLSM(msg wire.ControlMessage, from wire.Addr) {
	if _, known := e.known[msg.Source]; !known {
		// The topology file is expected to be complete; an LSM from a
		// node it never named means the deployment is misconfigured.
		e.log.Fatal("lsm from unknown source").Str("source", msg.Source.String()).Send()
	}
	if msg.TTL == 0 {
		return
	}
	if prev, seen := e.seqTracking[msg.Source]; seen && prev >= msg.SeqNum {
		return
	}
	e.seqTracking[msg.Source] = msg.SeqNum

	newSet := make(adjacencySet, len(msg.Neighbors))
	for _, n := range msg.Neighbors {
		newSet[n] = struct{}{}
	}
	if !sameSet(e.adj[msg.Source], newSet) {
		e.adj[msg.Source] = newSet
		e.rebuildTable()
	}

	e.reflood(msg, from)
}

func (e *Engine) reflood(msg wire.ControlMessage, except wire.Addr) {
	msg.TTL--
	encoded := wire.EncodeControl(msg)
	for _, n := range sortedNeighbors(e.adj[e.self]) {
		if n == except {
			continue
		}
		if _, err := e.conn.WriteToUDP(encoded, n.UDPAddr()); err != nil {
			e.log.Warn("reflood failed").Str("to", n.String()).Err(err).Send()
		}
	}
}

func (e *Engine) handleTrace(msg wire.ControlMessage) {
	if msg.TTL > 0 {
		msg.TTL--
		hop, ok := e.table[msg.Destination]
		if !ok {
			e.log.Warn("trace destination unreachable").Str("dst", msg.Destination.String()).Send()
			return
		}
		if _, err := e.conn.WriteToUDP(wire.EncodeControl(msg), hop.UDPAddr()); err != nil {
			e.log.Warn("trace forward failed").Err(err).Send()
		}
		return
	}

	// TTL exhausted here: answer with our own address so the probe can
	// print this hop. The reply goes straight back to the originator's
	// socket — the probe is not a node in the topology, so it has no
	// forwarding-table entry anywhere.
	reply := wire.ControlMessage{
		Kind:        wire.Trace,
		Source:      e.self,
		Destination: msg.Source,
	}
	if _, err := e.conn.WriteToUDP(wire.EncodeControl(reply), msg.Source.UDPAddr()); err != nil {
		e.log.Warn("trace reply failed").Err(err).Send()
	}
}

// Tick implements forwarder.ControlHandler: periodic HELLO/LSM broadcast
// and the neighbor liveness sweep, all driven from the shared
// cooperative loop rather than background tickers.
func (e *Engine) Tick(now time.Time) {
	e.livenessSweep(now)

	if now.Sub(e.lastHello) >= HelloInterval {
		e.lastHello = now
		e.broadcastHello(now)
	}
	if now.Sub(e.lastLSM) >= LSMInterval {
		e.lastLSM = now
		e.broadcastLSM(now)
	}
}

func (e *Engine) broadcastHello(now time.Time) {
	msg := wire.ControlMessage{Kind: wire.Hello, Source: e.self}
	encoded := wire.EncodeControl(msg)
	for _, n := range sortedNeighbors(e.adj[e.self]) {
		if !e.isAlive(n, now) {
			continue
		}
		if _, err := e.conn.WriteToUDP(encoded, n.UDPAddr()); err != nil {
			e.log.Warn("hello send failed").Str("to", n.String()).Err(err).Send()
		}
	}
}

func (e *Engine) broadcastLSM(now time.Time) {
	e.localSeq++
	neighbors := sortedNeighbors(e.adj[e.self])
	msg := wire.ControlMessage{Kind: wire.Lsm, Source: e.self, SeqNum: e.localSeq, TTL: e.ttlInit, Neighbors: neighbors}
	encoded := wire.EncodeControl(msg)
	for _, n := range neighbors {
		if !e.isAlive(n, now) {
			continue
		}
		if _, err := e.conn.WriteToUDP(encoded, n.UDPAddr()); err != nil {
			e.log.Warn("lsm send failed").Str("to", n.String()).Err(err).Send()
		}
	}
}

func (e *Engine) livenessSweep(now time.Time) {
	var stale []wire.Addr
	for n, ts := range e.liveness {
		if now.Sub(ts) > NeighborTimeout {
			stale = append(stale, n)
		}
	}
	if len(stale) == 0 {
		return
	}
	wire.SortAddrs(stale)

	for _, n := range stale {
		e.snapshotMu.Lock()
		delete(e.liveness, n)
		e.snapshotMu.Unlock()
		delete(e.adj[e.self], n)
		delete(e.adj[n], e.self)
		e.Events.Fire(Event{Kind: EventNeighborDown, Node: n})
		e.log.Warn("neighbor down").Str("addr", n.String()).Send()
	}

	e.rebuildTable()
	e.localSeq++
	neighbors := sortedNeighbors(e.adj[e.self])
	msg := wire.ControlMessage{Kind: wire.Lsm, Source: e.self, SeqNum: e.localSeq, TTL: e.ttlInit, Neighbors: neighbors}
	encoded := wire.EncodeControl(msg)
	for _, n := range neighbors {
		if _, err := e.conn.WriteToUDP(encoded, n.UDPAddr()); err != nil {
			e.log.Warn("lsm send failed").Str("to", n.String()).Err(err).Send()
		}
	}
}
