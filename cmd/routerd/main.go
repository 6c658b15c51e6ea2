// Command routerd is the control-plane emulator: it runs the
// link-state routing engine (HELLO liveness, flooded LSM, BFS-derived
// forwarding table, TRACE responder) alongside the same forwarding
// plane the data-plane emulator uses, so traffic routes dynamically
// instead of via a static rules file.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"netlab/internal/forwarder"
	"netlab/internal/metrics"
	"netlab/internal/netlog"
	"netlab/internal/routing"
	"netlab/internal/statusapi"
	"netlab/internal/topology"
	"netlab/pkg/wire"
)

// defaultQueueCap is the forwarding plane's per-priority queue
// capacity for the control-plane emulator, which has no -q flag of its
// own (the data-plane emulator binary exposes one).
const defaultQueueCap = 32

func main() {
	var (
		port         = pflag.IntP("port", "p", 9300, "UDP port this routing emulator listens on")
		topologyPath = pflag.StringP("topology-file", "f", "", "topology file (required)")
		statusAddr   = pflag.String("status-addr", "", "if set, serve /queues, /routes, /neighbors and /metrics on this address")
	)
	pflag.Parse()

	log := netlog.New("routerd")

	if *topologyPath == "" {
		log.Fatal("missing required -f topology-file").Send()
		os.Exit(1)
	}

	selfAddr, err := wire.AddrFromUDP(&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: *port})
	if err != nil {
		log.Fatal("bad self address").Err(err).Send()
		os.Exit(1)
	}

	topoHandle, err := os.Open(*topologyPath)
	if err != nil {
		log.Fatal("cannot open topology file").Err(err).Send()
		os.Exit(1)
	}
	topo, err := topology.Load(topoHandle)
	topoHandle.Close()
	if err != nil {
		log.Fatal("cannot parse topology file").Err(err).Send()
		os.Exit(1)
	}

	selfNeighbors, known := topo.Neighbors[selfAddr]
	if !known {
		// UNKNOWN_LSM_SOURCE-style assertion: the topology file is
		// expected to be complete and list every node, including self.
		log.Fatal("self address not present in topology file").Str("self", selfAddr.String()).Send()
		os.Exit(1)
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("0.0.0.0"), Port: *port})
	if err != nil {
		log.Fatal("listen failed").Err(err).Send()
		os.Exit(1)
	}
	defer conn.Close()

	engine := routing.NewEngine(selfAddr, conn, selfNeighbors, topo.Nodes(), log)
	emuMetrics := metrics.NewEmulator(selfAddr.String())

	routingMetrics := metrics.NewRouting(emuMetrics.Registry(), selfAddr.String())
	engine.Events.On(routing.EventNeighborUp, func(routing.Event) { routingMetrics.NeighborUp() })
	engine.Events.On(routing.EventNeighborDown, func(routing.Event) { routingMetrics.NeighborDown() })
	engine.Events.On(routing.EventTableRebuilt, func(routing.Event) { routingMetrics.TableRebuilt() })

	plane := forwarder.New(conn, engine, defaultQueueCap, log, emuMetrics)
	plane.SetControlHandler(engine)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *statusAddr != "" {
		srv := statusapi.New(emuMetrics, engine)
		go func() {
			if err := srv.Run(ctx, *statusAddr); err != nil {
				log.Warn("status api stopped").Err(err).Send()
			}
		}()
	}

	log.Success("routing emulator running").
		Str("addr", selfAddr.String()).
		Int("neighbors", len(selfNeighbors)).
		Int("node_count", topo.NodeCount()).
		Send()
	if err := plane.Run(ctx); err != nil {
		log.Fatal("forwarding plane stopped").Err(err).Send()
		os.Exit(1)
	}
}
