// Command emulator is the data-plane network emulator: it classifies
// incoming datagrams into three bounded priority queues, applies a
// per-destination delay and probabilistic loss from a static
// forwarding-rules file, and forwards survivors to their next hop.
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
	"netlab/internal/rules"
	"netlab/internal/statusapi"
	"netlab/pkg/wire"
)

func main() {
	var (
		port        = pflag.IntP("port", "p", 9200, "UDP port this emulator listens on")
		queueCap    = pflag.IntP("queue-cap", "q", 10, "capacity of each of the three priority queues")
		rulesPath   = pflag.StringP("rules-file", "f", "", "forwarding-rules file (required)")
		logFilePath = pflag.StringP("log-file", "l", "", "append drop-event log lines to this file in addition to stderr")
		statusAddr  = pflag.String("status-addr", "", "if set, serve /queues and /metrics on this address")
	)
	pflag.Parse()

	log := netlog.New("emulator")

	if *rulesPath == "" {
		log.Fatal("missing required -f rules-file").Send()
		os.Exit(1)
	}

	if *logFilePath != "" {
		logFile, err := os.OpenFile(*logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			log.Fatal("cannot open log file").Err(err).Send()
			os.Exit(1)
		}
		defer logFile.Close()
		log = netlog.NewMulti(logFile, "emulator")
	}

	selfAddr, err := wire.AddrFromUDP(&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: *port})
	if err != nil {
		log.Fatal("bad self address").Err(err).Send()
		os.Exit(1)
	}

	rulesHandle, err := os.Open(*rulesPath)
	if err != nil {
		log.Fatal("cannot open rules file").Err(err).Send()
		os.Exit(1)
	}
	table, err := rules.Load(rulesHandle, selfAddr)
	rulesHandle.Close()
	if err != nil {
		log.Fatal("cannot parse rules file").Err(err).Send()
		os.Exit(1)
	}
	log.Info("loaded forwarding rules").Int("count", table.Len()).Send()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("0.0.0.0"), Port: *port})
	if err != nil {
		log.Fatal("listen failed").Err(err).Send()
		os.Exit(1)
	}
	defer conn.Close()

	emuMetrics := metrics.NewEmulator(selfAddr.String())
	plane := forwarder.New(conn, table, *queueCap, log, emuMetrics)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *statusAddr != "" {
		srv := statusapi.New(emuMetrics, nil)
		go func() {
			if err := srv.Run(ctx, *statusAddr); err != nil {
				log.Warn("status api stopped").Err(err).Send()
			}
		}()
	}

	log.Success("emulator running").Str("addr", selfAddr.String()).Int("queue_cap", *queueCap).Send()
	if err := plane.Run(ctx); err != nil {
		log.Fatal("forwarding plane stopped").Err(err).Send()
		os.Exit(1)
	}
}
