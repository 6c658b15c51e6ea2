// Command sender is the file server: it waits for one REQUEST, reads
// the named file from local disk, and drives the windowed
// send/ACK/retransmit loop until every chunk is delivered or exhausts
// its retry budget.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/xid"
	"github.com/spf13/pflag"

	"netlab/internal/metrics"
	"netlab/internal/netlog"
	"netlab/internal/statusapi"
	"netlab/internal/transport"
	"netlab/pkg/wire"
)

const requestTimeout = 60 * time.Second

func main() {
	var (
		port          = pflag.IntP("port", "p", 9100, "UDP port the sender listens on")
		requesterPort = pflag.IntP("requester-port", "g", 0, "legacy requester port (unused by the transport; kept for CLI compatibility)")
		rate          = pflag.Float64P("rate", "r", 100, "packets per second to pace sends at")
		initialSeq    = pflag.Uint32P("initial-seq", "q", 1, "first DATA sequence number")
		payloadLen    = pflag.IntP("payload-len", "l", 500, "maximum DATA payload length in bytes")
		emulatorHost  = pflag.StringP("emulator-host", "f", "127.0.0.1", "local emulator host")
		emulatorPort  = pflag.IntP("emulator-port", "e", 9200, "local emulator port")
		priority      = pflag.IntP("priority", "i", 1, "outer-header priority class (1, 2 or 3)")
		ackTimeoutMs  = pflag.IntP("ack-timeout", "t", 200, "per-window ACK collection timeout in milliseconds")
		statusAddr    = pflag.String("status-addr", "", "if set, serve /metrics on this address")
	)
	pflag.Parse()

	log := netlog.New("sender")

	priorityByte, err := priorityWireByte(*priority)
	if err != nil {
		log.Fatal("invalid priority").Err(err).Send()
		os.Exit(1)
	}

	selfUDPAddr := &net.UDPAddr{IP: net.ParseIP("0.0.0.0"), Port: *port}
	conn, err := net.ListenUDP("udp", selfUDPAddr)
	if err != nil {
		log.Fatal("listen failed").Err(err).Send()
		os.Exit(1)
	}
	defer conn.Close()

	selfAddr, err := wire.AddrFromUDP(&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: *port})
	if err != nil {
		log.Fatal("bad self address").Err(err).Send()
		os.Exit(1)
	}

	senderMetrics := metrics.NewSender(selfAddr.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *statusAddr != "" {
		srv := statusapi.NewMetricsOnly(senderMetrics.Registry())
		go func() {
			if err := srv.Run(ctx, *statusAddr); err != nil {
				log.Warn("status api stopped").Err(err).Send()
			}
		}()
	}

	cfg := transport.SenderConfig{
		Self:           selfAddr,
		EmulatorAddr:   &net.UDPAddr{IP: net.ParseIP(resolveIP(*emulatorHost)), Port: *emulatorPort},
		RequesterPort:  *requesterPort,
		RatePerSecond:  *rate,
		InitialSeq:     *initialSeq,
		PayloadLen:     *payloadLen,
		Priority:       priorityByte,
		AckTimeout:     time.Duration(*ackTimeoutMs) * time.Millisecond,
		RequestTimeout: requestTimeout,
	}

	log.Info("waiting for request").Dur("timeout", requestTimeout).Send()
	peer, window, filename, err := transport.AwaitRequest(conn, cfg)
	if err != nil {
		log.Fatal("no request received").Err(err).Send()
		os.Exit(1)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		log.Fatal("cannot read requested file").Err(err).Str("filename", filename).Send()
		os.Exit(1)
	}

	sessionID := xid.New().String()
	log.Info("serving request").
		Str("session", sessionID).
		Str("peer", peer.String()).
		Str("filename", filename).
		Uint32("window", window).
		Send()

	summary, err := transport.RunSender(ctx, conn, cfg, peer, window, sessionID, data, log)
	if err != nil {
		log.Fatal("session failed").Err(err).Send()
		os.Exit(1)
	}

	senderMetrics.RecordSession(summary.TotalPacketsSent, summary.TotalRetransmits, summary.LossRate())

	log.Success("session complete").
		Str("session", sessionID).
		Int("packets_sent", summary.TotalPacketsSent).
		Int("retransmits", summary.TotalRetransmits).
		Dur("duration", summary.Duration).
		Send()
	fmt.Printf("session %s: %d packets sent, %d retransmits, loss rate %.4f\n",
		sessionID, summary.TotalPacketsSent, summary.TotalRetransmits, summary.LossRate())
}

func priorityWireByte(p int) (byte, error) {
	switch p {
	case 1:
		return wire.Priority1, nil
	case 2:
		return wire.Priority2, nil
	case 3:
		return wire.Priority3, nil
	default:
		return 0, fmt.Errorf("priority must be 1, 2 or 3, got %d", p)
	}
}

func resolveIP(host string) string {
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	addrs, err := net.LookupHost(host)
	if err != nil || len(addrs) == 0 {
		return host
	}
	return addrs[0]
}
