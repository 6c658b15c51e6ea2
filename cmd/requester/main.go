// Command requester is the file-transfer receiver: for each sender
// peer listed in the tracker file for one filename, it requests the
// file through the local emulator and reassembles it in arrival order.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"netlab/internal/netlog"
	"netlab/internal/tracker"
	"netlab/internal/transport"
	"netlab/pkg/wire"
)

// trackerFile is the tracker's conventional path; the requester CLI
// has no flag for it.
const trackerFile = "tracker.txt"

const sessionTimeout = 60 * time.Second

func main() {
	var (
		port         = pflag.IntP("port", "p", 9000, "UDP port the requester listens on")
		filename     = pflag.StringP("output", "o", "", "filename to request and write")
		emulatorHost = pflag.StringP("emulator-host", "f", "127.0.0.1", "local emulator host")
		emulatorPort = pflag.IntP("emulator-port", "e", 9100, "local emulator port")
		window       = pflag.Uint32P("window", "w", 10, "window size advertised in the REQUEST packet")
	)
	pflag.Parse()

	log := netlog.New("requester")

	if *filename == "" {
		log.Fatal("missing required -o filename").Send()
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

	emulatorAddr := &net.UDPAddr{IP: net.ParseIP(resolveIP(*emulatorHost)), Port: *emulatorPort}

	f, err := os.OpenFile(*filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Fatal("cannot open output file").Err(err).Send()
		os.Exit(1)
	}
	defer f.Close()

	trackerHandle, err := os.Open(trackerFile)
	if err != nil {
		log.Fatal("cannot open tracker file").Err(err).Send()
		os.Exit(1)
	}
	defer trackerHandle.Close()

	peers, err := tracker.Load(trackerHandle, *filename)
	if err != nil {
		log.Fatal("cannot parse tracker file").Err(err).Send()
		os.Exit(1)
	}
	if len(peers) == 0 {
		log.Fatal("no tracker entry for filename").Str("filename", *filename).Send()
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warn("interrupted").Send()
		conn.Close()
		os.Exit(1)
	}()

	cfg := transport.RequesterConfig{
		Self:           selfAddr,
		EmulatorAddr:   emulatorAddr,
		Window:         *window,
		SessionTimeout: sessionTimeout,
	}

	for _, peer := range peers {
		log.Info("requesting from peer").Int("id", peer.ID).Str("peer", peer.Addr.String()).Send()

		summary, err := transport.RequestFile(conn, cfg, peer.Addr, *filename, f, log)
		if err != nil {
			log.Fatal("session failed").Err(err).Str("peer", peer.Addr.String()).Send()
			os.Exit(1)
		}

		log.Success("session complete").
			Str("peer", peer.Addr.String()).
			Int("packets", summary.PacketCount).
			Int("bytes", int(summary.ByteCount)).
			Dur("duration", summary.Duration).
			Send()
		fmt.Printf("peer %s: %d packets, %d bytes, %.2f pkt/s\n",
			peer.Addr, summary.PacketCount, summary.ByteCount, summary.PacketsPerSecond())
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
