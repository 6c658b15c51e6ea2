// Command route-trace discovers the path between two routing emulators
// by probing with TRACE packets of increasing TTL: each emulator
// decrements the TTL and forwards, the emulator that receives the probe
// with TTL already zero answers with its own address, and the probe
// prints one line per hop until the answer is the destination.
package main

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/pflag"

	"netlab/internal/netlog"
	"netlab/pkg/wire"
)

const (
	perProbeTimeout = 2 * time.Second
	overallTimeout  = 10 * time.Second
)

func main() {
	var (
		port     = pflag.IntP("port", "a", 9400, "UDP port the probe listens on for replies")
		srcHost  = pflag.StringP("source-host", "b", "", "first-hop emulator host (required)")
		srcPort  = pflag.IntP("source-port", "c", 0, "first-hop emulator port (required)")
		destHost = pflag.StringP("dest-host", "d", "", "destination emulator host (required)")
		destPort = pflag.IntP("dest-port", "e", 0, "destination emulator port (required)")
		debug    = pflag.IntP("debug", "f", 0, "1 to trace every probe sent and reply received")
	)
	pflag.Parse()

	log := netlog.New("route-trace")
	if *debug != 0 {
		log = log.WithDebug()
	}

	if *srcHost == "" || *srcPort == 0 || *destHost == "" || *destPort == 0 {
		log.Fatal("missing required -b/-c/-d/-e source and destination").Send()
		os.Exit(1)
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("0.0.0.0"), Port: *port})
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
	firstHop, err := resolveAddr(*srcHost, *srcPort)
	if err != nil {
		log.Fatal("bad source address").Err(err).Send()
		os.Exit(1)
	}
	dest, err := resolveAddr(*destHost, *destPort)
	if err != nil {
		log.Fatal("bad destination address").Err(err).Send()
		os.Exit(1)
	}

	deadline := time.Now().Add(overallTimeout)

	// TTL 1 exhausts at the first hop past the source emulator, so the
	// printed path starts one hop beyond -b/-c and ends at -d/-e.
	for ttl := uint32(1); ; ttl++ {
		if time.Now().After(deadline) {
			log.Fatal("trace did not reach destination").Dur("limit", overallTimeout).Send()
			os.Exit(1)
		}

		probe := wire.ControlMessage{
			Kind:        wire.Trace,
			Source:      selfAddr,
			TTL:         ttl,
			Destination: dest,
		}
		if _, err := conn.WriteToUDP(wire.EncodeControl(probe), firstHop.UDPAddr()); err != nil {
			log.Fatal("probe send failed").Err(err).Send()
			os.Exit(1)
		}
		if *debug != 0 {
			log.Debug("probe sent").Uint32("ttl", ttl).Str("to", firstHop.String()).Send()
		}

		reply, ok := awaitReply(conn, log, *debug != 0)
		if !ok {
			log.Fatal("no reply within per-probe timeout").Uint32("ttl", ttl).Send()
			os.Exit(1)
		}

		fmt.Printf("%d %s %d\n", ttl, reply.Source.UDPAddr().IP, reply.Source.Port)
		if reply.Source == dest {
			return
		}
	}
}

// awaitReply reads datagrams until a TRACE record arrives or the
// per-probe timeout expires. Anything else on the socket is ignored.
func awaitReply(conn *net.UDPConn, log *netlog.Logger, debug bool) (wire.ControlMessage, bool) {
	probeDeadline := time.Now().Add(perProbeTimeout)
	buf := make([]byte, 64*1024)
	for {
		remaining := time.Until(probeDeadline)
		if remaining <= 0 {
			return wire.ControlMessage{}, false
		}
		if err := conn.SetReadDeadline(time.Now().Add(remaining)); err != nil {
			return wire.ControlMessage{}, false
		}
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			return wire.ControlMessage{}, false
		}
		msg, decErr := wire.DecodeControl(buf[:n])
		if decErr != nil || msg.Kind != wire.Trace {
			continue
		}
		if debug {
			log.Debug("reply received").Str("from", from.String()).Str("source", msg.Source.String()).Send()
		}
		return msg, true
	}
}

func resolveAddr(host string, port int) (wire.Addr, error) {
	ip := net.ParseIP(host)
	if ip == nil {
		resolved, err := net.ResolveIPAddr("ip4", host)
		if err != nil {
			return wire.Addr{}, err
		}
		ip = resolved.IP
	}
	return wire.AddrFromUDP(&net.UDPAddr{IP: ip, Port: port})
}
