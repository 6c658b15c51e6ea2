package transport

import (
	"errors"
	"io"
	"net"
	"time"

	"netlab/internal/netlog"
	"netlab/pkg/wire"
)

// ErrSessionTimeout is returned when no datagram arrives for
// SessionTimeout during a transfer. Callers treat this as fatal.
var ErrSessionTimeout = errors.New("transport: session receive timeout")

// RequesterConfig holds the requester's CLI-configured behavior.
type RequesterConfig struct {
	Self           wire.Addr
	EmulatorAddr   *net.UDPAddr
	Window         uint32
	SessionTimeout time.Duration
}

// RequesterSummary is the per-peer report: packet count, byte count,
// duration, and derived throughput.
type RequesterSummary struct {
	Peer        wire.Addr
	PacketCount int
	ByteCount   int64
	Duration    time.Duration
	Anomalies   int
}

// PacketsPerSecond returns PacketCount/Duration, zero when Duration is zero.
func (s RequesterSummary) PacketsPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.PacketCount) / s.Duration.Seconds()
}

// RequestFile sends a REQUEST for filename to peer via the local
// emulator, then receives DATA packets until END, writing payload bytes
// to out in arrival order.
//
// Per the resolved in-order-only-with-verification design: a DATA packet
// whose sequence does not match the expected next sequence is logged as
// an anomaly but its payload is still appended, since the emulator's
// single in-flight delay slot makes reordering within one priority class
// impossible by construction — this only ever fires on a genuine bug or
// a change to the emulator model, not in normal operation.
func RequestFile(conn *net.UDPConn, cfg RequesterConfig, peer wire.Addr, filename string, out io.Writer, log *netlog.Logger) (RequesterSummary, error) {
	reqOuter := wire.OuterHeader{Priority: wire.Priority1, Src: cfg.Self, Dst: peer}
	reqInner := wire.InnerHeader{Type: wire.TypeRequest, Sequence: 0, LengthOrWindow: cfg.Window}
	reqDatagram := wire.Encode(reqOuter, reqInner, []byte(filename))
	if _, err := conn.WriteToUDP(reqDatagram, cfg.EmulatorAddr); err != nil {
		return RequesterSummary{Peer: peer}, err
	}

	summary := RequesterSummary{Peer: peer}
	start := time.Now()
	var expectedSeq uint32
	haveExpected := false

	buf := make([]byte, 64*1024)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(cfg.SessionTimeout)); err != nil {
			return summary, err
		}
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return summary, ErrSessionTimeout
			}
			return summary, err
		}

		outer, inner, payload, err := wire.Decode(buf[:n])
		if err != nil {
			log.Warn("malformed packet during transfer").Send()
			continue
		}
		if outer.Dst != cfg.Self {
			log.Warn("destination address mismatch").Str("dst", outer.Dst.String()).Send()
			continue
		}

		switch inner.Type {
		case wire.TypeData:
			log.Debug("data packet").Uint32("seq", inner.Sequence).Int("len", len(payload)).Send()
			if haveExpected && inner.Sequence != expectedSeq {
				summary.Anomalies++
				log.Warn("out-of-order data packet").
					Uint32("expected", expectedSeq).
					Uint32("got", inner.Sequence).
					Send()
			}
			expectedSeq = inner.Sequence + 1
			haveExpected = true

			if _, err := out.Write(payload); err != nil {
				return summary, err
			}
			summary.PacketCount++
			summary.ByteCount += int64(len(payload))

			ackOuter := wire.OuterHeader{Priority: wire.Priority1, Src: cfg.Self, Dst: peer}
			ackInner := wire.InnerHeader{Type: wire.TypeAck, Sequence: inner.Sequence}
			ackDatagram := wire.Encode(ackOuter, ackInner, nil)
			if _, err := conn.WriteToUDP(ackDatagram, cfg.EmulatorAddr); err != nil {
				return summary, err
			}

		case wire.TypeEnd:
			log.Debug("end packet").Uint32("seq", inner.Sequence).Send()
			summary.Duration = time.Since(start)
			return summary, nil

		default:
			log.Warn("unexpected inner type during transfer").Uint8("type", inner.Type).Send()
		}
	}
}
