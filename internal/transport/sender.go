package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"netlab/internal/netlog"
	"netlab/pkg/wire"
)

// ErrRequestTimeout is returned when no REQUEST arrives before the
// configured startup deadline. Callers treat this as fatal.
var ErrRequestTimeout = errors.New("transport: no request received before timeout")

// SenderConfig holds the sender's CLI-configured behavior.
type SenderConfig struct {
	Self           wire.Addr
	EmulatorAddr   *net.UDPAddr
	RequesterPort  int // legacy -g flag, unused by transport logic
	RatePerSecond  float64
	InitialSeq     uint32
	PayloadLen     int
	Priority       byte
	AckTimeout     time.Duration
	RequestTimeout time.Duration
}

// SenderSummary is the per-session report: total packets sent, total
// retransmits, and the derived loss rate.
type SenderSummary struct {
	SessionID        string
	Filename         string
	TotalPacketsSent int
	TotalRetransmits int
	Duration         time.Duration
}

// LossRate returns retransmits/packets_sent, zero when nothing was sent.
func (s SenderSummary) LossRate() float64 {
	if s.TotalPacketsSent == 0 {
		return 0
	}
	return float64(s.TotalRetransmits) / float64(s.TotalPacketsSent)
}

// AwaitRequest blocks (with cfg.RequestTimeout as a fatal deadline) for
// the initial REQUEST packet and returns the requester's address, its
// window size, and the requested filename.
func AwaitRequest(conn *net.UDPConn, cfg SenderConfig) (peer wire.Addr, window uint32, filename string, err error) {
	if err := conn.SetReadDeadline(time.Now().Add(cfg.RequestTimeout)); err != nil {
		return wire.Addr{}, 0, "", err
	}
	buf := make([]byte, 64*1024)
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return wire.Addr{}, 0, "", ErrRequestTimeout
		}
		return wire.Addr{}, 0, "", err
	}

	outer, inner, payload, err := wire.Decode(buf[:n])
	if err != nil {
		return wire.Addr{}, 0, "", fmt.Errorf("transport: %w", wire.ErrMalformed)
	}
	if inner.Type != wire.TypeRequest {
		return wire.Addr{}, 0, "", fmt.Errorf("transport: expected REQUEST, got %q", inner.Type)
	}
	return outer.Src, inner.LengthOrWindow, string(payload), nil
}

// RunSender splits data into chunks, appends an END packet, and drives
// the windowed send/ACK/retransmit loop until every chunk has either
// been acknowledged or exhausted its retry budget.
func RunSender(ctx context.Context, conn *net.UDPConn, cfg SenderConfig, peer wire.Addr, window uint32, sessionID string, data []byte, log *netlog.Logger) (SenderSummary, error) {
	start := time.Now()
	chunks := splitChunks(data, cfg.PayloadLen)

	pending := make([]*pendingPacket, 0, len(chunks)+1)
	seq := cfg.InitialSeq
	for _, chunk := range chunks {
		datagram := encodeDataPacket(cfg, peer, seq, chunk)
		pending = append(pending, &pendingPacket{seq: seq, datagram: datagram})
		seq++
	}
	endSeq := seq
	endDatagram := encodeEndPacket(cfg, peer, endSeq)

	summary := SenderSummary{SessionID: sessionID}
	pacing := pacingDelay(cfg.RatePerSecond)

	if window == 0 {
		window = 1
	}

	for lo := 0; lo < len(pending); lo += int(window) {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		hi := lo + int(window)
		if hi > len(pending) {
			hi = len(pending)
		}
		windowSlice := pending[lo:hi]

		for _, p := range windowSlice {
			if err := sendPaced(conn, cfg.EmulatorAddr, p.datagram, pacing); err != nil {
				return summary, err
			}
			summary.TotalPacketsSent++
		}

		collectACKs(conn, windowSlice, cfg.AckTimeout)

		for _, p := range windowSlice {
			for !p.acked && p.retries < RetryBudget {
				p.retries++
				summary.TotalRetransmits++
				if err := sendPaced(conn, cfg.EmulatorAddr, p.datagram, pacing); err != nil {
					return summary, err
				}
				collectACKs(conn, []*pendingPacket{p}, cfg.AckTimeout)
			}
			if !p.acked {
				log.Warn("packet exhausted retry budget").Uint32("seq", p.seq).Send()
			}
		}
	}

	// END is sent once; its loss is acceptable because the emulator
	// guarantees its delivery once forwarded.
	if _, err := conn.WriteToUDP(endDatagram, cfg.EmulatorAddr); err != nil {
		return summary, err
	}
	summary.TotalPacketsSent++
	summary.Duration = time.Since(start)
	return summary, nil
}

func pacingDelay(ratePerSecond float64) time.Duration {
	if ratePerSecond <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / ratePerSecond)
}

func sendPaced(conn *net.UDPConn, to *net.UDPAddr, datagram []byte, pacing time.Duration) error {
	if _, err := conn.WriteToUDP(datagram, to); err != nil {
		return err
	}
	if pacing > 0 {
		time.Sleep(pacing)
	}
	return nil
}

// collectACKs reads datagrams for up to timeout, marking matching
// pending packets as acknowledged. It never blocks past the deadline.
func collectACKs(conn *net.UDPConn, window []*pendingPacket, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 64*1024)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		if err := conn.SetReadDeadline(time.Now().Add(remaining)); err != nil {
			return
		}
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		_, inner, _, err := wire.Decode(buf[:n])
		if err != nil || inner.Type != wire.TypeAck {
			continue
		}
		for _, p := range window {
			if p.seq == inner.Sequence {
				p.acked = true
			}
		}
		if allAcked(window) {
			return
		}
	}
}

func allAcked(window []*pendingPacket) bool {
	for _, p := range window {
		if !p.acked {
			return false
		}
	}
	return true
}

func splitChunks(data []byte, payloadLen int) [][]byte {
	if payloadLen <= 0 {
		payloadLen = len(data)
		if payloadLen == 0 {
			payloadLen = 1
		}
	}
	var chunks [][]byte
	for off := 0; off < len(data); off += payloadLen {
		end := off + payloadLen
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[off:end])
	}
	if len(data) == 0 {
		chunks = [][]byte{}
	}
	return chunks
}

func encodeDataPacket(cfg SenderConfig, peer wire.Addr, seq uint32, chunk []byte) []byte {
	outer := wire.OuterHeader{Priority: cfg.Priority, Src: cfg.Self, Dst: peer}
	inner := wire.InnerHeader{Type: wire.TypeData, Sequence: seq, LengthOrWindow: uint32(len(chunk))}
	return wire.Encode(outer, inner, chunk)
}

func encodeEndPacket(cfg SenderConfig, peer wire.Addr, seq uint32) []byte {
	outer := wire.OuterHeader{Priority: cfg.Priority, Src: cfg.Self, Dst: peer}
	inner := wire.InnerHeader{Type: wire.TypeEnd, Sequence: seq}
	return wire.Encode(outer, inner, nil)
}
