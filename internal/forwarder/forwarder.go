// Package forwarder implements the emulator's forwarding plane: a
// single-threaded cooperative loop over a non-blocking UDP socket that
// classifies packets into three bounded priority queues, applies a
// per-destination delay, drops probabilistically, and forwards survivors.
package forwarder

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"

	"netlab/internal/netlog"
	"netlab/internal/queue"
	"netlab/pkg/wire"
)

// RuleResolver abstracts the source of forwarding decisions. internal/rules
// implements it with a static, file-loaded table (data-plane emulator);
// internal/routing implements it with a dynamically BFS-computed table
// (control-plane routing daemon). The forwarding loop itself is identical
// either way.
type RuleResolver interface {
	Resolve(dst wire.Addr) (nextHop wire.Addr, delayMs, lossPercent int, ok bool)
}

// Recorder receives forwarding-plane events for metrics and status
// reporting. A no-op implementation is fine when neither is wired up.
type Recorder interface {
	QueueDepths(q1, q2, q3 int)
	Dropped(reason string, priority byte)
	Forwarded(priority byte)
}

// ControlHandler lets the control-plane routing daemon share the same
// cooperative loop and UDP socket as the data-plane forwarding logic:
// control records (HELLO/LSM/TRACE) never enter the priority queues, and
// Tick is called once per loop iteration so periodic HELLO/LSM broadcast
// and the neighbor liveness sweep run without a goroutine of their own.
// The data-plane emulator binary runs with no ControlHandler at all.
type ControlHandler interface {
	HandleControl(data []byte, from *net.UDPAddr)
	Tick(now time.Time)
}

const (
	pollInterval = 2 * time.Millisecond
	readTimeout  = 1 * time.Millisecond
)

// Plane is the forwarding loop plus its bounded queues and in-flight
// delay slot. It is not safe for concurrent use by design: everything
// here runs on one goroutine, matching the single-threaded cooperative
// model the rest of the system's processes follow.
type Plane struct {
	conn     *net.UDPConn
	resolver RuleResolver
	log      *netlog.Logger
	rec      Recorder
	rng      *rand.Rand

	q            [3]*queue.Queue
	endQ         *queue.Queue
	inFlight     *queue.Entry
	inFlightRule rules

	control ControlHandler
}

// SetControlHandler wires a control-plane handler into the loop. Call
// before Run.
func (p *Plane) SetControlHandler(h ControlHandler) {
	p.control = h
}

type rules struct {
	delayMs     int
	lossPercent int
}

// noopRecorder is used when the caller does not wire metrics.
type noopRecorder struct{}

func (noopRecorder) QueueDepths(int, int, int) {}
func (noopRecorder) Dropped(string, byte)      {}
func (noopRecorder) Forwarded(byte)            {}

// New builds a forwarding plane bound to conn, using resolver for routing
// decisions and capacity for each of the three priority queues.
func New(conn *net.UDPConn, resolver RuleResolver, capacity int, log *netlog.Logger, rec Recorder) *Plane {
	if rec == nil {
		rec = noopRecorder{}
	}
	return &Plane{
		conn:     conn,
		resolver: resolver,
		log:      log,
		rec:      rec,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		q:        [3]*queue.Queue{queue.New(capacity), queue.New(capacity), queue.New(capacity)},
		endQ:     queue.New(1 << 20),
	}
}

// Run drives the loop until ctx is cancelled, then returns nil. It
// returns early with an error only when a socket read fails for a reason
// other than the poll timeout.
func (p *Plane) Run(ctx context.Context) error {
	buf := make([]byte, 64*1024)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, addr, err := p.receiveNonBlocking(buf)
		if err != nil {
			return err
		}
		if n > 0 {
			if p.control != nil && wire.IsControlKind(buf[0]) {
				p.control.HandleControl(buf[:n], addr)
			} else {
				p.handleDatagram(buf[:n], addr)
			}
		}

		if p.control != nil {
			p.control.Tick(time.Now())
		}

		if p.inFlight == nil {
			p.fillSlot()
		}
		p.drainSlotIfDue()

		p.rec.QueueDepths(p.q[0].Len(), p.q[1].Len(), p.q[2].Len())

		if n == 0 && p.inFlight == nil {
			time.Sleep(pollInterval)
		}
	}
}

func (p *Plane) receiveNonBlocking(buf []byte) (int, *net.UDPAddr, error) {
	if err := p.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return 0, nil, err
	}
	n, addr, err := p.conn.ReadFromUDP(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return 0, nil, nil
		}
		return 0, nil, err
	}
	return n, addr, nil
}

func (p *Plane) handleDatagram(data []byte, from *net.UDPAddr) {
	outer, inner, _, err := wire.Decode(data)
	if err != nil {
		p.log.Warn("malformed packet").Str("from", from.String()).Send()
		p.rec.Dropped("malformed", 0)
		return
	}

	nextHop, _, _, ok := p.resolver.Resolve(outer.Dst)
	if !ok {
		p.log.Warn("no forwarding entry").
			Str("dst", outer.Dst.String()).
			Send()
		p.rec.Dropped("no_forwarding_entry", outer.Priority)
		return
	}

	idx := wire.QueueIndex(outer.Priority)
	if idx < 0 {
		p.log.Warn("malformed priority").Send()
		p.rec.Dropped("malformed", outer.Priority)
		return
	}

	q := p.q[idx]
	payload := make([]byte, len(data))
	copy(payload, data)

	if err := q.Enqueue(payload, outer.Dst, nextHop); err != nil {
		if inner.Type == wire.TypeEnd {
			// END is guaranteed delivery: it never counts as a
			// QUEUE_FULL drop, even though its priority queue is full.
			_ = p.endQ.Enqueue(payload, outer.Dst, nextHop)
			return
		}
		p.log.Warn("queue full").
			Uint8("priority", outer.Priority).
			Str("src", outer.Src.String()).
			Str("dst", outer.Dst.String()).
			Int("size", len(data)).
			Send()
		p.rec.Dropped("queue_full", outer.Priority)
		return
	}
}

// fillSlot pulls the next entry into the in-flight delay slot under
// strict priority, with the END reserve drained ahead of Q3.
func (p *Plane) fillSlot() {
	var entry queue.Entry
	var ok bool

	switch {
	case p.q[0].Len() > 0:
		entry, ok = p.q[0].Dequeue()
	case p.q[1].Len() > 0:
		entry, ok = p.q[1].Dequeue()
	case p.endQ.Len() > 0:
		entry, ok = p.endQ.Dequeue()
	case p.q[2].Len() > 0:
		entry, ok = p.q[2].Dequeue()
	}
	if !ok {
		return
	}

	_, delayMs, lossPercent, resolveOK := p.resolver.Resolve(entry.Dest)
	if !resolveOK {
		// The rule disappeared between enqueue and dequeue (control
		// plane only); drop rather than forward blind.
		p.rec.Dropped("no_forwarding_entry", 0)
		return
	}

	p.inFlight = &entry
	p.inFlightRule = rules{delayMs: delayMs, lossPercent: lossPercent}
}

func (p *Plane) drainSlotIfDue() {
	if p.inFlight == nil {
		return
	}
	if time.Since(p.inFlight.EnqueueAt) < time.Duration(p.inFlightRule.delayMs)*time.Millisecond {
		return
	}

	entry := p.inFlight
	outer, inner, _, decErr := wire.Decode(entry.Packet)
	isEnd := decErr == nil && inner.Type == wire.TypeEnd

	if !isEnd && p.inFlightRule.lossPercent > 0 {
		roll := p.rng.Intn(100) + 1
		if roll <= p.inFlightRule.lossPercent {
			p.log.Warn("loss").
				Uint8("priority", outer.Priority).
				Str("src", outer.Src.String()).
				Str("dst", entry.Dest.String()).
				Int("size", len(entry.Packet)).
				Send()
			p.rec.Dropped("loss", outer.Priority)
			p.inFlight = nil
			return
		}
	}

	if _, err := p.conn.WriteToUDP(entry.Packet, entry.NextHop.UDPAddr()); err != nil {
		p.log.Warn("forward failed").Err(err).Send()
	} else {
		p.rec.Forwarded(outer.Priority)
	}
	p.inFlight = nil
}
