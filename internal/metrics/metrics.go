// Package metrics exposes the emulator's forwarding plane, the routing
// daemon's control plane, and the sender's transport state to
// Prometheus, registered into a private registry per process rather
// than the global default one, so each process owns exactly the
// metrics it produces.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// queueDepthCollector is a custom prometheus.Collector reporting the
// forwarding plane's live queue depths: the loop refreshes a mu-guarded
// snapshot each iteration and Collect materializes one const gauge per
// priority at scrape time.
type queueDepthCollector struct {
	desc *prometheus.Desc

	mu     sync.RWMutex
	depths [3]int
}

func newQueueDepthCollector(nodeAddr string) *queueDepthCollector {
	return &queueDepthCollector{
		desc: prometheus.NewDesc(
			prometheus.BuildFQName("netlab", "emulator", "queue_depth"),
			"Current number of packets held in a priority queue.",
			[]string{"priority"},
			prometheus.Labels{"node": nodeAddr},
		),
	}
}

func (c *queueDepthCollector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.desc
}

func (c *queueDepthCollector) Collect(metrics chan<- prometheus.Metric) {
	c.mu.RLock()
	depths := c.depths
	c.mu.RUnlock()

	for i, depth := range depths {
		metrics <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(depth), strconv.Itoa(i+1))
	}
}

func (c *queueDepthCollector) set(q1, q2, q3 int) {
	c.mu.Lock()
	c.depths = [3]int{q1, q2, q3}
	c.mu.Unlock()
}

func (c *queueDepthCollector) snapshot() (q1, q2, q3 int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.depths[0], c.depths[1], c.depths[2]
}

// Emulator holds the forwarding-plane collectors for one emulator
// process. It implements forwarder.Recorder: QueueDepths is called once
// per loop iteration from the forwarding plane's own goroutine, and the
// queue-depth collector's snapshot is what the status API and /metrics
// scrapes read from their goroutines.
type Emulator struct {
	registry *prometheus.Registry

	queueDepth *queueDepthCollector
	dropsTotal *prometheus.CounterVec
	forwarded  prometheus.Counter
}

// NewEmulator registers and returns a fresh collector set for one
// emulator identity.
func NewEmulator(nodeAddr string) *Emulator {
	registry := prometheus.NewRegistry()

	queueDepth := newQueueDepthCollector(nodeAddr)

	dropsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "netlab",
		Subsystem:   "emulator",
		Name:        "drops_total",
		Help:        "Cumulative packets dropped by the forwarding plane, by reason and priority.",
		ConstLabels: prometheus.Labels{"node": nodeAddr},
	}, []string{"reason", "priority"})

	forwarded := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "netlab",
		Subsystem:   "emulator",
		Name:        "forwarded_total",
		Help:        "Cumulative packets successfully forwarded to the next hop.",
		ConstLabels: prometheus.Labels{"node": nodeAddr},
	})

	registry.MustRegister(queueDepth, dropsTotal, forwarded)

	return &Emulator{
		registry:   registry,
		queueDepth: queueDepth,
		dropsTotal: dropsTotal,
		forwarded:  forwarded,
	}
}

// Registry returns the private registry this collector set is bound to,
// for mounting under /metrics.
func (e *Emulator) Registry() *prometheus.Registry { return e.registry }

// QueueDepths implements forwarder.Recorder.
func (e *Emulator) QueueDepths(q1, q2, q3 int) {
	e.queueDepth.set(q1, q2, q3)
}

// Queues returns the most recently recorded queue depths. Safe to call
// from any goroutine; used by the status API.
func (e *Emulator) Queues() (q1, q2, q3 int) {
	return e.queueDepth.snapshot()
}

// Dropped implements forwarder.Recorder. priority is 0 for drops that
// carry no priority: a datagram that failed to decode, or a dequeued
// entry whose destination no longer resolves.
func (e *Emulator) Dropped(reason string, priority byte) {
	e.dropsTotal.WithLabelValues(reason, priorityLabel(priority)).Inc()
}

// Forwarded implements forwarder.Recorder.
func (e *Emulator) Forwarded(priority byte) {
	e.forwarded.Inc()
}

func priorityLabel(priority byte) string {
	if priority == 0 {
		return "unknown"
	}
	return string(priority)
}

// Routing counts control-plane events for one routing daemon. It is
// fed by the routing engine's event dispatcher, not by the engine
// directly, so the engine never imports this package.
type Routing struct {
	neighborsUp   prometheus.Counter
	neighborsDown prometheus.Counter
	rebuilds      prometheus.Counter
}

// NewRouting registers routing-event counters into registry, typically
// the same registry the forwarding-plane collectors live in so one
// /metrics endpoint serves both planes.
func NewRouting(registry *prometheus.Registry, nodeAddr string) *Routing {
	neighborsUp := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "netlab",
		Subsystem:   "routing",
		Name:        "neighbor_up_total",
		Help:        "Cumulative neighbors discovered or re-established via HELLO.",
		ConstLabels: prometheus.Labels{"node": nodeAddr},
	})
	neighborsDown := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "netlab",
		Subsystem:   "routing",
		Name:        "neighbor_down_total",
		Help:        "Cumulative neighbors declared dead by the liveness sweep.",
		ConstLabels: prometheus.Labels{"node": nodeAddr},
	})
	rebuilds := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "netlab",
		Subsystem:   "routing",
		Name:        "table_rebuilds_total",
		Help:        "Cumulative forwarding-table recomputations.",
		ConstLabels: prometheus.Labels{"node": nodeAddr},
	})

	registry.MustRegister(neighborsUp, neighborsDown, rebuilds)

	return &Routing{neighborsUp: neighborsUp, neighborsDown: neighborsDown, rebuilds: rebuilds}
}

// NeighborUp records one neighbor coming up.
func (r *Routing) NeighborUp() { r.neighborsUp.Inc() }

// NeighborDown records one neighbor going down.
func (r *Routing) NeighborDown() { r.neighborsDown.Inc() }

// TableRebuilt records one forwarding-table recomputation.
func (r *Routing) TableRebuilt() { r.rebuilds.Inc() }

// Sender holds the transport counters a sender process exposes: total
// packets sent, total retransmits, and the derived loss rate of the
// most recently completed session.
type Sender struct {
	registry *prometheus.Registry

	packetsSent prometheus.Counter
	retransmits prometheus.Counter
	lossRate    prometheus.Gauge
}

// NewSender registers and returns a fresh collector set for one sender
// identity.
func NewSender(nodeAddr string) *Sender {
	registry := prometheus.NewRegistry()

	packetsSent := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "netlab",
		Subsystem:   "sender",
		Name:        "packets_sent_total",
		Help:        "Cumulative DATA and END packets transmitted.",
		ConstLabels: prometheus.Labels{"node": nodeAddr},
	})
	retransmits := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "netlab",
		Subsystem:   "sender",
		Name:        "retransmits_total",
		Help:        "Cumulative retransmissions across all sessions.",
		ConstLabels: prometheus.Labels{"node": nodeAddr},
	})
	lossRate := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "netlab",
		Subsystem:   "sender",
		Name:        "session_loss_rate",
		Help:        "retransmits/packets_sent for the most recently completed session.",
		ConstLabels: prometheus.Labels{"node": nodeAddr},
	})

	registry.MustRegister(packetsSent, retransmits, lossRate)

	return &Sender{registry: registry, packetsSent: packetsSent, retransmits: retransmits, lossRate: lossRate}
}

// Registry returns the private registry this collector set is bound to.
func (s *Sender) Registry() *prometheus.Registry { return s.registry }

// RecordSession folds one completed sender session's totals into the
// cumulative counters and updates the most-recent loss-rate gauge.
func (s *Sender) RecordSession(packetsSent, retransmits int, lossRate float64) {
	s.packetsSent.Add(float64(packetsSent))
	s.retransmits.Add(float64(retransmits))
	s.lossRate.Set(lossRate)
}
