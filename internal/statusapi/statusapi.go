// Package statusapi serves read-only introspection over HTTP for the
// emulator and routing daemons, grounded on galpt-cake-stats' pkg/server
// (fiber.New + a recover middleware + a handful of GET routes), repurposed
// from qdisc statistics to forwarding-plane and routing-plane state.
package statusapi

import (
	"context"
	"time"

	fiber "github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	recovermiddleware "github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"netlab/internal/metrics"
	"netlab/internal/routing"
	"netlab/pkg/wire"
)

// Server is the status HTTP app for one process. Which routes are
// registered depends on which of queues/routing is wired in: the
// data-plane emulator wires only queueMetrics, the control-plane
// routing daemon wires both queueMetrics and an engine.
type Server struct {
	app *fiber.App
}

// New builds the status app. Either argument may be nil: a nil
// queueMetrics omits /queues and /metrics, a nil engine omits /routes
// and /neighbors.
func New(queueMetrics *metrics.Emulator, engine *routing.Engine) *Server {
	app := fiber.New(fiber.Config{ServerHeader: "netlab-status"})
	app.Use(recovermiddleware.New())

	if queueMetrics != nil {
		app.Get("/queues", func(c fiber.Ctx) error {
			q1, q2, q3 := queueMetrics.Queues()
			return c.JSON(fiber.Map{"q1": q1, "q2": q2, "q3": q3})
		})
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(queueMetrics.Registry(), promhttp.HandlerOpts{})))
	}

	if engine != nil {
		app.Get("/routes", func(c fiber.Ctx) error {
			return c.JSON(tableJSON(engine.Table()))
		})
		app.Get("/neighbors", func(c fiber.Ctx) error {
			return c.JSON(neighborsJSON(engine.Neighbors()))
		})
	}

	return &Server{app: app}
}

// NewMetricsOnly builds a status app exposing only /metrics, for
// processes (the sender) that have counters worth scraping but no
// queue or routing state to introspect.
func NewMetricsOnly(registry *prometheus.Registry) *Server {
	app := fiber.New(fiber.Config{ServerHeader: "netlab-status"})
	app.Use(recovermiddleware.New())
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	return &Server{app: app}
}

func tableJSON(table map[wire.Addr]wire.Addr) map[string]string {
	out := make(map[string]string, len(table))
	for dest, hop := range table {
		out[dest.String()] = hop.String()
	}
	return out
}

func neighborsJSON(liveness map[wire.Addr]time.Time) map[string]string {
	out := make(map[string]string, len(liveness))
	for addr, ts := range liveness {
		out[addr.String()] = ts.Format(time.RFC3339)
	}
	return out
}

// Run listens on addr until ctx is cancelled, matching cake-stats'
// server.Run(ctx, addr) shutdown shape.
func (s *Server) Run(ctx context.Context, addr string) error {
	go func() {
		<-ctx.Done()
		_ = s.app.Shutdown()
	}()
	return s.app.Listen(addr)
}
