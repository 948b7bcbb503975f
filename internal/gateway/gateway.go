// Package gateway serves the local HTTP API: job listing, job definitions
// with credentials masked, on-demand runs, run history, live events and
// Prometheus metrics. It binds to loopback by default.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/flemzord/resticd/internal/events"
	"github.com/flemzord/resticd/internal/host"
	"github.com/flemzord/resticd/internal/jobs"
)

// Service is the live job table, implemented by *host.Supervisor.
type Service interface {
	Manager() *jobs.Manager
	Enqueue(name, source string) error
	State() host.State
	Generation() uint64
	NextRun(name string) (time.Time, bool)
}

// RunStore lists past runs, implemented by *history.Store.
type RunStore interface {
	Runs(ctx context.Context, job string, n int) ([]*jobs.Run, error)
}

var _ Service = (*host.Supervisor)(nil)

// Options holds the optional collaborators of the gateway.
type Options struct {
	// Runs serves run history. Nil disables it.
	Runs RunStore

	// Events feeds the websocket endpoint. Nil disables it.
	Events *events.Bus

	// Metrics is mounted at /metrics when set.
	Metrics http.Handler

	Logger *slog.Logger
}

// Gateway is the HTTP API server.
type Gateway struct {
	config    Config
	service   Service
	runs      RunStore
	events    *events.Bus
	metrics   http.Handler
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a gateway over service.
func New(cfg Config, service Service, opts Options) *Gateway {
	cfg.defaults()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		config:    cfg,
		service:   service,
		runs:      opts.Runs,
		events:    opts.Events,
		metrics:   opts.Metrics,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Handler returns the routed API handler.
func (g *Gateway) Handler() http.Handler {
	return g.buildRouter()
}

// Validate checks the bind address.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}
	return nil
}

// Start listens on the configured address and serves in the background.
func (g *Gateway) Start(ctx context.Context) error {
	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen failed: %w", err)
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop shuts the server down gracefully within the configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
