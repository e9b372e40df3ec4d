// Package gateway exposes sessions over HTTP: transcripts, pending
// approvals and their decisions, a WebSocket event stream, health and
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

	"github.com/flemzord/codeclaw/internal/provider"
	"github.com/flemzord/codeclaw/internal/security"
)

// HealthReporter reports provider availability.
type HealthReporter interface {
	Status() []provider.Status
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the gateway logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithMetrics mounts /metrics.
func WithMetrics(m *Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithHealth adds provider status to /health and /status.
func WithHealth(h HealthReporter) Option {
	return func(g *Gateway) { g.health = h }
}

// WithAudit records authentication attempts.
func WithAudit(a *security.AuditLogger) Option {
	return func(g *Gateway) { g.audit = a }
}

// WithRateLimiter limits inbound messages with the "message" bucket.
func WithRateLimiter(rl *security.RateLimiter) Option {
	return func(g *Gateway) { g.limiter = rl }
}

// Gateway is the HTTP surface over a session Manager.
type Gateway struct {
	config    Config
	sessions  *Manager
	logger    *slog.Logger
	metrics   *Metrics
	health    HealthReporter
	audit     *security.AuditLogger
	limiter   *security.RateLimiter
	server    *http.Server
	listener  net.Listener
	startedAt time.Time
}

// New creates a Gateway. cfg is completed with defaults.
func New(cfg Config, sessions *Manager, opts ...Option) *Gateway {
	cfg.Defaults()
	g := &Gateway{
		config:    cfg,
		sessions:  sessions,
		logger:    slog.Default(),
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Handler returns the routed handler without starting a server.
func (g *Gateway) Handler() http.Handler {
	return g.buildRouter()
}

// Start listens on the configured address and serves in the background.
func (g *Gateway) Start(ctx context.Context) error {
	if err := g.config.Validate(); err != nil {
		return err
	}

	g.startedAt = time.Now()
	g.server = &http.Server{
		Addr:              g.config.Bind,
		Handler:           g.buildRouter(),
		ReadHeaderTimeout: g.config.ReadTimeout,
		ReadTimeout:       g.config.ReadTimeout,
		WriteTimeout:      g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen failed: %w", err)
	}
	g.listener = ln

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (g *Gateway) Addr() string {
	if g.listener == nil {
		return ""
	}
	return g.listener.Addr().String()
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
