// Package gateway provides the HTTP API over the memory engine:
// turn ingestion, history composition, archive search, conversation
// management, and monitoring endpoints. It binds to loopback by default.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/tiermem/internal/config"
	"github.com/flemzord/tiermem/internal/engine"
)

// Gateway is the HTTP server in front of the engine.
type Gateway struct {
	config    config.GatewayConfig
	engine    *engine.Engine
	gatherer  prometheus.Gatherer
	limiter   *rateLimiter
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a Gateway. A nil gatherer disables the /metrics endpoint.
func New(cfg config.GatewayConfig, eng *engine.Engine, gatherer prometheus.Gatherer, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		config:   cfg,
		engine:   eng,
		gatherer: gatherer,
		limiter:  newRateLimiter(cfg.TurnsPerMin, cfg.SearchesPerMin),
		logger:   logger.With("component", "gateway"),
	}
}

// Start begins listening. It returns once the listener is bound; serving
// continues in the background.
func (g *Gateway) Start() error {
	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen failed: %w", err)
	}

	go func() {
		g.logger.Info("gateway listening", "addr", g.config.Bind)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop shuts the server down gracefully.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(ctx)
}
