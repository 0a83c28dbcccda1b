// ABOUTME: Gateway orchestrates the HTTP server, store, bus, service, and registry
// ABOUTME: Grounded on the teacher's internal/gateway.Gateway lifecycle, trimmed to this subsystem's scope

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/groupchat-gateway/internal/bus"
	"github.com/2389/groupchat-gateway/internal/channelservice"
	"github.com/2389/groupchat-gateway/internal/config"
	"github.com/2389/groupchat-gateway/internal/registry"
	"github.com/2389/groupchat-gateway/internal/store"
)

// Gateway owns the HTTP server and the process-scoped Subscription Registry
// singleton described by the spec's Design Notes: started explicitly, with
// an explicit stop that closes handles, cancels timers, and drops bus
// subscriptions.
type Gateway struct {
	config     *config.Config
	store      store.Store
	bus        bus.Bus
	service    *channelservice.Service
	registry   *registry.Registry
	httpServer *http.Server
	logger     *slog.Logger
}

// New wires the Channel Store, Bus, Channel Service, and Subscription
// Registry from cfg, and builds (but does not start) the HTTP server.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "gateway")

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	b, err := newBus(cfg, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	svc := channelservice.New(st, b, logger)
	reg := registry.New(b, logger, registry.WithSessionCeiling(cfg.Registry.SessionCeiling))

	gw := &Gateway{
		config:   cfg,
		store:    st,
		bus:      b,
		service:  svc,
		registry: reg,
		logger:   logger,
	}

	gw.httpServer = &http.Server{
		Addr:         cfg.Server.HTTPAddr,
		Handler:      gw.buildHandler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE/WS connections are intentionally long-lived
	}

	return gw, nil
}

// newBus connects to NATS when a URL is configured, falling back to an
// in-process bus otherwise (useful for local runs without a broker).
func newBus(cfg *config.Config, logger *slog.Logger) (bus.Bus, error) {
	if cfg.Bus.URL == "" {
		logger.Warn("bus.url not configured; using in-process bus (single-process only)")
		return bus.NewMemoryBus(), nil
	}
	return bus.NewNATSBus(cfg.Bus.URL, logger)
}

func (g *Gateway) buildHandler() http.Handler {
	mux := http.NewServeMux()
	g.registerAPI(mux)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if g.config.Metrics.Enabled {
		mux.Handle(g.config.Metrics.Path, promhttp.Handler())
	}

	return mux
}

// Run starts the HTTP server and blocks until ctx is canceled, at which
// point it performs a graceful shutdown: the registry closes every live
// handle and drops every bus subscription, then the HTTP server and its
// collaborators are closed.
func (g *Gateway) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("starting HTTP server", "addr", g.config.Server.HTTPAddr)
		if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownErr := g.Stop()
	if serveErr != nil {
		return serveErr
	}
	return shutdownErr
}

// Stop closes every live Subscription Registry handle and drops every bus
// subscription, then gracefully shuts down the HTTP server and releases the
// bus and store. Safe to call once after Run returns or independently in tests.
func (g *Gateway) Stop() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g.registry.Stop()

	var errs []error
	if err := g.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutting down http server: %w", err))
	}

	if err := g.bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing bus: %w", err))
	}
	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}

	return errors.Join(errs...)
}
