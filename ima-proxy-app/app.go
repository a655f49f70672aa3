package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/compose-network/ima-proxy/ima-proxy-app/config"
	"github.com/compose-network/ima-proxy/metrics"
	apisrv "github.com/compose-network/ima-proxy/server/api"
	"github.com/compose-network/ima-proxy/x/bridge"
	bridgehttp "github.com/compose-network/ima-proxy/x/bridge/http"
	"github.com/compose-network/ima-proxy/x/chains"
	"github.com/compose-network/ima-proxy/x/codec"
	"github.com/compose-network/ima-proxy/x/store"
	"github.com/compose-network/ima-proxy/x/store/sqlite"
)

// App runs one bridge node with its HTTP and metrics servers.
type App struct {
	cfg      *config.Config
	log      zerolog.Logger
	registry *prometheus.Registry

	store     store.Store
	node      *bridge.Node
	apiServer *apisrv.Server

	shutdownFns []func() error
	cancel      context.CancelFunc
}

// NewApp creates a new application instance
func NewApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	app := &App{
		cfg:         cfg,
		log:         log.With().Str("component", "app").Logger(),
		registry:    prometheus.NewRegistry(),
		shutdownFns: make([]func() error, 0),
	}

	if err := app.initialize(ctx); err != nil {
		_ = app.runShutdownFns()
		return nil, fmt.Errorf("failed to initialize app: %w", err)
	}

	return app, nil
}

func (a *App) initialize(ctx context.Context) error {
	if err := a.initializeStore(); err != nil {
		return err
	}
	if err := a.initializeNode(ctx); err != nil {
		return err
	}
	if a.cfg.API.Enabled {
		a.initializeAPIServer()
	}
	return nil
}

func (a *App) initializeStore() error {
	switch a.cfg.Store.Driver {
	case "memory":
		a.store = store.NewMemory()
	case "sqlite":
		s, err := sqlite.OpenFile(a.cfg.Store.Dir, a.cfg.Store.File)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		a.store = s
	default:
		return fmt.Errorf("unknown store driver %q", a.cfg.Store.Driver)
	}
	a.shutdownFns = append(a.shutdownFns, a.store.Close)
	return nil
}

func (a *App) initializeNode(ctx context.Context) error {
	nodeCfg, err := a.cfg.NodeConfig()
	if err != nil {
		return err
	}
	a.node, err = bridge.NewNode(ctx, nodeCfg, a.store, a.registry, a.log)
	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}
	return nil
}

// initializeAPIServer sets up the HTTP API server with all endpoints
func (a *App) initializeAPIServer() {
	s := apisrv.NewServer(a.cfg.API.Config, a.log)
	s.UseDefaults()
	if a.cfg.API.CORS {
		s.EnableCORS()
	}

	s.Router.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	s.Router.HandleFunc("/ready", a.handleReady).Methods(http.MethodGet)

	bridgehttp.NewHandler(a.node, codec.NewRegistry(int(a.cfg.API.MaxBodyBytes)), a.log).RegisterMux(s.Router)

	a.apiServer = s
}

// Run starts the application and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(runCtx, a.cfg.Metrics.Port, a.cfg.Metrics.Path, a.registry, a.log); err != nil {
				a.log.Error().Err(err).Msg("Metrics server error")
			}
		}()
	}

	if a.apiServer != nil {
		go func() {
			if err := a.apiServer.Start(runCtx); err != nil {
				a.log.Error().Err(err).Msg("API server error")
			}
		}()
	}

	return a.runWithGracefulShutdown(runCtx)
}

// runWithGracefulShutdown handles shutdown signals.
func (a *App) runWithGracefulShutdown(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	a.log.Info().Str("chain", a.node.Local().Name).Msg("IMA proxy started successfully")

	select {
	case <-ctx.Done():
		a.log.Info().Msg("Context canceled, initiating shutdown")
	case sig := <-sigCh:
		a.log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	}

	if a.cancel != nil {
		a.cancel()
	}

	return a.shutdown()
}

func (a *App) shutdown() error {
	a.log.Info().Msg("Initiating graceful shutdown")
	err := a.runShutdownFns()
	a.log.Info().Msg("Graceful shutdown complete")
	return err
}

func (a *App) runShutdownFns() error {
	var errs []error
	for _, fn := range a.shutdownFns {
		if err := fn(); err != nil {
			a.log.Error().Err(err).Msg("Shutdown function error")
			errs = append(errs, err)
		}
	}
	a.shutdownFns = nil
	return errors.Join(errs...)
}

// handleHealth responds to health check requests.
func (a *App) handleHealth(w http.ResponseWriter, _ *http.Request) {
	apisrv.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"chain":     a.node.Local().Name,
		"version":   Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady fails while the store is unreachable, or on mainnet before any schain is connected.
func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	connected, err := a.node.Linker.ConnectedChains(r.Context())
	if err != nil {
		apisrv.WriteError(w, r, http.StatusServiceUnavailable, "store_unavailable", err.Error(), nil)
		return
	}

	status, code := "ready", http.StatusOK
	if len(connected) == 0 && chains.IsMainnet(a.node.Local().Hash) {
		status, code = "no_connections", http.StatusServiceUnavailable
	}
	apisrv.WriteJSON(w, code, map[string]any{
		"status":      status,
		"connections": len(connected),
	})
}
