// Package app wires the catalog, evaluator, map services, tile server and
// export manager into one running application.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"hydrafloods/internal/algorithms"
	"hydrafloods/internal/algorithms/otsu"
	"hydrafloods/internal/catalog"
	"hydrafloods/internal/config"
	"hydrafloods/internal/export"
	"hydrafloods/internal/expr"
	"hydrafloods/internal/logger"
	"hydrafloods/internal/services"
	"hydrafloods/internal/shutdown"
	"hydrafloods/internal/tiles"
)

const (
	AppName    = "hydrafloods"
	AppVersion = "0.3.0"
)

type Application struct {
	config     *config.Config
	logger     logger.Logger
	catalog    catalog.Catalog
	evaluator  *expr.Evaluator
	registry   *tiles.Registry
	server     *tiles.Server
	historical *services.HistoricalService
	precip     *services.PrecipService
	admin      *services.AdminService
	floods     *services.FloodService
	exports    *export.Manager
	lifecycle  *Lifecycle
}

// NewApplication opens the local catalog under cfg.DataDir.
func NewApplication(cfg *config.Config, log logger.Logger) (*Application, error) {
	cat, err := catalog.OpenLocal(cfg.DataDir, log)
	if err != nil {
		return nil, err
	}
	return NewWithCatalog(cfg, cat, log)
}

func NewWithCatalog(cfg *config.Config, cat catalog.Catalog, log logger.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	evaluator, err := expr.NewEvaluator(cfg.Cache.MaxEntries, log)
	if err != nil {
		return nil, fmt.Errorf("create evaluator: %w", err)
	}

	params := otsu.ParamsFromConfig(cfg.Otsu, cfg.Seed)
	if err := params.Validate(); err != nil {
		return nil, err
	}

	registry, err := tiles.NewRegistry(cfg.Server.BaseURL, cfg.Server.MaxLayers, cfg.Server.LayerTTL)
	if err != nil {
		return nil, err
	}
	exports, err := export.NewManager(cfg.Export, evaluator, cfg.Seed, log)
	if err != nil {
		return nil, err
	}
	publisher := services.NewPublisher(evaluator, registry, log)

	a := &Application{
		config:     cfg,
		logger:     log,
		catalog:    cat,
		evaluator:  evaluator,
		registry:   registry,
		server:     tiles.NewServer(registry, log),
		historical: services.NewHistoricalService(cat, algorithms.NewManager(cfg.Historical), publisher),
		precip:     services.NewPrecipService(cat, publisher, nil),
		admin:      services.NewAdminService(cat, publisher),
		floods:     services.NewFloodService(cat, params, publisher, log),
		exports:    exports,
		lifecycle:  NewLifecycle(log),
	}
	NewHandlers(a).Register(a.server.Engine())

	log.Info("Application", "initialization complete", map[string]interface{}{
		"version":  AppVersion,
		"data_dir": cfg.DataDir,
		"addr":     cfg.Server.Addr,
	})
	return a, nil
}

func (a *Application) Handler() http.Handler {
	return a.server.Engine()
}

func (a *Application) Exports() *export.Manager {
	return a.exports
}

func (a *Application) Floods() *services.FloodService {
	return a.floods
}

func (a *Application) Catalog() catalog.Catalog {
	return a.catalog
}

// Serve runs the HTTP server until ctx is cancelled or a shutdown signal
// arrives.
func (a *Application) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.config.Server.Addr,
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.lifecycle.Track("http", shutdown.Func(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("Application", err, nil)
		}
	}))
	a.lifecycle.Track("exports", a.exports)
	a.lifecycle.Start(ctx)

	a.logger.Info("Application", "listening", map[string]interface{}{"addr": srv.Addr})
	err := a.server.ListenAndServe(srv)
	a.lifecycle.Shutdown()
	return err
}

func (a *Application) Shutdown() {
	a.lifecycle.Shutdown()
	a.exports.Shutdown()
}
