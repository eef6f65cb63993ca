// Package internal wires the application components together.
package internal

import (
	"context"
	"fmt"
	"log/slog"

	"minilytics/internal/analytics"
	"minilytics/internal/collector"
	"minilytics/internal/config"
	"minilytics/internal/database"
	"minilytics/internal/http"
	"minilytics/internal/jobs"
	"minilytics/internal/logging"
	"minilytics/internal/pkg/geoip"
)

// Application bundles every long-lived component of the service.
type Application struct {
	Config    *config.Config
	Logger    *slog.Logger
	DBManager *database.DBManager
	Geo       *geoip.Resolver
	Collector *collector.Collector
	Engine    *analytics.Engine
	Server    *http.Server
	Jobs      *jobs.Scheduler
}

// NewApp constructs the application from the ambient configuration.
func NewApp() (*Application, error) {
	return NewAppWithConfig(config.GetConfig())
}

// NewAppWithConfig constructs the application with the provided config.
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	logger := logging.NewLogger(cfg)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	geo := geoip.NewResolver(cfg.GeoDBPath, logger)
	col := collector.New(dbManager, logger, cfg, geo)
	engine := analytics.New(dbManager, logger)
	server := http.NewServer(cfg, logger, dbManager, col, engine)
	scheduler := jobs.NewScheduler(dbManager, logger, cfg)

	return &Application{
		Config:    cfg,
		Logger:    logger,
		DBManager: dbManager,
		Geo:       geo,
		Collector: col,
		Engine:    engine,
		Server:    server,
		Jobs:      scheduler,
	}, nil
}

// Start launches background jobs and blocks serving HTTP.
func (a *Application) Start() error {
	a.Jobs.Start()
	return a.Server.Listen()
}

// Shutdown stops jobs, drains the HTTP server and closes resources. The
// context bounds how long the HTTP drain may take.
func (a *Application) Shutdown(ctx context.Context) error {
	a.Jobs.Stop()

	done := make(chan error, 1)
	go func() { done <- a.Server.Shutdown() }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	a.Geo.Close()
	if closeErr := a.DBManager.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
