// Package http exposes the beacon ingestion and dashboard query endpoints.
package http

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"minilytics/internal/analytics"
	"minilytics/internal/collector"
	"minilytics/internal/config"
	"minilytics/internal/database"
	"minilytics/internal/settings"
)

// Server bundles the fiber app with its dependencies.
type Server struct {
	app       *fiber.App
	logger    *slog.Logger
	cfg       *config.Config
	dbManager *database.DBManager
	collector *collector.Collector
	engine    *analytics.Engine
}

// NewServer builds the fiber app and registers all routes.
func NewServer(cfg *config.Config, logger *slog.Logger, dbManager *database.DBManager, col *collector.Collector, engine *analytics.Engine) *Server {
	app := fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		DisableStartupMessage: cfg.IsProduction(),
	})

	s := &Server{
		app:       app,
		logger:    logger,
		cfg:       cfg,
		dbManager: dbManager,
		collector: col,
		engine:    engine,
	}

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Content-Type",
	}))

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.app.Get("/health", s.healthAction)
	s.app.Get("/track.js", s.scriptAction)

	api := s.app.Group("/api")
	api.Post("/track", s.trackAction)
	api.Options("/track", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	api.Get("/analytics", s.analyticsAction)
	api.Get("/domains", s.domainsIndexAction)
	api.Post("/domains", s.domainsCreateAction)
	api.Delete("/domains", s.domainsDeleteAction)
}

// App exposes the underlying fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen blocks serving HTTP on the configured port.
func (s *Server) Listen() error {
	addr := fmt.Sprintf(":%s", s.cfg.AppPort)
	s.logger.Info("HTTP server listening", slog.String("addr", addr))
	return s.app.Listen(addr)
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// isAdmin checks the admin_key query parameter against the stored admin
// password. Absent or wrong keys simply mean an unauthenticated caller.
func (s *Server) isAdmin(c *fiber.Ctx) bool {
	key := c.Query("admin_key")
	if key == "" {
		return false
	}
	return settings.VerifyAdminPassword(s.dbManager.GetConnection(), s.cfg, key)
}
