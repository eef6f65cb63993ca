package http

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

type healthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	DBStatus  string    `json:"db_status"`
}

func (s *Server) healthAction(c *fiber.Ctx) error {
	dbStatus := "ok"
	if err := s.dbManager.Ping(); err != nil {
		dbStatus = "error"
		s.logger.Error("Database ping failed", slog.Any("error", err))
	}

	health := healthStatus{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		DBStatus:  dbStatus,
	}
	if dbStatus != "ok" {
		health.Status = "degraded"
	}

	return c.JSON(health)
}
