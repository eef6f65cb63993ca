package http

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"minilytics/internal/analytics"
)

// analyticsAction dispatches the dashboard views. Unknown view or period
// values are client errors; store failures stay in the log.
func (s *Server) analyticsAction(c *fiber.Ctx) error {
	view, err := analytics.ParseView(c.Query("view"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	// "all" and the empty string both mean every tracked domain.
	domain := c.Query("domain")
	if strings.EqualFold(domain, "all") {
		domain = ""
	}
	admin := s.isAdmin(c)
	now := time.Now().UTC()

	var result any

	switch view {
	case analytics.ViewSummary:
		window, perr := analytics.ParseWindow(c.Query("period"))
		if perr != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": perr.Error()})
		}
		result, err = s.engine.Summary(window, domain, now)

	case analytics.ViewDetails:
		window, perr := analytics.ParseWindow(c.Query("period"))
		if perr != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": perr.Error()})
		}
		if url := c.Query("url"); url != "" {
			result, err = s.engine.EventLog(url, c.QueryInt("limit", 50), admin)
		} else {
			result, err = s.engine.DetailsInWindow(window, domain, now)
		}

	case analytics.ViewDomainSummary:
		result, err = s.engine.DomainSummary(now)

	case analytics.ViewDomainDetails:
		window, perr := analytics.ParseWindow(c.Query("period"))
		if perr != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": perr.Error()})
		}
		result, err = s.engine.DomainDetailsInWindow(window, domain, admin, now)

	case analytics.ViewGraph:
		period, perr := analytics.ParseGraphPeriod(c.Query("period"))
		if perr != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": perr.Error()})
		}
		result, err = s.engine.Graph(period, domain, now)
	}

	if err != nil {
		if errors.Is(err, analytics.ErrDomainRequired) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		s.logger.Error("Analytics query failed",
			slog.String("view", c.Query("view")),
			slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to run analytics query",
		})
	}

	return c.JSON(result)
}
