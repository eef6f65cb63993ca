package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"minilytics/internal/aggregates"
	"minilytics/internal/collector"
	"minilytics/internal/domains"
)

const (
	beaconTypePageView = "pageview"
	beaconTypeDuration = "duration"
)

// trackRequest is the wire format of a beacon. Beacons arrive as text/plain
// via navigator.sendBeacon as well as regular JSON posts, so the body is
// decoded manually instead of relying on Content-Type negotiation.
type trackRequest struct {
	Type string `json:"type"`
	Data struct {
		URL      string  `json:"u"`
		Referrer string  `json:"r"`
		Duration float64 `json:"d"`
	} `json:"data"`
}

func (s *Server) trackAction(c *fiber.Ctx) error {
	var req trackRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	switch req.Type {
	case beaconTypePageView:
		return s.trackPageView(c, &req)
	case beaconTypeDuration:
		return s.trackDuration(c, &req)
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "unsupported beacon type",
		})
	}
}

func (s *Server) trackPageView(c *fiber.Ctx, req *trackRequest) error {
	receipt, err := s.collector.TrackPageView(&collector.PageViewInput{
		URL:         req.Data.URL,
		Referrer:    req.Data.Referrer,
		ClientAddr:  clientAddr(c),
		UserAgent:   c.Get("User-Agent"),
		CountryHint: c.Get("X-Country-Code"),
		Timestamp:   time.Now().UTC(),
	})
	if err != nil {
		return s.trackError(c, err)
	}

	s.logger.Debug("Tracked pageview",
		slog.String("domain", receipt.Domain),
		slog.Bool("unique", receipt.Unique),
		slog.Bool("tracked", receipt.Tracked))

	return c.SendStatus(fiber.StatusAccepted)
}

func (s *Server) trackDuration(c *fiber.Ctx, req *trackRequest) error {
	err := s.collector.TrackDuration(&collector.DurationInput{
		URL:     req.Data.URL,
		Seconds: req.Data.Duration,
	})
	if err != nil {
		return s.trackError(c, err)
	}
	return c.SendStatus(fiber.StatusAccepted)
}

// trackError maps pipeline errors onto the beacon status codes: validation
// failures are 400, allowlist rejections 403, everything else 500 with the
// detail kept in the log.
func (s *Server) trackError(c *fiber.Ctx, err error) error {
	var invalidBeacon *collector.InvalidBeaconError
	if errors.As(err, &invalidBeacon) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": invalidBeacon.Reason,
		})
	}
	if errors.Is(err, aggregates.ErrInvalidDuration) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "duration must be a positive number of seconds",
		})
	}

	var notAllowed *domains.DomainNotAllowedError
	if errors.As(err, &notAllowed) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": notAllowed.Error(),
		})
	}

	s.logger.Error("Failed to process beacon", slog.Any("error", err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "failed to process beacon",
	})
}
