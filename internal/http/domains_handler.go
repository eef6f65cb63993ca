package http

import (
	"encoding/json"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"minilytics/internal/domains"
)

type domainRequest struct {
	Domain string `json:"domain"`
}

// domain pulls the target domain from the JSON body or the query string.
func (r *domainRequest) parse(c *fiber.Ctx) string {
	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), r); err == nil && r.Domain != "" {
			return r.Domain
		}
	}
	return c.Query("domain")
}

func (s *Server) domainsIndexAction(c *fiber.Ctx) error {
	names, err := domains.List(s.dbManager.GetConnection())
	if err != nil {
		s.logger.Error("Failed to list domains", slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list domains",
		})
	}
	return c.JSON(fiber.Map{"domains": names})
}

// domainsCreateAction registers a domain. Registration is idempotent, so a
// repeated POST for the same domain still answers 201.
func (s *Server) domainsCreateAction(c *fiber.Ctx) error {
	var req domainRequest
	name := req.parse(c)
	if name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "domain is required",
		})
	}

	if err := domains.Register(s.dbManager.GetConnection(), name); err != nil {
		s.logger.Error("Failed to register domain",
			slog.String("domain", name),
			slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to register domain",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"domain": domains.Normalize(name),
	})
}

// domainsDeleteAction removes a domain from the allowlist. Removing an
// absent domain is not an error.
func (s *Server) domainsDeleteAction(c *fiber.Ctx) error {
	var req domainRequest
	name := req.parse(c)
	if name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "domain is required",
		})
	}

	if err := domains.Remove(s.dbManager.GetConnection(), name); err != nil {
		s.logger.Error("Failed to remove domain",
			slog.String("domain", name),
			slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to remove domain",
		})
	}

	return c.JSON(fiber.Map{
		"domain": domains.Normalize(name),
	})
}
