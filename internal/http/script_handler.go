package http

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"log/slog"
	"text/template"

	"github.com/gofiber/fiber/v2"
)

//go:embed track.js
var trackScriptTemplate string

// scriptAction renders the tracking script with the server base URL and
// serves it with a strong ETag so returning visitors get a 304.
func (s *Server) scriptAction(c *fiber.Ctx) error {
	tmpl, err := template.New("track.js").Parse(trackScriptTemplate)
	if err != nil {
		s.logger.Error("Failed to parse tracking script template", slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, map[string]string{"BaseURL": c.BaseURL()}); err != nil {
		s.logger.Error("Failed to render tracking script", slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
	}

	content := buf.Bytes()
	etag := scriptETag(content)

	if c.Get("If-None-Match") == etag {
		return c.Status(fiber.StatusNotModified).Send(nil)
	}

	c.Set("Content-Type", "application/javascript")
	c.Set("Cache-Control", "public, max-age=3600")
	c.Set("ETag", etag)
	c.Set("Cross-Origin-Resource-Policy", "cross-origin")
	return c.Send(content)
}

func scriptETag(content []byte) string {
	hash := sha256.Sum256(content)
	return `"` + hex.EncodeToString(hash[:]) + `"`
}
