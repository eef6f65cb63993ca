// Package geoip resolves client addresses to ISO country codes using an
// optional GeoLite2 database. Resolution is best effort: a missing database
// file disables lookups instead of failing startup.
package geoip

import (
	"log/slog"
	"net"
	"os"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

// Resolver wraps an optional GeoLite2 country database.
type Resolver struct {
	db     *geoip2.Reader
	logger *slog.Logger
}

// NewResolver opens the GeoLite2 database at path. An empty path or a
// missing/unreadable file yields a resolver whose lookups return "".
func NewResolver(path string, logger *slog.Logger) *Resolver {
	r := &Resolver{logger: logger}
	if path == "" {
		logger.Debug("GeoIP database path not configured - lookups disabled")
		return r
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info("GeoLite2 database not found - lookups disabled",
			slog.String("path", path),
			slog.String("hint", "Download from https://www.maxmind.com/en/geolite2/signup"))
		return r
	}

	db, err := geoip2.Open(path)
	if err != nil {
		logger.Error("Failed to open GeoLite2 database",
			slog.String("path", path),
			slog.Any("error", err))
		return r
	}

	logger.Info("GeoLite2 database initialized", slog.String("path", path))
	r.db = db
	return r
}

// Country returns the uppercase ISO country code for an address, or "" when
// the database is unavailable or the address cannot be resolved.
func (r *Resolver) Country(address string) string {
	if r.db == nil {
		return ""
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return ""
	}

	record, err := r.db.Country(ip)
	if err != nil {
		r.logger.Debug("GeoIP lookup failed",
			slog.String("address", address),
			slog.Any("error", err))
		return ""
	}

	code := record.Country.IsoCode
	if code == "" || code == "--" {
		return ""
	}
	return strings.ToUpper(code)
}

// Close releases the underlying database.
func (r *Resolver) Close() {
	if r.db != nil {
		r.db.Close()
	}
}
