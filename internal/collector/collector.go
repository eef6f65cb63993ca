// Package collector implements the beacon ingestion pipeline: allowlist
// check, visitor fingerprinting, uniqueness decision, event append and
// rollup update.
package collector

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"gorm.io/gorm"

	"minilytics/internal/aggregates"
	"minilytics/internal/config"
	"minilytics/internal/database"
	"minilytics/internal/domains"
	"minilytics/internal/events"
	"minilytics/internal/pkg/geoip"
	"minilytics/internal/pkg/useragent"
	"minilytics/internal/visitors"
)

// InvalidBeaconError is a client-side validation failure detected before any
// write is performed.
type InvalidBeaconError struct {
	Reason string
}

func (e *InvalidBeaconError) Error() string {
	return fmt.Sprintf("invalid beacon: %s", e.Reason)
}

// Collector ties the ingestion pipeline together. Construct once and share;
// each call runs independently on its own request goroutine.
type Collector struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	cfg       *config.Config
	geo       *geoip.Resolver
}

// New creates a collector with explicit dependencies.
func New(dbManager *database.DBManager, logger *slog.Logger, cfg *config.Config, geo *geoip.Resolver) *Collector {
	return &Collector{dbManager: dbManager, logger: logger, cfg: cfg, geo: geo}
}

// PageViewInput carries one pageview beacon plus the request metadata the
// handler extracted.
type PageViewInput struct {
	URL         string
	Referrer    string
	ClientAddr  string
	UserAgent   string
	CountryHint string // forwarded geo header, best effort
	Timestamp   time.Time
}

// DurationInput carries one active-time beacon.
type DurationInput struct {
	URL     string
	Seconds float64
}

// Receipt reports what the pipeline did with a beacon.
type Receipt struct {
	Domain  string
	Unique  bool
	Tracked bool
}

type beaconURL struct {
	raw    string
	domain string
}

func parseBeaconURL(raw string) (*beaconURL, error) {
	if raw == "" {
		return nil, &InvalidBeaconError{Reason: "url is required"}
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Hostname() == "" {
		return nil, &InvalidBeaconError{Reason: "malformed url"}
	}
	return &beaconURL{
		raw:    raw,
		domain: domains.Normalize(parsed.Hostname()),
	}, nil
}

// TrackPageView runs the full pipeline for one pageview beacon. The
// uniqueness decision from the ledger is used consistently in both the event
// append and the rollup upsert, and those two writes share one transaction.
func (c *Collector) TrackPageView(input *PageViewInput) (*Receipt, error) {
	target, err := parseBeaconURL(input.URL)
	if err != nil {
		return nil, err
	}

	db := c.dbManager.GetConnection()

	allowed, err := domains.IsAllowed(db, target.domain)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, domains.NewDomainNotAllowedError(target.domain)
	}

	if input.UserAgent == "" {
		input.UserAgent = "Unknown User Agent"
	}
	parsedUA := useragent.Parse(input.UserAgent)
	if parsedUA.Bot {
		c.logger.Debug("Skipping bot beacon",
			slog.String("url", target.raw),
			slog.String("user_agent", input.UserAgent))
		return &Receipt{Domain: target.domain, Tracked: false}, nil
	}

	timestamp := input.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	fingerprint := visitors.Fingerprint(input.ClientAddr, input.UserAgent, timestamp, c.cfg.PrivateKey)

	// The ledger insert is the single synchronization point for uniqueness.
	// It is idempotent, so a crash between it and the writes below leaves
	// bounded, self-correcting drift rather than corruption.
	isUnique, err := visitors.TryMarkSeen(db, fingerprint, timestamp)
	if err != nil {
		return nil, err
	}

	event := &events.Event{
		URL:         target.raw,
		Domain:      target.domain,
		Timestamp:   timestamp,
		IsUnique:    isUnique,
		Referrer:    input.Referrer,
		Browser:     parsedUA.Browser,
		DeviceType:  parsedUA.DeviceType,
		Country:     c.resolveCountry(input),
		ClientAddr:  input.ClientAddr,
		Fingerprint: fingerprint,
	}

	err = database.PerformWrite(c.logger, db, func(tx *gorm.DB) error {
		if err := events.Record(tx, event); err != nil {
			return err
		}
		return aggregates.UpsertView(tx, target.raw, target.domain, isUnique)
	})
	if err != nil {
		c.logger.Error("Failed to persist pageview",
			slog.String("url", target.raw),
			slog.Any("error", err))
		return nil, err
	}

	return &Receipt{Domain: target.domain, Unique: isUnique, Tracked: true}, nil
}

// TrackDuration validates and accumulates an active-time beacon.
func (c *Collector) TrackDuration(input *DurationInput) error {
	target, err := parseBeaconURL(input.URL)
	if err != nil {
		return err
	}

	db := c.dbManager.GetConnection()

	allowed, err := domains.IsAllowed(db, target.domain)
	if err != nil {
		return err
	}
	if !allowed {
		return domains.NewDomainNotAllowedError(target.domain)
	}

	return database.PerformWrite(c.logger, db, func(tx *gorm.DB) error {
		return aggregates.AddActiveSeconds(tx, target.raw, target.domain, input.Seconds)
	})
}

// resolveCountry prefers the forwarded geo header, falls back to a GeoLite2
// lookup, and defaults to Unknown.
func (c *Collector) resolveCountry(input *PageViewInput) string {
	if hint := strings.ToUpper(strings.TrimSpace(input.CountryHint)); hint != "" && hint != "XX" {
		return hint
	}
	if c.geo != nil {
		if code := c.geo.Country(input.ClientAddr); code != "" {
			return code
		}
	}
	return events.UnknownCountry
}
