// Package analytics answers dashboard queries. All-time totals come from the
// rollup table; bounded windows are computed from the event log.
package analytics

import (
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/pariz/gountries"

	"minilytics/internal/aggregates"
	"minilytics/internal/database"
	"minilytics/internal/events"
)

// ErrDomainRequired signals a view that cannot run without a domain filter.
var ErrDomainRequired = errors.New("domain parameter is required")

// Engine executes dashboard queries against the store.
type Engine struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	countries *gountries.Query
}

// New creates a query engine with explicit dependencies.
func New(dbManager *database.DBManager, logger *slog.Logger) *Engine {
	return &Engine{
		dbManager: dbManager,
		logger:    logger,
		countries: gountries.New(),
	}
}

// Overview is the summary card of the dashboard.
type Overview struct {
	PageViews         int64   `json:"page_views"`
	UniqueVisitors    int64   `json:"unique_visitors"`
	Sessions          int64   `json:"sessions"`
	BounceRate        float64 `json:"bounce_rate"`
	AvgSessionSeconds float64 `json:"avg_session_seconds"`
	AvgActiveSeconds  float64 `json:"avg_active_seconds"`
	Period            string  `json:"period"`
}

// Summary computes the overview for a window, optionally filtered by domain.
// Views and visitors come from the rollup when the window is all time and
// from the log otherwise; session metrics always come from the log. Average
// active seconds is an all-time figure either way, since the rollup carries
// no time dimension for accumulated durations.
func (e *Engine) Summary(window Window, domain string, now time.Time) (*Overview, error) {
	db := e.dbManager.GetConnection()

	overview := &Overview{Period: window.Label}

	if window.IsAllTime() {
		totals, err := aggregates.TotalsForDomain(db, domain)
		if err != nil {
			return nil, err
		}
		overview.PageViews = totals.Views
		overview.UniqueVisitors = totals.UniqueViews
		if totals.Views > 0 {
			overview.AvgActiveSeconds = round1(float64(totals.TotalActiveSeconds) / float64(totals.Views))
		}
	} else {
		views, visitors, err := events.CountInWindow(db, window.Start(now), domain)
		if err != nil {
			return nil, err
		}
		overview.PageViews = views
		overview.UniqueVisitors = visitors

		totals, err := aggregates.TotalsForDomain(db, domain)
		if err != nil {
			return nil, err
		}
		if totals.Views > 0 {
			overview.AvgActiveSeconds = round1(float64(totals.TotalActiveSeconds) / float64(totals.Views))
		}
	}

	stats, err := events.SessionStatsInWindow(db, window.Start(now), domain)
	if err != nil {
		return nil, err
	}
	overview.Sessions = stats.Sessions
	if stats.Sessions > 0 {
		overview.BounceRate = round1(float64(stats.Bounces) / float64(stats.Sessions) * 100)
		overview.AvgSessionSeconds = round1(float64(stats.TotalDurationSeconds) / float64(stats.Sessions))
	}

	return overview, nil
}

// PageRow is one URL in the top-pages listing.
type PageRow struct {
	URL                string `json:"url"`
	Views              int64  `json:"views"`
	UniqueViews        int64  `json:"unique_views"`
	TotalActiveSeconds int64  `json:"total_active_seconds,omitempty"`
}

// TopPages lists the most viewed URLs. The all-time window reads the rollup
// directly; bounded windows aggregate the log, where accumulated active time
// is unavailable.
func (e *Engine) TopPages(window Window, domain string, limit int, now time.Time) ([]PageRow, error) {
	db := e.dbManager.GetConnection()

	if window.IsAllTime() {
		rows, err := aggregates.TopByViews(db, domain, limit)
		if err != nil {
			return nil, err
		}
		pages := make([]PageRow, 0, len(rows))
		for _, r := range rows {
			pages = append(pages, PageRow{
				URL:                r.URL,
				Views:              r.Views,
				UniqueViews:        r.UniqueViews,
				TotalActiveSeconds: r.TotalActiveSeconds,
			})
		}
		return pages, nil
	}

	rows, err := events.TopURLsInWindow(db, window.Start(now), domain, limit)
	if err != nil {
		return nil, err
	}
	pages := make([]PageRow, 0, len(rows))
	for _, r := range rows {
		pages = append(pages, PageRow{URL: r.URL, Views: r.Views, UniqueViews: r.Visitors})
	}
	return pages, nil
}

// Details combines the overview with the top-pages listing.
type Details struct {
	Overview *Overview `json:"overview"`
	Pages    []PageRow `json:"pages"`
}

// DetailsInWindow returns the overview plus the top pages for one window.
func (e *Engine) DetailsInWindow(window Window, domain string, now time.Time) (*Details, error) {
	overview, err := e.Summary(window, domain, now)
	if err != nil {
		return nil, err
	}
	pages, err := e.TopPages(window, domain, 10, now)
	if err != nil {
		return nil, err
	}
	return &Details{Overview: overview, Pages: pages}, nil
}

// DomainSummaryRow is one tracked domain with unique-visitor counts over
// trailing windows.
type DomainSummaryRow struct {
	Domain  string `json:"domain"`
	Daily   int64  `json:"daily"`
	Weekly  int64  `json:"weekly"`
	Monthly int64  `json:"monthly"`
	Yearly  int64  `json:"yearly"`
}

// DomainSummary counts distinct visitors per tracked domain over trailing
// 1/7/30/365-day windows.
func (e *Engine) DomainSummary(now time.Time) ([]DomainSummaryRow, error) {
	db := e.dbManager.GetConnection()

	names, err := events.TrackedDomains(db)
	if err != nil {
		return nil, err
	}

	windows := []struct {
		since time.Time
		set   func(*DomainSummaryRow, int64)
	}{
		{now.AddDate(0, 0, -1), func(r *DomainSummaryRow, n int64) { r.Daily = n }},
		{now.AddDate(0, 0, -7), func(r *DomainSummaryRow, n int64) { r.Weekly = n }},
		{now.AddDate(0, 0, -30), func(r *DomainSummaryRow, n int64) { r.Monthly = n }},
		{now.AddDate(0, 0, -365), func(r *DomainSummaryRow, n int64) { r.Yearly = n }},
	}

	rows := make([]DomainSummaryRow, 0, len(names))
	for _, name := range names {
		row := DomainSummaryRow{Domain: name}
		for _, w := range windows {
			count, err := events.DistinctVisitorsSince(db, name, w.since)
			if err != nil {
				return nil, err
			}
			w.set(&row, count)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// DomainDetails breaks one domain down by referrer, browser, device, country
// and, for authenticated callers, client address.
type DomainDetails struct {
	Domain    string                `json:"domain"`
	Referrers []events.BreakdownRow `json:"referrers"`
	Browsers  []events.BreakdownRow `json:"browsers"`
	Devices   []events.BreakdownRow `json:"devices"`
	Countries []events.BreakdownRow `json:"countries"`
	Addresses []events.BreakdownRow `json:"addresses,omitempty"`
}

// DomainDetailsInWindow computes the per-domain breakdowns. Client addresses
// are included only when the caller is authenticated as admin. Country codes
// are humanized to country names where the code is recognized.
func (e *Engine) DomainDetailsInWindow(window Window, domain string, admin bool, now time.Time) (*DomainDetails, error) {
	if domain == "" {
		return nil, ErrDomainRequired
	}

	db := e.dbManager.GetConnection()
	from := window.Start(now)

	details := &DomainDetails{Domain: domain}

	var err error
	if details.Referrers, err = events.BreakdownInWindow(db, from, domain, "referrer", 10); err != nil {
		return nil, err
	}
	if details.Browsers, err = events.BreakdownInWindow(db, from, domain, "browser", 10); err != nil {
		return nil, err
	}
	if details.Devices, err = events.BreakdownInWindow(db, from, domain, "device_type", 10); err != nil {
		return nil, err
	}
	if details.Countries, err = events.BreakdownInWindow(db, from, domain, "country", 10); err != nil {
		return nil, err
	}
	for i := range details.Countries {
		details.Countries[i].Name = e.countryName(details.Countries[i].Name)
	}

	if admin {
		if details.Addresses, err = events.BreakdownInWindow(db, from, domain, "client_addr", 10); err != nil {
			return nil, err
		}
	}

	return details, nil
}

// EventLogEntry is one event-log row as exposed to the dashboard. The client
// address is present only for authenticated callers.
type EventLogEntry struct {
	URL        string    `json:"url"`
	Domain     string    `json:"domain"`
	Timestamp  time.Time `json:"timestamp"`
	IsUnique   bool      `json:"is_unique"`
	Referrer   string    `json:"referrer,omitempty"`
	Browser    string    `json:"browser"`
	DeviceType string    `json:"device_type"`
	Country    string    `json:"country"`
	ClientAddr string    `json:"client_addr,omitempty"`
}

// EventLog returns the most recent events for one URL, newest first, capped
// at limit. Client addresses are redacted unless the caller is admin.
func (e *Engine) EventLog(url string, limit int, admin bool) ([]EventLogEntry, error) {
	if url == "" {
		return nil, errors.New("url parameter is required")
	}

	rows, err := events.RecentByURL(e.dbManager.GetConnection(), url, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]EventLogEntry, 0, len(rows))
	for _, r := range rows {
		entry := EventLogEntry{
			URL:        r.URL,
			Domain:     r.Domain,
			Timestamp:  r.Timestamp,
			IsUnique:   r.IsUnique,
			Referrer:   r.Referrer,
			Browser:    r.Browser,
			DeviceType: r.DeviceType,
			Country:    r.Country,
		}
		if admin {
			entry.ClientAddr = r.ClientAddr
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// GraphSeries is the bucketed time series for one graph period. Every bucket
// in the period is present, zero-filled where the log has no rows.
type GraphSeries struct {
	Period  string             `json:"period"`
	Buckets []events.BucketRow `json:"buckets"`
}

// Graph computes the zero-filled time series for a period, optionally
// filtered by domain.
func (e *Engine) Graph(period GraphPeriod, domain string, now time.Time) (*GraphSeries, error) {
	db := e.dbManager.GetConnection()

	rows, err := events.SeriesInWindow(db, period.start(now), now, domain, period.dbFormat)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]events.BucketRow, len(rows))
	for _, r := range rows {
		byKey[r.Date] = r
	}

	keys := period.bucketKeys(now)
	buckets := make([]events.BucketRow, 0, len(keys))
	for _, key := range keys {
		if row, ok := byKey[key]; ok {
			buckets = append(buckets, row)
			continue
		}
		buckets = append(buckets, events.BucketRow{Date: key})
	}

	return &GraphSeries{Period: period.Label, Buckets: buckets}, nil
}

// countryName maps an ISO code to a display name, leaving unknown values as
// they are stored.
func (e *Engine) countryName(code string) string {
	if code == "" || code == events.UnknownCountry {
		return events.UnknownCountry
	}
	country, err := e.countries.FindCountryByAlpha(code)
	if err != nil {
		return code
	}
	return country.Name.Common
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
