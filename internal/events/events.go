// Package events stores the append-only time-series log of tracked beacons.
package events

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Constants for unknown or default values
const (
	// DirectOrUnknownReferrer is the breakdown bucket for events that
	// carried no referrer.
	DirectOrUnknownReferrer = "Direct"
	UnknownCountry          = "Unknown"
)

// Event is one row per tracked beacon. The log is the system of record for
// time-windowed queries and per-event drill-down; rows are never updated or
// deleted by normal operation.
type Event struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	URL         string    `gorm:"index;not null"`
	Domain      string    `gorm:"index:idx_domain_timestamp;not null"`
	Timestamp   time.Time `gorm:"index:idx_domain_timestamp;index;not null"`
	IsUnique    bool      `gorm:"not null"`
	Referrer    string
	Browser     string `gorm:"index"`
	DeviceType  string `gorm:"index"`
	Country     string
	ClientAddr  string
	Fingerprint string `gorm:"index;size:64;not null"`
	CreatedAt   time.Time
}

// Record appends an event to the log. Duplicate content is fine: the same
// visitor produces one row per page view, each flagged is_unique according
// to the ledger decision for that specific beacon.
func Record(tx *gorm.DB, event *Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if err := tx.Create(event).Error; err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// scoped applies the time window and optional domain filter shared by the
// windowed queries. A zero `from` means all time; an empty domain means all
// domains.
func scoped(db *gorm.DB, from time.Time, domain string) *gorm.DB {
	q := db.Model(&Event{})
	if !from.IsZero() {
		q = q.Where("timestamp >= ?", from)
	}
	if domain != "" {
		q = q.Where("domain = ?", domain)
	}
	return q
}

// CountInWindow returns total page views and distinct visitors in the window.
func CountInWindow(db *gorm.DB, from time.Time, domain string) (views int64, visitors int64, err error) {
	if err = scoped(db, from, domain).Count(&views).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count events: %w", err)
	}
	if err = scoped(db, from, domain).Distinct("fingerprint").Count(&visitors).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count distinct visitors: %w", err)
	}
	return views, visitors, nil
}

// SessionStats holds fingerprint-grouped session metrics for a window.
// A session is the set of events sharing a fingerprint within the window;
// a bounce is a session with exactly one event.
type SessionStats struct {
	Sessions             int64
	Bounces              int64
	TotalDurationSeconds int64
}

// SessionStatsInWindow groups events by fingerprint and derives session
// counts, bounce counts and summed session durations in one pass.
func SessionStatsInWindow(db *gorm.DB, from time.Time, domain string) (*SessionStats, error) {
	query := `
    SELECT
        COUNT(*) AS sessions,
        COALESCE(SUM(CASE WHEN event_count = 1 THEN 1 ELSE 0 END), 0) AS bounces,
        COALESCE(SUM(duration_seconds), 0) AS total_duration_seconds
    FROM (
        SELECT
            fingerprint,
            COUNT(*) AS event_count,
            CAST(ROUND((JULIANDAY(MAX(timestamp)) - JULIANDAY(MIN(timestamp))) * 86400) AS INTEGER) AS duration_seconds
        FROM events
        WHERE (? OR timestamp >= ?)
        AND (? OR domain = ?)
        GROUP BY fingerprint
    )`

	var stats SessionStats
	err := db.Raw(query,
		from.IsZero(), from.UTC(),
		domain == "", domain,
	).Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute session stats: %w", err)
	}
	return &stats, nil
}

// RecentByURL returns the most recent events for one URL, newest first.
func RecentByURL(db *gorm.DB, url string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []Event
	err := db.Where("url = ?", url).
		Order("timestamp DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recent events: %w", err)
	}
	return rows, nil
}

// BreakdownRow is one named count in a grouped breakdown.
type BreakdownRow struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// allowed GROUP BY columns for BreakdownInWindow; the column name is
// interpolated into SQL and must never come from request input directly.
var breakdownColumns = map[string]string{
	"referrer":    "referrer",
	"browser":     "browser",
	"device_type": "device_type",
	"country":     "country",
	"client_addr": "client_addr",
}

// BreakdownInWindow groups events for one domain by the given column and
// returns descending counts.
func BreakdownInWindow(db *gorm.DB, from time.Time, domain, column string, limit int) ([]BreakdownRow, error) {
	col, ok := breakdownColumns[column]
	if !ok {
		return nil, fmt.Errorf("unsupported breakdown column: %s", column)
	}
	if limit <= 0 {
		limit = 10
	}

	// Empty referrers are direct visits and keep their own bucket; for the
	// other columns an empty value carries no signal and is dropped.
	expr := col
	filter := fmt.Sprintf("AND %s != ''", col)
	if col == "referrer" {
		expr = fmt.Sprintf("CASE WHEN referrer IS NULL OR referrer = '' THEN '%s' ELSE referrer END", DirectOrUnknownReferrer)
		filter = ""
	}

	query := fmt.Sprintf(`
    SELECT %s AS name, COUNT(*) AS count
    FROM events
    WHERE (? OR timestamp >= ?)
    AND domain = ?
    %s
    GROUP BY name
    ORDER BY count DESC
    LIMIT ?`, expr, filter)

	var rows []BreakdownRow
	err := db.Raw(query, from.IsZero(), from.UTC(), domain, limit).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute %s breakdown: %w", column, err)
	}
	return rows, nil
}

// DistinctVisitorsSince counts distinct fingerprints for one domain since a
// bucket boundary.
func DistinctVisitorsSince(db *gorm.DB, domain string, since time.Time) (int64, error) {
	var count int64
	err := db.Model(&Event{}).
		Where("domain = ? AND timestamp >= ?", domain, since).
		Distinct("fingerprint").
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count distinct visitors: %w", err)
	}
	return count, nil
}

// TrackedDomains returns the distinct domains present in the event log.
func TrackedDomains(db *gorm.DB) ([]string, error) {
	var names []string
	err := db.Model(&Event{}).
		Distinct("domain").
		Order("domain ASC").
		Pluck("domain", &names).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked domains: %w", err)
	}
	return names, nil
}

// PageCountRow is one URL with windowed view and visitor counts.
type PageCountRow struct {
	URL      string `json:"url"`
	Views    int64  `json:"views"`
	Visitors int64  `json:"unique_views"`
}

// TopURLsInWindow returns the most viewed URLs inside a bounded window. The
// rollup table cannot answer this (it has no time dimension), so the log is
// the source.
func TopURLsInWindow(db *gorm.DB, from time.Time, domain string, limit int) ([]PageCountRow, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
    SELECT
        url,
        COUNT(*) AS views,
        COUNT(DISTINCT fingerprint) AS visitors
    FROM events
    WHERE timestamp >= ?
    AND (? OR domain = ?)
    GROUP BY url
    ORDER BY views DESC
    LIMIT ?`

	var rows []PageCountRow
	err := db.Raw(query, from.UTC(), domain == "", domain, limit).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch top URLs: %w", err)
	}
	return rows, nil
}

// BucketRow is one time bucket in a graph series.
type BucketRow struct {
	Date     string `json:"date"`
	Views    int64  `json:"views"`
	Visitors int64  `json:"visitors"`
}

// SeriesInWindow returns per-bucket view and distinct-visitor counts between
// from and to, using an sqlite strftime format as the bucket key. Buckets
// without events are absent here; callers zero-fill.
func SeriesInWindow(db *gorm.DB, from, to time.Time, domain, dbFormat string) ([]BucketRow, error) {
	query := fmt.Sprintf(`
    SELECT
        strftime('%s', timestamp) AS date,
        COUNT(*) AS views,
        COUNT(DISTINCT fingerprint) AS visitors
    FROM events
    WHERE timestamp >= ? AND timestamp <= ?
    AND (? OR domain = ?)
    GROUP BY date
    ORDER BY date ASC`, dbFormat)

	var rows []BucketRow
	err := db.Raw(query, from.UTC(), to.UTC(), domain == "", domain).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute time series: %w", err)
	}
	return rows, nil
}
