// Package aggregates maintains the per-URL rolling rollup of views, unique
// views and accumulated active seconds.
package aggregates

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"
)

// ErrInvalidDuration rejects non-positive or non-finite active-time values.
// It is a validation signal, not a store failure.
var ErrInvalidDuration = errors.New("active seconds must be a positive finite number")

// PageAggregate is one row per distinct URL with monotonic counters. Created
// on first sighting, updated atomically on every subsequent beacon. The table
// is small (one row per URL) and cheap to scan fully.
type PageAggregate struct {
	ID                 uint   `gorm:"primaryKey;autoIncrement"`
	URL                string `gorm:"unique;not null" json:"url"`
	Domain             string `gorm:"index;not null" json:"domain"`
	Views              int64  `gorm:"not null;default:0" json:"views"`
	UniqueViews        int64  `gorm:"not null;default:0" json:"unique_views"`
	TotalActiveSeconds int64  `gorm:"not null;default:0" json:"total_active_seconds"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// UpsertView counts one page view against the URL's rollup. Insert-if-absent
// and increment-on-conflict happen in a single statement so concurrent
// beacons for the same URL cannot lose updates.
func UpsertView(tx *gorm.DB, url, domain string, isUnique bool) error {
	uniqueInc := 0
	if isUnique {
		uniqueInc = 1
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO page_aggregates (url, domain, views, unique_views, total_active_seconds, created_at, updated_at)
		VALUES (?, ?, 1, ?, 0, ?, ?)
		ON CONFLICT (url) DO UPDATE SET
			views = page_aggregates.views + 1,
			unique_views = page_aggregates.unique_views + ?,
			updated_at = ?
	`
	err := tx.Exec(query, url, domain, uniqueInc, now, now, uniqueInc, now).Error
	if err != nil {
		return fmt.Errorf("failed to upsert page aggregate: %w", err)
	}
	return nil
}

// AddActiveSeconds accumulates client-measured visible time for a URL.
// Seconds are rounded to an integer before accumulation; values <= 0 (or
// NaN/Inf) return ErrInvalidDuration without touching the store. A duration
// beacon racing the first pageview upsert still lands: the row is created
// with zero view counters and corrected by the pageview's own upsert.
func AddActiveSeconds(tx *gorm.DB, url, domain string, seconds float64) error {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds <= 0 {
		return ErrInvalidDuration
	}

	rounded := int64(math.Round(seconds))
	if rounded <= 0 {
		return ErrInvalidDuration
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO page_aggregates (url, domain, views, unique_views, total_active_seconds, created_at, updated_at)
		VALUES (?, ?, 0, 0, ?, ?, ?)
		ON CONFLICT (url) DO UPDATE SET
			total_active_seconds = page_aggregates.total_active_seconds + ?,
			updated_at = ?
	`
	err := tx.Exec(query, url, domain, rounded, now, now, rounded, now).Error
	if err != nil {
		return fmt.Errorf("failed to add active seconds: %w", err)
	}
	return nil
}

// GetByURL fetches one rollup row.
func GetByURL(db *gorm.DB, url string) (*PageAggregate, error) {
	var agg PageAggregate
	if err := db.Where("url = ?", url).First(&agg).Error; err != nil {
		return nil, err
	}
	return &agg, nil
}

// Totals holds whole-table sums used by the all-time overview.
type Totals struct {
	Views              int64
	UniqueViews        int64
	TotalActiveSeconds int64
	PageCount          int64
}

// TotalsForDomain sums the rollup, optionally filtered by domain. Empty
// domain means all domains.
func TotalsForDomain(db *gorm.DB, domain string) (*Totals, error) {
	query := `
    SELECT
        COALESCE(SUM(views), 0) AS views,
        COALESCE(SUM(unique_views), 0) AS unique_views,
        COALESCE(SUM(total_active_seconds), 0) AS total_active_seconds,
        COUNT(*) AS page_count
    FROM page_aggregates
    WHERE (? OR domain = ?)`

	var totals Totals
	err := db.Raw(query, domain == "", domain).Scan(&totals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum page aggregates: %w", err)
	}
	return &totals, nil
}

// TopByViews returns the highest-view rollup rows, optionally filtered by
// domain.
func TopByViews(db *gorm.DB, domain string, limit int) ([]PageAggregate, error) {
	if limit <= 0 {
		limit = 10
	}

	q := db.Model(&PageAggregate{}).Order("views DESC").Limit(limit)
	if domain != "" {
		q = q.Where("domain = ?", domain)
	}

	var rows []PageAggregate
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch top pages: %w", err)
	}
	return rows, nil
}
