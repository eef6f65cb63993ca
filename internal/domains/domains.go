// Package domains manages the allowlist of hostnames authorized for tracking.
package domains

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DomainNotAllowedError signals a beacon for a hostname that is not on the
// allowlist. It is a policy rejection, not a store failure.
type DomainNotAllowedError struct {
	Domain string
}

func (e *DomainNotAllowedError) Error() string {
	return fmt.Sprintf("domain not tracked: %s", e.Domain)
}

// NewDomainNotAllowedError creates a DomainNotAllowedError for the hostname.
func NewDomainNotAllowedError(domain string) *DomainNotAllowedError {
	return &DomainNotAllowedError{Domain: domain}
}

// AllowedDomain is a hostname authorized for tracking. Stored normalized
// (lowercase, no leading www.), set membership only.
type AllowedDomain struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Domain    string    `gorm:"unique;not null" json:"domain"`
	CreatedAt time.Time `json:"created_at"`
}

// Normalize lowercases a hostname and strips a leading www. prefix so
// www.example.com and example.com refer to the same tracked domain.
func Normalize(hostname string) string {
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	return strings.TrimPrefix(hostname, "www.")
}

// Register adds a domain to the allowlist. Registering an existing domain is
// a no-op, not an error and not a duplicate row.
func Register(db *gorm.DB, hostname string) error {
	normalized := Normalize(hostname)
	if normalized == "" {
		return errors.New("domain is required")
	}

	entry := AllowedDomain{Domain: normalized, CreatedAt: time.Now().UTC()}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "domain"}},
		DoNothing: true,
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("failed to register domain: %w", err)
	}
	return nil
}

// Remove deletes a domain from the allowlist. Removing an absent domain is a
// no-op. Historical events for the domain are retained.
func Remove(db *gorm.DB, hostname string) error {
	normalized := Normalize(hostname)
	if normalized == "" {
		return errors.New("domain is required")
	}

	if err := db.Where("domain = ?", normalized).Delete(&AllowedDomain{}).Error; err != nil {
		return fmt.Errorf("failed to remove domain: %w", err)
	}
	return nil
}

// IsAllowed reports whether the hostname (after normalization) is tracked.
func IsAllowed(db *gorm.DB, hostname string) (bool, error) {
	var count int64
	err := db.Model(&AllowedDomain{}).
		Where("domain = ?", Normalize(hostname)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check allowlist: %w", err)
	}
	return count > 0, nil
}

// List returns all tracked domains ordered alphabetically.
func List(db *gorm.DB) ([]string, error) {
	var names []string
	err := db.Model(&AllowedDomain{}).
		Order("domain ASC").
		Pluck("domain", &names).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	return names, nil
}
