// Package visitors derives privacy-first visitor identities and keeps the
// insert-once ledger behind unique-visitor counting.
package visitors

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// DayFormat is the calendar-day granularity of a fingerprint.
const DayFormat = "2006-01-02"

// DayKey returns the UTC calendar day a timestamp belongs to.
func DayKey(t time.Time) string {
	return t.UTC().Format(DayFormat)
}

// Fingerprint creates a pseudonymous visitor identifier for one UTC calendar
// day. The identity rotates at midnight UTC, so no stable cross-day
// identifier exists; the client address is only hashed, never stored.
//
// Granularity is per-site-per-day: the page URL is deliberately not part of
// the hash, so "unique" means first beacon from this visitor today anywhere
// on the site. The ledger and the page aggregates both rely on this policy.
func Fingerprint(clientAddr, userAgent string, day time.Time, salt string) string {
	// Length-prefixed fields keep the input unambiguous: ("1","23") and
	// ("12","3") must not collide.
	parts := []string{salt, DayKey(day), clientAddr, userAgent}
	var b strings.Builder
	for _, p := range parts {
		fmt.Fprintf(&b, "%d:%s", len(p), p)
	}

	hash := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(hash[:])
}
