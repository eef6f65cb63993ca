package visitors

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// LedgerEntry marks a fingerprint as seen on a given day. The composite
// unique index is the synchronization point for the uniqueness decision:
// under concurrent inserts for the same pair, exactly one caller wins.
type LedgerEntry struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	Fingerprint string    `gorm:"size:64;not null;uniqueIndex:idx_fingerprint_day"`
	Day         string    `gorm:"size:10;not null;uniqueIndex:idx_fingerprint_day"`
	CreatedAt   time.Time `gorm:"index"`
}

// TryMarkSeen atomically records (fingerprint, day) and reports whether this
// was the first sighting. The insert is delegated to the store's uniqueness
// constraint — never check-then-insert, which has a race window. A rejected
// insert means "repeat visitor" and is not an error; anything else is a store
// failure and propagates.
func TryMarkSeen(db *gorm.DB, fingerprint string, day time.Time) (bool, error) {
	result := db.Exec(
		`INSERT INTO ledger_entries (fingerprint, day, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (fingerprint, day) DO NOTHING`,
		fingerprint, DayKey(day), time.Now().UTC(),
	)
	if result.Error != nil {
		return false, fmt.Errorf("failed to write uniqueness ledger: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// PruneBefore deletes ledger entries created before the cutoff, in batches to
// avoid holding the write lock for long. Returns the number of rows removed.
func PruneBefore(db *gorm.DB, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	var totalDeleted int64
	for {
		result := db.Where("created_at < ?", cutoff).
			Limit(batchSize).
			Delete(&LedgerEntry{})
		if result.Error != nil {
			return totalDeleted, fmt.Errorf("failed to prune ledger: %w", result.Error)
		}

		totalDeleted += result.RowsAffected
		if result.RowsAffected < int64(batchSize) {
			return totalDeleted, nil
		}
	}
}
