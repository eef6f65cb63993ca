// Package settings stores small key/value configuration items in the
// database, currently the hashed admin password.
package settings

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"minilytics/internal/config"
)

// Setting represents a configuration item in the database
type Setting struct {
	ID        uint      `gorm:"primaryKey"`
	Key       string    `gorm:"uniqueIndex;not null"`
	Value     string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

const adminPasswordHashKey = "admin_password_hash"

// GetSetting retrieves a setting value from the database
func GetSetting(db *gorm.DB, key string) (string, error) {
	var setting Setting
	if err := db.Where("key = ?", key).First(&setting).Error; err != nil {
		return "", err
	}
	return setting.Value, nil
}

// UpdateSetting upserts a setting.
func UpdateSetting(db *gorm.DB, key, value string) error {
	now := time.Now().UTC()
	err := db.Exec(`
        INSERT INTO settings (key, value, created_at, updated_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = ?
    `, key, value, now, now, value, now).Error
	if err != nil {
		return fmt.Errorf("failed to upsert setting %s: %w", key, err)
	}
	return nil
}

// SetAdminPassword stores a bcrypt hash of the admin password.
func SetAdminPassword(db *gorm.DB, password string) error {
	if password == "" {
		return errors.New("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}
	return UpdateSetting(db, adminPasswordHashKey, string(hash))
}

// VerifyAdminPassword checks a candidate secret against the stored bcrypt
// hash, falling back to the configured plaintext admin password when no hash
// has been set yet. An empty candidate never authenticates.
func VerifyAdminPassword(db *gorm.DB, cfg *config.Config, candidate string) bool {
	if candidate == "" {
		return false
	}

	hash, err := GetSetting(db, adminPasswordHashKey)
	if err == nil && hash != "" {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}

	return cfg.AdminPassword != "" && candidate == cfg.AdminPassword
}
