// Package testsupport provides shared helpers for package tests: an
// in-memory sqlite database with the full schema, a configured test logger
// and small fixture builders.
package testsupport

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"minilytics/internal/aggregates"
	"minilytics/internal/config"
	"minilytics/internal/database"
	"minilytics/internal/domains"
	"minilytics/internal/events"
	"minilytics/internal/settings"
	"minilytics/internal/visitors"
)

// testDBCache caches test databases by root test name so subtests share one
// database with their parent.
var (
	testDBCache   = make(map[string]*gorm.DB)
	testDBCacheMu sync.Mutex
)

func allModels() []any {
	return []any{
		&domains.AllowedDomain{},
		&visitors.LedgerEntry{},
		&events.Event{},
		&aggregates.PageAggregate{},
		&settings.Setting{},
	}
}

// GetConfig returns the singleton config forced into the test environment.
func GetConfig(t *testing.T) *config.Config {
	t.Helper()

	if os.Getenv("MINILYTICS_ENV") != "test" {
		os.Setenv("MINILYTICS_ENV", "test")
		config.Reset()
	}

	cfg := config.GetConfig()
	if !cfg.IsTest() {
		t.Fatalf("tests must run in the test environment, got %s", cfg.Environment)
	}
	return cfg
}

// GetLogger returns a logger that discards output.
func GetLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// SetupTestDB creates a named in-memory database with cache=shared and the
// full schema migrated. Repeated calls within the same root test return the
// same database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	rootName := t.Name()
	if idx := strings.Index(rootName, "/"); idx > 0 {
		rootName = rootName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared&_busy_timeout=5000", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	// A single connection keeps concurrent test writes serialized the same
	// way the test config sizes the real pool.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	}

	db.Exec("PRAGMA foreign_keys = ON")

	if err := db.AutoMigrate(allModels()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager wraps a fresh test database in a DBManager.
func SetupTestDBManager(t *testing.T) (*database.DBManager, *slog.Logger) {
	t.Helper()

	cfg := GetConfig(t)
	db := SetupTestDB(t)
	logger := GetLogger()
	return database.NewManagerWithConnection(cfg, logger, db), logger
}

// CleanAllTables clears every non-system table, resetting autoincrement
// counters.
func CleanAllTables(db *gorm.DB) {
	var tableNames []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)

	if len(tableNames) == 0 {
		return
	}

	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tableNames {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// RegisterTestDomain puts a domain on the allowlist.
func RegisterTestDomain(t *testing.T, db *gorm.DB, domain string) {
	t.Helper()
	if err := domains.Register(db, domain); err != nil {
		t.Fatalf("testsupport: failed to register domain %s: %v", domain, err)
	}
}

// InsertTestEvent stores one event row with sensible defaults for fields the
// caller leaves zero.
func InsertTestEvent(t *testing.T, db *gorm.DB, event *events.Event) {
	t.Helper()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Browser == "" {
		event.Browser = "chrome"
	}
	if event.DeviceType == "" {
		event.DeviceType = "desktop"
	}
	if event.Country == "" {
		event.Country = events.UnknownCountry
	}
	if event.Fingerprint == "" {
		event.Fingerprint = strings.Repeat("a", 64)
	}
	if err := events.Record(db, event); err != nil {
		t.Fatalf("testsupport: failed to insert event: %v", err)
	}
}
