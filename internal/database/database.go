package database

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"minilytics/internal/aggregates"
	"minilytics/internal/config"
	"minilytics/internal/domains"
	"minilytics/internal/events"
	"minilytics/internal/settings"
	"minilytics/internal/visitors"
)

// DBManager owns the gorm connection pool. It is constructed once at process
// start and passed explicitly to everything that needs store access.
type DBManager struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *gorm.DB
}

// NewDBManager creates a database manager for the configured sqlite file.
func NewDBManager(cfg *config.Config, logger *slog.Logger) *DBManager {
	return &DBManager{cfg: cfg, logger: logger}
}

// NewManagerWithConnection wraps an already-open gorm handle, mainly for
// tests that manage their own in-memory database.
func NewManagerWithConnection(cfg *config.Config, logger *slog.Logger, db *gorm.DB) *DBManager {
	return &DBManager{cfg: cfg, logger: logger, db: db}
}

// Init opens the database connection with WAL and a busy timeout, and sizes
// the connection pool for the current environment.
func (dm *DBManager) Init() error {
	path := dm.cfg.GetDatabasePath()
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(dm.cfg.GetMaxOpenConns())
	sqlDB.SetMaxIdleConns(dm.cfg.GetMaxIdleConns())

	dm.db = db
	dm.logger.Info("Database connection established", slog.String("path", path))
	return nil
}

// GetConnection returns the shared gorm handle.
func (dm *DBManager) GetConnection() *gorm.DB {
	return dm.db
}

// Ping verifies the connection is alive.
func (dm *DBManager) Ping() error {
	if dm.db == nil {
		return gorm.ErrInvalidDB
	}
	sqlDB, err := dm.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close releases the connection pool.
func (dm *DBManager) Close() error {
	if dm.db == nil {
		return nil
	}
	sqlDB, err := dm.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// MigrateDatabase runs schema migrations for all models.
func (dm *DBManager) MigrateDatabase() error {
	if dm.db == nil {
		return gorm.ErrInvalidDB
	}

	err := dm.db.Transaction(func(tx *gorm.DB) error {
		return tx.AutoMigrate(
			&domains.AllowedDomain{},
			&visitors.LedgerEntry{},
			&events.Event{},
			&aggregates.PageAggregate{},
			&settings.Setting{},
		)
	})
	if err != nil {
		dm.logger.Error("Failed to auto-migrate database", slog.Any("error", err))
		return err
	}

	dm.logger.Info("Database migration completed successfully")
	return nil
}

const (
	writeRetries    = 3
	writeRetryDelay = 50 * time.Millisecond
)

// PerformWrite runs fn inside a transaction, retrying a few times when sqlite
// reports the database as busy or locked.
func PerformWrite(logger *slog.Logger, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 0; attempt < writeRetries; attempt++ {
		err = db.Transaction(fn)
		if err == nil {
			return nil
		}
		if !isBusyError(err) {
			return err
		}
		logger.Debug("Retrying write after busy database",
			slog.Int("attempt", attempt+1),
			slog.Any("error", err))
		time.Sleep(writeRetryDelay << attempt)
	}
	return err
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}
