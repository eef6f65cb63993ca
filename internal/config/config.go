// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`

	// PrivateKey salts visitor fingerprints. Rotating it resets uniqueness.
	PrivateKey string `mapstructure:"privatekey"`

	// AdminPassword is the shared admin secret used when no bcrypt hash has
	// been stored via minictl. Empty means admin-gated fields stay hidden.
	AdminPassword string `mapstructure:"adminpassword"`

	// File paths
	StoragePath  string `mapstructure:"storagepath"`
	DatabaseName string `mapstructure:"-"` // Derived from other settings
	GeoDBPath    string `mapstructure:"geodbpath"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseMaxOpenConns int `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int `mapstructure:"dbmaxidleconns"`

	// Job scheduling settings
	JobIntervalSeconds int `mapstructure:"jobintervalseconds"`

	// Data retention settings
	LedgerRetentionDays int `mapstructure:"ledgerretentiondays"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		v.SetDefault("appname", "minilytics")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("privatekey", "88888888888888888888888888888888")
		v.SetDefault("adminpassword", "")
		v.SetDefault("storagepath", "storage")
		v.SetDefault("geodbpath", "storage/GeoLite2-Country.mmdb")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("jobintervalseconds", 60)
		v.SetDefault("ledgerretentiondays", 7)

		v.BindEnv("appname", "MINILYTICS_APP_NAME")
		v.BindEnv("appport", "MINILYTICS_APP_PORT")
		v.BindEnv("environment", "MINILYTICS_ENV")
		v.BindEnv("loglevel", "MINILYTICS_LOG_LEVEL")
		v.BindEnv("privatekey", "MINILYTICS_PRIVATE_KEY")
		v.BindEnv("adminpassword", "MINILYTICS_ADMIN_PASSWORD")
		v.BindEnv("storagepath", "MINILYTICS_STORAGE_PATH")
		v.BindEnv("geodbpath", "MINILYTICS_GEO_DB_PATH")
		v.BindEnv("logsdir", "MINILYTICS_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "MINILYTICS_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "MINILYTICS_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "MINILYTICS_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbmaxopenconns", "MINILYTICS_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "MINILYTICS_DB_MAX_IDLE_CONNS")
		v.BindEnv("jobintervalseconds", "MINILYTICS_JOB_INTERVAL_SECONDS")
		v.BindEnv("ledgerretentiondays", "MINILYTICS_LEDGER_RETENTION_DAYS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		cfg.DatabaseName = cfg.GetDatabasePath()

		// The default key is only acceptable outside production
		defaultKey := "88888888888888888888888888888888"
		if cfg.PrivateKey == "" {
			log.Fatal("Private key is required")
		}
		if cfg.IsProduction() && cfg.PrivateKey == defaultKey {
			log.Fatal("Production requires a unique MINILYTICS_PRIVATE_KEY (cannot use default)")
		}
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	if c.LedgerRetentionDays < 1 {
		return fmt.Errorf("ledger retention must be at least 1 day, got %d", c.LedgerRetentionDays)
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.StoragePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetMaxOpenConns returns the MaxOpenConns value for the environment.
// Tests need a single connection for in-memory database stability; otherwise
// allow concurrent reads for parallel dashboard queries.
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}
	if c.Environment == Test {
		return 1
	}
	return 10
}

// GetMaxIdleConns returns the MaxIdleConns value for the environment.
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}
	if c.Environment == Test {
		return 1
	}
	return 5
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
