package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvironmentGates(t *testing.T) {
	assert.True(t, (&Config{Environment: Development}).IsDevelopment())
	assert.True(t, (&Config{Environment: Production}).IsProduction())
	assert.True(t, (&Config{Environment: Test}).IsTest())
	assert.False(t, (&Config{Environment: Test}).IsProduction())
}

func TestGetDatabasePath(t *testing.T) {
	t.Run("derives from storage path, app name and environment", func(t *testing.T) {
		c := &Config{AppName: "minilytics", Environment: Test, StoragePath: "storage"}
		assert.Equal(t, filepath.Join("storage", "minilytics-test.db"), c.GetDatabasePath())
	})

	t.Run("explicit database name wins", func(t *testing.T) {
		c := &Config{DatabaseName: "custom.db"}
		assert.Equal(t, "custom.db", c.GetDatabasePath())
	})
}

func TestPoolSizing(t *testing.T) {
	t.Run("tests run on a single connection", func(t *testing.T) {
		c := &Config{Environment: Test}
		assert.Equal(t, 1, c.GetMaxOpenConns())
		assert.Equal(t, 1, c.GetMaxIdleConns())
	})

	t.Run("other environments allow concurrency", func(t *testing.T) {
		c := &Config{Environment: Production}
		assert.Equal(t, 10, c.GetMaxOpenConns())
		assert.Equal(t, 5, c.GetMaxIdleConns())
	})

	t.Run("explicit settings win", func(t *testing.T) {
		c := &Config{Environment: Test, DatabaseMaxOpenConns: 4, DatabaseMaxIdleConns: 2}
		assert.Equal(t, 4, c.GetMaxOpenConns())
		assert.Equal(t, 2, c.GetMaxIdleConns())
	})
}

func TestValidate(t *testing.T) {
	t.Run("rejects unknown environments", func(t *testing.T) {
		c := &Config{Environment: "staging", LedgerRetentionDays: 7}
		assert.Error(t, c.validate())
	})

	t.Run("rejects non-positive ledger retention", func(t *testing.T) {
		c := &Config{Environment: Test, LedgerRetentionDays: 0}
		assert.Error(t, c.validate())
	})

	t.Run("accepts a sane configuration", func(t *testing.T) {
		c := &Config{Environment: Test, LedgerRetentionDays: 7}
		assert.NoError(t, c.validate())
	})
}
