package jobs

import (
	"log/slog"
	"time"

	"minilytics/internal/config"
	"minilytics/internal/database"
	"minilytics/internal/visitors"
)

// CleanupJob prunes uniqueness-ledger rows past the retention window. Ledger
// rows only matter for the day they were written, so retention is purely a
// data-minimization measure.
type CleanupJob struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	cfg       *config.Config
}

func NewCleanupJob(dbManager *database.DBManager, logger *slog.Logger, cfg *config.Config) *CleanupJob {
	return &CleanupJob{
		dbManager: dbManager,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run deletes ledger rows older than the configured retention in batches.
func (j *CleanupJob) Run() error {
	retentionDays := j.cfg.LedgerRetentionDays
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	j.logger.Info("Starting ledger cleanup",
		slog.Int("retention_days", retentionDays),
		slog.Time("cutoff", cutoff))

	deleted, err := visitors.PruneBefore(j.dbManager.GetConnection(), cutoff, 1000)
	if err != nil {
		j.logger.Error("Failed to prune ledger", slog.Any("error", err))
		return err
	}

	if deleted == 0 {
		j.logger.Debug("No ledger rows to clean up")
		return nil
	}

	j.logger.Info("Pruned ledger rows",
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", retentionDays))
	return nil
}
