// Package jobs runs the background maintenance work: pruning the uniqueness
// ledger past its retention window.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"minilytics/internal/config"
	"minilytics/internal/database"
)

// Scheduler owns the ticker goroutines for background jobs. Runs are
// mutually exclusive; a tick that fires while a job is still executing is
// skipped.
type Scheduler struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	cfg       *config.Config
	ctx    context.Context
	cancel context.CancelFunc

	processingMutex sync.Mutex
	isProcessing    bool
	isRunning       bool

	cleanupJob    *CleanupJob
	cleanupTicker *time.Ticker
}

// NewScheduler creates a scheduler with its job instances.
func NewScheduler(dbManager *database.DBManager, logger *slog.Logger, cfg *config.Config) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		dbManager:  dbManager,
		logger:     logger,
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
		cleanupJob: NewCleanupJob(dbManager, logger, cfg),
	}
}

// executeJobSafely runs a job unless another one is executing, and recovers
// panics so a failing job cannot take the process down.
func (s *Scheduler) executeJobSafely(jobName string, jobFunc func() error) {
	s.processingMutex.Lock()
	if s.isProcessing {
		s.logger.Debug("Skipping job execution - previous job still running", slog.String("job", jobName))
		s.processingMutex.Unlock()
		return
	}
	s.isProcessing = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", jobName),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		s.isProcessing = false
		s.processingMutex.Unlock()
	}()

	if err := jobFunc(); err != nil {
		s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
	}
}

// Start launches the job goroutines. Calling Start on a running scheduler is
// a no-op.
func (s *Scheduler) Start() {
	s.processingMutex.Lock()
	if s.isRunning {
		s.processingMutex.Unlock()
		s.logger.Info("Background jobs already running.")
		return
	}
	s.isRunning = true
	s.processingMutex.Unlock()

	interval := time.Duration(s.cfg.JobIntervalSeconds) * time.Second
	s.logger.Info("Starting ledger cleanup job", slog.Duration("interval", interval))
	s.cleanupTicker = time.NewTicker(interval)

	go func() {
		s.executeJobSafely("ledger_cleanup", s.cleanupJob.Run)

		for {
			select {
			case <-s.cleanupTicker.C:
				s.executeJobSafely("ledger_cleanup", s.cleanupJob.Run)
			case <-s.ctx.Done():
				s.logger.Info("Ledger cleanup job stopped")
				return
			}
		}
	}()
}

// Stop halts all background jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	if s.cleanupTicker != nil {
		s.cleanupTicker.Stop()
	}
	s.cancel()
	s.processingMutex.Lock()
	s.isRunning = false
	s.processingMutex.Unlock()
	s.logger.Info("Background jobs stopped")
}

// IsRunning reports whether the job goroutines are active.
func (s *Scheduler) IsRunning() bool {
	s.processingMutex.Lock()
	defer s.processingMutex.Unlock()
	return s.isRunning
}
