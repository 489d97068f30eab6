package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/flowmetry/backend/internal/application/billing"
	"github.com/flowmetry/backend/internal/domain/usage"
	"go.uber.org/zap"
)

// ErrSchedulerNotRunning is returned when a trigger arrives while the
// scheduler is stopped
var ErrSchedulerNotRunning = errors.New("scheduler is not running")

// SLACreditSchedulerConfig holds configuration for the SLA credit scheduler
type SLACreditSchedulerConfig struct {
	// Enabled determines if the scheduler is active
	Enabled bool

	// RunDay is the day of month (1-28) when the monthly job runs
	RunDay int

	// RunHour is the hour (0-23) when the monthly job runs
	RunHour int

	// JobTimeout is the maximum time for one monthly run
	JobTimeout time.Duration

	// RetentionDays controls how long execution records are kept
	RetentionDays int

	// CleanupHour is the hour (0-23) when daily retention cleanup runs
	CleanupHour int
}

// DefaultSLACreditSchedulerConfig returns default configuration
func DefaultSLACreditSchedulerConfig() SLACreditSchedulerConfig {
	return SLACreditSchedulerConfig{
		Enabled:       true,
		RunDay:        1,
		RunHour:       2,
		JobTimeout:    30 * time.Minute,
		RetentionDays: 90,
		CleanupHour:   4,
	}
}

// SLACreditScheduler runs the monthly SLA credit job on the configured
// day and prunes old execution records daily
type SLACreditScheduler struct {
	credits   *billing.SLACreditService
	records   usage.ExecutionRecordRepository
	logger    *zap.Logger
	config    SLACreditSchedulerConfig
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewSLACreditScheduler creates a new SLA credit scheduler
func NewSLACreditScheduler(
	credits *billing.SLACreditService,
	records usage.ExecutionRecordRepository,
	logger *zap.Logger,
	config SLACreditSchedulerConfig,
) *SLACreditScheduler {
	return &SLACreditScheduler{
		credits: credits,
		records: records,
		logger:  logger,
		config:  config,
	}
}

// Start starts the scheduler loops
func (s *SLACreditScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		s.logger.Info("SLA credit scheduler is disabled")
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(2)
	go s.runMonthlyLoop(ctx)
	go s.runRetentionLoop(ctx)

	s.logger.Info("SLA credit scheduler started",
		zap.Int("run_day", s.config.RunDay),
		zap.Int("run_hour", s.config.RunHour),
		zap.Int("retention_days", s.config.RetentionDays),
	)

	return nil
}

// Stop gracefully stops the scheduler
func (s *SLACreditScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("SLA credit scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("SLA credit scheduler stop timed out")
		return ctx.Err()
	}
}

// runMonthlyLoop sleeps until the next configured run and executes the
// job for the prior calendar month
func (s *SLACreditScheduler) runMonthlyLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		now := time.Now().UTC()
		nextRun := time.Date(now.Year(), now.Month(), s.config.RunDay, s.config.RunHour, 0, 0, 0, time.UTC)
		if !nextRun.After(now) {
			nextRun = nextRun.AddDate(0, 1, 0)
		}
		delay := time.Until(nextRun)

		s.logger.Info("Monthly SLA credit run scheduled",
			zap.Time("next_run", nextRun),
			zap.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			s.logger.Debug("Monthly SLA credit loop stopping")
			return
		case <-time.After(delay):
			prior := nextRun.AddDate(0, -1, 0)
			s.executeMonthlyJob(ctx, prior.Year(), prior.Month())
		}
	}
}

// runRetentionLoop deletes old execution records once per day
func (s *SLACreditScheduler) runRetentionLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		now := time.Now().UTC()
		nextRun := time.Date(now.Year(), now.Month(), now.Day(), s.config.CleanupHour, 0, 0, 0, time.UTC)
		if !nextRun.After(now) {
			nextRun = nextRun.Add(24 * time.Hour)
		}

		select {
		case <-ctx.Done():
			s.logger.Debug("Retention cleanup loop stopping")
			return
		case <-time.After(time.Until(nextRun)):
			s.executeRetentionCleanup(ctx)
		}
	}
}

func (s *SLACreditScheduler) executeMonthlyJob(ctx context.Context, year int, month time.Month) {
	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	startTime := time.Now()
	summary, err := s.credits.RunMonthlyJob(jobCtx, year, month, nil)
	duration := time.Since(startTime)

	if err != nil {
		s.logger.Error("Monthly SLA credit run failed",
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return
	}

	s.logger.Info("Monthly SLA credit run completed",
		zap.Duration("duration", duration),
		zap.Int("total_tenants", summary.TotalTenants),
		zap.Int("credits_applied", summary.CreditsApplied),
		zap.Int("errors", summary.Errors),
	)
}

func (s *SLACreditScheduler) executeRetentionCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 15*time.Minute)
	defer cancel()

	before := time.Now().UTC().AddDate(0, 0, -s.config.RetentionDays)
	deleted, err := s.records.DeleteOlderThan(cleanupCtx, before)
	if err != nil {
		s.logger.Error("Execution record cleanup failed", zap.Error(err))
		return
	}

	s.logger.Info("Execution record cleanup completed",
		zap.Time("before", before),
		zap.Int64("deleted_count", deleted),
	)
}

// TriggerImmediateRun runs the credit job for the given month without
// waiting for the schedule
func (s *SLACreditScheduler) TriggerImmediateRun(ctx context.Context, year int, month time.Month) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("Triggering immediate SLA credit run",
		zap.Int("year", year),
		zap.Int("month", int(month)))

	go func() {
		defer s.wg.Done()
		s.executeMonthlyJob(ctx, year, month)
	}()

	return nil
}

// IsRunning returns whether the scheduler is running
func (s *SLACreditScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}
