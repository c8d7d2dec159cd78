package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/elyphant/backend/internal/application/reconciliation"
	"github.com/elyphant/backend/internal/domain/shared"
)

// CleanupRunner runs one duplicate cleanup
type CleanupRunner interface {
	Run(ctx context.Context, req reconciliation.CleanupRequest) (*reconciliation.CleanupReport, error)
}

// CleanupCronTriggerConfig holds configuration for the daily cleanup trigger
type CleanupCronTriggerConfig struct {
	// Schedule is a standard five-field cron expression evaluated in Location
	Schedule string
	// Location defaults to UTC
	Location *time.Location
	// RunTimeout bounds one scheduled run
	RunTimeout time.Duration
}

// DefaultCleanupCronTriggerConfig returns default configuration
func DefaultCleanupCronTriggerConfig() CleanupCronTriggerConfig {
	return CleanupCronTriggerConfig{
		Schedule:   "0 3 * * *",
		Location:   time.UTC,
		RunTimeout: 10 * time.Minute,
	}
}

// CleanupCronTrigger runs the duplicate cleanup in cleanup mode on a cron schedule
type CleanupCronTrigger struct {
	config CleanupCronTriggerConfig
	runner CleanupRunner
	logger *zap.Logger

	mu        sync.Mutex
	cron      *cron.Cron
	cancel    context.CancelFunc
	isRunning bool
	lastRun   *reconciliation.CleanupReport
	lastErr   error
}

// NewCleanupCronTrigger validates the schedule and creates a trigger
func NewCleanupCronTrigger(config CleanupCronTriggerConfig, runner CleanupRunner, logger *zap.Logger) (*CleanupCronTrigger, error) {
	if runner == nil {
		return nil, ErrInvalidConfig
	}
	if _, err := cron.ParseStandard(config.Schedule); err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidSchedule, config.Schedule, err)
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = DefaultCleanupCronTriggerConfig().RunTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CleanupCronTrigger{
		config: config,
		runner: runner,
		logger: logger,
	}, nil
}

// Start registers the schedule and starts the cron runner
func (c *CleanupCronTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isRunning {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	cronLogger := zapCronLogger{sugar: c.logger.Sugar()}
	runner := cron.New(
		cron.WithLocation(c.config.Location),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	if _, err := runner.AddFunc(c.config.Schedule, func() { c.trigger(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("%w %q: %w", ErrInvalidSchedule, c.config.Schedule, err)
	}
	runner.Start()

	c.cron = runner
	c.cancel = cancel
	c.isRunning = true

	c.logger.Info("Cleanup cron trigger started",
		zap.String("schedule", c.config.Schedule),
		zap.String("location", c.config.Location.String()),
	)
	return nil
}

// Stop stops scheduling and waits for a running cleanup to return
func (c *CleanupCronTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	runner, cancel := c.cron, c.cancel
	c.mu.Unlock()

	stopped := runner.Stop()
	cancel()

	select {
	case <-stopped.Done():
		c.logger.Info("Cleanup cron trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NextRun returns the next scheduled time, or zero when the trigger is not running
func (c *CleanupCronTrigger) NextRun() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isRunning {
		return time.Time{}
	}
	entries := c.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// LastRun returns the report and error of the most recent scheduled run
func (c *CleanupCronTrigger) LastRun() (*reconciliation.CleanupReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRun, c.lastErr
}

// RunNow runs one cleanup immediately with the same request the schedule uses
func (c *CleanupCronTrigger) RunNow(ctx context.Context) (*reconciliation.CleanupReport, error) {
	runCtx, cancel := context.WithTimeout(ctx, c.config.RunTimeout)
	defer cancel()

	report, err := c.runner.Run(runCtx, reconciliation.CleanupRequest{
		Mode:             reconciliation.ModeCleanup,
		CancelDuplicates: true,
	})

	c.mu.Lock()
	c.lastRun, c.lastErr = report, err
	c.mu.Unlock()

	return report, err
}

func (c *CleanupCronTrigger) trigger(ctx context.Context) {
	c.logger.Info("Triggering scheduled duplicate cleanup")

	report, err := c.RunNow(ctx)
	switch {
	case errors.Is(err, shared.ErrConflict):
		c.logger.Warn("Scheduled duplicate cleanup skipped, another run holds the lock")
	case err != nil:
		c.logger.Error("Scheduled duplicate cleanup failed", zap.Error(err))
	default:
		c.logger.Info("Scheduled duplicate cleanup finished",
			zap.String("run_id", report.RunID.String()),
			zap.Int("duplicate_groups", report.DuplicateGroups),
			zap.Int("cancelled", report.Cancelled),
			zap.Int("at_risk", len(report.AtRisk)),
		)
	}
}

// zapCronLogger adapts zap to cron.Logger
type zapCronLogger struct {
	sugar *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
