package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

func testConfig() StatusSyncSchedulerConfig {
	cfg := DefaultStatusSyncSchedulerConfig()
	cfg.MaxConcurrentJobs = 2
	cfg.JobTimeout = time.Second
	cfg.RetryDelay = time.Millisecond
	cfg.PollInterval = 0
	cfg.QueueSize = 10
	return cfg
}

type funcExecutor func(ctx context.Context, job *StatusSyncJob) error

func (f funcExecutor) Execute(ctx context.Context, job *StatusSyncJob) error {
	return f(ctx, job)
}

type staticSource struct {
	ids   []uuid.UUID
	err   error
	calls atomic.Int32
}

func (s *staticSource) PendingOrderIDs(_ context.Context, limit int) ([]uuid.UUID, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.ids) > limit {
		return s.ids[:limit], nil
	}
	return s.ids, nil
}

func startScheduler(t *testing.T, cfg StatusSyncSchedulerConfig, exec StatusSyncExecutor, source PendingOrderSource) *StatusSyncScheduler {
	t.Helper()
	s, err := NewStatusSyncScheduler(cfg, exec, source, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

// ---------------------------------------------------------------------------
// StatusSyncJob Tests
// ---------------------------------------------------------------------------

func TestNewStatusSyncJob(t *testing.T) {
	orderID := uuid.New()

	job := NewStatusSyncJob(orderID, 3)

	assert.NotEqual(t, uuid.Nil, job.ID)
	assert.Equal(t, orderID, job.OrderID)
	assert.Equal(t, StatusSyncJobPending, job.Status)
	assert.Equal(t, 3, job.MaxRetries)
	assert.Nil(t, job.StartedAt)
}

func TestStatusSyncJob_Lifecycle(t *testing.T) {
	job := NewStatusSyncJob(uuid.New(), 2)
	job.Error = "previous error"

	job.Start()
	assert.Equal(t, StatusSyncJobRunning, job.Status)
	assert.NotNil(t, job.StartedAt)
	assert.Empty(t, job.Error)

	job.Complete("shipped")
	assert.Equal(t, StatusSyncJobSuccess, job.Status)
	assert.Equal(t, "shipped", job.ZincStatus)
	assert.NotNil(t, job.CompletedAt)
	assert.False(t, job.ShouldRetry())
}

func TestStatusSyncJob_RetryPolicy(t *testing.T) {
	job := NewStatusSyncJob(uuid.New(), 2)

	job.Fail(errors.New("timeout"))
	assert.True(t, job.ShouldRetry())

	delay := job.ScheduleRetry(time.Minute)
	assert.Equal(t, time.Minute, delay)
	assert.Equal(t, StatusSyncJobPending, job.Status)
	require.NotNil(t, job.NextRetryAt)

	job.Fail(errors.New("timeout"))
	assert.Equal(t, 2*time.Minute, job.ScheduleRetry(time.Minute))

	job.Fail(errors.New("timeout"))
	assert.False(t, job.ShouldRetry(), "retries exhausted")
}

func TestStatusSyncJob_PermanentFailureDoesNotRetry(t *testing.T) {
	job := NewStatusSyncJob(uuid.New(), 5)

	job.Fail(fmt.Errorf("%w: order has no zinc id", ErrJobNotRetryable))

	assert.False(t, job.ShouldRetry())
}

func TestRetryDelay_CapsAtThirtyMinutes(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Minute},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{4, 8 * time.Minute},
		{5, 16 * time.Minute},
		{6, 30 * time.Minute},
		{40, 30 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			assert.Equal(t, tt.want, retryDelay(time.Minute, tt.attempt))
		})
	}

	assert.Equal(t, 30*time.Minute, retryDelay(time.Hour, 1))
}

// ---------------------------------------------------------------------------
// Config Tests
// ---------------------------------------------------------------------------

func TestStatusSyncSchedulerConfig_Validate(t *testing.T) {
	valid := DefaultStatusSyncSchedulerConfig()
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(c *StatusSyncSchedulerConfig)
	}{
		{"no workers", func(c *StatusSyncSchedulerConfig) { c.MaxConcurrentJobs = 0 }},
		{"no timeout", func(c *StatusSyncSchedulerConfig) { c.JobTimeout = 0 }},
		{"negative retries", func(c *StatusSyncSchedulerConfig) { c.RetryAttempts = -1 }},
		{"negative poll", func(c *StatusSyncSchedulerConfig) { c.PollInterval = -time.Second }},
		{"no batch", func(c *StatusSyncSchedulerConfig) { c.BatchSize = 0 }},
		{"no queue", func(c *StatusSyncSchedulerConfig) { c.QueueSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultStatusSyncSchedulerConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestNewStatusSyncScheduler_RequiresExecutor(t *testing.T) {
	_, err := NewStatusSyncScheduler(DefaultStatusSyncSchedulerConfig(), nil, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// ---------------------------------------------------------------------------
// StatusSyncScheduler Tests
// ---------------------------------------------------------------------------

func TestStatusSyncScheduler_SubmitWhenStopped(t *testing.T) {
	s, err := NewStatusSyncScheduler(testConfig(), funcExecutor(func(context.Context, *StatusSyncJob) error { return nil }), nil, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, s.ScheduleCheck(uuid.New()), ErrSchedulerNotRunning)
}

func TestStatusSyncScheduler_ProcessesJobs(t *testing.T) {
	var executed atomic.Int32
	s := startScheduler(t, testConfig(), funcExecutor(func(_ context.Context, job *StatusSyncJob) error {
		executed.Add(1)
		job.ZincStatus = "placed"
		return nil
	}), nil)

	orderID := uuid.New()
	require.NoError(t, s.ScheduleCheck(orderID))

	assert.Eventually(t, func() bool { return executed.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return s.QueuedCount() == 0 }, time.Second, 5*time.Millisecond)

	history := s.GetJobHistoryByOrder(orderID, 10)
	require.Len(t, history, 1)
	assert.Equal(t, StatusSyncJobSuccess, history[0].Status)
	assert.Equal(t, "placed", history[0].ZincStatus)
}

func TestStatusSyncScheduler_DoesNotQueueOrderTwice(t *testing.T) {
	release := make(chan struct{})
	var executed atomic.Int32
	s := startScheduler(t, testConfig(), funcExecutor(func(ctx context.Context, _ *StatusSyncJob) error {
		executed.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}), nil)

	orderID := uuid.New()
	require.NoError(t, s.ScheduleCheck(orderID))
	assert.ErrorIs(t, s.ScheduleCheck(orderID), ErrJobAlreadyQueued)
	assert.NoError(t, s.ScheduleCheck(uuid.New()))

	close(release)
	assert.Eventually(t, func() bool { return s.QueuedCount() == 0 }, time.Second, 5*time.Millisecond)

	assert.NoError(t, s.ScheduleCheck(orderID), "order can be queued again once its job finished")
	assert.Eventually(t, func() bool { return executed.Load() == 3 }, time.Second, 5*time.Millisecond)
}

func TestStatusSyncScheduler_RetriesTransientFailures(t *testing.T) {
	var attempts atomic.Int32
	cfg := testConfig()
	cfg.RetryAttempts = 2
	s := startScheduler(t, cfg, funcExecutor(func(_ context.Context, job *StatusSyncJob) error {
		if attempts.Add(1) < 3 {
			return errors.New("zinc unavailable")
		}
		job.ZincStatus = "shipped"
		return nil
	}), nil)

	orderID := uuid.New()
	require.NoError(t, s.ScheduleCheck(orderID))

	assert.Eventually(t, func() bool {
		h := s.GetJobHistoryByOrder(orderID, 0)
		return len(h) == 3 && h[0].Status == StatusSyncJobSuccess
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, 0, s.QueuedCount())
}

func TestStatusSyncScheduler_PermanentFailureIsNotRetried(t *testing.T) {
	var attempts atomic.Int32
	s := startScheduler(t, testConfig(), funcExecutor(func(context.Context, *StatusSyncJob) error {
		attempts.Add(1)
		return fmt.Errorf("%w: no zinc id", ErrJobNotRetryable)
	}), nil)

	orderID := uuid.New()
	require.NoError(t, s.ScheduleCheck(orderID))

	assert.Eventually(t, func() bool { return s.QueuedCount() == 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestStatusSyncScheduler_QueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.QueueSize = 1

	// without workers the queue never drains
	s, err := NewStatusSyncScheduler(cfg, funcExecutor(func(context.Context, *StatusSyncJob) error { return nil }), nil, nil)
	require.NoError(t, err)
	s.isRunning = true

	require.NoError(t, s.ScheduleCheck(uuid.New()))
	assert.ErrorIs(t, s.ScheduleCheck(uuid.New()), ErrJobQueueFull)
	assert.Equal(t, 1, s.QueuedCount())
}

func TestStatusSyncScheduler_EnqueuePending(t *testing.T) {
	var mu sync.Mutex
	seen := map[uuid.UUID]int{}
	block := make(chan struct{})
	s := startScheduler(t, testConfig(), funcExecutor(func(ctx context.Context, job *StatusSyncJob) error {
		mu.Lock()
		seen[job.OrderID]++
		mu.Unlock()
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	}), nil)

	source := &staticSource{ids: []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}}
	s.source = source

	queued, err := s.EnqueuePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, queued)

	queued, err = s.EnqueuePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, queued, "in-flight orders are skipped")

	close(block)
	assert.Eventually(t, func() bool { return s.QueuedCount() == 0 }, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, id := range source.ids {
		assert.Equal(t, 1, seen[id])
	}
}

func TestStatusSyncScheduler_EnqueuePendingError(t *testing.T) {
	s := startScheduler(t, testConfig(), funcExecutor(func(context.Context, *StatusSyncJob) error { return nil }), nil)
	s.source = &staticSource{err: errors.New("db down")}

	_, err := s.EnqueuePending(context.Background())
	assert.EqualError(t, err, "db down")
}

func TestStatusSyncScheduler_PollsOnStart(t *testing.T) {
	cfg := testConfig()
	cfg.PollInterval = time.Hour
	source := &staticSource{ids: []uuid.UUID{uuid.New()}}
	var executed atomic.Int32

	startScheduler(t, cfg, funcExecutor(func(context.Context, *StatusSyncJob) error {
		executed.Add(1)
		return nil
	}), source)

	assert.Eventually(t, func() bool { return executed.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), source.calls.Load())
}

func TestStatusSyncScheduler_HistoryIsCapped(t *testing.T) {
	cfg := testConfig()
	cfg.HistorySize = 2
	s, err := NewStatusSyncScheduler(cfg, funcExecutor(func(context.Context, *StatusSyncJob) error { return nil }), nil, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		job := NewStatusSyncJob(uuid.New(), 0)
		job.Complete(fmt.Sprintf("status-%d", i))
		s.addToHistory(job)
	}

	history := s.GetJobHistory(0)
	require.Len(t, history, 2)
	assert.Equal(t, "status-2", history[0].ZincStatus)
	assert.Equal(t, "status-1", history[1].ZincStatus)
	assert.Len(t, s.GetJobHistory(1), 1)
}

func TestStatusSyncScheduler_StopIsIdempotent(t *testing.T) {
	s, err := NewStatusSyncScheduler(testConfig(), funcExecutor(func(context.Context, *StatusSyncJob) error { return nil }), nil, nil)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())

	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.ScheduleCheck(uuid.New()), ErrSchedulerNotRunning)
}
