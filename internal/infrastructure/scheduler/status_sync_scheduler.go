package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxRetryDelay caps the exponential backoff between status check attempts
const maxRetryDelay = 30 * time.Minute

// ---------------------------------------------------------------------------
// Status Sync Job Types
// ---------------------------------------------------------------------------

// StatusSyncJobStatus represents the status of a fulfillment status check job
type StatusSyncJobStatus string

const (
	StatusSyncJobPending StatusSyncJobStatus = "PENDING"
	StatusSyncJobRunning StatusSyncJobStatus = "RUNNING"
	StatusSyncJobSuccess StatusSyncJobStatus = "SUCCESS"
	StatusSyncJobFailed  StatusSyncJobStatus = "FAILED"
)

// StatusSyncJob is one Zinc status check for one order
type StatusSyncJob struct {
	ID          uuid.UUID           `json:"id"`
	OrderID     uuid.UUID           `json:"order_id"`
	Status      StatusSyncJobStatus `json:"status"`
	ZincStatus  string              `json:"zinc_status,omitempty"`
	Error       string              `json:"error,omitempty"`
	Retryable   bool                `json:"retryable"`
	StartedAt   *time.Time          `json:"started_at,omitempty"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	RetryCount  int                 `json:"retry_count"`
	MaxRetries  int                 `json:"max_retries"`
	NextRetryAt *time.Time          `json:"next_retry_at,omitempty"`
}

// NewStatusSyncJob creates a pending job for an order
func NewStatusSyncJob(orderID uuid.UUID, maxRetries int) *StatusSyncJob {
	return &StatusSyncJob{
		ID:         uuid.New(),
		OrderID:    orderID,
		Status:     StatusSyncJobPending,
		MaxRetries: maxRetries,
		Retryable:  true,
	}
}

// Start marks the job as running
func (j *StatusSyncJob) Start() {
	now := time.Now()
	j.Status = StatusSyncJobRunning
	j.StartedAt = &now
	j.Error = ""
}

// Complete marks the job as successful with the status Zinc reported
func (j *StatusSyncJob) Complete(zincStatus string) {
	now := time.Now()
	j.Status = StatusSyncJobSuccess
	j.ZincStatus = zincStatus
	j.CompletedAt = &now
}

// Fail marks the job as failed
func (j *StatusSyncJob) Fail(err error) {
	now := time.Now()
	j.Status = StatusSyncJobFailed
	j.CompletedAt = &now
	j.Error = err.Error()
	j.Retryable = !errors.Is(err, ErrJobNotRetryable)
}

// ShouldRetry returns true if the job should be retried
func (j *StatusSyncJob) ShouldRetry() bool {
	return j.Status == StatusSyncJobFailed && j.Retryable && j.RetryCount < j.MaxRetries
}

// ScheduleRetry puts the job back to pending and returns how long to wait before it runs
func (j *StatusSyncJob) ScheduleRetry(baseDelay time.Duration) time.Duration {
	j.RetryCount++
	j.Status = StatusSyncJobPending
	delay := retryDelay(baseDelay, j.RetryCount)
	next := time.Now().Add(delay)
	j.NextRetryAt = &next
	j.CompletedAt = nil
	return delay
}

// retryDelay is baseDelay * 2^(attempt-1), capped at maxRetryDelay
func retryDelay(baseDelay time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	if delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}

// snapshot copies the job so history readers never race the worker
func (j *StatusSyncJob) snapshot() *StatusSyncJob {
	c := *j
	return &c
}

// ---------------------------------------------------------------------------
// Collaborators
// ---------------------------------------------------------------------------

// StatusSyncExecutor runs one status check
type StatusSyncExecutor interface {
	Execute(ctx context.Context, job *StatusSyncJob) error
}

// PendingOrderSource lists orders whose fulfillment is still in flight
type PendingOrderSource interface {
	PendingOrderIDs(ctx context.Context, limit int) ([]uuid.UUID, error)
}

// ---------------------------------------------------------------------------
// StatusSyncSchedulerConfig
// ---------------------------------------------------------------------------

// StatusSyncSchedulerConfig holds configuration for the status sync scheduler
type StatusSyncSchedulerConfig struct {
	// MaxConcurrentJobs is the number of workers
	MaxConcurrentJobs int
	// JobTimeout bounds a single status check
	JobTimeout time.Duration
	// RetryAttempts is the number of retries after the first failure
	RetryAttempts int
	// RetryDelay is the base delay between retries (with exponential backoff)
	RetryDelay time.Duration
	// PollInterval is how often pending orders are enqueued; zero disables polling
	PollInterval time.Duration
	// BatchSize limits how many pending orders one poll loads
	BatchSize int
	// QueueSize is the job channel capacity
	QueueSize int
	// HistorySize is how many finished jobs are kept for inspection
	HistorySize int
}

// DefaultStatusSyncSchedulerConfig returns default configuration
func DefaultStatusSyncSchedulerConfig() StatusSyncSchedulerConfig {
	return StatusSyncSchedulerConfig{
		MaxConcurrentJobs: 3,
		JobTimeout:        45 * time.Second,
		RetryAttempts:     3,
		RetryDelay:        time.Minute,
		PollInterval:      15 * time.Minute,
		BatchSize:         100,
		QueueSize:         100,
		HistorySize:       100,
	}
}

// Validate validates the configuration
func (c *StatusSyncSchedulerConfig) Validate() error {
	if c.MaxConcurrentJobs <= 0 {
		return ErrInvalidConfig
	}
	if c.JobTimeout <= 0 {
		return ErrInvalidConfig
	}
	if c.RetryAttempts < 0 || c.RetryDelay < 0 {
		return ErrInvalidConfig
	}
	if c.PollInterval < 0 {
		return ErrInvalidConfig
	}
	if c.BatchSize <= 0 || c.QueueSize <= 0 || c.HistorySize <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// ---------------------------------------------------------------------------
// StatusSyncScheduler
// ---------------------------------------------------------------------------

// StatusSyncScheduler runs Zinc status checks on a worker pool
type StatusSyncScheduler struct {
	config   StatusSyncSchedulerConfig
	executor StatusSyncExecutor
	source   PendingOrderSource
	logger   *zap.Logger

	jobs      chan *StatusSyncJob
	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	// orders with a job queued, running, or waiting for a retry
	queuedMu sync.Mutex
	queued   map[uuid.UUID]struct{}

	historyMu sync.RWMutex
	history   []*StatusSyncJob
}

// NewStatusSyncScheduler creates a new status sync scheduler. source may be nil to disable polling.
func NewStatusSyncScheduler(config StatusSyncSchedulerConfig, executor StatusSyncExecutor, source PendingOrderSource, logger *zap.Logger) (*StatusSyncScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if executor == nil {
		return nil, ErrInvalidConfig
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StatusSyncScheduler{
		config:   config,
		executor: executor,
		source:   source,
		logger:   logger,
		jobs:     make(chan *StatusSyncJob, config.QueueSize),
		queued:   make(map[uuid.UUID]struct{}),
		history:  make([]*StatusSyncJob, 0, config.HistorySize),
	}, nil
}

// Start starts the workers and, when configured, the pending-order poll loop
func (s *StatusSyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.runCtx, s.cancel = context.WithCancel(ctx)
	runCtx := s.runCtx
	s.mu.Unlock()

	for i := 0; i < s.config.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.worker(runCtx, i)
	}

	if s.source != nil && s.config.PollInterval > 0 {
		s.wg.Add(1)
		go s.pollLoop(runCtx)
	}

	s.logger.Info("Status sync scheduler started",
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Duration("job_timeout", s.config.JobTimeout),
		zap.Duration("poll_interval", s.config.PollInterval),
	)

	return nil
}

// Stop cancels the workers and waits for in-flight checks to return
func (s *StatusSyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Status sync scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Status sync scheduler stop timed out")
		return ctx.Err()
	}
}

// IsRunning reports whether the scheduler accepts jobs
func (s *StatusSyncScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// SubmitJob queues a job unless its order already has one in flight
func (s *StatusSyncScheduler) SubmitJob(job *StatusSyncJob) error {
	if !s.IsRunning() {
		return ErrSchedulerNotRunning
	}

	s.queuedMu.Lock()
	if _, exists := s.queued[job.OrderID]; exists {
		s.queuedMu.Unlock()
		return ErrJobAlreadyQueued
	}
	s.queued[job.OrderID] = struct{}{}
	s.queuedMu.Unlock()

	select {
	case s.jobs <- job:
		s.logger.Debug("Status sync job submitted",
			zap.String("job_id", job.ID.String()),
			zap.String("order_id", job.OrderID.String()),
		)
		return nil
	default:
		s.release(job.OrderID)
		return ErrJobQueueFull
	}
}

// ScheduleCheck queues a status check for one order
func (s *StatusSyncScheduler) ScheduleCheck(orderID uuid.UUID) error {
	return s.SubmitJob(NewStatusSyncJob(orderID, s.config.RetryAttempts))
}

// EnqueuePending loads orders awaiting fulfillment and queues a check for each.
// Orders already in flight are skipped. It stops early when the queue fills.
func (s *StatusSyncScheduler) EnqueuePending(ctx context.Context) (int, error) {
	if s.source == nil {
		return 0, nil
	}

	ids, err := s.source.PendingOrderIDs(ctx, s.config.BatchSize)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, id := range ids {
		err := s.ScheduleCheck(id)
		switch {
		case err == nil:
			queued++
		case errors.Is(err, ErrJobAlreadyQueued):
			continue
		case errors.Is(err, ErrJobQueueFull):
			s.logger.Warn("Status sync queue full, deferring remaining orders",
				zap.Int("queued", queued),
				zap.Int("pending", len(ids)),
			)
			return queued, nil
		default:
			return queued, err
		}
	}

	s.logger.Debug("Pending orders enqueued for status sync",
		zap.Int("queued", queued),
		zap.Int("pending", len(ids)),
	)
	return queued, nil
}

// QueuedCount returns the number of orders with a job in flight
func (s *StatusSyncScheduler) QueuedCount() int {
	s.queuedMu.Lock()
	defer s.queuedMu.Unlock()
	return len(s.queued)
}

func (s *StatusSyncScheduler) release(orderID uuid.UUID) {
	s.queuedMu.Lock()
	delete(s.queued, orderID)
	s.queuedMu.Unlock()
}

func (s *StatusSyncScheduler) pollLoop(ctx context.Context) {
	defer s.wg.Done()

	s.poll(ctx)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *StatusSyncScheduler) poll(ctx context.Context) {
	if _, err := s.EnqueuePending(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("Failed to load orders for status sync", zap.Error(err))
	}
}

// worker processes jobs from the queue
func (s *StatusSyncScheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.jobs:
			s.processJob(ctx, job, workerID)
		}
	}
}

// processJob executes a single job
func (s *StatusSyncScheduler) processJob(ctx context.Context, job *StatusSyncJob, workerID int) {
	job.Start()

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	err := s.executor.Execute(jobCtx, job)
	cancel()

	if err == nil {
		job.Complete(job.ZincStatus)
		s.logger.Debug("Status sync job completed",
			zap.Int("worker_id", workerID),
			zap.String("order_id", job.OrderID.String()),
			zap.String("zinc_status", job.ZincStatus),
		)
		s.addToHistory(job)
		s.release(job.OrderID)
		return
	}

	job.Fail(err)
	s.logger.Warn("Status sync job failed",
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("order_id", job.OrderID.String()),
		zap.Int("retry_count", job.RetryCount),
		zap.Error(err),
	)
	s.addToHistory(job)

	if ctx.Err() != nil || !job.ShouldRetry() {
		s.release(job.OrderID)
		return
	}

	delay := job.ScheduleRetry(s.config.RetryDelay)
	s.logger.Info("Status sync job scheduled for retry",
		zap.String("order_id", job.OrderID.String()),
		zap.Int("retry_count", job.RetryCount),
		zap.Int("max_retries", job.MaxRetries),
		zap.Duration("delay", delay),
	)

	// the order stays marked as queued while the timer is pending
	time.AfterFunc(delay, func() { s.requeue(ctx, job) })
}

func (s *StatusSyncScheduler) requeue(ctx context.Context, job *StatusSyncJob) {
	if ctx.Err() != nil {
		s.release(job.OrderID)
		return
	}
	select {
	case s.jobs <- job:
	case <-ctx.Done():
		s.release(job.OrderID)
	default:
		s.logger.Warn("Failed to re-queue status sync job for retry",
			zap.String("job_id", job.ID.String()),
			zap.String("order_id", job.OrderID.String()),
		)
		s.release(job.OrderID)
	}
}

// addToHistory records a copy of the job, newest first
func (s *StatusSyncScheduler) addToHistory(job *StatusSyncJob) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	s.history = append([]*StatusSyncJob{job.snapshot()}, s.history...)
	if len(s.history) > s.config.HistorySize {
		s.history = s.history[:s.config.HistorySize]
	}
}

// GetJobHistory returns recent job history
func (s *StatusSyncScheduler) GetJobHistory(limit int) []*StatusSyncJob {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}

	result := make([]*StatusSyncJob, limit)
	copy(result, s.history[:limit])
	return result
}

// GetJobHistoryByOrder returns job history for one order
func (s *StatusSyncScheduler) GetJobHistoryByOrder(orderID uuid.UUID, limit int) []*StatusSyncJob {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	result := make([]*StatusSyncJob, 0)
	for _, job := range s.history {
		if job.OrderID != orderID {
			continue
		}
		result = append(result, job)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result
}
