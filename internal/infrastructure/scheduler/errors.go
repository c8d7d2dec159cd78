package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when trying to submit a job to a stopped scheduler
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrJobQueueFull is returned when the job queue is full
	ErrJobQueueFull = errors.New("job queue is full")

	// ErrJobAlreadyQueued is returned when the order already has a queued or running job
	ErrJobAlreadyQueued = errors.New("status check already queued for this order")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrInvalidSchedule is returned for a cron expression that does not parse
	ErrInvalidSchedule = errors.New("invalid cron schedule")

	// ErrJobNotRetryable marks executor failures that retrying cannot fix
	ErrJobNotRetryable = errors.New("status check failed permanently")
)
