package shared

import (
	"context"
	"time"
)

// IdempotencyStore stores processed event IDs to prevent duplicate processing
type IdempotencyStore interface {
	// MarkProcessed returns true if the event was newly marked, false if it was already processed
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)

	IsProcessed(ctx context.Context, eventID string) (bool, error)

	// Forget removes a mark so a failed event can be retried by the sender
	Forget(ctx context.Context, eventID string) error

	Close() error
}

// RunLock guards an operation that must not run concurrently across instances
type RunLock interface {
	// Acquire returns a release func, or ErrConflict if the lock is held elsewhere
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, err error)
}
