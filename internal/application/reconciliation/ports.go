// Package reconciliation implements the order lifecycle reconciliation use cases:
// duplicate cleanup, payment verification, Stripe webhooks and Zinc status checks.
package reconciliation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ReportStore archives run reports as JSON documents
type ReportStore interface {
	PutJSON(ctx context.Context, key string, v any) error
}

// Recorder receives reconciliation metrics. Implementations must be safe for concurrent use.
type Recorder interface {
	RecordCleanupRun(ctx context.Context, mode string, groups, cancelled int, err error)
	RecordVerification(ctx context.Context, status string, attempts int, err error)
	RecordFulfillmentCheck(ctx context.Context, zincStatus string, err error)
	RecordWebhook(ctx context.Context, eventType, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordCleanupRun(context.Context, string, int, int, error) {}
func (nopRecorder) RecordVerification(context.Context, string, int, error)    {}
func (nopRecorder) RecordFulfillmentCheck(context.Context, string, error)     {}
func (nopRecorder) RecordWebhook(context.Context, string, string)             {}

// Caller identifies who invoked an operation. A nil Caller is a trusted system process.
type Caller struct {
	UserID    uuid.UUID
	IsAdmin   bool
	IPAddress string
	UserAgent string
}

// canAccess reports whether the caller may act on a resource owned by ownerID
func (c *Caller) canAccess(ownerID uuid.UUID) bool {
	return c == nil || c.IsAdmin || c.UserID == ownerID
}

func (c *Caller) userID() *uuid.UUID {
	if c == nil || c.UserID == uuid.Nil {
		return nil
	}
	id := c.UserID
	return &id
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
