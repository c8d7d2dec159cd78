// Package security records audit events to the security_logs table.
package security

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Severity of a security log entry
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event types written by the backend
const (
	EventDuplicateCleanup = "duplicate_cleanup"
	EventPaymentVerified  = "payment_verified"
	EventPaymentWebhook   = "payment_webhook"
	EventRateLimited      = "rate_limit_exceeded"
)

// Log is one row of security_logs
type Log struct {
	ID        uuid.UUID
	UserID    *uuid.UUID
	EventType string
	Severity  Severity
	Details   map[string]any
	IPAddress string
	UserAgent string
	CreatedAt time.Time
}

// NewLog creates an entry stamped with the current time
func NewLog(eventType string, severity Severity, userID *uuid.UUID, details map[string]any) *Log {
	if details == nil {
		details = map[string]any{}
	}
	return &Log{
		ID:        uuid.New(),
		UserID:    userID,
		EventType: eventType,
		Severity:  severity,
		Details:   details,
		CreatedAt: time.Now(),
	}
}

// Repository persists security logs
type Repository interface {
	Save(ctx context.Context, log *Log) error
	FindRecent(ctx context.Context, eventType string, limit int) ([]*Log, error)
}
