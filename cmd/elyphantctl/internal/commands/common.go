// Package commands implements the elyphantctl command groups.
package commands

import (
	"context"
	"encoding/json"
	"io"

	"github.com/google/uuid"

	"github.com/elyphant/backend/internal/application/reconciliation"
	"github.com/elyphant/backend/internal/infrastructure/migration"
)

// CleanupRunner runs the duplicate order cleanup
type CleanupRunner interface {
	Run(ctx context.Context, req reconciliation.CleanupRequest) (*reconciliation.CleanupReport, error)
}

// PaymentVerifier reconciles an order with Stripe
type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, req reconciliation.VerifyRequest) (*reconciliation.VerifyResult, error)
	VerifyWithRetry(ctx context.Context, req reconciliation.VerifyRequest) (*reconciliation.VerifyResult, error)
}

// StatusChecker refreshes one order from Zinc
type StatusChecker interface {
	CheckOrderStatus(ctx context.Context, orderID uuid.UUID, caller *reconciliation.Caller) (*reconciliation.StatusResult, error)
}

// Services are what the reconciliation commands call
type Services struct {
	Cleanup  CleanupRunner
	Payments PaymentVerifier
	Statuses StatusChecker
}

// Opener connects to the backing services. The returned func releases them.
type Opener func(ctx context.Context) (*Services, func(), error)

// Migrator is the subset of migration.Migrator the migrate commands use
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Status() (migration.Status, error)
	Close() error
}

// MigratorOpener connects a Migrator to the configured database
type MigratorOpener func() (Migrator, error)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
