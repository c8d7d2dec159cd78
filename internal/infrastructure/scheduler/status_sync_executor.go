package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/elyphant/backend/internal/application/reconciliation"
	"github.com/elyphant/backend/internal/domain/fulfillment"
	"github.com/elyphant/backend/internal/domain/shared"
)

// StatusChecker checks one order against Zinc
type StatusChecker interface {
	CheckOrderStatus(ctx context.Context, orderID uuid.UUID, caller *reconciliation.Caller) (*reconciliation.StatusResult, error)
}

// FulfillmentStatusExecutor runs status sync jobs through the fulfillment status service
type FulfillmentStatusExecutor struct {
	checker StatusChecker
}

var _ StatusSyncExecutor = (*FulfillmentStatusExecutor)(nil)

// NewFulfillmentStatusExecutor creates an executor backed by checker
func NewFulfillmentStatusExecutor(checker StatusChecker) *FulfillmentStatusExecutor {
	return &FulfillmentStatusExecutor{checker: checker}
}

// Execute checks the job's order as the system caller
func (e *FulfillmentStatusExecutor) Execute(ctx context.Context, job *StatusSyncJob) error {
	result, err := e.checker.CheckOrderStatus(ctx, job.OrderID, nil)
	if err != nil {
		if permanent(err) {
			return fmt.Errorf("%w: %w", ErrJobNotRetryable, err)
		}
		return err
	}
	job.ZincStatus = result.ZincStatus
	return nil
}

// permanent reports failures a later attempt would hit again
func permanent(err error) bool {
	return errors.Is(err, reconciliation.ErrNoFulfillmentID) ||
		errors.Is(err, shared.ErrNotFound) ||
		errors.Is(err, fulfillment.ErrUpstreamRejected)
}
