package order

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists orders
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)
	FindByStripeSessionID(ctx context.Context, sessionID string) (*Order, error)
	FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*Order, error)

	// FindActiveWithZincOrderID returns non-cancelled orders that have a Zinc order id
	FindActiveWithZincOrderID(ctx context.Context) ([]*Order, error)

	// FindSubmittingWithoutZincID returns orders stuck in submitting with no Zinc order id
	FindSubmittingWithoutZincID(ctx context.Context) ([]*Order, error)

	// FindPendingFulfillment returns orders with a Zinc order id whose Zinc status is not terminal
	FindPendingFulfillment(ctx context.Context, limit int) ([]*Order, error)

	Save(ctx context.Context, o *Order) error

	// UpdatePayment writes payment_status, the Stripe session and payment intent ids and the order status
	UpdatePayment(ctx context.Context, o *Order) error

	// UpdateFulfillment writes zinc_status, tracking_number and the order status
	UpdateFulfillment(ctx context.Context, o *Order) error

	// CancelDuplicates cancels the given orders in one transaction, skipping rows already
	// cancelled. It returns the ids that were actually changed.
	CancelDuplicates(ctx context.Context, cancellations []Cancellation) ([]uuid.UUID, error)
}
