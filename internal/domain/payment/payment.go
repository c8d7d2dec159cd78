// Package payment defines the port used to verify payments with the card processor.
package payment

import (
	"context"
	"errors"

	"github.com/elyphant/backend/internal/domain/order"
	"github.com/shopspring/decimal"
)

// Errors returned by Verifier implementations
var (
	// ErrGatewayUnavailable marks failures worth retrying: network errors, 5xx and 429
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrGatewayRejected marks requests the gateway refused, such as unknown ids
	ErrGatewayRejected = errors.New("payment gateway rejected request")
)

// IsTransient reports whether a verification error may succeed on retry
func IsTransient(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable)
}

// Verification is the processor's view of a checkout
type Verification struct {
	SessionID       string
	PaymentIntentID string
	Status          order.PaymentStatus
	RawStatus       string
	AmountTotal     decimal.Decimal
	Currency        string
}

// Verifier looks up payment state by checkout session or payment intent
type Verifier interface {
	Verify(ctx context.Context, sessionID, paymentIntentID string) (*Verification, error)
}

// MapProcessorStatus converts a Stripe payment intent status into the local payment status
func MapProcessorStatus(raw string) order.PaymentStatus {
	switch raw {
	case "succeeded":
		return order.PaymentSucceeded
	case "processing":
		return order.PaymentProcessing
	case "requires_payment_method", "requires_confirmation", "requires_action":
		return order.PaymentRequiresAction
	case "canceled":
		return order.PaymentCanceled
	default:
		return order.PaymentPending
	}
}

// MapSessionPaymentStatus converts a checkout session payment_status
func MapSessionPaymentStatus(raw string) order.PaymentStatus {
	switch raw {
	case "paid", "no_payment_required":
		return order.PaymentSucceeded
	default:
		return order.PaymentPending
	}
}

// ErrInvalidSignature is returned when a webhook payload fails signature verification
var ErrInvalidSignature = errors.New("invalid webhook signature")

// ErrMalformedEvent is returned with a verified event whose object could not be decoded.
// The event still carries its ID and Type.
var ErrMalformedEvent = errors.New("malformed webhook event")

// WebhookEvent is a verified processor event narrowed to what order reconciliation needs.
// Handled is false for event types that carry no payment state change.
type WebhookEvent struct {
	ID              string
	Type            string
	SessionID       string
	PaymentIntentID string
	Status          order.PaymentStatus
	Handled         bool
}

// WebhookParser verifies and decodes a raw webhook delivery
type WebhookParser interface {
	Parse(payload []byte, signature string) (*WebhookEvent, error)
}
