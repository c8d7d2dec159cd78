package payment

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/elyphant/backend/internal/domain/order"
	"github.com/elyphant/backend/internal/domain/payment"
)

// Stripe event types that change an order's payment state
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventPaymentIntentSucceeded   = "payment_intent.succeeded"
	EventPaymentIntentFailed      = "payment_intent.payment_failed"
	EventPaymentIntentCanceled    = "payment_intent.canceled"
)

// StripeWebhookParser verifies Stripe-Signature headers and decodes events
type StripeWebhookParser struct {
	secret string
}

var _ payment.WebhookParser = (*StripeWebhookParser)(nil)

// NewStripeWebhookParser creates a parser for the given endpoint secret
func NewStripeWebhookParser(secret string) (*StripeWebhookParser, error) {
	if secret == "" {
		return nil, fmt.Errorf("stripe: webhook secret is required")
	}
	return &StripeWebhookParser{secret: secret}, nil
}

// Parse verifies the signature and extracts the session or intent the event refers to
func (p *StripeWebhookParser) Parse(payload []byte, signature string) (*payment.WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", payment.ErrInvalidSignature, err)
	}

	out := &payment.WebhookEvent{
		ID:   event.ID,
		Type: string(event.Type),
	}
	if event.Data == nil {
		return out, nil
	}

	switch out.Type {
	case EventCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return out, fmt.Errorf("%w: checkout session: %v", payment.ErrMalformedEvent, err)
		}
		out.SessionID = sess.ID
		if sess.PaymentIntent != nil {
			out.PaymentIntentID = sess.PaymentIntent.ID
		}
		out.Status = payment.MapSessionPaymentStatus(string(sess.PaymentStatus))
		out.Handled = true

	case EventPaymentIntentSucceeded, EventPaymentIntentFailed, EventPaymentIntentCanceled:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return out, fmt.Errorf("%w: payment intent: %v", payment.ErrMalformedEvent, err)
		}
		out.PaymentIntentID = pi.ID
		out.Status = intentEventStatus(out.Type)
		out.Handled = true
	}

	return out, nil
}

// intentEventStatus uses the event type, since a failed intent reverts to requires_payment_method
func intentEventStatus(eventType string) order.PaymentStatus {
	switch eventType {
	case EventPaymentIntentSucceeded:
		return order.PaymentSucceeded
	case EventPaymentIntentFailed:
		return order.PaymentFailed
	default:
		return order.PaymentCanceled
	}
}
