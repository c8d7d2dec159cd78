package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"go.uber.org/zap"

	"github.com/elyphant/backend/internal/domain/payment"
)

// StripeGateway verifies checkout sessions and payment intents against the Stripe API
type StripeGateway struct {
	api    *client.API
	logger *zap.Logger
}

var _ payment.Verifier = (*StripeGateway)(nil)

// GatewayOption customizes a StripeGateway
type GatewayOption func(*stripe.Backends)

// WithBackend replaces the API backend, used for tests and custom endpoints
func WithBackend(b stripe.Backend) GatewayOption {
	return func(bs *stripe.Backends) {
		bs.API = b
	}
}

// NewStripeGateway creates a gateway with its own client instance.
// The process-wide stripe.Key is left untouched.
func NewStripeGateway(cfg *StripeConfig, logger *zap.Logger, opts ...GatewayOption) (*StripeGateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	backends := &stripe.Backends{
		API: stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			MaxNetworkRetries: stripe.Int64(cfg.MaxNetworkRetries),
			LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
		}),
	}
	for _, opt := range opts {
		opt(backends)
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, backends)

	return &StripeGateway{api: api, logger: logger}, nil
}

// Verify fetches the processor state for a session or, when no session is given, a payment intent
func (g *StripeGateway) Verify(ctx context.Context, sessionID, paymentIntentID string) (*payment.Verification, error) {
	if sessionID != "" {
		return g.verifySession(ctx, sessionID, paymentIntentID)
	}
	if paymentIntentID != "" {
		return g.verifyPaymentIntent(ctx, paymentIntentID)
	}
	return nil, fmt.Errorf("%w: session id or payment intent id is required", payment.ErrGatewayRejected)
}

func (g *StripeGateway) verifySession(ctx context.Context, sessionID, fallbackIntentID string) (*payment.Verification, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	sess, err := g.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		g.logger.Warn("Stripe checkout session lookup failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return nil, classifyStripeError(ctx, "retrieve checkout session", err)
	}

	v := &payment.Verification{
		SessionID:       sess.ID,
		PaymentIntentID: fallbackIntentID,
		RawStatus:       string(sess.PaymentStatus),
		Status:          payment.MapSessionPaymentStatus(string(sess.PaymentStatus)),
		AmountTotal:     minorUnits(sess.AmountTotal),
		Currency:        string(sess.Currency),
	}
	if pi := sess.PaymentIntent; pi != nil {
		v.PaymentIntentID = pi.ID
		// an expanded intent carries a status; a bare id reference does not
		if pi.Status != "" {
			v.RawStatus = string(pi.Status)
			v.Status = payment.MapProcessorStatus(string(pi.Status))
		}
	}

	g.logger.Debug("Verified Stripe checkout session",
		zap.String("session_id", v.SessionID),
		zap.String("payment_intent_id", v.PaymentIntentID),
		zap.String("status", string(v.Status)))
	return v, nil
}

func (g *StripeGateway) verifyPaymentIntent(ctx context.Context, paymentIntentID string) (*payment.Verification, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Get(paymentIntentID, params)
	if err != nil {
		g.logger.Warn("Stripe payment intent lookup failed",
			zap.String("payment_intent_id", paymentIntentID),
			zap.Error(err))
		return nil, classifyStripeError(ctx, "retrieve payment intent", err)
	}

	return &payment.Verification{
		PaymentIntentID: pi.ID,
		RawStatus:       string(pi.Status),
		Status:          payment.MapProcessorStatus(string(pi.Status)),
		AmountTotal:     minorUnits(pi.Amount),
		Currency:        string(pi.Currency),
	}, nil
}

// classifyStripeError marks network failures, 5xx and 429 as retryable
func classifyStripeError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("stripe: failed to %s: %w", op, ctxErr)
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode >= http.StatusInternalServerError ||
			stripeErr.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: stripe: failed to %s: %v", payment.ErrGatewayUnavailable, op, err)
		}
		return fmt.Errorf("%w: stripe: failed to %s: %v", payment.ErrGatewayRejected, op, err)
	}

	return fmt.Errorf("%w: stripe: failed to %s: %v", payment.ErrGatewayUnavailable, op, err)
}

// minorUnits converts a two-decimal currency amount from cents.
// Zero-decimal currencies such as JPY are not sold through checkout.
func minorUnits(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}
