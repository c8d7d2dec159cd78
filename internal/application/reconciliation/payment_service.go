package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/elyphant/backend/internal/domain/order"
	"github.com/elyphant/backend/internal/domain/payment"
	"github.com/elyphant/backend/internal/domain/security"
	"github.com/elyphant/backend/internal/domain/shared"
)

// ErrRetriesExhausted wraps the last transient error after every attempt failed
var ErrRetriesExhausted = errors.New("payment verification retries exhausted")

// VerifyRequest identifies the payment to verify. At least one id is required.
type VerifyRequest struct {
	SessionID       string
	PaymentIntentID string
	Caller          *Caller
}

// VerifyResult is the order state after a verification
type VerifyResult struct {
	OrderID         uuid.UUID           `json:"order_id"`
	OrderNumber     string              `json:"order_number"`
	OrderStatus     order.Status        `json:"order_status"`
	PaymentStatus   order.PaymentStatus `json:"payment_status"`
	StripeStatus    string              `json:"stripe_status"`
	SessionID       string              `json:"session_id,omitempty"`
	PaymentIntentID string              `json:"payment_intent_id,omitempty"`
	AmountTotal     decimal.Decimal     `json:"amount_total" swaggertype:"string"`
	Currency        string              `json:"currency,omitempty"`
	Attempts        int                 `json:"attempts"`
	VerifiedAt      time.Time           `json:"verified_at"`
}

// PaymentVerificationService reconciles order payment state with Stripe
type PaymentVerificationService struct {
	verifier     payment.Verifier
	orders       order.Repository
	securityLogs security.Repository
	delays       []time.Duration
	recorder     Recorder
	logger       *zap.Logger
	sleep        func(ctx context.Context, d time.Duration) error
}

// PaymentVerificationServiceConfig contains configuration for PaymentVerificationService
type PaymentVerificationServiceConfig struct {
	Verifier     payment.Verifier
	Orders       order.Repository
	SecurityLogs security.Repository
	RetryDelays  []time.Duration // waits before each attempt; 0s, 5s, 15s when empty
	Recorder     Recorder
	Logger       *zap.Logger
}

// NewPaymentVerificationService creates a new PaymentVerificationService
func NewPaymentVerificationService(cfg PaymentVerificationServiceConfig) *PaymentVerificationService {
	s := &PaymentVerificationService{
		verifier:     cfg.Verifier,
		orders:       cfg.Orders,
		securityLogs: cfg.SecurityLogs,
		delays:       cfg.RetryDelays,
		recorder:     cfg.Recorder,
		logger:       cfg.Logger,
		sleep:        sleepContext,
	}
	if len(s.delays) == 0 {
		s.delays = []time.Duration{0, 5 * time.Second, 15 * time.Second}
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// VerifyPayment asks Stripe once and writes the result into the order
func (s *PaymentVerificationService) VerifyPayment(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	result, err := s.verifyOnce(ctx, req)
	attempts := 1
	status := ""
	if result != nil {
		status = string(result.PaymentStatus)
		result.Attempts = attempts
	}
	s.recorder.RecordVerification(ctx, status, attempts, err)
	return result, err
}

// VerifyWithRetry calls VerifyPayment once per configured delay, sleeping before each attempt.
// Only transient gateway errors are retried.
func (s *PaymentVerificationService) VerifyWithRetry(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	var lastErr error
	for i, delay := range s.delays {
		if err := s.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("payment verification aborted: %w", err)
		}

		result, err := s.verifyOnce(ctx, req)
		if err == nil {
			result.Attempts = i + 1
			s.recorder.RecordVerification(ctx, string(result.PaymentStatus), i+1, nil)
			return result, nil
		}
		if !payment.IsTransient(err) {
			s.recorder.RecordVerification(ctx, "", i+1, err)
			return nil, err
		}

		lastErr = err
		s.logger.Warn("Transient payment verification failure",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", len(s.delays)),
			zap.String("session_id", req.SessionID),
			zap.String("payment_intent_id", req.PaymentIntentID),
			zap.Error(err))
	}

	err := fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, len(s.delays), lastErr)
	s.recorder.RecordVerification(ctx, "", len(s.delays), err)
	return nil, err
}

func (s *PaymentVerificationService) verifyOnce(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	if req.SessionID == "" && req.PaymentIntentID == "" {
		return nil, shared.NewValidationError("sessionId or paymentIntentId is required", nil)
	}

	v, err := s.verifier.Verify(ctx, req.SessionID, req.PaymentIntentID)
	if err != nil {
		return nil, err
	}

	o, err := s.findOrder(ctx, req, v)
	if err != nil {
		return nil, err
	}
	if !req.Caller.canAccess(o.UserID) {
		return nil, shared.ErrForbidden
	}

	if err := o.ApplyPaymentStatus(v.Status, v.PaymentIntentID); err != nil {
		return nil, err
	}
	if o.StripeSessionID == "" && v.SessionID != "" {
		o.StripeSessionID = v.SessionID
	}
	if err := s.orders.UpdatePayment(ctx, o); err != nil {
		return nil, fmt.Errorf("failed to update order payment: %w", err)
	}

	entry := security.NewLog(security.EventPaymentVerified, security.SeverityInfo, req.Caller.userID(), map[string]any{
		"order_id":          o.ID.String(),
		"session_id":        v.SessionID,
		"payment_intent_id": v.PaymentIntentID,
		"payment_status":    string(v.Status),
		"stripe_status":     v.RawStatus,
	})
	if req.Caller != nil {
		entry.IPAddress = req.Caller.IPAddress
		entry.UserAgent = req.Caller.UserAgent
	}
	if err := s.securityLogs.Save(ctx, entry); err != nil {
		s.logger.Error("Failed to write payment security log",
			zap.String("order_id", o.ID.String()),
			zap.Error(err))
	}

	s.logger.Info("Payment verified",
		zap.String("order_id", o.ID.String()),
		zap.String("payment_status", string(o.PaymentStatus)),
		zap.String("order_status", string(o.Status)))

	return &VerifyResult{
		OrderID:         o.ID,
		OrderNumber:     o.OrderNumber,
		OrderStatus:     o.Status,
		PaymentStatus:   o.PaymentStatus,
		StripeStatus:    v.RawStatus,
		SessionID:       v.SessionID,
		PaymentIntentID: v.PaymentIntentID,
		AmountTotal:     v.AmountTotal,
		Currency:        v.Currency,
		VerifiedAt:      o.UpdatedAt,
	}, nil
}

// findOrder tries the session id first, then the payment intent id
func (s *PaymentVerificationService) findOrder(ctx context.Context, req VerifyRequest, v *payment.Verification) (*order.Order, error) {
	sessionID := firstNonEmpty(v.SessionID, req.SessionID)
	if sessionID != "" {
		o, err := s.orders.FindByStripeSessionID(ctx, sessionID)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("failed to find order by session: %w", err)
		}
	}

	intentID := firstNonEmpty(v.PaymentIntentID, req.PaymentIntentID)
	if intentID != "" {
		o, err := s.orders.FindByPaymentIntentID(ctx, intentID)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("failed to find order by payment intent: %w", err)
		}
	}

	return nil, shared.Wrap(shared.ErrNotFound, "No order matches this payment", map[string]any{
		"stripe_status":     v.RawStatus,
		"payment_status":    string(v.Status),
		"session_id":        sessionID,
		"payment_intent_id": intentID,
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
