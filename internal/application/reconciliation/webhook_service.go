package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/elyphant/backend/internal/domain/order"
	"github.com/elyphant/backend/internal/domain/payment"
	"github.com/elyphant/backend/internal/domain/security"
	"github.com/elyphant/backend/internal/domain/shared"
)

// Webhook outcomes
const (
	WebhookProcessed = "processed"
	WebhookDuplicate = "duplicate"
	WebhookIgnored   = "ignored"
	WebhookNoOrder   = "order_not_found"
	WebhookFailed    = "failed"
)

const idempotencyKeyPrefix = "stripe-event:"

// WebhookResult contains the result of processing a webhook
type WebhookResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Outcome   string `json:"outcome"`
	OrderID   string `json:"order_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

// PaymentWebhookService applies Stripe payment events to orders
type PaymentWebhookService struct {
	parser       payment.WebhookParser
	orders       order.Repository
	securityLogs security.Repository
	idempotency  shared.IdempotencyStore
	ttl          time.Duration
	recorder     Recorder
	logger       *zap.Logger
}

// PaymentWebhookServiceConfig contains configuration for PaymentWebhookService
type PaymentWebhookServiceConfig struct {
	Parser       payment.WebhookParser
	Orders       order.Repository
	SecurityLogs security.Repository
	Idempotency  shared.IdempotencyStore
	TTL          time.Duration
	Recorder     Recorder
	Logger       *zap.Logger
}

// NewPaymentWebhookService creates a new PaymentWebhookService
func NewPaymentWebhookService(cfg PaymentWebhookServiceConfig) *PaymentWebhookService {
	s := &PaymentWebhookService{
		parser:       cfg.Parser,
		orders:       cfg.Orders,
		securityLogs: cfg.SecurityLogs,
		idempotency:  cfg.Idempotency,
		ttl:          cfg.TTL,
		recorder:     cfg.Recorder,
		logger:       cfg.Logger,
	}
	if s.ttl <= 0 {
		s.ttl = 24 * time.Hour
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// ProcessWebhook verifies and applies one delivery.
// Only signature failures return an error; processing failures are reported in the result.
func (s *PaymentWebhookService) ProcessWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	event, err := s.parser.Parse(payload, signature)
	if err != nil && event != nil && errors.Is(err, payment.ErrMalformedEvent) {
		s.logger.Error("Undecodable Stripe event",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
			zap.Error(err))
		s.recorder.RecordWebhook(ctx, event.Type, WebhookFailed)
		return &WebhookResult{
			EventID:   event.ID,
			EventType: event.Type,
			Outcome:   WebhookFailed,
			Message:   err.Error(),
		}, nil
	}
	if err != nil {
		s.logger.Warn("Rejected Stripe webhook", zap.Error(err))
		s.recorder.RecordWebhook(ctx, "", "rejected")
		return nil, err
	}

	result := &WebhookResult{EventID: event.ID, EventType: event.Type}
	defer func() {
		s.recorder.RecordWebhook(ctx, event.Type, result.Outcome)
	}()

	if !event.Handled {
		result.Outcome = WebhookIgnored
		result.Message = "Event type not handled"
		return result, nil
	}

	key := idempotencyKeyPrefix + event.ID
	fresh, err := s.idempotency.MarkProcessed(ctx, key, s.ttl)
	if err != nil {
		// process anyway; applying a payment status twice is harmless
		s.logger.Warn("Idempotency store unavailable", zap.String("event_id", event.ID), zap.Error(err))
		fresh = true
	}
	if !fresh {
		result.Outcome = WebhookDuplicate
		return result, nil
	}

	o, err := s.apply(ctx, event)
	if err != nil {
		if o == nil && errors.Is(err, shared.ErrNotFound) {
			result.Outcome = WebhookNoOrder
			result.Message = err.Error()
			s.logger.Warn("No order for Stripe event",
				zap.String("event_id", event.ID),
				zap.String("event_type", event.Type),
				zap.String("session_id", event.SessionID),
				zap.String("payment_intent_id", event.PaymentIntentID))
			return result, nil
		}

		if ferr := s.idempotency.Forget(context.WithoutCancel(ctx), key); ferr != nil {
			s.logger.Warn("Failed to clear idempotency mark", zap.String("event_id", event.ID), zap.Error(ferr))
		}
		result.Outcome = WebhookFailed
		result.Message = err.Error()
		s.logger.Error("Failed to process Stripe event",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
			zap.Error(err))
		return result, nil
	}

	result.Outcome = WebhookProcessed
	result.OrderID = o.ID.String()

	entry := security.NewLog(security.EventPaymentWebhook, security.SeverityInfo, nil, map[string]any{
		"event_id":       event.ID,
		"event_type":     event.Type,
		"order_id":       o.ID.String(),
		"payment_status": string(o.PaymentStatus),
	})
	if err := s.securityLogs.Save(ctx, entry); err != nil {
		s.logger.Error("Failed to write webhook security log", zap.String("event_id", event.ID), zap.Error(err))
	}

	s.logger.Info("Processed Stripe event",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
		zap.String("order_id", o.ID.String()),
		zap.String("payment_status", string(o.PaymentStatus)))
	return result, nil
}

func (s *PaymentWebhookService) apply(ctx context.Context, event *payment.WebhookEvent) (*order.Order, error) {
	o, err := s.findOrder(ctx, event)
	if err != nil {
		return nil, err
	}
	if err := o.ApplyPaymentStatus(event.Status, event.PaymentIntentID); err != nil {
		return o, err
	}
	if err := s.orders.UpdatePayment(ctx, o); err != nil {
		return o, fmt.Errorf("failed to update order payment: %w", err)
	}
	return o, nil
}

func (s *PaymentWebhookService) findOrder(ctx context.Context, event *payment.WebhookEvent) (*order.Order, error) {
	if event.SessionID != "" {
		o, err := s.orders.FindByStripeSessionID(ctx, event.SessionID)
		if err == nil || !errors.Is(err, shared.ErrNotFound) {
			return o, err
		}
	}
	if event.PaymentIntentID != "" {
		return s.orders.FindByPaymentIntentID(ctx, event.PaymentIntentID)
	}
	return nil, shared.ErrNotFound
}
