package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/elyphant/backend/internal/application/reconciliation"
)

// Outcome attribute values
const (
	outcomeSuccess = "success"
	outcomeError   = "error"
)

// ReconciliationMetrics records cleanup, verification, status check and webhook activity
type ReconciliationMetrics struct {
	cleanupRuns       *Counter
	duplicateGroups   *Counter
	cancelledOrders   *Counter
	verifications     *Counter
	verifyAttempts    *Histogram
	fulfillmentChecks *Counter
	webhookEvents     *Counter
}

var _ reconciliation.Recorder = (*ReconciliationMetrics)(nil)

// NewReconciliationMetrics registers the instruments on meter
func NewReconciliationMetrics(meter metric.Meter) (*ReconciliationMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	m := &ReconciliationMetrics{}
	var err error

	if m.cleanupRuns, err = NewCounter(meter, "elyphant_cleanup_runs_total", "Duplicate cleanup runs", "{runs}"); err != nil {
		return nil, err
	}
	if m.duplicateGroups, err = NewCounter(meter, "elyphant_cleanup_duplicate_groups_total", "Duplicate order groups found by cleanup runs", "{groups}"); err != nil {
		return nil, err
	}
	if m.cancelledOrders, err = NewCounter(meter, "elyphant_cleanup_cancelled_orders_total", "Orders cancelled as duplicates", "{orders}"); err != nil {
		return nil, err
	}
	if m.verifications, err = NewCounter(meter, "elyphant_payment_verifications_total", "Payment verifications by resulting status", "{verifications}"); err != nil {
		return nil, err
	}
	if m.verifyAttempts, err = NewHistogram(meter, "elyphant_payment_verification_attempts", "Gateway calls per payment verification", "{attempts}", 1, 2, 3, 5); err != nil {
		return nil, err
	}
	if m.fulfillmentChecks, err = NewCounter(meter, "elyphant_fulfillment_checks_total", "Zinc status checks by returned status", "{checks}"); err != nil {
		return nil, err
	}
	if m.webhookEvents, err = NewCounter(meter, "elyphant_webhook_events_total", "Stripe webhook events by type and outcome", "{events}"); err != nil {
		return nil, err
	}

	return m, nil
}

func outcome(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String("outcome", outcomeError)
	}
	return attribute.String("outcome", outcomeSuccess)
}

// RecordCleanupRun implements reconciliation.Recorder
func (m *ReconciliationMetrics) RecordCleanupRun(ctx context.Context, mode string, groups, cancelled int, err error) {
	modeAttr := attribute.String("mode", mode)
	m.cleanupRuns.Inc(ctx, modeAttr, outcome(err))
	if err != nil {
		return
	}
	m.duplicateGroups.Add(ctx, int64(groups), modeAttr)
	m.cancelledOrders.Add(ctx, int64(cancelled))
}

// RecordVerification implements reconciliation.Recorder
func (m *ReconciliationMetrics) RecordVerification(ctx context.Context, status string, attempts int, err error) {
	if status == "" {
		status = "unknown"
	}
	m.verifications.Inc(ctx, attribute.String("status", status), outcome(err))
	if attempts > 0 {
		m.verifyAttempts.Record(ctx, float64(attempts), outcome(err))
	}
}

// RecordFulfillmentCheck implements reconciliation.Recorder
func (m *ReconciliationMetrics) RecordFulfillmentCheck(ctx context.Context, zincStatus string, err error) {
	if zincStatus == "" {
		zincStatus = "unknown"
	}
	m.fulfillmentChecks.Inc(ctx, attribute.String("zinc_status", zincStatus), outcome(err))
}

// RecordWebhook implements reconciliation.Recorder
func (m *ReconciliationMetrics) RecordWebhook(ctx context.Context, eventType, result string) {
	m.webhookEvents.Inc(ctx, attribute.String("event_type", eventType), attribute.String("result", result))
}
