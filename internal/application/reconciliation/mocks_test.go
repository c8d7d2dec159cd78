package reconciliation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/elyphant/backend/internal/domain/fulfillment"
	"github.com/elyphant/backend/internal/domain/order"
	"github.com/elyphant/backend/internal/domain/payment"
	"github.com/elyphant/backend/internal/domain/security"
	"github.com/elyphant/backend/internal/domain/shared"
)

// MockOrderRepository is a mock implementation of order.Repository
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderRepository) FindByStripeSessionID(ctx context.Context, sessionID string) (*order.Order, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderRepository) FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*order.Order, error) {
	args := m.Called(ctx, paymentIntentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderRepository) FindActiveWithZincOrderID(ctx context.Context) ([]*order.Order, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*order.Order), args.Error(1)
}

func (m *MockOrderRepository) FindSubmittingWithoutZincID(ctx context.Context) ([]*order.Order, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*order.Order), args.Error(1)
}

func (m *MockOrderRepository) FindPendingFulfillment(ctx context.Context, limit int) ([]*order.Order, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*order.Order), args.Error(1)
}

func (m *MockOrderRepository) Save(ctx context.Context, o *order.Order) error {
	return m.Called(ctx, o).Error(0)
}

func (m *MockOrderRepository) UpdatePayment(ctx context.Context, o *order.Order) error {
	return m.Called(ctx, o).Error(0)
}

func (m *MockOrderRepository) UpdateFulfillment(ctx context.Context, o *order.Order) error {
	return m.Called(ctx, o).Error(0)
}

func (m *MockOrderRepository) CancelDuplicates(ctx context.Context, cancellations []order.Cancellation) ([]uuid.UUID, error) {
	args := m.Called(ctx, cancellations)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

// MockSecurityLogRepository is a mock implementation of security.Repository
type MockSecurityLogRepository struct {
	mock.Mock
}

func (m *MockSecurityLogRepository) Save(ctx context.Context, log *security.Log) error {
	return m.Called(ctx, log).Error(0)
}

func (m *MockSecurityLogRepository) FindRecent(ctx context.Context, eventType string, limit int) ([]*security.Log, error) {
	args := m.Called(ctx, eventType, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*security.Log), args.Error(1)
}

// MockVerifier is a mock implementation of payment.Verifier
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, sessionID, paymentIntentID string) (*payment.Verification, error) {
	args := m.Called(ctx, sessionID, paymentIntentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Verification), args.Error(1)
}

// MockFulfillmentClient is a mock implementation of fulfillment.Client
type MockFulfillmentClient struct {
	mock.Mock
}

func (m *MockFulfillmentClient) GetOrder(ctx context.Context, zincOrderID string) (*fulfillment.OrderStatus, error) {
	args := m.Called(ctx, zincOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fulfillment.OrderStatus), args.Error(1)
}

// MockWebhookParser is a mock implementation of payment.WebhookParser
type MockWebhookParser struct {
	mock.Mock
}

func (m *MockWebhookParser) Parse(payload []byte, signature string) (*payment.WebhookEvent, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.WebhookEvent), args.Error(1)
}

// MockIdempotencyStore is a mock implementation of shared.IdempotencyStore
type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, eventID, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	args := m.Called(ctx, eventID)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) Forget(ctx context.Context, eventID string) error {
	return m.Called(ctx, eventID).Error(0)
}

func (m *MockIdempotencyStore) Close() error {
	return m.Called().Error(0)
}

// MockReportStore is a mock implementation of ReportStore
type MockReportStore struct {
	mock.Mock
}

func (m *MockReportStore) PutJSON(ctx context.Context, key string, v any) error {
	return m.Called(ctx, key, v).Error(0)
}

// fakeLock is a single-holder RunLock that counts releases
type fakeLock struct {
	mu       sync.Mutex
	held     bool
	releases int
}

var _ shared.RunLock = (*fakeLock)(nil)

func (l *fakeLock) Acquire(_ context.Context, name string, _ time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return nil, shared.ErrConflict.WithDetails(map[string]any{"lock": name})
	}
	l.held = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.held = false
		l.releases++
		return nil
	}, nil
}

// recordingRecorder captures metric calls
type recordingRecorder struct {
	mu            sync.Mutex
	cleanupRuns   int
	verifications []int
	checks        []string
	webhooks      []string
}

func (r *recordingRecorder) RecordCleanupRun(context.Context, string, int, int, error) {
	r.mu.Lock()
	r.cleanupRuns++
	r.mu.Unlock()
}

func (r *recordingRecorder) RecordVerification(_ context.Context, _ string, attempts int, _ error) {
	r.mu.Lock()
	r.verifications = append(r.verifications, attempts)
	r.mu.Unlock()
}

func (r *recordingRecorder) RecordFulfillmentCheck(_ context.Context, zincStatus string, _ error) {
	r.mu.Lock()
	r.checks = append(r.checks, zincStatus)
	r.mu.Unlock()
}

func (r *recordingRecorder) RecordWebhook(_ context.Context, _ string, outcome string) {
	r.mu.Lock()
	r.webhooks = append(r.webhooks, outcome)
	r.mu.Unlock()
}
