package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/elyphant/backend/internal/application/reconciliation"
	"github.com/elyphant/backend/internal/domain/order"
	"github.com/elyphant/backend/internal/domain/payment"
	"github.com/elyphant/backend/internal/domain/shared"
	"github.com/elyphant/backend/internal/infrastructure/auth"
	"github.com/elyphant/backend/internal/interfaces/http/dto"
)

type MockCleanupRunner struct {
	mock.Mock
}

func (m *MockCleanupRunner) Run(ctx context.Context, req reconciliation.CleanupRequest) (*reconciliation.CleanupReport, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.CleanupReport), args.Error(1)
}

type MockPaymentVerifier struct {
	mock.Mock
}

func (m *MockPaymentVerifier) VerifyPayment(ctx context.Context, req reconciliation.VerifyRequest) (*reconciliation.VerifyResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.VerifyResult), args.Error(1)
}

func (m *MockPaymentVerifier) VerifyWithRetry(ctx context.Context, req reconciliation.VerifyRequest) (*reconciliation.VerifyResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.VerifyResult), args.Error(1)
}

type MockOrderStatusChecker struct {
	mock.Mock
}

func (m *MockOrderStatusChecker) CheckOrderStatus(ctx context.Context, orderID uuid.UUID, caller *reconciliation.Caller) (*reconciliation.StatusResult, error) {
	args := m.Called(ctx, orderID, caller)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.StatusResult), args.Error(1)
}

type functionsFixture struct {
	cleanup  *MockCleanupRunner
	payments *MockPaymentVerifier
	statuses *MockOrderStatusChecker
	handler  *FunctionsHandler
}

func newFunctionsFixture() *functionsFixture {
	f := &functionsFixture{
		cleanup:  new(MockCleanupRunner),
		payments: new(MockPaymentVerifier),
		statuses: new(MockOrderStatusChecker),
	}
	f.handler = NewFunctionsHandler(f.cleanup, f.payments, f.statuses)
	return f
}

func (f *functionsFixture) router(p *auth.Principal) http.Handler {
	r := newRouter(p)
	r.POST("/functions/v1/order-duplicate-cleanup", f.handler.RunCleanup)
	r.POST("/functions/v1/verify-payment", f.handler.VerifyPayment)
	r.POST("/functions/v1/check-order-status", f.handler.CheckOrderStatus)
	return r
}

var admin = &auth.Principal{UserID: uuid.New(), Email: "ops@elyphant.com", IsAdmin: true}

func TestFunctionsHandler_RunCleanup(t *testing.T) {
	f := newFunctionsFixture()
	report := &reconciliation.CleanupReport{
		RunID:           uuid.New(),
		Mode:            reconciliation.ModeCleanup,
		DuplicateGroups: 1,
		Cancelled:       2,
	}
	f.cleanup.On("Run", mock.Anything, mock.MatchedBy(func(req reconciliation.CleanupRequest) bool {
		return req.Mode == reconciliation.ModeCleanup && req.CancelDuplicates &&
			req.Caller != nil && req.Caller.UserID == admin.UserID && req.Caller.IsAdmin
	})).Return(report, nil).Once()

	w := doJSON(f.router(admin), http.MethodPost, "/functions/v1/order-duplicate-cleanup",
		map[string]any{"mode": "cleanup", "cancelDuplicates": true})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	env := decode(t, w)
	assert.True(t, env.Success)
	var got reconciliation.CleanupReport
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, report.RunID, got.RunID)
	assert.Equal(t, 2, got.Cancelled)
	f.cleanup.AssertExpectations(t)
}

func TestFunctionsHandler_RunCleanupValidation(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"missing mode", map[string]any{"cancelDuplicates": true}},
		{"unknown mode", map[string]any{"mode": "purge"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFunctionsFixture()

			w := doJSON(f.router(admin), http.MethodPost, "/functions/v1/order-duplicate-cleanup", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			env := decode(t, w)
			assert.Equal(t, dto.ErrCodeValidation, env.Code)
			assert.NotEmpty(t, env.Details["fields"])
			f.cleanup.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
		})
	}
}

func TestFunctionsHandler_RunCleanupAlreadyRunning(t *testing.T) {
	f := newFunctionsFixture()
	f.cleanup.On("Run", mock.Anything, mock.Anything).Return(nil, shared.ErrConflict).Once()

	w := doJSON(f.router(admin), http.MethodPost, "/functions/v1/order-duplicate-cleanup",
		map[string]any{"mode": "report"})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", decode(t, w).Code)
}

func TestFunctionsHandler_VerifyPayment(t *testing.T) {
	user := &auth.Principal{UserID: uuid.New()}
	result := &reconciliation.VerifyResult{
		OrderID:       uuid.New(),
		OrderStatus:   order.StatusProcessing,
		PaymentStatus: order.PaymentSucceeded,
		StripeStatus:  "complete",
		AmountTotal:   decimal.RequireFromString("49.99"),
		Attempts:      1,
	}

	t.Run("single attempt", func(t *testing.T) {
		f := newFunctionsFixture()
		f.payments.On("VerifyPayment", mock.Anything, mock.MatchedBy(func(req reconciliation.VerifyRequest) bool {
			return req.SessionID == "cs_test_1" && req.Caller.UserID == user.UserID && !req.Caller.IsAdmin
		})).Return(result, nil).Once()

		w := doJSON(f.router(user), http.MethodPost, "/functions/v1/verify-payment",
			map[string]any{"sessionId": "cs_test_1"})

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		f.payments.AssertExpectations(t)
		f.payments.AssertNotCalled(t, "VerifyWithRetry", mock.Anything, mock.Anything)
	})

	t.Run("retry flag selects retrying verification", func(t *testing.T) {
		f := newFunctionsFixture()
		f.payments.On("VerifyWithRetry", mock.Anything, mock.MatchedBy(func(req reconciliation.VerifyRequest) bool {
			return req.PaymentIntentID == "pi_test_1"
		})).Return(result, nil).Once()

		w := doJSON(f.router(user), http.MethodPost, "/functions/v1/verify-payment",
			map[string]any{"paymentIntentId": "pi_test_1", "retry": true})

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		f.payments.AssertExpectations(t)
	})

	t.Run("requires an identifier", func(t *testing.T) {
		f := newFunctionsFixture()

		w := doJSON(f.router(user), http.MethodPost, "/functions/v1/verify-payment", map[string]any{"retry": true})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeValidation, decode(t, w).Code)
	})

	t.Run("gateway failure is 502", func(t *testing.T) {
		f := newFunctionsFixture()
		f.payments.On("VerifyPayment", mock.Anything, mock.Anything).Return(nil, payment.ErrGatewayUnavailable).Once()

		w := doJSON(f.router(user), http.MethodPost, "/functions/v1/verify-payment",
			map[string]any{"sessionId": "cs_test_1"})

		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, dto.ErrCodeUpstream, decode(t, w).Code)
	})
}

func TestFunctionsHandler_CheckOrderStatus(t *testing.T) {
	user := &auth.Principal{UserID: uuid.New()}
	orderID := uuid.New()
	result := &reconciliation.StatusResult{OrderID: orderID, ZincOrderID: "zn_1", ZincStatus: "shipped"}

	t.Run("order id in query", func(t *testing.T) {
		f := newFunctionsFixture()
		f.statuses.On("CheckOrderStatus", mock.Anything, orderID, mock.AnythingOfType("*reconciliation.Caller")).
			Return(result, nil).Once()

		w := doJSON(f.router(user), http.MethodPost, "/functions/v1/check-order-status?orderId="+orderID.String(), nil)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		f.statuses.AssertExpectations(t)
	})

	t.Run("order id in body", func(t *testing.T) {
		f := newFunctionsFixture()
		f.statuses.On("CheckOrderStatus", mock.Anything, orderID, mock.Anything).Return(result, nil).Once()

		w := doJSON(f.router(user), http.MethodPost, "/functions/v1/check-order-status",
			map[string]any{"orderId": orderID.String()})

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		f.statuses.AssertExpectations(t)
	})

	t.Run("missing order id", func(t *testing.T) {
		f := newFunctionsFixture()

		w := doJSON(f.router(user), http.MethodPost, "/functions/v1/check-order-status", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeValidation, decode(t, w).Code)
	})

	t.Run("malformed order id", func(t *testing.T) {
		f := newFunctionsFixture()

		w := doJSON(f.router(user), http.MethodPost, "/functions/v1/check-order-status?orderId=abc", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("no zinc order id is a conflict", func(t *testing.T) {
		f := newFunctionsFixture()
		f.statuses.On("CheckOrderStatus", mock.Anything, orderID, mock.Anything).
			Return(nil, reconciliation.ErrNoFulfillmentID).Once()

		w := doJSON(f.router(user), http.MethodPost, "/functions/v1/check-order-status?orderId="+orderID.String(), nil)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "NO_FULFILLMENT_ID", decode(t, w).Code)
	})
}
