package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/form"
	"go.uber.org/zap"

	"github.com/elyphant/backend/internal/domain/order"
	"github.com/elyphant/backend/internal/domain/payment"
)

// mockBackend implements stripe.Backend for testing
type mockBackend struct {
	handler func(method, path string, params stripe.ParamsContainer) ([]byte, error)
	calls   []string
}

func (m *mockBackend) Call(method, path, key string, params stripe.ParamsContainer, v stripe.LastResponseSetter) error {
	m.calls = append(m.calls, method+" "+path)
	data, err := m.handler(method, path, params)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (m *mockBackend) CallStreaming(method, path, key string, params stripe.ParamsContainer, v stripe.StreamingLastResponseSetter) error {
	return nil
}

func (m *mockBackend) CallRaw(method, path, key string, body *form.Values, params *stripe.Params, v stripe.LastResponseSetter) error {
	return nil
}

func (m *mockBackend) CallMultipart(method, path, key, boundary string, body *bytes.Buffer, params *stripe.Params, v stripe.LastResponseSetter) error {
	return nil
}

func (m *mockBackend) SetMaxNetworkRetries(maxNetworkRetries int64) {}

func testConfig() *StripeConfig {
	return &StripeConfig{
		SecretKey:     "sk_test_123456789",
		WebhookSecret: "whsec_test_123456789",
	}
}

func newTestGateway(t *testing.T, handler func(method, path string, params stripe.ParamsContainer) ([]byte, error)) (*StripeGateway, *mockBackend) {
	t.Helper()
	mock := &mockBackend{handler: handler}
	gw, err := NewStripeGateway(testConfig(), zap.NewNop(), WithBackend(mock))
	require.NoError(t, err)
	return gw, mock
}

func TestStripeConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     StripeConfig
		wantErr string
	}{
		{name: "valid secret key", cfg: StripeConfig{SecretKey: "sk_test_abc"}},
		{name: "valid restricted key", cfg: StripeConfig{SecretKey: "rk_live_abc"}},
		{name: "missing key", cfg: StripeConfig{}, wantErr: "secret key is required"},
		{name: "publishable key", cfg: StripeConfig{SecretKey: "pk_test_abc"}, wantErr: "must start with sk_ or rk_"},
		{name: "negative retries", cfg: StripeConfig{SecretKey: "sk_test_abc", MaxNetworkRetries: -1}, wantErr: "cannot be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStripeConfig_IsLiveMode(t *testing.T) {
	assert.True(t, (&StripeConfig{SecretKey: "sk_live_1"}).IsLiveMode())
	assert.False(t, (&StripeConfig{SecretKey: "sk_test_1"}).IsLiveMode())
}

func TestNewStripeGateway_InvalidConfig(t *testing.T) {
	gw, err := NewStripeGateway(&StripeConfig{}, nil)
	assert.Error(t, err)
	assert.Nil(t, gw)
}

func TestStripeGateway_VerifySession_UsesExpandedIntentStatus(t *testing.T) {
	gw, mock := newTestGateway(t, func(method, path string, params stripe.ParamsContainer) ([]byte, error) {
		return []byte(`{
			"id": "cs_test_1",
			"object": "checkout.session",
			"payment_status": "unpaid",
			"amount_total": 4599,
			"currency": "usd",
			"payment_intent": {"id": "pi_test_1", "object": "payment_intent", "status": "processing"}
		}`), nil
	})

	v, err := gw.Verify(context.Background(), "cs_test_1", "")
	require.NoError(t, err)

	assert.Equal(t, []string{"GET /v1/checkout/sessions/cs_test_1"}, mock.calls)
	assert.Equal(t, "cs_test_1", v.SessionID)
	assert.Equal(t, "pi_test_1", v.PaymentIntentID)
	assert.Equal(t, order.PaymentProcessing, v.Status)
	assert.Equal(t, "processing", v.RawStatus)
	assert.True(t, decimal.RequireFromString("45.99").Equal(v.AmountTotal))
	assert.Equal(t, "usd", v.Currency)
}

func TestStripeGateway_VerifySession_FallsBackToPaymentStatus(t *testing.T) {
	tests := []struct {
		name          string
		paymentStatus string
		want          order.PaymentStatus
	}{
		{name: "paid", paymentStatus: "paid", want: order.PaymentSucceeded},
		{name: "unpaid", paymentStatus: "unpaid", want: order.PaymentPending},
		{name: "no payment required", paymentStatus: "no_payment_required", want: order.PaymentSucceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw, _ := newTestGateway(t, func(method, path string, params stripe.ParamsContainer) ([]byte, error) {
				return []byte(`{"id":"cs_1","object":"checkout.session","payment_status":"` + tt.paymentStatus + `"}`), nil
			})

			v, err := gw.Verify(context.Background(), "cs_1", "pi_given")
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Status)
			assert.Equal(t, "pi_given", v.PaymentIntentID)
		})
	}
}

func TestStripeGateway_VerifyPaymentIntent(t *testing.T) {
	gw, mock := newTestGateway(t, func(method, path string, params stripe.ParamsContainer) ([]byte, error) {
		return []byte(`{"id":"pi_9","object":"payment_intent","status":"requires_payment_method","amount":1000,"currency":"usd"}`), nil
	})

	v, err := gw.Verify(context.Background(), "", "pi_9")
	require.NoError(t, err)

	assert.Equal(t, []string{"GET /v1/payment_intents/pi_9"}, mock.calls)
	assert.Equal(t, order.PaymentRequiresAction, v.Status)
	assert.Equal(t, "requires_payment_method", v.RawStatus)
	assert.True(t, decimal.NewFromInt(10).Equal(v.AmountTotal))
}

func TestStripeGateway_Verify_NoIdentifiers(t *testing.T) {
	gw, mock := newTestGateway(t, func(method, path string, params stripe.ParamsContainer) ([]byte, error) {
		t.Fatal("backend must not be called")
		return nil, nil
	})

	_, err := gw.Verify(context.Background(), "", "")
	assert.ErrorIs(t, err, payment.ErrGatewayRejected)
	assert.Empty(t, mock.calls)
}

func TestStripeGateway_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{name: "server error", err: &stripe.Error{HTTPStatusCode: 500, Type: stripe.ErrorTypeAPI}, transient: true},
		{name: "bad gateway", err: &stripe.Error{HTTPStatusCode: 502, Type: stripe.ErrorTypeAPI}, transient: true},
		{name: "rate limited", err: &stripe.Error{HTTPStatusCode: 429, Code: stripe.ErrorCodeRateLimit}, transient: true},
		{name: "not found", err: &stripe.Error{HTTPStatusCode: 404, Code: stripe.ErrorCodeResourceMissing}, transient: false},
		{name: "bad request", err: &stripe.Error{HTTPStatusCode: 400, Type: stripe.ErrorTypeInvalidRequest}, transient: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw, _ := newTestGateway(t, func(method, path string, params stripe.ParamsContainer) ([]byte, error) {
				return nil, tt.err
			})

			_, err := gw.Verify(context.Background(), "cs_x", "")
			require.Error(t, err)
			assert.Equal(t, tt.transient, payment.IsTransient(err))
			if !tt.transient {
				assert.ErrorIs(t, err, payment.ErrGatewayRejected)
			}
			assert.Contains(t, err.Error(), "retrieve checkout session")
		})
	}
}

func TestStripeGateway_NetworkFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(url),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	gw, err := NewStripeGateway(testConfig(), zap.NewNop(), WithBackend(backend))
	require.NoError(t, err)

	_, err = gw.Verify(context.Background(), "", "pi_1")
	require.Error(t, err)
	assert.True(t, payment.IsTransient(err))
}

func TestStripeGateway_HTTPServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"try later"}}`))
	}))
	defer server.Close()

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(server.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	gw, err := NewStripeGateway(testConfig(), zap.NewNop(), WithBackend(backend))
	require.NoError(t, err)

	_, err = gw.Verify(context.Background(), "cs_1", "")
	require.Error(t, err)
	assert.True(t, payment.IsTransient(err))
}

func TestStripeGateway_CancelledContextIsNotTransient(t *testing.T) {
	gw, _ := newTestGateway(t, func(method, path string, params stripe.ParamsContainer) ([]byte, error) {
		return nil, context.Canceled
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gw.Verify(ctx, "cs_1", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, payment.IsTransient(err))
}
