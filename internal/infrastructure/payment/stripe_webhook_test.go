package payment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/elyphant/backend/internal/domain/order"
	"github.com/elyphant/backend/internal/domain/payment"
)

const testWebhookSecret = "whsec_test_123456789"

func signedPayload(t *testing.T, body string) ([]byte, string) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(body),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Payload, signed.Header
}

func TestNewStripeWebhookParser_RequiresSecret(t *testing.T) {
	_, err := NewStripeWebhookParser("")
	assert.Error(t, err)
}

func TestStripeWebhookParser_Parse(t *testing.T) {
	parser, err := NewStripeWebhookParser(testWebhookSecret)
	require.NoError(t, err)

	tests := []struct {
		name        string
		body        string
		wantType    string
		wantSession string
		wantIntent  string
		wantStatus  order.PaymentStatus
		wantHandled bool
	}{
		{
			name: "checkout session completed",
			body: `{"id":"evt_1","object":"event","type":"checkout.session.completed",
				"data":{"object":{"id":"cs_1","object":"checkout.session","payment_status":"paid","payment_intent":"pi_1"}}}`,
			wantType:    EventCheckoutSessionCompleted,
			wantSession: "cs_1",
			wantIntent:  "pi_1",
			wantStatus:  order.PaymentSucceeded,
			wantHandled: true,
		},
		{
			name: "payment intent succeeded",
			body: `{"id":"evt_2","object":"event","type":"payment_intent.succeeded",
				"data":{"object":{"id":"pi_2","object":"payment_intent","status":"succeeded"}}}`,
			wantType:    EventPaymentIntentSucceeded,
			wantIntent:  "pi_2",
			wantStatus:  order.PaymentSucceeded,
			wantHandled: true,
		},
		{
			name: "payment intent failed",
			body: `{"id":"evt_3","object":"event","type":"payment_intent.payment_failed",
				"data":{"object":{"id":"pi_3","object":"payment_intent","status":"requires_payment_method"}}}`,
			wantType:    EventPaymentIntentFailed,
			wantIntent:  "pi_3",
			wantStatus:  order.PaymentFailed,
			wantHandled: true,
		},
		{
			name: "payment intent canceled",
			body: `{"id":"evt_4","object":"event","type":"payment_intent.canceled",
				"data":{"object":{"id":"pi_4","object":"payment_intent","status":"canceled"}}}`,
			wantType:    EventPaymentIntentCanceled,
			wantIntent:  "pi_4",
			wantStatus:  order.PaymentCanceled,
			wantHandled: true,
		},
		{
			name:     "unrelated event",
			body:     `{"id":"evt_5","object":"event","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`,
			wantType: "customer.created",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, header := signedPayload(t, tt.body)

			ev, err := parser.Parse(payload, header)
			require.NoError(t, err)

			assert.Equal(t, tt.wantType, ev.Type)
			assert.Equal(t, tt.wantSession, ev.SessionID)
			assert.Equal(t, tt.wantIntent, ev.PaymentIntentID)
			assert.Equal(t, tt.wantStatus, ev.Status)
			assert.Equal(t, tt.wantHandled, ev.Handled)
			assert.NotEmpty(t, ev.ID)
		})
	}
}

func TestStripeWebhookParser_RejectsBadSignature(t *testing.T) {
	parser, err := NewStripeWebhookParser(testWebhookSecret)
	require.NoError(t, err)

	payload, _ := signedPayload(t, `{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`)

	_, err = parser.Parse(payload, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)

	other := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    "whsec_other",
		Timestamp: time.Now(),
	})
	_, err = parser.Parse(payload, other.Header)
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)
}

func TestStripeWebhookParser_MalformedObjectKeepsEventIdentity(t *testing.T) {
	parser, err := NewStripeWebhookParser(testWebhookSecret)
	require.NoError(t, err)

	payload, sig := signedPayload(t, `{"id":"evt_bad","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":42}}}`)

	ev, err := parser.Parse(payload, sig)
	require.Error(t, err)
	assert.ErrorIs(t, err, payment.ErrMalformedEvent)
	assert.NotErrorIs(t, err, payment.ErrInvalidSignature)
	require.NotNil(t, ev)
	assert.Equal(t, "evt_bad", ev.ID)
	assert.Equal(t, EventPaymentIntentSucceeded, ev.Type)
}
