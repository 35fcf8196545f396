package gateway

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stripe/stripe-go/v81"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapCardIntentStatus(t *testing.T) {
	assert.Equal(t, StatusCompleted, mapCardIntentStatus(stripe.PaymentIntentStatusSucceeded))
	assert.Equal(t, StatusCancelled, mapCardIntentStatus(stripe.PaymentIntentStatusCanceled))
	assert.Equal(t, StatusPending, mapCardIntentStatus(stripe.PaymentIntentStatusProcessing))
	assert.Equal(t, StatusPending, mapCardIntentStatus(stripe.PaymentIntentStatusRequiresAction))
	assert.Equal(t, StatusPending, mapCardIntentStatus(stripe.PaymentIntentStatusRequiresPaymentMethod))
	assert.Equal(t, StatusPending, mapCardIntentStatus(stripe.PaymentIntentStatus("whatever")))
}

const cardSucceededEvent = `{
  "id": "evt_1NG8Du2eZvKYlo2CUI79vXWy",
  "type": "payment_intent.succeeded",
  "data": {
    "object": {
      "id": "pi_3MtwBwLkdIwHu7ix28a3tqPa",
      "object": "payment_intent",
      "amount": 5000,
      "amount_received": 5000,
      "currency": "kes",
      "status": "succeeded"
    }
  }
}`

func TestCardProcessWebhook(t *testing.T) {
	g := NewCardGateway(CardConfig{SecretKey: "sk_test_x"})

	t.Run("intent succeeded", func(t *testing.T) {
		result, err := g.ProcessWebhook([]byte(cardSucceededEvent))
		require.NoError(t, err)

		assert.Equal(t, "evt_1NG8Du2eZvKYlo2CUI79vXWy", result.EventID)
		assert.Equal(t, "payment_intent.succeeded", result.EventType)
		assert.Equal(t, "pi_3MtwBwLkdIwHu7ix28a3tqPa", result.ProviderTransactionID)
		assert.Equal(t, StatusCompleted, result.Status)
		assert.Equal(t, 50.0, result.CapturedAmount)
	})

	t.Run("intent failed", func(t *testing.T) {
		result, err := g.ProcessWebhook([]byte(`{
			"id": "evt_2",
			"type": "payment_intent.payment_failed",
			"data": {"object": {"id": "pi_2", "object": "payment_intent", "status": "requires_payment_method"}}
		}`))
		require.NoError(t, err)

		assert.Equal(t, StatusFailed, result.Status)
	})

	t.Run("intent canceled", func(t *testing.T) {
		result, err := g.ProcessWebhook([]byte(`{
			"id": "evt_3",
			"type": "payment_intent.canceled",
			"data": {"object": {"id": "pi_3", "object": "payment_intent", "status": "canceled"}}
		}`))
		require.NoError(t, err)

		assert.Equal(t, StatusCancelled, result.Status)
	})

	t.Run("unrelated event type stays pending", func(t *testing.T) {
		result, err := g.ProcessWebhook([]byte(`{
			"id": "evt_4",
			"type": "payment_intent.created",
			"data": {"object": {"id": "pi_4", "object": "payment_intent", "status": "requires_payment_method"}}
		}`))
		require.NoError(t, err)

		assert.Equal(t, StatusPending, result.Status)
	})

	t.Run("missing event id", func(t *testing.T) {
		_, err := g.ProcessWebhook([]byte(`{"type": "payment_intent.succeeded"}`))
		assert.Error(t, err)
		assert.Equal(t, KindValidation, KindOf(err))
	})
}

func TestClassifyStripeErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{
			name: "provider 5xx is unavailable",
			err:  &stripe.Error{HTTPStatusCode: http.StatusInternalServerError},
			want: KindUnavailable,
		},
		{
			name: "401 is a credential failure",
			err:  &stripe.Error{HTTPStatusCode: http.StatusUnauthorized, Type: stripe.ErrorTypeInvalidRequest},
			want: KindAuthentication,
		},
		{
			name: "declined for insufficient funds",
			err: &stripe.Error{
				HTTPStatusCode: http.StatusPaymentRequired,
				Type:           stripe.ErrorTypeCard,
				DeclineCode:    stripe.DeclineCodeInsufficientFunds,
			},
			want: KindInsufficientFunds,
		},
		{
			name: "other card decline is validation",
			err:  &stripe.Error{HTTPStatusCode: http.StatusPaymentRequired, Type: stripe.ErrorTypeCard},
			want: KindValidation,
		},
		{
			name: "invalid request is validation",
			err:  &stripe.Error{HTTPStatusCode: http.StatusBadRequest, Type: stripe.ErrorTypeInvalidRequest},
			want: KindValidation,
		},
		{
			name: "raw network error counts as an outage",
			err:  errors.New("connection reset"),
			want: KindUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyStripeErr(tt.err, "charge")
			assert.Equal(t, tt.want, KindOf(got))
		})
	}
}

func TestCardHealthCheck(t *testing.T) {
	assert.Equal(t, HealthUnconfigured, NewCardGateway(CardConfig{}).HealthCheck(context.Background()))
	assert.Equal(t, HealthHealthy, NewCardGateway(CardConfig{SecretKey: "sk_test_x"}).HealthCheck(context.Background()))
}
