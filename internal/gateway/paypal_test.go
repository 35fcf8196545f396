package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatPayPalValue(t *testing.T) {
	assert.Equal(t, "50.00", FormatPayPalValue(50))
	assert.Equal(t, "1234.50", FormatPayPalValue(1234.5))
	assert.Equal(t, "0.99", FormatPayPalValue(0.99))
}

func TestMapPayPalOrderStatus(t *testing.T) {
	assert.Equal(t, StatusCompleted, mapPayPalOrderStatus("COMPLETED"))
	assert.Equal(t, StatusCompleted, mapPayPalOrderStatus("completed"))
	assert.Equal(t, StatusCancelled, mapPayPalOrderStatus("VOIDED"))
	assert.Equal(t, StatusPending, mapPayPalOrderStatus("CREATED"))
	assert.Equal(t, StatusPending, mapPayPalOrderStatus("APPROVED"))
	assert.Equal(t, StatusPending, mapPayPalOrderStatus("PAYER_ACTION_REQUIRED"))
	assert.Equal(t, StatusPending, mapPayPalOrderStatus("SOMETHING_NEW"))
}

const paypalCaptureCompletedEvent = `{
  "id": "WH-58D329510W468432D-8HN650336L201105X",
  "event_type": "PAYMENT.CAPTURE.COMPLETED",
  "resource_type": "capture",
  "resource": {
    "id": "42311647XV020574X",
    "status": "COMPLETED",
    "amount": {"currency_code": "USD", "value": "19.99"},
    "supplementary_data": {
      "related_ids": {"order_id": "5O190127TN364715T"}
    }
  }
}`

func TestPayPalProcessWebhook(t *testing.T) {
	g := NewPayPalGateway(PayPalConfig{})

	t.Run("capture completed", func(t *testing.T) {
		result, err := g.ProcessWebhook([]byte(paypalCaptureCompletedEvent))
		require.NoError(t, err)

		assert.Equal(t, "WH-58D329510W468432D-8HN650336L201105X", result.EventID)
		assert.Equal(t, "PAYMENT.CAPTURE.COMPLETED", result.EventType)
		// The capture correlates back to the originating order id; the
		// capture's own id is what refunds must target.
		assert.Equal(t, "5O190127TN364715T", result.ProviderTransactionID)
		assert.Equal(t, "42311647XV020574X", result.ProviderCaptureID)
		assert.Equal(t, StatusCompleted, result.Status)
		assert.Equal(t, 19.99, result.CapturedAmount)
	})

	t.Run("capture denied", func(t *testing.T) {
		result, err := g.ProcessWebhook([]byte(`{
			"id": "WH-1",
			"event_type": "PAYMENT.CAPTURE.DENIED",
			"resource": {"id": "CAP-1", "status": "DENIED"}
		}`))
		require.NoError(t, err)

		assert.Equal(t, StatusFailed, result.Status)
		assert.Equal(t, "CAP-1", result.ProviderTransactionID)
	})

	t.Run("order approved stays pending", func(t *testing.T) {
		result, err := g.ProcessWebhook([]byte(`{
			"id": "WH-2",
			"event_type": "CHECKOUT.ORDER.APPROVED",
			"resource": {"id": "5O190127TN364715T", "status": "APPROVED"}
		}`))
		require.NoError(t, err)

		assert.Equal(t, StatusPending, result.Status)
	})

	t.Run("missing event id", func(t *testing.T) {
		_, err := g.ProcessWebhook([]byte(`{"event_type": "PAYMENT.CAPTURE.COMPLETED"}`))
		assert.Error(t, err)
		assert.Equal(t, KindValidation, KindOf(err))
	})
}

func newPayPalStub(t *testing.T, orderStatus int, orderBody string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client-id", user)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "stub-token",
			"expires_in":   32400,
		})
	})
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer stub-token", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("PayPal-Request-Id"))

		var orderReq paypalOrderRequest
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&orderReq)) {
			assert.Equal(t, "CAPTURE", orderReq.Intent)
			if assert.Len(t, orderReq.PurchaseUnits, 1) {
				assert.Equal(t, "USD", orderReq.PurchaseUnits[0].Amount.CurrencyCode)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(orderStatus)
		w.Write([]byte(orderBody))
	})
	return httptest.NewServer(mux)
}

func TestPayPalInitiate(t *testing.T) {
	t.Run("order created", func(t *testing.T) {
		srv := newPayPalStub(t, http.StatusCreated, `{
			"id": "5O190127TN364715T",
			"status": "CREATED",
			"links": [
				{"href": "https://api.sandbox.paypal.com/v2/checkout/orders/5O190127TN364715T", "rel": "self"},
				{"href": "https://www.sandbox.paypal.com/checkoutnow?token=5O190127TN364715T", "rel": "approve"}
			]
		}`)
		defer srv.Close()

		g := NewPayPalGateway(PayPalConfig{
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			BaseURL:      srv.URL,
		})
		result, err := g.Initiate(context.Background(), &InitiateRequest{
			OrderID:        "ORD-2001",
			Amount:         19.99,
			Currency:       "usd",
			IdempotencyKey: "ORD-2001",
		})
		require.NoError(t, err)

		assert.Equal(t, "5O190127TN364715T", result.ProviderTransactionID)
		assert.True(t, result.RequiresAction)
		assert.Equal(t, "redirect", result.ActionType)
		assert.Contains(t, result.ActionPayload["approval_url"], "checkoutnow")
	})

	t.Run("provider 5xx is transient", func(t *testing.T) {
		srv := newPayPalStub(t, http.StatusBadGateway, `{}`)
		defer srv.Close()

		g := NewPayPalGateway(PayPalConfig{
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			BaseURL:      srv.URL,
		})
		_, err := g.Initiate(context.Background(), &InitiateRequest{
			OrderID: "ORD-2002", Amount: 19.99, Currency: "USD",
		})
		require.Error(t, err)
		assert.True(t, IsTransient(err))
	})

	t.Run("unconfigured gateway", func(t *testing.T) {
		g := NewPayPalGateway(PayPalConfig{})
		_, err := g.Initiate(context.Background(), &InitiateRequest{
			OrderID: "ORD-2003", Amount: 19.99, Currency: "USD",
		})
		require.Error(t, err)
		assert.Equal(t, KindAuthentication, KindOf(err))
	})
}

func TestPayPalHealthCheckUnconfigured(t *testing.T) {
	g := NewPayPalGateway(PayPalConfig{})
	assert.Equal(t, HealthUnconfigured, g.HealthCheck(context.Background()))
}
