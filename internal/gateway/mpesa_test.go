package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMpesaTimestamp(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	assert.Equal(t, "20250314092653", MpesaTimestamp(at))
}

func TestMpesaPassword(t *testing.T) {
	got := MpesaPassword("174379", "passkey", "20250314092653")
	want := base64.StdEncoding.EncodeToString([]byte("174379passkey20250314092653"))
	assert.Equal(t, want, got)
}

func TestNormalizeMsisdn(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "254712345678", want: "254712345678"},
		{in: "+254712345678", want: "254712345678"},
		{in: "0712345678", want: "254712345678"},
		{in: "712345678", want: "254712345678"},
		{in: "0112345678", want: "254112345678"},
		{in: "+254 712 345 678", want: "254712345678"},
		{in: "0712-345-678", want: "254712345678"},
		{in: "12345", wantErr: true},
		{in: "", wantErr: true},
		{in: "44712345678", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeMsisdn(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMapMpesaResultCode(t *testing.T) {
	assert.Equal(t, StatusCompleted, mapMpesaResultCode("0"))
	assert.Equal(t, StatusCancelled, mapMpesaResultCode("1032"))
	assert.Equal(t, StatusTimeout, mapMpesaResultCode("1037"))
	assert.Equal(t, StatusFailed, mapMpesaResultCode("1"))
	assert.Equal(t, StatusFailed, mapMpesaResultCode("2001"))
	assert.Equal(t, StatusPending, mapMpesaResultCode("9999"))
	assert.Equal(t, StatusPending, mapMpesaResultCode(""))
}

const mpesaSuccessCallback = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191020363925",
      "ResultCode": 0,
      "ResultDesc": "The service request is processed successfully.",
      "CallbackMetadata": {
        "Item": [
          {"Name": "Amount", "Value": 50.00},
          {"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
          {"Name": "TransactionDate", "Value": 20191219102115},
          {"Name": "PhoneNumber", "Value": 254712345678}
        ]
      }
    }
  }
}`

const mpesaCancelledCallback = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-2",
      "CheckoutRequestID": "ws_CO_191220191020363926",
      "ResultCode": 1032,
      "ResultDesc": "Request cancelled by user"
    }
  }
}`

func TestMpesaProcessWebhook(t *testing.T) {
	g := NewMpesaGateway(MpesaConfig{})

	t.Run("successful payment", func(t *testing.T) {
		result, err := g.ProcessWebhook([]byte(mpesaSuccessCallback))
		require.NoError(t, err)

		assert.Equal(t, "ws_CO_191220191020363925", result.EventID)
		assert.Equal(t, "ws_CO_191220191020363925", result.ProviderTransactionID)
		assert.Equal(t, StatusCompleted, result.Status)
		assert.Equal(t, 50.0, result.CapturedAmount)
		assert.Equal(t, "254712345678", result.PayerInfo)
	})

	t.Run("user cancelled", func(t *testing.T) {
		result, err := g.ProcessWebhook([]byte(mpesaCancelledCallback))
		require.NoError(t, err)

		assert.Equal(t, StatusCancelled, result.Status)
		assert.Zero(t, result.CapturedAmount)
	})

	t.Run("missing checkout request id", func(t *testing.T) {
		_, err := g.ProcessWebhook([]byte(`{"Body":{"stkCallback":{}}}`))
		assert.Error(t, err)
		assert.Equal(t, KindValidation, KindOf(err))
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := g.ProcessWebhook([]byte(`not json`))
		assert.Error(t, err)
		assert.Equal(t, KindValidation, KindOf(err))
	})
}

func newDarajaStub(t *testing.T, stkStatus int, stkBody string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "stub-token",
			"expires_in":   "3599",
		})
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer stub-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(stkStatus)
		w.Write([]byte(stkBody))
	})
	return httptest.NewServer(mux)
}

func testMpesaConfig(baseURL string) MpesaConfig {
	return MpesaConfig{
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		Shortcode:      "174379",
		Passkey:        "passkey",
		CallbackURL:    "https://example.com/webhooks/mpesa",
		BaseURL:        baseURL,
	}
}

func TestMpesaInitiate(t *testing.T) {
	t.Run("accepted push", func(t *testing.T) {
		srv := newDarajaStub(t, http.StatusOK, `{
			"MerchantRequestID": "29115-34620561-1",
			"CheckoutRequestID": "ws_CO_191220191020363925",
			"ResponseCode": "0",
			"ResponseDescription": "Success. Request accepted for processing",
			"CustomerMessage": "Success. Request accepted for processing"
		}`)
		defer srv.Close()

		g := NewMpesaGateway(testMpesaConfig(srv.URL))
		result, err := g.Initiate(context.Background(), &InitiateRequest{
			OrderID:         "ORD-1001",
			Amount:          50,
			Currency:        "KES",
			PayerIdentifier: "0712345678",
			Description:     "Abai Springs order ORD-1001",
			IdempotencyKey:  "ORD-1001",
		})
		require.NoError(t, err)

		assert.Equal(t, "ws_CO_191220191020363925", result.ProviderTransactionID)
		assert.True(t, result.RequiresAction)
		assert.Equal(t, "push_prompt", result.ActionType)
		assert.Equal(t, "29115-34620561-1", result.ActionPayload["merchant_request_id"])
	})

	t.Run("rejected push is not transient", func(t *testing.T) {
		srv := newDarajaStub(t, http.StatusBadRequest, `{
			"errorCode": "400.002.02",
			"errorMessage": "Bad Request - Invalid Amount"
		}`)
		defer srv.Close()

		g := NewMpesaGateway(testMpesaConfig(srv.URL))
		_, err := g.Initiate(context.Background(), &InitiateRequest{
			OrderID:         "ORD-1002",
			Amount:          50,
			PayerIdentifier: "0712345678",
		})
		require.Error(t, err)
		assert.False(t, IsTransient(err))
	})

	t.Run("provider 5xx is transient", func(t *testing.T) {
		srv := newDarajaStub(t, http.StatusServiceUnavailable, `{}`)
		defer srv.Close()

		g := NewMpesaGateway(testMpesaConfig(srv.URL))
		_, err := g.Initiate(context.Background(), &InitiateRequest{
			OrderID:         "ORD-1003",
			Amount:          50,
			PayerIdentifier: "0712345678",
		})
		require.Error(t, err)
		assert.True(t, IsTransient(err))
	})

	t.Run("invalid phone rejected before any provider call", func(t *testing.T) {
		g := NewMpesaGateway(testMpesaConfig("http://127.0.0.1:0"))
		_, err := g.Initiate(context.Background(), &InitiateRequest{
			OrderID:         "ORD-1004",
			Amount:          50,
			PayerIdentifier: "not-a-phone",
		})
		require.Error(t, err)
		assert.Equal(t, KindValidation, KindOf(err))
	})

	t.Run("unconfigured gateway", func(t *testing.T) {
		g := NewMpesaGateway(MpesaConfig{})
		_, err := g.Initiate(context.Background(), &InitiateRequest{
			OrderID:         "ORD-1005",
			Amount:          50,
			PayerIdentifier: "0712345678",
		})
		require.Error(t, err)
		assert.Equal(t, KindAuthentication, KindOf(err))
	})
}

func TestMpesaHealthCheckUnconfigured(t *testing.T) {
	g := NewMpesaGateway(MpesaConfig{})
	assert.Equal(t, HealthUnconfigured, g.HealthCheck(context.Background()))
}
