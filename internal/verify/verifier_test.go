package verify

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var frozenNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func frozenClock() time.Time { return frozenNow }

func TestMpesaVerifier(t *testing.T) {
	const secret = "mpesa-webhook-secret"
	body := []byte(`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1"}}}`)

	signedHeaders := func(at time.Time) http.Header {
		ts := fmt.Sprintf("%d", at.Unix())
		h := http.Header{}
		h.Set("X-Mpesa-Timestamp", ts)
		h.Set("X-Mpesa-Signature", ComputeHMAC(secret, ts, body))
		return h
	}

	newVerifier := func() *MpesaVerifier {
		v := NewMpesaVerifier(secret, 5*time.Minute)
		v.now = frozenClock
		return v
	}

	t.Run("valid signature", func(t *testing.T) {
		require.NoError(t, newVerifier().Verify(signedHeaders(frozenNow), body))
	})

	t.Run("tampered body", func(t *testing.T) {
		err := newVerifier().Verify(signedHeaders(frozenNow), []byte(`{"tampered":true}`))
		assert.ErrorIs(t, err, ErrSignatureInvalid)
	})

	t.Run("wrong secret", func(t *testing.T) {
		v := NewMpesaVerifier("other-secret", 5*time.Minute)
		v.now = frozenClock
		err := v.Verify(signedHeaders(frozenNow), body)
		assert.ErrorIs(t, err, ErrSignatureInvalid)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		err := newVerifier().Verify(signedHeaders(frozenNow.Add(-6*time.Minute)), body)
		assert.ErrorIs(t, err, ErrSignatureInvalid)
	})

	t.Run("future timestamp", func(t *testing.T) {
		err := newVerifier().Verify(signedHeaders(frozenNow.Add(6*time.Minute)), body)
		assert.ErrorIs(t, err, ErrSignatureInvalid)
	})

	t.Run("missing headers", func(t *testing.T) {
		err := newVerifier().Verify(http.Header{}, body)
		assert.ErrorIs(t, err, ErrSignatureInvalid)
	})

	t.Run("no secret configured", func(t *testing.T) {
		v := NewMpesaVerifier("", 5*time.Minute)
		v.now = frozenClock
		err := v.Verify(signedHeaders(frozenNow), body)
		assert.ErrorIs(t, err, ErrSignatureInvalid)
	})
}

func TestPayPalVerifier(t *testing.T) {
	const (
		secret    = "paypal-webhook-secret"
		webhookID = "8PT597110X687430LKGECATA"
		txnID     = "69cd13f0-d67a-11e5-baa3-778b53f4ae55"
	)
	body := []byte(`{"id":"WH-1","event_type":"PAYMENT.CAPTURE.COMPLETED"}`)

	signedHeaders := func(at time.Time) http.Header {
		txnTime := at.Format(time.RFC3339)
		h := http.Header{}
		h.Set("Paypal-Transmission-Id", txnID)
		h.Set("Paypal-Transmission-Time", txnTime)
		h.Set("Paypal-Transmission-Sig", ComputeTransmissionSig(secret, webhookID, txnID, txnTime, body))
		return h
	}

	newVerifier := func() *PayPalVerifier {
		v := NewPayPalVerifier(webhookID, secret, 5*time.Minute)
		v.now = frozenClock
		return v
	}

	t.Run("valid transmission", func(t *testing.T) {
		require.NoError(t, newVerifier().Verify(signedHeaders(frozenNow), body))
	})

	t.Run("tampered body", func(t *testing.T) {
		err := newVerifier().Verify(signedHeaders(frozenNow), []byte(`{"id":"WH-2"}`))
		assert.ErrorIs(t, err, ErrSignatureInvalid)
	})

	t.Run("wrong webhook id", func(t *testing.T) {
		v := NewPayPalVerifier("ANOTHER-WEBHOOK-ID", secret, 5*time.Minute)
		v.now = frozenClock
		err := v.Verify(signedHeaders(frozenNow), body)
		assert.ErrorIs(t, err, ErrSignatureInvalid)
	})

	t.Run("stale transmission time", func(t *testing.T) {
		err := newVerifier().Verify(signedHeaders(frozenNow.Add(-10*time.Minute)), body)
		assert.ErrorIs(t, err, ErrSignatureInvalid)
	})

	t.Run("missing headers", func(t *testing.T) {
		err := newVerifier().Verify(http.Header{}, body)
		assert.ErrorIs(t, err, ErrSignatureInvalid)
	})

	t.Run("not configured", func(t *testing.T) {
		v := NewPayPalVerifier("", "", 5*time.Minute)
		v.now = frozenClock
		err := v.Verify(signedHeaders(frozenNow), body)
		assert.ErrorIs(t, err, ErrSignatureInvalid)
	})
}

func TestCardVerifier(t *testing.T) {
	t.Run("no secret configured", func(t *testing.T) {
		v := NewCardVerifier("", 5*time.Minute)
		err := v.Verify(http.Header{}, []byte(`{}`))
		assert.ErrorIs(t, err, ErrSignatureInvalid)
	})

	t.Run("missing signature header", func(t *testing.T) {
		v := NewCardVerifier("whsec_test", 5*time.Minute)
		err := v.Verify(http.Header{}, []byte(`{"id":"evt_1"}`))
		assert.ErrorIs(t, err, ErrSignatureInvalid)
	})
}
