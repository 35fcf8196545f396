// Package verify authenticates inbound webhook payloads before anything
// parses them. Each provider has its own header names and signing scheme;
// the contract is uniform: Verify(headers, rawBody) returns nil only for
// an authentic, fresh payload.
package verify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v81/webhook"
)

// ErrSignatureInvalid covers both a bad signature and a stale timestamp.
var ErrSignatureInvalid = errors.New("webhook signature invalid")

// DefaultTolerance bounds the replay window for declared timestamps.
const DefaultTolerance = 5 * time.Minute

// Verifier validates one provider's webhook authenticity.
type Verifier interface {
	Verify(headers http.Header, rawBody []byte) error
}

// --- M-Pesa ---

// MpesaVerifier checks an HMAC-SHA256 signature over timestamp and raw
// body carried in X-Mpesa-Signature, with the declared timestamp in
// X-Mpesa-Timestamp (unix seconds) inside the tolerance window.
type MpesaVerifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

func NewMpesaVerifier(secret string, tolerance time.Duration) *MpesaVerifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &MpesaVerifier{secret: secret, tolerance: tolerance, now: time.Now}
}

func (v *MpesaVerifier) Verify(headers http.Header, rawBody []byte) error {
	if v.secret == "" {
		return fmt.Errorf("%w: no signing secret configured", ErrSignatureInvalid)
	}

	ts := headers.Get("X-Mpesa-Timestamp")
	sig := headers.Get("X-Mpesa-Signature")
	if ts == "" || sig == "" {
		return fmt.Errorf("%w: missing signature headers", ErrSignatureInvalid)
	}

	declared, err := parseUnixSeconds(ts)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", ErrSignatureInvalid)
	}
	if delta := v.now().Sub(declared); delta > v.tolerance || delta < -v.tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrSignatureInvalid)
	}

	expected := ComputeHMAC(v.secret, ts, rawBody)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return ErrSignatureInvalid
	}
	return nil
}

// ComputeHMAC derives the hex HMAC-SHA256 of "<timestamp>.<body>" under
// the shared secret. The timestamp binding keeps a captured signature from
// being replayed with a fresh header.
func ComputeHMAC(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// --- PayPal ---

// PayPalVerifier checks the transmission signature headers: the signature
// covers webhook id, transmission id, transmission time and a digest of
// the raw body.
type PayPalVerifier struct {
	webhookID string
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

func NewPayPalVerifier(webhookID, secret string, tolerance time.Duration) *PayPalVerifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &PayPalVerifier{webhookID: webhookID, secret: secret, tolerance: tolerance, now: time.Now}
}

func (v *PayPalVerifier) Verify(headers http.Header, rawBody []byte) error {
	if v.secret == "" || v.webhookID == "" {
		return fmt.Errorf("%w: verifier not configured", ErrSignatureInvalid)
	}

	transmissionID := headers.Get("Paypal-Transmission-Id")
	transmissionTime := headers.Get("Paypal-Transmission-Time")
	sig := headers.Get("Paypal-Transmission-Sig")
	if transmissionID == "" || transmissionTime == "" || sig == "" {
		return fmt.Errorf("%w: missing transmission headers", ErrSignatureInvalid)
	}

	declared, err := time.Parse(time.RFC3339, transmissionTime)
	if err != nil {
		return fmt.Errorf("%w: bad transmission time", ErrSignatureInvalid)
	}
	if delta := v.now().Sub(declared); delta > v.tolerance || delta < -v.tolerance {
		return fmt.Errorf("%w: transmission time outside tolerance", ErrSignatureInvalid)
	}

	expected := ComputeTransmissionSig(v.secret, v.webhookID, transmissionID, transmissionTime, rawBody)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return ErrSignatureInvalid
	}
	return nil
}

// ComputeTransmissionSig derives the base64 HMAC-SHA256 over
// "webhookID|transmissionID|transmissionTime|sha256hex(body)".
func ComputeTransmissionSig(secret, webhookID, transmissionID, transmissionTime string, body []byte) string {
	digest := sha256.Sum256(body)
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s|%s|%s|%s", webhookID, transmissionID, transmissionTime, hex.EncodeToString(digest[:]))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// --- Card (Stripe scheme) ---

// CardVerifier validates the Stripe-Signature header with the SDK's
// signed-payload check, which already enforces a freshness tolerance.
type CardVerifier struct {
	secret    string
	tolerance time.Duration
}

func NewCardVerifier(secret string, tolerance time.Duration) *CardVerifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &CardVerifier{secret: secret, tolerance: tolerance}
}

func (v *CardVerifier) Verify(headers http.Header, rawBody []byte) error {
	if v.secret == "" {
		return fmt.Errorf("%w: no signing secret configured", ErrSignatureInvalid)
	}
	if _, err := webhook.ConstructEventWithTolerance(rawBody, headers.Get("Stripe-Signature"), v.secret, v.tolerance); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return nil
}

func parseUnixSeconds(s string) (time.Time, error) {
	var secs int64
	if _, err := fmt.Sscanf(s, "%d", &secs); err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, 0), nil
}
