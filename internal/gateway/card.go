package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/paymentintent"
	"github.com/stripe/stripe-go/v81/refund"
)

// CardConfig carries the Stripe credentials for the card-intent flow.
type CardConfig struct {
	SecretKey     string
	WebhookSecret string
}

// CardGateway implements the Adapter interface over the Stripe SDK. A
// PaymentIntent is created server-side and confirmed client-side with the
// client secret; confirmation lands on the webhook endpoint.
type CardGateway struct {
	cfg CardConfig
}

func NewCardGateway(cfg CardConfig) *CardGateway {
	stripe.Key = cfg.SecretKey
	return &CardGateway{cfg: cfg}
}

func (g *CardGateway) Name() string {
	return NameCard
}

func (g *CardGateway) configured() bool {
	return g.cfg.SecretKey != ""
}

func (g *CardGateway) Initiate(ctx context.Context, req *InitiateRequest) (*InitiateResult, error) {
	if !g.configured() {
		return nil, NewError(NameCard, KindAuthentication, "gateway not configured")
	}
	if req.Amount <= 0 {
		return nil, NewError(NameCard, KindValidation, "amount must be positive")
	}

	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(int64(req.Amount * 100)),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Description: stripe.String(req.Description),
		Metadata: map[string]string{
			"order_id": req.OrderID,
		},
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	if req.PayerIdentifier != "" {
		params.ReceiptEmail = stripe.String(req.PayerIdentifier)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, classifyStripeErr(err, "intent creation failed")
	}

	// The client secret lets the customer confirm client-side. It must
	// never be logged.
	return &InitiateResult{
		ProviderTransactionID: pi.ID,
		RequiresAction:        true,
		ActionType:            "client_secret",
		ActionPayload: map[string]string{
			"client_secret": pi.ClientSecret,
		},
	}, nil
}

func (g *CardGateway) CheckStatus(ctx context.Context, providerTxnID string) (*StatusResult, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := paymentintent.Get(providerTxnID, params)
	if err != nil {
		return nil, classifyStripeErr(err, "intent lookup failed")
	}

	return &StatusResult{
		Status: mapCardIntentStatus(pi.Status),
		Raw:    string(pi.Status),
	}, nil
}

// mapCardIntentStatus is a total mapping from PaymentIntent statuses to
// the shared taxonomy. Anything unrecognized stays pending.
func mapCardIntentStatus(status stripe.PaymentIntentStatus) Status {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusCompleted
	case stripe.PaymentIntentStatusCanceled:
		return StatusCancelled
	case stripe.PaymentIntentStatusProcessing,
		stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresPaymentMethod,
		stripe.PaymentIntentStatusRequiresCapture:
		return StatusPending
	default:
		return StatusPending
	}
}

func (g *CardGateway) ProcessWebhook(rawBody []byte) (*WebhookResult, error) {
	var event stripe.Event
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, WrapError(NameCard, KindValidation, "event parse error", err)
	}
	if event.ID == "" {
		return nil, NewError(NameCard, KindValidation, "event missing id")
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, WrapError(NameCard, KindValidation, "intent parse error", err)
	}

	var status Status
	switch event.Type {
	case "payment_intent.succeeded":
		status = StatusCompleted
	case "payment_intent.payment_failed":
		status = StatusFailed
	case "payment_intent.canceled":
		status = StatusCancelled
	default:
		status = StatusPending
	}

	return &WebhookResult{
		EventID:               event.ID,
		EventType:             string(event.Type),
		ProviderTransactionID: pi.ID,
		Status:                status,
		CapturedAmount:        float64(pi.AmountReceived) / 100,
	}, nil
}

func (g *CardGateway) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.OriginalTransactionID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	if req.Amount > 0 {
		params.Amount = stripe.Int64(int64(req.Amount * 100))
	}

	r, err := refund.New(params)
	if err != nil {
		return nil, classifyStripeErr(err, "refund failed")
	}

	status := StatusPending
	if r.Status == stripe.RefundStatusSucceeded {
		status = StatusCompleted
	}

	return &RefundResult{
		RefundTransactionID: r.ID,
		Status:              status,
	}, nil
}

func (g *CardGateway) HealthCheck(ctx context.Context) Health {
	if !g.configured() {
		return HealthUnconfigured
	}
	return HealthHealthy
}

func classifyStripeErr(err error, msg string) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.HTTPStatusCode >= http.StatusInternalServerError:
			return WrapError(NameCard, KindUnavailable, msg, err)
		case stripeErr.HTTPStatusCode == http.StatusUnauthorized:
			return WrapError(NameCard, KindAuthentication, msg, err)
		case stripeErr.Type == stripe.ErrorTypeCard:
			if stripeErr.DeclineCode == stripe.DeclineCodeInsufficientFunds {
				return WrapError(NameCard, KindInsufficientFunds, msg, err)
			}
			return WrapError(NameCard, KindValidation, msg, err)
		case stripeErr.Type == stripe.ErrorTypeInvalidRequest:
			return WrapError(NameCard, KindValidation, msg, err)
		}
	}
	return WrapError(NameCard, KindUnavailable, msg, err)
}
