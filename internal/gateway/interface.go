package gateway

import "context"

// Gateway identifiers.
const (
	NameMpesa  = "mpesa"
	NamePayPal = "paypal"
	NameCard   = "card"
)

// InitiateRequest is the gateway-agnostic payment initiation request.
// IdempotencyKey is caller-supplied; adapters forward it to the provider
// and never generate a competing one.
type InitiateRequest struct {
	OrderID         string
	Amount          float64
	Currency        string
	PayerIdentifier string // phone for push payments, email for wallets
	Description     string
	IdempotencyKey  string
}

// InitiateResult is what a provider hands back when a flow starts.
type InitiateResult struct {
	ProviderTransactionID string
	RequiresAction        bool
	ActionType            string // "push_prompt", "redirect" or "client_secret"
	ActionPayload         map[string]string
}

// StatusResult is a point-in-time provider status, already mapped onto the
// shared taxonomy. Raw keeps the provider's own code for the audit trail.
// ProviderCaptureID is set when the provider issues a separate capture
// reference that refunds must target.
type StatusResult struct {
	Status            Status
	Raw               string
	ProviderCaptureID string
}

// WebhookResult is the parsed form of an asynchronous provider
// confirmation. Parsing is side-effect-free; the orchestrator owns
// persistence.
type WebhookResult struct {
	EventID               string
	EventType             string
	ProviderTransactionID string
	ProviderCaptureID     string
	Status                Status
	CapturedAmount        float64
	PayerInfo             string
}

// RefundRequest asks a provider to return captured funds.
type RefundRequest struct {
	OriginalTransactionID string
	Amount                float64
	Currency              string
	Reason                string
}

// RefundResult is the provider's answer to a refund request.
type RefundResult struct {
	RefundTransactionID string
	Status              Status
}

// Adapter is the uniform capability surface implemented per provider.
type Adapter interface {
	// Name returns the gateway identifier.
	Name() string

	// Initiate starts a provider-specific payment flow.
	Initiate(ctx context.Context, req *InitiateRequest) (*InitiateResult, error)

	// CheckStatus polls the provider for the current transaction status.
	CheckStatus(ctx context.Context, providerTxnID string) (*StatusResult, error)

	// ProcessWebhook parses an inbound confirmation payload. The payload
	// must already be verified; adapters do not check signatures.
	ProcessWebhook(rawBody []byte) (*WebhookResult, error)

	// Refund requests a (partial) refund of a captured transaction.
	Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error)

	// HealthCheck probes provider availability. It never returns an error.
	HealthCheck(ctx context.Context) Health
}
