package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"abaisprings/internal/pkg/httpclient"
)

const (
	paypalSandboxURL    = "https://api-m.sandbox.paypal.com"
	paypalProductionURL = "https://api-m.paypal.com"
)

// PayPalConfig carries the REST API credentials for the redirect/capture
// wallet flow.
type PayPalConfig struct {
	ClientID     string
	ClientSecret string
	ReturnURL    string
	CancelURL    string
	Sandbox      bool
	BaseURL      string // overrides the sandbox/production switch when set
}

// PayPalGateway implements the Adapter interface for the PayPal Orders
// API: an order is created, the payer approves it on PayPal's site, and a
// separate capture step finalizes funds movement. PayPal's own order id is
// the correlation key throughout.
type PayPalGateway struct {
	cfg        PayPalConfig
	authClient *httpclient.Client
	apiClient  *httpclient.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewPayPalGateway(cfg PayPalConfig) *PayPalGateway {
	return &PayPalGateway{
		cfg:        cfg,
		authClient: httpclient.New().WithTimeout(30 * time.Second).WithBasicAuth(cfg.ClientID, cfg.ClientSecret),
		apiClient:  httpclient.New().WithTimeout(30 * time.Second),
	}
}

func (p *PayPalGateway) Name() string {
	return NamePayPal
}

func (p *PayPalGateway) baseURL() string {
	if p.cfg.BaseURL != "" {
		return p.cfg.BaseURL
	}
	if p.cfg.Sandbox {
		return paypalSandboxURL
	}
	return paypalProductionURL
}

func (p *PayPalGateway) configured() bool {
	return p.cfg.ClientID != "" && p.cfg.ClientSecret != ""
}

func (p *PayPalGateway) getAccessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.accessToken != "" && time.Now().Before(p.tokenExpiry) {
		return p.accessToken, nil
	}

	resp, err := p.authClient.PostForm(ctx,
		p.baseURL()+"/v1/oauth2/token",
		map[string]string{"grant_type": "client_credentials"},
	)
	if err != nil {
		return "", WrapError(NamePayPal, KindUnavailable, "token request failed", err)
	}
	if resp.IsServerError() {
		return "", NewError(NamePayPal, KindUnavailable, fmt.Sprintf("token endpoint returned %d", resp.StatusCode))
	}
	if !resp.IsSuccess() {
		return "", NewError(NamePayPal, KindAuthentication, fmt.Sprintf("token endpoint returned %d", resp.StatusCode))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(resp.Body, &tokenResp); err != nil {
		return "", WrapError(NamePayPal, KindUnavailable, "token parse error", err)
	}
	if tokenResp.AccessToken == "" {
		return "", NewError(NamePayPal, KindAuthentication, "empty access token")
	}

	p.accessToken = tokenResp.AccessToken
	p.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn-60) * time.Second)

	return p.accessToken, nil
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalPurchaseUnit struct {
	ReferenceID string       `json:"reference_id"`
	Amount      paypalAmount `json:"amount"`
	Description string       `json:"description,omitempty"`
}

type paypalAppContext struct {
	ReturnURL  string `json:"return_url,omitempty"`
	CancelURL  string `json:"cancel_url,omitempty"`
	UserAction string `json:"user_action,omitempty"`
}

type paypalOrderRequest struct {
	Intent             string               `json:"intent"`
	PurchaseUnits      []paypalPurchaseUnit `json:"purchase_units"`
	ApplicationContext *paypalAppContext    `json:"application_context,omitempty"`
}

type paypalOrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
}

// FormatPayPalValue renders an amount as the two-decimal string the
// Orders API requires.
func FormatPayPalValue(amount float64) string {
	return fmt.Sprintf("%.2f", amount)
}

func (p *PayPalGateway) Initiate(ctx context.Context, req *InitiateRequest) (*InitiateResult, error) {
	if !p.configured() {
		return nil, NewError(NamePayPal, KindAuthentication, "gateway not configured")
	}
	if req.Amount <= 0 {
		return nil, NewError(NamePayPal, KindValidation, "amount must be positive")
	}

	token, err := p.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	orderReq := paypalOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []paypalPurchaseUnit{
			{
				ReferenceID: req.OrderID,
				Amount: paypalAmount{
					CurrencyCode: strings.ToUpper(req.Currency),
					Value:        FormatPayPalValue(req.Amount),
				},
				Description: req.Description,
			},
		},
	}
	if p.cfg.ReturnURL != "" || p.cfg.CancelURL != "" {
		orderReq.ApplicationContext = &paypalAppContext{
			ReturnURL:  p.cfg.ReturnURL,
			CancelURL:  p.cfg.CancelURL,
			UserAction: "PAY_NOW",
		}
	}

	resp, err := p.apiClient.PostWithHeaders(ctx,
		p.baseURL()+"/v2/checkout/orders",
		orderReq,
		map[string]string{
			"Authorization":     "Bearer " + token,
			"PayPal-Request-Id": req.IdempotencyKey,
		},
	)
	if err != nil {
		return nil, WrapError(NamePayPal, KindUnavailable, "order creation failed", err)
	}
	if resp.IsServerError() {
		return nil, NewError(NamePayPal, KindUnavailable, fmt.Sprintf("order creation returned %d", resp.StatusCode))
	}
	if !resp.IsSuccess() {
		return nil, NewError(NamePayPal, KindValidation, fmt.Sprintf("order creation rejected with %d", resp.StatusCode))
	}

	var orderResp paypalOrderResponse
	if err := json.Unmarshal(resp.Body, &orderResp); err != nil {
		return nil, WrapError(NamePayPal, KindUnavailable, "order parse error", err)
	}
	if orderResp.ID == "" {
		return nil, NewError(NamePayPal, KindUnavailable, "order response missing id")
	}

	var approvalURL string
	for _, link := range orderResp.Links {
		if link.Rel == "approve" {
			approvalURL = link.Href
			break
		}
	}

	return &InitiateResult{
		ProviderTransactionID: orderResp.ID,
		RequiresAction:        true,
		ActionType:            "redirect",
		ActionPayload: map[string]string{
			"approval_url": approvalURL,
			"order_id":     orderResp.ID,
		},
	}, nil
}

func (p *PayPalGateway) CheckStatus(ctx context.Context, providerTxnID string) (*StatusResult, error) {
	token, err := p.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := p.apiClient.Raw().R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+token).
		Get(p.baseURL() + "/v2/checkout/orders/" + providerTxnID)
	if err != nil {
		return nil, WrapError(NamePayPal, KindUnavailable, "order lookup failed", err)
	}
	if resp.StatusCode() >= 500 {
		return nil, NewError(NamePayPal, KindUnavailable, fmt.Sprintf("order lookup returned %d", resp.StatusCode()))
	}

	var orderResp paypalOrderResponse
	if err := json.Unmarshal(resp.Body(), &orderResp); err != nil {
		return nil, WrapError(NamePayPal, KindUnavailable, "order lookup parse error", err)
	}

	status := mapPayPalOrderStatus(orderResp.Status)

	// An approved order still needs our capture step to move funds.
	var captureID string
	if orderResp.Status == "APPROVED" {
		captured, capID, err := p.capture(ctx, token, providerTxnID)
		if err != nil {
			return nil, err
		}
		status = captured
		captureID = capID
	}

	return &StatusResult{Status: status, Raw: orderResp.Status, ProviderCaptureID: captureID}, nil
}

type paypalCaptureResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// capture finalizes an approved order. The returned capture id is what
// later refunds must reference; the order id cannot be refunded.
func (p *PayPalGateway) capture(ctx context.Context, token, orderID string) (Status, string, error) {
	resp, err := p.apiClient.PostWithHeaders(ctx,
		p.baseURL()+"/v2/checkout/orders/"+orderID+"/capture",
		nil,
		map[string]string{"Authorization": "Bearer " + token},
	)
	if err != nil {
		return StatusPending, "", WrapError(NamePayPal, KindUnavailable, "capture failed", err)
	}
	if resp.IsServerError() {
		return StatusPending, "", NewError(NamePayPal, KindUnavailable, fmt.Sprintf("capture returned %d", resp.StatusCode))
	}

	var captureResp paypalCaptureResponse
	if err := json.Unmarshal(resp.Body, &captureResp); err != nil {
		return StatusPending, "", WrapError(NamePayPal, KindUnavailable, "capture parse error", err)
	}

	var captureID string
	for _, unit := range captureResp.PurchaseUnits {
		if len(unit.Payments.Captures) > 0 {
			captureID = unit.Payments.Captures[0].ID
			break
		}
	}
	return mapPayPalOrderStatus(captureResp.Status), captureID, nil
}

// mapPayPalOrderStatus is a total mapping from Orders API statuses to the
// shared taxonomy. Unknown statuses stay pending.
func mapPayPalOrderStatus(status string) Status {
	switch strings.ToUpper(status) {
	case "COMPLETED":
		return StatusCompleted
	case "VOIDED":
		return StatusCancelled
	case "CREATED", "SAVED", "APPROVED", "PAYER_ACTION_REQUIRED":
		return StatusPending
	default:
		return StatusPending
	}
}

type paypalWebhookEvent struct {
	ID           string `json:"id"`
	EventType    string `json:"event_type"`
	ResourceType string `json:"resource_type"`
	Resource     struct {
		ID               string       `json:"id"`
		Status           string       `json:"status"`
		Amount           paypalAmount `json:"amount"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

func (p *PayPalGateway) ProcessWebhook(rawBody []byte) (*WebhookResult, error) {
	var event paypalWebhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, WrapError(NamePayPal, KindValidation, "webhook parse error", err)
	}
	if event.ID == "" {
		return nil, NewError(NamePayPal, KindValidation, "webhook missing event id")
	}

	// Captures reference the originating order through supplementary data.
	// The capture's own id is kept separately; refunds must target it.
	providerTxnID := event.Resource.SupplementaryData.RelatedIDs.OrderID
	var captureID string
	if providerTxnID == "" {
		providerTxnID = event.Resource.ID
	} else {
		captureID = event.Resource.ID
	}

	var status Status
	switch event.EventType {
	case "PAYMENT.CAPTURE.COMPLETED":
		status = StatusCompleted
	case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED":
		status = StatusFailed
	case "PAYMENT.CAPTURE.REFUNDED":
		status = StatusReversed
	case "CHECKOUT.ORDER.APPROVED":
		status = StatusPending
	default:
		status = StatusPending
	}

	var captured float64
	if event.Resource.Amount.Value != "" {
		captured, _ = strconv.ParseFloat(event.Resource.Amount.Value, 64)
	}

	return &WebhookResult{
		EventID:               event.ID,
		EventType:             event.EventType,
		ProviderTransactionID: providerTxnID,
		ProviderCaptureID:     captureID,
		Status:                status,
		CapturedAmount:        captured,
	}, nil
}

func (p *PayPalGateway) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	token, err := p.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	refundReq := map[string]interface{}{
		"note_to_payer": req.Reason,
	}
	if req.Amount > 0 {
		refundReq["amount"] = paypalAmount{
			CurrencyCode: strings.ToUpper(req.Currency),
			Value:        FormatPayPalValue(req.Amount),
		}
	}

	// OriginalTransactionID is the capture id for refunds.
	resp, err := p.apiClient.PostWithHeaders(ctx,
		p.baseURL()+"/v2/payments/captures/"+req.OriginalTransactionID+"/refund",
		refundReq,
		map[string]string{"Authorization": "Bearer " + token},
	)
	if err != nil {
		return nil, WrapError(NamePayPal, KindUnavailable, "refund request failed", err)
	}
	if resp.IsServerError() {
		return nil, NewError(NamePayPal, KindUnavailable, fmt.Sprintf("refund returned %d", resp.StatusCode))
	}
	if !resp.IsSuccess() {
		return nil, NewError(NamePayPal, KindValidation, fmt.Sprintf("refund rejected with %d", resp.StatusCode))
	}

	var refundResp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(resp.Body, &refundResp); err != nil {
		return nil, WrapError(NamePayPal, KindUnavailable, "refund parse error", err)
	}

	status := StatusPending
	if strings.EqualFold(refundResp.Status, "COMPLETED") {
		status = StatusCompleted
	}

	return &RefundResult{
		RefundTransactionID: refundResp.ID,
		Status:              status,
	}, nil
}

func (p *PayPalGateway) HealthCheck(ctx context.Context) Health {
	if !p.configured() {
		return HealthUnconfigured
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := p.getAccessToken(probeCtx); err != nil {
		return HealthDegraded
	}
	return HealthHealthy
}
