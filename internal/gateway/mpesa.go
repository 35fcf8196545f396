package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"abaisprings/internal/pkg/httpclient"
)

const (
	mpesaSandboxURL    = "https://sandbox.safaricom.co.ke"
	mpesaProductionURL = "https://api.safaricom.co.ke"

	mpesaTimestampLayout = "20060102150405"
)

// MpesaConfig carries the Daraja credentials for the STK push flow.
type MpesaConfig struct {
	ConsumerKey        string
	ConsumerSecret     string
	Shortcode          string
	Passkey            string
	InitiatorName      string
	SecurityCredential string
	CallbackURL        string
	Sandbox            bool
	BaseURL            string // overrides the sandbox/production switch when set
}

// MpesaGateway implements the Adapter interface for Safaricom M-Pesa
// STK push (customer is prompted on their handset, confirmation arrives
// asynchronously on the callback URL).
type MpesaGateway struct {
	cfg    MpesaConfig
	client *httpclient.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewMpesaGateway(cfg MpesaConfig) *MpesaGateway {
	return &MpesaGateway{
		cfg:    cfg,
		client: httpclient.New().WithTimeout(30 * time.Second),
	}
}

func (m *MpesaGateway) Name() string {
	return NameMpesa
}

func (m *MpesaGateway) baseURL() string {
	if m.cfg.BaseURL != "" {
		return m.cfg.BaseURL
	}
	if m.cfg.Sandbox {
		return mpesaSandboxURL
	}
	return mpesaProductionURL
}

func (m *MpesaGateway) configured() bool {
	return m.cfg.ConsumerKey != "" && m.cfg.ConsumerSecret != "" &&
		m.cfg.Shortcode != "" && m.cfg.Passkey != ""
}

// MpesaTimestamp formats a time the way Daraja expects: YYYYMMDDHHmmss.
func MpesaTimestamp(t time.Time) string {
	return t.Format(mpesaTimestampLayout)
}

// MpesaPassword derives the STK push password:
// base64(shortcode + passkey + timestamp).
func MpesaPassword(shortcode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortcode + passkey + timestamp))
}

// NormalizeMsisdn converts a Kenyan phone number to the canonical
// 254XXXXXXXXX form with no symbols. Accepts "+254...", "0712...",
// "712..." and already-normalized input.
func NormalizeMsisdn(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case strings.HasPrefix(digits, "254") && len(digits) == 12:
		// already canonical
	case strings.HasPrefix(digits, "0") && len(digits) == 10:
		digits = "254" + digits[1:]
	case (strings.HasPrefix(digits, "7") || strings.HasPrefix(digits, "1")) && len(digits) == 9:
		digits = "254" + digits
	default:
		return "", fmt.Errorf("unrecognized phone number format: %q", raw)
	}
	return digits, nil
}

func (m *MpesaGateway) getAccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.accessToken != "" && time.Now().Before(m.tokenExpiry) {
		return m.accessToken, nil
	}

	auth := base64.StdEncoding.EncodeToString([]byte(m.cfg.ConsumerKey + ":" + m.cfg.ConsumerSecret))
	resp, err := m.client.PostWithHeaders(ctx,
		m.baseURL()+"/oauth/v1/generate?grant_type=client_credentials",
		nil,
		map[string]string{"Authorization": "Basic " + auth},
	)
	if err != nil {
		return "", WrapError(NameMpesa, KindUnavailable, "token request failed", err)
	}
	if resp.IsServerError() {
		return "", NewError(NameMpesa, KindUnavailable, fmt.Sprintf("token endpoint returned %d", resp.StatusCode))
	}
	if !resp.IsSuccess() {
		return "", NewError(NameMpesa, KindAuthentication, fmt.Sprintf("token endpoint returned %d", resp.StatusCode))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.Unmarshal(resp.Body, &tokenResp); err != nil {
		return "", WrapError(NameMpesa, KindUnavailable, "token parse error", err)
	}
	if tokenResp.AccessToken == "" {
		return "", NewError(NameMpesa, KindAuthentication, "empty access token")
	}

	ttl, err := strconv.Atoi(tokenResp.ExpiresIn)
	if err != nil || ttl <= 60 {
		ttl = 3600
	}
	m.accessToken = tokenResp.AccessToken
	m.tokenExpiry = time.Now().Add(time.Duration(ttl-60) * time.Second)

	return m.accessToken, nil
}

type mpesaSTKRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int    `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type mpesaSTKResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
	ErrorCode           string `json:"errorCode"`
	ErrorMessage        string `json:"errorMessage"`
}

func (m *MpesaGateway) Initiate(ctx context.Context, req *InitiateRequest) (*InitiateResult, error) {
	if !m.configured() {
		return nil, NewError(NameMpesa, KindAuthentication, "gateway not configured")
	}
	if req.Amount < 1 {
		return nil, NewError(NameMpesa, KindValidation, "amount must be at least 1 KES")
	}
	phone, err := NormalizeMsisdn(req.PayerIdentifier)
	if err != nil {
		return nil, WrapError(NameMpesa, KindValidation, "invalid payer phone", err)
	}

	token, err := m.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	ts := MpesaTimestamp(time.Now())
	body := mpesaSTKRequest{
		BusinessShortCode: m.cfg.Shortcode,
		Password:          MpesaPassword(m.cfg.Shortcode, m.cfg.Passkey, ts),
		Timestamp:         ts,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            int(req.Amount),
		PartyA:            phone,
		PartyB:            m.cfg.Shortcode,
		PhoneNumber:       phone,
		CallBackURL:       m.cfg.CallbackURL,
		AccountReference:  req.OrderID,
		TransactionDesc:   req.Description,
	}

	resp, err := m.client.PostWithHeaders(ctx,
		m.baseURL()+"/mpesa/stkpush/v1/processrequest",
		body,
		map[string]string{"Authorization": "Bearer " + token, "Idempotency-Key": req.IdempotencyKey},
	)
	if err != nil {
		return nil, WrapError(NameMpesa, KindUnavailable, "stk push request failed", err)
	}
	if resp.IsServerError() {
		return nil, NewError(NameMpesa, KindUnavailable, fmt.Sprintf("stk push returned %d", resp.StatusCode))
	}

	var stkResp mpesaSTKResponse
	if err := json.Unmarshal(resp.Body, &stkResp); err != nil {
		return nil, WrapError(NameMpesa, KindUnavailable, "stk push parse error", err)
	}
	if stkResp.ResponseCode != "0" || stkResp.CheckoutRequestID == "" {
		msg := stkResp.ResponseDescription
		if msg == "" {
			msg = stkResp.ErrorMessage
		}
		return nil, NewError(NameMpesa, KindValidation, "stk push rejected: "+msg)
	}

	return &InitiateResult{
		ProviderTransactionID: stkResp.CheckoutRequestID,
		RequiresAction:        true,
		ActionType:            "push_prompt",
		ActionPayload: map[string]string{
			"customer_message":    stkResp.CustomerMessage,
			"merchant_request_id": stkResp.MerchantRequestID,
		},
	}, nil
}

type mpesaQueryResponse struct {
	ResponseCode      string `json:"ResponseCode"`
	ResultCode        string `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

func (m *MpesaGateway) CheckStatus(ctx context.Context, providerTxnID string) (*StatusResult, error) {
	token, err := m.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	ts := MpesaTimestamp(time.Now())
	body := map[string]string{
		"BusinessShortCode": m.cfg.Shortcode,
		"Password":          MpesaPassword(m.cfg.Shortcode, m.cfg.Passkey, ts),
		"Timestamp":         ts,
		"CheckoutRequestID": providerTxnID,
	}

	resp, err := m.client.PostWithHeaders(ctx,
		m.baseURL()+"/mpesa/stkpushquery/v1/query",
		body,
		map[string]string{"Authorization": "Bearer " + token},
	)
	if err != nil {
		return nil, WrapError(NameMpesa, KindUnavailable, "stk query failed", err)
	}
	if resp.IsServerError() {
		return nil, NewError(NameMpesa, KindUnavailable, fmt.Sprintf("stk query returned %d", resp.StatusCode))
	}

	var queryResp mpesaQueryResponse
	if err := json.Unmarshal(resp.Body, &queryResp); err != nil {
		return nil, WrapError(NameMpesa, KindUnavailable, "stk query parse error", err)
	}

	return &StatusResult{
		Status: mapMpesaResultCode(queryResp.ResultCode),
		Raw:    queryResp.ResultCode,
	}, nil
}

// mapMpesaResultCode is a total mapping from Daraja result codes to the
// shared taxonomy. Unknown codes stay pending so a later poll can resolve.
func mapMpesaResultCode(code string) Status {
	switch code {
	case "0":
		return StatusCompleted
	case "1032": // request cancelled by user
		return StatusCancelled
	case "1037": // DS timeout, user unreachable
		return StatusTimeout
	case "1", "2001": // insufficient balance / wrong PIN
		return StatusFailed
	default:
		return StatusPending
	}
}

type mpesaCallback struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string      `json:"Name"`
					Value interface{} `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

func (m *MpesaGateway) ProcessWebhook(rawBody []byte) (*WebhookResult, error) {
	var cb mpesaCallback
	if err := json.Unmarshal(rawBody, &cb); err != nil {
		return nil, WrapError(NameMpesa, KindValidation, "callback parse error", err)
	}

	stk := cb.Body.StkCallback
	if stk.CheckoutRequestID == "" {
		return nil, NewError(NameMpesa, KindValidation, "callback missing CheckoutRequestID")
	}

	result := &WebhookResult{
		EventID:               stk.CheckoutRequestID,
		EventType:             "stk_callback",
		ProviderTransactionID: stk.CheckoutRequestID,
		Status:                mapMpesaResultCode(strconv.Itoa(stk.ResultCode)),
	}

	for _, item := range stk.CallbackMetadata.Item {
		switch item.Name {
		case "Amount":
			if v, ok := item.Value.(float64); ok {
				result.CapturedAmount = v
			}
		case "PhoneNumber":
			switch v := item.Value.(type) {
			case float64:
				result.PayerInfo = strconv.FormatInt(int64(v), 10)
			case string:
				result.PayerInfo = v
			}
		}
	}

	return result, nil
}

type mpesaReversalResponse struct {
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ConversationID           string `json:"ConversationID"`
	ResponseCode             string `json:"ResponseCode"`
	ResponseDescription      string `json:"ResponseDescription"`
}

func (m *MpesaGateway) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	token, err := m.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"Initiator":              m.cfg.InitiatorName,
		"SecurityCredential":     m.cfg.SecurityCredential,
		"CommandID":              "TransactionReversal",
		"TransactionID":          req.OriginalTransactionID,
		"Amount":                 int(req.Amount),
		"ReceiverParty":          m.cfg.Shortcode,
		"RecieverIdentifierType": "11",
		"ResultURL":              m.cfg.CallbackURL,
		"QueueTimeOutURL":        m.cfg.CallbackURL,
		"Remarks":                req.Reason,
	}

	resp, err := m.client.PostWithHeaders(ctx,
		m.baseURL()+"/mpesa/reversal/v1/request",
		body,
		map[string]string{"Authorization": "Bearer " + token},
	)
	if err != nil {
		return nil, WrapError(NameMpesa, KindUnavailable, "reversal request failed", err)
	}
	if resp.IsServerError() {
		return nil, NewError(NameMpesa, KindUnavailable, fmt.Sprintf("reversal returned %d", resp.StatusCode))
	}

	var revResp mpesaReversalResponse
	if err := json.Unmarshal(resp.Body, &revResp); err != nil {
		return nil, WrapError(NameMpesa, KindUnavailable, "reversal parse error", err)
	}
	if revResp.ResponseCode != "0" {
		return nil, NewError(NameMpesa, KindValidation, "reversal rejected: "+revResp.ResponseDescription)
	}

	return &RefundResult{
		RefundTransactionID: revResp.ConversationID,
		Status:              StatusCompleted,
	}, nil
}

func (m *MpesaGateway) HealthCheck(ctx context.Context) Health {
	if !m.configured() {
		return HealthUnconfigured
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := m.getAccessToken(probeCtx); err != nil {
		return HealthDegraded
	}
	return HealthHealthy
}
