package models

// ProcessPaymentRequest is the body of POST /api/payments.
type ProcessPaymentRequest struct {
	OrderID          string  `json:"orderId"`
	Amount           float64 `json:"amount"`
	Currency         string  `json:"currency"`
	Country          string  `json:"country"`
	PaymentMethod    string  `json:"paymentMethod"`
	PayerIdentifier  string  `json:"payerIdentifier"`
	PreferredGateway string  `json:"preferredGateway,omitempty"`
	IdempotencyKey   string  `json:"idempotencyKey,omitempty"`
}

// ProcessPaymentResponse is the 202 body returned when a flow starts.
type ProcessPaymentResponse struct {
	TransactionID  string            `json:"transactionId"`
	OrderID        string            `json:"orderId"`
	Gateway        string            `json:"gateway"`
	Status         string            `json:"status"`
	RequiresAction bool              `json:"requiresAction"`
	ActionType     string            `json:"actionType,omitempty"`
	ActionPayload  map[string]string `json:"actionPayload,omitempty"`
}

// RefundPaymentRequest is the body of POST /api/payments/:orderId/refund.
type RefundPaymentRequest struct {
	Amount float64 `json:"amount"`
	Reason string  `json:"reason"`
}

// PaymentStatusResponse is returned by GET /api/payments/:orderId/status.
type PaymentStatusResponse struct {
	OrderID       string  `json:"orderId"`
	TransactionID string  `json:"transactionId"`
	Gateway       string  `json:"gateway"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	Status        string  `json:"status"`
	FailureReason string  `json:"failureReason,omitempty"`
}
