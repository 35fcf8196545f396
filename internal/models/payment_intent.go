package models

import "time"

// PaymentIntent is the canonical, gateway-agnostic payment record. Exactly
// one active (pending) intent exists per order; a retried attempt creates a
// new intent linked to the order, never mutates a terminal one.
type PaymentIntent struct {
	ID                   string            `gorm:"column:id;primaryKey;size:64" json:"id"`
	OrderID              string            `gorm:"column:order_id;size:64;index" json:"orderId"`
	CustomerID           string            `gorm:"column:customer_id;size:64;index" json:"customerId"`
	Amount               float64           `gorm:"column:amount" json:"amount"`
	Currency             string            `gorm:"column:currency;size:8" json:"currency"`
	Gateway              string            `gorm:"column:gateway;size:32" json:"gateway"`
	PaymentMethod        string            `gorm:"column:payment_method;size:32" json:"paymentMethod"`
	Status               string            `gorm:"column:status;size:16;index" json:"status"`
	GatewayTransactionID string            `gorm:"column:gateway_transaction_id;size:128;index" json:"gatewayTransactionId"`
	FailureReason        string            `gorm:"column:failure_reason;size:500" json:"failureReason,omitempty"`
	Metadata             map[string]string `gorm:"column:metadata;serializer:json" json:"metadata,omitempty"`
	CreatedAt            time.Time         `gorm:"column:created_at" json:"createdAt"`
	ProcessedAt          *time.Time        `gorm:"column:processed_at" json:"processedAt,omitempty"`
}

func (PaymentIntent) TableName() string {
	return "payment_intents"
}
