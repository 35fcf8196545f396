package models

import "time"

// RefundRecord is one refund attempt against a captured payment. The
// cumulative completed amount for an order never exceeds what was captured.
type RefundRecord struct {
	ID                    string     `gorm:"column:id;primaryKey;size:64" json:"id"`
	OrderID               string     `gorm:"column:order_id;size:64;index" json:"orderId"`
	OriginalTransactionID string     `gorm:"column:original_transaction_id;size:128" json:"originalTransactionId"`
	RefundTransactionID   string     `gorm:"column:refund_transaction_id;size:128" json:"refundTransactionId"`
	Gateway               string     `gorm:"column:gateway;size:32" json:"gateway"`
	Amount                float64    `gorm:"column:amount" json:"amount"`
	Reason                string     `gorm:"column:reason;size:500" json:"reason"`
	Status                string     `gorm:"column:status;size:16" json:"status"`
	ProcessedAt           *time.Time `gorm:"column:processed_at" json:"processedAt,omitempty"`
}

func (RefundRecord) TableName() string {
	return "refund_records"
}
