package repository

import (
	"context"

	"gorm.io/gorm"

	"abaisprings/internal/models"
)

// RefundRepository persists refund attempts.
type RefundRepository struct {
	db *gorm.DB
}

func NewRefundRepository(db *gorm.DB) *RefundRepository {
	return &RefundRepository{db: db}
}

// Create inserts a refund record.
func (r *RefundRepository) Create(ctx context.Context, record *models.RefundRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// SumCompletedByOrder returns the cumulative refunded amount for an order,
// counting only provider-confirmed refunds.
func (r *RefundRepository) SumCompletedByOrder(ctx context.Context, orderID string) (float64, error) {
	var total float64
	err := r.db.WithContext(ctx).
		Model(&models.RefundRecord{}).
		Where("order_id = ? AND status = ?", orderID, "completed").
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}

// FindByOrderID returns all refund records for an order.
func (r *RefundRepository) FindByOrderID(ctx context.Context, orderID string) ([]models.RefundRecord, error) {
	var records []models.RefundRecord
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
