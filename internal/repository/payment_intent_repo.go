package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"abaisprings/internal/models"
)

// ErrActiveIntentExists is returned when an order already has a pending
// payment intent.
var ErrActiveIntentExists = errors.New("order already has an active payment intent")

// PaymentIntentRepository is the durable canonical record store for
// payment intents, keyed by order id.
type PaymentIntentRepository struct {
	db *gorm.DB
}

func NewPaymentIntentRepository(db *gorm.DB) *PaymentIntentRepository {
	return &PaymentIntentRepository{db: db}
}

// Create inserts a new intent. At most one pending intent may exist per
// order; the check and insert run in one transaction.
func (r *PaymentIntentRepository) Create(ctx context.Context, intent *models.PaymentIntent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.PaymentIntent{}).
			Where("order_id = ? AND status = ?", intent.OrderID, "pending").
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrActiveIntentExists
		}
		return tx.Create(intent).Error
	})
}

// Update persists the full intent row by primary key.
func (r *PaymentIntentRepository) Update(ctx context.Context, intent *models.PaymentIntent) error {
	return r.db.WithContext(ctx).Save(intent).Error
}

// FindByOrderID returns the most recent intent for an order.
func (r *PaymentIntentRepository) FindByOrderID(ctx context.Context, orderID string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		First(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

// FindByProviderTxnID returns the intent holding a given gateway
// transaction id.
func (r *PaymentIntentRepository) FindByProviderTxnID(ctx context.Context, providerTxnID string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).
		Where("gateway_transaction_id = ?", providerTxnID).
		First(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

// FindByID returns an intent by its own id.
func (r *PaymentIntentRepository) FindByID(ctx context.Context, id string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

// FindAllByOrderID returns every attempt for an order, newest first.
func (r *PaymentIntentRepository) FindAllByOrderID(ctx context.Context, orderID string) ([]models.PaymentIntent, error) {
	var intents []models.PaymentIntent
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&intents).Error; err != nil {
		return nil, err
	}
	return intents, nil
}
