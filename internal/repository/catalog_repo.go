package repository

import (
	"context"

	"gorm.io/gorm"

	"abaisprings/internal/models"
)

// ProductRepository handles product catalog reads.
type ProductRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// FindAll returns the product catalog.
func (r *ProductRepository) FindAll(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := r.db.WithContext(ctx).Order("name").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// OutletRepository handles outlet reads.
type OutletRepository struct {
	db *gorm.DB
}

func NewOutletRepository(db *gorm.DB) *OutletRepository {
	return &OutletRepository{db: db}
}

// FindAll returns all outlets.
func (r *OutletRepository) FindAll(ctx context.Context) ([]models.Outlet, error) {
	var outlets []models.Outlet
	if err := r.db.WithContext(ctx).Order("name").Find(&outlets).Error; err != nil {
		return nil, err
	}
	return outlets, nil
}
