package bootstrap

import (
	"fmt"

	"gorm.io/gorm"

	"abaisprings/internal/models"
)

// MigrateAndSeed ensures required tables exist and inserts baseline
// catalog rows when the tables are empty.
func MigrateAndSeed(db *gorm.DB) error {
	if err := db.AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	if err := seedDefaults(db); err != nil {
		return fmt.Errorf("seed defaults failed: %w", err)
	}
	return nil
}

func allModels() []interface{} {
	return []interface{}{
		&models.PaymentIntent{},
		&models.RefundRecord{},
		&models.Order{},
		&models.Customer{},
		&models.Product{},
		&models.Outlet{},
	}
}

func seedDefaults(db *gorm.DB) error {
	var productCount int64
	if err := db.Model(&models.Product{}).Count(&productCount).Error; err != nil {
		return err
	}
	if productCount == 0 {
		products := []models.Product{
			{ID: "1", Name: "Abai Water 500ml", Brand: "Abai", Price: 50, Stock: 150},
			{ID: "2", Name: "Abai Water 1L", Brand: "Abai", Price: 80, Stock: 200},
			{ID: "3", Name: "Sprinkle Water 500ml", Brand: "Sprinkle", Price: 45, Stock: 120},
		}
		if err := db.Create(&products).Error; err != nil {
			return err
		}
	}

	var outletCount int64
	if err := db.Model(&models.Outlet{}).Count(&outletCount).Error; err != nil {
		return err
	}
	if outletCount == 0 {
		outlets := []models.Outlet{
			{ID: "1", Name: "Nairobi Central", Location: "Nairobi CBD", Phone: "+254 700 123 456", Status: "Active"},
			{ID: "2", Name: "Mombasa Branch", Location: "Mombasa City", Phone: "+254 700 789 012", Status: "Active"},
		}
		if err := db.Create(&outlets).Error; err != nil {
			return err
		}
	}

	return nil
}
