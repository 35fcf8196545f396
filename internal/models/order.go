package models

import "time"

// Order maps to the `orders` table.
type Order struct {
	ID          string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	OrderNumber string    `gorm:"column:order_number;size:32;uniqueIndex" json:"orderNumber"`
	CustomerID  string    `gorm:"column:customer_id;size:64;index" json:"customerId"`
	Total       float64   `gorm:"column:total" json:"total"`
	Currency    string    `gorm:"column:currency;size:8" json:"currency"`
	Status      string    `gorm:"column:status;size:32" json:"status"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"createdAt"`
}

func (Order) TableName() string {
	return "orders"
}

// Customer maps to the `customers` table.
type Customer struct {
	ID    string `gorm:"column:id;primaryKey;size:64" json:"id"`
	Name  string `gorm:"column:name;size:200" json:"name"`
	Email string `gorm:"column:email;size:200" json:"email"`
	Phone string `gorm:"column:phone;size:32" json:"phone"`
}

func (Customer) TableName() string {
	return "customers"
}
