package models

// Product maps to the `products` table.
type Product struct {
	ID    string  `gorm:"column:id;primaryKey;size:64" json:"id"`
	Name  string  `gorm:"column:name;size:200" json:"name"`
	Brand string  `gorm:"column:brand;size:100" json:"brand"`
	Price float64 `gorm:"column:price" json:"price"`
	Stock int     `gorm:"column:stock" json:"stock"`
}

func (Product) TableName() string {
	return "products"
}

// Outlet maps to the `outlets` table.
type Outlet struct {
	ID       string `gorm:"column:id;primaryKey;size:64" json:"id"`
	Name     string `gorm:"column:name;size:200" json:"name"`
	Location string `gorm:"column:location;size:300" json:"location"`
	Phone    string `gorm:"column:phone;size:32" json:"phone"`
	Status   string `gorm:"column:status;size:32" json:"status"`
}

func (Outlet) TableName() string {
	return "outlets"
}
