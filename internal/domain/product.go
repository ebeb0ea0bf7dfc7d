package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog item. Stock is mutated by admin CRUD and decremented
// inside the order placement transaction; it can never go below zero.
type Product struct {
	ID        int64           `gorm:"primaryKey" json:"id,string"`
	Name      string          `gorm:"index" json:"name"`
	Price     decimal.Decimal `gorm:"type:decimal(10,2)" json:"price"`
	Stock     int             `gorm:"check:stock >= 0" json:"stock"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TableName Specify table name
func (Product) TableName() string {
	return "product"
}
