package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderStatusNew        = "new"
	OrderStatusInProgress = "in_progress"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
)

// OrderStatusValues lists every accepted order status. There is no enforced
// transition graph: an admin may move an order between any two statuses.
var OrderStatusValues = []string{
	OrderStatusNew,
	OrderStatusInProgress,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// ValidOrderStatus reports whether s is a defined order status.
func ValidOrderStatus(s string) bool {
	for _, v := range OrderStatusValues {
		if v == s {
			return true
		}
	}
	return false
}

// Order is created only through the placement engine. TotalPrice is derived
// from the item snapshots at creation time and never edited afterwards.
type Order struct {
	ID         int64           `gorm:"primaryKey" json:"id,string"`
	UserID     int64           `gorm:"index" json:"user_id,string"`
	Status     string          `gorm:"index;size:20" json:"status"`
	TotalPrice decimal.Decimal `gorm:"type:decimal(10,2)" json:"total_price"`
	CreatedAt  time.Time       `json:"created_at"`

	Items []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

// TableName Specify table name
func (Order) TableName() string {
	return "orders"
}

// OrderItem snapshots quantity and unit price of one product in an order.
// A product appears at most once per order; rows are immutable after the
// placement transaction commits.
type OrderItem struct {
	ID        int64           `gorm:"primaryKey" json:"id,string"`
	OrderID   int64           `gorm:"uniqueIndex:idx_order_product" json:"order_id,string"`
	ProductID int64           `gorm:"uniqueIndex:idx_order_product" json:"product_id,string"`
	Quantity  int             `gorm:"check:quantity > 0" json:"quantity"`
	Price     decimal.Decimal `gorm:"type:decimal(10,2)" json:"price"`
}

// TableName Specify table name
func (OrderItem) TableName() string {
	return "order_item"
}
