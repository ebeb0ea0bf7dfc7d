package domain

import "time"

const (
	NotifyStatusPending = "pending"
	NotifyStatusSent    = "sent"
	NotifyStatusFailed  = "failed"
)

// Notification is an outbox row for an order confirmation message. Rows are
// written after the placement transaction commits and processed by the
// dispatcher workers; failed rows are retried by a scheduled sweep.
type Notification struct {
	ID         int64      `gorm:"primaryKey" json:"id,string"`
	OrderID    int64      `gorm:"index" json:"order_id,string"`
	Email      string     `json:"email"`
	Status     string     `gorm:"index;size:20" json:"status"`
	RetryCount int        `json:"retry_count"`
	ErrorMsg   string     `json:"error_msg"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName Specify table name
func (Notification) TableName() string {
	return "notification"
}
