package notify

import (
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/talkincode/nextshop/config"
	"github.com/talkincode/nextshop/internal/domain"
	"github.com/talkincode/nextshop/internal/order"
	"github.com/talkincode/nextshop/pkg/common"
	"github.com/talkincode/nextshop/pkg/metrics"
)

// Dispatcher turns committed orders into confirmation messages with
// at-least-once intent. Every enqueue writes an outbox row first, so a crash
// between commit and delivery is recovered by the retry sweep. Send failures
// never propagate back to the placement caller.
// Settings reads the runtime delivery switches (sys_config). A nil Settings
// leaves every sender enabled.
type Settings interface {
	GetBool(category, name string) bool
}

type Dispatcher struct {
	db       *gorm.DB
	bus      EventBus.Bus
	pool     *ants.Pool
	senders  []Sender
	settings Settings
	maxRetry int
}

func NewDispatcher(db *gorm.DB, bus EventBus.Bus, cfg config.NotifyConfig) (*Dispatcher, error) {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	pool, err := ants.NewPool(workers, ants.WithNonblocking(false))
	if err != nil {
		return nil, errors.Wrap(err, "create notify worker pool")
	}

	maxRetry := cfg.MaxRetry
	if maxRetry <= 0 {
		maxRetry = 3
	}

	senders := []Sender{NewMailSender(cfg)}
	if cfg.WebhookURL != "" {
		senders = append(senders, NewWebhookSender(cfg.WebhookURL))
	}

	return &Dispatcher{
		db:       db,
		bus:      bus,
		pool:     pool,
		senders:  senders,
		maxRetry: maxRetry,
	}, nil
}

// WithSenders replaces the delivery backends (used in tests).
func (d *Dispatcher) WithSenders(senders ...Sender) *Dispatcher {
	d.senders = senders
	return d
}

// WithSettings attaches the runtime settings source.
func (d *Dispatcher) WithSettings(settings Settings) *Dispatcher {
	d.settings = settings
	return d
}

func (d *Dispatcher) senderEnabled(s Sender) bool {
	if d.settings == nil {
		return true
	}
	switch s.Name() {
	case "mail":
		return d.settings.GetBool("notify", "MailEnabled")
	case "webhook":
		return d.settings.GetBool("notify", "WebhookEnabled")
	}
	return true
}

// Start subscribes the dispatcher to post-commit order events.
func (d *Dispatcher) Start() error {
	if d.bus == nil {
		return nil
	}
	if err := d.bus.Subscribe(order.TopicOrderCreated, d.onOrderCreated); err != nil {
		return errors.Wrap(err, "subscribe order events")
	}
	zap.L().Info("notification dispatcher started",
		zap.Int("senders", len(d.senders)),
		zap.Int("max_retry", d.maxRetry))
	return nil
}

// Stop unsubscribes and drains the worker pool.
func (d *Dispatcher) Stop() {
	if d.bus != nil {
		_ = d.bus.Unsubscribe(order.TopicOrderCreated, d.onOrderCreated)
	}
	d.pool.Release()
	zap.L().Info("notification dispatcher stopped")
}

func (d *Dispatcher) onOrderCreated(orderID int64, email string) {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error("order event handler panic:", err)
		}
	}()
	if err := d.Enqueue(orderID, email); err != nil {
		zap.L().Error("failed to enqueue notification",
			zap.Int64("order_id", orderID), zap.Error(err))
	}
}

// Enqueue persists a pending notification and schedules delivery. The caller
// never blocks on delivery itself.
func (d *Dispatcher) Enqueue(orderID int64, email string) error {
	n := &domain.Notification{
		ID:      common.UUIDint64(),
		OrderID: orderID,
		Email:   email,
		Status:  domain.NotifyStatusPending,
	}
	if err := d.db.Create(n).Error; err != nil {
		return errors.Wrap(err, "create notification")
	}

	id := n.ID
	if err := d.pool.Submit(func() { d.process(id) }); err != nil {
		// Row stays pending; the retry sweep picks it up.
		zap.L().Warn("notify pool submit failed, deferring to sweep",
			zap.Int64("notification_id", id), zap.Error(err))
	}
	return nil
}

func (d *Dispatcher) process(id int64) {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error("notification worker panic:", err)
		}
	}()

	var n domain.Notification
	if err := d.db.First(&n, id).Error; err != nil {
		zap.L().Error("notification row missing", zap.Int64("id", id), zap.Error(err))
		return
	}
	if n.Status == domain.NotifyStatusSent {
		return
	}

	var active []Sender
	for _, sender := range d.senders {
		if d.senderEnabled(sender) {
			active = append(active, sender)
		}
	}
	// Delivery switched off entirely: leave the row pending so a later
	// sweep delivers it once a channel is re-enabled.
	if len(active) == 0 {
		return
	}

	for _, sender := range active {
		if err := sender.Send(&n); err != nil {
			d.markFailed(&n, err)
			return
		}
	}

	now := time.Now()
	if err := d.db.Model(&domain.Notification{}).Where("id = ?", n.ID).
		Updates(map[string]interface{}{
			"status":    domain.NotifyStatusSent,
			"error_msg": "",
			"sent_at":   now,
		}).Error; err != nil {
		zap.L().Error("failed to mark notification sent",
			zap.Int64("id", n.ID), zap.Error(err))
		return
	}

	metrics.IncrCounter("nextshop_notify_sent", 1)
	zap.L().Info("order confirmation sent",
		zap.Int64("order_id", n.OrderID),
		zap.String("email", n.Email))
}

func (d *Dispatcher) markFailed(n *domain.Notification, sendErr error) {
	metrics.IncrCounter("nextshop_notify_failed", 1)
	zap.L().Warn("order confirmation delivery failed",
		zap.Int64("order_id", n.OrderID),
		zap.Int("retry_count", n.RetryCount),
		zap.Error(sendErr))

	if err := d.db.Model(&domain.Notification{}).Where("id = ?", n.ID).
		Updates(map[string]interface{}{
			"status":      domain.NotifyStatusFailed,
			"error_msg":   sendErr.Error(),
			"retry_count": gorm.Expr("retry_count + 1"),
		}).Error; err != nil {
		zap.L().Error("failed to mark notification failed",
			zap.Int64("id", n.ID), zap.Error(err))
	}
}

// RetrySweep requeues pending rows that missed their worker and failed rows
// below the retry cap. Called from the scheduler.
func (d *Dispatcher) RetrySweep() {
	var rows []domain.Notification
	err := d.db.
		Where("status = ?", domain.NotifyStatusPending).
		Or("status = ? AND retry_count < ?", domain.NotifyStatusFailed, d.maxRetry).
		Order("created_at ASC").
		Limit(100).
		Find(&rows).Error
	if err != nil {
		zap.L().Error("notification sweep query failed", zap.Error(err))
		return
	}
	if len(rows) == 0 {
		return
	}

	zap.L().Debug("retrying notifications", zap.Int("count", len(rows)))
	for _, n := range rows {
		id := n.ID
		if err := d.pool.Submit(func() { d.process(id) }); err != nil {
			return
		}
	}
}

// PurgeSent deletes sent rows older than the retention window.
func (d *Dispatcher) PurgeSent(olderThan time.Duration) {
	d.db.Where("status = ? AND sent_at < ?",
		domain.NotifyStatusSent, time.Now().Add(-olderThan)).
		Delete(&domain.Notification{})
}
