package notify

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/talkincode/nextshop/config"
	"github.com/talkincode/nextshop/internal/domain"
	"github.com/talkincode/nextshop/internal/order"
	"github.com/talkincode/nextshop/pkg/common"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(domain.Tables...); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []int64
	fails int
}

func (f *fakeSender) Name() string {
	return "mail"
}

func (f *fakeSender) Send(n *domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("smtp unreachable")
	}
	f.sent = append(f.sent, n.OrderID)
	return nil
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestDispatcher(t *testing.T, db *gorm.DB, bus EventBus.Bus, sender Sender) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(db, bus, config.NotifyConfig{Workers: 2, MaxRetry: 3})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	d.WithSenders(sender)
	t.Cleanup(d.Stop)
	return d
}

func waitForStatus(t *testing.T, db *gorm.DB, orderID int64, status string) domain.Notification {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		var n domain.Notification
		err := db.Where("order_id = ?", orderID).First(&n).Error
		if err == nil && n.Status == status {
			return n
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("notification for order %d never reached status %q", orderID, status)
	return domain.Notification{}
}

func TestEnqueueDeliversAndMarksSent(t *testing.T) {
	db := newTestDB(t)
	sender := &fakeSender{}
	d := newTestDispatcher(t, db, nil, sender)

	if err := d.Enqueue(12345, "buyer@example.com"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	n := waitForStatus(t, db, 12345, domain.NotifyStatusSent)
	if n.Email != "buyer@example.com" {
		t.Errorf("email = %s", n.Email)
	}
	if n.SentAt == nil {
		t.Error("sent_at not set")
	}
	if sender.sentCount() != 1 {
		t.Errorf("sender called %d times, want 1", sender.sentCount())
	}
}

func TestSendFailureIsRetriedBySweep(t *testing.T) {
	db := newTestDB(t)
	sender := &fakeSender{fails: 1}
	d := newTestDispatcher(t, db, nil, sender)

	if err := d.Enqueue(777, "buyer@example.com"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	n := waitForStatus(t, db, 777, domain.NotifyStatusFailed)
	if n.RetryCount != 1 {
		t.Errorf("retry_count = %d, want 1", n.RetryCount)
	}
	if n.ErrorMsg == "" {
		t.Error("error_msg empty on failed notification")
	}

	d.RetrySweep()
	waitForStatus(t, db, 777, domain.NotifyStatusSent)
}

type fakeSettings struct {
	mu   sync.Mutex
	mail bool
}

func (f *fakeSettings) GetBool(category, name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if category == "notify" && name == "MailEnabled" {
		return f.mail
	}
	return false
}

func (f *fakeSettings) setMail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mail = v
}

func TestDisabledMailLeavesPending(t *testing.T) {
	db := newTestDB(t)
	sender := &fakeSender{}
	settings := &fakeSettings{mail: false}
	d := newTestDispatcher(t, db, nil, sender)
	d.WithSettings(settings)

	if err := d.Enqueue(4242, "buyer@example.com"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	var n domain.Notification
	if err := db.Where("order_id = ?", int64(4242)).First(&n).Error; err != nil {
		t.Fatalf("load notification: %v", err)
	}
	if n.Status != domain.NotifyStatusPending {
		t.Errorf("status = %s with mail disabled, want pending", n.Status)
	}
	if sender.sentCount() != 0 {
		t.Errorf("sender called %d times while disabled", sender.sentCount())
	}

	// Re-enabling the channel lets the sweep deliver the backlog.
	settings.setMail(true)
	d.RetrySweep()
	waitForStatus(t, db, 4242, domain.NotifyStatusSent)
}

func TestSweepRespectsRetryCap(t *testing.T) {
	db := newTestDB(t)
	sender := &fakeSender{fails: 100}
	d := newTestDispatcher(t, db, nil, sender)

	exhausted := domain.Notification{
		ID:         common.UUIDint64(),
		OrderID:    555,
		Email:      "buyer@example.com",
		Status:     domain.NotifyStatusFailed,
		RetryCount: 3,
	}
	if err := db.Create(&exhausted).Error; err != nil {
		t.Fatalf("create notification: %v", err)
	}

	d.RetrySweep()
	time.Sleep(200 * time.Millisecond)

	var n domain.Notification
	if err := db.First(&n, exhausted.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if n.RetryCount != 3 {
		t.Errorf("retry_count advanced past cap: %d", n.RetryCount)
	}
}

func TestPlacementTriggersNotification(t *testing.T) {
	db := newTestDB(t)
	bus := EventBus.New()
	sender := &fakeSender{}
	d := newTestDispatcher(t, db, bus, sender)
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	product := domain.Product{
		ID:    common.UUIDint64(),
		Name:  "Widget",
		Price: decimal.RequireFromString("100.00"),
		Stock: 50,
	}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}

	svc := order.NewService(db, bus)
	actor := order.Actor{ID: 1, Email: "buyer@example.com", IsAuthenticated: true}
	ord, err := svc.PlaceOrder(context.Background(), actor, []order.PlacementItem{
		{ProductID: product.ID, Quantity: 2},
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	n := waitForStatus(t, db, ord.ID, domain.NotifyStatusSent)
	if n.Email != actor.Email {
		t.Errorf("notification email = %s, want %s", n.Email, actor.Email)
	}

	var count int64
	db.Model(&domain.Notification{}).Count(&count)
	if count != 1 {
		t.Errorf("notification rows = %d, want 1", count)
	}
}

func TestFailedPlacementDoesNotNotify(t *testing.T) {
	db := newTestDB(t)
	bus := EventBus.New()
	sender := &fakeSender{}
	d := newTestDispatcher(t, db, bus, sender)
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	product := domain.Product{
		ID:    common.UUIDint64(),
		Name:  "Scarce",
		Price: decimal.RequireFromString("5.00"),
		Stock: 5,
	}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}

	svc := order.NewService(db, bus)
	actor := order.Actor{ID: 1, Email: "buyer@example.com", IsAuthenticated: true}
	_, err := svc.PlaceOrder(context.Background(), actor, []order.PlacementItem{
		{ProductID: product.ID, Quantity: 10},
	})
	if err == nil {
		t.Fatal("expected insufficient stock error")
	}

	time.Sleep(200 * time.Millisecond)
	var count int64
	db.Model(&domain.Notification{}).Count(&count)
	if count != 0 {
		t.Errorf("notification rows = %d after failed placement, want 0", count)
	}
}
