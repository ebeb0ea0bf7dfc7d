package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/asaskevich/EventBus"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/talkincode/nextshop/internal/domain"
	"github.com/talkincode/nextshop/pkg/common"
	"github.com/talkincode/nextshop/pkg/metrics"
)

// TopicOrderCreated carries (orderID int64, email string) after a placement
// transaction commits. Subscribers must never be able to affect the commit.
const TopicOrderCreated = "order.created"

// PlacementItem is one requested line of a new order.
type PlacementItem struct {
	ProductID int64 `json:"product_id,string"`
	Quantity  int   `json:"quantity"`
}

// Settings reads runtime order limits (sys_config). A nil Settings enforces
// no item cap.
type Settings interface {
	GetInt(category, name string) int
}

// Service implements order placement, queries, status transitions and
// deletion. All stock accounting happens inside a single database
// transaction per placement; row locks on product rows are the only
// concurrency control.
type Service struct {
	db       *gorm.DB
	bus      EventBus.Bus
	settings Settings
}

func NewService(db *gorm.DB, bus EventBus.Bus) *Service {
	return &Service{db: db, bus: bus}
}

// WithSettings attaches the runtime settings source.
func (s *Service) WithSettings(settings Settings) *Service {
	s.settings = settings
	return s
}

// PlaceOrder atomically reserves stock for every requested item, snapshots
// unit prices and persists the order with its computed total. On any failure
// the entire transaction rolls back and no partial state remains. The order
// always belongs to the requesting actor.
func (s *Service) PlaceOrder(ctx context.Context, actor Actor, items []PlacementItem) (*domain.Order, error) {
	if !CanPerform(actor, ActionCreate, nil) {
		return nil, ErrForbidden
	}
	if len(items) == 0 {
		return nil, &ValidationError{Field: "items", Message: "order must contain at least one item"}
	}
	if s.settings != nil {
		if maxItems := s.settings.GetInt("orders", "MaxItemsPerOrder"); maxItems > 0 && len(items) > maxItems {
			return nil, &ValidationError{
				Field:   "items",
				Message: fmt.Sprintf("order cannot contain more than %d items", maxItems),
			}
		}
	}
	seen := make(map[int64]bool, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, &ValidationError{Field: "quantity", Message: "quantity must be greater than 0"}
		}
		if seen[it.ProductID] {
			return nil, &ValidationError{
				Field:   "product_id",
				Message: fmt.Sprintf("product %d appears more than once", it.ProductID),
			}
		}
		seen[it.ProductID] = true
	}

	ord := &domain.Order{
		ID:         common.UUIDint64(),
		UserID:     actor.ID,
		Status:     domain.OrderStatusNew,
		TotalPrice: decimal.Zero,
		CreatedAt:  time.Now(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(ord).Error; err != nil {
			return errors.Wrap(err, "create order")
		}

		total := decimal.Zero
		for _, it := range items {
			var product domain.Product
			q := tx.Where("id = ?", it.ProductID)
			// sqlite serializes writers on its own and rejects FOR UPDATE
			if strings.EqualFold(tx.Name(), "postgres") {
				q = q.Clauses(clause.Locking{Strength: "UPDATE"})
			}
			err := q.First(&product).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &ValidationError{
					Field:   "product_id",
					Message: fmt.Sprintf("unknown product %d", it.ProductID),
				}
			}
			if err != nil {
				return errors.Wrap(err, "load product")
			}

			if product.Stock < it.Quantity {
				return &InsufficientStockError{Product: product.Name}
			}

			if err := tx.Model(&domain.Product{}).Where("id = ?", product.ID).
				Updates(map[string]interface{}{
					"stock":      gorm.Expr("stock - ?", it.Quantity),
					"updated_at": time.Now(),
				}).Error; err != nil {
				return errors.Wrap(err, "decrement stock")
			}

			item := domain.OrderItem{
				ID:        common.UUIDint64(),
				OrderID:   ord.ID,
				ProductID: product.ID,
				Quantity:  it.Quantity,
				Price:     product.Price,
			}
			if err := tx.Create(&item).Error; err != nil {
				return errors.Wrap(err, "create order item")
			}
			ord.Items = append(ord.Items, item)

			total = total.Add(product.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}

		ord.TotalPrice = total
		if err := tx.Model(&domain.Order{}).Where("id = ?", ord.ID).
			Update("total_price", total).Error; err != nil {
			return errors.Wrap(err, "update order total")
		}
		return nil
	})
	if err != nil {
		ord.Items = nil
		return nil, err
	}

	metrics.IncrCounter("nextshop_orders_placed", 1)
	zap.L().Info("order placed",
		zap.Int64("order_id", ord.ID),
		zap.Int64("user_id", actor.ID),
		zap.String("total", ord.TotalPrice.StringFixed(2)),
		zap.Int("items", len(ord.Items)))

	// Post-commit notification. Subscriber failures are isolated from the
	// already-committed order.
	if s.bus != nil {
		s.bus.Publish(TopicOrderCreated, ord.ID, actor.Email)
	}
	return ord, nil
}

// GetOrder returns one order with items, scoped to the actor's visibility.
func (s *Service) GetOrder(ctx context.Context, actor Actor, id int64) (*domain.Order, error) {
	if !actor.IsAuthenticated {
		return nil, ErrForbidden
	}
	var ord domain.Order
	err := s.db.WithContext(ctx).Scopes(VisibleOrders(actor)).
		Preload("Items").Where("id = ?", id).First(&ord).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "query order")
	}
	if !CanPerform(actor, ActionRead, &ord) {
		return nil, ErrNotFound
	}
	return &ord, nil
}

// ListQuery filters and sorts an order listing.
type ListQuery struct {
	Status       string
	CreatedStart string
	CreatedEnd   string
	Sort         string
	SortDesc     bool
	Page         int
	PageSize     int
}

// listSortColumns whitelists sortable columns to avoid SQL injection.
var listSortColumns = map[string]string{
	"":            "created_at",
	"created_at":  "created_at",
	"total_price": "total_price",
}

// ListOrders returns the actor-visible subset of orders.
func (s *Service) ListOrders(ctx context.Context, actor Actor, q ListQuery) ([]domain.Order, int64, error) {
	if !CanPerform(actor, ActionList, nil) {
		return nil, 0, ErrForbidden
	}

	db := s.db.WithContext(ctx).Model(&domain.Order{}).Scopes(VisibleOrders(actor))
	if q.Status != "" {
		if !domain.ValidOrderStatus(q.Status) {
			return nil, 0, &ValidationError{Field: "status", Message: "unknown status value"}
		}
		db = db.Where("status = ?", q.Status)
	}
	if q.CreatedStart != "" {
		t, err := dateparse.ParseAny(q.CreatedStart)
		if err != nil {
			return nil, 0, &ValidationError{Field: "created_start", Message: "unrecognized date"}
		}
		db = db.Where("created_at >= ?", t)
	}
	if q.CreatedEnd != "" {
		t, err := dateparse.ParseAny(q.CreatedEnd)
		if err != nil {
			return nil, 0, &ValidationError{Field: "created_end", Message: "unrecognized date"}
		}
		db = db.Where("created_at <= ?", t)
	}

	sortCol, okCol := listSortColumns[strings.TrimSpace(q.Sort)]
	if !okCol {
		return nil, 0, &ValidationError{Field: "sort", Message: "sort must be created_at or total_price"}
	}
	direction := "ASC"
	if q.SortDesc {
		direction = "DESC"
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count orders")
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	pageSize := q.PageSize
	if pageSize < 1 || pageSize > 500 {
		pageSize = 20
	}

	var rows []domain.Order
	err := db.Preload("Items").
		Order(sortCol + " " + direction).
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&rows).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "query orders")
	}
	return rows, total, nil
}

// SetStatus updates only the status column of an order. Stock is not
// restored on cancellation; cancellation is a status flag only.
func (s *Service) SetStatus(ctx context.Context, actor Actor, id int64, status string) (*domain.Order, error) {
	return s.updateStatus(ctx, actor, ActionUpdateStatus, id, status)
}

// UpdateOrder is the admin full-update entry point. Status is the only
// mutable order field, so it shares the status update path but checks the
// broader update permission.
func (s *Service) UpdateOrder(ctx context.Context, actor Actor, id int64, status string) (*domain.Order, error) {
	return s.updateStatus(ctx, actor, ActionUpdate, id, status)
}

func (s *Service) updateStatus(ctx context.Context, actor Actor, action Action, id int64, status string) (*domain.Order, error) {
	if !CanPerform(actor, action, nil) {
		return nil, ErrForbidden
	}
	if !domain.ValidOrderStatus(status) {
		return nil, &ValidationError{Field: "status", Message: "unknown status value"}
	}

	var ord domain.Order
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&ord).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "query order")
	}

	if err := s.db.WithContext(ctx).Model(&domain.Order{}).
		Where("id = ?", id).Update("status", status).Error; err != nil {
		return nil, errors.Wrap(err, "update order status")
	}
	ord.Status = status

	if err := s.db.WithContext(ctx).Preload("Items").
		Where("id = ?", id).First(&ord).Error; err != nil {
		return nil, errors.Wrap(err, "reload order")
	}

	zap.L().Info("order status updated",
		zap.Int64("order_id", id),
		zap.String("status", status),
		zap.Int64("operator", actor.ID))
	return &ord, nil
}

// DeleteOrder removes an order and its items. Stock consumed by the order is
// not restored.
func (s *Service) DeleteOrder(ctx context.Context, actor Actor, id int64) error {
	if !CanPerform(actor, ActionDelete, nil) {
		return ErrForbidden
	}

	var ord domain.Order
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&ord).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return errors.Wrap(err, "query order")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", id).Delete(&domain.OrderItem{}).Error; err != nil {
			return errors.Wrap(err, "delete order items")
		}
		if err := tx.Where("id = ?", id).Delete(&domain.Order{}).Error; err != nil {
			return errors.Wrap(err, "delete order")
		}
		return nil
	})
}
