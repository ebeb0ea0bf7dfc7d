package order

import (
	"gorm.io/gorm"

	"github.com/talkincode/nextshop/internal/domain"
)

// Actor is the identity making a request. A zero Actor is anonymous.
type Actor struct {
	ID              int64
	Email           string
	IsAdmin         bool
	IsAuthenticated bool
}

// ActorFromUser builds an authenticated actor from an account row.
func ActorFromUser(u *domain.User) Actor {
	return Actor{
		ID:              u.ID,
		Email:           u.Email,
		IsAdmin:         u.IsAdmin(),
		IsAuthenticated: true,
	}
}

type Action string

const (
	ActionList         Action = "list"
	ActionRead         Action = "read"
	ActionCreate       Action = "create"
	ActionUpdateStatus Action = "update_status"
	ActionUpdate       Action = "update"
	ActionDelete       Action = "delete"
)

// CanPerform is the single authorization decision point for order actions.
// Every entry point (list, detail, status change, delete) must consult it.
//
//	action         anonymous  user            admin
//	list/read      deny       own orders      all orders
//	create         deny       allow (self)    allow (self)
//	update_status  deny       deny            allow
//	update/delete  deny       deny            allow
func CanPerform(actor Actor, action Action, target *domain.Order) bool {
	if !actor.IsAuthenticated {
		return false
	}
	switch action {
	case ActionList, ActionCreate:
		return true
	case ActionRead:
		if actor.IsAdmin {
			return true
		}
		return target != nil && target.UserID == actor.ID
	case ActionUpdateStatus, ActionUpdate, ActionDelete:
		return actor.IsAdmin
	default:
		return false
	}
}

// VisibleOrders returns a query scope restricting rows to what the actor may
// see: admins are unrestricted, regular users see only their own orders and
// anonymous actors see nothing.
func VisibleOrders(actor Actor) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if !actor.IsAuthenticated {
			return db.Where("1 = 0")
		}
		if actor.IsAdmin {
			return db
		}
		return db.Where("user_id = ?", actor.ID)
	}
}
