package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/talkincode/nextshop/internal/domain"
	"github.com/talkincode/nextshop/internal/order"
	"github.com/talkincode/nextshop/internal/webserver"
	"github.com/talkincode/nextshop/pkg/common"
)

// GetDB returns the request-scoped database handle.
func GetDB(c echo.Context) *gorm.DB {
	return webserver.Instance().DB().WithContext(c.Request().Context())
}

// GetOrderService returns the shared order service.
func GetOrderService() *order.Service {
	return webserver.Instance().OrderService()
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"code": 0,
		"data": data,
	})
}

func created(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"code": 0,
		"data": data,
	})
}

func fail(c echo.Context, status int, code, message string, detail interface{}) error {
	return c.JSON(status, map[string]interface{}{
		"code":    code,
		"message": message,
		"detail":  detail,
	})
}

func paged(c echo.Context, rows interface{}, total int64, page, pageSize int) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"code":      0,
		"data":      rows,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func parsePagination(c echo.Context) (page, pageSize int) {
	page = 1
	pageSize = 20
	if p, err := strconv.Atoi(c.QueryParam("page")); err == nil && p > 0 {
		page = p
	}
	if ps, err := strconv.Atoi(c.QueryParam("perPage")); err == nil && ps > 0 && ps <= 500 {
		pageSize = ps
	} else if ps, err := strconv.Atoi(c.QueryParam("pageSize")); err == nil && ps > 0 && ps <= 500 {
		pageSize = ps
	}
	return page, pageSize
}

func parseIDParam(c echo.Context, name string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(c.Param(name)), 10, 64)
}

func handleValidationError(c echo.Context, err error) error {
	if verrs, okErrs := err.(validator.ValidationErrors); okErrs {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[strings.ToLower(fe.Field())] = fe.Tag()
		}
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Validation failed", fields)
	}
	return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Validation failed", err.Error())
}

// failOrderError maps the order error taxonomy onto HTTP responses.
func failOrderError(c echo.Context, err error) error {
	if ve, okVe := order.AsValidation(err); okVe {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", ve.Message,
			map[string]string{ve.Field: ve.Message})
	}
	if se, okSe := order.AsInsufficientStock(err); okSe {
		return fail(c, http.StatusConflict, "INSUFFICIENT_STOCK",
			"Not enough stock for product: "+se.Product,
			map[string]string{"product": se.Product})
	}
	switch {
	case errors.Is(err, order.ErrForbidden):
		return fail(c, http.StatusForbidden, "FORBIDDEN", "Operation not permitted", nil)
	case errors.Is(err, order.ErrNotFound):
		return fail(c, http.StatusNotFound, "ORDER_NOT_FOUND", "Order not found", nil)
	default:
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Order operation failed", err.Error())
	}
}

// writeOprLog records an admin mutation for audit.
func writeOprLog(c echo.Context, action, desc string) {
	actor := webserver.CurrentActor(c)
	GetDB(c).Create(&domain.SysOprLog{
		ID:        common.UUIDint64(),
		OprName:   actor.Email,
		OprIp:     c.RealIP(),
		OptAction: action,
		OptDesc:   desc,
		OptTime:   time.Now(),
	})
}
