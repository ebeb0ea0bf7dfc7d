package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/talkincode/nextshop/internal/order"
	"github.com/talkincode/nextshop/internal/webserver"
)

type placeOrderPayload struct {
	// User is intentionally absent: an order always belongs to the
	// requesting actor, regardless of what the client sends.
	Items []order.PlacementItem `json:"items"`
}

type orderStatusPayload struct {
	Status string `json:"status" validate:"required"`
}

// registerOrderRoutes registers the order surface. Authorization is decided
// by order.CanPerform inside the service for every entry point.
func registerOrderRoutes() {
	webserver.ApiPOST("/orders", placeOrder)
	webserver.ApiGET("/orders", listOrders)
	webserver.ApiGET("/orders/export", exportOrders)
	webserver.ApiGET("/orders/stats", orderStats)
	webserver.ApiGET("/orders/:id", getOrder)
	webserver.ApiPATCH("/orders/:id/status", setOrderStatus)
	webserver.ApiPUT("/orders/:id", updateOrder)
	webserver.ApiDELETE("/orders/:id", deleteOrder)
}

func placeOrder(c echo.Context) error {
	var payload placeOrderPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse order", nil)
	}

	actor := webserver.CurrentActor(c)
	ord, err := GetOrderService().PlaceOrder(c.Request().Context(), actor, payload.Items)
	if err != nil {
		return failOrderError(c, err)
	}
	return created(c, ord)
}

func listOrders(c echo.Context) error {
	page, pageSize := parsePagination(c)
	q := order.ListQuery{
		Status:       strings.TrimSpace(c.QueryParam("status")),
		CreatedStart: strings.TrimSpace(c.QueryParam("created_start")),
		CreatedEnd:   strings.TrimSpace(c.QueryParam("created_end")),
		Sort:         strings.TrimSpace(c.QueryParam("sort")),
		SortDesc:     strings.EqualFold(c.QueryParam("order"), "DESC"),
		Page:         page,
		PageSize:     pageSize,
	}

	actor := webserver.CurrentActor(c)
	rows, total, err := GetOrderService().ListOrders(c.Request().Context(), actor, q)
	if err != nil {
		return failOrderError(c, err)
	}
	return paged(c, rows, total, page, pageSize)
}

func getOrder(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid order ID", nil)
	}

	actor := webserver.CurrentActor(c)
	ord, err := GetOrderService().GetOrder(c.Request().Context(), actor, id)
	if err != nil {
		return failOrderError(c, err)
	}
	return ok(c, ord)
}

func setOrderStatus(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid order ID", nil)
	}
	var payload orderStatusPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse status", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	actor := webserver.CurrentActor(c)
	ord, err := GetOrderService().SetStatus(c.Request().Context(), actor, id, payload.Status)
	if err != nil {
		return failOrderError(c, err)
	}
	writeOprLog(c, "set_order_status",
		fmt.Sprintf("order %d status -> %s", id, payload.Status))
	return ok(c, ord)
}

func updateOrder(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid order ID", nil)
	}
	var payload orderStatusPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse order update", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	actor := webserver.CurrentActor(c)
	ord, err := GetOrderService().UpdateOrder(c.Request().Context(), actor, id, payload.Status)
	if err != nil {
		return failOrderError(c, err)
	}
	writeOprLog(c, "update_order",
		fmt.Sprintf("order %d status -> %s", id, payload.Status))
	return ok(c, ord)
}

func deleteOrder(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid order ID", nil)
	}

	actor := webserver.CurrentActor(c)
	if err := GetOrderService().DeleteOrder(c.Request().Context(), actor, id); err != nil {
		return failOrderError(c, err)
	}
	writeOprLog(c, "delete_order", "deleted order "+strconv.FormatInt(id, 10))
	return ok(c, map[string]interface{}{"id": id})
}
