package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/360EntSecGroup-Skylar/excelize"
	"github.com/labstack/echo/v4"
	"github.com/montanaflynn/stats"
	"github.com/spf13/cast"

	"github.com/talkincode/nextshop/internal/domain"
	"github.com/talkincode/nextshop/internal/order"
	"github.com/talkincode/nextshop/internal/webserver"
	"github.com/talkincode/nextshop/pkg/metrics"
)

// registerMetricsRoutes exposes the operational time series to admins.
func registerMetricsRoutes() {
	webserver.ApiGET("/metrics/:name", metricsQuery)
}

// exportOrders streams an xlsx report of all orders. Admin only.
func exportOrders(c echo.Context) error {
	actor := webserver.CurrentActor(c)
	if !order.CanPerform(actor, order.ActionList, nil) || !actor.IsAdmin {
		return fail(c, http.StatusForbidden, "FORBIDDEN", "Admin privileges required", nil)
	}

	var rows []domain.Order
	if err := GetDB(c).Order("created_at DESC").Find(&rows).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query orders", err.Error())
	}

	xlsx := excelize.NewFile()
	const sheet = "Sheet1"
	headers := []string{"Order ID", "User ID", "Status", "Total Price", "Created At"}
	for i, h := range headers {
		xlsx.SetCellValue(sheet, fmt.Sprintf("%c1", 'A'+i), h)
	}
	for i, ord := range rows {
		line := i + 2
		xlsx.SetCellValue(sheet, fmt.Sprintf("A%d", line), fmt.Sprintf("%d", ord.ID))
		xlsx.SetCellValue(sheet, fmt.Sprintf("B%d", line), fmt.Sprintf("%d", ord.UserID))
		xlsx.SetCellValue(sheet, fmt.Sprintf("C%d", line), ord.Status)
		xlsx.SetCellValue(sheet, fmt.Sprintf("D%d", line), ord.TotalPrice.StringFixed(2))
		xlsx.SetCellValue(sheet, fmt.Sprintf("E%d", line), ord.CreatedAt.Format("2006-01-02 15:04:05"))
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="orders.xlsx"`)
	c.Response().Header().Set(echo.HeaderContentType,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Response().WriteHeader(http.StatusOK)
	return xlsx.Write(c.Response())
}

// metricsQuery returns the datapoints of one metric, defaulting to the last
// 24 hours, plus the in-process running total for counters.
func metricsQuery(c echo.Context) error {
	if err := requireAdmin(c); err != nil {
		return err
	}

	name := c.Param("name")
	end := time.Now().Unix()
	start := end - 24*3600
	if hours := cast.ToInt64(c.QueryParam("hours")); hours > 0 {
		start = end - hours*3600
	}

	points, err := metrics.Select(name, start, end)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "METRICS_ERROR", "Failed to query metric", err.Error())
	}
	return ok(c, map[string]interface{}{
		"name":   name,
		"total":  metrics.CounterValue(name),
		"points": points,
	})
}

// orderStats summarizes order totals for the admin dashboard.
func orderStats(c echo.Context) error {
	actor := webserver.CurrentActor(c)
	if !actor.IsAdmin {
		return fail(c, http.StatusForbidden, "FORBIDDEN", "Admin privileges required", nil)
	}

	var rows []domain.Order
	if err := GetDB(c).Find(&rows).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query orders", err.Error())
	}

	byStatus := make(map[string]int64, len(domain.OrderStatusValues))
	for _, s := range domain.OrderStatusValues {
		byStatus[s] = 0
	}
	totals := make([]float64, 0, len(rows))
	for _, ord := range rows {
		byStatus[ord.Status]++
		f, _ := ord.TotalPrice.Float64()
		totals = append(totals, f)
	}

	summary := map[string]interface{}{
		"count":     len(rows),
		"by_status": byStatus,
	}
	if len(totals) > 0 {
		mean, _ := stats.Mean(totals)
		median, _ := stats.Median(totals)
		min, _ := stats.Min(totals)
		max, _ := stats.Max(totals)
		p95, _ := stats.Percentile(totals, 95)
		sum, _ := stats.Sum(totals)
		summary["total_revenue"] = sum
		summary["mean_total"] = mean
		summary["median_total"] = median
		summary["min_total"] = min
		summary["max_total"] = max
		summary["p95_total"] = p95
	}

	return ok(c, summary)
}
