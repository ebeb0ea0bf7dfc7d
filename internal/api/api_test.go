package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/talkincode/nextshop/config"
	"github.com/talkincode/nextshop/internal/domain"
	"github.com/talkincode/nextshop/internal/order"
	"github.com/talkincode/nextshop/internal/webserver"
	"github.com/talkincode/nextshop/pkg/common"
)

func setupTestServer(t *testing.T) *gorm.DB {
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

	cfg := new(config.AppConfig)
	*cfg = *config.DefaultAppConfig
	webserver.Init(cfg, db, order.NewService(db, nil))
	return db
}

func newRequest(t *testing.T, method, target, body string, actor *order.Actor) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	c := webserver.Instance().Echo().NewContext(req, rec)
	if actor != nil {
		webserver.SetTestActor(c, *actor)
	}
	return c, rec
}

func seedProduct(t *testing.T, db *gorm.DB, name, price string, stock int) *domain.Product {
	t.Helper()
	p := &domain.Product{
		ID:        common.UUIDint64(),
		Name:      name,
		Price:     decimal.RequireFromString(price),
		Stock:     stock,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return p
}

func TestPlaceOrderHandlerIgnoresClientUserField(t *testing.T) {
	db := setupTestServer(t)
	product := seedProduct(t, db, "Widget", "100.00", 50)

	actor := order.Actor{ID: 7, Email: "u7@example.com", IsAuthenticated: true}
	body := fmt.Sprintf(`{"user_id":"999","user":999,"items":[{"product_id":"%d","quantity":2}]}`, product.ID)
	c, rec := newRequest(t, http.MethodPost, "/api/orders", body, &actor)

	if err := placeOrder(c); err != nil {
		t.Fatalf("placeOrder: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var ord domain.Order
	if err := db.First(&ord).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if ord.UserID != actor.ID {
		t.Errorf("order user = %d, want actor %d", ord.UserID, actor.ID)
	}
}

func TestPlaceOrderHandlerInsufficientStock(t *testing.T) {
	db := setupTestServer(t)
	product := seedProduct(t, db, "Scarce", "5.00", 5)

	actor := order.Actor{ID: 7, Email: "u7@example.com", IsAuthenticated: true}
	body := fmt.Sprintf(`{"items":[{"product_id":"%d","quantity":10}]}`, product.ID)
	c, rec := newRequest(t, http.MethodPost, "/api/orders", body, &actor)

	if err := placeOrder(c); err != nil {
		t.Fatalf("placeOrder: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Scarce") {
		t.Error("response does not name the offending product")
	}

	var p domain.Product
	db.First(&p, product.ID)
	if p.Stock != 5 {
		t.Errorf("stock = %d, want 5", p.Stock)
	}
}

func TestStatusEndpointRequiresAdmin(t *testing.T) {
	db := setupTestServer(t)
	product := seedProduct(t, db, "Widget", "10.00", 10)

	owner := order.Actor{ID: 7, Email: "u7@example.com", IsAuthenticated: true}
	svc := webserver.Instance().OrderService()
	ord, err := svc.PlaceOrder(context.Background(), owner, []order.PlacementItem{{ProductID: product.ID, Quantity: 1}})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	oid := strconv.FormatInt(ord.ID, 10)

	// The owner may not transition status, even on their own order.
	c, rec := newRequest(t, http.MethodPatch, "/api/orders/"+oid+"/status", `{"status":"completed"}`, &owner)
	c.SetParamNames("id")
	c.SetParamValues(oid)
	if err := setOrderStatus(c); err != nil {
		t.Fatalf("setOrderStatus: %v", err)
	}
	if rec.Code != http.StatusForbidden {
		t.Errorf("owner status change = %d, want 403", rec.Code)
	}

	admin := order.Actor{ID: 1, Email: "admin@example.com", IsAdmin: true, IsAuthenticated: true}
	c, rec = newRequest(t, http.MethodPatch, "/api/orders/"+oid+"/status", `{"status":"completed"}`, &admin)
	c.SetParamNames("id")
	c.SetParamValues(oid)
	if err := setOrderStatus(c); err != nil {
		t.Fatalf("setOrderStatus: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("admin status change = %d, body %s", rec.Code, rec.Body.String())
	}

	var reloaded domain.Order
	db.First(&reloaded, ord.ID)
	if reloaded.Status != domain.OrderStatusCompleted {
		t.Errorf("status = %s, want completed", reloaded.Status)
	}

	// An audit row is written for the admin mutation.
	var logs int64
	db.Model(&domain.SysOprLog{}).Count(&logs)
	if logs != 1 {
		t.Errorf("audit rows = %d, want 1", logs)
	}
}

func TestListOrdersHandlerScopesVisibility(t *testing.T) {
	db := setupTestServer(t)
	product := seedProduct(t, db, "Widget", "10.00", 100)
	svc := webserver.Instance().OrderService()

	mine := order.Actor{ID: 1, Email: "u1@example.com", IsAuthenticated: true}
	other := order.Actor{ID: 2, Email: "u2@example.com", IsAuthenticated: true}
	for _, a := range []order.Actor{mine, other, other} {
		if _, err := svc.PlaceOrder(context.Background(), a, []order.PlacementItem{{ProductID: product.ID, Quantity: 1}}); err != nil {
			t.Fatalf("PlaceOrder: %v", err)
		}
	}

	c, rec := newRequest(t, http.MethodGet, "/api/orders", "", &mine)
	if err := listOrders(c); err != nil {
		t.Fatalf("listOrders: %v", err)
	}
	var resp struct {
		Total int64 `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 1 {
		t.Errorf("regular user total = %d, want 1", resp.Total)
	}

	admin := order.Actor{ID: 9, Email: "a@example.com", IsAdmin: true, IsAuthenticated: true}
	c, rec = newRequest(t, http.MethodGet, "/api/orders", "", &admin)
	if err := listOrders(c); err != nil {
		t.Fatalf("listOrders admin: %v", err)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 3 {
		t.Errorf("admin total = %d, want 3", resp.Total)
	}
}

func TestGetOrderHandlerHidesForeignOrders(t *testing.T) {
	db := setupTestServer(t)
	product := seedProduct(t, db, "Widget", "10.00", 10)
	svc := webserver.Instance().OrderService()

	owner := order.Actor{ID: 1, Email: "u1@example.com", IsAuthenticated: true}
	ord, err := svc.PlaceOrder(context.Background(), owner, []order.PlacementItem{{ProductID: product.ID, Quantity: 1}})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	oid := strconv.FormatInt(ord.ID, 10)

	stranger := order.Actor{ID: 2, Email: "u2@example.com", IsAuthenticated: true}
	c, rec := newRequest(t, http.MethodGet, "/api/orders/"+oid, "", &stranger)
	c.SetParamNames("id")
	c.SetParamValues(oid)
	if err := getOrder(c); err != nil {
		t.Fatalf("getOrder: %v", err)
	}
	// Indistinguishable from a missing order.
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign order read = %d, want 404", rec.Code)
	}
}

func TestProductMutationRequiresAdmin(t *testing.T) {
	setupTestServer(t)

	user := order.Actor{ID: 1, Email: "u1@example.com", IsAuthenticated: true}
	c, rec := newRequest(t, http.MethodPost, "/api/products", `{"name":"X","price":"1.00","stock":5}`, &user)
	if err := createProduct(c); err != nil {
		t.Fatalf("createProduct: %v", err)
	}
	if rec.Code != http.StatusForbidden {
		t.Errorf("user create product = %d, want 403", rec.Code)
	}

	admin := order.Actor{ID: 2, Email: "a@example.com", IsAdmin: true, IsAuthenticated: true}
	c, rec = newRequest(t, http.MethodPost, "/api/products", `{"name":"X","price":"1.00","stock":5}`, &admin)
	if err := createProduct(c); err != nil {
		t.Fatalf("createProduct admin: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("admin create product = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestRegisterAndLogin(t *testing.T) {
	db := setupTestServer(t)

	c, rec := newRequest(t, http.MethodPost, "/api/auth/register",
		`{"email":"shopper@example.com","full_name":"Shopper","password":"secret1"}`, nil)
	if err := registerAccount(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("register = %d, body %s", rec.Code, rec.Body.String())
	}

	// Duplicate email rejected
	c, rec = newRequest(t, http.MethodPost, "/api/auth/register",
		`{"email":"shopper@example.com","full_name":"Shopper","password":"secret1"}`, nil)
	if err := registerAccount(c); err != nil {
		t.Fatalf("register dup: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate register = %d, want 409", rec.Code)
	}

	var u domain.User
	if err := db.Where("email = ?", "shopper@example.com").First(&u).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}
	if u.Password == "secret1" {
		t.Error("password stored in plaintext")
	}
	if u.Level != domain.UserLevelUser {
		t.Errorf("level = %s, want user", u.Level)
	}

	c, rec = newRequest(t, http.MethodPost, "/api/auth/login",
		`{"email":"shopper@example.com","password":"secret1"}`, nil)
	if err := login(c); err != nil {
		t.Fatalf("login: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("login = %d, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "token") {
		t.Error("login response missing token")
	}

	c, rec = newRequest(t, http.MethodPost, "/api/auth/login",
		`{"email":"shopper@example.com","password":"wrong-pass"}`, nil)
	if err := login(c); err != nil {
		t.Fatalf("login wrong password: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password login = %d, want 401", rec.Code)
	}
}

func TestMetricsEndpointRequiresAdmin(t *testing.T) {
	setupTestServer(t)

	user := order.Actor{ID: 1, Email: "u1@example.com", IsAuthenticated: true}
	c, rec := newRequest(t, http.MethodGet, "/api/metrics/nextshop_orders_placed", "", &user)
	c.SetParamNames("name")
	c.SetParamValues("nextshop_orders_placed")
	if err := metricsQuery(c); err != nil {
		t.Fatalf("metricsQuery: %v", err)
	}
	if rec.Code != http.StatusForbidden {
		t.Errorf("user metrics read = %d, want 403", rec.Code)
	}

	admin := order.Actor{ID: 2, Email: "a@example.com", IsAdmin: true, IsAuthenticated: true}
	c, rec = newRequest(t, http.MethodGet, "/api/metrics/nextshop_orders_placed", "", &admin)
	c.SetParamNames("name")
	c.SetParamValues("nextshop_orders_placed")
	if err := metricsQuery(c); err != nil {
		t.Fatalf("metricsQuery admin: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("admin metrics read = %d, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "total") {
		t.Error("metrics response missing running total")
	}
}
