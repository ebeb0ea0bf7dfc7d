package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/talkincode/nextshop/internal/domain"
	"github.com/talkincode/nextshop/internal/webserver"
	"github.com/talkincode/nextshop/pkg/common"
)

type productPayload struct {
	Name  string          `json:"name" validate:"required,min=1,max=255"`
	Price decimal.Decimal `json:"price"`
	Stock *int            `json:"stock" validate:"required"`
}

// registerProductRoutes registers catalog endpoints. Reads are open to any
// authenticated account; mutations are admin only.
func registerProductRoutes() {
	webserver.ApiGET("/products", listProducts)
	webserver.ApiGET("/products/:id", getProduct)
	webserver.ApiPOST("/products", createProduct)
	webserver.ApiPUT("/products/:id", updateProduct)
	webserver.ApiDELETE("/products/:id", deleteProduct)
	webserver.ApiPOST("/products/import", importProducts)
}

func requireAdmin(c echo.Context) error {
	if !webserver.CurrentActor(c).IsAdmin {
		return fail(c, http.StatusForbidden, "FORBIDDEN", "Admin privileges required", nil)
	}
	return nil
}

func listProducts(c echo.Context) error {
	page, pageSize := parsePagination(c)

	// Filters: q or name
	q := strings.TrimSpace(c.QueryParam("q"))
	nameFilter := strings.TrimSpace(c.QueryParam("name"))

	// Sorting: field and order
	sortField := strings.TrimSpace(c.QueryParam("sort"))
	direction := strings.ToUpper(strings.TrimSpace(c.QueryParam("order")))
	if direction != "ASC" && direction != "DESC" {
		direction = "ASC"
	}

	// whitelist allowed sort columns to avoid SQL injection
	allowed := map[string]string{
		"id":         "id",
		"name":       "name",
		"price":      "price",
		"stock":      "stock",
		"created_at": "created_at",
	}
	sortCol, okSort := allowed[sortField]
	if !okSort || sortCol == "" {
		sortCol = "name"
	}

	db := GetDB(c).Model(&domain.Product{})
	if q != "" {
		if strings.EqualFold(db.Name(), "postgres") { //nolint:staticcheck
			db = db.Where("name ILIKE ?", "%"+q+"%")
		} else {
			db = db.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(q)+"%")
		}
	}
	if nameFilter != "" {
		db = db.Where("name = ?", nameFilter)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query products", err.Error())
	}

	var rows []domain.Product
	if err := db.Order(sortCol + " " + direction).Offset((page - 1) * pageSize).Limit(pageSize).Find(&rows).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query products", err.Error())
	}

	return paged(c, rows, total, page, pageSize)
}

func getProduct(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	var p domain.Product
	if err := GetDB(c).Where("id = ?", id).First(&p).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "PRODUCT_NOT_FOUND", "Product not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query product", err.Error())
	}
	return ok(c, p)
}

func createProduct(c echo.Context) error {
	if err := requireAdmin(c); err != nil {
		return err
	}
	var payload productPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse product", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}
	if payload.Price.IsNegative() {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Price must not be negative", nil)
	}
	if *payload.Stock < 0 {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Stock must not be negative", nil)
	}

	p := domain.Product{
		ID:        common.UUIDint64(),
		Name:      strings.TrimSpace(payload.Name),
		Price:     payload.Price.Round(2),
		Stock:     *payload.Stock,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := GetDB(c).Create(&p).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create product", err.Error())
	}
	return created(c, p)
}

func updateProduct(c echo.Context) error {
	if err := requireAdmin(c); err != nil {
		return err
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	var p domain.Product
	if err := GetDB(c).Where("id = ?", id).First(&p).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "PRODUCT_NOT_FOUND", "Product not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query product", err.Error())
	}

	var payload productPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse product", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}
	if payload.Price.IsNegative() {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Price must not be negative", nil)
	}
	if *payload.Stock < 0 {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Stock must not be negative", nil)
	}

	// Price updates never touch existing order items: their price snapshots
	// were taken at placement time.
	p.Name = strings.TrimSpace(payload.Name)
	p.Price = payload.Price.Round(2)
	p.Stock = *payload.Stock
	p.UpdatedAt = time.Now()

	if err := GetDB(c).Save(&p).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update product", err.Error())
	}
	return ok(c, p)
}

func deleteProduct(c echo.Context) error {
	if err := requireAdmin(c); err != nil {
		return err
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}

	// Prevent deletion while order items still reference this product
	var itemCount int64
	GetDB(c).Model(&domain.OrderItem{}).Where("product_id = ?", id).Count(&itemCount)
	if itemCount > 0 {
		return fail(c, http.StatusConflict, "PRODUCT_IN_USE",
			"Product is referenced by existing orders and cannot be deleted",
			map[string]interface{}{"order_items": itemCount})
	}

	if err := GetDB(c).Where("id = ?", id).Delete(&domain.Product{}).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete product", err.Error())
	}
	writeOprLog(c, "delete_product", "deleted product "+c.Param("id"))
	return ok(c, map[string]interface{}{"id": id})
}

type productCsvRow struct {
	Name  string `csv:"name"`
	Price string `csv:"price"`
	Stock int    `csv:"stock"`
}

// importProducts bulk-creates or updates catalog rows from an uploaded CSV
// with columns name,price,stock. Matching is by product name.
func importProducts(c echo.Context) error {
	if err := requireAdmin(c); err != nil {
		return err
	}

	file, err := c.FormFile("file")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Missing CSV file upload", nil)
	}
	src, err := file.Open()
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to open upload", nil)
	}
	defer src.Close()

	var rows []productCsvRow
	if err := gocsv.Unmarshal(src, &rows); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_CSV", "Unable to parse CSV", err.Error())
	}

	var imported, updated int
	for i, row := range rows {
		name := strings.TrimSpace(row.Name)
		if name == "" {
			return fail(c, http.StatusBadRequest, "INVALID_CSV", "Row with empty name",
				map[string]interface{}{"row": i + 1})
		}
		price, err := decimal.NewFromString(strings.TrimSpace(row.Price))
		if err != nil || price.IsNegative() {
			return fail(c, http.StatusBadRequest, "INVALID_CSV", "Row with invalid price",
				map[string]interface{}{"row": i + 1, "name": name})
		}
		if row.Stock < 0 {
			return fail(c, http.StatusBadRequest, "INVALID_CSV", "Row with negative stock",
				map[string]interface{}{"row": i + 1, "name": name})
		}

		var p domain.Product
		err = GetDB(c).Where("name = ?", name).First(&p).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			p = domain.Product{
				ID:        common.UUIDint64(),
				Name:      name,
				Price:     price.Round(2),
				Stock:     row.Stock,
				CreatedAt: time.Now(),
				UpdatedAt: time.Now(),
			}
			if err := GetDB(c).Create(&p).Error; err != nil {
				return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to import products", err.Error())
			}
			imported++
		case err != nil:
			return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to import products", err.Error())
		default:
			p.Price = price.Round(2)
			p.Stock = row.Stock
			p.UpdatedAt = time.Now()
			if err := GetDB(c).Save(&p).Error; err != nil {
				return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to import products", err.Error())
			}
			updated++
		}
	}

	writeOprLog(c, "import_products", file.Filename)
	return ok(c, map[string]interface{}{"imported": imported, "updated": updated})
}
