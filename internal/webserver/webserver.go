package webserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/talkincode/nextshop/config"
	"github.com/talkincode/nextshop/internal/order"
)

var server *WebServer

// WebServer wraps echo with the application's middleware stack: recovery,
// zap request logging and JWT authentication for everything under /api
// except the public auth endpoints.
type WebServer struct {
	root     *echo.Echo
	cfg      *config.AppConfig
	db       *gorm.DB
	orderSvc *order.Service
	api      *echo.Group
	pub      *echo.Group
}

// Init builds the package singleton server. Handlers register routes through
// ApiGET / PubPOST and friends afterwards.
func Init(cfg *config.AppConfig, db *gorm.DB, orderSvc *order.Service) *WebServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewWebValidator()
	e.Use(middleware.Recover())
	e.Use(ZapLoggerMiddleware())

	s := &WebServer{
		root:     e,
		cfg:      cfg,
		db:       db,
		orderSvc: orderSvc,
	}

	s.pub = e.Group("/api/auth")
	s.api = e.Group("/api",
		echojwt.WithConfig(echojwt.Config{
			SigningKey: []byte(cfg.Web.JwtSecret),
			ErrorHandler: func(c echo.Context, err error) error {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing token")
			},
		}),
		actorMiddleware(),
	)

	server = s
	return s
}

// Instance returns the initialized server.
func Instance() *WebServer {
	return server
}

func (s *WebServer) DB() *gorm.DB {
	return s.db
}

func (s *WebServer) OrderService() *order.Service {
	return s.orderSvc
}

func (s *WebServer) Config() *config.AppConfig {
	return s.cfg
}

// Echo exposes the underlying engine for tests.
func (s *WebServer) Echo() *echo.Echo {
	return s.root
}

func (s *WebServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Web.Host, s.cfg.Web.Port)
	zap.L().Info("starting web server", zap.String("listen", addr))
	return s.root.Start(addr)
}

func (s *WebServer) Shutdown(ctx context.Context) error {
	return s.root.Shutdown(ctx)
}

// ApiGET registers an authenticated GET route
func ApiGET(path string, h echo.HandlerFunc) {
	server.api.GET(path, h)
}

// ApiPOST registers an authenticated POST route
func ApiPOST(path string, h echo.HandlerFunc) {
	server.api.POST(path, h)
}

// ApiPUT registers an authenticated PUT route
func ApiPUT(path string, h echo.HandlerFunc) {
	server.api.PUT(path, h)
}

// ApiPATCH registers an authenticated PATCH route
func ApiPATCH(path string, h echo.HandlerFunc) {
	server.api.PATCH(path, h)
}

// ApiDELETE registers an authenticated DELETE route
func ApiDELETE(path string, h echo.HandlerFunc) {
	server.api.DELETE(path, h)
}

// PubPOST registers a public POST route under /api/auth
func PubPOST(path string, h echo.HandlerFunc) {
	server.pub.POST(path, h)
}

// ZapLoggerMiddleware logs one line per request through the global zap logger.
func ZapLoggerMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			req := c.Request()
			res := c.Response()
			zap.L().Debug("http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", res.Status),
				zap.Duration("latency", time.Since(start)),
				zap.String("remote", c.RealIP()))
			return err
		}
	}
}
