package server

import (
	"net/http"

	"mall/internal/config"
	"mall/internal/handler"
	"mall/internal/middleware"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

type Handlers struct {
	Order      *handler.OrderHandler
	Welfare    *handler.WelfareHandler
	Payment    *handler.PaymentHandler
	AdminOrder *handler.AdminOrderHandler
}

// echoを組み立てる
func New(cfg config.Config, h Handlers, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLogger(logger))

	RegisterRoutes(e, cfg, h)
	return e
}

func RegisterRoutes(e *echo.Echo, cfg config.Config, h Handlers) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	h.Order.RegisterRoutes(e, cfg)
	h.Welfare.RegisterRoutes(e)
	h.Payment.RegisterRoutes(e, cfg)
	h.AdminOrder.RegisterRoutes(e, cfg)
}
