package handler

import (
	"net/http"
	"strconv"

	"mall/internal/config"
	"mall/internal/domain/model"
	"mall/internal/middleware"
	"mall/internal/usecase"

	"github.com/labstack/echo/v4"
)

type OrderHandler struct {
	uc *usecase.OrderUsecase
}

func NewOrderHandler(uc *usecase.OrderUsecase) *OrderHandler {
	return &OrderHandler{uc: uc}
}

type OrderCreateRequest struct {
	Items      []usecase.CartLineInput `json:"items"`
	Address    model.AddressSnapshot   `json:"address"`
	InviteCode string                  `json:"inviteCode"`
	BuyerNote  string                  `json:"buyerNote"`
}

func (h *OrderHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	auth := middleware.AuthJWT(cfg)

	g := e.Group("/api/v1/orders")
	g.Use(auth)
	g.POST("", h.create)

	me := e.Group("/api/v1/me/orders")
	me.Use(auth)
	me.GET("", h.list)
	me.GET("/:orderNo", h.detail)
	me.POST("/:orderNo/cancel", h.cancel)
}

// 注文作成。200で注文番号と状態を返す。
// 状態は PAYMENT_ENABLED（既定true）なら PENDING_PAYMENT、falseなら支払いなしで WAIT_SHIP
func (h *OrderHandler) create(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req OrderCreateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	out, err := h.uc.CreateOrder(c.Request().Context(), userID, usecase.CreateOrderInput{
		Items:      req.Items,
		Address:    req.Address,
		InviteCode: req.InviteCode,
		BuyerNote:  req.BuyerNote,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) list(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	// page（default 1）
	page := 1
	if v := c.QueryParam("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return badRequest(c, "invalid page")
		}
		page = p
	}

	// pageSize（default 10）
	pageSize := 10
	if v := c.QueryParam("pageSize"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil {
			return badRequest(c, "invalid pageSize")
		}
		pageSize = l
	}

	out, err := h.uc.ListMyOrders(c.Request().Context(), userID, page, pageSize)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) detail(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	out, err := h.uc.GetMyOrderDetail(c.Request().Context(), userID, c.Param("orderNo"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) cancel(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	if err := h.uc.CancelMyOrder(c.Request().Context(), userID, c.Param("orderNo")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{OK: true})
}
