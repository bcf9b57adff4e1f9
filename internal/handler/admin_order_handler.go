package handler

import (
	"net/http"
	"strconv"
	"time"

	"mall/internal/config"
	"mall/internal/domain/model"
	"mall/internal/middleware"
	"mall/internal/repository"
	"mall/internal/usecase"

	"github.com/labstack/echo/v4"
)

type AdminOrderHandler struct {
	uc *usecase.AdminOrderUsecase
}

func NewAdminOrderHandler(uc *usecase.AdminOrderUsecase) *AdminOrderHandler {
	return &AdminOrderHandler{uc: uc}
}

type OrderStatusUpdateRequest struct {
	Status string `json:"status"`
}

type OrderCloseRequest struct {
	Reason string `json:"reason"`
}

type OrderReopenRequest struct {
	TargetStatus string `json:"targetStatus"`
	Reason       string `json:"reason"`
}

func (h *AdminOrderHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	admin := e.Group("/api/v1/admin")
	admin.Use(middleware.AdminToken(cfg))

	admin.GET("/orders", h.list)
	admin.PUT("/orders/:orderNo/status", h.updateStatus)
	admin.POST("/orders/:orderNo/close", h.close)
	admin.POST("/orders/:orderNo/reopen", h.reopen)
	admin.GET("/orders/:orderNo/change-logs", h.changeLogs)
}

func (h *AdminOrderHandler) list(c echo.Context) error {
	page := 1
	if v := c.QueryParam("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return badRequest(c, "invalid page")
		}
		page = p
	}

	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil {
			return badRequest(c, "invalid limit")
		}
		limit = l
	}

	var userID *int64
	if v := c.QueryParam("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return badRequest(c, "invalid user_id")
		}
		userID = &id
	}

	var fromPtr *time.Time
	if v := c.QueryParam("from"); v != "" {
		tm, ok := usecase.ParseDateTimeRFC3339(v)
		if !ok {
			return badRequest(c, "invalid from")
		}
		fromPtr = tm
	}

	var toPtr *time.Time
	if v := c.QueryParam("to"); v != "" {
		tm, ok := usecase.ParseDateTimeRFC3339(v)
		if !ok {
			return badRequest(c, "invalid to")
		}
		toPtr = tm
	}

	out, err := h.uc.List(c.Request().Context(), repository.AdminOrderListFilter{
		Page:    page,
		Limit:   limit,
		Status:  c.QueryParam("status"),
		OrderNo: c.QueryParam("order_no"),
		UserID:  userID,
		From:    fromPtr,
		To:      toPtr,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) updateStatus(c echo.Context) error {
	var req OrderStatusUpdateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	if err := h.uc.UpdateStatus(c.Request().Context(), c.Param("orderNo"), model.OrderStatus(req.Status)); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{OK: true})
}

func (h *AdminOrderHandler) close(c echo.Context) error {
	var req OrderCloseRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	if err := h.uc.Close(c.Request().Context(), c.Param("orderNo"), req.Reason); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{OK: true})
}

func (h *AdminOrderHandler) reopen(c echo.Context) error {
	var req OrderReopenRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	if err := h.uc.Reopen(c.Request().Context(), c.Param("orderNo"), model.OrderStatus(req.TargetStatus), req.Reason); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{OK: true})
}

func (h *AdminOrderHandler) changeLogs(c echo.Context) error {
	out, err := h.uc.ChangeLogs(c.Request().Context(), c.Param("orderNo"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
