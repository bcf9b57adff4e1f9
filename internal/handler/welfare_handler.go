package handler

import (
	"net/http"
	"strconv"
	"strings"

	"mall/internal/usecase"

	"github.com/labstack/echo/v4"
)

// 福利コードの公開API
type WelfareHandler struct {
	uc *usecase.WelfareCodeUsecase
}

func NewWelfareHandler(uc *usecase.WelfareCodeUsecase) *WelfareHandler {
	return &WelfareHandler{uc: uc}
}

func (h *WelfareHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/welfare/quote", h.quote)
	e.GET("/api/v1/welfare/quote", h.quote)
}

func (h *WelfareHandler) quote(c echo.Context) error {
	productID, err := strconv.ParseInt(c.QueryParam("productId"), 10, 64)
	if err != nil || productID <= 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Code: usecase.CodeInvalidParams, Message: "invalid productId"})
	}

	out, err := h.uc.Quote(c.Request().Context(), productID, strings.TrimSpace(c.QueryParam("code")))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
