package handler

import (
	"net/http"

	"mall/internal/middleware"
	"mall/internal/usecase"

	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SuccessResponse struct {
	OK bool `json:"ok"`
}

func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	if ae, ok := usecase.AsAppError(err); ok {
		return c.JSON(ae.Status, ErrorResponse{Code: ae.Code, Message: ae.Message})
	}

	//500
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Code: usecase.CodeInternal, Message: "internal server error"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Code: usecase.CodeBadRequest, Message: msg})
}

func getUserIDFromContext(c echo.Context) (int64, bool) {
	v := c.Get(middleware.CtxUserIDKey)
	if v == nil {
		return 0, false
	}

	id, ok := v.(int64)
	if !ok {
		return 0, false
	}

	return id, true
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, ErrorResponse{Code: usecase.CodeUnauthorized, Message: "unauthorized"})
}
