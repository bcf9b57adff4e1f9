package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"mall/internal/middleware"
	"mall/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{
			name:     "app error",
			err:      usecase.NewAppError(usecase.KindInsufficientStock, usecase.CodeOutOfStock, "out of stock"),
			wantCode: http.StatusBadRequest,
			wantBody: `{"code":"OUT_OF_STOCK","message":"out of stock"}`,
		},
		{
			name:     "wrapped app error",
			err:      fmt.Errorf("create: %w", usecase.NewAppError(usecase.KindBusy, usecase.CodeBusyRetry, "busy, retry")),
			wantCode: http.StatusServiceUnavailable,
			wantBody: `{"code":"BUSY_RETRY","message":"busy, retry"}`,
		},
		{
			name:     "plain error hides detail",
			err:      errors.New("dial tcp 10.0.0.1:5432: connection refused"),
			wantCode: http.StatusInternalServerError,
			wantBody: `{"code":"INTERNAL_ERROR","message":"internal server error"}`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			require.NoError(t, writeError(c, tc.err))
			assert.Equal(t, tc.wantCode, rec.Code)
			assert.JSONEq(t, tc.wantBody, rec.Body.String())
		})
	}
}

func TestGetUserIDFromContext(t *testing.T) {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	_, ok := getUserIDFromContext(c)
	assert.False(t, ok)

	c.Set(middleware.CtxUserIDKey, "42")
	_, ok = getUserIDFromContext(c)
	assert.False(t, ok)

	c.Set(middleware.CtxUserIDKey, int64(42))
	id, ok := getUserIDFromContext(c)
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)
}
