package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"mall/internal/config"
	"mall/internal/domain/model"
	"mall/internal/handler"
	"mall/internal/infra/cache"
	"mall/internal/infra/filestore"
	"mall/internal/middleware"
	repo "mall/internal/repository"
	"mall/internal/usecase"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testSecret     = "server-test-secret"
	testAdminToken = "admin-secret"
)

type testApp struct {
	e  *echo.Echo
	tx *filestore.TxManager
}

func newTestApp(t *testing.T, cfg config.Config) *testApp {
	t.Helper()
	s, err := filestore.Open(filepath.Join(t.TempDir(), "store.json"), filestore.WithLockTimeout(5*time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	tx := filestore.NewTxManager(s)

	logger := zap.NewNop()
	welfare := usecase.NewWelfareCodeUsecase(tx, logger)
	payment := usecase.NewPaymentUsecase(tx, usecase.PaymentDeps{
		Welfare:  welfare,
		Dedup:    cache.NewMemoryDeduper(),
		APIv3Key: "0123456789abcdef0123456789abcdef",
	}, logger)

	e := New(cfg, Handlers{
		Order:      handler.NewOrderHandler(usecase.NewOrderUsecase(tx, nil, nil, logger, cfg.PaymentEnabled)),
		Welfare:    handler.NewWelfareHandler(welfare),
		Payment:    handler.NewPaymentHandler(payment, logger),
		AdminOrder: handler.NewAdminOrderHandler(usecase.NewAdminOrderUsecase(tx, nil, logger)),
	}, logger)
	return &testApp{e: e, tx: tx}
}

func (a *testApp) do(t *testing.T, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func bearer(t *testing.T, userID int64) map[string]string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": strconv.FormatInt(userID, 10),
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + tok}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func seedCatalog(t *testing.T, tx repo.TransactionManager) (model.Product, model.ProductSKU) {
	t.Helper()
	ctx := context.Background()
	var p model.Product
	var sku model.ProductSKU
	require.NoError(t, tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		p, err = r.Products().Create(ctx, model.Product{Title: "Tee", Status: model.ProductStatusOn, ShippingFeeCent: 1500, FreeShippingQty: 2})
		if err != nil {
			return err
		}
		sku, err = r.Products().CreateSKU(ctx, model.ProductSKU{ProductID: p.ID, SkuTitle: "M", PriceCent: 2500, Stock: 5, Status: model.ProductStatusOn})
		if err != nil {
			return err
		}
		gift, err := r.Products().Create(ctx, model.Product{Title: "Gift", Status: model.ProductStatusOn, IsWelfare: true})
		if err != nil {
			return err
		}
		_, err = r.WelfareCodes().Create(ctx, model.WelfareCode{
			Code: "654321", ProductID: gift.ID, PriceCent: 500, Status: model.WelfareCodeStatusActive, MaxUsage: 1,
		}, []model.WelfareCodeItem{{SkuCode: "W1", SkuTitle: "Gift box", Quantity: 1, PriceCent: 500}})
		return err
	}))
	return p, sku
}

func TestHealthz(t *testing.T) {
	app := newTestApp(t, config.Config{JWTSecret: testSecret})
	rec := app.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestOrderFlow(t *testing.T) {
	app := newTestApp(t, config.Config{JWTSecret: testSecret, PaymentEnabled: true})
	p, sku := seedCatalog(t, app.tx)

	body := map[string]any{
		"items":   []map[string]any{{"productId": p.ID, "skuId": sku.ID, "qty": 1}},
		"address": map[string]string{"name": "Sato", "phone": "09012345678", "region": "Tokyo Shibuya Jingumae", "detail": "1-2-3"},
	}

	rec := app.do(t, http.MethodPost, "/api/v1/orders", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = app.do(t, http.MethodPost, "/api/v1/orders", body, bearer(t, 1))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := decode[usecase.CreateOrderOutput](t, rec)
	assert.Equal(t, string(model.OrderStatusPendingPayment), created.Status)
	assert.Equal(t, int64(2500), created.GoodsAmountCent)
	assert.Equal(t, int64(1500), created.FreightAmountCent)
	assert.Equal(t, int64(4000), created.TotalAmountCent)

	rec = app.do(t, http.MethodGet, "/api/v1/me/orders", nil, bearer(t, 1))
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[usecase.OrderListOutput](t, rec)
	assert.Equal(t, int64(1), list.Total)

	// 他人の注文は見えない
	rec = app.do(t, http.MethodGet, "/api/v1/me/orders/"+created.OrderNo, nil, bearer(t, 2))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = app.do(t, http.MethodPost, "/api/v1/me/orders/"+created.OrderNo+"/cancel", nil, bearer(t, 1))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

// PAYMENT_ENABLED=false なら支払いなしで発送待ち
func TestCreateOrder_PaymentDisabled(t *testing.T) {
	app := newTestApp(t, config.Config{JWTSecret: testSecret, PaymentEnabled: false})
	p, sku := seedCatalog(t, app.tx)

	body := map[string]any{
		"items":   []map[string]any{{"productId": p.ID, "skuId": sku.ID, "qty": 1}},
		"address": map[string]string{"name": "Sato", "phone": "09012345678", "region": "Tokyo Shibuya Jingumae", "detail": "1-2-3"},
	}
	rec := app.do(t, http.MethodPost, "/api/v1/orders", body, bearer(t, 1))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := decode[usecase.CreateOrderOutput](t, rec)
	assert.Equal(t, string(model.OrderStatusWaitShip), created.Status)
}

func TestListMyOrders_PageOutOfRange(t *testing.T) {
	app := newTestApp(t, config.Config{JWTSecret: testSecret})
	rec := app.do(t, http.MethodGet, "/api/v1/me/orders?page=9223372036854775807&pageSize=50", nil, bearer(t, 1))
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestCreateOrder_InvalidBody(t *testing.T) {
	app := newTestApp(t, config.Config{JWTSecret: testSecret})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBufferString("{not json"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range bearer(t, 1) {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	app.e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, usecase.CodeBadRequest, decode[handler.ErrorResponse](t, rec).Code)
}

func TestWelfareQuote(t *testing.T) {
	app := newTestApp(t, config.Config{JWTSecret: testSecret})
	seedCatalog(t, app.tx)

	cases := []struct {
		name string
		path string
		want int
		code string
	}{
		{"ok", "/welfare/quote?productId=2&code=654321", http.StatusOK, ""},
		{"versioned path", "/api/v1/welfare/quote?productId=2&code=654321", http.StatusOK, ""},
		{"bad product id", "/welfare/quote?productId=abc&code=654321", http.StatusBadRequest, usecase.CodeInvalidParams},
		{"malformed code", "/welfare/quote?productId=2&code=12ab56", http.StatusBadRequest, usecase.CodeInvalidParams},
		{"unknown code", "/welfare/quote?productId=2&code=000000", http.StatusBadRequest, usecase.CodeInvalidWelfareCode},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := app.do(t, http.MethodGet, tc.path, nil, nil)
			require.Equal(t, tc.want, rec.Code, rec.Body.String())
			if tc.code != "" {
				assert.Equal(t, tc.code, decode[handler.ErrorResponse](t, rec).Code)
				return
			}
			out := decode[usecase.WelfareQuoteOutput](t, rec)
			assert.True(t, out.OK)
			assert.Equal(t, int64(500), out.PriceCent)
			assert.Equal(t, int64(1), out.RemainingUsage)
		})
	}
}

func TestNotify_AlwaysAcknowledges(t *testing.T) {
	app := newTestApp(t, config.Config{JWTSecret: testSecret})

	for _, body := range []string{"", "{not json", `{"id":"n1","resource":{"ciphertext":"x","nonce":"y"}}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/pay/wechat/notify", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		app.e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"code":"SUCCESS"}`, rec.Body.String())
	}
}

func TestPayRoutes_RequireJWT(t *testing.T) {
	app := newTestApp(t, config.Config{JWTSecret: testSecret})
	assert.Equal(t, http.StatusUnauthorized, app.do(t, http.MethodPost, "/api/v1/pay/wechat/jsapi/prepay", map[string]string{"orderNo": "O1"}, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, app.do(t, http.MethodGet, "/api/v1/pay/wechat/orders/P1", nil, nil).Code)
}

func TestAdminRoutes(t *testing.T) {
	t.Run("disabled without token", func(t *testing.T) {
		app := newTestApp(t, config.Config{JWTSecret: testSecret})
		rec := app.do(t, http.MethodGet, "/api/v1/admin/orders", nil, map[string]string{middleware.HeaderAdminToken: "x"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("list and close", func(t *testing.T) {
		app := newTestApp(t, config.Config{JWTSecret: testSecret, AdminToken: testAdminToken, PaymentEnabled: true})
		p, sku := seedCatalog(t, app.tx)
		admin := map[string]string{middleware.HeaderAdminToken: testAdminToken}

		rec := app.do(t, http.MethodPost, "/api/v1/orders", map[string]any{
			"items":   []map[string]any{{"productId": p.ID, "skuId": sku.ID, "qty": 2}},
			"address": map[string]string{"name": "Sato", "phone": "09012345678", "region": "Tokyo Shibuya Jingumae", "detail": "1-2-3"},
		}, bearer(t, 9))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		orderNo := decode[usecase.CreateOrderOutput](t, rec).OrderNo

		rec = app.do(t, http.MethodGet, "/api/v1/admin/orders?status=BOGUS", nil, admin)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = app.do(t, http.MethodGet, "/api/v1/admin/orders?status=PENDING_PAYMENT", nil, admin)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, int64(1), decode[usecase.AdminOrderListOutput](t, rec).Total)

		rec = app.do(t, http.MethodPost, "/api/v1/admin/orders/"+orderNo+"/close", map[string]string{"reason": "unpaid"}, admin)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = app.do(t, http.MethodGet, "/api/v1/admin/orders/"+orderNo+"/change-logs", nil, admin)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), string(model.OrderStatusClosedUnpaid))
	})
}
