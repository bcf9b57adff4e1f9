package handler

import (
	"io"
	"net/http"

	"mall/internal/config"
	"mall/internal/middleware"
	"mall/internal/payment/wxpay"
	"mall/internal/usecase"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// 通知本文の上限
const maxNotifyBody = 1 << 20

type PaymentHandler struct {
	uc     *usecase.PaymentUsecase
	logger *zap.Logger
}

func NewPaymentHandler(uc *usecase.PaymentUsecase, logger *zap.Logger) *PaymentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentHandler{uc: uc, logger: logger}
}

type PrepayRequest struct {
	OrderNo  string `json:"orderNo"`
	WxOpenID string `json:"wxOpenId"`
}

func (h *PaymentHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	g := e.Group("/api/v1/pay/wechat")

	// 通知は署名で守る（JWTなし）
	g.POST("/notify", h.notify)

	auth := middleware.AuthJWT(cfg)
	g.POST("/jsapi/prepay", h.prepay, auth)
	g.GET("/orders/:outTradeNo", h.query, auth)
	g.POST("/orders/:outTradeNo/close", h.close, auth)
}

// 相手側は2xx以外だと再送するので、常に200で返す
func (h *PaymentHandler) notify(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxNotifyBody))
	if err != nil {
		h.logger.Error("read notify body failed", zap.Error(err))
		return c.JSON(http.StatusOK, map[string]string{"code": "SUCCESS"})
	}

	hd := c.Request().Header
	err = h.uc.HandleNotification(c.Request().Context(), usecase.NotifyHeaders{
		Timestamp: hd.Get(wxpay.HeaderTimestamp),
		Nonce:     hd.Get(wxpay.HeaderNonce),
		Signature: hd.Get(wxpay.HeaderSignature),
		Serial:    hd.Get(wxpay.HeaderSerial),
	}, body)
	if err != nil {
		fields := []zap.Field{zap.String("serial", hd.Get(wxpay.HeaderSerial)), zap.Error(err)}
		if ae, ok := usecase.AsAppError(err); ok {
			fields = append(fields, zap.String("code", ae.Code))
		}
		h.logger.Warn("wxpay notify not applied", fields...)
	}
	return c.JSON(http.StatusOK, map[string]string{"code": "SUCCESS"})
}

func (h *PaymentHandler) prepay(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req PrepayRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	out, err := h.uc.Prepay(c.Request().Context(), userID, req.OrderNo, req.WxOpenID)
	if err != nil {
		//未設定でも支払い番号は返す
		if ae, ok := usecase.AsAppError(err); ok && ae.Code == usecase.CodeWxPayNotConfigured && out.OutTradeNo != "" {
			return c.JSON(ae.Status, map[string]any{
				"code":    ae.Code,
				"message": ae.Message,
				"data":    map[string]string{"outTradeNo": out.OutTradeNo},
			})
		}
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *PaymentHandler) query(c echo.Context) error {
	out, err := h.uc.Query(c.Request().Context(), c.Param("outTradeNo"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *PaymentHandler) close(c echo.Context) error {
	if err := h.uc.Close(c.Request().Context(), c.Param("outTradeNo")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{OK: true})
}
