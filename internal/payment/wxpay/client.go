package wxpay

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wechatpay-apiv3/wechatpay-go/core"
	"github.com/wechatpay-apiv3/wechatpay-go/core/option"
	"github.com/wechatpay-apiv3/wechatpay-go/services/payments"
	"github.com/wechatpay-apiv3/wechatpay-go/services/payments/jsapi"
)

const DefaultAPIBase = "https://api.mch.weixin.qq.com"

var ErrNotConfigured = errors.New("wxpay: not configured")

// 相手側のエラー（HTTPステータスとcodeだけ持つ。本文の秘密は持たない）
type APIError struct {
	Status int
	Code   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wxpay: api error status=%d code=%s", e.Status, e.Code)
}

type ClientConfig struct {
	AppID     string
	MchID     string
	SerialNo  string
	NotifyURL string
	APIBase   string

	// 応答の署名検証に使う。空ならAPIv3Keyで自動ダウンロード
	PlatformCerts []*x509.Certificate
	APIv3Key      string
}

// WeChat Pay v3（JSAPI）のクライアント
type Client struct {
	cfg   ClientConfig
	jsapi jsapi.JsapiApiService
}

func NewClient(ctx context.Context, cfg ClientConfig, key *rsa.PrivateKey, hc *http.Client) (*Client, error) {
	if cfg.MchID == "" || cfg.SerialNo == "" || key == nil {
		return nil, ErrNotConfigured
	}
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.APIBase != "" && cfg.APIBase != DefaultAPIBase {
		base, err := url.Parse(cfg.APIBase)
		if err != nil {
			return nil, fmt.Errorf("wxpay: api base: %w", err)
		}
		rewritten := *hc
		rewritten.Transport = &baseTransport{base: base, next: hc.Transport}
		hc = &rewritten
	}

	opts := []core.ClientOption{option.WithHTTPClient(hc)}
	switch {
	case len(cfg.PlatformCerts) > 0:
		opts = append(opts,
			option.WithMerchantCredential(cfg.MchID, cfg.SerialNo, key),
			option.WithWechatPayCertificate(cfg.PlatformCerts),
		)
	case cfg.APIv3Key != "":
		opts = append(opts, option.WithWechatPayAutoAuthCipher(cfg.MchID, cfg.SerialNo, key, cfg.APIv3Key))
	default:
		return nil, fmt.Errorf("%w: platform certificate or api v3 key required", ErrNotConfigured)
	}

	c, err := core.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("wxpay: new client: %w", err)
	}
	return &Client{cfg: cfg, jsapi: jsapi.JsapiApiService{Client: c}}, nil
}

// JSAPI（小程序・公众号）で呼び出すためのパラメータ
type JSAPIParams struct {
	AppID     string `json:"appId"`
	TimeStamp string `json:"timeStamp"`
	NonceStr  string `json:"nonceStr"`
	Package   string `json:"package"`
	SignType  string `json:"signType"`
	PaySign   string `json:"paySign"`
}

// 前払い注文を作り、クライアント側の署名まで済ませて返す
func (c *Client) JSAPIPrepay(ctx context.Context, outTradeNo, description string, amountCent int64, openID string) (JSAPIParams, error) {
	resp, _, err := c.jsapi.PrepayWithRequestPayment(ctx, jsapi.PrepayRequest{
		Appid:       core.String(c.cfg.AppID),
		Mchid:       core.String(c.cfg.MchID),
		Description: core.String(description),
		OutTradeNo:  core.String(outTradeNo),
		NotifyUrl:   core.String(c.cfg.NotifyURL),
		Amount: &jsapi.Amount{
			Total:    core.Int64(amountCent),
			Currency: core.String("CNY"),
		},
		Payer: &jsapi.Payer{Openid: core.String(openID)},
	})
	if err != nil {
		return JSAPIParams{}, apiError(err)
	}
	if resp == nil || deref(resp.PrepayId) == "" {
		return JSAPIParams{}, &APIError{Status: http.StatusOK, Code: "EMPTY_PREPAY_ID"}
	}
	return JSAPIParams{
		AppID:     deref(resp.Appid),
		TimeStamp: deref(resp.TimeStamp),
		NonceStr:  deref(resp.NonceStr),
		Package:   deref(resp.Package),
		SignType:  deref(resp.SignType),
		PaySign:   deref(resp.PaySign),
	}, nil
}

// 支払い照会
func (c *Client) QueryOrder(ctx context.Context, outTradeNo string) (Transaction, error) {
	t, _, err := c.jsapi.QueryOrderByOutTradeNo(ctx, jsapi.QueryOrderByOutTradeNoRequest{
		OutTradeNo: core.String(outTradeNo),
		Mchid:      core.String(c.cfg.MchID),
	})
	if err != nil {
		return Transaction{}, apiError(err)
	}
	return transactionFrom(t), nil
}

func (c *Client) CloseOrder(ctx context.Context, outTradeNo string) error {
	_, err := c.jsapi.CloseOrder(ctx, jsapi.CloseOrderRequest{
		OutTradeNo: core.String(outTradeNo),
		Mchid:      core.String(c.cfg.MchID),
	})
	return apiError(err)
}

func transactionFrom(t *payments.Transaction) Transaction {
	if t == nil {
		return Transaction{}
	}
	out := Transaction{
		OutTradeNo:    deref(t.OutTradeNo),
		TransactionID: deref(t.TransactionId),
		TradeState:    deref(t.TradeState),
		TradeType:     deref(t.TradeType),
		SuccessTime:   deref(t.SuccessTime),
	}
	if t.Amount != nil && t.Amount.Total != nil {
		out.Amount = &struct {
			Total int64 `json:"total"`
		}{Total: *t.Amount.Total}
	}
	return out
}

// SDKのエラーから本文を落とす
func apiError(err error) error {
	if err == nil {
		return nil
	}
	var e *core.APIError
	if errors.As(err, &e) {
		return &APIError{Status: e.StatusCode, Code: e.Code}
	}
	return err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// SDKは本番ホスト固定なので、APIBaseが別のときは送り先を差し替える
type baseTransport struct {
	base *url.URL
	next http.RoundTripper
}

func (t *baseTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL.Scheme = t.base.Scheme
	r.URL.Host = t.base.Host
	r.URL.Path = strings.TrimSuffix(t.base.Path, "/") + req.URL.Path
	r.URL.RawPath = ""
	r.Host = t.base.Host

	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	return next.RoundTrip(r)
}

// P + ミリ秒 + 6桁
func NewOutTradeNo(now time.Time) string {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		n = big.NewInt(now.UnixNano() % 1000000)
	}
	return fmt.Sprintf("P%d%06d", now.UnixMilli(), n.Int64())
}
