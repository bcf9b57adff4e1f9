package wxpay

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIv3Key = "0123456789abcdef0123456789abcdef"

func genKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return k
}

// 自己署名のプラットフォーム証明書
func genCert(t *testing.T, key *rsa.PrivateKey, serial int64) *x509.Certificate {
	t.Helper()
	tpl := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{CommonName: "wxpay platform"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tpl, tpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

// プラットフォーム側の署名付き応答
type platform struct {
	t      *testing.T
	key    *rsa.PrivateKey
	serial string
}

func (p platform) reply(w http.ResponseWriter, status int, body string) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	nonce := "srv-nonce-1"
	sig, err := SignMessage(p.key, ts, nonce, body)
	require.NoError(p.t, err)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Request-Id", "req-1")
	w.Header().Set(HeaderSerial, p.serial)
	w.Header().Set(HeaderTimestamp, ts)
	w.Header().Set(HeaderNonce, nonce)
	w.Header().Set(HeaderSignature, sig)
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func newTestClient(t *testing.T, h func(p platform, w http.ResponseWriter, r *http.Request)) (*Client, *rsa.PrivateKey) {
	t.Helper()
	platformKey := genKey(t)
	cert := genCert(t, platformKey, 0x5A17)
	p := platform{t: t, key: platformKey, serial: CertificateSerial(cert)}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { h(p, w, r) }))
	t.Cleanup(srv.Close)

	merchantKey := genKey(t)
	c, err := NewClient(context.Background(), ClientConfig{
		AppID: "wxapp", MchID: "1900000001", SerialNo: "SERIAL", NotifyURL: "https://example.com/notify",
		APIBase: srv.URL, PlatformCerts: []*x509.Certificate{cert},
	}, merchantKey, srv.Client())
	require.NoError(t, err)
	return c, merchantKey
}

func TestDecryptResource_RoundTrip(t *testing.T) {
	plain := []byte(`{"out_trade_no":"P1","transaction_id":"42","trade_state":"SUCCESS"}`)
	res, err := EncryptResource(plain, testAPIv3Key, "abcdef123456", "transaction")
	require.NoError(t, err)

	tx, err := DecryptTransaction(res, testAPIv3Key)
	require.NoError(t, err)
	assert.Equal(t, "P1", tx.OutTradeNo)
	assert.Equal(t, "42", tx.TransactionID)
	assert.Equal(t, TradeStateSuccess, tx.TradeState)
}

func TestDecryptResource_TamperedAssociatedData(t *testing.T) {
	res, err := EncryptResource([]byte(`{}`), testAPIv3Key, "abcdef123456", "transaction")
	require.NoError(t, err)
	res.AssociatedData = "other"

	_, err = DecryptResource(res, testAPIv3Key)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestDecryptResource_BadKeyLength(t *testing.T) {
	_, err := DecryptResource(Resource{Ciphertext: "AAAA", Nonce: "n"}, "short")
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestVerifier(t *testing.T) {
	ctx := context.Background()
	key := genKey(t)
	cert := genCert(t, key, 0x1234)
	serial := CertificateSerial(cert)
	assert.Equal(t, "1234", serial)

	body := []byte(`{"id":"evt-1"}`)
	sig, err := SignMessage(key, "1700000000", "nonce-1", string(body))
	require.NoError(t, err)

	v := NewCertificateVerifier(cert)
	assert.NoError(t, v.Verify(ctx, serial, "1700000000", "nonce-1", body, sig))
	assert.ErrorIs(t, v.Verify(ctx, serial, "1700000001", "nonce-1", body, sig), ErrInvalidSignature)
	assert.ErrorIs(t, v.Verify(ctx, serial, "1700000000", "nonce-1", []byte(`{"id":"evt-2"}`), sig), ErrInvalidSignature)
	assert.ErrorIs(t, v.Verify(ctx, serial, "1700000000", "nonce-1", body, "!!notbase64"), ErrInvalidSignature)
	// 知らない証明書
	assert.ErrorIs(t, v.Verify(ctx, "FFFF", "1700000000", "nonce-1", body, sig), ErrInvalidSignature)
}

func TestLoadKeys(t *testing.T) {
	dir := t.TempDir()
	key := genKey(t)
	cert := genCert(t, key, 0x42)

	p8, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	keyPath := filepath.Join(dir, "apiclient_key.pem")
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: p8}), 0o600))

	certPath := filepath.Join(dir, "platform.pem")
	require.NoError(t, os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}), 0o600))

	priv, err := LoadPrivateKey(keyPath)
	require.NoError(t, err)
	assert.Equal(t, key.D, priv.D)

	got, err := LoadCertificate(certPath)
	require.NoError(t, err)
	assert.Equal(t, "42", CertificateSerial(got))

	_, err = LoadCertificate(filepath.Join(dir, "missing.pem"))
	assert.Error(t, err)
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	ctx := context.Background()
	_, err := NewClient(ctx, ClientConfig{MchID: "m"}, genKey(t), nil)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewClient(ctx, ClientConfig{MchID: "m", SerialNo: "s"}, genKey(t), nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestClient_JSAPIPrepay(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	c, merchantKey := newTestClient(t, func(p platform, w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/pay/transactions/jsapi", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		p.reply(w, http.StatusOK, `{"prepay_id":"wx123"}`)
	})

	params, err := c.JSAPIPrepay(context.Background(), "P1", "order", 9900, "openid-1")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(gotAuth, "WECHATPAY2-SHA256-RSA2048 "))
	assert.Contains(t, gotAuth, `mchid="1900000001"`)
	assert.Contains(t, gotAuth, `serial_no="SERIAL"`)
	assert.Equal(t, "P1", gotBody["out_trade_no"])
	assert.Equal(t, "https://example.com/notify", gotBody["notify_url"])

	assert.Equal(t, "wxapp", params.AppID)
	assert.Equal(t, "prepay_id=wx123", params.Package)
	assert.Equal(t, "RSA", params.SignType)

	// paySign は appId\ntimeStamp\nnonceStr\npackage\n への署名
	msg := "wxapp\n" + params.TimeStamp + "\n" + params.NonceStr + "\n" + params.Package + "\n"
	sig, err := base64.StdEncoding.DecodeString(params.PaySign)
	require.NoError(t, err)
	sum := sha256.Sum256([]byte(msg))
	assert.NoError(t, rsa.VerifyPKCS1v15(&merchantKey.PublicKey, crypto.SHA256, sum[:], sig))
}

func TestClient_QueryOrder(t *testing.T) {
	c, _ := newTestClient(t, func(p platform, w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v3/pay/transactions/out-trade-no/P1", r.URL.Path)
		assert.Equal(t, "1900000001", r.URL.Query().Get("mchid"))
		p.reply(w, http.StatusOK, `{"out_trade_no":"P1","transaction_id":"4200001","trade_state":"SUCCESS","success_time":"2026-03-01T10:00:00+08:00","amount":{"total":9900}}`)
	})

	tx, err := c.QueryOrder(context.Background(), "P1")
	require.NoError(t, err)
	assert.Equal(t, "P1", tx.OutTradeNo)
	assert.Equal(t, "4200001", tx.TransactionID)
	assert.Equal(t, TradeStateSuccess, tx.TradeState)
	require.NotNil(t, tx.Amount)
	assert.Equal(t, int64(9900), tx.Amount.Total)
}

func TestClient_CloseOrder(t *testing.T) {
	var gotBody map[string]any
	c, _ := newTestClient(t, func(p platform, w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v3/pay/transactions/out-trade-no/P1/close", r.URL.Path)
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		p.reply(w, http.StatusNoContent, "")
	})

	require.NoError(t, c.CloseOrder(context.Background(), "P1"))
	assert.Equal(t, "1900000001", gotBody["mchid"])
}

func TestClient_UpstreamError(t *testing.T) {
	c, _ := newTestClient(t, func(_ platform, w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"PARAM_ERROR","message":"secret detail"}`))
	})

	_, err := c.JSAPIPrepay(context.Background(), "P1", "order", 1, "o")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "PARAM_ERROR", apiErr.Code)
	assert.NotContains(t, err.Error(), "secret detail")
}

func TestClient_RejectsUnsignedResponse(t *testing.T) {
	c, _ := newTestClient(t, func(_ platform, w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"prepay_id":"wx123"}`))
	})

	_, err := c.JSAPIPrepay(context.Background(), "P1", "order", 1, "o")
	assert.Error(t, err)
}

func TestNewOutTradeNo(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	no := NewOutTradeNo(now)
	assert.Regexp(t, `^P1700000000123\d{6}$`, no)
}
