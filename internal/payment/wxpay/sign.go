package wxpay

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"

	"github.com/wechatpay-apiv3/wechatpay-go/core"
	"github.com/wechatpay-apiv3/wechatpay-go/core/auth"
	"github.com/wechatpay-apiv3/wechatpay-go/core/auth/verifiers"
	"github.com/wechatpay-apiv3/wechatpay-go/utils"
)

var ErrInvalidSignature = errors.New("wxpay: invalid signature")

// 通知の署名検証。"timestamp\nnonce\nbody\n" をWechatpay-Serialの証明書で
type Verifier struct {
	v auth.Verifier
}

// 証明書の引き当て先を渡す（自動ダウンロードならダウンローダのvisitor）
func NewVerifier(certs core.CertificateGetter) *Verifier {
	return &Verifier{v: verifiers.NewSHA256WithRSAVerifier(certs)}
}

func NewCertificateVerifier(certs ...*x509.Certificate) *Verifier {
	return NewVerifier(core.NewCertificateMapWithList(certs))
}

func (v *Verifier) Verify(ctx context.Context, serial, timestamp, nonce string, body []byte, signature string) error {
	msg := fmt.Sprintf("%s\n%s\n%s\n", timestamp, nonce, body)
	if err := v.v.Verify(ctx, serial, msg, signature); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

// 改行区切りのメッセージに署名してbase64で返す
func SignMessage(key *rsa.PrivateKey, lines ...string) (string, error) {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return utils.SignSHA256WithRSA(b.String(), key)
}

// 加盟店の秘密鍵（apiclient_key.pem）
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	return utils.LoadPrivateKeyWithPath(path)
}

// プラットフォーム証明書
func LoadCertificate(path string) (*x509.Certificate, error) {
	return utils.LoadCertificateWithPath(path)
}

// Wechatpay-Serial と同じ表記（16進大文字）
func CertificateSerial(cert *x509.Certificate) string {
	return utils.GetCertificateSerialNumber(*cert)
}
