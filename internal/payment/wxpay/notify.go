package wxpay

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wechatpay-apiv3/wechatpay-go/utils"
)

const (
	HeaderTimestamp = "Wechatpay-Timestamp"
	HeaderNonce     = "Wechatpay-Nonce"
	HeaderSignature = "Wechatpay-Signature"
	HeaderSerial    = "Wechatpay-Serial"
)

const AlgorithmAES256GCM = "AEAD_AES_256_GCM"

// 支払い通知の外側
type Notification struct {
	ID           string    `json:"id"`
	CreateTime   string    `json:"create_time"`
	EventType    string    `json:"event_type"`
	ResourceType string    `json:"resource_type,omitempty"`
	Summary      string    `json:"summary,omitempty"`
	Resource     *Resource `json:"resource"`
}

type Resource struct {
	Algorithm      string `json:"algorithm"`
	Ciphertext     string `json:"ciphertext"`
	AssociatedData string `json:"associated_data"`
	Nonce          string `json:"nonce"`
	OriginalType   string `json:"original_type"`
}

// 復号後の取引
type Transaction struct {
	OutTradeNo    string `json:"out_trade_no"`
	TransactionID string `json:"transaction_id"`
	TradeState    string `json:"trade_state"`
	TradeType     string `json:"trade_type,omitempty"`
	SuccessTime   string `json:"success_time,omitempty"`
	Amount        *struct {
		Total int64 `json:"total"`
	} `json:"amount,omitempty"`
}

const TradeStateSuccess = "SUCCESS"

var (
	ErrMissingResource = errors.New("wxpay: missing resource")
	ErrDecrypt         = errors.New("wxpay: decrypt failed")
)

func ParseNotification(body []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return Notification{}, fmt.Errorf("wxpay: parse notification: %w", err)
	}
	if n.Resource == nil {
		return Notification{}, ErrMissingResource
	}
	return n, nil
}

// AES-256-GCM。暗号文の末尾16バイトがタグ、nonceとassociated_dataはUTF-8文字列
func DecryptResource(res Resource, apiV3Key string) ([]byte, error) {
	if len(apiV3Key) != 32 {
		return nil, fmt.Errorf("%w: api v3 key must be 32 bytes", ErrDecrypt)
	}
	plain, err := utils.DecryptAES256GCM(apiV3Key, res.AssociatedData, res.Nonce, res.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return []byte(plain), nil
}

func DecryptTransaction(res Resource, apiV3Key string) (Transaction, error) {
	plain, err := DecryptResource(res, apiV3Key)
	if err != nil {
		return Transaction{}, err
	}
	var tx Transaction
	if err := json.Unmarshal(plain, &tx); err != nil {
		return Transaction{}, fmt.Errorf("wxpay: parse transaction: %w", err)
	}
	return tx, nil
}

// テスト・ローカル用: DecryptResourceの逆（SDKには復号しかない）
func EncryptResource(plain []byte, apiV3Key, nonce, associatedData string) (Resource, error) {
	block, err := aes.NewCipher([]byte(apiV3Key))
	if err != nil {
		return Resource{}, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(nonce))
	if err != nil {
		return Resource{}, err
	}
	sealed := gcm.Seal(nil, []byte(nonce), plain, []byte(associatedData))
	return Resource{
		Algorithm:      AlgorithmAES256GCM,
		Ciphertext:     base64.StdEncoding.EncodeToString(sealed),
		AssociatedData: associatedData,
		Nonce:          nonce,
		OriginalType:   "transaction",
	}, nil
}
