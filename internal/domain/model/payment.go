package model

import (
	"time"

	"gorm.io/datatypes"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFail    PaymentStatus = "FAIL"
	PaymentStatusClosed  PaymentStatus = "CLOSED"
)

const PaymentChannelWechat = "WECHAT"

// 支払い試行。1注文に複数ありうるがSUCCESSは最大1件
type Payment struct {
	ID            int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo       string         `gorm:"type:varchar(32);not null;index" json:"order_no"`
	Channel       string         `gorm:"type:varchar(20);not null" json:"channel"`
	OutTradeNo    string         `gorm:"type:varchar(32);not null;uniqueIndex" json:"out_trade_no"`
	Amount        int64          `gorm:"not null" json:"amount"`
	Status        PaymentStatus  `gorm:"type:varchar(20);not null;index" json:"status"`
	TransactionID *string        `gorm:"type:varchar(64)" json:"transaction_id"`
	NotifyPayload datatypes.JSON `json:"notify_payload"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }
