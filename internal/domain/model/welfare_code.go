package model

import "time"

type WelfareCodeStatus string

const (
	WelfareCodeStatusActive    WelfareCodeStatus = "ACTIVE"
	WelfareCodeStatusExhausted WelfareCodeStatus = "EXHAUSTED"
	WelfareCodeStatusDisabled  WelfareCodeStatus = "DISABLED"
)

const (
	WelfareCodeMinUsage = 1
	WelfareCodeMaxUsage = 1000
)

// 福利コード。(code, product_id) で一意
type WelfareCode struct {
	ID                int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	Code              string            `gorm:"type:varchar(6);not null;uniqueIndex:uk_welfare_code_product" json:"code"`
	ProductID         int64             `gorm:"not null;uniqueIndex:uk_welfare_code_product" json:"product_id"`
	PriceCent         int64             `gorm:"not null" json:"price_cent"`
	OriginalPriceCent int64             `gorm:"not null;default:0" json:"original_price_cent"`
	Note              string            `gorm:"type:varchar(500)" json:"note"`
	Status            WelfareCodeStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	MaxUsage          int64             `gorm:"not null" json:"max_usage"`
	UsedCount         int64             `gorm:"not null;default:0" json:"used_count"`
	ConsumedOrderNo   *string           `gorm:"type:varchar(32)" json:"consumed_order_no"`
	ConsumedAt        *time.Time        `json:"consumed_at"`
	CreatedAt         time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"not null" json:"updated_at"`
}

func (WelfareCode) TableName() string { return "welfare_codes" }

func (c WelfareCode) Remaining() int64 {
	if c.UsedCount >= c.MaxUsage {
		return 0
	}
	return c.MaxUsage - c.UsedCount
}

// 有効かつ残り回数あり
func (c WelfareCode) Available() bool {
	return c.Status == WelfareCodeStatusActive && c.UsedCount < c.MaxUsage
}

// 使い切り（DISABLEDは含めない）
func (c WelfareCode) Exhausted() bool {
	if c.Status == WelfareCodeStatusDisabled {
		return false
	}
	return c.Status == WelfareCodeStatusExhausted || c.UsedCount >= c.MaxUsage
}

// 福利コードに紐づく明細テンプレート。注文時にコピーされる
type WelfareCodeItem struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	WelfareCodeID int64     `gorm:"not null;index" json:"welfare_code_id"`
	SkuLibraryID  *int64    `json:"sku_library_id"`
	SkuCode       string    `gorm:"type:varchar(64)" json:"sku_code"`
	SkuTitle      string    `gorm:"type:varchar(255)" json:"sku_title"`
	Quantity      int64     `gorm:"not null" json:"quantity"`
	PriceCent     int64     `gorm:"not null" json:"price_cent"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
}

func (WelfareCodeItem) TableName() string { return "welfare_code_items" }

// 使用履歴（追記のみ）。order_noごとに1件
type WelfareCodeUsage struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	WelfareCodeID int64     `gorm:"not null;index" json:"welfare_code_id"`
	Code          string    `gorm:"type:varchar(6);not null" json:"code"`
	OrderNo       string    `gorm:"type:varchar(32);not null;uniqueIndex" json:"order_no"`
	UserID        int64     `gorm:"not null;index" json:"user_id"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
}

func (WelfareCodeUsage) TableName() string { return "welfare_code_usage" }
