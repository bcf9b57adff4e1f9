package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	ProductStatusOff = 0
	ProductStatusOn  = 1
)

const (
	DefaultShippingFeeCent = 1500
	DefaultFreeShippingQty = 2
)

type Product struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Title     string `gorm:"type:varchar(255);not null" json:"title"`
	PriceCent int64  `gorm:"not null" json:"price_cent"`
	Stock     int64  `gorm:"not null" json:"stock"`
	Status    int    `gorm:"not null;default:0" json:"status"`

	//福利コード専用商品
	IsWelfare bool `gorm:"not null;default:false" json:"is_welfare"`

	ShippingFeeCent int64 `gorm:"not null" json:"shipping_fee_cent"`
	//この数量以上で送料無料（0なら常に有料）
	FreeShippingQty int64 `gorm:"not null" json:"free_shipping_qty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Product) TableName() string { return "products" }

// 規格（サイズ・色など）ごとの在庫と価格
type ProductSKU struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID int64          `gorm:"not null;index" json:"product_id"`
	SkuTitle  string         `gorm:"type:varchar(255);not null" json:"sku_title"`
	SkuCode   *string        `gorm:"type:varchar(64)" json:"sku_code"`
	SkuAttrs  datatypes.JSON `json:"sku_attrs"`
	PriceCent int64          `gorm:"not null" json:"price_cent"`
	Stock     int64          `gorm:"not null" json:"stock"`
	Status    int            `gorm:"not null;default:0" json:"status"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

func (ProductSKU) TableName() string { return "product_skus" }

// 送料ポリシー
type ShippingPolicy struct {
	ProductID       int64
	ShippingFeeCent int64
	FreeShippingQty int64
}
