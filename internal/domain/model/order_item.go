package model

import (
	"time"

	"gorm.io/datatypes"
)

// 注文明細。タイトルや価格は注文時点のスナップショット
type OrderItem struct {
	ID      int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo string `gorm:"type:varchar(32);not null;index" json:"order_no"`

	ProductID int64 `gorm:"not null;index" json:"product_id"`

	//旧商品行は商品ID、福利コードのテンプレート由来でカタログSKUがない場合は負数
	SkuID int64 `gorm:"not null;index" json:"sku_id"`

	//在庫の戻し先（SKU / PRODUCT / 空なら在庫なし）
	StockSource StockSource `gorm:"type:varchar(10)" json:"stock_source"`

	SkuTitle   string         `gorm:"type:varchar(255);not null" json:"sku_title"`
	SkuCode    *string        `gorm:"type:varchar(64)" json:"sku_code"`
	Quantity   int64          `gorm:"not null" json:"quantity"`
	SalePrice  int64          `gorm:"not null" json:"sale_price"`
	TotalPrice int64          `gorm:"not null" json:"total_price"`
	SkuAttrs   datatypes.JSON `json:"sku_attrs"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
}

func (OrderItem) TableName() string { return "order_items" }

type StockSource string

const (
	StockSourceNone    StockSource = ""
	StockSourceSKU     StockSource = "SKU"
	StockSourceProduct StockSource = "PRODUCT"
)
