package model

import (
	"strconv"
	"time"
)

//在庫増減の履歴（注文での減算、キャンセルでの戻し）

type InventoryAdjustment struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID int64     `gorm:"not null;index" json:"product_id"`
	SkuID     *int64    `gorm:"index" json:"sku_id"`
	OrderNo   string    `gorm:"type:varchar(32);not null;index" json:"order_no"`
	Delta     int64     `gorm:"not null" json:"delta"`
	Reason    string    `gorm:"type:varchar(255);not null" json:"reason"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (InventoryAdjustment) TableName() string { return "inventory_adjustments" }

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
