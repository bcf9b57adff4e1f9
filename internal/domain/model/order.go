package model

import (
	"time"

	"gorm.io/datatypes"
)

type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "PENDING_PAYMENT"
	OrderStatusWaitShip       OrderStatus = "WAIT_SHIP"
	OrderStatusShipped        OrderStatus = "SHIPPED"
	OrderStatusCompleted      OrderStatus = "COMPLETED"
	OrderStatusCancelled      OrderStatus = "CANCELLED"
	OrderStatusClosedUnpaid   OrderStatus = "CLOSED_UNPAID"
)

const OrderTypeNormal = "NORMAL"

// 注文。金額はすべて分（cent）単位
type Order struct {
	ID      int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo string      `gorm:"type:varchar(32);not null;uniqueIndex" json:"order_no"`
	UserID  int64       `gorm:"not null;index" json:"user_id"`
	Type    string      `gorm:"type:varchar(20);not null;default:'NORMAL'" json:"type"`
	Status  OrderStatus `gorm:"type:varchar(20);not null;index" json:"status"`

	TotalAmount        int64 `gorm:"not null" json:"total_amount"`
	GoodsAmount        int64 `gorm:"not null" json:"goods_amount"`
	FreightAmount      int64 `gorm:"not null" json:"freight_amount"`
	DiscountAmount     int64 `gorm:"not null;default:0" json:"discount_amount"`
	ManualAdjustAmount int64 `gorm:"not null;default:0" json:"manual_adjust_amount"`

	//作成時点の住所コピー（AddressSnapshotのJSON）
	AddressSnapshot datatypes.JSON `json:"address_snapshot"`

	InviteCode       *string `gorm:"type:varchar(16);index" json:"invite_code"`
	WelfareProductID *int64  `json:"welfare_product_id"`
	BuyerNote        *string `gorm:"type:varchar(500)" json:"buyer_note"`

	//状態遷移ごとに+1
	Version int64 `gorm:"not null;default:0" json:"version"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

// 合計 = max(0, 商品 + 送料 + 割引 + 手動調整)
func ComputeTotal(goods, freight, discount, manual int64) int64 {
	total := goods + freight + discount + manual
	if total < 0 {
		return 0
	}
	return total
}
