package model

import "time"

// 変更の種類
type OrderChangeType string

const (
	OrderChangeStatus OrderChangeType = "STATUS_CHANGE"
	OrderChangeClose  OrderChangeType = "CLOSE"
	OrderChangeReopen OrderChangeType = "REOPEN"
)

// 操作者
const (
	OperatorSystem = "SYSTEM"
	OperatorAdmin  = "ADMIN"
)

func OperatorUser(userID int64) string {
	return "USER:" + itoa(userID)
}

// 注文の変更ログ。
// 「誰が」「どの注文の」「何を」「どう変えたか」を残す。
type OrderChangeLog struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	OrderNo string `gorm:"type:varchar(32);not null;index" json:"order_no"`

	ChangeType OrderChangeType `gorm:"type:varchar(30);not null;index" json:"change_type"`

	FieldName string `gorm:"type:varchar(50);not null" json:"field_name"`
	OldValue  string `gorm:"type:text" json:"old_value"`
	NewValue  string `gorm:"type:text" json:"new_value"`

	//SYSTEM / ADMIN / USER:<id>
	Operator string `gorm:"type:varchar(50);not null" json:"operator"`
	Reason   string `gorm:"type:varchar(255)" json:"reason"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (OrderChangeLog) TableName() string { return "order_change_logs" }
