package repository

import (
	"context"
	"time"

	"mall/internal/domain/model"
)

type AdminOrderListFilter struct {
	Page    int
	Limit   int
	Status  string
	OrderNo string
	UserID  *int64
	From    *time.Time
	To      *time.Time
}

type OrderRepository interface {
	FindByOrderNo(ctx context.Context, orderNo string) (model.Order, error)
	// 行ロック付き（支払い反映を注文単位で直列にする）
	FindByOrderNoForUpdate(ctx context.Context, orderNo string) (model.Order, error)
	ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error)
	Create(ctx context.Context, order model.Order) (int64, error)

	// from のいずれかの状態のときだけ to に遷移（versionも+1）。遷移しなければ false
	TransitionStatus(ctx context.Context, orderNo string, from []model.OrderStatus, to model.OrderStatus) (bool, error)

	//管理者用の注文一覧
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)
}
