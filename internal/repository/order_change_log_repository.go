package repository

import (
	"context"

	"mall/internal/domain/model"
)

// 注文変更ログの保存・一覧取得の約束。
type OrderChangeLogRepository interface {
	Create(ctx context.Context, log model.OrderChangeLog) error

	//新しい順
	ListByOrderNo(ctx context.Context, orderNo string) ([]model.OrderChangeLog, error)
}
