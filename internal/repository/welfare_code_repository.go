package repository

import (
	"context"
	"time"

	"mall/internal/domain/model"
)

// 福利コード台帳
type WelfareCodeRepository interface {
	// status=ACTIVE かつ used_count<max_usage の行を排他ロックして返す
	LockActive(ctx context.Context, productID int64, code string) (model.WelfareCode, error)

	// ロックなし（見積もり用）
	FindActive(ctx context.Context, productID int64, code string) (model.WelfareCode, error)

	// 使い切りのコードを探す（「間違い」と「使い切り」を分けるため）
	FindExhausted(ctx context.Context, productID int64, code string) (model.WelfareCode, error)

	ListItems(ctx context.Context, welfareCodeID int64) ([]model.WelfareCodeItem, error)

	// used_count+1、max_usageに達したらEXHAUSTED。
	// 条件 status=ACTIVE AND used_count<max_usage に合わなければ ErrCodeUnavailable
	ConsumeOnce(ctx context.Context, productID int64, code string, orderNo string, now time.Time) (model.WelfareCode, error)

	HasUsage(ctx context.Context, orderNo string) (bool, error)
	RecordUsage(ctx context.Context, usage model.WelfareCodeUsage) error

	Create(ctx context.Context, c model.WelfareCode, items []model.WelfareCodeItem) (model.WelfareCode, error)
	FindByID(ctx context.Context, id int64) (model.WelfareCode, error)
	ListUsage(ctx context.Context, welfareCodeID int64) ([]model.WelfareCodeUsage, error)
}
