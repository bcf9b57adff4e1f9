package repository

import (
	"context"

	"mall/internal/domain/model"
)

type PaymentRepository interface {
	Create(ctx context.Context, p model.Payment) (model.Payment, error)
	FindByOutTradeNo(ctx context.Context, outTradeNo string) (model.Payment, error)
	ListByOrderNo(ctx context.Context, orderNo string) ([]model.Payment, error)

	// SUCCESS以外のときだけSUCCESSにする。同じ注文に別のSUCCESSがあれば更新しない。
	// 更新しなければ false
	MarkSuccess(ctx context.Context, id int64, orderNo, transactionID string, payload []byte) (bool, error)

	UpdateStatus(ctx context.Context, id int64, status model.PaymentStatus) error

	// PENDINGのものをCLOSEDに。件数を返す
	ClosePending(ctx context.Context, orderNo string, outTradeNo string) (int64, error)
}
