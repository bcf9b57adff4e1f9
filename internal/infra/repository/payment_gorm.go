package repository

import (
	"context"
	"time"

	"mall/internal/domain/model"
	repo "mall/internal/repository"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PaymentGormRepository struct {
	db *gorm.DB
}

func NewPaymentGormRepository(db *gorm.DB) *PaymentGormRepository {
	return &PaymentGormRepository{db: db}
}

func (r *PaymentGormRepository) Create(ctx context.Context, p model.Payment) (model.Payment, error) {
	if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
		return model.Payment{}, mapErr(err)
	}
	return p, nil
}

func (r *PaymentGormRepository) FindByOutTradeNo(ctx context.Context, outTradeNo string) (model.Payment, error) {
	var p model.Payment
	if err := r.db.WithContext(ctx).Where("out_trade_no = ?", outTradeNo).First(&p).Error; err != nil {
		return model.Payment{}, mapErr(err)
	}
	return p, nil
}

func (r *PaymentGormRepository) ListByOrderNo(ctx context.Context, orderNo string) ([]model.Payment, error) {
	var ps []model.Payment
	err := r.db.WithContext(ctx).Where("order_no = ?", orderNo).Order("id asc").Find(&ps).Error
	if err != nil {
		return []model.Payment{}, mapErr(err)
	}
	return ps, nil
}

// SUCCESS済みなら何もしない（通知の重複）。
// 注文にSUCCESSの支払いが既にあるときも更新しない（1注文1成功）
func (r *PaymentGormRepository) MarkSuccess(ctx context.Context, id int64, orderNo, transactionID string, payload []byte) (bool, error) {
	updates := map[string]interface{}{
		"status":         model.PaymentStatusSuccess,
		"transaction_id": transactionID,
		"updated_at":     time.Now(),
	}
	if len(payload) > 0 {
		updates["notify_payload"] = datatypes.JSON(payload)
	}

	res := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ? AND status <> ?", id, model.PaymentStatusSuccess).
		// MySQLは更新対象と同じテーブルを直接参照できないので派生テーブル経由
		Where("NOT EXISTS (SELECT 1 FROM (SELECT id FROM payments WHERE order_no = ? AND status = ?) AS paid)",
			orderNo, model.PaymentStatusSuccess).
		Updates(updates)
	if res.Error != nil {
		return false, mapErr(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *PaymentGormRepository) UpdateStatus(ctx context.Context, id int64, status model.PaymentStatus) error {
	res := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// outTradeNoが空なら注文のPENDINGをすべて閉じる
func (r *PaymentGormRepository) ClosePending(ctx context.Context, orderNo string, outTradeNo string) (int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("order_no = ? AND status = ?", orderNo, model.PaymentStatusPending)
	if outTradeNo != "" {
		q = q.Where("out_trade_no = ?", outTradeNo)
	}
	res := q.Updates(map[string]interface{}{
		"status":     model.PaymentStatusClosed,
		"updated_at": time.Now(),
	})
	if res.Error != nil {
		return 0, mapErr(res.Error)
	}
	return res.RowsAffected, nil
}
