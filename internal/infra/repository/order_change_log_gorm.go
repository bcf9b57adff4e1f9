package repository

import (
	"context"

	"mall/internal/domain/model"

	"gorm.io/gorm"
)

// 注文変更ログを保存・取得する
type OrderChangeLogGormRepository struct {
	db *gorm.DB
}

func NewOrderChangeLogGormRepository(db *gorm.DB) *OrderChangeLogGormRepository {
	return &OrderChangeLogGormRepository{db: db}
}

func (r *OrderChangeLogGormRepository) Create(ctx context.Context, log model.OrderChangeLog) error {
	if err := r.db.WithContext(ctx).Create(&log).Error; err != nil {
		return mapErr(err)
	}
	return nil
}

func (r *OrderChangeLogGormRepository) ListByOrderNo(ctx context.Context, orderNo string) ([]model.OrderChangeLog, error) {
	var logs []model.OrderChangeLog
	err := r.db.WithContext(ctx).
		Where("order_no = ?", orderNo).
		Order("created_at desc").
		Order("id desc").
		Find(&logs).Error
	if err != nil {
		return []model.OrderChangeLog{}, mapErr(err)
	}
	return logs, nil
}
