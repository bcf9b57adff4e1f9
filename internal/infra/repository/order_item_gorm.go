package repository

import (
	"context"

	"mall/internal/domain/model"

	"gorm.io/gorm"
)

type OrderItemGormRepository struct {
	db *gorm.DB
}

func NewOrderItemGormRepository(db *gorm.DB) *OrderItemGormRepository {
	return &OrderItemGormRepository{db: db}
}

func (r *OrderItemGormRepository) CreateBulk(ctx context.Context, orderNo string, items []model.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([]model.OrderItem, len(items))
	copy(rows, items)
	for i := range rows {
		rows[i].OrderNo = orderNo
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return mapErr(err)
	}
	return nil
}

func (r *OrderItemGormRepository) ListByOrderNo(ctx context.Context, orderNo string) ([]model.OrderItem, error) {
	var items []model.OrderItem
	err := r.db.WithContext(ctx).Where("order_no = ?", orderNo).Order("id asc").Find(&items).Error
	if err != nil {
		return []model.OrderItem{}, mapErr(err)
	}
	return items, nil
}
