package repository

import (
	"context"

	"mall/internal/domain/model"
)

type OrderItemRepository interface {
	CreateBulk(ctx context.Context, orderNo string, items []model.OrderItem) error
	ListByOrderNo(ctx context.Context, orderNo string) ([]model.OrderItem, error)
}
