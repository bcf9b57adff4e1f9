package repository

import (
	"context"

	"mall/internal/domain/model"
)

// 商品の永続化（保存・取得）だけを約束。
type ProductRepository interface {
	FindByID(ctx context.Context, id int64) (model.Product, error)

	// 送料計算用。存在しないIDは結果に含まれない
	ListShippingPolicies(ctx context.Context, ids []int64) ([]model.ShippingPolicy, error)

	Create(ctx context.Context, p model.Product) (model.Product, error)
	CreateSKU(ctx context.Context, s model.ProductSKU) (model.ProductSKU, error)
	FindSKUByID(ctx context.Context, id int64) (model.ProductSKU, error)
}
