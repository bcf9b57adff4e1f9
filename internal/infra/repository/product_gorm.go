package repository

import (
	"context"

	"mall/internal/domain/model"
	repo "mall/internal/repository"

	"gorm.io/gorm"
)

type ProductGormRepository struct {
	db *gorm.DB
}

// DI
func NewProductGormRepository(db *gorm.DB) *ProductGormRepository {
	return &ProductGormRepository{db: db}
}

// IDで商品を取得
func (r *ProductGormRepository) FindByID(ctx context.Context, id int64) (model.Product, error) {
	var p model.Product
	err := r.db.WithContext(ctx).First(&p, id).Error
	if isNotFound(err) {
		return model.Product{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Product{}, mapErr(err)
	}
	return p, nil
}

// 送料計算用（存在しないIDは飛ばす）
func (r *ProductGormRepository) ListShippingPolicies(ctx context.Context, ids []int64) ([]model.ShippingPolicy, error) {
	if len(ids) == 0 {
		return []model.ShippingPolicy{}, nil
	}
	var products []model.Product
	err := r.db.WithContext(ctx).
		Select("id", "shipping_fee_cent", "free_shipping_qty").
		Where("id IN ?", ids).
		Find(&products).Error
	if err != nil {
		return []model.ShippingPolicy{}, mapErr(err)
	}

	out := make([]model.ShippingPolicy, 0, len(products))
	for _, p := range products {
		out = append(out, model.ShippingPolicy{
			ProductID:       p.ID,
			ShippingFeeCent: p.ShippingFeeCent,
			FreeShippingQty: p.FreeShippingQty,
		})
	}
	return out, nil
}

// 商品の作成
func (r *ProductGormRepository) Create(ctx context.Context, p model.Product) (model.Product, error) {
	if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
		return model.Product{}, mapErr(err)
	}
	return p, nil
}

func (r *ProductGormRepository) CreateSKU(ctx context.Context, s model.ProductSKU) (model.ProductSKU, error) {
	if err := r.db.WithContext(ctx).Create(&s).Error; err != nil {
		return model.ProductSKU{}, mapErr(err)
	}
	return s, nil
}

func (r *ProductGormRepository) FindSKUByID(ctx context.Context, id int64) (model.ProductSKU, error) {
	var s model.ProductSKU
	err := r.db.WithContext(ctx).First(&s, id).Error
	if isNotFound(err) {
		return model.ProductSKU{}, repo.ErrNotFound
	}
	if err != nil {
		return model.ProductSKU{}, mapErr(err)
	}
	return s, nil
}
