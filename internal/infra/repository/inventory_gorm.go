package repository

import (
	"context"
	"time"

	"mall/internal/domain/model"
	repo "mall/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InventoryGormRepository struct {
	db *gorm.DB
}

func NewInventoryGormRepository(db *gorm.DB) *InventoryGormRepository {
	return &InventoryGormRepository{db: db}
}

// SKU行をFOR UPDATEでロック（親商品はFOR SHARE）して減算
func (r *InventoryGormRepository) LockAndDebitSKU(ctx context.Context, productID int64, skuID int64, qty int64) (model.ProductSKU, model.Product, error) {
	var sku model.ProductSKU
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		Where("id = ? AND product_id = ?", skuID, productID).
		First(&sku).Error
	if err != nil {
		return model.ProductSKU{}, model.Product{}, mapErr(err)
	}

	var p model.Product
	err = r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthShare}).
		Where("id = ?", productID).
		First(&p).Error
	if err != nil {
		return model.ProductSKU{}, model.Product{}, mapErr(err)
	}

	if p.Status != model.ProductStatusOn || sku.Status != model.ProductStatusOn {
		return sku, p, repo.ErrOffline
	}
	if sku.Stock < qty {
		return sku, p, repo.ErrInsufficientStock
	}

	//在庫が足りるときだけ減らす
	res := r.db.WithContext(ctx).
		Model(&model.ProductSKU{}).
		Where("id = ? AND stock >= ?", skuID, qty).
		Updates(map[string]interface{}{
			"stock":      gorm.Expr("stock - ?", qty),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return sku, p, mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return sku, p, repo.ErrInsufficientStock
	}

	sku.Stock -= qty
	return sku, p, nil
}

// 旧仕様: 商品行をロックして減算
func (r *InventoryGormRepository) LockAndDebitProduct(ctx context.Context, productID int64, qty int64) (model.Product, error) {
	var p model.Product
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		Where("id = ?", productID).
		First(&p).Error
	if err != nil {
		return model.Product{}, mapErr(err)
	}
	if p.Status != model.ProductStatusOn {
		return p, repo.ErrOffline
	}
	if p.Stock < qty {
		return p, repo.ErrInsufficientStock
	}

	res := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ? AND stock >= ?", productID, qty).
		Updates(map[string]interface{}{
			"stock":      gorm.Expr("stock - ?", qty),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return p, mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return p, repo.ErrInsufficientStock
	}

	p.Stock -= qty
	return p, nil
}

// 在庫戻し（キャンセル）
func (r *InventoryGormRepository) CreditSKU(ctx context.Context, skuID int64, qty int64) error {
	return r.credit(ctx, &model.ProductSKU{}, skuID, qty)
}

func (r *InventoryGormRepository) CreditProduct(ctx context.Context, productID int64, qty int64) error {
	return r.credit(ctx, &model.Product{}, productID, qty)
}

func (r *InventoryGormRepository) credit(ctx context.Context, m interface{}, id int64, qty int64) error {
	res := r.db.WithContext(ctx).
		Model(m).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"stock":      gorm.Expr("stock + ?", qty),
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

// 増減履歴作成
func (r *InventoryGormRepository) CreateAdjustment(ctx context.Context, adj model.InventoryAdjustment) error {
	if err := r.db.WithContext(ctx).Create(&adj).Error; err != nil {
		return mapErr(err)
	}
	return nil
}

func (r *InventoryGormRepository) ListAdjustmentsByOrderNo(ctx context.Context, orderNo string) ([]model.InventoryAdjustment, error) {
	var adjs []model.InventoryAdjustment
	err := r.db.WithContext(ctx).Where("order_no = ?", orderNo).Order("id asc").Find(&adjs).Error
	if err != nil {
		return []model.InventoryAdjustment{}, mapErr(err)
	}
	return adjs, nil
}
