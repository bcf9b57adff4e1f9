package repository

import (
	"context"

	"mall/internal/domain/model"
)

// 在庫台帳。ロック取得と減算は必ず同じ呼び出しで行う（確認と減算の間に隙間を作らない）
type InventoryRepository interface {
	// SKU行（と親商品の状態）をロックし、足りるときだけ減算する。
	// ErrNotFound / ErrOffline / ErrInsufficientStock を返す
	LockAndDebitSKU(ctx context.Context, productID int64, skuID int64, qty int64) (model.ProductSKU, model.Product, error)

	// 旧仕様: 商品行を直接ロックして減算
	LockAndDebitProduct(ctx context.Context, productID int64, qty int64) (model.Product, error)

	// 在庫戻し（キャンセルなど）
	CreditSKU(ctx context.Context, skuID int64, qty int64) error
	CreditProduct(ctx context.Context, productID int64, qty int64) error

	// 増減履歴
	CreateAdjustment(ctx context.Context, adj model.InventoryAdjustment) error
	ListAdjustmentsByOrderNo(ctx context.Context, orderNo string) ([]model.InventoryAdjustment, error)
}
