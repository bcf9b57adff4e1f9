package usecase

import (
	"context"
	"time"

	"mall/internal/domain/model"
	repo "mall/internal/repository"
)

// 状態変更ログを1件残す
func logStatusChange(ctx context.Context, r repo.TxRepos, orderNo string, kind model.OrderChangeType, from, to model.OrderStatus, operator, reason string, now time.Time) error {
	return r.ChangeLogs().Create(ctx, model.OrderChangeLog{
		OrderNo:    orderNo,
		ChangeType: kind,
		FieldName:  "status",
		OldValue:   string(from),
		NewValue:   string(to),
		Operator:   operator,
		Reason:     reason,
		CreatedAt:  now,
	})
}

// 注文明細の在庫を戻す（キャンセル・クローズ）
func restockOrder(ctx context.Context, r repo.TxRepos, orderNo string, reason string, now time.Time) error {
	items, err := r.OrderItems().ListByOrderNo(ctx, orderNo)
	if err != nil {
		return err
	}
	for _, it := range items {
		adj := model.InventoryAdjustment{
			ProductID: it.ProductID,
			OrderNo:   orderNo,
			Delta:     it.Quantity,
			Reason:    reason,
			CreatedAt: now,
		}
		switch it.StockSource {
		case model.StockSourceSKU:
			if err := r.Inventory().CreditSKU(ctx, it.SkuID, it.Quantity); err != nil {
				return err
			}
			skuID := it.SkuID
			adj.SkuID = &skuID
		case model.StockSourceProduct:
			if err := r.Inventory().CreditProduct(ctx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		default:
			// 福利コードの明細は在庫を持たない
			continue
		}
		if err := r.Inventory().CreateAdjustment(ctx, adj); err != nil {
			return err
		}
	}
	return nil
}

// 再オープン時に在庫を取り直す
func redebitOrder(ctx context.Context, r repo.TxRepos, orderNo string, reason string, now time.Time) error {
	items, err := r.OrderItems().ListByOrderNo(ctx, orderNo)
	if err != nil {
		return err
	}
	for _, it := range items {
		adj := model.InventoryAdjustment{
			ProductID: it.ProductID,
			OrderNo:   orderNo,
			Delta:     -it.Quantity,
			Reason:    reason,
			CreatedAt: now,
		}
		switch it.StockSource {
		case model.StockSourceSKU:
			if _, _, err := r.Inventory().LockAndDebitSKU(ctx, it.ProductID, it.SkuID, it.Quantity); err != nil {
				return stockError(err, it.SkuTitle)
			}
			skuID := it.SkuID
			adj.SkuID = &skuID
		case model.StockSourceProduct:
			if _, err := r.Inventory().LockAndDebitProduct(ctx, it.ProductID, it.Quantity); err != nil {
				return stockError(err, it.SkuTitle)
			}
		default:
			continue
		}
		if err := r.Inventory().CreateAdjustment(ctx, adj); err != nil {
			return err
		}
	}
	return nil
}
