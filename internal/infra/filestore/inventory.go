package filestore

import (
	"context"

	"mall/internal/domain/model"
	repo "mall/internal/repository"
)

const tableInventoryAdjustments = "inventory_adjustments"

// ストアを占有しているので確認と減算の間に他の書き込みは入らない
type inventoryRepo struct {
	s *Store
}

func (r *inventoryRepo) products() *productRepo { return &productRepo{s: r.s} }

func (r *inventoryRepo) LockAndDebitSKU(_ context.Context, productID int64, skuID int64, qty int64) (model.ProductSKU, model.Product, error) {
	si := r.products().skuIndex(skuID)
	if si < 0 || r.s.doc.ProductSKUs[si].ProductID != productID {
		return model.ProductSKU{}, model.Product{}, repo.ErrNotFound
	}
	pi := r.products().productIndex(productID)
	if pi < 0 {
		return model.ProductSKU{}, model.Product{}, repo.ErrNotFound
	}

	sku := &r.s.doc.ProductSKUs[si]
	p := r.s.doc.Products[pi]
	if p.Status != model.ProductStatusOn || sku.Status != model.ProductStatusOn {
		return *sku, p, repo.ErrOffline
	}
	if sku.Stock < qty {
		return *sku, p, repo.ErrInsufficientStock
	}

	sku.Stock -= qty
	sku.UpdatedAt = r.s.now()
	return *sku, p, nil
}

func (r *inventoryRepo) LockAndDebitProduct(_ context.Context, productID int64, qty int64) (model.Product, error) {
	pi := r.products().productIndex(productID)
	if pi < 0 {
		return model.Product{}, repo.ErrNotFound
	}
	p := &r.s.doc.Products[pi]
	if p.Status != model.ProductStatusOn {
		return *p, repo.ErrOffline
	}
	if p.Stock < qty {
		return *p, repo.ErrInsufficientStock
	}

	p.Stock -= qty
	p.UpdatedAt = r.s.now()
	return *p, nil
}

func (r *inventoryRepo) CreditSKU(_ context.Context, skuID int64, qty int64) error {
	si := r.products().skuIndex(skuID)
	if si < 0 {
		return repo.ErrNotFound
	}
	sku := &r.s.doc.ProductSKUs[si]
	sku.Stock += qty
	sku.UpdatedAt = r.s.now()
	return nil
}

func (r *inventoryRepo) CreditProduct(_ context.Context, productID int64, qty int64) error {
	pi := r.products().productIndex(productID)
	if pi < 0 {
		return repo.ErrNotFound
	}
	p := &r.s.doc.Products[pi]
	p.Stock += qty
	p.UpdatedAt = r.s.now()
	return nil
}

func (r *inventoryRepo) CreateAdjustment(_ context.Context, adj model.InventoryAdjustment) error {
	adj.ID = r.s.nextID(tableInventoryAdjustments)
	if adj.CreatedAt.IsZero() {
		adj.CreatedAt = r.s.now()
	}
	r.s.doc.InventoryAdjustments = append(r.s.doc.InventoryAdjustments, adj)
	return nil
}

func (r *inventoryRepo) ListAdjustmentsByOrderNo(_ context.Context, orderNo string) ([]model.InventoryAdjustment, error) {
	out := []model.InventoryAdjustment{}
	for _, a := range r.s.doc.InventoryAdjustments {
		if a.OrderNo == orderNo {
			out = append(out, a)
		}
	}
	return out, nil
}
