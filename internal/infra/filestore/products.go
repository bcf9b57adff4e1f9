package filestore

import (
	"context"

	"mall/internal/domain/model"
	repo "mall/internal/repository"
)

const (
	tableProducts    = "products"
	tableProductSKUs = "product_skus"
)

type productRepo struct {
	s *Store
}

func (r *productRepo) productIndex(id int64) int {
	for i := range r.s.doc.Products {
		if r.s.doc.Products[i].ID == id {
			return i
		}
	}
	return -1
}

func (r *productRepo) skuIndex(id int64) int {
	for i := range r.s.doc.ProductSKUs {
		if r.s.doc.ProductSKUs[i].ID == id {
			return i
		}
	}
	return -1
}

func (r *productRepo) FindByID(_ context.Context, id int64) (model.Product, error) {
	i := r.productIndex(id)
	if i < 0 {
		return model.Product{}, repo.ErrNotFound
	}
	return r.s.doc.Products[i], nil
}

func (r *productRepo) ListShippingPolicies(_ context.Context, ids []int64) ([]model.ShippingPolicy, error) {
	out := make([]model.ShippingPolicy, 0, len(ids))
	for _, id := range ids {
		i := r.productIndex(id)
		if i < 0 {
			continue
		}
		p := r.s.doc.Products[i]
		out = append(out, model.ShippingPolicy{
			ProductID:       p.ID,
			ShippingFeeCent: p.ShippingFeeCent,
			FreeShippingQty: p.FreeShippingQty,
		})
	}
	return out, nil
}

func (r *productRepo) Create(_ context.Context, p model.Product) (model.Product, error) {
	if p.ID > 0 && r.productIndex(p.ID) >= 0 {
		return model.Product{}, errDuplicate(tableProducts, p.ID)
	}
	now := r.s.now()
	p.ID = r.s.assignID(tableProducts, p.ID)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	r.s.doc.Products = append(r.s.doc.Products, p)
	return p, nil
}

func (r *productRepo) CreateSKU(_ context.Context, sku model.ProductSKU) (model.ProductSKU, error) {
	if r.productIndex(sku.ProductID) < 0 {
		return model.ProductSKU{}, repo.ErrNotFound
	}
	if sku.ID > 0 && r.skuIndex(sku.ID) >= 0 {
		return model.ProductSKU{}, errDuplicate(tableProductSKUs, sku.ID)
	}
	now := r.s.now()
	sku.ID = r.s.assignID(tableProductSKUs, sku.ID)
	if sku.CreatedAt.IsZero() {
		sku.CreatedAt = now
	}
	if sku.UpdatedAt.IsZero() {
		sku.UpdatedAt = now
	}
	r.s.doc.ProductSKUs = append(r.s.doc.ProductSKUs, sku)
	return sku, nil
}

func (r *productRepo) FindSKUByID(_ context.Context, id int64) (model.ProductSKU, error) {
	i := r.skuIndex(id)
	if i < 0 {
		return model.ProductSKU{}, repo.ErrNotFound
	}
	return r.s.doc.ProductSKUs[i], nil
}
