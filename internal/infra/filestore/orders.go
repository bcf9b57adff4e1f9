package filestore

import (
	"context"
	"sort"
	"strings"

	"mall/internal/domain/model"
	repo "mall/internal/repository"
)

const (
	tableOrders     = "orders"
	tableOrderItems = "order_items"
)

type orderRepo struct {
	s *Store
}

func (r *orderRepo) index(orderNo string) int {
	for i := range r.s.doc.Orders {
		if r.s.doc.Orders[i].OrderNo == orderNo {
			return i
		}
	}
	return -1
}

func (r *orderRepo) FindByOrderNo(_ context.Context, orderNo string) (model.Order, error) {
	i := r.index(orderNo)
	if i < 0 {
		return model.Order{}, repo.ErrNotFound
	}
	return r.s.doc.Orders[i], nil
}

// ストア全体をWithinTxで占有しているのでロックは不要
func (r *orderRepo) FindByOrderNoForUpdate(ctx context.Context, orderNo string) (model.Order, error) {
	return r.FindByOrderNo(ctx, orderNo)
}

func (r *orderRepo) ListByUserID(_ context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	var hits []model.Order
	for _, o := range r.s.doc.Orders {
		if o.UserID == userID {
			hits = append(hits, o)
		}
	}
	items, total := paginate(hits, page, limit)
	return items, total, nil
}

func (r *orderRepo) Create(_ context.Context, o model.Order) (int64, error) {
	// order_noはユニーク
	if r.index(o.OrderNo) >= 0 {
		return 0, errDuplicate(tableOrders, o.OrderNo)
	}
	now := r.s.now()
	o.ID = r.s.nextID(tableOrders)
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = now
	}
	r.s.doc.Orders = append(r.s.doc.Orders, o)
	return o.ID, nil
}

func (r *orderRepo) TransitionStatus(_ context.Context, orderNo string, from []model.OrderStatus, to model.OrderStatus) (bool, error) {
	i := r.index(orderNo)
	if i < 0 {
		return false, nil
	}
	o := &r.s.doc.Orders[i]
	for _, f := range from {
		if o.Status == f {
			o.Status = to
			o.Version++
			o.UpdatedAt = r.s.now()
			return true, nil
		}
	}
	return false, nil
}

func (r *orderRepo) ListAdmin(_ context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	var hits []model.Order
	for _, o := range r.s.doc.Orders {
		if f.Status != "" && string(o.Status) != f.Status {
			continue
		}
		if f.OrderNo != "" && !strings.Contains(o.OrderNo, f.OrderNo) {
			continue
		}
		if f.UserID != nil && o.UserID != *f.UserID {
			continue
		}
		if f.From != nil && o.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && o.CreatedAt.After(*f.To) {
			continue
		}
		hits = append(hits, o)
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	items, total := paginate(hits, f.Page, f.Limit)
	return items, total, nil
}

// 新しい順（id desc）にしてページを切り出す
func paginate(hits []model.Order, page, limit int) ([]model.Order, int64) {
	sort.Slice(hits, func(i, j int) bool { return hits[i].ID > hits[j].ID })
	total := int64(len(hits))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	// (page-1)*limit が溢れないよう、先にページ数と比べる
	pages := len(hits) / limit
	if len(hits)%limit != 0 {
		pages++
	}
	if page > pages {
		return []model.Order{}, total
	}
	start := (page - 1) * limit
	end := len(hits)
	if end-start > limit {
		end = start + limit
	}
	return hits[start:end], total
}

type orderItemRepo struct {
	s *Store
}

func (r *orderItemRepo) CreateBulk(_ context.Context, orderNo string, items []model.OrderItem) error {
	now := r.s.now()
	for _, it := range items {
		it.ID = r.s.nextID(tableOrderItems)
		it.OrderNo = orderNo
		if it.CreatedAt.IsZero() {
			it.CreatedAt = now
		}
		r.s.doc.OrderItems = append(r.s.doc.OrderItems, it)
	}
	return nil
}

func (r *orderItemRepo) ListByOrderNo(_ context.Context, orderNo string) ([]model.OrderItem, error) {
	out := []model.OrderItem{}
	for _, it := range r.s.doc.OrderItems {
		if it.OrderNo == orderNo {
			out = append(out, it)
		}
	}
	return out, nil
}
