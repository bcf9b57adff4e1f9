package filestore

import (
	"context"
	"time"

	"mall/internal/domain/model"
	repo "mall/internal/repository"
)

const (
	tableWelfareCodes     = "welfare_codes"
	tableWelfareCodeItems = "welfare_code_items"
	tableWelfareCodeUsage = "welfare_code_usage"
)

type welfareCodeRepo struct {
	s *Store
}

func (r *welfareCodeRepo) index(productID int64, code string) int {
	for i := range r.s.doc.WelfareCodes {
		c := r.s.doc.WelfareCodes[i]
		if c.ProductID == productID && c.Code == code {
			return i
		}
	}
	return -1
}

// ストア全体を占有しているので行ロックは不要
func (r *welfareCodeRepo) LockActive(ctx context.Context, productID int64, code string) (model.WelfareCode, error) {
	return r.FindActive(ctx, productID, code)
}

func (r *welfareCodeRepo) FindActive(_ context.Context, productID int64, code string) (model.WelfareCode, error) {
	i := r.index(productID, code)
	if i < 0 || !r.s.doc.WelfareCodes[i].Available() {
		return model.WelfareCode{}, repo.ErrNotFound
	}
	return r.s.doc.WelfareCodes[i], nil
}

func (r *welfareCodeRepo) FindExhausted(_ context.Context, productID int64, code string) (model.WelfareCode, error) {
	i := r.index(productID, code)
	if i < 0 || !r.s.doc.WelfareCodes[i].Exhausted() {
		return model.WelfareCode{}, repo.ErrNotFound
	}
	return r.s.doc.WelfareCodes[i], nil
}

func (r *welfareCodeRepo) ListItems(_ context.Context, welfareCodeID int64) ([]model.WelfareCodeItem, error) {
	out := []model.WelfareCodeItem{}
	for _, it := range r.s.doc.WelfareCodeItems {
		if it.WelfareCodeID == welfareCodeID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (r *welfareCodeRepo) ConsumeOnce(_ context.Context, productID int64, code string, orderNo string, now time.Time) (model.WelfareCode, error) {
	i := r.index(productID, code)
	if i < 0 || !r.s.doc.WelfareCodes[i].Available() {
		return model.WelfareCode{}, repo.ErrCodeUnavailable
	}

	c := &r.s.doc.WelfareCodes[i]
	if c.UsedCount+1 >= c.MaxUsage {
		c.Status = model.WelfareCodeStatusExhausted
	}
	c.UsedCount++
	no := orderNo
	at := now
	c.ConsumedOrderNo = &no
	c.ConsumedAt = &at
	c.UpdatedAt = now
	return *c, nil
}

func (r *welfareCodeRepo) HasUsage(_ context.Context, orderNo string) (bool, error) {
	for _, u := range r.s.doc.WelfareCodeUsage {
		if u.OrderNo == orderNo {
			return true, nil
		}
	}
	return false, nil
}

func (r *welfareCodeRepo) RecordUsage(ctx context.Context, usage model.WelfareCodeUsage) error {
	// order_noはユニーク
	dup, _ := r.HasUsage(ctx, usage.OrderNo)
	if dup {
		return errDuplicate(tableWelfareCodeUsage, usage.OrderNo)
	}
	usage.ID = r.s.nextID(tableWelfareCodeUsage)
	if usage.CreatedAt.IsZero() {
		usage.CreatedAt = r.s.now()
	}
	r.s.doc.WelfareCodeUsage = append(r.s.doc.WelfareCodeUsage, usage)
	return nil
}

func (r *welfareCodeRepo) Create(_ context.Context, c model.WelfareCode, items []model.WelfareCodeItem) (model.WelfareCode, error) {
	if r.index(c.ProductID, c.Code) >= 0 {
		return model.WelfareCode{}, errDuplicate(tableWelfareCodes, c.Code)
	}
	now := r.s.now()
	c.ID = r.s.assignID(tableWelfareCodes, c.ID)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	r.s.doc.WelfareCodes = append(r.s.doc.WelfareCodes, c)

	for _, it := range items {
		it.ID = r.s.assignID(tableWelfareCodeItems, it.ID)
		it.WelfareCodeID = c.ID
		if it.CreatedAt.IsZero() {
			it.CreatedAt = now
		}
		r.s.doc.WelfareCodeItems = append(r.s.doc.WelfareCodeItems, it)
	}
	return c, nil
}

func (r *welfareCodeRepo) FindByID(_ context.Context, id int64) (model.WelfareCode, error) {
	for _, c := range r.s.doc.WelfareCodes {
		if c.ID == id {
			return c, nil
		}
	}
	return model.WelfareCode{}, repo.ErrNotFound
}

func (r *welfareCodeRepo) ListUsage(_ context.Context, welfareCodeID int64) ([]model.WelfareCodeUsage, error) {
	out := []model.WelfareCodeUsage{}
	for _, u := range r.s.doc.WelfareCodeUsage {
		if u.WelfareCodeID == welfareCodeID {
			out = append(out, u)
		}
	}
	return out, nil
}
