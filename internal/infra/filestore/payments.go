package filestore

import (
	"context"

	"mall/internal/domain/model"
	repo "mall/internal/repository"

	"gorm.io/datatypes"
)

const tablePayments = "payments"

type paymentRepo struct {
	s *Store
}

func (r *paymentRepo) index(id int64) int {
	for i := range r.s.doc.Payments {
		if r.s.doc.Payments[i].ID == id {
			return i
		}
	}
	return -1
}

func (r *paymentRepo) Create(_ context.Context, p model.Payment) (model.Payment, error) {
	for _, e := range r.s.doc.Payments {
		if e.OutTradeNo == p.OutTradeNo {
			return model.Payment{}, errDuplicate(tablePayments, p.OutTradeNo)
		}
	}
	now := r.s.now()
	p.ID = r.s.nextID(tablePayments)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	r.s.doc.Payments = append(r.s.doc.Payments, p)
	return p, nil
}

func (r *paymentRepo) FindByOutTradeNo(_ context.Context, outTradeNo string) (model.Payment, error) {
	for _, p := range r.s.doc.Payments {
		if p.OutTradeNo == outTradeNo {
			return p, nil
		}
	}
	return model.Payment{}, repo.ErrNotFound
}

func (r *paymentRepo) ListByOrderNo(_ context.Context, orderNo string) ([]model.Payment, error) {
	out := []model.Payment{}
	for _, p := range r.s.doc.Payments {
		if p.OrderNo == orderNo {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *paymentRepo) MarkSuccess(_ context.Context, id int64, orderNo, transactionID string, payload []byte) (bool, error) {
	i := r.index(id)
	if i < 0 {
		return false, nil
	}
	for _, e := range r.s.doc.Payments {
		if e.OrderNo == orderNo && e.Status == model.PaymentStatusSuccess {
			return false, nil
		}
	}
	p := &r.s.doc.Payments[i]
	tid := transactionID
	p.Status = model.PaymentStatusSuccess
	p.TransactionID = &tid
	if len(payload) > 0 {
		p.NotifyPayload = datatypes.JSON(append([]byte(nil), payload...))
	}
	p.UpdatedAt = r.s.now()
	return true, nil
}

func (r *paymentRepo) UpdateStatus(_ context.Context, id int64, status model.PaymentStatus) error {
	i := r.index(id)
	if i < 0 {
		return repo.ErrNotFound
	}
	r.s.doc.Payments[i].Status = status
	r.s.doc.Payments[i].UpdatedAt = r.s.now()
	return nil
}

func (r *paymentRepo) ClosePending(_ context.Context, orderNo string, outTradeNo string) (int64, error) {
	var n int64
	now := r.s.now()
	for i := range r.s.doc.Payments {
		p := &r.s.doc.Payments[i]
		if p.OrderNo != orderNo || p.Status != model.PaymentStatusPending {
			continue
		}
		if outTradeNo != "" && p.OutTradeNo != outTradeNo {
			continue
		}
		p.Status = model.PaymentStatusClosed
		p.UpdatedAt = now
		n++
	}
	return n, nil
}
