package filestore

import (
	"context"
	"sort"

	"mall/internal/domain/model"
)

const tableOrderChangeLogs = "order_change_logs"

type changeLogRepo struct {
	s *Store
}

func (r *changeLogRepo) Create(_ context.Context, log model.OrderChangeLog) error {
	log.ID = r.s.nextID(tableOrderChangeLogs)
	if log.CreatedAt.IsZero() {
		log.CreatedAt = r.s.now()
	}
	r.s.doc.OrderChangeLogs = append(r.s.doc.OrderChangeLogs, log)
	return nil
}

func (r *changeLogRepo) ListByOrderNo(_ context.Context, orderNo string) ([]model.OrderChangeLog, error) {
	out := []model.OrderChangeLog{}
	for _, l := range r.s.doc.OrderChangeLogs {
		if l.OrderNo == orderNo {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
