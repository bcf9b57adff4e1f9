package filestore

import (
	"bytes"
	"context"

	repo "mall/internal/repository"

	"go.uber.org/zap"
)

type txRepos struct {
	s *Store
}

func (r txRepos) Orders() repo.OrderRepository              { return &orderRepo{s: r.s} }
func (r txRepos) OrderItems() repo.OrderItemRepository      { return &orderItemRepo{s: r.s} }
func (r txRepos) Products() repo.ProductRepository          { return &productRepo{s: r.s} }
func (r txRepos) Inventory() repo.InventoryRepository       { return &inventoryRepo{s: r.s} }
func (r txRepos) WelfareCodes() repo.WelfareCodeRepository  { return &welfareCodeRepo{s: r.s} }
func (r txRepos) Payments() repo.PaymentRepository          { return &paymentRepo{s: r.s} }
func (r txRepos) ChangeLogs() repo.OrderChangeLogRepository { return &changeLogRepo{s: r.s} }

type TxManager struct {
	s *Store
}

func NewTxManager(s *Store) *TxManager {
	return &TxManager{s: s}
}

// fnの間はストアを占有する。
// エラー・panic・書き込み失敗のときは開始時点のドキュメントに戻す
func (tm *TxManager) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) (err error) {
	s := tm.s
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	snap, err := s.snapshot()
	if err != nil {
		return err
	}
	prevDirty := s.dirty

	defer func() {
		if p := recover(); p != nil {
			s.restore(snap, prevDirty)
			panic(p)
		}
	}()

	if err := fn(txRepos{s: s}); err != nil {
		s.restore(snap, prevDirty)
		return err
	}

	// 読み取りだけなら書き出さない
	if !s.dirty {
		if after, err := s.snapshot(); err == nil && bytes.Equal(after, snap) {
			return nil
		}
	}

	if err := s.save(); err != nil {
		s.logger.Error("filestore: commit flush failed, rolled back", zap.Error(err))
		s.restore(snap, prevDirty)
		if prevDirty {
			s.markDirty()
		}
		return err
	}
	return nil
}

// Update はスナップショットを取らずに書き込む（初期データ投入など）。
// 書き出しは遅延される
func (tm *TxManager) Update(ctx context.Context, fn func(r repo.TxRepos) error) error {
	s := tm.s
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	err := fn(txRepos{s: s})
	s.markDirty()
	return err
}
