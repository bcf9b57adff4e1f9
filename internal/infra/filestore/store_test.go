package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mall/internal/domain/model"
	repo "mall/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, opts ...Option) (*Store, *TxManager) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.json")
	s, err := Open(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, NewTxManager(s)
}

func readDoc(t *testing.T, path string) Document {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var d Document
	require.NoError(t, json.Unmarshal(b, &d))
	return d
}

func TestOpen_CreatesEmptyDocument(t *testing.T) {
	s, _ := openTestStore(t)

	d := readDoc(t, s.Path())
	assert.NotNil(t, d.Meta.NextIDs)
	assert.NotNil(t, d.Orders)
	assert.Empty(t, d.Orders)
}

func TestOpen_CorruptFileFallsBackToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s, err := Open(path)
	require.NoError(t, err)
	assert.Empty(t, s.doc.Products)
	assert.NotNil(t, s.doc.WelfareCodeUsage)
}

func TestOpen_AddsMissingTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	old := `{"_meta":{"nextIds":{"products":3}},"products":[{"id":2,"title":"old","stock":1,"status":1}]}`
	require.NoError(t, os.WriteFile(path, []byte(old), 0o644))

	s, err := Open(path)
	require.NoError(t, err)
	require.Len(t, s.doc.Products, 1)
	assert.NotNil(t, s.doc.Payments)
	assert.NotNil(t, s.doc.InventoryAdjustments)
	assert.Equal(t, int64(3), s.nextID(tableProducts))
}

func TestWithinTx_CommitIsFlushedImmediately(t *testing.T) {
	s, tm := openTestStore(t)
	ctx := context.Background()

	err := tm.WithinTx(ctx, func(r repo.TxRepos) error {
		_, err := r.Products().Create(ctx, model.Product{Title: "tea", Stock: 5, Status: model.ProductStatusOn})
		return err
	})
	require.NoError(t, err)

	d := readDoc(t, s.Path())
	require.Len(t, d.Products, 1)
	assert.Equal(t, "tea", d.Products[0].Title)
	assert.Equal(t, int64(2), d.Meta.NextIDs[tableProducts])
}

func TestWithinTx_ErrorRestoresSnapshot(t *testing.T) {
	s, tm := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, tm.WithinTx(ctx, func(r repo.TxRepos) error {
		_, err := r.Products().Create(ctx, model.Product{ID: 1, Title: "tea", Stock: 5, Status: model.ProductStatusOn})
		return err
	}))

	boom := errors.New("boom")
	err := tm.WithinTx(ctx, func(r repo.TxRepos) error {
		if _, err := r.Inventory().LockAndDebitProduct(ctx, 1, 3); err != nil {
			return err
		}
		if _, err := r.Orders().Create(ctx, model.Order{OrderNo: "O1", UserID: 1}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	p, err := (&productRepo{s: s}).FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), p.Stock)
	assert.Empty(t, s.doc.Orders)
	// 採番も戻る
	assert.Equal(t, int64(0), s.doc.Meta.NextIDs[tableOrders])

	d := readDoc(t, s.Path())
	assert.Equal(t, int64(5), d.Products[0].Stock)
}

func TestWithinTx_PanicRestoresSnapshot(t *testing.T) {
	s, tm := openTestStore(t)
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = tm.WithinTx(ctx, func(r repo.TxRepos) error {
			_, _ = r.Orders().Create(ctx, model.Order{OrderNo: "O1", UserID: 1})
			panic("boom")
		})
	})
	assert.Empty(t, s.doc.Orders)

	// ロックは解放されている
	require.NoError(t, tm.WithinTx(ctx, func(r repo.TxRepos) error { return nil }))
}

func TestWithinTx_BusyWhenLockHeld(t *testing.T) {
	_, tm := openTestStore(t, WithLockTimeout(30*time.Millisecond))
	ctx := context.Background()

	hold := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = tm.WithinTx(ctx, func(r repo.TxRepos) error {
			close(hold)
			<-done
			return nil
		})
	}()
	<-hold

	err := tm.WithinTx(ctx, func(r repo.TxRepos) error { return nil })
	close(done)
	assert.ErrorIs(t, err, repo.ErrBusy)
}

func TestUpdate_DebouncedFlush(t *testing.T) {
	s, tm := openTestStore(t, WithFlushDelay(200*time.Millisecond))
	ctx := context.Background()

	require.NoError(t, tm.Update(ctx, func(r repo.TxRepos) error {
		_, err := r.Products().Create(ctx, model.Product{Title: "late", Status: model.ProductStatusOn})
		return err
	}))

	// まだ書かれていない
	assert.Empty(t, readDoc(t, s.Path()).Products)

	assert.Eventually(t, func() bool {
		return len(readDoc(t, s.Path()).Products) == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestClose_FlushesPendingWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	s, err := Open(path, WithFlushDelay(time.Hour))
	require.NoError(t, err)
	tm := NewTxManager(s)
	ctx := context.Background()

	require.NoError(t, tm.Update(ctx, func(r repo.TxRepos) error {
		_, err := r.Products().Create(ctx, model.Product{Title: "x"})
		return err
	}))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Len(t, reopened.doc.Products, 1)
}

func TestWelfareConsumeOnce_ExhaustsAtMaxUsage(t *testing.T) {
	_, tm := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, tm.WithinTx(ctx, func(r repo.TxRepos) error {
		_, err := r.WelfareCodes().Create(ctx, model.WelfareCode{
			Code: "123456", ProductID: 7, PriceCent: 100,
			Status: model.WelfareCodeStatusActive, MaxUsage: 2,
		}, nil)
		return err
	}))

	consume := func(orderNo string) (model.WelfareCode, error) {
		var c model.WelfareCode
		err := tm.WithinTx(ctx, func(r repo.TxRepos) error {
			var err error
			c, err = r.WelfareCodes().ConsumeOnce(ctx, 7, "123456", orderNo, now)
			return err
		})
		return c, err
	}

	c, err := consume("O1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.UsedCount)
	assert.Equal(t, model.WelfareCodeStatusActive, c.Status)

	c, err = consume("O2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.UsedCount)
	assert.Equal(t, model.WelfareCodeStatusExhausted, c.Status)

	_, err = consume("O3")
	assert.ErrorIs(t, err, repo.ErrCodeUnavailable)

	// 別商品の同じコードは別物
	err = tm.WithinTx(ctx, func(r repo.TxRepos) error {
		_, err := r.WelfareCodes().FindExhausted(ctx, 8, "123456")
		return err
	})
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestPaginate(t *testing.T) {
	hits := func() []model.Order {
		out := make([]model.Order, 5)
		for i := range out {
			out[i].ID = int64(i + 1)
		}
		return out
	}

	page, total := paginate(hits(), 1, 2)
	assert.Equal(t, int64(5), total)
	require.Len(t, page, 2)
	assert.Equal(t, int64(5), page[0].ID)

	page, _ = paginate(hits(), 3, 2)
	require.Len(t, page, 1)
	assert.Equal(t, int64(1), page[0].ID)

	page, _ = paginate(hits(), 4, 2)
	assert.Empty(t, page)

	// 大きなpage/limitでも溢れない
	assert.NotPanics(t, func() {
		page, total = paginate(hits(), math.MaxInt, 50)
	})
	assert.Empty(t, page)
	assert.Equal(t, int64(5), total)

	page, _ = paginate(hits(), 1, math.MaxInt)
	assert.Len(t, page, 5)

	page, _ = paginate(nil, 1, 10)
	assert.Empty(t, page)
}

func TestPaymentMarkSuccess_OnePerOrder(t *testing.T) {
	_, tm := openTestStore(t)
	ctx := context.Background()

	var first, second model.Payment
	require.NoError(t, tm.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		first, err = r.Payments().Create(ctx, model.Payment{OrderNo: "O1", OutTradeNo: "P1", Amount: 100, Status: model.PaymentStatusPending})
		if err != nil {
			return err
		}
		second, err = r.Payments().Create(ctx, model.Payment{OrderNo: "O1", OutTradeNo: "P2", Amount: 100, Status: model.PaymentStatusPending})
		return err
	}))

	require.NoError(t, tm.WithinTx(ctx, func(r repo.TxRepos) error {
		ok, err := r.Payments().MarkSuccess(ctx, first.ID, "O1", "wx-1", nil)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = r.Payments().MarkSuccess(ctx, second.ID, "O1", "wx-2", nil)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := r.Payments().FindByOutTradeNo(ctx, "P2")
		require.NoError(t, err)
		assert.Equal(t, model.PaymentStatusPending, got.Status)
		assert.Nil(t, got.TransactionID)
		return nil
	}))
}
