package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"mall/internal/domain/model"
	"mall/internal/infra/filestore"
	repo "mall/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *filestore.TxManager {
	t.Helper()
	s, err := filestore.Open(filepath.Join(t.TempDir(), "store.json"), filestore.WithLockTimeout(10*time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return filestore.NewTxManager(s)
}

// 注文番号は連番（ランダムだと並行テストで衝突しうる）
func seqOrderNo() func(time.Time) string {
	var n int64
	return func(now time.Time) string {
		return fmt.Sprintf("O%s%04d", now.Format("20060102150405"), atomic.AddInt64(&n, 1))
	}
}

func newTestOrderUsecase(tx repo.TransactionManager) *OrderUsecase {
	u := NewOrderUsecase(tx, nil, nil, nil, true)
	u.now = func() time.Time { return testNow }
	u.newOrderNo = seqOrderNo()
	return u
}

func testAddress() model.AddressSnapshot {
	return model.AddressSnapshot{
		Name:   "Sato",
		Phone:  "09012345678",
		Region: "Tokyo Shibuya Jingumae",
		Detail: "1-2-3",
	}
}

func mustTx(t *testing.T, tx repo.TransactionManager, fn func(r repo.TxRepos) error) {
	t.Helper()
	require.NoError(t, tx.WithinTx(context.Background(), fn))
}

func seedProduct(t *testing.T, tx repo.TransactionManager, p model.Product) model.Product {
	t.Helper()
	if p.Status == 0 {
		p.Status = model.ProductStatusOn
	}
	var out model.Product
	mustTx(t, tx, func(r repo.TxRepos) error {
		var err error
		out, err = r.Products().Create(context.Background(), p)
		return err
	})
	return out
}

func seedSKU(t *testing.T, tx repo.TransactionManager, s model.ProductSKU) model.ProductSKU {
	t.Helper()
	var out model.ProductSKU
	mustTx(t, tx, func(r repo.TxRepos) error {
		var err error
		out, err = r.Products().CreateSKU(context.Background(), s)
		return err
	})
	return out
}

func seedWelfareCode(t *testing.T, tx repo.TransactionManager, c model.WelfareCode, items ...model.WelfareCodeItem) model.WelfareCode {
	t.Helper()
	if c.Status == "" {
		c.Status = model.WelfareCodeStatusActive
	}
	var out model.WelfareCode
	mustTx(t, tx, func(r repo.TxRepos) error {
		var err error
		out, err = r.WelfareCodes().Create(context.Background(), c, items)
		return err
	})
	return out
}

func loadSKU(t *testing.T, tx repo.TransactionManager, id int64) model.ProductSKU {
	t.Helper()
	var out model.ProductSKU
	mustTx(t, tx, func(r repo.TxRepos) error {
		var err error
		out, err = r.Products().FindSKUByID(context.Background(), id)
		return err
	})
	return out
}

func loadProduct(t *testing.T, tx repo.TransactionManager, id int64) model.Product {
	t.Helper()
	var out model.Product
	mustTx(t, tx, func(r repo.TxRepos) error {
		var err error
		out, err = r.Products().FindByID(context.Background(), id)
		return err
	})
	return out
}

func loadOrder(t *testing.T, tx repo.TransactionManager, orderNo string) model.Order {
	t.Helper()
	var out model.Order
	mustTx(t, tx, func(r repo.TxRepos) error {
		var err error
		out, err = r.Orders().FindByOrderNo(context.Background(), orderNo)
		return err
	})
	return out
}

func loadWelfareCode(t *testing.T, tx repo.TransactionManager, id int64) model.WelfareCode {
	t.Helper()
	var out model.WelfareCode
	mustTx(t, tx, func(r repo.TxRepos) error {
		var err error
		out, err = r.WelfareCodes().FindByID(context.Background(), id)
		return err
	})
	return out
}

func assertAppError(t *testing.T, err error, status int, code string) {
	t.Helper()
	ae, ok := AsAppError(err)
	if assert.True(t, ok, "want AppError, got %v", err) {
		assert.Equal(t, status, ae.Status)
		assert.Equal(t, code, ae.Code)
	}
}
