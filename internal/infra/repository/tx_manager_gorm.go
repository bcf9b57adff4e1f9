package repository

import (
	"context"
	"fmt"
	"time"

	repo "mall/internal/repository"

	"gorm.io/gorm"
)

type txReposGorm struct {
	orders       repo.OrderRepository
	orderItems   repo.OrderItemRepository
	products     repo.ProductRepository
	inventory    repo.InventoryRepository
	welfareCodes repo.WelfareCodeRepository
	payments     repo.PaymentRepository
	changeLogs   repo.OrderChangeLogRepository
}

func (r *txReposGorm) Orders() repo.OrderRepository              { return r.orders }
func (r *txReposGorm) OrderItems() repo.OrderItemRepository      { return r.orderItems }
func (r *txReposGorm) Products() repo.ProductRepository          { return r.products }
func (r *txReposGorm) Inventory() repo.InventoryRepository       { return r.inventory }
func (r *txReposGorm) WelfareCodes() repo.WelfareCodeRepository  { return r.welfareCodes }
func (r *txReposGorm) Payments() repo.PaymentRepository          { return r.payments }
func (r *txReposGorm) ChangeLogs() repo.OrderChangeLogRepository { return r.changeLogs }

type TxManagerGorm struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

func NewTxManagerGorm(db *gorm.DB, lockTimeout time.Duration) *TxManagerGorm {
	return &TxManagerGorm{db: db, lockTimeout: lockTimeout}
}

func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	var fnErr error
	err := tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tm.setLockTimeout(tx); err != nil {
			return err
		}

		//repoはtxを持ったDBで作り直す
		r := &txReposGorm{
			orders:       NewOrderGormRepository(tx),
			orderItems:   NewOrderItemGormRepository(tx),
			products:     NewProductGormRepository(tx),
			inventory:    NewInventoryGormRepository(tx),
			welfareCodes: NewWelfareCodeGormRepository(tx),
			payments:     NewPaymentGormRepository(tx),
			changeLogs:   NewOrderChangeLogGormRepository(tx),
		}
		fnErr = fn(r)
		return fnErr
	})
	if err != nil && fnErr == nil {
		// begin / commit 自体の失敗
		return mapErr(err)
	}
	return err
}

// 行ロック待ちの上限。超えたら ErrBusy になる
func (tm *TxManagerGorm) setLockTimeout(tx *gorm.DB) error {
	if tm.lockTimeout <= 0 {
		return nil
	}
	switch tx.Dialector.Name() {
	case "postgres":
		return tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", tm.lockTimeout.Milliseconds())).Error
	case "mysql":
		sec := int64(tm.lockTimeout / time.Second)
		if sec < 1 {
			sec = 1
		}
		// MySQLにSET LOCALはない。セッション変数はプールの接続に残るが、
		// どのtxも開始時に同じ値で上書きし、tx外の更新はしないので影響は揃う
		return tx.Exec(fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", sec)).Error
	}
	return nil
}
