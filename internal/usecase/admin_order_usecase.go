package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"mall/internal/domain/model"
	repo "mall/internal/repository"

	"go.uber.org/zap"
)

type AdminOrderUsecase struct {
	tx     repo.TransactionManager
	closer PaymentCloser
	logger *zap.Logger
	now    func() time.Time
}

func NewAdminOrderUsecase(tx repo.TransactionManager, closer PaymentCloser, logger *zap.Logger) *AdminOrderUsecase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminOrderUsecase{tx: tx, closer: closer, logger: logger, now: time.Now}
}

type AdminOrderListOutput struct {
	Total  int64         `json:"total"`
	Page   int           `json:"page"`
	Limit  int           `json:"limit"`
	Orders []OrderOutput `json:"orders"`
}

// 注文一覧
func (u *AdminOrderUsecase) List(ctx context.Context, f repo.AdminOrderListFilter) (AdminOrderListOutput, error) {
	// page/limitの最低限チェック
	if f.Page < 1 || f.Page > MaxListPage {
		return AdminOrderListOutput{}, badRequest("invalid page")
	}
	if f.Limit < 1 || f.Limit > 100 {
		return AdminOrderListOutput{}, badRequest("invalid limit")
	}
	if f.Status != "" && !validOrderStatus(model.OrderStatus(f.Status)) {
		return AdminOrderListOutput{}, badRequest("invalid status")
	}

	out := AdminOrderListOutput{Page: f.Page, Limit: f.Limit}
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListAdmin(ctx, f)
		if err != nil {
			return err
		}
		out.Total = total
		out.Orders = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			items, err := r.OrderItems().ListByOrderNo(ctx, o.OrderNo)
			if err != nil {
				return err
			}
			out.Orders = append(out.Orders, toOrderOutput(o, items))
		}
		return nil
	})
	if err != nil {
		return AdminOrderListOutput{}, logInternal(u.logger, "admin list orders", toAppError(err))
	}
	return out, nil
}

// 未払いのまま閉じる（在庫戻し・未払いの支払いもCLOSED）
func (u *AdminOrderUsecase) Close(ctx context.Context, orderNo, reason string) error {
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" {
		return badRequest("orderNo required")
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "closed by admin"
	}

	var pending []string
	now := u.now()
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := findOrder(ctx, r, orderNo)
		if err != nil {
			return err
		}
		from := []model.OrderStatus{model.OrderStatusPendingPayment, model.OrderStatusWaitShip}
		if !containsStatus(from, o.Status) {
			return stateConflict("order cannot be closed in status " + string(o.Status))
		}

		ok, err := r.Orders().TransitionStatus(ctx, orderNo, from, model.OrderStatusClosedUnpaid)
		if err != nil {
			return err
		}
		if !ok {
			return stateConflict("order status changed, reload and retry")
		}

		pays, err := r.Payments().ListByOrderNo(ctx, orderNo)
		if err != nil {
			return err
		}
		for _, p := range pays {
			if p.Status == model.PaymentStatusPending {
				pending = append(pending, p.OutTradeNo)
			}
		}
		if _, err := r.Payments().ClosePending(ctx, orderNo, ""); err != nil {
			return err
		}

		if err := restockOrder(ctx, r, orderNo, "order closed", now); err != nil {
			return err
		}
		return logStatusChange(ctx, r, orderNo, model.OrderChangeClose,
			o.Status, model.OrderStatusClosedUnpaid, model.OperatorAdmin, reason, now)
	})
	if err != nil {
		return logInternal(u.logger, "admin close order", toAppError(err))
	}

	if u.closer != nil {
		for _, no := range pending {
			if err := u.closer.CloseOrder(ctx, no); err != nil {
				u.logger.Warn("close remote payment failed", zap.String("out_trade_no", no), zap.Error(err))
			}
		}
	}
	return nil
}

// CLOSED_UNPAID から戻す。在庫は取り直す（足りなければ失敗）
func (u *AdminOrderUsecase) Reopen(ctx context.Context, orderNo string, target model.OrderStatus, reason string) error {
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" {
		return badRequest("orderNo required")
	}
	if target == "" {
		target = model.OrderStatusPendingPayment
	}
	if target != model.OrderStatusPendingPayment && target != model.OrderStatusWaitShip {
		return badRequest("invalid target status")
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "reopened by admin"
	}

	now := u.now()
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := findOrder(ctx, r, orderNo)
		if err != nil {
			return err
		}
		if o.Status != model.OrderStatusClosedUnpaid {
			return stateConflict("only closed orders can be reopened")
		}

		ok, err := r.Orders().TransitionStatus(ctx, orderNo, []model.OrderStatus{model.OrderStatusClosedUnpaid}, target)
		if err != nil {
			return err
		}
		if !ok {
			return stateConflict("order status changed, reload and retry")
		}

		if err := redebitOrder(ctx, r, orderNo, "order reopened", now); err != nil {
			return err
		}
		return logStatusChange(ctx, r, orderNo, model.OrderChangeReopen,
			model.OrderStatusClosedUnpaid, target, model.OperatorAdmin, reason, now)
	})
	if err != nil {
		return logInternal(u.logger, "admin reopen order", toAppError(err))
	}
	return nil
}

// 出荷系のステータス更新（WAIT_SHIP→SHIPPED→COMPLETED）
func (u *AdminOrderUsecase) UpdateStatus(ctx context.Context, orderNo string, newStatus model.OrderStatus) error {
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" {
		return badRequest("orderNo required")
	}

	var from model.OrderStatus
	switch newStatus {
	case model.OrderStatusShipped:
		from = model.OrderStatusWaitShip
	case model.OrderStatusCompleted:
		from = model.OrderStatusShipped
	default:
		return badRequest("invalid status")
	}

	now := u.now()
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := findOrder(ctx, r, orderNo)
		if err != nil {
			return err
		}
		// すでに同じなら何もしない（200）
		if o.Status == newStatus {
			return nil
		}
		if o.Status != from {
			return stateConflict("cannot change " + string(o.Status) + " order to " + string(newStatus))
		}

		ok, err := r.Orders().TransitionStatus(ctx, orderNo, []model.OrderStatus{from}, newStatus)
		if err != nil {
			return err
		}
		if !ok {
			return stateConflict("order status changed, reload and retry")
		}
		return logStatusChange(ctx, r, orderNo, model.OrderChangeStatus,
			from, newStatus, model.OperatorAdmin, "updated by admin", now)
	})
	if err != nil {
		return logInternal(u.logger, "admin update order status", toAppError(err))
	}
	return nil
}

type ChangeLogOutput struct {
	ChangeType string    `json:"changeType"`
	FieldName  string    `json:"fieldName"`
	OldValue   string    `json:"oldValue"`
	NewValue   string    `json:"newValue"`
	Operator   string    `json:"operator"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"createdAt"`
}

// 変更ログ（新しい順）
func (u *AdminOrderUsecase) ChangeLogs(ctx context.Context, orderNo string) ([]ChangeLogOutput, error) {
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" {
		return nil, badRequest("orderNo required")
	}

	var out []ChangeLogOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if _, err := findOrder(ctx, r, orderNo); err != nil {
			return err
		}
		logs, err := r.ChangeLogs().ListByOrderNo(ctx, orderNo)
		if err != nil {
			return err
		}
		out = make([]ChangeLogOutput, 0, len(logs))
		for _, l := range logs {
			out = append(out, ChangeLogOutput{
				ChangeType: string(l.ChangeType),
				FieldName:  l.FieldName,
				OldValue:   l.OldValue,
				NewValue:   l.NewValue,
				Operator:   l.Operator,
				Reason:     l.Reason,
				CreatedAt:  l.CreatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, logInternal(u.logger, "admin change logs", toAppError(err))
	}
	return out, nil
}

func findOrder(ctx context.Context, r repo.TxRepos, orderNo string) (model.Order, error) {
	o, err := r.Orders().FindByOrderNo(ctx, orderNo)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Order{}, notFound("order not found")
	}
	return o, err
}

func containsStatus(list []model.OrderStatus, s model.OrderStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func validOrderStatus(s model.OrderStatus) bool {
	switch s {
	case model.OrderStatusPendingPayment, model.OrderStatusWaitShip, model.OrderStatusShipped,
		model.OrderStatusCompleted, model.OrderStatusCancelled, model.OrderStatusClosedUnpaid:
		return true
	}
	return false
}

// 期間パラメータ（handlerでパースしてfilterに入れる）
func ParseDateTimeRFC3339(s string) (*time.Time, bool) {
	if strings.TrimSpace(s) == "" {
		return nil, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, false
	}
	return &t, true
}
