package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"mall/internal/domain/model"
	"mall/internal/events"
	"mall/internal/payment/wxpay"
	repo "mall/internal/repository"

	"go.uber.org/zap"
)

// WeChat Pay v3 の呼び出し
type PaymentClient interface {
	JSAPIPrepay(ctx context.Context, outTradeNo, description string, amountCent int64, openID string) (wxpay.JSAPIParams, error)
	QueryOrder(ctx context.Context, outTradeNo string) (wxpay.Transaction, error)
	CloseOrder(ctx context.Context, outTradeNo string) error
}

// serialはWechatpay-Serial（どの証明書で検証するか）
type NotifyVerifier interface {
	Verify(ctx context.Context, serial, timestamp, nonce string, body []byte, signature string) error
}

// 通知IDの重複チェック（高速パス）。正はwelfare_code_usageと支払いの状態
type NotifyDeduper interface {
	Seen(ctx context.Context, id string) (bool, error)
	Mark(ctx context.Context, id string) error
}

type NotifyHeaders struct {
	Timestamp string
	Nonce     string
	Signature string
	Serial    string
}

type PaymentUsecase struct {
	tx        repo.TransactionManager
	welfare   *WelfareCodeUsecase
	client    PaymentClient
	verifier  NotifyVerifier
	dedup     NotifyDeduper
	publisher events.Publisher
	apiV3Key  string
	logger    *zap.Logger

	now           func() time.Time
	newOutTradeNo func(time.Time) string
}

type PaymentDeps struct {
	Welfare   *WelfareCodeUsecase
	Client    PaymentClient
	Verifier  NotifyVerifier
	Dedup     NotifyDeduper
	Publisher events.Publisher
	APIv3Key  string
}

func NewPaymentUsecase(tx repo.TransactionManager, deps PaymentDeps, logger *zap.Logger) *PaymentUsecase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher{}
	}
	if deps.Welfare == nil {
		deps.Welfare = NewWelfareCodeUsecase(tx, logger)
	}
	return &PaymentUsecase{
		tx:            tx,
		welfare:       deps.Welfare,
		client:        deps.Client,
		verifier:      deps.Verifier,
		dedup:         deps.Dedup,
		publisher:     deps.Publisher,
		apiV3Key:      deps.APIv3Key,
		logger:        logger,
		now:           time.Now,
		newOutTradeNo: wxpay.NewOutTradeNo,
	}
}

type PrepayOutput struct {
	OutTradeNo string `json:"outTradeNo"`
	wxpay.JSAPIParams
}

// 支払い記録を作ってJSAPIの前払いを呼ぶ
func (u *PaymentUsecase) Prepay(ctx context.Context, userID int64, orderNo, openID string) (PrepayOutput, error) {
	if userID <= 0 {
		return PrepayOutput{}, unauthenticated()
	}
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" {
		return PrepayOutput{}, badRequest("orderNo required")
	}
	if strings.TrimSpace(openID) == "" {
		return PrepayOutput{}, badRequest("openId required")
	}

	var pay model.Payment
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByOrderNo(ctx, orderNo)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("order not found")
		}
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return notFound("order not found")
		}
		if o.Status != model.OrderStatusPendingPayment {
			return stateConflict("order is not pending payment")
		}

		//福利コード注文は、コードがまだ使えるか
		if o.InviteCode != nil && IsWelfareCode(*o.InviteCode) && o.WelfareProductID != nil {
			if _, err := findUsableCode(ctx, r, *o.WelfareProductID, *o.InviteCode, false); err != nil {
				return err
			}
		}

		now := u.now()
		pay, err = r.Payments().Create(ctx, model.Payment{
			OrderNo:    o.OrderNo,
			Channel:    model.PaymentChannelWechat,
			OutTradeNo: u.newOutTradeNo(now),
			Amount:     o.TotalAmount,
			Status:     model.PaymentStatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		return err
	})
	if err != nil {
		return PrepayOutput{}, logInternal(u.logger, "prepay", toAppError(err))
	}

	if u.client == nil {
		return PrepayOutput{OutTradeNo: pay.OutTradeNo}, NewAppError(KindBadInput, CodeWxPayNotConfigured, "wechat pay is not configured")
	}

	params, err := u.client.JSAPIPrepay(ctx, pay.OutTradeNo, "Order "+orderNo, pay.Amount, openID)
	if err != nil {
		return PrepayOutput{}, u.upstream("prepay", pay.OutTradeNo, err)
	}
	return PrepayOutput{OutTradeNo: pay.OutTradeNo, JSAPIParams: params}, nil
}

// 相手側のステータスだけログに残す
func (u *PaymentUsecase) upstream(op, outTradeNo string, err error) error {
	fields := []zap.Field{zap.String("op", op), zap.String("out_trade_no", outTradeNo)}
	msg := "wechat pay request failed"
	var apiErr *wxpay.APIError
	if errors.As(err, &apiErr) {
		fields = append(fields, zap.Int("upstream_status", apiErr.Status), zap.String("upstream_code", apiErr.Code))
		msg = fmt.Sprintf("wechat pay request failed (HTTP %d)", apiErr.Status)
	} else {
		fields = append(fields, zap.Error(err))
	}
	u.logger.Error("wxpay upstream failure", fields...)
	return &AppError{Kind: KindUpstream, Status: kindStatus[KindUpstream], Code: CodeUpstreamFailure, Message: msg, Err: err}
}

// 支払い通知を反映する。同じ通知が何度届いても結果は1回分
func (u *PaymentUsecase) HandleNotification(ctx context.Context, h NotifyHeaders, body []byte) error {
	//署名の検証は復号より先
	if u.verifier != nil {
		if err := u.verifier.Verify(ctx, h.Serial, h.Timestamp, h.Nonce, body, h.Signature); err != nil {
			return NewAppError(KindUnauthenticated, CodeUnauthorized, "invalid notify signature")
		}
	} else {
		u.logger.Warn("wxpay notify signature not verified", zap.String("reason", "platform key not configured"))
	}

	n, err := wxpay.ParseNotification(body)
	if err != nil {
		return NewAppError(KindBadInput, CodeInvalidParams, "invalid notify body")
	}
	if u.apiV3Key == "" {
		return NewAppError(KindBadInput, CodeWxPayNotConfigured, "wechat pay is not configured")
	}
	trx, err := wxpay.DecryptTransaction(*n.Resource, u.apiV3Key)
	if err != nil {
		return NewAppError(KindBadInput, CodeInvalidParams, "notify resource could not be decrypted")
	}
	if trx.OutTradeNo == "" {
		return nil
	}

	if u.dedup != nil && n.ID != "" {
		seen, err := u.dedup.Seen(ctx, n.ID)
		if err != nil {
			u.logger.Warn("notify dedup lookup failed", zap.String("notify_id", n.ID), zap.Error(err))
		} else if seen {
			return nil
		}
	}

	payload, err := json.Marshal(map[string]string{
		"id":          n.ID,
		"create_time": n.CreateTime,
		"event_type":  n.EventType,
		"serial":      h.Serial,
	})
	if err != nil {
		return internal(err)
	}

	paid, err := u.reconcile(ctx, trx, payload)
	if err != nil {
		return logInternal(u.logger, "handle notify", toAppError(err))
	}

	if u.dedup != nil && n.ID != "" {
		if err := u.dedup.Mark(ctx, n.ID); err != nil {
			u.logger.Warn("notify dedup mark failed", zap.String("notify_id", n.ID), zap.Error(err))
		}
	}
	if paid != nil {
		u.publish(ctx, *paid)
	}
	return nil
}

// 取引の状態を支払い・注文に反映する。支払い済みにしたときだけ結果を返す
func (u *PaymentUsecase) reconcile(ctx context.Context, trx wxpay.Transaction, payload []byte) (*events.OrderPaidPayload, error) {
	var (
		paid     *events.OrderPaidPayload
		siblings []string
	)

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		siblings = nil
		pay, err := r.Payments().FindByOutTradeNo(ctx, trx.OutTradeNo)
		if errors.Is(err, repo.ErrNotFound) {
			u.logger.Info("notify for unknown payment", zap.String("out_trade_no", trx.OutTradeNo))
			return nil
		}
		if err != nil {
			return err
		}
		if pay.Status == model.PaymentStatusSuccess {
			return nil
		}

		if trx.TradeState != wxpay.TradeStateSuccess {
			st := paymentStatusFromTradeState(trx.TradeState)
			if st == pay.Status {
				return nil
			}
			return r.Payments().UpdateStatus(ctx, pay.ID, st)
		}

		//同じ注文の支払い反映は直列に
		if _, err := r.Orders().FindByOrderNoForUpdate(ctx, pay.OrderNo); err != nil {
			return err
		}

		ok, err := r.Payments().MarkSuccess(ctx, pay.ID, pay.OrderNo, trx.TransactionID, payload)
		if err != nil {
			return err
		}
		if !ok {
			// 別の支払いで既に成立している。二重払いは返金で処理する
			u.logger.Warn("duplicate payment for paid order, refund required",
				zap.String("order_no", pay.OrderNo),
				zap.String("out_trade_no", pay.OutTradeNo),
				zap.String("transaction_id", trx.TransactionID),
				zap.Int64("amount", pay.Amount),
			)
			return nil
		}

		//残りの支払い試行は閉じる
		ps, err := r.Payments().ListByOrderNo(ctx, pay.OrderNo)
		if err != nil {
			return err
		}
		for _, p := range ps {
			if p.Status == model.PaymentStatusPending {
				siblings = append(siblings, p.OutTradeNo)
			}
		}
		if len(siblings) > 0 {
			if _, err := r.Payments().ClosePending(ctx, pay.OrderNo, ""); err != nil {
				return err
			}
		}

		now := u.now()
		moved, err := r.Orders().TransitionStatus(ctx, pay.OrderNo,
			[]model.OrderStatus{model.OrderStatusPendingPayment}, model.OrderStatusWaitShip)
		if err != nil {
			return err
		}
		if moved {
			if err := logStatusChange(ctx, r, pay.OrderNo, model.OrderChangeStatus,
				model.OrderStatusPendingPayment, model.OrderStatusWaitShip,
				model.OperatorSystem, "wechat pay succeeded", now); err != nil {
				return err
			}
		} else {
			u.logger.Warn("paid order was not pending payment", zap.String("order_no", pay.OrderNo))
		}

		order, err := r.Orders().FindByOrderNo(ctx, pay.OrderNo)
		if err != nil {
			return err
		}
		if _, err := u.welfare.Consume(ctx, r, order); err != nil {
			return err
		}

		paid = &events.OrderPaidPayload{
			OrderNo:       pay.OrderNo,
			OutTradeNo:    pay.OutTradeNo,
			TransactionID: trx.TransactionID,
			Amount:        pay.Amount,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	//相手側の前払いも閉じる（失敗してもログだけ）
	if u.client != nil {
		for _, no := range siblings {
			if err := u.client.CloseOrder(ctx, no); err != nil {
				u.logger.Warn("close sibling payment failed", zap.String("out_trade_no", no), zap.Error(err))
			}
		}
	}
	return paid, nil
}

func paymentStatusFromTradeState(state string) model.PaymentStatus {
	switch strings.ToUpper(state) {
	case "CLOSED", "REVOKED":
		return model.PaymentStatusClosed
	case "NOTPAY", "USERPAYING":
		return model.PaymentStatusPending
	}
	return model.PaymentStatusFail
}

type PaymentOutput struct {
	OrderNo       string    `json:"orderNo"`
	OutTradeNo    string    `json:"outTradeNo"`
	Status        string    `json:"status"`
	Amount        int64     `json:"amount"`
	TransactionID *string   `json:"transactionId"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ローカルがPENDINGなら相手側に問い合わせて反映してから返す
func (u *PaymentUsecase) Query(ctx context.Context, outTradeNo string) (PaymentOutput, error) {
	outTradeNo = strings.TrimSpace(outTradeNo)
	if outTradeNo == "" {
		return PaymentOutput{}, badRequest("outTradeNo required")
	}
	out, err := u.loadPayment(ctx, outTradeNo)
	if err != nil {
		return PaymentOutput{}, err
	}
	if u.client == nil || out.Status != string(model.PaymentStatusPending) {
		return out, nil
	}

	trx, err := u.client.QueryOrder(ctx, outTradeNo)
	if err != nil {
		// 問い合わせ失敗はローカルの状態を返す
		u.logger.Warn("wxpay query failed", zap.String("out_trade_no", outTradeNo), zap.Error(err))
		return out, nil
	}
	if trx.OutTradeNo == "" {
		trx.OutTradeNo = outTradeNo
	}
	payload, err := json.Marshal(map[string]string{
		"source":       "query",
		"trade_state":  trx.TradeState,
		"success_time": trx.SuccessTime,
	})
	if err != nil {
		return PaymentOutput{}, internal(err)
	}
	paid, err := u.reconcile(ctx, trx, payload)
	if err != nil {
		return PaymentOutput{}, logInternal(u.logger, "query payment", toAppError(err))
	}
	if paid != nil {
		u.publish(ctx, *paid)
	}
	return u.loadPayment(ctx, outTradeNo)
}

func (u *PaymentUsecase) loadPayment(ctx context.Context, outTradeNo string) (PaymentOutput, error) {
	var out PaymentOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		p, err := r.Payments().FindByOutTradeNo(ctx, outTradeNo)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("payment not found")
		}
		if err != nil {
			return err
		}
		out = PaymentOutput{
			OrderNo:       p.OrderNo,
			OutTradeNo:    p.OutTradeNo,
			Status:        string(p.Status),
			Amount:        p.Amount,
			TransactionID: p.TransactionID,
			UpdatedAt:     p.UpdatedAt,
		}
		return nil
	})
	if err != nil {
		return PaymentOutput{}, logInternal(u.logger, "query payment", toAppError(err))
	}
	return out, nil
}

// 相手側で閉じてから、まだPENDINGのものをCLOSEDにする
func (u *PaymentUsecase) Close(ctx context.Context, outTradeNo string) error {
	if strings.TrimSpace(outTradeNo) == "" {
		return badRequest("outTradeNo required")
	}
	if u.client == nil {
		return NewAppError(KindBadInput, CodeWxPayNotConfigured, "wechat pay is not configured")
	}

	var orderNo string
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		p, err := r.Payments().FindByOutTradeNo(ctx, outTradeNo)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("payment not found")
		}
		if err != nil {
			return err
		}
		orderNo = p.OrderNo
		return nil
	})
	if err != nil {
		return logInternal(u.logger, "close payment", toAppError(err))
	}

	if err := u.client.CloseOrder(ctx, outTradeNo); err != nil {
		return u.upstream("close", outTradeNo, err)
	}

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		_, err := r.Payments().ClosePending(ctx, orderNo, outTradeNo)
		return err
	})
	if err != nil {
		return logInternal(u.logger, "close payment", toAppError(err))
	}
	return nil
}

func (u *PaymentUsecase) publish(ctx context.Context, p events.OrderPaidPayload) {
	ev, err := events.NewEnvelope(events.EventOrderPaid, p.OrderNo, p)
	if err == nil {
		err = u.publisher.Publish(ctx, ev)
	}
	if err != nil {
		u.logger.Warn("publish event failed", zap.String("event_type", events.EventOrderPaid), zap.String("order_no", p.OrderNo), zap.Error(err))
	}
}
