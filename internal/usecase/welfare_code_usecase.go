package usecase

import (
	"context"
	"errors"
	"regexp"
	"time"

	"mall/internal/domain/model"
	repo "mall/internal/repository"

	"go.uber.org/zap"
)

const (
	msgInvalidWelfareCode   = "the welfare code is invalid, enter the correct code to order through the welfare channel"
	msgWelfareCodeExhausted = "the welfare code has reached its maximum number of uses"
)

var welfareCodePattern = regexp.MustCompile(`^\d{6}$`)

// 6桁の数字か
func IsWelfareCode(s string) bool {
	return welfareCodePattern.MatchString(s)
}

type WelfareCodeUsecase struct {
	tx     repo.TransactionManager
	logger *zap.Logger
	now    func() time.Time
}

func NewWelfareCodeUsecase(tx repo.TransactionManager, logger *zap.Logger) *WelfareCodeUsecase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WelfareCodeUsecase{tx: tx, logger: logger, now: time.Now}
}

type WelfareQuoteItem struct {
	ID           int64  `json:"id"`
	SkuLibraryID *int64 `json:"skuLibraryId"`
	SkuCode      string `json:"skuCode"`
	SkuTitle     string `json:"skuTitle"`
	Quantity     int64  `json:"quantity"`
	PriceCent    int64  `json:"priceCent"`
}

type WelfareQuoteOutput struct {
	OK                bool               `json:"ok"`
	Code              string             `json:"code"`
	ProductID         int64              `json:"productId"`
	PriceCent         int64              `json:"priceCent"`
	OriginalPriceCent int64              `json:"originalPriceCent"`
	Note              string             `json:"note"`
	Items             []WelfareQuoteItem `json:"items"`
	MaxUsage          int64              `json:"maxUsage"`
	UsedCount         int64              `json:"usedCount"`
	RemainingUsage    int64              `json:"remainingUsage"`
}

// 見積もり（ロックしない・何も書かない）
func (u *WelfareCodeUsecase) Quote(ctx context.Context, productID int64, code string) (WelfareQuoteOutput, error) {
	if productID <= 0 || !IsWelfareCode(code) {
		return WelfareQuoteOutput{}, NewAppError(KindBadInput, CodeInvalidParams, msgInvalidWelfareCode)
	}

	var out WelfareQuoteOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		wc, err := findUsableCode(ctx, r, productID, code, false)
		if err != nil {
			return err
		}
		items, err := r.WelfareCodes().ListItems(ctx, wc.ID)
		if err != nil {
			return err
		}

		outItems := make([]WelfareQuoteItem, 0, len(items))
		for _, it := range items {
			outItems = append(outItems, WelfareQuoteItem{
				ID:           it.ID,
				SkuLibraryID: it.SkuLibraryID,
				SkuCode:      it.SkuCode,
				SkuTitle:     it.SkuTitle,
				Quantity:     it.Quantity,
				PriceCent:    it.PriceCent,
			})
		}
		out = WelfareQuoteOutput{
			OK:                true,
			Code:              wc.Code,
			ProductID:         wc.ProductID,
			PriceCent:         wc.PriceCent,
			OriginalPriceCent: wc.OriginalPriceCent,
			Note:              wc.Note,
			Items:             outItems,
			MaxUsage:          wc.MaxUsage,
			UsedCount:         wc.UsedCount,
			RemainingUsage:    wc.Remaining(),
		}
		return nil
	})
	if err != nil {
		return WelfareQuoteOutput{}, toAppError(err)
	}
	return out, nil
}

// 使えるコードを取る。無ければ「使い切り」と「間違い」を区別して返す
func findUsableCode(ctx context.Context, r repo.TxRepos, productID int64, code string, lock bool) (model.WelfareCode, error) {
	var (
		wc  model.WelfareCode
		err error
	)
	if lock {
		wc, err = r.WelfareCodes().LockActive(ctx, productID, code)
	} else {
		wc, err = r.WelfareCodes().FindActive(ctx, productID, code)
	}
	if err == nil {
		return wc, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return model.WelfareCode{}, err
	}

	_, err = r.WelfareCodes().FindExhausted(ctx, productID, code)
	if err == nil {
		return model.WelfareCode{}, NewAppError(KindInvalidCode, CodeWelfareCodeExhausted, msgWelfareCodeExhausted)
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return model.WelfareCode{}, err
	}
	return model.WelfareCode{}, NewAppError(KindInvalidCode, CodeInvalidWelfareCode, msgInvalidWelfareCode)
}

// 支払い確定時に1回分消費する。呼び出し側のtxの中で使う。
// 同じ注文で2回呼ばれても2回目は何もしない（使用履歴があるため）
func (u *WelfareCodeUsecase) Consume(ctx context.Context, r repo.TxRepos, order model.Order) (bool, error) {
	if order.InviteCode == nil || !IsWelfareCode(*order.InviteCode) || order.WelfareProductID == nil {
		return false, nil
	}
	code := *order.InviteCode
	productID := *order.WelfareProductID

	used, err := r.WelfareCodes().HasUsage(ctx, order.OrderNo)
	if err != nil {
		return false, err
	}
	if used {
		return false, nil
	}

	wc, err := r.WelfareCodes().ConsumeOnce(ctx, productID, code, order.OrderNo, u.now())
	if errors.Is(err, repo.ErrCodeUnavailable) {
		// 支払いは成立しているので注文は止めない
		u.logger.Warn("welfare code consume skipped",
			zap.String("order_no", order.OrderNo),
			zap.Int64("product_id", productID),
			zap.String("reason", "code unavailable"),
		)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := r.WelfareCodes().RecordUsage(ctx, model.WelfareCodeUsage{
		WelfareCodeID: wc.ID,
		Code:          code,
		OrderNo:       order.OrderNo,
		UserID:        order.UserID,
		CreatedAt:     u.now(),
	}); err != nil {
		return false, err
	}
	return true, nil
}
