package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"mall/internal/domain/model"
	"mall/internal/events"
	repo "mall/internal/repository"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	maxBuyerNoteRunes = 500
	welfareItemTitle  = "welfare item"
)

// 外部決済の注文を閉じる（キャンセル時のベストエフォート）
type PaymentCloser interface {
	CloseOrder(ctx context.Context, outTradeNo string) error
}

type OrderUsecase struct {
	tx             repo.TransactionManager
	publisher      events.Publisher
	closer         PaymentCloser
	logger         *zap.Logger
	paymentEnabled bool

	now        func() time.Time
	newOrderNo func(time.Time) string
}

func NewOrderUsecase(tx repo.TransactionManager, publisher events.Publisher, closer PaymentCloser, logger *zap.Logger, paymentEnabled bool) *OrderUsecase {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderUsecase{
		tx:             tx,
		publisher:      publisher,
		closer:         closer,
		logger:         logger,
		paymentEnabled: paymentEnabled,
		now:            time.Now,
		newOrderNo:     NewOrderNo,
	}
}

type CartLineInput struct {
	ProductID int64  `json:"productId"`
	SkuID     *int64 `json:"skuId,omitempty"`
	Qty       int64  `json:"qty"`
}

type CreateOrderInput struct {
	Items      []CartLineInput
	Address    model.AddressSnapshot
	InviteCode string
	BuyerNote  string
}

type CreateOrderOutput struct {
	OrderNo           string `json:"orderNo"`
	Status            string `json:"status"`
	TotalAmountCent   int64  `json:"totalAmountCent"`
	FreightAmountCent int64  `json:"freightAmountCent"`
	GoodsAmountCent   int64  `json:"goodsAmountCent"`
}

// 組み立て途中の注文
type draftOrder struct {
	items            []model.OrderItem
	goods            int64
	totalQty         int64
	shipping         model.ShippingPolicy
	inviteCode       *string
	welfareProductID *int64
	buyerNote        *string
}

func (u *OrderUsecase) CreateOrder(ctx context.Context, userID int64, in CreateOrderInput) (CreateOrderOutput, error) {
	if userID <= 0 {
		return CreateOrderOutput{}, unauthenticated()
	}
	if len(in.Items) == 0 {
		return CreateOrderOutput{}, badRequest("items must not be empty")
	}
	for _, it := range in.Items {
		if it.ProductID <= 0 {
			return CreateOrderOutput{}, badRequest("invalid productId")
		}
		if it.Qty <= 0 {
			return CreateOrderOutput{}, badRequest("qty must be positive")
		}
		if it.SkuID != nil && *it.SkuID <= 0 {
			return CreateOrderOutput{}, badRequest("invalid skuId")
		}
	}

	//住所（regionから省/市/区を補完）
	addr := in.Address.Normalize()
	switch addr.MissingField() {
	case "":
	case "region":
		return CreateOrderOutput{}, badRequest("address province/city/district is incomplete")
	default:
		return CreateOrderOutput{}, badRequest("address " + addr.MissingField() + " is required")
	}
	addrJSON, err := json.Marshal(addr)
	if err != nil {
		return CreateOrderOutput{}, internal(err)
	}

	if utf8.RuneCountInString(in.BuyerNote) > maxBuyerNoteRunes {
		return CreateOrderOutput{}, badRequest("buyerNote must be at most 500 characters")
	}
	var buyerNote *string
	if n := strings.TrimSpace(in.BuyerNote); n != "" {
		buyerNote = &n
	}

	now := u.now()
	orderNo := u.newOrderNo(now)
	status := model.OrderStatusWaitShip
	if u.paymentEnabled {
		status = model.OrderStatusPendingPayment
	}

	var order model.Order

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		welfare, err := u.welfareProduct(ctx, r, in.Items)
		if err != nil {
			return err
		}

		var d draftOrder
		if welfare != nil {
			d, err = u.assembleWelfare(ctx, r, *welfare, in)
		} else {
			d, err = u.assembleNormal(ctx, r, orderNo, in.Items, now)
		}
		if err != nil {
			return err
		}
		if d.buyerNote == nil && welfare == nil {
			d.buyerNote = buyerNote
		}

		//送料: しきい値が0なら常に有料
		freight := d.shipping.ShippingFeeCent
		if d.shipping.FreeShippingQty > 0 && d.totalQty >= d.shipping.FreeShippingQty {
			freight = 0
		}

		order = model.Order{
			OrderNo:            orderNo,
			UserID:             userID,
			Type:               model.OrderTypeNormal,
			Status:             status,
			GoodsAmount:        d.goods,
			FreightAmount:      freight,
			DiscountAmount:     0,
			ManualAdjustAmount: 0,
			TotalAmount:        model.ComputeTotal(d.goods, freight, 0, 0),
			AddressSnapshot:    datatypes.JSON(addrJSON),
			InviteCode:         d.inviteCode,
			WelfareProductID:   d.welfareProductID,
			BuyerNote:          d.buyerNote,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		id, err := r.Orders().Create(ctx, order)
		if err != nil {
			return err
		}
		order.ID = id

		return r.OrderItems().CreateBulk(ctx, orderNo, d.items)
	})
	if err != nil {
		return CreateOrderOutput{}, u.fail("create order", err)
	}

	u.publish(ctx, events.EventOrderCreated, order.OrderNo, events.OrderCreatedPayload{
		OrderNo:     order.OrderNo,
		UserID:      order.UserID,
		Status:      string(order.Status),
		TotalAmount: order.TotalAmount,
		InviteCode:  deref(order.InviteCode),
	})

	return CreateOrderOutput{
		OrderNo:           order.OrderNo,
		Status:            string(order.Status),
		TotalAmountCent:   order.TotalAmount,
		FreightAmountCent: order.FreightAmount,
		GoodsAmountCent:   order.GoodsAmount,
	}, nil
}

// 1行だけのカートで、その商品が福利コード専用なら返す
func (u *OrderUsecase) welfareProduct(ctx context.Context, r repo.TxRepos, items []CartLineInput) (*model.Product, error) {
	if len(items) != 1 {
		return nil, nil
	}
	p, err := r.Products().FindByID(ctx, items[0].ProductID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !p.IsWelfare {
		return nil, nil
	}
	return &p, nil
}

// 福利コード注文: テンプレートを明細にコピーする
func (u *OrderUsecase) assembleWelfare(ctx context.Context, r repo.TxRepos, p model.Product, in CreateOrderInput) (draftOrder, error) {
	line := in.Items[0]
	if line.Qty != 1 {
		return draftOrder{}, NewAppError(KindBusinessRule, CodeWelfareRule, "welfare products do not support choosing a quantity")
	}
	if line.SkuID != nil {
		return draftOrder{}, NewAppError(KindBusinessRule, CodeWelfareRule, "welfare products do not support choosing a sku")
	}
	code := strings.TrimSpace(in.InviteCode)
	if !IsWelfareCode(code) {
		return draftOrder{}, NewAppError(KindInvalidCode, CodeInvalidWelfareCode, msgInvalidWelfareCode)
	}

	wc, err := findUsableCode(ctx, r, p.ID, code, true)
	if err != nil {
		return draftOrder{}, err
	}
	templates, err := r.WelfareCodes().ListItems(ctx, wc.ID)
	if err != nil {
		return draftOrder{}, err
	}

	d := draftOrder{
		goods: wc.PriceCent,
		shipping: model.ShippingPolicy{
			ProductID:       p.ID,
			ShippingFeeCent: p.ShippingFeeCent,
			FreeShippingQty: p.FreeShippingQty,
		},
		inviteCode:       &code,
		welfareProductID: &p.ID,
	}

	if len(templates) > 0 {
		for _, t := range templates {
			qty := t.Quantity
			if qty <= 0 {
				qty = 1
			}
			skuID := -t.ID
			if t.SkuLibraryID != nil {
				skuID = *t.SkuLibraryID
			}
			title := t.SkuTitle
			if title == "" {
				title = welfareItemTitle
			}
			d.items = append(d.items, model.OrderItem{
				ProductID:   p.ID,
				SkuID:       skuID,
				StockSource: model.StockSourceNone,
				SkuTitle:    title,
				SkuCode:     optional(t.SkuCode),
				Quantity:    qty,
				SalePrice:   t.PriceCent,
				TotalPrice:  t.PriceCent * qty,
				SkuAttrs:    welfareAttrs(code, t.SkuCode),
			})
			d.totalQty += qty
		}
	} else {
		// テンプレートが無い古いコードは商品1行
		title := p.Title
		if title == "" {
			title = welfareItemTitle
		}
		d.items = append(d.items, model.OrderItem{
			ProductID:   p.ID,
			SkuID:       p.ID,
			StockSource: model.StockSourceNone,
			SkuTitle:    title,
			Quantity:    1,
			SalePrice:   wc.PriceCent,
			TotalPrice:  wc.PriceCent,
			SkuAttrs:    welfareAttrs(code, ""),
		})
		d.totalQty = 1
	}

	//備考はコードの備考で上書き（空ならnil）
	if note := strings.TrimSpace(wc.Note); note != "" {
		note = truncateRunes(note, maxBuyerNoteRunes)
		d.buyerNote = &note
	}
	return d, nil
}

// 通常注文: 行ごとにロックして在庫を減らす
func (u *OrderUsecase) assembleNormal(ctx context.Context, r repo.TxRepos, orderNo string, lines []CartLineInput, now time.Time) (draftOrder, error) {
	// 福利コード商品との混在は不可
	for _, l := range lines {
		p, err := r.Products().FindByID(ctx, l.ProductID)
		if errors.Is(err, repo.ErrNotFound) {
			continue
		}
		if err != nil {
			return draftOrder{}, err
		}
		if p.IsWelfare {
			return draftOrder{}, NewAppError(KindBusinessRule, CodeWelfareRule, "welfare products cannot be ordered together with other products")
		}
	}

	var d draftOrder
	productIDs := make([]int64, 0, len(lines))
	seen := map[int64]bool{}

	for _, l := range lines {
		var item model.OrderItem
		adj := model.InventoryAdjustment{
			ProductID: l.ProductID,
			OrderNo:   orderNo,
			Delta:     -l.Qty,
			Reason:    "order created",
			CreatedAt: now,
		}

		if l.SkuID != nil {
			sku, p, err := r.Inventory().LockAndDebitSKU(ctx, l.ProductID, *l.SkuID, l.Qty)
			if err != nil {
				return draftOrder{}, stockError(err, fmt.Sprintf("sku %d", *l.SkuID))
			}
			item = model.OrderItem{
				ProductID:   p.ID,
				SkuID:       sku.ID,
				StockSource: model.StockSourceSKU,
				SkuTitle:    strings.TrimSpace(p.Title + " " + sku.SkuTitle),
				SkuCode:     sku.SkuCode,
				Quantity:    l.Qty,
				SalePrice:   sku.PriceCent,
				TotalPrice:  sku.PriceCent * l.Qty,
				SkuAttrs:    sku.SkuAttrs,
			}
			adj.SkuID = &sku.ID
		} else {
			p, err := r.Inventory().LockAndDebitProduct(ctx, l.ProductID, l.Qty)
			if err != nil {
				return draftOrder{}, stockError(err, fmt.Sprintf("product %d", l.ProductID))
			}
			item = model.OrderItem{
				ProductID:   p.ID,
				SkuID:       p.ID,
				StockSource: model.StockSourceProduct,
				SkuTitle:    p.Title,
				Quantity:    l.Qty,
				SalePrice:   p.PriceCent,
				TotalPrice:  p.PriceCent * l.Qty,
			}
		}

		if err := r.Inventory().CreateAdjustment(ctx, adj); err != nil {
			return draftOrder{}, err
		}

		d.items = append(d.items, item)
		d.goods += item.TotalPrice
		d.totalQty += l.Qty
		if !seen[l.ProductID] {
			seen[l.ProductID] = true
			productIDs = append(productIDs, l.ProductID)
		}
	}

	//送料はデフォルト値を下限に、商品ごとの最大値
	d.shipping = model.ShippingPolicy{
		ShippingFeeCent: model.DefaultShippingFeeCent,
		FreeShippingQty: model.DefaultFreeShippingQty,
	}
	policies, err := r.Products().ListShippingPolicies(ctx, productIDs)
	if err != nil {
		return draftOrder{}, err
	}
	for _, sp := range policies {
		if sp.ShippingFeeCent > d.shipping.ShippingFeeCent {
			d.shipping.ShippingFeeCent = sp.ShippingFeeCent
		}
		if sp.FreeShippingQty > d.shipping.FreeShippingQty {
			d.shipping.FreeShippingQty = sp.FreeShippingQty
		}
	}
	return d, nil
}

// 在庫台帳のエラーをレスポンス用に
func stockError(err error, what string) error {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return notFound(what + " not found")
	case errors.Is(err, repo.ErrOffline):
		return NewAppError(KindBusinessRule, CodeSkuOffline, what+" is offline")
	case errors.Is(err, repo.ErrInsufficientStock):
		return NewAppError(KindInsufficientStock, CodeOutOfStock, what+" is out of stock")
	}
	return err
}

// ---- 自分の注文 ----

type OrderItemOutput struct {
	ProductID  int64           `json:"productId"`
	SkuID      int64           `json:"skuId"`
	SkuTitle   string          `json:"skuTitle"`
	SkuCode    *string         `json:"skuCode"`
	Quantity   int64           `json:"quantity"`
	SalePrice  int64           `json:"salePrice"`
	TotalPrice int64           `json:"totalPrice"`
	SkuAttrs   json.RawMessage `json:"skuAttrs,omitempty"`
}

type OrderOutput struct {
	OrderNo            string                 `json:"orderNo"`
	UserID             int64                  `json:"userId"`
	Status             string                 `json:"status"`
	TotalAmount        int64                  `json:"totalAmount"`
	GoodsAmount        int64                  `json:"goodsAmount"`
	FreightAmount      int64                  `json:"freightAmount"`
	DiscountAmount     int64                  `json:"discountAmount"`
	ManualAdjustAmount int64                  `json:"manualAdjustAmount"`
	Address            *model.AddressSnapshot `json:"address,omitempty"`
	InviteCode         *string                `json:"inviteCode"`
	BuyerNote          *string                `json:"buyerNote"`
	Version            int64                  `json:"version"`
	CreatedAt          time.Time              `json:"createdAt"`
	UpdatedAt          time.Time              `json:"updatedAt"`
	Items              []OrderItemOutput      `json:"items"`
}

type OrderListOutput struct {
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
	Orders   []OrderOutput `json:"orders"`
}

// 一覧のページ上限（offsetの桁あふれ防止）
const MaxListPage = 10000

func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID int64, page, pageSize int) (OrderListOutput, error) {
	if userID <= 0 {
		return OrderListOutput{}, unauthenticated()
	}
	if page < 1 {
		page = 1
	}
	if page > MaxListPage {
		return OrderListOutput{}, badRequest("invalid page")
	}
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > 50 {
		pageSize = 50
	}

	out := OrderListOutput{Page: page, PageSize: pageSize}
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListByUserID(ctx, userID, page, pageSize)
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
		return OrderListOutput{}, u.fail("list my orders", err)
	}
	return out, nil
}

func (u *OrderUsecase) GetMyOrderDetail(ctx context.Context, userID int64, orderNo string) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, unauthenticated()
	}
	if strings.TrimSpace(orderNo) == "" {
		return OrderOutput{}, badRequest("orderNo required")
	}

	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByOrderNo(ctx, orderNo)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("order not found")
		}
		if err != nil {
			return err
		}
		//他人の注文は「存在しない扱い」にする
		if o.UserID != userID {
			return notFound("order not found")
		}

		items, err := r.OrderItems().ListByOrderNo(ctx, orderNo)
		if err != nil {
			return err
		}
		out = toOrderOutput(o, items)
		return nil
	})
	if err != nil {
		return OrderOutput{}, u.fail("get my order", err)
	}
	return out, nil
}

// 未払いの注文だけ取り消せる。在庫を戻し、未払いの支払いを閉じる
func (u *OrderUsecase) CancelMyOrder(ctx context.Context, userID int64, orderNo string) error {
	if userID <= 0 {
		return unauthenticated()
	}
	if strings.TrimSpace(orderNo) == "" {
		return badRequest("orderNo required")
	}

	var pending []string
	now := u.now()

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
			return stateConflict("only unpaid orders can be cancelled")
		}

		ok, err := r.Orders().TransitionStatus(ctx, orderNo, []model.OrderStatus{model.OrderStatusPendingPayment}, model.OrderStatusCancelled)
		if err != nil {
			return err
		}
		if !ok {
			return stateConflict("only unpaid orders can be cancelled")
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

		if err := restockOrder(ctx, r, orderNo, "order cancelled", now); err != nil {
			return err
		}
		return logStatusChange(ctx, r, orderNo, model.OrderChangeStatus,
			model.OrderStatusPendingPayment, model.OrderStatusCancelled,
			model.OperatorUser(userID), "cancelled by user", now)
	})
	if err != nil {
		return u.fail("cancel my order", err)
	}

	u.closeRemote(ctx, pending)
	return nil
}

func (u *OrderUsecase) closeRemote(ctx context.Context, outTradeNos []string) {
	if u.closer == nil {
		return
	}
	for _, no := range outTradeNos {
		if err := u.closer.CloseOrder(ctx, no); err != nil {
			u.logger.Warn("close remote payment failed", zap.String("out_trade_no", no), zap.Error(err))
		}
	}
}

func (u *OrderUsecase) publish(ctx context.Context, eventType, orderNo string, payload any) {
	ev, err := events.NewEnvelope(eventType, orderNo, payload)
	if err == nil {
		err = u.publisher.Publish(ctx, ev)
	}
	if err != nil {
		u.logger.Warn("publish event failed", zap.String("event_type", eventType), zap.String("order_no", orderNo), zap.Error(err))
	}
}

// AppErrorにそろえて、500だけログに出す
func (u *OrderUsecase) fail(op string, err error) error {
	return logInternal(u.logger, op, toAppError(err))
}

func logInternal(logger *zap.Logger, op string, err error) error {
	if ae, ok := AsAppError(err); ok && ae.Kind == KindInternal {
		logger.Error(op+" failed", zap.Error(ae.Err))
	}
	return err
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		var attrs json.RawMessage
		if len(it.SkuAttrs) > 0 {
			attrs = json.RawMessage(it.SkuAttrs)
		}
		outItems = append(outItems, OrderItemOutput{
			ProductID:  it.ProductID,
			SkuID:      it.SkuID,
			SkuTitle:   it.SkuTitle,
			SkuCode:    it.SkuCode,
			Quantity:   it.Quantity,
			SalePrice:  it.SalePrice,
			TotalPrice: it.TotalPrice,
			SkuAttrs:   attrs,
		})
	}

	var addr *model.AddressSnapshot
	if len(o.AddressSnapshot) > 0 {
		var a model.AddressSnapshot
		if err := json.Unmarshal(o.AddressSnapshot, &a); err == nil {
			addr = &a
		}
	}

	return OrderOutput{
		OrderNo:            o.OrderNo,
		UserID:             o.UserID,
		Status:             string(o.Status),
		TotalAmount:        o.TotalAmount,
		GoodsAmount:        o.GoodsAmount,
		FreightAmount:      o.FreightAmount,
		DiscountAmount:     o.DiscountAmount,
		ManualAdjustAmount: o.ManualAdjustAmount,
		Address:            addr,
		InviteCode:         o.InviteCode,
		BuyerNote:          o.BuyerNote,
		Version:            o.Version,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
		Items:              outItems,
	}
}

func welfareAttrs(code, skuCode string) datatypes.JSON {
	m := map[string]string{"welfareCode": code}
	if skuCode != "" {
		m["skuCode"] = skuCode
	}
	b, _ := json.Marshal(m)
	return datatypes.JSON(b)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
