package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCreated = "order.created"
	EventOrderPaid    = "order.paid"
)

const producerName = "mall-api"

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // 注文番号
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderNo     string `json:"order_no"`
	UserID      int64  `json:"user_id"`
	Status      string `json:"status"`
	TotalAmount int64  `json:"total_amount"`
	InviteCode  string `json:"invite_code,omitempty"`
}

type OrderPaidPayload struct {
	OrderNo       string `json:"order_no"`
	OutTradeNo    string `json:"out_trade_no"`
	TransactionID string `json:"transaction_id"`
	Amount        int64  `json:"amount"`
}

// 注文番号をキーにする（同じ注文のイベントは同じパーティション）
func NewEnvelope(eventType, orderNo string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode payload: %w", err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producerName,
		CorrelationID: orderNo,
		Payload:       b,
	}, nil
}

type Publisher interface {
	Publish(ctx context.Context, ev Envelope) error
	Close() error
}

// KAFKA_BROKERS未設定のとき
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Envelope) error { return nil }
func (NopPublisher) Close() error                            { return nil }
