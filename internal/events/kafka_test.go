package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisher_KeyedByOrderNo(t *testing.T) {
	fw := &fakeWriter{}
	p := &KafkaPublisher{w: fw}

	ev, err := NewEnvelope(EventOrderCreated, "O202601011200001234", OrderCreatedPayload{
		OrderNo:     "O202601011200001234",
		UserID:      42,
		Status:      "PENDING_PAYMENT",
		TotalAmount: 9900,
	})
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), ev))

	require.Len(t, fw.msgs, 1)
	m := fw.msgs[0]
	assert.Equal(t, "O202601011200001234", string(m.Key))
	assert.Equal(t, "event_type", m.Headers[0].Key)
	assert.Equal(t, EventOrderCreated, string(m.Headers[0].Value))

	var got Envelope
	require.NoError(t, json.Unmarshal(m.Value, &got))
	assert.Equal(t, ev.EventID, got.EventID)
	assert.Equal(t, 1, got.EventVersion)

	var payload OrderCreatedPayload
	require.NoError(t, json.Unmarshal(got.Payload, &payload))
	assert.Equal(t, int64(9900), payload.TotalAmount)

	require.NoError(t, p.Close())
	assert.True(t, fw.closed)
}
