package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupKey(t *testing.T) {
	assert.Equal(t, "dedup:wxpay:EV-1", DedupKey("wxpay", "EV-1"))
}

func TestMemoryDeduper(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDeduper()

	seen, err := d.Seen(ctx, "n1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, d.Mark(ctx, "n1"))
	seen, err = d.Seen(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, seen)

	// 2回目のMarkもエラーにしない
	require.NoError(t, d.Mark(ctx, "n1"))
	assert.Equal(t, 1, d.c.ItemCount())
}

func TestMemoryDeduper_Expires(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDeduperTTL(20 * time.Millisecond)

	require.NoError(t, d.Mark(ctx, "old"))
	seen, err := d.Seen(ctx, "old")
	require.NoError(t, err)
	assert.True(t, seen)

	// TTLを過ぎたら忘れる
	assert.Eventually(t, func() bool {
		seen, err := d.Seen(ctx, "old")
		return err == nil && !seen
	}, time.Second, 10*time.Millisecond)
}

// REDIS_ADDRがあるときだけ
func TestRedisDeduper(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := NewRedisClient(addr)
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	d := NewRedisDeduper(client, "test")
	id := uuid.NewString()
	t.Cleanup(func() { client.Del(ctx, DedupKey("test", id)) })

	seen, err := d.Seen(ctx, id)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, d.Mark(ctx, id))
	seen, err = d.Seen(ctx, id)
	require.NoError(t, err)
	assert.True(t, seen)

	ttl, err := client.TTL(ctx, DedupKey("test", id)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, TTLDedup-time.Minute)
}
