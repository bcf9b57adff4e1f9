package cache

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// dedup:{service}:{id}
const keyDedup = "dedup:%s:%s"

const TTLDedup = 48 * time.Hour

func DedupKey(service, id string) string {
	return fmt.Sprintf(keyDedup, service, id)
}

func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// 処理済みの通知IDを覚えておく（Redis）
type RedisDeduper struct {
	rdb     redis.Cmdable
	service string
	ttl     time.Duration
}

func NewRedisDeduper(rdb redis.Cmdable, service string) *RedisDeduper {
	return &RedisDeduper{rdb: rdb, service: service, ttl: TTLDedup}
}

func (d *RedisDeduper) Seen(ctx context.Context, id string) (bool, error) {
	n, err := d.rdb.Exists(ctx, DedupKey(d.service, id)).Result()
	return n > 0, err
}

func (d *RedisDeduper) Mark(ctx context.Context, id string) error {
	return d.rdb.SetNX(ctx, DedupKey(d.service, id), "1", d.ttl).Err()
}

// Redisがないとき用（プロセス内）
type MemoryDeduper struct {
	c *gocache.Cache
}

func NewMemoryDeduper() *MemoryDeduper {
	return NewMemoryDeduperTTL(TTLDedup)
}

// 期限切れは10分ごとに掃除
func NewMemoryDeduperTTL(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{c: gocache.New(ttl, 10*time.Minute)}
}

func (d *MemoryDeduper) Seen(_ context.Context, id string) (bool, error) {
	_, ok := d.c.Get(id)
	return ok, nil
}

func (d *MemoryDeduper) Mark(_ context.Context, id string) error {
	// 既にあればそのまま（SetNX相当）
	_ = d.c.Add(id, struct{}{}, gocache.DefaultExpiration)
	return nil
}
