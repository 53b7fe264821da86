package dedupe

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisTTL = 24 * time.Hour

// RedisDeduper shares seen ids between instances through SET NX keys that
// expire after ttl. Redis errors fail open: the id is treated as new and
// the store's own duplicate check is the last line.
type RedisDeduper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper backed by client.
func NewRedisDeduper(client *redis.Client, prefix string, ttl time.Duration) *RedisDeduper {
	if prefix == "" {
		prefix = "flaggy:seen"
	}
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &RedisDeduper{client: client, prefix: prefix, ttl: ttl}
}

func (d *RedisDeduper) key(id string) string { return d.prefix + ":" + id }

func (d *RedisDeduper) SeenAndRecord(ctx context.Context, id string) bool {
	ok, err := d.client.SetNX(ctx, d.key(id), 1, d.ttl).Result()
	if err != nil {
		return false
	}
	return !ok
}

func (d *RedisDeduper) Unrecord(ctx context.Context, id string) {
	d.client.Del(ctx, d.key(id))
}

// Size counts remembered ids with SCAN; it is meant for stats, not hot paths.
func (d *RedisDeduper) Size() int64 {
	ctx := context.Background()
	var n int64
	iter := d.client.Scan(ctx, 0, d.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	return n
}
