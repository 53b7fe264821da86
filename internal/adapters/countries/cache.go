package countries

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/okian/flaggy/internal/domain/country"
	"github.com/okian/flaggy/pkg/logger"
	"github.com/okian/flaggy/pkg/metrics"
)

const (
	defaultTTL      = 6 * time.Hour
	defaultRedisKey = "flaggy:countries"
)

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTL sets how long a fetched list is served.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithNow replaces the cache clock.
func WithNow(now func() time.Time) CacheOption {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRedis shares fetched lists between instances under key.
func WithRedis(client redis.UniversalClient, key string) CacheOption {
	return func(c *Cache) {
		c.redis = client
		if key != "" {
			c.redisKey = key
		}
	}
}

// WithLogger sets the logger used for shared-cache problems.
func WithLogger(l logger.Logger) CacheOption {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// Cache serves the country list from memory, refreshing it from the
// source after the TTL. Concurrent refreshes collapse into one fetch. A
// failed refresh returns the error; it is not retried.
type Cache struct {
	src      Source
	ttl      time.Duration
	now      func() time.Time
	redis    redis.UniversalClient
	redisKey string
	logger   logger.Logger

	mu        sync.RWMutex
	list      []country.Country
	fetchedAt time.Time

	group singleflight.Group
}

// NewCache wraps src.
func NewCache(src Source, opts ...CacheOption) *Cache {
	c := &Cache{
		src:      src,
		ttl:      defaultTTL,
		now:      time.Now,
		redisKey: defaultRedisKey,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchAll implements Source so a Cache can stand in for a Client.
func (c *Cache) FetchAll(ctx context.Context) ([]country.Country, error) {
	c.mu.RLock()
	list, at := c.list, c.fetchedAt
	c.mu.RUnlock()
	if list != nil && c.now().Sub(at) < c.ttl {
		metrics.RecordCountryCacheHit()
		return list, nil
	}

	v, err, _ := c.group.Do("all", func() (any, error) {
		if list := c.fromRedis(ctx); list != nil {
			c.store(list)
			return list, nil
		}
		list, err := c.src.FetchAll(ctx)
		if err != nil {
			metrics.RecordCountryFetch("error")
			return nil, err
		}
		metrics.RecordCountryFetch("ok")
		c.store(list)
		c.toRedis(ctx, list)
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]country.Country), nil
}

// Invalidate drops the in-memory list so the next call refetches.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.list = nil
	c.mu.Unlock()
}

func (c *Cache) store(list []country.Country) {
	c.mu.Lock()
	c.list = list
	c.fetchedAt = c.now()
	c.mu.Unlock()
}

func (c *Cache) fromRedis(ctx context.Context) []country.Country {
	if c.redis == nil {
		return nil
	}
	raw, err := c.redis.Get(ctx, c.redisKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn(ctx, "shared country cache read failed", logger.Error(err))
		}
		return nil
	}
	var list []country.Country
	if err := json.Unmarshal(raw, &list); err != nil || len(list) == 0 {
		return nil
	}
	metrics.RecordCountryCacheHit()
	return list
}

func (c *Cache) toRedis(ctx context.Context, list []country.Country) {
	if c.redis == nil {
		return
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, c.redisKey, raw, c.ttl).Err(); err != nil {
		c.logger.Warn(ctx, "shared country cache write failed", logger.Error(err))
	}
}
