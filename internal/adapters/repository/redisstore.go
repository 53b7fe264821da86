package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/flaggy/internal/domain/model"
	"github.com/okian/flaggy/pkg/metrics"
)

const defaultRedisPrefix = "flaggy:lb"

// RedisStore keeps each entry as a JSON string and files its id in one
// sorted set per bucket. Sets are read with ZRANGE (ascending) on a
// composite score so Redis' own member tie-break gives id ASC.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore returns a store using keys under prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) idsKey() string              { return s.prefix + ":ids" }
func (s *RedisStore) entryKey(id string) string   { return s.prefix + ":entry:" + id }
func (s *RedisStore) bucketKey(name string) string { return s.prefix + ":z:" + name }

// sortKey encodes score DESC then averageTime ASC as one ascending number.
// Average time is kept to a tenth of a second, as entries are rounded.
func sortKey(e model.Entry) float64 {
	t := math.Round(e.AverageTime * 10)
	t = math.Max(0, math.Min(t, 999_999))
	return -float64(e.Score)*1_000_000 + t
}

// Insert implements Store.Insert. The ids set makes the duplicate check atomic.
func (s *RedisStore) Insert(ctx context.Context, e model.Entry) error {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryInsertLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if e.ID == "" || e.Difficulty == "" {
		return fmt.Errorf("%w: id and difficulty are required", ErrInvalidEntry)
	}
	added, err := s.client.SAdd(ctx, s.idsKey(), e.ID).Result()
	if err != nil {
		metrics.RecordErrorByComponent("repository", "insert")
		return fmt.Errorf("redis sadd: %w", err)
	}
	if added == 0 {
		metrics.RecordErrorByComponent("repository", "duplicate")
		return fmt.Errorf("%w: %s", ErrDuplicate, e.ID)
	}

	payload, err := json.Marshal(e)
	if err != nil {
		s.client.SRem(ctx, s.idsKey(), e.ID)
		return fmt.Errorf("encode entry: %w", err)
	}
	z := redis.Z{Score: sortKey(e), Member: e.ID}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.entryKey(e.ID), payload, 0)
		for _, b := range Buckets(e) {
			pipe.ZAdd(ctx, s.bucketKey(b), z)
		}
		return nil
	})
	if err != nil {
		s.client.SRem(ctx, s.idsKey(), e.ID)
		metrics.RecordErrorByComponent("repository", "insert")
		return fmt.Errorf("redis insert: %w", err)
	}
	return nil
}

// Query implements Store.Query.
func (s *RedisStore) Query(ctx context.Context, q Query) ([]model.Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}
	key := s.bucketKey(q.Bucket())
	page := int64(q.Limit)
	if q.Distinct {
		page *= 4
	}

	app := newAppender(q)
	for offset := int64(0); ; offset += page {
		ids, err := s.client.ZRange(ctx, key, offset, offset+page-1).Result()
		if err != nil {
			metrics.RecordErrorByComponent("repository", "query")
			return nil, fmt.Errorf("redis zrange: %w", err)
		}
		if len(ids) == 0 {
			return app.out, nil
		}
		entries, err := s.load(ctx, ids)
		if err != nil {
			return nil, err
		}
		more := true
		for _, e := range entries {
			if more = app.add(e); !more {
				break
			}
		}
		if !more || int64(len(ids)) < page {
			return app.out, nil
		}
	}
}

func (s *RedisStore) load(ctx context.Context, ids []string) ([]model.Entry, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.entryKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	out := make([]model.Entry, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var e model.Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// Count implements Store.Count. Errors count as zero.
func (s *RedisStore) Count(ctx context.Context) int {
	n, err := s.client.SCard(ctx, s.idsKey()).Result()
	if err != nil {
		return 0
	}
	return int(n)
}
