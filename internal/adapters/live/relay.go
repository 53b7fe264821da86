package live

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/okian/flaggy/internal/domain/model"
	"github.com/okian/flaggy/pkg/logger"
)

const defaultChannel = "flaggy:leaderboard"

type envelope struct {
	Origin string      `json:"origin"`
	Entry  model.Entry `json:"entry"`
}

// RedisRelay keeps hubs on several instances in sync: local entries are
// published on a Redis channel and entries from other instances are fed
// into the local hub.
type RedisRelay struct {
	client  redis.UniversalClient
	channel string
	origin  string
	hub     *Hub
	logger  logger.Logger
}

// NewRedisRelay wires hub to channel.
func NewRedisRelay(client redis.UniversalClient, channel string, hub *Hub, log logger.Logger) *RedisRelay {
	if channel == "" {
		channel = defaultChannel
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RedisRelay{client: client, channel: channel, origin: uuid.NewString(), hub: hub, logger: log}
}

// Notify updates local subscribers and publishes e for other instances.
func (r *RedisRelay) Notify(ctx context.Context, e model.Entry) {
	r.hub.Notify(ctx, e)

	raw, err := json.Marshal(envelope{Origin: r.origin, Entry: e})
	if err != nil {
		r.logger.Error(ctx, "encode relay message", logger.Error(err))
		return
	}
	if err := r.client.Publish(ctx, r.channel, raw).Err(); err != nil {
		r.logger.Warn(ctx, "relay publish failed", logger.Error(err))
	}
}

// Start subscribes to the channel and forwards remote entries until ctx is
// done. It returns once the subscription is confirmed.
func (r *RedisRelay) Start(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var env envelope
				if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
					r.logger.Warn(ctx, "bad relay payload", logger.Error(err))
					continue
				}
				if env.Origin == r.origin {
					continue
				}
				r.hub.Notify(ctx, env.Entry)
			}
		}
	}()
	return nil
}
