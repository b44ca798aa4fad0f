package remoteforward

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisProvider publishes events to a Redis Pub/Sub channel, matching the
// teacher's own redis.go remote engine backend for its EventBus abstraction.
type RedisProvider struct {
	client  *redis.Client
	channel string
}

// NewRedisProvider dials addr and forwards to a fixed Pub/Sub channel.
func NewRedisProvider(addr, channel string) *RedisProvider {
	return &RedisProvider{
		client:  redis.NewClient(&redis.Options{Addr: addr}),
		channel: channel,
	}
}

func (p *RedisProvider) Forward(ctx context.Context, topic string, properties map[string]any) error {
	payload, err := json.Marshal(map[string]any{"topic": topic, "properties": properties})
	if err != nil {
		return fmt.Errorf("remoteforward: encode redis payload: %w", err)
	}
	return p.client.Publish(ctx, p.channel, payload).Err()
}

func (p *RedisProvider) Close() error { return p.client.Close() }
