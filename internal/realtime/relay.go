package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRelayChannel is the pub/sub channel shared by every process.
const DefaultRelayChannel = "klarolink:notifications"

// RelayFrame is a serialized envelope plus the categories it targets.
type RelayFrame struct {
	Categories []string        `json:"categories"`
	Message    json.RawMessage `json:"message"`
}

// Relay fans broadcasts out across processes. Every process publishes its
// broadcasts and delivers whatever it receives to its own connections.
type Relay interface {
	Publish(ctx context.Context, frame RelayFrame) error
	Subscribe(ctx context.Context, handle func(RelayFrame)) error
}

// RedisRelay is a Relay backed by Redis pub/sub.
type RedisRelay struct {
	client  *redis.Client
	channel string
}

// NewRedisRelay connects to the Redis instance at url.
func NewRedisRelay(ctx context.Context, url, channel string) (*RedisRelay, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &RedisRelay{client: client, channel: channel}, nil
}

func (r *RedisRelay) Publish(ctx context.Context, frame RelayFrame) error {
	body, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, body).Err()
}

// Subscribe blocks, invoking handle for every frame, until ctx is done.
func (r *RedisRelay) Subscribe(ctx context.Context, handle func(RelayFrame)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var frame RelayFrame
			if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
				continue
			}
			handle(frame)
		}
	}
}

func (r *RedisRelay) Close() error {
	return r.client.Close()
}
