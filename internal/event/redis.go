package event

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisPublisher pushes events onto a redis pub-sub channel so the
// notification/feed service can consume them out of process.
type RedisPublisher struct {
	log     *zap.SugaredLogger
	rdb     *goredis.Client
	channel string
}

// NewRedisPublisher connects to redis and verifies the connection with
// a ping before returning.
func NewRedisPublisher(addr, channel string, log *zap.SugaredLogger) (*RedisPublisher, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	if strings.TrimSpace(channel) == "" {
		channel = "goal-events"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisPublisher{
		log:     log.With("component", "redis_publisher"),
		rdb:     rdb,
		channel: channel,
	}, nil
}

// Publish marshals the event as JSON and publishes it to the channel.
func (p *RedisPublisher) Publish(ctx context.Context, evt Event) error {
	raw, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, raw).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Close releases the redis connection.
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
