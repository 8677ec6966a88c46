package oauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrStateReplayed = errors.New("oauth2 state already used")

// StateGuard makes each authorization state usable once.
type StateGuard interface {
	Consume(ctx context.Context, state string, ttl time.Duration) error
}

type setNXer interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// RedisStateGuard records consumed states with SETNX until they would have
// expired anyway.
type RedisStateGuard struct {
	client setNXer
}

func NewRedisStateGuard(client setNXer) *RedisStateGuard {
	return &RedisStateGuard{client: client}
}

func (g *RedisStateGuard) Consume(ctx context.Context, state string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Second
	}
	ok, err := g.client.SetNX(ctx, "auth:oauth2:state:"+state, 1, ttl).Result()
	if err != nil {
		return fmt.Errorf("consume oauth2 state: %w", err)
	}
	if !ok {
		return ErrStateReplayed
	}
	return nil
}

// ConnectRedis builds a client from a redis:// URL or a bare host:port and
// pings it.
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
