package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/booking-api/pkg/circuitbreaker"
)

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
}

// Redis is a Cache on go-redis guarded by a circuit breaker so an
// unreachable server fails fast.
type Redis struct {
	client *redis.Client
	cb     *circuitbreaker.CircuitBreaker
}

func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	return redis.NewClient(opts), nil
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{
		client: client,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "redis-cache",
			MaxFailures: 5,
			Timeout:     5 * time.Second,
			IsFailure:   func(err error) bool { return !errors.Is(err, redis.Nil) },
		}),
	}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := r.cb.Execute(func() error {
		var err error
		out, err = r.client.Get(ctx, key).Bytes()
		return err
	})
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return out, err
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.cb.Execute(func() error {
		return r.client.Set(ctx, key, value, ttl).Err()
	})
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.cb.Execute(func() error {
		return r.client.Del(ctx, keys...).Err()
	})
}

func (r *Redis) Incr(ctx context.Context, key string) (int64, error) {
	var n int64
	err := r.cb.Execute(func() error {
		var err error
		n, err = r.client.Incr(ctx, key).Result()
		return err
	})
	return n, err
}

func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.cb.Execute(func() error {
		return r.client.Expire(ctx, key, ttl).Err()
	})
}
