package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
)

// Redis caches reports in a Redis instance, sharing entries across daemon
// restarts.
type Redis struct {
	pool *redis.Pool
}

// NewRedis creates a Redis-backed cache against addr.
func NewRedis(addr string) *Redis {
	return &Redis{
		pool: &redis.Pool{
			MaxIdle:     3,
			IdleTimeout: 240 * time.Second,
			DialContext: func(ctx context.Context) (redis.Conn, error) {
				return redis.DialContext(ctx, "tcp", addr)
			},
		},
	}
}

func (r *Redis) Get(ctx context.Context, label string) ([]byte, bool, error) {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("redis cache get: %w", err)
	}
	defer conn.Close()

	data, err := redis.Bytes(conn.Do("GET", cacheKey(label)))
	if errors.Is(err, redis.ErrNil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis cache get: %w", err)
	}
	return data, true, nil
}

func (r *Redis) Set(ctx context.Context, label string, data []byte) error {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("redis cache set: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Do("SET", cacheKey(label), data); err != nil {
		return fmt.Errorf("redis cache set: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, label string) error {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("redis cache delete: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Do("DEL", cacheKey(label)); err != nil {
		return fmt.Errorf("redis cache delete: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.pool.Close()
}
