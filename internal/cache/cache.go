// Package cache stores generated AI reports keyed by period label. A cached
// report is served verbatim until the user regenerates it; there is no TTL.
package cache

import (
	"context"
	"fmt"

	"github.com/thebtf/dwell/internal/config"
)

// keyPrefix namespaces cache entries.
const keyPrefix = "ai_report_"

// Cache is the report-cache backend contract. Get reports a miss via ok,
// not an error; errors mean the backend itself failed.
type Cache interface {
	Get(ctx context.Context, label string) (data []byte, ok bool, err error)
	Set(ctx context.Context, label string, data []byte) error
	Delete(ctx context.Context, label string) error
	Close() error
}

// New selects a backend from cfg: "redis" when a Redis address is
// configured, in-memory otherwise.
func New(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("redis cache backend requires redis_addr")
		}
		return NewRedis(cfg.RedisAddr), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

func cacheKey(label string) string {
	return keyPrefix + label
}
