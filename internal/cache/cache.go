package cache

import (
	"context"
	"time"
)

// BytesCache — байтовый кэш с TTL. Реализация: rediscache.RedisCache.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}
