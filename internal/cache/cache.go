package cache

import (
	"context"
	"time"
)

// BytesCache is a key/value cache with per-key TTL.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
