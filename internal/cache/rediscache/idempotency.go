package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyPrefix = "idem:"
	lockSuffix        = ":lock"

	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultLockTTL        = 30 * time.Second
)

// IdempotencyStore keeps the stored response of a keyed request and a
// short-lived lock that marks a request with the same key as in flight.
type IdempotencyStore struct {
	c       *redis.Client
	ttl     time.Duration
	lockTTL time.Duration
}

func NewIdempotencyStore(c *redis.Client, ttl, lockTTL time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	return &IdempotencyStore{c: c, ttl: ttl, lockTTL: lockTTL}
}

// Lookup returns the stored response for key, if any.
func (s *IdempotencyStore) Lookup(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.c.Get(ctx, idempotencyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "redis idempotency get")
	}
	return val, true, nil
}

// Acquire takes the in-flight lock for key. False means someone else holds it.
func (s *IdempotencyStore) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := s.c.SetNX(ctx, idempotencyPrefix+key+lockSuffix, "1", s.lockTTL).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis idempotency lock")
	}
	return ok, nil
}

// Complete stores the response and releases the lock.
func (s *IdempotencyStore) Complete(ctx context.Context, key string, response []byte) error {
	pipe := s.c.TxPipeline()
	pipe.Set(ctx, idempotencyPrefix+key, response, s.ttl)
	pipe.Del(ctx, idempotencyPrefix+key+lockSuffix)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "redis idempotency complete")
	}
	return nil
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.c.Del(ctx, idempotencyPrefix+key+lockSuffix).Err(); err != nil {
		return errors.Wrap(err, "redis idempotency release")
	}
	return nil
}
