package rediscache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_GetSet(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	require.NoError(t, c.Ping(ctx))

	_, ok, err := c.Get(ctx, "country:US")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "country:US", []byte(`{"Code":"US"}`), time.Minute))

	b, ok, err := c.Get(ctx, "country:US")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte(`{"Code":"US"}`), b)

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.Get(ctx, "country:US")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisCache_GetError(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())
	mr.Close()

	_, _, err := c.Get(context.Background(), "k")
	require.Error(t, err)
}

func TestRateLimiter_Allow(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(mr.Addr())

	ctx := context.Background()
	ok, n, err := rl.Allow(ctx, "rl:orders:10.0.0.1:202401011000", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), n)

	ok, n, _ = rl.Allow(ctx, "rl:orders:10.0.0.1:202401011000", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(2), n)

	ok, n, _ = rl.Allow(ctx, "rl:orders:10.0.0.1:202401011000", 2, time.Minute)
	require.False(t, ok)
	require.Equal(t, int64(3), n)

	require.True(t, mr.TTL("rl:orders:10.0.0.1:202401011000") > 0)
}

func TestIdempotencyStore_Flow(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewIdempotencyStore(NewClient(mr.Addr()), time.Hour, time.Second)
	ctx := context.Background()

	_, ok, err := s.Lookup(ctx, "/next-tracking-number:k1")
	require.NoError(t, err)
	require.False(t, ok)

	acquired, err := s.Acquire(ctx, "/next-tracking-number:k1")
	require.NoError(t, err)
	require.True(t, acquired)

	// второй запрос с тем же ключом, пока первый не завершился
	acquired, err = s.Acquire(ctx, "/next-tracking-number:k1")
	require.NoError(t, err)
	require.False(t, acquired)

	require.NoError(t, s.Complete(ctx, "/next-tracking-number:k1", []byte(`{"status":201}`)))

	b, ok, err := s.Lookup(ctx, "/next-tracking-number:k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"status":201}`, string(b))
	require.False(t, mr.Exists("idem:/next-tracking-number:k1:lock"))
	require.Equal(t, time.Hour, mr.TTL("idem:/next-tracking-number:k1"))
}

func TestIdempotencyStore_ReleaseAndLockExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewIdempotencyStore(NewClient(mr.Addr()), 0, 0)
	ctx := context.Background()

	acquired, err := s.Acquire(ctx, "k")
	require.NoError(t, err)
	require.True(t, acquired)
	require.Equal(t, DefaultLockTTL, mr.TTL("idem:k:lock"))

	require.NoError(t, s.Release(ctx, "k"))
	acquired, err = s.Acquire(ctx, "k")
	require.NoError(t, err)
	require.True(t, acquired)

	mr.FastForward(DefaultLockTTL + time.Second)
	acquired, err = s.Acquire(ctx, "k")
	require.NoError(t, err)
	require.True(t, acquired)
}
