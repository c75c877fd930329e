package orders

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/ParcelBox/internal/storage"
	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

// RetryPolicy bounds how often a transaction is replayed after a unique
// constraint conflict on a generated value.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     200 * time.Millisecond,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = def.InitialInterval
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	return p
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1)), ctx)
}

func (s *Service) inTxWithRetry(ctx context.Context, fn func(tx storage.Tx) error) error {
	attempt := 0
	op := func() error {
		attempt++
		err := s.repo.InTx(ctx, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, storage.ErrConflict) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, next time.Duration) {
		slog.Warn("order tx conflict, retrying", "attempt", attempt, "next", next, "error", err)
	}

	err := backoff.RetryNotify(op, s.retry.backOff(ctx), notify)
	if err != nil && errors.Is(err, storage.ErrConflict) {
		return errors.Wrapf(err, "giving up after %d attempts", attempt)
	}
	return err
}
