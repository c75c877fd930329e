// Package relay drains the transactional outbox into Kafka.
package relay

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/ParcelBox/internal/models"
)

type Repository interface {
	ClaimDueOutbox(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.OutboxMessage, error)
	MarkOutboxSent(ctx context.Context, id int64, sentAt time.Time) error
	MarkOutboxFailed(ctx context.Context, id int64, errText string, nextAttemptAt time.Time) error
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Relay struct {
	repo     Repository
	producer Producer
	schedule *Schedule

	pollInterval time.Duration
	batchSize    int
	concurrency  int
	lease        time.Duration

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalPublished      atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, producer Producer) *Relay {
	return &Relay{
		repo:              repo,
		producer:          producer,
		schedule:          NewSchedule(DefaultScheduleConfig(), nil),
		pollInterval:      time.Second,
		batchSize:         100,
		concurrency:       10,
		lease:             30 * time.Second,
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (r *Relay) WithSettings(pollInterval time.Duration, batchSize, concurrency int, lease time.Duration) *Relay {
	if pollInterval > 0 {
		r.pollInterval = pollInterval
	}
	if batchSize > 0 {
		r.batchSize = batchSize
	}
	if concurrency > 0 {
		r.concurrency = concurrency
	}
	if lease > 0 {
		r.lease = lease
	}
	return r
}

func (r *Relay) WithSchedule(cfg ScheduleConfig) *Relay {
	r.schedule = NewSchedule(cfg, nil)
	return r
}

// Trigger forces an immediate cycle (best-effort, non-blocking).
func (r *Relay) Trigger() {
	r.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case r.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalClaimed   int64      `json:"totalClaimed"`
	TotalPublished int64      `json:"totalPublished"`
	TotalErrors    int64      `json:"totalErrors"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (r *Relay) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, r.startedAtUnixNano).UTC(),
		TotalClaimed:   r.totalClaimed.Load(),
		TotalPublished: r.totalPublished.Load(),
		TotalErrors:    r.totalErrors.Load(),
		InFlight:       r.inFlight.Load(),
	}
	if n := r.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := r.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	r.lastErrorMu.Lock()
	st.LastError = r.lastError
	r.lastErrorMu.Unlock()
	return st
}

func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			r.runOnce(ctx)
		case <-r.triggerCh:
			r.runOnce(ctx)
		}
	}
}

func (r *Relay) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	r.lastCycleUnixNano.Store(now.UnixNano())

	items, err := r.repo.ClaimDueOutbox(ctx, now, r.batchSize, r.lease)
	if err != nil {
		slog.Error("claim due outbox", "error", err.Error())
		r.setLastError(err)
		return
	}
	r.totalClaimed.Add(int64(len(items)))

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup
	for _, m := range items {
		sem <- struct{}{}
		wg.Add(1)
		r.inFlight.Add(1)
		go func(m *models.OutboxMessage) {
			defer func() {
				r.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := r.processOne(ctx, m); err != nil {
				r.totalErrors.Add(1)
				r.setLastError(err)
				slog.Error("relay outbox message", "outbox_id", m.ID, "topic", m.Topic, "error", err.Error())
				return
			}
			r.totalPublished.Add(1)
		}(m)
	}
	wg.Wait()
}

// processOne publishes a message and records the outcome. A publish failure
// reschedules the message and is returned to the caller.
func (r *Relay) processOne(ctx context.Context, m *models.OutboxMessage) error {
	pubErr := r.producer.Publish(ctx, m.Topic, []byte(m.Key), m.Payload)
	now := time.Now().UTC()

	if pubErr != nil {
		next := now.Add(r.schedule.BackoffDelay(m.Attempts + 1))
		if err := r.repo.MarkOutboxFailed(ctx, m.ID, pubErr.Error(), next); err != nil {
			slog.Error("mark outbox failed", "outbox_id", m.ID, "error", err.Error())
		}
		return pubErr
	}

	// Если отметка не сохранилась, сообщение уйдёт ещё раз после lease:
	// доставка at-least-once, консьюмеры дедуплицируют по ключу.
	return r.repo.MarkOutboxSent(ctx, m.ID, now)
}

func (r *Relay) setLastError(err error) {
	r.lastErrorMu.Lock()
	r.lastError = err.Error()
	r.lastErrorMu.Unlock()
}
