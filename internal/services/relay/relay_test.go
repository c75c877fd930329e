package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/BearBump/ParcelBox/internal/storage"
	"github.com/BearBump/ParcelBox/internal/storage/memorders"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	mu    sync.Mutex
	sent  []string
	calls int
	err   error
}

func (p *fakeProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, topic+"|"+string(key)+"|"+string(value))
	return nil
}

type fakeRepo struct {
	calls int
	err   error
}

func (r *fakeRepo) ClaimDueOutbox(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.OutboxMessage, error) {
	r.calls++
	return nil, r.err
}

func (r *fakeRepo) MarkOutboxSent(ctx context.Context, id int64, sentAt time.Time) error {
	return nil
}

func (r *fakeRepo) MarkOutboxFailed(ctx context.Context, id int64, errText string, nextAttemptAt time.Time) error {
	return nil
}

func enqueue(t *testing.T, st *memorders.Storage, topic, key, payload string) {
	t.Helper()
	require.NoError(t, st.InTx(context.Background(), func(tx storage.Tx) error {
		return tx.EnqueueOutbox(context.Background(), topic, key, []byte(payload))
	}))
}

func TestRelay_runOnce_PublishesAndMarksSent(t *testing.T) {
	st := memorders.New()
	enqueue(t, st, "order.created", "o-1", `{"order_id":"o-1"}`)
	enqueue(t, st, "tracking_number.issued", "ABC", `{"tracking_number":"ABC"}`)

	fp := &fakeProducer{}
	r := New(st, fp).WithSettings(time.Second, 10, 2, time.Minute)
	r.runOnce(context.Background())

	require.ElementsMatch(t, []string{
		`order.created|o-1|{"order_id":"o-1"}`,
		`tracking_number.issued|ABC|{"tracking_number":"ABC"}`,
	}, fp.sent)

	for _, m := range st.Outbox() {
		require.NotNil(t, m.SentAt)
		require.Equal(t, int32(1), m.Attempts)
	}

	stats := r.Stats()
	require.Equal(t, int64(2), stats.TotalClaimed)
	require.Equal(t, int64(2), stats.TotalPublished)
	require.Zero(t, stats.TotalErrors)
	require.NotNil(t, stats.LastCycleAt)

	// отправленные сообщения повторно не выбираются
	r.runOnce(context.Background())
	require.Equal(t, 2, fp.calls)
}

func TestRelay_runOnce_FailureReschedules(t *testing.T) {
	st := memorders.New()
	enqueue(t, st, "order.created", "o-1", `{}`)

	fp := &fakeProducer{err: errors.New("broker unavailable")}
	r := New(st, fp).WithSchedule(ScheduleConfig{Backoff1: time.Hour})

	before := time.Now().UTC()
	r.runOnce(context.Background())

	out := st.Outbox()
	require.Len(t, out, 1)
	require.Nil(t, out[0].SentAt)
	require.Equal(t, int32(1), out[0].Attempts)
	require.NotNil(t, out[0].LastError)
	require.Equal(t, "broker unavailable", *out[0].LastError)
	require.WithinDuration(t, before.Add(time.Hour), out[0].NextAttemptAt, 5*time.Second)

	stats := r.Stats()
	require.Equal(t, int64(1), stats.TotalErrors)
	require.Equal(t, "broker unavailable", stats.LastError)

	// ещё не пора: второй цикл ничего не берёт
	r.runOnce(context.Background())
	require.Equal(t, 1, fp.calls)
}

func TestRelay_runOnce_ClaimError(t *testing.T) {
	repo := &fakeRepo{err: errors.New("pg down")}
	r := New(repo, &fakeProducer{})
	r.runOnce(context.Background())
	require.Equal(t, "pg down", r.Stats().LastError)
}

func TestRelay_Run_StopsOnContextCancel(t *testing.T) {
	repo := &fakeRepo{}
	r := New(repo, &fakeProducer{}).WithSettings(5*time.Millisecond, 1, 1, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := r.Run(ctx)
	require.Error(t, err)
	require.GreaterOrEqual(t, repo.calls, 1)
}

func TestRelay_Trigger(t *testing.T) {
	repo := &fakeRepo{}
	r := New(repo, &fakeProducer{}).WithSettings(time.Hour, 1, 1, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	r.Trigger()
	require.Eventually(t, func() bool { return r.Stats().LastCycleAt != nil }, time.Second, 5*time.Millisecond)
	require.NotNil(t, r.Stats().LastTriggerAt)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestRelay_WithSettings(t *testing.T) {
	r := New(nil, &fakeProducer{}).WithSettings(5*time.Second, 7, 9, 11*time.Second)
	require.Equal(t, 5*time.Second, r.pollInterval)
	require.Equal(t, 7, r.batchSize)
	require.Equal(t, 9, r.concurrency)
	require.Equal(t, 11*time.Second, r.lease)

	r = r.WithSettings(0, 0, 0, 0)
	require.Equal(t, 7, r.batchSize)
}
