package pgorders

import (
	"context"
	"time"

	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// ClaimDueOutbox выбирает пачку неотправленных сообщений и "бронирует" их на lease,
// чтобы параллельный relay не взял их повторно.
// Использует SELECT ... FOR UPDATE SKIP LOCKED.
func (s *Storage) ClaimDueOutbox(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.OutboxMessage, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT
  id, topic, key, payload::text,
  attempts, next_attempt_at, last_error, sent_at, created_at
FROM outbox
WHERE sent_at IS NULL
  AND next_attempt_at <= $1
ORDER BY next_attempt_at ASC, id ASC
LIMIT $2
FOR UPDATE SKIP LOCKED
`, now.UTC(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due outbox")
	}
	defer rows.Close()

	var picked []*models.OutboxMessage
	for rows.Next() {
		var m models.OutboxMessage
		var payload string
		if err := rows.Scan(
			&m.ID, &m.Topic, &m.Key, &payload,
			&m.Attempts, &m.NextAttemptAt, &m.LastError, &m.SentAt, &m.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan outbox")
		}
		m.Payload = []byte(payload)
		picked = append(picked, &m)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	leaseUntil := now.UTC().Add(lease)
	for _, m := range picked {
		if _, err := tx.Exec(ctx, `UPDATE outbox SET next_attempt_at = $2 WHERE id = $1`, m.ID, leaseUntil); err != nil {
			return nil, errors.Wrap(err, "lease outbox")
		}
		m.NextAttemptAt = leaseUntil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}

func (s *Storage) MarkOutboxSent(ctx context.Context, id int64, sentAt time.Time) error {
	_, err := s.db.Exec(ctx, `
UPDATE outbox
SET sent_at = $2, attempts = attempts + 1, last_error = NULL
WHERE id = $1
`, id, sentAt.UTC())
	return errors.Wrap(err, "mark outbox sent")
}

func (s *Storage) MarkOutboxFailed(ctx context.Context, id int64, errText string, nextAttemptAt time.Time) error {
	_, err := s.db.Exec(ctx, `
UPDATE outbox
SET attempts = attempts + 1, last_error = $2, next_attempt_at = $3
WHERE id = $1
`, id, errText, nextAttemptAt.UTC())
	return errors.Wrap(err, "mark outbox failed")
}

// CountPendingOutbox backs the relay readiness probe and stats.
func (s *Storage) CountPendingOutbox(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM outbox WHERE sent_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "count pending outbox")
	}
	return n, nil
}
