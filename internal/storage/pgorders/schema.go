package pgorders

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS countries (
  id BIGSERIAL PRIMARY KEY,
  code CHAR(2) NOT NULL,
  name TEXT NOT NULL,
  CONSTRAINT uq_countries_code UNIQUE (code)
)`,
		`
CREATE TABLE IF NOT EXISTS customers (
  id UUID PRIMARY KEY,
  name VARCHAR(255) NOT NULL,
  slug VARCHAR(50) NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  CONSTRAINT uq_customers_slug UNIQUE (slug)
)`,
		`
CREATE TABLE IF NOT EXISTS tracking_numbers (
  id BIGSERIAL PRIMARY KEY,
  value CHAR(16) NOT NULL,
  customer_id UUID NOT NULL REFERENCES customers(id) ON DELETE CASCADE,
  created_at TIMESTAMPTZ NOT NULL,
  CONSTRAINT uq_tracking_numbers_value UNIQUE (value)
)`,
		`CREATE INDEX IF NOT EXISTS idx_tracking_numbers_customer_id ON tracking_numbers(customer_id)`,
		`
CREATE TABLE IF NOT EXISTS parcels (
  id UUID PRIMARY KEY,
  weight NUMERIC(6,3) NOT NULL CHECK (weight > 0),
  origin_country_id BIGINT NOT NULL REFERENCES countries(id) ON DELETE RESTRICT,
  destination_country_id BIGINT NOT NULL REFERENCES countries(id) ON DELETE RESTRICT,
  tracking_number_id BIGINT NOT NULL REFERENCES tracking_numbers(id) ON DELETE CASCADE,
  created_at TIMESTAMPTZ NOT NULL,
  CONSTRAINT uq_parcels_tracking_number UNIQUE (tracking_number_id)
)`,
		`
CREATE TABLE IF NOT EXISTS orders (
  id UUID PRIMARY KEY,
  customer_id UUID NOT NULL REFERENCES customers(id) ON DELETE CASCADE,
  parcel_id UUID NOT NULL REFERENCES parcels(id) ON DELETE CASCADE,
  status VARCHAR(50) NOT NULL DEFAULT 'Pending',
  created_at TIMESTAMPTZ NOT NULL,
  CONSTRAINT uq_orders_parcel UNIQUE (parcel_id)
)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_customer_id ON orders(customer_id)`,
		`
CREATE TABLE IF NOT EXISTS outbox (
  id BIGSERIAL PRIMARY KEY,
  topic TEXT NOT NULL,
  key TEXT NOT NULL,
  payload JSONB NOT NULL,
  attempts INT NOT NULL DEFAULT 0,
  next_attempt_at TIMESTAMPTZ NOT NULL,
  last_error TEXT NULL,
  sent_at TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		// Partial index: the relay only scans undelivered rows.
		`CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(next_attempt_at) WHERE sent_at IS NULL`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
