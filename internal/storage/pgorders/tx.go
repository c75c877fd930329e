package pgorders

import (
	"context"
	"time"

	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// txRepo implements storage.Tx on top of a pgx transaction.
type txRepo struct {
	tx pgx.Tx
}

func (r *txRepo) GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var c models.Customer
	err := r.tx.QueryRow(ctx, `
SELECT id, name, slug, created_at
FROM customers
WHERE id = $1
`, id).Scan(&c.ID, &c.Name, &c.Slug, &c.CreatedAt)
	if err != nil {
		return nil, mapErr(err, "select customer")
	}
	return &c, nil
}

func (r *txRepo) CustomerSlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE slug = $1)`, slug).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "check customer slug")
	}
	return exists, nil
}

func (r *txRepo) CreateCustomer(ctx context.Context, name, slug string) (*models.Customer, error) {
	c := models.Customer{
		ID:        uuid.New(),
		Name:      name,
		Slug:      slug,
		CreatedAt: time.Now().UTC(),
	}
	_, err := r.tx.Exec(ctx, `
INSERT INTO customers (id, name, slug, created_at)
VALUES ($1,$2,$3,$4)
`, c.ID, c.Name, c.Slug, c.CreatedAt)
	if err != nil {
		return nil, mapErr(err, "insert customer")
	}
	return &c, nil
}

func (r *txRepo) TrackingNumberExists(ctx context.Context, value string) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tracking_numbers WHERE value = $1)`, value).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "check tracking number")
	}
	return exists, nil
}

func (r *txRepo) CreateTrackingNumber(ctx context.Context, value string, customerID uuid.UUID) (*models.TrackingNumber, error) {
	tn := models.TrackingNumber{
		Value:      value,
		CustomerID: customerID,
		CreatedAt:  time.Now().UTC(),
	}
	err := r.tx.QueryRow(ctx, `
INSERT INTO tracking_numbers (value, customer_id, created_at)
VALUES ($1,$2,$3)
RETURNING id
`, tn.Value, tn.CustomerID, tn.CreatedAt).Scan(&tn.ID)
	if err != nil {
		return nil, mapErr(err, "insert tracking number")
	}
	return &tn, nil
}

func (r *txRepo) GetCountry(ctx context.Context, code string) (*models.Country, error) {
	var c models.Country
	err := r.tx.QueryRow(ctx, `SELECT id, code, name FROM countries WHERE code = $1`, code).
		Scan(&c.ID, &c.Code, &c.Name)
	if err != nil {
		return nil, mapErr(err, "select country")
	}
	return &c, nil
}

func (r *txRepo) CreateParcel(ctx context.Context, in models.ParcelCreateInput) (*models.Parcel, error) {
	p := models.Parcel{
		ID:                   uuid.New(),
		OriginCountryID:      in.OriginCountryID,
		DestinationCountryID: in.DestinationCountryID,
		TrackingNumberID:     in.TrackingNumberID,
		CreatedAt:            time.Now().UTC(),
	}

	// NUMERIC ходит строкой в обе стороны, чтобы не терять точность.
	var stored string
	err := r.tx.QueryRow(ctx, `
INSERT INTO parcels (
  id, weight, origin_country_id, destination_country_id, tracking_number_id, created_at
)
VALUES ($1,$2::numeric,$3,$4,$5,$6)
RETURNING weight::text
`, p.ID, in.Weight.StringFixed(models.WeightDecimalPlaces), p.OriginCountryID, p.DestinationCountryID, p.TrackingNumberID, p.CreatedAt).Scan(&stored)
	if err != nil {
		return nil, mapErr(err, "insert parcel")
	}

	w, err := decimal.NewFromString(stored)
	if err != nil {
		return nil, errors.Wrap(err, "parse stored weight")
	}
	p.Weight = w
	return &p, nil
}

func (r *txRepo) CreateOrder(ctx context.Context, customerID, parcelID uuid.UUID, status string) (*models.Order, error) {
	o := models.Order{
		ID:         uuid.New(),
		CustomerID: customerID,
		ParcelID:   parcelID,
		Status:     status,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := r.tx.Exec(ctx, `
INSERT INTO orders (id, customer_id, parcel_id, status, created_at)
VALUES ($1,$2,$3,$4,$5)
`, o.ID, o.CustomerID, o.ParcelID, o.Status, o.CreatedAt)
	if err != nil {
		return nil, mapErr(err, "insert order")
	}
	return &o, nil
}

func (r *txRepo) EnqueueOutbox(ctx context.Context, topic, key string, payload []byte) error {
	now := time.Now().UTC()
	_, err := r.tx.Exec(ctx, `
INSERT INTO outbox (topic, key, payload, next_attempt_at, created_at)
VALUES ($1,$2,$3::jsonb,$4,$4)
`, topic, key, string(payload), now)
	return errors.Wrap(err, "insert outbox")
}
