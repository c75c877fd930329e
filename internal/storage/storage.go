// Package storage describes the relational store contract shared by the
// PostgreSQL and in-memory implementations.
package storage

import (
	"context"
	"fmt"

	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("unique constraint conflict")
)

// Unique constraint names reported in ConflictError.
const (
	ConstraintCustomerSlug   = "uq_customers_slug"
	ConstraintTrackingNumber = "uq_tracking_numbers_value"
	ConstraintParcelTracking = "uq_parcels_tracking_number"
	ConstraintOrderParcel    = "uq_orders_parcel"
)

// ConflictError is returned when an insert violates a unique constraint.
// It matches ErrConflict with errors.Is.
type ConflictError struct {
	Constraint string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("unique constraint conflict: %s", e.Constraint)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// Tx is the set of operations available inside one store transaction.
type Tx interface {
	GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	CustomerSlugExists(ctx context.Context, slug string) (bool, error)
	CreateCustomer(ctx context.Context, name, slug string) (*models.Customer, error)

	TrackingNumberExists(ctx context.Context, value string) (bool, error)
	CreateTrackingNumber(ctx context.Context, value string, customerID uuid.UUID) (*models.TrackingNumber, error)

	GetCountry(ctx context.Context, code string) (*models.Country, error)

	CreateParcel(ctx context.Context, in models.ParcelCreateInput) (*models.Parcel, error)
	CreateOrder(ctx context.Context, customerID, parcelID uuid.UUID, status string) (*models.Order, error)

	EnqueueOutbox(ctx context.Context, topic, key string, payload []byte) error
}

// TxRunner runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
