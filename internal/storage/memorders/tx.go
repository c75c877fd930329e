package memorders

import (
	"context"
	"time"

	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/BearBump/ParcelBox/internal/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type memTx struct {
	st *state
}

func (t *memTx) GetCustomer(_ context.Context, id uuid.UUID) (*models.Customer, error) {
	c, ok := t.st.customers[id]
	if !ok {
		return nil, errors.Wrap(storage.ErrNotFound, "select customer")
	}
	return &c, nil
}

func (t *memTx) CustomerSlugExists(_ context.Context, slug string) (bool, error) {
	_, ok := t.st.slugs[slug]
	return ok, nil
}

func (t *memTx) CreateCustomer(_ context.Context, name, slug string) (*models.Customer, error) {
	if _, ok := t.st.slugs[slug]; ok {
		return nil, &storage.ConflictError{Constraint: storage.ConstraintCustomerSlug}
	}
	c := models.Customer{ID: uuid.New(), Name: name, Slug: slug, CreatedAt: time.Now().UTC()}
	t.st.customers[c.ID] = c
	t.st.slugs[slug] = c.ID
	return &c, nil
}

func (t *memTx) TrackingNumberExists(_ context.Context, value string) (bool, error) {
	_, ok := t.st.trackingNumbers[value]
	return ok, nil
}

func (t *memTx) CreateTrackingNumber(_ context.Context, value string, customerID uuid.UUID) (*models.TrackingNumber, error) {
	if _, ok := t.st.trackingNumbers[value]; ok {
		return nil, &storage.ConflictError{Constraint: storage.ConstraintTrackingNumber}
	}
	if _, ok := t.st.customers[customerID]; !ok {
		return nil, errors.Errorf("insert tracking number: customer %s does not exist", customerID)
	}
	tn := models.TrackingNumber{ID: t.st.id(), Value: value, CustomerID: customerID, CreatedAt: time.Now().UTC()}
	t.st.trackingNumbers[value] = tn
	return &tn, nil
}

func (t *memTx) GetCountry(_ context.Context, code string) (*models.Country, error) {
	c, ok := t.st.countries[code]
	if !ok {
		return nil, errors.Wrap(storage.ErrNotFound, "select country")
	}
	return &c, nil
}

func (t *memTx) CreateParcel(_ context.Context, in models.ParcelCreateInput) (*models.Parcel, error) {
	if _, ok := t.st.parcelByTN[in.TrackingNumberID]; ok {
		return nil, &storage.ConflictError{Constraint: storage.ConstraintParcelTracking}
	}
	p := models.Parcel{
		ID:                   uuid.New(),
		Weight:               in.Weight.Round(models.WeightDecimalPlaces),
		OriginCountryID:      in.OriginCountryID,
		DestinationCountryID: in.DestinationCountryID,
		TrackingNumberID:     in.TrackingNumberID,
		CreatedAt:            time.Now().UTC(),
	}
	t.st.parcels[p.ID] = p
	t.st.parcelByTN[in.TrackingNumberID] = p.ID
	return &p, nil
}

func (t *memTx) CreateOrder(_ context.Context, customerID, parcelID uuid.UUID, status string) (*models.Order, error) {
	if _, ok := t.st.orderByParcel[parcelID]; ok {
		return nil, &storage.ConflictError{Constraint: storage.ConstraintOrderParcel}
	}
	if _, ok := t.st.parcels[parcelID]; !ok {
		return nil, errors.Errorf("insert order: parcel %s does not exist", parcelID)
	}
	o := models.Order{ID: uuid.New(), CustomerID: customerID, ParcelID: parcelID, Status: status, CreatedAt: time.Now().UTC()}
	t.st.orders[o.ID] = o
	t.st.orderByParcel[parcelID] = o.ID
	return &o, nil
}

func (t *memTx) EnqueueOutbox(_ context.Context, topic, key string, payload []byte) error {
	now := time.Now().UTC()
	t.st.outbox = append(t.st.outbox, models.OutboxMessage{
		ID:            t.st.id(),
		Topic:         topic,
		Key:           key,
		Payload:       append([]byte(nil), payload...),
		NextAttemptAt: now,
		CreatedAt:     now,
	})
	return nil
}
