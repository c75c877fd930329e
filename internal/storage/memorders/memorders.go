// Package memorders is an in-memory storage.TxRunner for tests and local runs.
// Transactions are serialized and applied to a copy of the state, so a
// failing fn leaves nothing behind.
package memorders

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/BearBump/ParcelBox/internal/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type state struct {
	countries       map[string]models.Country
	customers       map[uuid.UUID]models.Customer
	slugs           map[string]uuid.UUID
	trackingNumbers map[string]models.TrackingNumber
	parcels         map[uuid.UUID]models.Parcel
	parcelByTN      map[int64]uuid.UUID
	orders          map[uuid.UUID]models.Order
	orderByParcel   map[uuid.UUID]uuid.UUID
	outbox          []models.OutboxMessage
	nextID          int64
}

func newState() *state {
	return &state{
		countries:       map[string]models.Country{},
		customers:       map[uuid.UUID]models.Customer{},
		slugs:           map[string]uuid.UUID{},
		trackingNumbers: map[string]models.TrackingNumber{},
		parcels:         map[uuid.UUID]models.Parcel{},
		parcelByTN:      map[int64]uuid.UUID{},
		orders:          map[uuid.UUID]models.Order{},
		orderByParcel:   map[uuid.UUID]uuid.UUID{},
	}
}

func (s *state) clone() *state {
	c := &state{
		countries:       make(map[string]models.Country, len(s.countries)),
		customers:       make(map[uuid.UUID]models.Customer, len(s.customers)),
		slugs:           make(map[string]uuid.UUID, len(s.slugs)),
		trackingNumbers: make(map[string]models.TrackingNumber, len(s.trackingNumbers)),
		parcels:         make(map[uuid.UUID]models.Parcel, len(s.parcels)),
		parcelByTN:      make(map[int64]uuid.UUID, len(s.parcelByTN)),
		orders:          make(map[uuid.UUID]models.Order, len(s.orders)),
		orderByParcel:   make(map[uuid.UUID]uuid.UUID, len(s.orderByParcel)),
		outbox:          append([]models.OutboxMessage(nil), s.outbox...),
		nextID:          s.nextID,
	}
	for k, v := range s.countries {
		c.countries[k] = v
	}
	for k, v := range s.customers {
		c.customers[k] = v
	}
	for k, v := range s.slugs {
		c.slugs[k] = v
	}
	for k, v := range s.trackingNumbers {
		c.trackingNumbers[k] = v
	}
	for k, v := range s.parcels {
		c.parcels[k] = v
	}
	for k, v := range s.parcelByTN {
		c.parcelByTN[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.orderByParcel {
		c.orderByParcel[k] = v
	}
	return c
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

type Storage struct {
	mu sync.Mutex
	st *state
}

func New() *Storage {
	return &Storage{st: newState()}
}

func (s *Storage) InTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.st.clone()
	if err := fn(&memTx{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Storage) UpsertCountries(_ context.Context, countries []models.Country) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range countries {
		code := strings.ToUpper(c.Code)
		if existing, ok := s.st.countries[code]; ok {
			existing.Name = c.Name
			s.st.countries[code] = existing
			continue
		}
		s.st.countries[code] = models.Country{ID: s.st.id(), Code: code, Name: c.Name}
	}
	return nil
}

// Counts returns the number of stored customers, tracking numbers, parcels and orders.
func (s *Storage) Counts() (customers, trackingNumbers, parcels, orders int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.customers), len(s.st.trackingNumbers), len(s.st.parcels), len(s.st.orders)
}

// Outbox returns a copy of all enqueued outbox messages.
func (s *Storage) Outbox() []models.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.OutboxMessage(nil), s.st.outbox...)
}

func (s *Storage) CountPendingOutbox(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, m := range s.st.outbox {
		if m.SentAt == nil {
			n++
		}
	}
	return n, nil
}

func (s *Storage) ClaimDueOutbox(_ context.Context, now time.Time, limit int, lease time.Duration) ([]*models.OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.OutboxMessage
	for i := range s.st.outbox {
		if len(out) >= limit {
			break
		}
		m := &s.st.outbox[i]
		if m.SentAt != nil || m.NextAttemptAt.After(now) {
			continue
		}
		m.NextAttemptAt = now.Add(lease)
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Storage) MarkOutboxSent(_ context.Context, id int64, sentAt time.Time) error {
	return s.updateOutbox(id, func(m *models.OutboxMessage) {
		m.Attempts++
		m.SentAt = &sentAt
		m.LastError = nil
	})
}

func (s *Storage) MarkOutboxFailed(_ context.Context, id int64, errText string, nextAttemptAt time.Time) error {
	return s.updateOutbox(id, func(m *models.OutboxMessage) {
		m.Attempts++
		m.LastError = &errText
		m.NextAttemptAt = nextAttemptAt
	})
}

func (s *Storage) updateOutbox(id int64, fn func(m *models.OutboxMessage)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.st.outbox {
		if s.st.outbox[i].ID == id {
			fn(&s.st.outbox[i])
			return nil
		}
	}
	return errors.Wrapf(storage.ErrNotFound, "outbox %d", id)
}
