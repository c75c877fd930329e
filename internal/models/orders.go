package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultOrderStatus is used when an order is created without an explicit status.
const DefaultOrderStatus = "Pending"

const (
	TrackingNumberLength = 16
	CountryCodeLength    = 2
	MaxOrderStatusLength = 50
	MaxCustomerName      = 255
	MaxSlugLength        = 50
	WeightDecimalPlaces  = 3
	WeightMaxDigits      = 6
)

type Country struct {
	ID   int64
	Code string
	Name string
}

type Customer struct {
	ID        uuid.UUID
	Name      string
	Slug      string
	CreatedAt time.Time
}

type TrackingNumber struct {
	ID         int64
	Value      string
	CustomerID uuid.UUID
	CreatedAt  time.Time
}

type Parcel struct {
	ID                   uuid.UUID
	Weight               decimal.Decimal
	OriginCountryID      int64
	DestinationCountryID int64
	TrackingNumberID     int64
	CreatedAt            time.Time
}

type Order struct {
	ID         uuid.UUID
	CustomerID uuid.UUID
	ParcelID   uuid.UUID
	Status     string
	CreatedAt  time.Time
}

type OutboxMessage struct {
	ID            int64
	Topic         string
	Key           string
	Payload       []byte
	Attempts      int32
	NextAttemptAt time.Time
	LastError     *string
	SentAt        *time.Time
	CreatedAt     time.Time
}

// CustomerRef points at an existing customer (ID) or describes a new one.
// Slug is optional; when empty it is derived from Name. With ExactSlug the
// slug is stored as given instead of being used as a base for a free one.
type CustomerRef struct {
	ID        *uuid.UUID
	Name      string
	Slug      string
	ExactSlug bool
}

type OrderCreateInput struct {
	Customer               CustomerRef
	Weight                 decimal.Decimal
	OriginCountryCode      string
	DestinationCountryCode string
	Status                 string
}

type ParcelCreateInput struct {
	Weight               decimal.Decimal
	OriginCountryID      int64
	DestinationCountryID int64
	TrackingNumberID     int64
}

type OrderResult struct {
	Customer           *Customer
	TrackingNumber     *TrackingNumber
	Parcel             *Parcel
	OriginCountry      *Country
	DestinationCountry *Country
	Order              *Order
}

type TrackingNumberResult struct {
	Customer       *Customer
	TrackingNumber *TrackingNumber
}
