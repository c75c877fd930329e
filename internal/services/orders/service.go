package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BearBump/ParcelBox/internal/broker/messages"
	"github.com/BearBump/ParcelBox/internal/cache"
	"github.com/BearBump/ParcelBox/internal/identifiers"
	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/BearBump/ParcelBox/internal/storage"
	"github.com/pkg/errors"
)

var (
	ErrCustomerNotFound = errors.New("customer not found")
	ErrUnknownCountry   = errors.New("unknown country code")
	ErrSlugTaken        = errors.New("customer slug is already taken")
	ErrInvalidInput     = errors.New("invalid input")
)

type Repository = storage.TxRunner

type IdentifierGenerator interface {
	TrackingNumber(ctx context.Context, exists identifiers.ExistsFunc) (string, error)
	UniqueSlug(ctx context.Context, base string, exists identifiers.ExistsFunc) (string, error)
}

type Topics struct {
	OrderCreated         string
	TrackingNumberIssued string
}

func DefaultTopics() Topics {
	return Topics{
		OrderCreated:         messages.TopicOrderCreated,
		TrackingNumberIssued: messages.TopicTrackingNumberIssued,
	}
}

type Service struct {
	repo       Repository
	ids        IdentifierGenerator
	cache      cache.BytesCache
	countryTTL time.Duration
	retry      RetryPolicy
	topics     Topics
}

func New(repo Repository, ids IdentifierGenerator, c cache.BytesCache, countryTTL time.Duration) *Service {
	return &Service{
		repo:       repo,
		ids:        ids,
		cache:      c,
		countryTTL: countryTTL,
		retry:      DefaultRetryPolicy(),
		topics:     DefaultTopics(),
	}
}

func (s *Service) WithRetryPolicy(p RetryPolicy) *Service {
	s.retry = p.withDefaults()
	return s
}

func (s *Service) WithTopics(t Topics) *Service {
	if t.OrderCreated != "" {
		s.topics.OrderCreated = t.OrderCreated
	}
	if t.TrackingNumberIssued != "" {
		s.topics.TrackingNumberIssued = t.TrackingNumberIssued
	}
	return s
}

// CreateOrder resolves the customer, mints a tracking number and creates the
// parcel and the order in one transaction.
func (s *Service) CreateOrder(ctx context.Context, in models.OrderCreateInput) (*models.OrderResult, error) {
	if err := validateCustomerRef(in.Customer); err != nil {
		return nil, err
	}
	if !in.Weight.IsPositive() {
		return nil, fmt.Errorf("%w: weight must be positive", ErrInvalidInput)
	}
	originCode := normalizeCountryCode(in.OriginCountryCode)
	destCode := normalizeCountryCode(in.DestinationCountryCode)
	if len(originCode) != models.CountryCodeLength || len(destCode) != models.CountryCodeLength {
		return nil, ErrUnknownCountry
	}
	status := strings.TrimSpace(in.Status)
	if status == "" {
		status = models.DefaultOrderStatus
	}
	if len(status) > models.MaxOrderStatusLength {
		return nil, fmt.Errorf("%w: order status is longer than %d characters", ErrInvalidInput, models.MaxOrderStatusLength)
	}

	var res *models.OrderResult
	err := s.inTxWithRetry(ctx, func(tx storage.Tx) error {
		customer, err := s.resolveCustomer(ctx, tx, in.Customer)
		if err != nil {
			return err
		}
		tn, err := s.mintTrackingNumber(ctx, tx, customer)
		if err != nil {
			return err
		}

		origin, err := s.resolveCountry(ctx, tx, originCode)
		if err != nil {
			return err
		}
		dest, err := s.resolveCountry(ctx, tx, destCode)
		if err != nil {
			return err
		}

		parcel, err := tx.CreateParcel(ctx, models.ParcelCreateInput{
			Weight:               in.Weight,
			OriginCountryID:      origin.ID,
			DestinationCountryID: dest.ID,
			TrackingNumberID:     tn.ID,
		})
		if err != nil {
			return errors.Wrap(err, "create parcel")
		}

		order, err := tx.CreateOrder(ctx, customer.ID, parcel.ID, status)
		if err != nil {
			return errors.Wrap(err, "create order")
		}

		r := &models.OrderResult{
			Customer:           customer,
			TrackingNumber:     tn,
			Parcel:             parcel,
			OriginCountry:      origin,
			DestinationCountry: dest,
			Order:              order,
		}
		if err := s.enqueue(ctx, tx, s.topics.OrderCreated, order.ID.String(), orderCreatedMessage(r)); err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// IssueTrackingNumber resolves the customer and mints a tracking number for it.
func (s *Service) IssueTrackingNumber(ctx context.Context, ref models.CustomerRef) (*models.TrackingNumberResult, error) {
	if err := validateCustomerRef(ref); err != nil {
		return nil, err
	}

	var res *models.TrackingNumberResult
	err := s.inTxWithRetry(ctx, func(tx storage.Tx) error {
		customer, err := s.resolveCustomer(ctx, tx, ref)
		if err != nil {
			return err
		}
		tn, err := s.mintTrackingNumber(ctx, tx, customer)
		if err != nil {
			return err
		}

		msg := messages.TrackingNumberIssued{
			TrackingNumber: tn.Value,
			CustomerID:     customer.ID.String(),
			CreatedAt:      tn.CreatedAt,
		}
		if err := s.enqueue(ctx, tx, s.topics.TrackingNumberIssued, tn.Value, msg); err != nil {
			return err
		}
		res = &models.TrackingNumberResult{Customer: customer, TrackingNumber: tn}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) resolveCustomer(ctx context.Context, tx storage.Tx, ref models.CustomerRef) (*models.Customer, error) {
	if ref.ID != nil {
		c, err := tx.GetCustomer(ctx, *ref.ID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrCustomerNotFound
		}
		if err != nil {
			return nil, errors.Wrap(err, "get customer")
		}
		return c, nil
	}

	name := strings.TrimSpace(ref.Name)
	if ref.ExactSlug && ref.Slug != "" {
		taken, err := tx.CustomerSlugExists(ctx, ref.Slug)
		if err != nil {
			return nil, errors.Wrap(err, "check customer slug")
		}
		if taken {
			return nil, ErrSlugTaken
		}
		c, err := tx.CreateCustomer(ctx, name, ref.Slug)
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrSlugTaken
		}
		if err != nil {
			return nil, errors.Wrap(err, "create customer")
		}
		return c, nil
	}

	base := name
	if ref.Slug != "" {
		base = ref.Slug
	}
	slug, err := s.ids.UniqueSlug(ctx, base, tx.CustomerSlugExists)
	if err != nil {
		return nil, errors.Wrap(err, "generate slug")
	}
	c, err := tx.CreateCustomer(ctx, name, slug)
	if err != nil {
		return nil, errors.Wrap(err, "create customer")
	}
	return c, nil
}

func (s *Service) mintTrackingNumber(ctx context.Context, tx storage.Tx, customer *models.Customer) (*models.TrackingNumber, error) {
	value, err := s.ids.TrackingNumber(ctx, tx.TrackingNumberExists)
	if err != nil {
		return nil, errors.Wrap(err, "generate tracking number")
	}
	tn, err := tx.CreateTrackingNumber(ctx, value, customer.ID)
	if err != nil {
		return nil, errors.Wrap(err, "create tracking number")
	}
	return tn, nil
}

func (s *Service) enqueue(ctx context.Context, tx storage.Tx, topic, key string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal outbox message")
	}
	if err := tx.EnqueueOutbox(ctx, topic, key, payload); err != nil {
		return errors.Wrap(err, "enqueue outbox")
	}
	return nil
}

func orderCreatedMessage(r *models.OrderResult) messages.OrderCreated {
	return messages.OrderCreated{
		OrderID:            r.Order.ID.String(),
		OrderStatus:        r.Order.Status,
		CustomerID:         r.Customer.ID.String(),
		CustomerSlug:       r.Customer.Slug,
		TrackingNumber:     r.TrackingNumber.Value,
		ParcelID:           r.Parcel.ID.String(),
		Weight:             r.Parcel.Weight.StringFixed(models.WeightDecimalPlaces),
		OriginCountry:      r.OriginCountry.Code,
		DestinationCountry: r.DestinationCountry.Code,
		CreatedAt:          r.Order.CreatedAt,
	}
}

func validateCustomerRef(ref models.CustomerRef) error {
	if ref.ID == nil && strings.TrimSpace(ref.Name) == "" {
		return fmt.Errorf("%w: customer name is required when customer id is not provided", ErrInvalidInput)
	}
	if ref.ID == nil && len(ref.Name) > models.MaxCustomerName {
		return fmt.Errorf("%w: customer name is longer than %d characters", ErrInvalidInput, models.MaxCustomerName)
	}
	if ref.ExactSlug && len(ref.Slug) > models.MaxSlugLength {
		return fmt.Errorf("%w: customer slug is longer than %d characters", ErrInvalidInput, models.MaxSlugLength)
	}
	return nil
}
