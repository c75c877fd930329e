package orders_api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/BearBump/ParcelBox/internal/services/orders"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
)

const (
	msgInvalidBody       = "Invalid request body."
	msgCustomerNotFound  = "Customer not found."
	msgInvalidCountries  = "One or both country codes are invalid."
	msgSlugTaken         = "Customer slug is already taken."
	msgInvalidInput      = "Invalid input."
	msgInternal          = "Internal server error."
	maxRequestBodyLength = 1 << 20
)

type Service interface {
	CreateOrder(ctx context.Context, in models.OrderCreateInput) (*models.OrderResult, error)
	IssueTrackingNumber(ctx context.Context, ref models.CustomerRef) (*models.TrackingNumberResult, error)
}

type OrdersAPI struct {
	svc    Service
	guards *Guards
}

func New(svc Service) *OrdersAPI {
	return &OrdersAPI{svc: svc}
}

func (a *OrdersAPI) WithGuards(g *Guards) *OrdersAPI {
	a.guards = g
	return a
}

// Routes registers the order endpoints. Trailing slashes are expected to be
// stripped by the caller's router.
func (a *OrdersAPI) Routes(r chi.Router) {
	r.Post("/create-order", a.CreateOrder)

	r.Group(func(r chi.Router) {
		r.Use(a.guards.RateLimit, a.guards.Idempotency)
		r.Get("/next-tracking-number", a.NextTrackingNumber)
		r.Get("/combined-next-tracking-number", a.CombinedNextTrackingNumber)
	})
}

// Router is a standalone router serving the order endpoints with and without
// the trailing slash.
func (a *OrdersAPI) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.StripSlashes)
	a.Routes(r)
	return r
}

func (a *OrdersAPI) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyLength)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	req.normalize()
	if ferrs := req.validate(); len(ferrs) > 0 {
		writeJSON(w, http.StatusBadRequest, ferrs)
		return
	}

	in, err := req.toInput()
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	res, err := a.svc.CreateOrder(r.Context(), in)
	if err != nil {
		// Для тела запроса неизвестный клиент это 400, а не 404.
		a.writeServiceError(w, r, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, toCreateOrderResponse(res))
}

func (a *OrdersAPI) NextTrackingNumber(w http.ResponseWriter, r *http.Request) {
	q, err := parseTrackingQuery(r.URL.Query())
	if err != nil {
		writeQueryError(w, err)
		return
	}

	res, err := a.svc.IssueTrackingNumber(r.Context(), q.Customer)
	if err != nil {
		a.writeServiceError(w, r, err, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusCreated, toTrackingNumberResponse(res))
}

func (a *OrdersAPI) CombinedNextTrackingNumber(w http.ResponseWriter, r *http.Request) {
	q, err := parseTrackingQuery(r.URL.Query())
	if err == nil {
		err = q.checkOrderStatus()
	}
	if err != nil {
		writeQueryError(w, err)
		return
	}

	res, err := a.svc.CreateOrder(r.Context(), models.OrderCreateInput{
		Customer:               q.Customer,
		Weight:                 q.Weight,
		OriginCountryCode:      q.OriginCode,
		DestinationCountryCode: q.DestinationCode,
		Status:                 q.OrderStatus,
	})
	if err != nil {
		a.writeServiceError(w, r, err, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusCreated, toCombinedResponse(res))
}

func writeQueryError(w http.ResponseWriter, err error) {
	var qe *queryError
	if errors.As(err, &qe) {
		writeError(w, qe.status, qe.message)
		return
	}
	writeError(w, http.StatusBadRequest, msgInvalidInput)
}

func (a *OrdersAPI) writeServiceError(w http.ResponseWriter, r *http.Request, err error, customerNotFoundStatus int) {
	switch {
	case errors.Is(err, orders.ErrCustomerNotFound):
		writeError(w, customerNotFoundStatus, msgCustomerNotFound)
	case errors.Is(err, orders.ErrUnknownCountry):
		writeError(w, http.StatusBadRequest, msgInvalidCountries)
	case errors.Is(err, orders.ErrSlugTaken):
		writeError(w, http.StatusConflict, msgSlugTaken)
	case errors.Is(err, orders.ErrInvalidInput):
		slog.Warn("order input rejected by service", "path", r.URL.Path, "error", err.Error())
		writeError(w, http.StatusBadRequest, msgInvalidInput)
	default:
		slog.Error("order request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err.Error(),
		)
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}
