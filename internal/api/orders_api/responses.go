package orders_api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/BearBump/ParcelBox/internal/models"
)

const isoLayout = "2006-01-02T15:04:05.000000Z07:00"

func isoTime(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

type errorResponse struct {
	Error string `json:"error"`
}

type createOrderResponse struct {
	CustomerID     string `json:"customer_id"`
	CustomerName   string `json:"customer_name"`
	CustomerSlug   string `json:"customer_slug"`
	TrackingNumber string `json:"tracking_number"`
	ParcelID       string `json:"parcel_id"`
	OrderID        string `json:"order_id"`
	OrderStatus    string `json:"order_status"`
	CreatedAt      string `json:"created_at"`
}

func toCreateOrderResponse(r *models.OrderResult) createOrderResponse {
	return createOrderResponse{
		CustomerID:     r.Customer.ID.String(),
		CustomerName:   r.Customer.Name,
		CustomerSlug:   r.Customer.Slug,
		TrackingNumber: r.TrackingNumber.Value,
		ParcelID:       r.Parcel.ID.String(),
		OrderID:        r.Order.ID.String(),
		OrderStatus:    r.Order.Status,
		CreatedAt:      isoTime(r.Order.CreatedAt),
	}
}

type trackingNumberResponse struct {
	TrackingNumber string `json:"tracking_number"`
	CreatedAt      string `json:"created_at"`
	Customer       string `json:"customer"`
}

func toTrackingNumberResponse(r *models.TrackingNumberResult) trackingNumberResponse {
	return trackingNumberResponse{
		TrackingNumber: r.TrackingNumber.Value,
		CreatedAt:      isoTime(r.TrackingNumber.CreatedAt),
		Customer:       r.Customer.ID.String(),
	}
}

type customerView struct {
	CustomerID   string `json:"customer_id"`
	CustomerName string `json:"customer_name"`
	CustomerSlug string `json:"customer_slug"`
}

type parcelView struct {
	ParcelID           string `json:"parcel_id"`
	Weight             string `json:"weight"`
	OriginCountry      string `json:"origin_country"`
	DestinationCountry string `json:"destination_country"`
}

type orderView struct {
	OrderID     string `json:"order_id"`
	OrderStatus string `json:"order_status"`
	CreatedAt   string `json:"created_at"`
}

type combinedResponse struct {
	TrackingNumber string       `json:"tracking_number"`
	Customer       customerView `json:"customer"`
	Parcel         parcelView   `json:"parcel"`
	Order          orderView    `json:"order"`
}

func toCombinedResponse(r *models.OrderResult) combinedResponse {
	return combinedResponse{
		TrackingNumber: r.TrackingNumber.Value,
		Customer: customerView{
			CustomerID:   r.Customer.ID.String(),
			CustomerName: r.Customer.Name,
			CustomerSlug: r.Customer.Slug,
		},
		Parcel: parcelView{
			ParcelID:           r.Parcel.ID.String(),
			Weight:             r.Parcel.Weight.StringFixed(models.WeightDecimalPlaces),
			OriginCountry:      r.OriginCountry.Code,
			DestinationCountry: r.DestinationCountry.Code,
		},
		Order: orderView{
			OrderID:     r.Order.ID.String(),
			OrderStatus: r.Order.Status,
			CreatedAt:   isoTime(r.Order.CreatedAt),
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response", "error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
