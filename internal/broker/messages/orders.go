package messages

import "time"

const (
	TopicOrderCreated         = "order.created"
	TopicTrackingNumberIssued = "tracking_number.issued"
)

type OrderCreated struct {
	OrderID            string    `json:"order_id"`
	OrderStatus        string    `json:"order_status"`
	CustomerID         string    `json:"customer_id"`
	CustomerSlug       string    `json:"customer_slug"`
	TrackingNumber     string    `json:"tracking_number"`
	ParcelID           string    `json:"parcel_id"`
	Weight             string    `json:"weight"`
	OriginCountry      string    `json:"origin_country"`
	DestinationCountry string    `json:"destination_country"`
	CreatedAt          time.Time `json:"created_at"`
}

type TrackingNumberIssued struct {
	TrackingNumber string    `json:"tracking_number"`
	CustomerID     string    `json:"customer_id"`
	CreatedAt      time.Time `json:"created_at"`
}
