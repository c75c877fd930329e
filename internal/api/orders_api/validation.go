package orders_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var slugPattern = regexp.MustCompile(`^[-a-zA-Z0-9_]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	mustRegisterValidation(v, "slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	})
	mustRegisterValidation(v, "decimal", func(fl validator.FieldLevel) bool {
		_, err := decimal.NewFromString(fl.Field().String())
		return err == nil
	})
	mustRegisterValidation(v, "positive", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && d.IsPositive()
	})
	mustRegisterValidation(v, "decimal_places", func(fl validator.FieldLevel) bool {
		return decimalShapeWithin(fl, func(_, places, _ int, limit int) bool { return places <= limit })
	})
	mustRegisterValidation(v, "max_digits", func(fl validator.FieldLevel) bool {
		return decimalShapeWithin(fl, func(total, _, _ int, limit int) bool { return total <= limit })
	})
	mustRegisterValidation(v, "whole_digits", func(fl validator.FieldLevel) bool {
		return decimalShapeWithin(fl, func(_, _, whole int, limit int) bool { return whole <= limit })
	})
	return v
}

func mustRegisterValidation(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %q validation: %v", tag, err))
	}
}

func decimalShapeWithin(fl validator.FieldLevel, ok func(total, places, whole, limit int) bool) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	d, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return false
	}
	total, places, whole := decimalShape(d)
	return ok(total, places, whole, limit)
}

// decimalShape counts digits the way a NUMERIC(p,s) column does: trailing
// fractional zeros are significant, a leading "0." is not.
func decimalShape(d decimal.Decimal) (total, places, whole int) {
	digits := len(strings.TrimPrefix(d.Coefficient().String(), "-"))
	exp := int(d.Exponent())
	switch {
	case exp >= 0:
		total = digits + exp
		places = 0
	case digits > -exp:
		total = digits
		places = -exp
	default:
		total = -exp
		places = total
	}
	whole = total - places
	return total, places, whole
}

// weightField accepts both JSON numbers and numeric strings.
type weightField string

func (w *weightField) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*w = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*w = weightField(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*w = weightField(n.String())
		return nil
	}
	// Not a number: keep the raw text so that validation reports it.
	*w = weightField(b)
	return nil
}

type createOrderRequest struct {
	CustomerID           *string     `json:"customer_id" validate:"omitempty,uuid"`
	CustomerName         string      `json:"customer_name" validate:"required_without=CustomerID,max=255"`
	CustomerSlug         string      `json:"customer_slug" validate:"omitempty,max=50,slug"`
	Weight               weightField `json:"weight" validate:"required,decimal,positive,decimal_places=3,max_digits=6,whole_digits=3"`
	OriginCountryID      string      `json:"origin_country_id" validate:"required,len=2"`
	DestinationCountryID string      `json:"destination_country_id" validate:"required,len=2"`
	OrderStatus          string      `json:"order_status" validate:"required,max=50"`
}

func (r *createOrderRequest) normalize() {
	if r.CustomerID != nil {
		id := strings.TrimSpace(*r.CustomerID)
		if id == "" {
			r.CustomerID = nil
		} else {
			r.CustomerID = &id
		}
	}
	r.CustomerName = strings.TrimSpace(r.CustomerName)
	r.CustomerSlug = strings.TrimSpace(r.CustomerSlug)
	r.OriginCountryID = strings.TrimSpace(r.OriginCountryID)
	r.DestinationCountryID = strings.TrimSpace(r.DestinationCountryID)
	r.OrderStatus = strings.TrimSpace(r.OrderStatus)
}

// fieldErrors maps a json field name to its messages.
type fieldErrors map[string][]string

func (r *createOrderRequest) validate() fieldErrors {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fieldErrors{"non_field_errors": {"Invalid request."}}
	}
	out := fieldErrors{}
	for _, e := range verrs {
		out[e.Field()] = append(out[e.Field()], validationMessage(e))
	}
	return out
}

func (r *createOrderRequest) toInput() (models.OrderCreateInput, error) {
	in := models.OrderCreateInput{
		Customer: models.CustomerRef{
			Name: r.CustomerName,
			Slug: r.CustomerSlug,
		},
		OriginCountryCode:      r.OriginCountryID,
		DestinationCountryCode: r.DestinationCountryID,
		Status:                 r.OrderStatus,
	}
	if r.CustomerID != nil {
		id, err := uuid.Parse(*r.CustomerID)
		if err != nil {
			return in, err
		}
		in.Customer.ID = &id
	}
	w, err := decimal.NewFromString(string(r.Weight))
	if err != nil {
		return in, err
	}
	in.Weight = w
	return in, nil
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_without":
		return "This field is required."
	case "uuid":
		return "Must be a valid UUID."
	case "slug":
		return `Enter a valid "slug" consisting of letters, numbers, underscores or hyphens.`
	case "len":
		return "Ensure this field has exactly " + e.Param() + " characters."
	case "max":
		return "Ensure this field has no more than " + e.Param() + " characters."
	case "decimal":
		return "A valid number is required."
	case "positive":
		return "Ensure this value is greater than 0."
	case "decimal_places":
		return "Ensure that there are no more than " + e.Param() + " decimal places."
	case "max_digits":
		return "Ensure that there are no more than " + e.Param() + " digits in total."
	case "whole_digits":
		return "Ensure that there are no more than " + e.Param() + " digits before the decimal point."
	default:
		return "Invalid value."
	}
}

// queryError is a validation failure of the query-string endpoints.
type queryError struct {
	status  int
	message string
}

func (e *queryError) Error() string {
	return e.message
}

const (
	msgMissingParams     = "All parameters except customer information are required."
	msgInvalidCountry    = "Invalid country code format."
	msgInvalidWeight     = "Invalid weight format. Must be a float with 3 decimal places."
	msgInvalidCreatedAt  = "Invalid created_at timestamp."
	msgInvalidCustomerID = "Invalid customer UUID."
	msgNameRequired      = "Customer name is required when customer_id is not provided."
	msgInvalidSlug       = "Invalid customer slug format."

	msgInvalidOrderStatus = "Order status must be at most 50 characters."
)

var maxWeight = decimal.NewFromInt(1000)

type trackingQuery struct {
	OriginCode      string
	DestinationCode string
	Weight          decimal.Decimal
	CreatedAt       time.Time
	Customer        models.CustomerRef
	OrderStatus     string
}

// parseTrackingQuery checks the query string in a fixed order and reports the
// first failure.
func parseTrackingQuery(q url.Values) (trackingQuery, error) {
	var out trackingQuery

	origin := q.Get("origin_country_id")
	dest := q.Get("destination_country_id")
	rawWeight := q.Get("weight")
	rawCreatedAt := q.Get("created_at")
	if origin == "" || dest == "" || rawWeight == "" || rawCreatedAt == "" {
		return out, &queryError{status: http.StatusBadRequest, message: msgMissingParams}
	}

	if utf8.RuneCountInString(origin) != models.CountryCodeLength || utf8.RuneCountInString(dest) != models.CountryCodeLength {
		return out, &queryError{status: http.StatusBadRequest, message: msgInvalidCountry}
	}
	out.OriginCode, out.DestinationCode = origin, dest

	w, ok := parseQueryWeight(rawWeight)
	if !ok {
		return out, &queryError{status: http.StatusBadRequest, message: msgInvalidWeight}
	}
	out.Weight = w

	createdAt, ok := parseISODateTime(rawCreatedAt)
	if !ok {
		return out, &queryError{status: http.StatusBadRequest, message: msgInvalidCreatedAt}
	}
	out.CreatedAt = createdAt

	if rawID := q.Get("customer_id"); rawID != "" {
		id, err := uuid.Parse(strings.TrimSpace(rawID))
		if err != nil {
			return out, &queryError{status: http.StatusBadRequest, message: msgInvalidCustomerID}
		}
		out.Customer.ID = &id
	} else {
		name := strings.TrimSpace(q.Get("customer_name"))
		if name == "" {
			return out, &queryError{status: http.StatusBadRequest, message: msgNameRequired}
		}
		out.Customer.Name = name

		if slug := strings.TrimSpace(q.Get("customer_slug")); slug != "" {
			if len(slug) > models.MaxSlugLength || !slugPattern.MatchString(slug) {
				return out, &queryError{status: http.StatusBadRequest, message: msgInvalidSlug}
			}
			out.Customer.Slug = slug
			out.Customer.ExactSlug = true
		}
	}

	out.OrderStatus = strings.TrimSpace(q.Get("order_status"))
	return out, nil
}

// checkOrderStatus applies to the endpoint that records an order; the plain
// tracking-number endpoint ignores order_status.
func (q trackingQuery) checkOrderStatus() error {
	if utf8.RuneCountInString(q.OrderStatus) > models.MaxOrderStatusLength {
		return &queryError{status: http.StatusBadRequest, message: msgInvalidOrderStatus}
	}
	return nil
}

func parseQueryWeight(raw string) (decimal.Decimal, bool) {
	w, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, false
	}
	if !w.Equal(w.Round(models.WeightDecimalPlaces)) {
		return decimal.Decimal{}, false
	}
	if !w.IsPositive() || w.GreaterThanOrEqual(maxWeight) {
		return decimal.Decimal{}, false
	}
	return w, true
}

var (
	isoDateTimePattern = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})[T ](\d{1,2}):(\d{1,2})` +
		`(?::(\d{1,2})(?:[.,](\d{1,6})\d{0,6})?)?` +
		`\s*(Z|[+-]\d{2}(?::?\d{2})?)?$`)
	isoDatePattern = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
)

// parseISODateTime accepts ISO-8601 date-times with a T or space separator,
// one- or two-digit fields, optional seconds, fraction and zone (Z, +HH,
// +HHMM, +HH:MM), and bare dates as midnight. Values without a zone are UTC.
func parseISODateTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if m := isoDatePattern.FindStringSubmatch(s); m != nil {
		return buildTime(m[1], m[2], m[3], "0", "0", "", "", "")
	}
	m := isoDateTimePattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	return buildTime(m[1], m[2], m[3], m[4], m[5], m[6], m[7], m[8])
}

func buildTime(year, month, day, hour, minute, second, fraction, zone string) (time.Time, bool) {
	num := func(s string) int {
		n, _ := strconv.Atoi(s)
		return n
	}
	y, mo, d := num(year), num(month), num(day)
	h, mi, sec := num(hour), num(minute), num(second)
	if mo < 1 || mo > 12 || d < 1 || h > 23 || mi > 59 || sec > 59 {
		return time.Time{}, false
	}
	nsec := 0
	if fraction != "" {
		nsec = num((fraction + "000000")[:6]) * 1000
	}

	loc := time.UTC
	if zone != "" && zone != "Z" {
		digits := strings.ReplaceAll(zone[1:], ":", "")
		offH, offM := num(digits[:2]), 0
		if len(digits) > 2 {
			offM = num(digits[2:])
		}
		if offH > 23 || offM > 59 {
			return time.Time{}, false
		}
		offset := offH*3600 + offM*60
		if zone[0] == '-' {
			offset = -offset
		}
		loc = time.FixedZone("", offset)
	}

	t := time.Date(y, time.Month(mo), d, h, mi, sec, nsec, loc)
	// time.Date normalizes 2024-02-30 into March.
	if t.Day() != d || int(t.Month()) != mo {
		return time.Time{}, false
	}
	return t, true
}
