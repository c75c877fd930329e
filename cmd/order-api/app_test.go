package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BearBump/ParcelBox/config"
	ordersapi "github.com/BearBump/ParcelBox/internal/api/orders_api"
	"github.com/BearBump/ParcelBox/internal/cache/rediscache"
	"github.com/BearBump/ParcelBox/internal/identifiers"
	"github.com/BearBump/ParcelBox/internal/metrics"
	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/BearBump/ParcelBox/internal/services/orders"
	"github.com/BearBump/ParcelBox/internal/storage/memorders"
	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestAPI(t *testing.T) *ordersapi.OrdersAPI {
	t.Helper()
	store := memorders.New()
	require.NoError(t, store.UpsertCountries(context.Background(), []models.Country{
		{Code: "US", Name: "United States"},
		{Code: "DE", Name: "Germany"},
	}))
	return ordersapi.New(orders.New(store, identifiers.New(nil), nil, 0))
}

func writeSwagger(t *testing.T) string {
	t.Helper()
	sw := filepath.Join(t.TempDir(), "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))
	return sw
}

func TestRunOrderAPI_ServesSwaggerAndOrders(t *testing.T) {
	sw := writeSwagger(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	opts := orderAPIOpts{
		httpAddr:    "127.0.0.1:0",
		swaggerPath: sw,
		onListen:    func(httpAddr string) { addrCh <- httpAddr },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- runOrderAPI(ctx, opts, newTestAPI(t), nil)
	}()

	httpAddr := <-addrCh

	resp, err := http.Get("http://" + httpAddr + "/swagger.json")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "\"swagger\"")

	q := url.Values{}
	q.Set("origin_country_id", "US")
	q.Set("destination_country_id", "DE")
	q.Set("weight", "1.250")
	q.Set("created_at", "2024-05-01T10:00:00Z")
	q.Set("customer_name", "Acme Corp")
	resp, err = http.Get("http://" + httpAddr + "/next-tracking-number/?" + q.Encode())
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	_ = resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Len(t, out["tracking_number"], models.TrackingNumberLength)

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
}

func TestRunOrderAPI_SwaggerRequired(t *testing.T) {
	err := runOrderAPI(context.Background(), orderAPIOpts{httpAddr: "127.0.0.1:0"}, newTestAPI(t), nil)
	require.Error(t, err)

	err = runOrderAPI(context.Background(), orderAPIOpts{
		httpAddr:    "127.0.0.1:0",
		swaggerPath: filepath.Join(t.TempDir(), "missing.json"),
	}, newTestAPI(t), nil)
	require.Error(t, err)
}

func TestRouter_HealthReadyMetrics(t *testing.T) {
	healthy := true
	checks := map[string]readinessCheck{
		"postgres": func(context.Context) error {
			if healthy {
				return nil
			}
			return errors.New("connection refused")
		},
	}
	h := newRouter(newTestAPI(t), writeSwagger(t), checks, metrics.NewServerMetrics("order_api"))

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	require.Equal(t, http.StatusOK, get("/healthz").Code)

	rec := get("/readyz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ready"}`, rec.Body.String())

	healthy = false
	rec = get("/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "connection refused")

	rec = get("/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "parcelbox_order_api_http_requests_total"))
}

func TestRouter_RequestIDHeaderPassedThrough(t *testing.T) {
	h := newRouter(newTestAPI(t), writeSwagger(t), nil, metrics.NewServerMetrics("order_api"))

	body := `{"customer_name":"Acme","weight":"2.000","origin_country_id":"US","destination_country_id":"DE","order_status":"Pending"}`
	req := httptest.NewRequest(http.MethodPost, "/create-order/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestRouter_RateLimitIgnoresForwardedHeaders(t *testing.T) {
	mr := miniredis.RunT(t)
	client := rediscache.NewClient(mr.Addr())
	t.Cleanup(func() { _ = client.Close() })

	api := newTestAPI(t).WithGuards(ordersapi.NewGuards(rediscache.NewRateLimiterWithClient(client), 2, nil))
	h := newRouter(api, writeSwagger(t), nil, metrics.NewServerMetrics("order_api"))

	q := url.Values{}
	q.Set("origin_country_id", "US")
	q.Set("destination_country_id", "DE")
	q.Set("weight", "1.250")
	q.Set("created_at", "2024-05-01T10:00:00Z")
	q.Set("customer_name", "Acme Corp")

	codes := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/next-tracking-number/?"+q.Encode(), nil)
		req.RemoteAddr = "203.0.113.7:1234"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i+1))
		req.Header.Set("X-Real-IP", fmt.Sprintf("192.0.2.%d", i+1))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	require.Equal(t, []int{
		http.StatusCreated, http.StatusCreated,
		http.StatusTooManyRequests, http.StatusTooManyRequests, http.StatusTooManyRequests,
	}, codes)
}

func TestNewOrdersService_UsesConfiguredTopics(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := memorders.New()
	require.NoError(t, store.UpsertCountries(context.Background(), seedCountries([]config.CountryConfig{
		{Code: "us", Name: "United States"},
		{Code: "DE", Name: "Germany"},
	})))

	cfg := &config.Config{
		Kafka: config.KafkaConfig{
			OrderCreatedTopicName:         "orders.v1",
			TrackingNumberIssuedTopicName: "tn.v1",
		},
		ParcelBox: config.ParcelBoxConfig{ConflictRetryAttempts: 2},
	}
	svc := newOrdersService(cfg, store, rdb, 0)

	_, err := svc.IssueTrackingNumber(context.Background(), models.CustomerRef{Name: "Acme"})
	require.NoError(t, err)

	out := store.Outbox()
	require.Len(t, out, 1)
	require.Equal(t, "tn.v1", out[0].Topic)
}

func TestSeedCountries(t *testing.T) {
	got := seedCountries([]config.CountryConfig{{Code: "US", Name: "United States"}})
	require.Equal(t, []models.Country{{Code: "US", Name: "United States"}}, got)
}
