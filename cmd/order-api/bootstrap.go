package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/ParcelBox/config"
	ordersapi "github.com/BearBump/ParcelBox/internal/api/orders_api"
	"github.com/BearBump/ParcelBox/internal/cache/rediscache"
	"github.com/BearBump/ParcelBox/internal/identifiers"
	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/BearBump/ParcelBox/internal/services/orders"
	"github.com/BearBump/ParcelBox/internal/storage/pgorders"
	"github.com/redis/go-redis/v9"
)

type orderAPIApp struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   orderAPIOpts
	api    *ordersapi.OrdersAPI
	checks map[string]readinessCheck

	closeDB    func()
	closeRedis func() error
}

func mustBootstrapOrderAPI() *orderAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.ParcelBox.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	countryTTL := time.Duration(cfg.ParcelBox.CountryCacheTTLSeconds) * time.Second
	if countryTTL <= 0 {
		countryTTL = time.Hour
	}
	rlPerMin := int64(cfg.ParcelBox.RateLimitPerMinute)
	if rlPerMin <= 0 {
		rlPerMin = 120
	}
	idemTTL := time.Duration(cfg.ParcelBox.IdempotencyTTLSeconds) * time.Second

	st := mustOpenPostgresWithRetry(cfg.Database.DSN(), 60*time.Second)
	if err := st.UpsertCountries(context.Background(), seedCountries(cfg.Countries)); err != nil {
		st.Close()
		panic(fmt.Sprintf("seed countries: %v", err))
	}
	if countries, err := st.ListCountries(context.Background()); err == nil {
		slog.Info("countries loaded", "count", len(countries))
	}

	rdb := rediscache.NewClient(cfg.Redis.Addr())
	svc := newOrdersService(cfg, st, rdb, countryTTL)

	guards := ordersapi.NewGuards(
		rediscache.NewRateLimiterWithClient(rdb),
		rlPerMin,
		rediscache.NewIdempotencyStore(rdb, idemTTL, 0),
	)
	api := ordersapi.New(svc).WithGuards(guards)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &orderAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: orderAPIOpts{
			httpAddr:    httpAddr,
			swaggerPath: swaggerPath,
		},
		api: api,
		checks: map[string]readinessCheck{
			"postgres": st.Ping,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
		closeDB:    st.Close,
		closeRedis: rdb.Close,
	}
}

func newOrdersService(cfg *config.Config, repo orders.Repository, rdb *redis.Client, countryTTL time.Duration) *orders.Service {
	ids := identifiers.New(nil).
		WithLimits(cfg.ParcelBox.TrackingNumberAttempts, cfg.ParcelBox.SlugSuffixAttempts)

	retry := orders.DefaultRetryPolicy()
	if cfg.ParcelBox.ConflictRetryAttempts > 0 {
		retry.MaxAttempts = cfg.ParcelBox.ConflictRetryAttempts
	}

	return orders.New(repo, ids, rediscache.NewWithClient(rdb), countryTTL).
		WithRetryPolicy(retry).
		WithTopics(orders.Topics{
			OrderCreated:         cfg.Kafka.OrderCreatedTopicName,
			TrackingNumberIssued: cfg.Kafka.TrackingNumberIssuedTopicName,
		})
}

func seedCountries(in []config.CountryConfig) []models.Country {
	out := make([]models.Country, 0, len(in))
	for _, c := range in {
		out = append(out, models.Country{Code: c.Code, Name: c.Name})
	}
	return out
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgorders.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgorders.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *orderAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.closeRedis != nil {
		_ = a.closeRedis()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *orderAPIApp) Run() error {
	return runOrderAPI(a.ctx, a.opts, a.api, a.checks)
}
