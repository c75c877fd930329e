package main

import (
	"context"
	"time"

	"github.com/BearBump/ParcelBox/config"
	"github.com/BearBump/ParcelBox/internal/broker/kafka"
	"github.com/BearBump/ParcelBox/internal/services/relay"
	"github.com/BearBump/ParcelBox/internal/storage/pgorders"
)

type relayFactories struct {
	newStorage  func(cfg *config.Config) (repo relay.Repository, closeFn func(), err error)
	newProducer func(cfg *config.Config) (producer relay.Producer, closeFn func() error)
}

func defaultRelayFactories() relayFactories {
	return relayFactories{
		newStorage: func(cfg *config.Config) (relay.Repository, func(), error) {
			st, err := pgorders.New(cfg.Database.DSN())
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) (relay.Producer, func() error) {
			p := kafka.NewProducer([]string{cfg.Kafka.Addr()})
			return p, p.Close
		},
	}
}

type relaySettings struct {
	pollInterval time.Duration
	batchSize    int
	concurrency  int
	lease        time.Duration
	schedule     relay.ScheduleConfig
}

func settingsFromConfig(cfg *config.Config) relaySettings {
	pb := cfg.ParcelBox

	s := relaySettings{
		pollInterval: time.Duration(pb.RelayPollIntervalSeconds) * time.Second,
		batchSize:    pb.RelayBatchSize,
		concurrency:  pb.RelayConcurrency,
		lease:        time.Duration(pb.RelayLeaseSeconds) * time.Second,
		schedule: relay.ScheduleConfig{
			Backoff1:  time.Duration(pb.RelayBackoff1Seconds) * time.Second,
			Backoff2:  time.Duration(pb.RelayBackoff2Seconds) * time.Second,
			Backoff3:  time.Duration(pb.RelayBackoff3Seconds) * time.Second,
			Backoff4:  time.Duration(pb.RelayBackoff4Seconds) * time.Second,
			MaxJitter: time.Duration(pb.RelayMaxJitterMillis) * time.Millisecond,
		},
	}
	if s.pollInterval <= 0 {
		s.pollInterval = time.Second
	}
	if s.batchSize <= 0 {
		s.batchSize = 100
	}
	if s.concurrency <= 0 {
		s.concurrency = 10
	}
	if s.lease <= 0 {
		s.lease = 30 * time.Second
	}
	return s
}

type pendingCounter interface {
	CountPendingOutbox(ctx context.Context) (int64, error)
}

type relayRuntime struct {
	relay   *relay.Relay
	pending pendingCounter // nil when the storage cannot count its backlog
	cleanup func()
}

// newRelay wires storage and producer from f. cleanup releases both and must
// be called once the relay stops.
func newRelay(cfg *config.Config, f relayFactories) (*relayRuntime, error) {
	repo, closeRepo, err := f.newStorage(cfg)
	if err != nil {
		return nil, err
	}
	producer, closeProducer := f.newProducer(cfg)

	s := settingsFromConfig(cfg)
	r := relay.New(repo, producer).
		WithSettings(s.pollInterval, s.batchSize, s.concurrency, s.lease).
		WithSchedule(s.schedule)

	cleanup := func() {
		if closeProducer != nil {
			_ = closeProducer()
		}
		if closeRepo != nil {
			closeRepo()
		}
	}
	pending, _ := repo.(pendingCounter)
	return &relayRuntime{relay: r, pending: pending, cleanup: cleanup}, nil
}

func RunOrderRelay(ctx context.Context, cfg *config.Config, f relayFactories) error {
	rt, err := newRelay(cfg, f)
	if err != nil {
		return err
	}
	defer rt.cleanup()

	return rt.relay.Run(ctx)
}
