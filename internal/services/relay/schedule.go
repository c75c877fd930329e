package relay

import (
	"math/rand"
	"time"
)

type Rand interface {
	Intn(n int) int
}

type ScheduleConfig struct {
	Backoff1 time.Duration // default: 5 seconds
	Backoff2 time.Duration // default: 15 seconds
	Backoff3 time.Duration // default: 30 seconds
	Backoff4 time.Duration // default: 60 seconds

	// MaxJitter spreads retries of a burst of failures. Zero disables it.
	MaxJitter time.Duration
}

func DefaultScheduleConfig() ScheduleConfig {
	return ScheduleConfig{
		Backoff1: 5 * time.Second,
		Backoff2: 15 * time.Second,
		Backoff3: 30 * time.Second,
		Backoff4: 60 * time.Second,
	}
}

// Schedule decides when a failed outbox message is attempted again.
type Schedule struct {
	cfg ScheduleConfig
	r   Rand
}

func NewSchedule(cfg ScheduleConfig, r Rand) *Schedule {
	def := DefaultScheduleConfig()
	if cfg.Backoff1 <= 0 {
		cfg.Backoff1 = def.Backoff1
	}
	if cfg.Backoff2 <= 0 {
		cfg.Backoff2 = def.Backoff2
	}
	if cfg.Backoff3 <= 0 {
		cfg.Backoff3 = def.Backoff3
	}
	if cfg.Backoff4 <= 0 {
		cfg.Backoff4 = def.Backoff4
	}
	if cfg.MaxJitter < 0 {
		cfg.MaxJitter = 0
	}
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Schedule{cfg: cfg, r: r}
}

// BackoffDelay returns the delay before attempt number nextAttempt (1-based
// count of failures so far, including the one just recorded).
func (s *Schedule) BackoffDelay(nextAttempt int32) time.Duration {
	var d time.Duration
	switch {
	case nextAttempt <= 1:
		d = s.cfg.Backoff1
	case nextAttempt == 2:
		d = s.cfg.Backoff2
	case nextAttempt == 3:
		d = s.cfg.Backoff3
	default:
		d = s.cfg.Backoff4
	}
	if s.cfg.MaxJitter > 0 {
		ms := int(s.cfg.MaxJitter / time.Millisecond)
		if ms > 0 {
			d += time.Duration(s.r.Intn(ms+1)) * time.Millisecond
		}
	}
	return d
}
