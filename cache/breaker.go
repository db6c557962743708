package cache

import (
	"context"
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerConfig controls the circuit breaker placed in front of the persistent tier.
type BreakerConfig struct {
	Enabled          bool          `json:"enabled" yaml:"enabled"`
	MaxRequests      uint32        `json:"max_requests" yaml:"max_requests"`
	Interval         time.Duration `json:"interval" yaml:"interval"`
	Timeout          time.Duration `json:"timeout" yaml:"timeout"`
	FailureThreshold float64       `json:"failure_threshold" yaml:"failure_threshold"`
	MinRequests      uint32        `json:"min_requests" yaml:"min_requests"`
}

// DefaultBreakerConfig returns the breaker defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Enabled:          true,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// Validate checks the breaker settings when the breaker is enabled.
func (b BreakerConfig) Validate() error {
	if !b.Enabled {
		return nil
	}
	return validation.ValidateStruct(&b,
		validation.Field(&b.MaxRequests, validation.Required),
		validation.Field(&b.Timeout, validation.Required, validation.Min(time.Duration(1))),
		validation.Field(&b.FailureThreshold, validation.Required, validation.Min(0.0), validation.Max(1.0)),
	)
}

// BreakerStore wraps a Store with a circuit breaker. Misses count as
// successful calls; an open breaker short-circuits to an unavailable error.
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerStore wraps next with a breaker named name.
func NewBreakerStore(name string, next Store, cfg BreakerConfig, logger *zap.Logger) *BreakerStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("cache breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrMiss)
		},
	})
	return &BreakerStore{next: next, cb: cb}
}

// State reports the breaker state.
func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerStore) execute(key string, fn func() (any, error)) (any, error) {
	res, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, NewUnavailableError(key, "persistent cache breaker rejected call", err)
	}
	return res, err
}

// Get reads key through the breaker.
func (b *BreakerStore) Get(ctx context.Context, key string) ([]byte, error) {
	res, err := b.execute(key, func() (any, error) {
		return b.next.Get(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	data, _ := res.([]byte)
	return data, nil
}

// Set writes key through the breaker.
func (b *BreakerStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := b.execute(key, func() (any, error) {
		return nil, b.next.Set(ctx, key, value, ttl)
	})
	return err
}

// Delete removes key through the breaker.
func (b *BreakerStore) Delete(ctx context.Context, key string) error {
	_, err := b.execute(key, func() (any, error) {
		return nil, b.next.Delete(ctx, key)
	})
	return err
}
