// Package telemetry holds the metrics and tracing hooks shared by the
// variation components.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Cache names used as the "cache" label.
const (
	CacheChildren = "children"
	CachePrices   = "prices"
)

// Outcome classifies a cache lookup.
type Outcome string

const (
	OutcomeMemoHit     Outcome = "memo_hit"
	OutcomeHit         Outcome = "hit"
	OutcomeMiss        Outcome = "miss"
	OutcomeStale       Outcome = "stale"
	OutcomeMalformed   Outcome = "malformed"
	OutcomeUnavailable Outcome = "unavailable"
	OutcomeForced      Outcome = "forced"
)

// Recorder receives cache events.
type Recorder interface {
	Lookup(cache string, outcome Outcome)
	Recompute(cache string, took time.Duration)
	WriteError(cache string)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Lookup(string, Outcome)          {}
func (Nop) Recompute(string, time.Duration) {}
func (Nop) WriteError(string)               {}

// Collector is a Recorder backed by Prometheus metrics.
type Collector struct {
	Lookups     *prometheus.CounterVec
	Recomputes  *prometheus.HistogramVec
	WriteErrors *prometheus.CounterVec
}

// NewCollector creates the cache metrics under namespace and registers them
// with reg. A nil reg leaves them unregistered.
func NewCollector(namespace string, reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		Lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Cache lookups by cache and outcome",
			},
			[]string{"cache", "outcome"},
		),
		Recomputes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cache_recompute_duration_seconds",
				Help:      "Time spent recomputing a cached aggregate",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"cache"},
		),
		WriteErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_write_errors_total",
				Help:      "Failed writes to the persistent cache",
			},
			[]string{"cache"},
		),
	}

	if reg != nil {
		for _, col := range []prometheus.Collector{c.Lookups, c.Recomputes, c.WriteErrors} {
			if err := reg.Register(col); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

// Lookup counts a lookup.
func (c *Collector) Lookup(cache string, outcome Outcome) {
	c.Lookups.WithLabelValues(cache, string(outcome)).Inc()
}

// Recompute observes a recomputation.
func (c *Collector) Recompute(cache string, took time.Duration) {
	c.Recomputes.WithLabelValues(cache).Observe(took.Seconds())
}

// WriteError counts a failed persistent write.
func (c *Collector) WriteError(cache string) {
	c.WriteErrors.WithLabelValues(cache).Inc()
}
