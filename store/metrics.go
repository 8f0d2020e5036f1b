package store

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "store"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// The duration of accesses to the store labeled by which method was
	// called on the store.
	StoreAccessDurationSeconds metrics.Histogram

	// Number of outcome records appended.
	OutcomeRecords metrics.Counter

	// Size in bytes of the last persisted chain state record.
	ChainStateBytes metrics.Gauge
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
// Optionally, labels can be provided along with their values ("foo",
// "fooValue").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		StoreAccessDurationSeconds: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "store_access_duration_seconds",
			Help:      "The duration of accesses to the store labeled by which method was called on the store.",
			Buckets:   stdprometheus.ExponentialBuckets(0.0002, 10, 5),
		}, append(labels, "method")).With(labelsAndValues...),
		OutcomeRecords: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "outcome_records",
			Help:      "Number of outcome records appended.",
		}, labels).With(labelsAndValues...),
		ChainStateBytes: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "chain_state_bytes",
			Help:      "Size in bytes of the last persisted chain state record.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		StoreAccessDurationSeconds: discard.NewHistogram(),
		OutcomeRecords:             discard.NewCounter(),
		ChainStateBytes:            discard.NewGauge(),
	}
}
