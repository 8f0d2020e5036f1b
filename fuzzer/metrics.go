package fuzzer

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	"github.com/cellfuzz/txpoolfuzz/config"
	"github.com/cellfuzz/txpoolfuzz/mempool"
	"github.com/cellfuzz/txpoolfuzz/proxy"
	"github.com/cellfuzz/txpoolfuzz/store"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "fuzzer"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of completed iterations.
	Iterations metrics.Counter

	// Height of the mock chain.
	Height metrics.Gauge

	// Number of live cells in the harness' state.
	LiveCells metrics.Gauge

	// Number of generated candidates, labeled by strategy and expectation.
	Candidates metrics.Counter

	// Number of candidate slots that failed to generate.
	GenerationErrors metrics.Counter

	// Number of invariant violations, labeled by kind and severity.
	Violations metrics.Counter

	// Time spent on one iteration.
	IterationDurationSeconds metrics.Histogram

	// Number of retried outcome appends.
	StoreRetries metrics.Counter
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
		Iterations: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "iterations",
			Help:      "Number of completed iterations.",
		}, labels).With(labelsAndValues...),
		Height: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "height",
			Help:      "Height of the mock chain.",
		}, labels).With(labelsAndValues...),
		LiveCells: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "live_cells",
			Help:      "Number of live cells in the harness' state.",
		}, labels).With(labelsAndValues...),
		Candidates: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "candidates",
			Help:      "Number of generated candidates, labeled by strategy and expectation.",
		}, append(labels, "strategy", "expect")).With(labelsAndValues...),
		GenerationErrors: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "generation_errors",
			Help:      "Number of candidate slots that failed to generate.",
		}, labels).With(labelsAndValues...),
		Violations: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "violations",
			Help:      "Number of invariant violations, labeled by kind and severity.",
		}, append(labels, "kind", "severity")).With(labelsAndValues...),
		IterationDurationSeconds: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "iteration_duration_seconds",
			Help:      "Time spent on one iteration.",
			Buckets:   stdprometheus.ExponentialBuckets(0.001, 4, 8),
		}, labels).With(labelsAndValues...),
		StoreRetries: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "store_retries",
			Help:      "Number of retried outcome appends.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Iterations:               discard.NewCounter(),
		Height:                   discard.NewGauge(),
		LiveCells:                discard.NewGauge(),
		Candidates:               discard.NewCounter(),
		GenerationErrors:         discard.NewCounter(),
		Violations:               discard.NewCounter(),
		IterationDurationSeconds: discard.NewHistogram(),
		StoreRetries:             discard.NewCounter(),
	}
}

// MetricsProvider returns the metrics of every component of a run.
type MetricsProvider func() (*Metrics, *mempool.Metrics, *proxy.Metrics, *store.Metrics)

// DefaultMetricsProvider returns Metrics build using Prometheus client
// library if Prometheus is enabled. Otherwise, it returns no-op Metrics.
func DefaultMetricsProvider(cfg *config.InstrumentationConfig) MetricsProvider {
	return func() (*Metrics, *mempool.Metrics, *proxy.Metrics, *store.Metrics) {
		if cfg.Prometheus {
			return PrometheusMetrics(cfg.Namespace),
				mempool.PrometheusMetrics(cfg.Namespace),
				proxy.PrometheusMetrics(cfg.Namespace),
				store.PrometheusMetrics(cfg.Namespace)
		}
		return NopMetrics(), mempool.NopMetrics(), proxy.NopMetrics(), store.NopMetrics()
	}
}
