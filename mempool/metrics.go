package mempool

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "mempool"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of uncommitted transactions in the pool.
	Size metrics.Gauge

	// Histogram of transaction sizes in bytes.
	TxSizeBytes metrics.Histogram

	// Number of admitted transactions.
	AcceptedTxs metrics.Counter

	// Number of rejected transactions, labeled by reason.
	RejectedTxs metrics.Counter

	// Number of rejections answered from the recent-reject cache.
	RecentRejectHits metrics.Counter

	// Histogram of cycles consumed by the scripts of admitted transactions.
	ScriptCycles metrics.Histogram
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
		Size: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "size",
			Help:      "Number of uncommitted transactions in the pool.",
		}, labels).With(labelsAndValues...),
		TxSizeBytes: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "tx_size_bytes",
			Help:      "Histogram of transaction sizes in bytes.",
			Buckets:   stdprometheus.ExponentialBuckets(1, 3, 7),
		}, labels).With(labelsAndValues...),
		AcceptedTxs: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "accepted_txs",
			Help:      "Number of admitted transactions.",
		}, labels).With(labelsAndValues...),
		RejectedTxs: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "rejected_txs",
			Help:      "Number of rejected transactions, labeled by reason.",
		}, append(labels, "reason")).With(labelsAndValues...),
		RecentRejectHits: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "recent_reject_hits",
			Help:      "Number of rejections answered from the recent-reject cache.",
		}, labels).With(labelsAndValues...),
		ScriptCycles: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "script_cycles",
			Help:      "Histogram of cycles consumed by the scripts of admitted transactions.",
			Buckets:   stdprometheus.ExponentialBuckets(1000, 10, 6),
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Size:             discard.NewGauge(),
		TxSizeBytes:      discard.NewHistogram(),
		AcceptedTxs:      discard.NewCounter(),
		RejectedTxs:      discard.NewCounter(),
		RecentRejectHits: discard.NewCounter(),
		ScriptCycles:     discard.NewHistogram(),
	}
}
