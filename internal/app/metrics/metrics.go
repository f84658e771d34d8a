// Package metrics exposes Prometheus collectors for the treasury engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the treasury-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	transfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "treasury",
			Subsystem: "ledger",
			Name:      "transfers_total",
			Help:      "Total number of completed ledger transfers.",
		},
		[]string{"kind"},
	)

	transferVolume = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "treasury",
			Subsystem: "ledger",
			Name:      "transfer_units_total",
			Help:      "Total base units moved by completed transfers.",
		},
		[]string{"kind"},
	)

	rewardClaims = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "treasury",
			Subsystem: "rewards",
			Name:      "claims_total",
			Help:      "Total number of pool reward claims.",
		},
		[]string{"final"},
	)

	votes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "treasury",
			Subsystem: "dao",
			Name:      "votes_total",
			Help:      "Total number of recorded votes.",
		},
	)

	operationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "treasury",
			Subsystem: "engine",
			Name:      "operation_failures_total",
			Help:      "Total number of rejected entry operations.",
		},
		[]string{"service", "operation"},
	)

	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "treasury",
			Subsystem: "engine",
			Name:      "operation_duration_seconds",
			Help:      "Duration of entry operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~2s
		},
		[]string{"service", "operation"},
	)
)

func init() {
	Registry.MustRegister(
		transfers,
		transferVolume,
		rewardClaims,
		votes,
		operationFailures,
		operationDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordTransfer records one completed ledger movement.
func RecordTransfer(kind string, amount int64) {
	transfers.WithLabelValues(kind).Inc()
	if amount > 0 {
		transferVolume.WithLabelValues(kind).Add(float64(amount))
	}
}

// RecordClaim records a pool reward claim.
func RecordClaim(final bool) {
	label := "false"
	if final {
		label = "true"
	}
	rewardClaims.WithLabelValues(label).Inc()
}

// RecordVote records a cast vote.
func RecordVote() {
	votes.Inc()
}

// RecordFailure records a rejected entry operation.
func RecordFailure(service, operation string) {
	operationFailures.WithLabelValues(service, operation).Inc()
}

// ObserveOperation records the duration of an entry operation.
func ObserveOperation(service, operation string, d time.Duration) {
	if d <= 0 {
		d = time.Millisecond
	}
	operationDuration.WithLabelValues(service, operation).Observe(d.Seconds())
}
