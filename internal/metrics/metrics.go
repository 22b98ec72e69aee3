// Package metrics exposes the engine's runtime gauges and counters over
// Prometheus's client_golang, the one ambient concern the teacher repo
// itself does not cover (it has no metrics endpoint) but that several other
// repos in the retrieval pack pull in as a dependency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "judge_queue_depth",
		Help: "Number of submissions waiting in the dispatcher's FIFO.",
	})

	SandboxSlotsInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "judge_sandbox_slots_in_use",
		Help: "Number of worker-pool slots currently judging a submission.",
	})

	VerdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "judge_verdicts_total",
		Help: "Total verdicts produced, labeled by verdict.",
	}, []string{"verdict"})

	ContestMutexHoldSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "judge_contest_mutex_hold_seconds",
		Help:    "Time the Contest State mutex is held per critical section.",
		Buckets: prometheus.DefBuckets,
	})

	StoreWriteDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "judge_store_write_duration_seconds",
		Help:    "Duration of Store write operations, labeled by operation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)

// Handler returns the HTTP handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
