package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(reconcilerPassesTotal, reconcilerPassDuration, reconcilerItemsTotal)
}

var (
	reconcilerPassesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_passes_total",
			Help: "Reconciler passes by result (ok, error, skipped).",
		},
		[]string{"result"},
	)

	reconcilerPassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reconciler_pass_duration_seconds",
			Help:    "Wall time of completed reconciler passes.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	reconcilerItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_items_total",
			Help: "Items handled by reconciler stages.",
		},
		[]string{"stage"}, // 'notified', 'notify_failed', 'access', 'purged', 'errors'
	)
)

func ObservePass(took time.Duration, err error) {
	reconcilerPassesTotal.WithLabelValues(result(err)).Inc()
	reconcilerPassDuration.Observe(took.Seconds())
}

func IncPassSkipped() {
	reconcilerPassesTotal.WithLabelValues("skipped").Inc()
}

func AddReconcilerItems(stage string, n int) {
	if n > 0 {
		reconcilerItemsTotal.WithLabelValues(norm(stage)).Add(float64(n))
	}
}
