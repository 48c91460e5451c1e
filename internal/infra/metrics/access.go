package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(accessCallsTotal, accessCallLatencyMs) }

var (
	accessCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_calls_total",
			Help: "External access grant/revoke calls by system, operation and result.",
		},
		[]string{"system", "op", "result"},
	)

	accessCallLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "access_call_latency_ms",
			Help:    "External access call latency in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000},
		},
		[]string{"system", "op"},
	)
)

func ObserveAccessCall(system, op string, took time.Duration, err error) {
	accessCallsTotal.WithLabelValues(norm(system), norm(op), result(err)).Inc()
	accessCallLatencyMs.WithLabelValues(norm(system), norm(op)).Observe(float64(took.Milliseconds()))
}
