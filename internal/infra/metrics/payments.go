package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(paymentEventsTotal) }

var paymentEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "payment_events_total",
		Help: "Inbound payment provider events by event type and outcome.",
	},
	[]string{"event", "outcome"}, // outcome: processed, duplicate, ignored, error
)

func IncPaymentEvent(event, outcome string) {
	paymentEventsTotal.WithLabelValues(norm(event), norm(outcome)).Inc()
}
