package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(notificationsSentTotal) }

var notificationsSentTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "User notifications handed to the chat transport, by result.",
	},
	[]string{"result"},
)

func IncNotification(err error) {
	notificationsSentTotal.WithLabelValues(result(err)).Inc()
}
