package conn

import "github.com/prometheus/client_golang/prometheus"

var (
	stateGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bridged",
			Subsystem: "conn",
			Name:      "state",
			Help:      "Connection state: 0=disconnected 1=connecting 2=connected",
		},
	)

	reconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bridged",
			Subsystem: "conn",
			Name:      "reconnects_total",
			Help:      "Total reconnect attempts",
		},
	)

	chatTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bridged",
			Subsystem: "conn",
			Name:      "chat_timeouts_total",
			Help:      "Chat requests that expired without a reply",
		},
	)
)

func init() {
	prometheus.MustRegister(stateGauge, reconnectsTotal, chatTimeoutsTotal)
}
