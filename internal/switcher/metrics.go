package switcher

import "github.com/prometheus/client_golang/prometheus"

var jobsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "bridged",
		Subsystem: "switch",
		Name:      "jobs_total",
		Help:      "Model switch jobs by terminal phase",
	},
	[]string{"phase"},
)

func init() {
	prometheus.MustRegister(jobsTotal)
}
