package planner

import "github.com/prometheus/client_golang/prometheus"

var divergenceCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "focusquest",
	Subsystem: "planner",
	Name:      "divergence_total",
	Help:      "Local task changes whose remote write failed, labeled by operation.",
}, []string{"op"})

func init() {
	prometheus.MustRegister(divergenceCounter)
}

func recordDivergence(op string) {
	divergenceCounter.WithLabelValues(op).Inc()
}
