package cache

import "github.com/prometheus/client_golang/prometheus"

var lookupCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "focusquest",
	Subsystem: "cache",
	Name:      "leaderboard_lookups_total",
	Help:      "Leaderboard cache lookups by result (hit, miss, error).",
}, []string{"result"})

func init() {
	prometheus.MustRegister(lookupCounter)
}

func recordLookup(result string) {
	lookupCounter.WithLabelValues(result).Inc()
}
