package leaderboard

import "github.com/prometheus/client_golang/prometheus"

var (
	reloadCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "focusquest",
		Subsystem: "leaderboard",
		Name:      "reloads_total",
		Help:      "Successful leaderboard reloads.",
	})

	windowGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "focusquest",
		Subsystem: "leaderboard",
		Name:      "window_size",
		Help:      "Number of profiles in the current leaderboard window.",
	})
)

func init() {
	prometheus.MustRegister(reloadCounter, windowGauge)
}

func recordReload(size int) {
	reloadCounter.Inc()
	windowGauge.Set(float64(size))
}
