package focus

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	completionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "focusquest",
		Subsystem: "focus",
		Name:      "completions_total",
		Help:      "Session completions by outcome (succeeded, failed, guest, rejected).",
	}, []string{"outcome"})

	checkpointCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "focusquest",
		Subsystem: "focus",
		Name:      "checkpoints_fired_total",
		Help:      "Encouragement checkpoints shown, labeled by minute.",
	}, []string{"minute"})
)

func init() {
	prometheus.MustRegister(completionCounter, checkpointCounter)
}

func recordCompletion(outcome string) {
	completionCounter.WithLabelValues(outcome).Inc()
}

func recordCheckpoint(minute int) {
	checkpointCounter.WithLabelValues(strconv.Itoa(minute)).Inc()
}
