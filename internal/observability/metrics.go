// Package observability holds process-wide Prometheus collectors.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	sessionsRecordedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "focusquest",
		Subsystem: "persistence",
		Name:      "focus_sessions_recorded_total",
		Help:      "Number of focus sessions appended to the session log.",
	})
	sessionPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "focusquest",
		Subsystem: "persistence",
		Name:      "last_focus_session_timestamp_seconds",
		Help:      "Unix timestamp of the most recent focus session persisted to Postgres.",
	})
	xpAwardedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "focusquest",
		Subsystem: "persistence",
		Name:      "xp_awarded_total",
		Help:      "Total XP granted through add_xp.",
	})
	policyRejectionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "focusquest",
		Subsystem: "persistence",
		Name:      "policy_rejections_total",
		Help:      "Statements rejected by row-level policies, labeled by operation.",
	}, []string{"operation"})
	activeViewsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "focusquest",
		Subsystem: "views",
		Name:      "active",
		Help:      "Number of per-viewer view sets currently held in memory.",
	})
)

func init() {
	prometheus.MustRegister(sessionsRecordedCounter, sessionPersistGauge, xpAwardedCounter, policyRejectionCounter, activeViewsGauge)
}

// RecordFocusSession updates the session counters and watermark.
func RecordFocusSession(ts time.Time) {
	sessionsRecordedCounter.Inc()
	if ts.IsZero() {
		return
	}
	sessionPersistGauge.Set(float64(ts.Unix()))
}

// RecordXPAwarded adds amount to the awarded XP counter.
func RecordXPAwarded(amount int) {
	if amount <= 0 {
		return
	}
	xpAwardedCounter.Add(float64(amount))
}

// RecordPolicyRejection counts a row-level policy rejection.
func RecordPolicyRejection(operation string) {
	policyRejectionCounter.WithLabelValues(operation).Inc()
}

// SetActiveViews publishes the current number of live view sets.
func SetActiveViews(n int) {
	activeViewsGauge.Set(float64(n))
}
