package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"example.com/focusquest/internal/events"
)

// Outcomes of one replay attempt on a dead-lettered event.
const (
	replayRequeued    = "requeued"
	replayRescheduled = "rescheduled"
	replayQuarantined = "quarantined"
)

var (
	replayOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "focusquest",
		Subsystem: "dead_letters",
		Name:      "replays_total",
		Help:      "Replay attempts on dead-lettered events by event type and outcome.",
	}, []string{"event", "outcome"})

	pendingDeadLetters = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "focusquest",
		Subsystem: "dead_letters",
		Name:      "pending",
		Help:      "Dead-lettered events still awaiting replay, by event type.",
	}, []string{"event"})

	// A quarantined reconcile request is a profile whose XP may trail its session log
	// until someone replays it by hand.
	unrepairedXP = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "focusquest",
		Subsystem: "dead_letters",
		Name:      "xp_reconcile_quarantined",
		Help:      "Quarantined XP reconciliation requests.",
	})
)

func init() {
	prometheus.MustRegister(replayOutcomes, pendingDeadLetters, unrepairedXP)
}

func recordReplay(entry dlqEntry, outcome string) {
	replayOutcomes.WithLabelValues(entry.EventType, outcome).Inc()
}

// refreshDeadLetterGauges recomputes the gauges from the table. Failures leave the
// previous values in place.
func refreshDeadLetterGauges(ctx context.Context, pool *pgxpool.Pool) {
	rows, err := pool.Query(ctx, `SELECT event_type, COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL GROUP BY event_type`)
	if err != nil {
		return
	}
	pending := make(map[string]int)
	for rows.Next() {
		var eventType string
		var count int
		if err := rows.Scan(&eventType, &count); err != nil {
			rows.Close()
			return
		}
		pending[eventType] = count
	}
	rows.Close()
	if rows.Err() != nil {
		return
	}
	pendingDeadLetters.Reset()
	for eventType, count := range pending {
		pendingDeadLetters.WithLabelValues(eventType).Set(float64(count))
	}

	var quarantined int
	if err := pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox_dlq WHERE event_type = $1 AND quarantined_at IS NOT NULL`,
		events.TypeXPReconcileRequested,
	).Scan(&quarantined); err == nil {
		unrepairedXP.Set(float64(quarantined))
	}
}
