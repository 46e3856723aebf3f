// Package events defines the event payloads written to the outbox and read by consumers.
package events

import "time"

// Event types carried in the outbox event_type column and the Kafka event_type header.
const (
	TypeProfileChanged       = "profile.changed"
	TypeFocusSessionRecorded = "focus_session.recorded"
	TypeXPReconcileRequested = "xp.reconcile_requested"
)

// ProfileChanged is emitted whenever a profile row is created or its XP moves.
type ProfileChanged struct {
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	TotalXP    int       `json:"total_xp"`
	OccurredAt time.Time `json:"occurred_at"`
}

// FocusSessionRecorded is emitted when a completed timer run is appended to the session log.
type FocusSessionRecorded struct {
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id"`
	Minutes    int       `json:"minutes"`
	XPEarned   int       `json:"xp_earned"`
	OccurredAt time.Time `json:"occurred_at"`
}

// XPReconcileRequested asks the reconcile worker to recompute a user's total XP from
// the session log.
type XPReconcileRequested struct {
	UserID      string    `json:"user_id"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}
