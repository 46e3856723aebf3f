package domain

import (
	"context"
	"time"
)

// TaskScope selects the tasks a view holds. A nil bound is open.
type TaskScope struct {
	From           *time.Time
	To             *time.Time
	IncludeUndated bool
}

// MonthScope covers every task due within the given calendar month.
func MonthScope(year int, month time.Month) TaskScope {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, -1)
	return TaskScope{From: &from, To: &to}
}

// UpcomingScope covers undated tasks plus everything due today or later. Today is the
// calendar date of today in its own location.
func UpcomingScope(today time.Time) TaskScope {
	from := DateOf(today, today.Location())
	return TaskScope{From: &from, IncludeUndated: true}
}

// Contains reports whether a task belongs to the scope.
func (s TaskScope) Contains(t Task) bool {
	if t.DueDate == nil {
		return s.IncludeUndated
	}
	if s.From != nil && t.DueDate.Before(*s.From) {
		return false
	}
	if s.To != nil && t.DueDate.After(*s.To) {
		return false
	}
	return true
}

// ProfileStore reads and creates profile records.
type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (*Profile, error)
	FindProfileByUsername(ctx context.Context, username string) (*Profile, error)
	InsertProfile(ctx context.Context, profile Profile) error
	TopProfiles(ctx context.Context, limit int) ([]Profile, error)
}

// TaskStore persists tasks. Every mutation is filtered by the owning user.
type TaskStore interface {
	ListTasks(ctx context.Context, userID string, scope TaskScope) ([]Task, error)
	InsertTask(ctx context.Context, task Task) (Task, error)
	SetTaskCompleted(ctx context.Context, userID, taskID string, completed bool) error
	DeleteTask(ctx context.Context, userID, taskID string) error
	AddSpentMinutes(ctx context.Context, userID, taskID string, minutes int) error
}

// SessionStore appends and aggregates focus sessions.
type SessionStore interface {
	InsertFocusSession(ctx context.Context, session FocusSession) (FocusSession, error)
	SessionStats(ctx context.Context, userID string) (SessionStats, error)
}

// XPProcedure is the backend's atomic add_xp procedure. Implementations must be safe
// under concurrent invocation.
type XPProcedure interface {
	AddXP(ctx context.Context, userID string, amount int) (int, error)
}

// XPReconciler corrects drift between a profile's total_xp and its session log.
type XPReconciler interface {
	RequestReconcile(ctx context.Context, userID, reason string) error
	ReconcileXP(ctx context.Context, userID string) (int, error)
}
