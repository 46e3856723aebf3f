// Package domain defines the records and store contracts shared by the focusquest views.
package domain

import (
	"strings"
	"time"
)

// Priority ranks a task in the planner.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// DefaultTaskDuration is the planned length of a task when none is given, in minutes.
const DefaultTaskDuration = 25

// ParsePriority normalises user input; empty input yields the medium default.
func ParsePriority(raw string) (Priority, error) {
	switch Priority(strings.ToLower(strings.TrimSpace(raw))) {
	case "":
		return PriorityMedium, nil
	case PriorityLow:
		return PriorityLow, nil
	case PriorityMedium:
		return PriorityMedium, nil
	case PriorityHigh:
		return PriorityHigh, nil
	default:
		return "", ErrInvalidPriority
	}
}

// Profile is the public record of a user's identity and accumulated XP.
type Profile struct {
	ID       string
	Username string
	Email    string
	TotalXP  int
}

// Task is a planned unit of work owned by exactly one user.
type Task struct {
	ID          string
	UserID      string
	Title       string
	Completed   bool
	Priority    Priority
	DueDate     *time.Time // date only, midnight UTC; nil means undated
	DurationMin int
	SpentMin    int
	CreatedAt   time.Time
}

// ProgressPercent reports how much of the planned duration has been focused, capped at 100.
func (t Task) ProgressPercent() int {
	target := t.DurationMin
	if target <= 0 {
		target = DefaultTaskDuration
	}
	pct := t.SpentMin * 100 / target
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}

// FocusSession is the append-only log record of one completed timer run.
type FocusSession struct {
	ID        string
	UserID    string
	Minutes   int
	XPEarned  int
	CreatedAt time.Time
}

// SessionStats aggregates a user's focus history.
type SessionStats struct {
	Sessions int
	Minutes  int
}

// DateOf truncates t to its calendar date in loc and returns it as midnight UTC,
// the representation used for due dates.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateKey formats a due date as YYYY-MM-DD.
func DateKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(raw string) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, strings.TrimSpace(raw), time.UTC)
}
