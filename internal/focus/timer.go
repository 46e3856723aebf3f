// Package focus implements the focus timer and the session completion that turns a
// finished run into XP.
package focus

import (
	"errors"
	"time"
)

// Duration bounds in minutes.
const (
	MinDuration     = 10
	MaxDuration     = 180
	DefaultDuration = 25
)

var (
	// ErrInvalidDuration rejects durations outside [MinDuration, MaxDuration].
	ErrInvalidDuration = errors.New("duration must be between 10 and 180 minutes")
	// ErrNotIdle is returned when starting a timer that is not idle.
	ErrNotIdle = errors.New("timer is not idle")
)

// ValidDuration reports whether minutes is an allowed configured duration.
func ValidDuration(minutes int) bool {
	return minutes >= MinDuration && minutes <= MaxDuration
}

// State is the timer's lifecycle state.
type State int

const (
	Idle State = iota
	Running
	Expired
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Expired:
		return "expired"
	default:
		return "idle"
	}
}

// Run describes a countdown that reached zero.
type Run struct {
	Minutes int
}

// TickResult reports what a single tick caused.
type TickResult struct {
	Checkpoint int // minute of the checkpoint fired by this tick, 0 if none
	Message    string
	Expired    bool
}

// Timer is the countdown state machine. It has no goroutines of its own; the caller
// drives it with Tick once per second. Timer is not safe for concurrent use.
type Timer struct {
	configured  int // minutes, applies to the next run
	runTotal    int // minutes of the current run
	remaining   int // seconds
	state       State
	checkpoints []Checkpoint
	fired       map[int]bool
	choose      Chooser
	now         func() time.Time

	encouragement string
	shownAt       time.Time
}

// TimerOption customises a Timer.
type TimerOption func(*Timer)

// WithChooser sets the message chooser.
func WithChooser(choose Chooser) TimerOption {
	return func(t *Timer) {
		if choose != nil {
			t.choose = choose
		}
	}
}

// WithClock sets the time source used for the encouragement window.
func WithClock(now func() time.Time) TimerOption {
	return func(t *Timer) {
		if now != nil {
			t.now = now
		}
	}
}

// WithCheckpoints replaces the checkpoint table.
func WithCheckpoints(checkpoints []Checkpoint) TimerOption {
	return func(t *Timer) {
		t.checkpoints = checkpoints
	}
}

// NewTimer returns an idle timer. Invalid durations fall back to DefaultDuration.
func NewTimer(minutes int, opts ...TimerOption) *Timer {
	if !ValidDuration(minutes) {
		minutes = DefaultDuration
	}
	t := &Timer{
		configured:  minutes,
		checkpoints: DefaultCheckpoints,
		choose:      RandomChooser,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.Reset()
	return t
}

// State returns the current state.
func (t *Timer) State() State { return t.state }

// Configured returns the configured duration in minutes.
func (t *Timer) Configured() int { return t.configured }

// RunTotal returns the total minutes of the current run.
func (t *Timer) RunTotal() int { return t.runTotal }

// Remaining returns the remaining seconds.
func (t *Timer) Remaining() int { return t.remaining }

// Start begins or resumes the countdown.
func (t *Timer) Start() error {
	if t.state != Idle {
		return ErrNotIdle
	}
	if t.remaining <= 0 {
		t.Reset()
	}
	t.state = Running
	return nil
}

// Stop pauses the countdown, keeping the remaining time.
func (t *Timer) Stop() {
	if t.state == Running {
		t.state = Idle
	}
}

// Reset returns to Idle with a fresh run of the configured duration.
func (t *Timer) Reset() {
	t.state = Idle
	t.runTotal = t.configured
	t.remaining = t.configured * 60
	t.fired = make(map[int]bool, len(t.checkpoints))
	t.encouragement = ""
	t.shownAt = time.Time{}
}

// SetDuration changes the configured duration. It takes effect immediately only when
// the timer is idle and the current run has not started counting down.
func (t *Timer) SetDuration(minutes int) error {
	if !ValidDuration(minutes) {
		return ErrInvalidDuration
	}
	t.configured = minutes
	if t.state == Idle && t.remaining == t.runTotal*60 {
		t.Reset()
	}
	return nil
}

// Tick advances the countdown by one second.
func (t *Timer) Tick() TickResult {
	var res TickResult
	if t.state != Running || t.remaining <= 0 {
		return res
	}

	t.remaining--
	elapsed := (t.runTotal*60 - t.remaining) / 60

	for _, cp := range t.checkpoints {
		if cp.Minute >= t.runTotal || t.fired[cp.Minute] || elapsed != cp.Minute || len(cp.Messages) == 0 {
			continue
		}
		t.fired[cp.Minute] = true
		t.encouragement = cp.Messages[t.choose(len(cp.Messages))]
		t.shownAt = t.now()
		res.Checkpoint = cp.Minute
		res.Message = t.encouragement
		break
	}

	if t.remaining == 0 {
		t.state = Expired
		res.Expired = true
	}
	return res
}

// Complete consumes an expired run and resets the timer for the next one.
func (t *Timer) Complete() (Run, bool) {
	if t.state != Expired {
		return Run{}, false
	}
	run := Run{Minutes: t.runTotal}
	t.Reset()
	return run, true
}

// Encouragement returns the checkpoint message while it is inside its display window.
func (t *Timer) Encouragement() (string, bool) {
	if t.encouragement == "" || !t.now().Before(t.shownAt.Add(EncouragementWindow)) {
		return "", false
	}
	return t.encouragement, true
}
