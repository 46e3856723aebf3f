package focus

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"example.com/focusquest/internal/auth"
	"example.com/focusquest/internal/domain"
	"example.com/focusquest/internal/prefs"
	"example.com/focusquest/internal/xp"
)

var (
	// ErrCompletionInFlight is returned while a previous run's completion is still writing.
	ErrCompletionInFlight = errors.New("session completion in progress")
	// ErrClosed is returned by an engine whose view has been torn down.
	ErrClosed = errors.New("focus engine closed")
)

// Backend is the slice of the gateway the engine writes completions through.
type Backend struct {
	Sessions   domain.SessionStore
	XP         domain.XPProcedure
	Tasks      domain.TaskStore
	Reconciler domain.XPReconciler
}

// NoticeLevel grades a notice shown after a completion.
type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeAlert NoticeLevel = "alert"
)

// Notice is the latest user-facing outcome of a completion.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
	At      time.Time   `json:"at"`
}

// Completion describes a finished completion sequence.
type Completion struct {
	Run     Run
	TaskID  string
	TotalXP int
	Err     error
}

// Snapshot is a consistent read of the engine state.
type Snapshot struct {
	State         string   `json:"state"`
	ConfiguredMin int      `json:"configured_min"`
	RunTotalMin   int      `json:"run_total_min"`
	RemainingSec  int      `json:"remaining_sec"`
	Encouragement string   `json:"encouragement,omitempty"`
	ActiveTaskID  string   `json:"active_task_id,omitempty"`
	Completing    bool     `json:"completing"`
	Notice        *Notice  `json:"notice,omitempty"`
	XP            xp.Stats `json:"xp"`
}

// Engine owns one viewer's timer, drives it once per second while running and performs
// session completion when a run reaches zero.
type Engine struct {
	identity auth.Identity
	backend  Backend
	prefs    prefs.Store
	logger   *log.Logger
	now      func() time.Time
	interval time.Duration
	onDone   func(Completion)

	timerOpts []TimerOption

	mu         sync.Mutex
	timer      *Timer
	activeTask string
	totalXP    int
	notice     *Notice
	tickGen    uint64
	stopTick   context.CancelFunc
	closed     bool

	completing atomic.Bool
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// Option customises an Engine.
type Option func(*Engine)

// WithLogger overrides the engine logger.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithTickInterval changes the tick period. Tests shorten it.
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithEngineClock sets the clock used by the engine and its timer.
func WithEngineClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
			e.timerOpts = append(e.timerOpts, WithClock(now))
		}
	}
}

// WithMessageChooser sets how checkpoint messages are picked.
func WithMessageChooser(choose Chooser) Option {
	return func(e *Engine) {
		e.timerOpts = append(e.timerOpts, WithChooser(choose))
	}
}

// WithCompletionHook registers fn to run after every completion sequence.
func WithCompletionHook(fn func(Completion)) Option {
	return func(e *Engine) {
		e.onDone = fn
	}
}

// NewEngine builds an idle engine for identity. The configured duration is read from
// the preference store; missing or out-of-range values fall back to DefaultDuration.
func NewEngine(ctx context.Context, identity auth.Identity, backend Backend, store prefs.Store, opts ...Option) *Engine {
	e := &Engine{
		identity: identity,
		backend:  backend,
		prefs:    store,
		logger:   log.New(log.Writer(), "[focus] ", log.LstdFlags),
		now:      time.Now,
		interval: time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())

	minutes := DefaultDuration
	if store != nil {
		minutes = prefs.Int(ctx, store, identity.Key(), prefs.KeyFocusDuration, DefaultDuration)
	}
	e.timer = NewTimer(minutes, e.timerOpts...)
	return e
}

// Start begins or resumes the countdown. It is refused while a completion is writing.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.completing.Load() {
		return ErrCompletionInFlight
	}
	if err := e.timer.Start(); err != nil {
		return err
	}
	e.startTickingLocked()
	return nil
}

// Stop pauses the countdown.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.timer.Stop()
	e.stopTickingLocked()
}

// Reset abandons the current run and clears the active task.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.timer.Reset()
	e.activeTask = ""
	e.stopTickingLocked()
}

// SetDuration validates, persists and applies a new configured duration.
func (e *Engine) SetDuration(ctx context.Context, minutes int) error {
	if !ValidDuration(minutes) {
		return ErrInvalidDuration
	}
	if e.prefs != nil {
		if err := prefs.SetInt(ctx, e.prefs, e.identity.Key(), prefs.KeyFocusDuration, minutes); err != nil {
			return fmt.Errorf("persist duration: %w", err)
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timer.SetDuration(minutes)
}

// SetActiveTask associates the current run with a task. An empty id clears it.
func (e *Engine) SetActiveTask(taskID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.activeTask = taskID
}

// SetTotalXP seeds the XP shown by the engine, typically from the loaded profile.
func (e *Engine) SetTotalXP(total int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.totalXP = total
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	message, _ := e.timer.Encouragement()
	var notice *Notice
	if e.notice != nil {
		n := *e.notice
		notice = &n
	}
	return Snapshot{
		State:         e.timer.State().String(),
		ConfiguredMin: e.timer.Configured(),
		RunTotalMin:   e.timer.RunTotal(),
		RemainingSec:  e.timer.Remaining(),
		Encouragement: message,
		ActiveTaskID:  e.activeTask,
		Completing:    e.completing.Load(),
		Notice:        notice,
		XP:            xp.Describe(e.totalXP),
	}
}

// Close stops the tick loop, cancels any completion in flight and waits for both.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.stopTickingLocked()
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
}

func (e *Engine) startTickingLocked() {
	if e.stopTick != nil {
		return
	}
	ctx, cancel := context.WithCancel(e.ctx)
	e.stopTick = cancel
	e.tickGen++
	gen := e.tickGen

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.tick(gen)
			}
		}
	}()
}

func (e *Engine) stopTickingLocked() {
	if e.stopTick != nil {
		e.stopTick()
		e.stopTick = nil
	}
}

// tick advances the timer for the loop of generation gen. Ticks from a loop that has
// since been stopped are ignored.
func (e *Engine) tick(gen uint64) {
	e.mu.Lock()
	if gen != e.tickGen || e.stopTick == nil {
		e.mu.Unlock()
		return
	}
	res := e.timer.Tick()
	if res.Checkpoint > 0 {
		recordCheckpoint(res.Checkpoint)
	}
	if !res.Expired {
		e.mu.Unlock()
		return
	}

	run, _ := e.timer.Complete()
	taskID := e.activeTask
	e.activeTask = ""
	e.stopTickingLocked()
	// Claimed under mu so Start and Snapshot never see the gap before the writes begin.
	claimed := e.completing.CompareAndSwap(false, true)
	e.mu.Unlock()

	if !claimed {
		recordCompletion("rejected")
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.finish(e.ctx, run, taskID); err != nil {
			e.logger.Printf("completion failed (viewer=%s): %v", e.identity.Key(), err)
		}
	}()
}

// complete performs session completion for run. At most one sequence runs at a time.
// Guests make no remote calls.
func (e *Engine) complete(ctx context.Context, run Run, taskID string) error {
	if !e.completing.CompareAndSwap(false, true) {
		recordCompletion("rejected")
		return ErrCompletionInFlight
	}
	return e.finish(ctx, run, taskID)
}

// finish runs a completion the caller has already claimed and releases the claim.
func (e *Engine) finish(ctx context.Context, run Run, taskID string) error {
	defer e.completing.Store(false)

	userID, ok := auth.UserID(e.identity)
	if !ok {
		recordCompletion("guest")
		return nil
	}

	result := Completion{Run: run, TaskID: taskID}
	result.TotalXP, result.Err = e.writeCompletion(ctx, userID, run, taskID)

	e.mu.Lock()
	if result.Err != nil {
		e.notice = &Notice{Level: NoticeAlert, Message: alertMessage(result.Err), At: e.now()}
	} else {
		e.totalXP = result.TotalXP
		e.notice = &Notice{Level: NoticeInfo, Message: fmt.Sprintf("Session complete: +%d XP", xp.PerSession), At: e.now()}
	}
	e.mu.Unlock()

	if result.Err != nil {
		recordCompletion("failed")
	} else {
		recordCompletion("succeeded")
	}
	if e.onDone != nil {
		e.onDone(result)
	}
	return result.Err
}

// writeCompletion runs the three writes in order and stops at the first failure.
func (e *Engine) writeCompletion(ctx context.Context, userID string, run Run, taskID string) (int, error) {
	if _, err := e.backend.Sessions.InsertFocusSession(ctx, domain.FocusSession{
		UserID:   userID,
		Minutes:  run.Minutes,
		XPEarned: xp.PerSession,
	}); err != nil {
		return 0, &StepError{Step: StepRecordSession, Err: err}
	}

	total, err := e.backend.XP.AddXP(ctx, userID, xp.PerSession)
	if err != nil {
		// The session row exists without its XP; queue a correction.
		if e.backend.Reconciler != nil {
			if reqErr := e.backend.Reconciler.RequestReconcile(ctx, userID, "add_xp failed after session insert"); reqErr != nil {
				e.logger.Printf("reconcile request failed (user=%s): %v", userID, reqErr)
			}
		}
		return 0, &StepError{Step: StepAwardXP, Err: err}
	}

	if taskID != "" {
		if err := e.backend.Tasks.AddSpentMinutes(ctx, userID, taskID, run.Minutes); err != nil {
			return total, &StepError{Step: StepCreditTask, Err: err}
		}
	}
	return total, nil
}

// Step names a completion write.
type Step string

const (
	StepRecordSession Step = "record_session"
	StepAwardXP       Step = "award_xp"
	StepCreditTask    Step = "credit_task"
)

// StepError reports which completion write failed.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func alertMessage(err error) string {
	if errors.Is(err, domain.ErrForbidden) {
		return "Operation failed."
	}
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		switch stepErr.Step {
		case StepRecordSession:
			return "Could not save your focus session."
		case StepAwardXP:
			return "Session saved, but XP could not be added."
		case StepCreditTask:
			return "XP added, but the task's focus time could not be updated."
		}
	}
	return "Something went wrong finishing your session."
}
