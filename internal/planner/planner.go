// Package planner holds one viewer's task collection for a date scope and applies
// add/toggle/remove against it, mirroring authenticated changes to the task store.
package planner

import (
	"cmp"
	"context"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/focusquest/internal/auth"
	"example.com/focusquest/internal/domain"
)

// NewTask is the input accepted by Add.
type NewTask struct {
	Title       string
	Priority    string
	DurationMin int
	DueDate     *time.Time
}

// Groups splits the collection for display.
type Groups struct {
	Today    []domain.Task `json:"today"`
	Upcoming []domain.Task `json:"upcoming"`
}

// SyncError reports a remote write that failed after the local change was applied.
type SyncError struct {
	Op     string
	TaskID string
	Err    error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("%s task %s: %v", e.Op, e.TaskID, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// Planner is safe for concurrent use. Its lock is never held across store calls.
type Planner struct {
	identity auth.Identity
	store    domain.TaskStore
	logger   *log.Logger
	now      func() time.Time
	newID    func() string

	mu        sync.Mutex
	scope     domain.TaskScope
	loaded    bool
	tasks     []domain.Task
	divergent map[string]struct{}
}

// Option customises a Planner.
type Option func(*Planner)

// WithLogger overrides the planner logger.
func WithLogger(logger *log.Logger) Option {
	return func(p *Planner) {
		p.logger = logger
	}
}

// WithClock sets the clock stamped on guest tasks.
func WithClock(now func() time.Time) Option {
	return func(p *Planner) {
		if now != nil {
			p.now = now
		}
	}
}

// WithIDGenerator sets how guest task ids are generated.
func WithIDGenerator(fn func() string) Option {
	return func(p *Planner) {
		if fn != nil {
			p.newID = fn
		}
	}
}

// New returns an empty planner for identity. Guests never reach the store.
func New(identity auth.Identity, store domain.TaskStore, opts ...Option) *Planner {
	p := &Planner{
		identity:  identity,
		store:     store,
		logger:    log.New(log.Writer(), "[planner] ", log.LstdFlags),
		now:       time.Now,
		newID:     uuid.NewString,
		divergent: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Load replaces the collection with the tasks in scope and forgets divergent ids.
// For guests the local tasks are kept and filtered to the new scope.
func (p *Planner) Load(ctx context.Context, scope domain.TaskScope) error {
	userID, ok := auth.UserID(p.identity)
	if !ok {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.scope = scope
		p.loaded = true
		p.tasks = slices.DeleteFunc(p.tasks, func(t domain.Task) bool { return !scope.Contains(t) })
		sortTasks(p.tasks, scope)
		clear(p.divergent)
		return nil
	}

	tasks, err := p.store.ListTasks(ctx, userID, scope)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scope = scope
	p.loaded = true
	p.tasks = tasks
	clear(p.divergent)
	return nil
}

// Add validates input and creates a task. Authenticated viewers see the task only after
// the store confirms it. Tasks outside the loaded scope are returned but not held.
func (p *Planner) Add(ctx context.Context, in NewTask) (domain.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Task{}, domain.ErrEmptyTitle
	}
	priority, err := domain.ParsePriority(in.Priority)
	if err != nil {
		return domain.Task{}, err
	}
	duration := in.DurationMin
	if duration <= 0 {
		duration = domain.DefaultTaskDuration
	}
	task := domain.Task{
		Title:       title,
		Priority:    priority,
		DueDate:     in.DueDate,
		DurationMin: duration,
	}

	if userID, ok := auth.UserID(p.identity); ok {
		task.UserID = userID
		task, err = p.store.InsertTask(ctx, task)
		if err != nil {
			return domain.Task{}, fmt.Errorf("add task: %w", err)
		}
	} else {
		task.ID = p.newID()
		task.CreatedAt = p.now().UTC()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.scope.Contains(task) {
		p.tasks = append(p.tasks, task)
		sortTasks(p.tasks, p.scope)
	}
	return task, nil
}

// Toggle flips a task's completion locally, then mirrors it remotely. A failed remote
// update keeps the local value, marks the task divergent and is returned as *SyncError.
func (p *Planner) Toggle(ctx context.Context, taskID string) (domain.Task, error) {
	p.mu.Lock()
	idx := p.indexLocked(taskID)
	if idx < 0 {
		p.mu.Unlock()
		return domain.Task{}, domain.ErrTaskNotFound
	}
	p.tasks[idx].Completed = !p.tasks[idx].Completed
	task := p.tasks[idx]
	p.mu.Unlock()

	userID, ok := auth.UserID(p.identity)
	if !ok {
		return task, nil
	}
	if err := p.store.SetTaskCompleted(ctx, userID, taskID, task.Completed); err != nil {
		return task, p.diverged("toggle", taskID, err)
	}
	return task, nil
}

// Remove deletes a task locally, then remotely. A failed remote delete is returned as
// *SyncError; the task stays gone from the collection.
func (p *Planner) Remove(ctx context.Context, taskID string) error {
	p.mu.Lock()
	idx := p.indexLocked(taskID)
	if idx < 0 {
		p.mu.Unlock()
		return domain.ErrTaskNotFound
	}
	p.tasks = slices.Delete(p.tasks, idx, idx+1)
	p.mu.Unlock()

	userID, ok := auth.UserID(p.identity)
	if !ok {
		return nil
	}
	if err := p.store.DeleteTask(ctx, userID, taskID); err != nil {
		return p.diverged("remove", taskID, err)
	}
	return nil
}

// Tasks returns a copy of the collection in display order.
func (p *Planner) Tasks() []domain.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.tasks)
}

// Task returns one task from the collection.
func (p *Planner) Task(taskID string) (domain.Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.indexLocked(taskID)
	if idx < 0 {
		return domain.Task{}, false
	}
	return p.tasks[idx], true
}

// Loaded reports whether Load has succeeded at least once.
func (p *Planner) Loaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded
}

// Scope returns the scope of the last Load.
func (p *Planner) Scope() domain.TaskScope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scope
}

// Groups splits tasks into those due today or undated and those due later, where
// today is the calendar date of today in its own location. Overdue tasks belong to neither.
func (p *Planner) Groups(today time.Time) Groups {
	p.mu.Lock()
	defer p.mu.Unlock()
	day := domain.DateOf(today, today.Location())
	groups := Groups{Today: []domain.Task{}, Upcoming: []domain.Task{}}
	for _, t := range p.tasks {
		switch {
		case t.DueDate == nil || t.DueDate.Equal(day):
			groups.Today = append(groups.Today, t)
		case t.DueDate.After(day):
			groups.Upcoming = append(groups.Upcoming, t)
		}
	}
	return groups
}

// CountByDate returns the number of tasks per due date, keyed YYYY-MM-DD.
func (p *Planner) CountByDate() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	counts := make(map[string]int)
	for _, t := range p.tasks {
		if t.DueDate != nil {
			counts[domain.DateKey(*t.DueDate)]++
		}
	}
	return counts
}

// OnDate returns the tasks due on the calendar date of date in its own location.
func (p *Planner) OnDate(date time.Time) []domain.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	day := domain.DateOf(date, date.Location())
	out := []domain.Task{}
	for _, t := range p.tasks {
		if t.DueDate != nil && t.DueDate.Equal(day) {
			out = append(out, t)
		}
	}
	return out
}

// Divergent lists task ids whose last remote write failed since the last Load.
func (p *Planner) Divergent() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.divergent))
	for id := range p.divergent {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (p *Planner) diverged(op, taskID string, err error) error {
	p.mu.Lock()
	p.divergent[taskID] = struct{}{}
	p.mu.Unlock()
	recordDivergence(op)
	p.logger.Printf("%s not persisted (viewer=%s task=%s): %v", op, p.identity.Key(), taskID, err)
	return &SyncError{Op: op, TaskID: taskID, Err: err}
}

func (p *Planner) indexLocked(taskID string) int {
	return slices.IndexFunc(p.tasks, func(t domain.Task) bool { return t.ID == taskID })
}

// sortTasks orders undated-inclusive scopes by creation and dated scopes by due date.
func sortTasks(tasks []domain.Task, scope domain.TaskScope) {
	slices.SortStableFunc(tasks, func(a, b domain.Task) int {
		if !scope.IncludeUndated {
			if c := compareDue(a.DueDate, b.DueDate); c != 0 {
				return c
			}
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

func compareDue(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return cmp.Compare(a.Unix(), b.Unix())
}
