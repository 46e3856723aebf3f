package planner

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"example.com/focusquest/internal/auth"
	"example.com/focusquest/internal/domain"
)

type stubTaskStore struct {
	mu sync.Mutex

	listed    []domain.Task
	inserted  []domain.Task
	toggled   map[string]bool
	deleted   []string
	calls     int
	listErr   error
	insertErr error
	writeErr  error
}

func (s *stubTaskStore) ListTasks(_ context.Context, userID string, scope domain.TaskScope) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []domain.Task
	for _, t := range s.listed {
		if t.UserID == userID && scope.Contains(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *stubTaskStore) InsertTask(_ context.Context, task domain.Task) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.insertErr != nil {
		return domain.Task{}, s.insertErr
	}
	task.ID = "srv-" + task.Title
	task.CreatedAt = time.Date(2026, 3, 1, 9, len(s.inserted), 0, 0, time.UTC)
	s.inserted = append(s.inserted, task)
	return task, nil
}

func (s *stubTaskStore) SetTaskCompleted(_ context.Context, _, taskID string, completed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.writeErr != nil {
		return s.writeErr
	}
	if s.toggled == nil {
		s.toggled = make(map[string]bool)
	}
	s.toggled[taskID] = completed
	return nil
}

func (s *stubTaskStore) DeleteTask(_ context.Context, _, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.writeErr != nil {
		return s.writeErr
	}
	s.deleted = append(s.deleted, taskID)
	return nil
}

func (s *stubTaskStore) AddSpentMinutes(context.Context, string, string, int) error { return nil }

var (
	user  = auth.Authenticated{ID: "user-1"}
	guest = auth.Anonymous{GuestID: "guest-1"}
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func quiet() Option { return WithLogger(log.New(io.Discard, "", 0)) }

func TestLoadMonthScope(t *testing.T) {
	store := &stubTaskStore{listed: []domain.Task{
		{ID: "a", UserID: "user-1", Title: "March", DueDate: date(2026, 3, 14)},
		{ID: "b", UserID: "user-1", Title: "April", DueDate: date(2026, 4, 2)},
		{ID: "c", UserID: "user-2", Title: "Not mine", DueDate: date(2026, 3, 3)},
		{ID: "d", UserID: "user-1", Title: "Undated"},
	}}
	p := New(user, store, quiet())

	require.NoError(t, p.Load(context.Background(), domain.MonthScope(2026, time.March)))
	tasks := p.Tasks()
	require.Len(t, tasks, 1)
	require.Equal(t, "a", tasks[0].ID)
	require.Equal(t, map[string]int{"2026-03-14": 1}, p.CountByDate())
}

func TestLoadFailureKeepsCollection(t *testing.T) {
	store := &stubTaskStore{listed: []domain.Task{{ID: "a", UserID: "user-1", Title: "Keep"}}}
	p := New(user, store, quiet())
	scope := domain.UpcomingScope(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, p.Load(context.Background(), scope))

	store.listErr = errors.New("offline")
	require.Error(t, p.Load(context.Background(), scope))
	require.Len(t, p.Tasks(), 1)
}

func TestAddValidation(t *testing.T) {
	store := &stubTaskStore{}
	p := New(user, store, quiet())
	ctx := context.Background()

	_, err := p.Add(ctx, NewTask{Title: "   \t"})
	require.ErrorIs(t, err, domain.ErrEmptyTitle)
	_, err = p.Add(ctx, NewTask{Title: "Write", Priority: "urgent"})
	require.ErrorIs(t, err, domain.ErrInvalidPriority)
	require.Zero(t, store.calls)
	require.Empty(t, p.Tasks())
}

func TestAddAuthenticatedWaitsForStore(t *testing.T) {
	store := &stubTaskStore{}
	p := New(user, store, quiet())
	ctx := context.Background()
	require.NoError(t, p.Load(ctx, domain.UpcomingScope(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))))

	task, err := p.Add(ctx, NewTask{Title: "  Draft report  "})
	require.NoError(t, err)
	require.Equal(t, "srv-Draft report", task.ID)
	require.Equal(t, "user-1", task.UserID)
	require.Equal(t, domain.PriorityMedium, task.Priority)
	require.Equal(t, domain.DefaultTaskDuration, task.DurationMin)
	require.Len(t, p.Tasks(), 1)

	store.insertErr = errors.New("offline")
	_, err = p.Add(ctx, NewTask{Title: "Lost"})
	require.Error(t, err)
	require.Len(t, p.Tasks(), 1)
}

func TestAddGuestStaysLocal(t *testing.T) {
	store := &stubTaskStore{}
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	p := New(guest, store, quiet(), WithClock(func() time.Time { return now }), WithIDGenerator(func() string { return "local-1" }))
	ctx := context.Background()
	require.NoError(t, p.Load(ctx, domain.UpcomingScope(now)))

	task, err := p.Add(ctx, NewTask{Title: "Read", Priority: "high", DurationMin: 50})
	require.NoError(t, err)
	require.Equal(t, "local-1", task.ID)
	require.Equal(t, now, task.CreatedAt)
	require.Equal(t, 50, task.DurationMin)

	toggled, err := p.Toggle(ctx, "local-1")
	require.NoError(t, err)
	require.True(t, toggled.Completed)
	require.NoError(t, p.Remove(ctx, "local-1"))
	require.Zero(t, store.calls)
}

func TestAddOutsideScopeIsNotHeld(t *testing.T) {
	p := New(user, &stubTaskStore{}, quiet())
	ctx := context.Background()
	require.NoError(t, p.Load(ctx, domain.MonthScope(2026, time.March)))

	_, err := p.Add(ctx, NewTask{Title: "Next month", DueDate: date(2026, 4, 1)})
	require.NoError(t, err)
	_, err = p.Add(ctx, NewTask{Title: "Late", DueDate: date(2026, 3, 20)})
	require.NoError(t, err)
	_, err = p.Add(ctx, NewTask{Title: "Early", DueDate: date(2026, 3, 2)})
	require.NoError(t, err)

	tasks := p.Tasks()
	require.Len(t, tasks, 2)
	require.Equal(t, "Early", tasks[0].Title)
	require.Equal(t, "Late", tasks[1].Title)
}

func TestToggleFailureKeepsLocalValue(t *testing.T) {
	store := &stubTaskStore{listed: []domain.Task{{ID: "a", UserID: "user-1", Title: "Ship"}}}
	p := New(user, store, quiet())
	ctx := context.Background()
	scope := domain.UpcomingScope(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, p.Load(ctx, scope))

	task, err := p.Toggle(ctx, "a")
	require.NoError(t, err)
	require.True(t, task.Completed)
	require.Equal(t, map[string]bool{"a": true}, store.toggled)

	before := divergenceCount(t, "toggle")
	store.writeErr = domain.ErrForbidden
	task, err = p.Toggle(ctx, "a")
	require.ErrorIs(t, err, domain.ErrForbidden)
	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	require.Equal(t, "a", syncErr.TaskID)
	require.False(t, task.Completed)

	current, ok := p.Task("a")
	require.True(t, ok)
	require.False(t, current.Completed)
	require.Equal(t, []string{"a"}, p.Divergent())
	require.Equal(t, before+1, divergenceCount(t, "toggle"))

	require.NoError(t, p.Load(ctx, scope))
	require.Empty(t, p.Divergent())

	_, err = p.Toggle(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestRemoveIsLocalFirst(t *testing.T) {
	store := &stubTaskStore{
		listed:   []domain.Task{{ID: "a", UserID: "user-1", Title: "Gone"}},
		writeErr: errors.New("offline"),
	}
	p := New(user, store, quiet())
	ctx := context.Background()
	require.NoError(t, p.Load(ctx, domain.UpcomingScope(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))))

	err := p.Remove(ctx, "a")
	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	require.Equal(t, "remove", syncErr.Op)
	require.Empty(t, p.Tasks())
	require.ErrorIs(t, p.Remove(ctx, "a"), domain.ErrTaskNotFound)
}

func TestGroupsAndDateFilter(t *testing.T) {
	today := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)
	store := &stubTaskStore{listed: []domain.Task{
		{ID: "undated", UserID: "user-1"},
		{ID: "today", UserID: "user-1", DueDate: date(2026, 3, 10)},
		{ID: "later", UserID: "user-1", DueDate: date(2026, 3, 12)},
		{ID: "later-2", UserID: "user-1", DueDate: date(2026, 3, 12)},
	}}
	p := New(user, store, quiet())
	require.NoError(t, p.Load(context.Background(), domain.UpcomingScope(today)))

	groups := p.Groups(today)
	require.Equal(t, []string{"undated", "today"}, ids(groups.Today))
	require.Equal(t, []string{"later", "later-2"}, ids(groups.Upcoming))
	require.Equal(t, map[string]int{"2026-03-10": 1, "2026-03-12": 2}, p.CountByDate())
	require.Equal(t, []string{"later", "later-2"}, ids(p.OnDate(*date(2026, 3, 12))))
	require.Empty(t, p.OnDate(*date(2026, 3, 11)))
}

func TestTodayFollowsTheViewerLocation(t *testing.T) {
	pacific := time.FixedZone("UTC-8", -8*3600)
	// Still the 5th locally, already the 6th in UTC.
	now := time.Date(2026, 1, 5, 20, 0, 0, 0, pacific)
	p := New(guest, nil, quiet(), WithClock(func() time.Time { return now }))
	ctx := context.Background()
	require.NoError(t, p.Load(ctx, domain.UpcomingScope(now)))

	_, err := p.Add(ctx, NewTask{Title: "Due tonight", DueDate: date(2026, 1, 5)})
	require.NoError(t, err)
	_, err = p.Add(ctx, NewTask{Title: "Due tomorrow", DueDate: date(2026, 1, 6)})
	require.NoError(t, err)
	require.Len(t, p.Tasks(), 2)

	groups := p.Groups(now)
	require.Len(t, groups.Today, 1)
	require.Equal(t, "Due tonight", groups.Today[0].Title)
	require.Len(t, groups.Upcoming, 1)
	require.Equal(t, "Due tomorrow", groups.Upcoming[0].Title)

	onDate := p.OnDate(now)
	require.Len(t, onDate, 1)
	require.Equal(t, "Due tonight", onDate[0].Title)
}

func TestGuestLoadFiltersToScope(t *testing.T) {
	p := New(guest, nil, quiet())
	ctx := context.Background()
	require.NoError(t, p.Load(ctx, domain.UpcomingScope(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))))
	_, err := p.Add(ctx, NewTask{Title: "Soon", DueDate: date(2026, 3, 3)})
	require.NoError(t, err)
	_, err = p.Add(ctx, NewTask{Title: "Whenever"})
	require.NoError(t, err)

	require.NoError(t, p.Load(ctx, domain.MonthScope(2026, time.March)))
	tasks := p.Tasks()
	require.Len(t, tasks, 1)
	require.Equal(t, "Soon", tasks[0].Title)
}

func ids(tasks []domain.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

func divergenceCount(t *testing.T, op string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, divergenceCounter.WithLabelValues(op).Write(&m))
	return m.GetCounter().GetValue()
}
