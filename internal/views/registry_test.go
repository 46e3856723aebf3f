package views

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/focusquest/internal/auth"
	"example.com/focusquest/internal/domain"
	"example.com/focusquest/internal/focus"
	"example.com/focusquest/internal/gateway"
	"example.com/focusquest/internal/prefs"
)

type nopTasks struct{}

func (nopTasks) ListTasks(context.Context, string, domain.TaskScope) ([]domain.Task, error) {
	return nil, nil
}
func (nopTasks) InsertTask(_ context.Context, t domain.Task) (domain.Task, error) { return t, nil }
func (nopTasks) SetTaskCompleted(context.Context, string, string, bool) error     { return nil }
func (nopTasks) DeleteTask(context.Context, string, string) error                 { return nil }
func (nopTasks) AddSpentMinutes(context.Context, string, string, int) error       { return nil }

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newRegistry(t *testing.T, c *clock, store prefs.Store) *Registry {
	t.Helper()
	quiet := log.New(io.Discard, "", 0)
	r := NewRegistry(&gateway.Gateway{Tasks: nopTasks{}}, store,
		WithIdleTTL(10*time.Minute),
		WithClock(c.Now),
		WithLogger(quiet),
		WithEngineOptions(focus.WithLogger(quiet)),
	)
	t.Cleanup(r.Close)
	return r
}

func TestGetCreatesOnceAndKeysByIdentity(t *testing.T) {
	r := newRegistry(t, &clock{now: time.Now()}, nil)
	ctx := context.Background()

	user := auth.Authenticated{ID: "u1"}
	first := r.Get(ctx, user)
	require.Same(t, first, r.Get(ctx, user))
	require.NotSame(t, first, r.Get(ctx, auth.Anonymous{GuestID: "u1"}))
	require.Equal(t, 2, r.Len())

	_, ok := r.Lookup(auth.Authenticated{ID: "u2"})
	require.False(t, ok)
}

func TestViewsReadStoredDuration(t *testing.T) {
	store := prefs.NewMemoryStore()
	user := auth.Authenticated{ID: "u1"}
	require.NoError(t, prefs.SetInt(context.Background(), store, user.Key(), prefs.KeyFocusDuration, 45))
	r := newRegistry(t, &clock{now: time.Now()}, store)

	v := r.Get(context.Background(), user)
	require.Equal(t, 45, v.Engine.Snapshot().ConfiguredMin)
}

// slowPrefs holds reads for one viewer until released.
type slowPrefs struct {
	prefs.Store
	viewer  string
	entered chan struct{}
	release chan struct{}
}

func (s *slowPrefs) Get(ctx context.Context, viewer, key string) (string, error) {
	if viewer == s.viewer {
		s.entered <- struct{}{}
		<-s.release
	}
	return s.Store.Get(ctx, viewer, key)
}

func TestSlowPreferenceReadDoesNotBlockOtherViewers(t *testing.T) {
	slow := auth.Authenticated{ID: "slow"}
	store := &slowPrefs{Store: prefs.NewMemoryStore(), viewer: slow.Key(), entered: make(chan struct{}, 1), release: make(chan struct{})}
	r := newRegistry(t, &clock{now: time.Now()}, store)
	ctx := context.Background()

	created := make(chan *View, 1)
	go func() { created <- r.Get(ctx, slow) }()
	<-store.entered

	other := make(chan *View, 1)
	go func() { other <- r.Get(ctx, auth.Anonymous{GuestID: "fast"}) }()
	select {
	case v := <-other:
		require.NotNil(t, v)
	case <-time.After(2 * time.Second):
		close(store.release)
		t.Fatal("view creation waited on another viewer's preference read")
	}

	close(store.release)
	v := <-created
	require.Same(t, v, r.Get(ctx, slow))
	require.Equal(t, 2, r.Len())
}

func TestDropClosesEngine(t *testing.T) {
	r := newRegistry(t, &clock{now: time.Now()}, nil)
	user := auth.Authenticated{ID: "u1"}
	v := r.Get(context.Background(), user)

	require.True(t, r.Drop(user))
	require.False(t, r.Drop(user))
	require.ErrorIs(t, v.Engine.Start(), focus.ErrClosed)
	require.NotSame(t, v, r.Get(context.Background(), user))
}

func TestSweepRemovesIdleViews(t *testing.T) {
	c := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	r := newRegistry(t, c, nil)
	ctx := context.Background()

	idle := auth.Anonymous{GuestID: "g1"}
	active := auth.Authenticated{ID: "u1"}
	r.Get(ctx, idle)
	r.Get(ctx, active)

	c.Advance(6 * time.Minute)
	r.Get(ctx, active)
	c.Advance(6 * time.Minute)

	require.Equal(t, 1, r.Sweep())
	_, ok := r.Lookup(idle)
	require.False(t, ok)
	_, ok = r.Lookup(active)
	require.True(t, ok)
}

func TestFollowDropsOnSignOut(t *testing.T) {
	quiet := log.New(io.Discard, "", 0)
	feed := auth.NewFeed(quiet)
	defer feed.Close()
	r := newRegistry(t, &clock{now: time.Now()}, nil)
	stop := r.Follow(feed)
	defer stop()

	user := auth.Authenticated{ID: "u1"}
	r.Get(context.Background(), user)
	r.Get(context.Background(), auth.Authenticated{ID: "u2"})

	feed.Publish(auth.StateChange{Event: auth.EventSignedIn, Identity: user})
	feed.Publish(auth.StateChange{Event: auth.EventSignedOut, Identity: user})

	require.Eventually(t, func() bool {
		_, ok := r.Lookup(user)
		return !ok
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, r.Len())
}
