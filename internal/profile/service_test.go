package profile

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/focusquest/internal/domain"
	"example.com/focusquest/internal/gateway"
)

type stubProfiles struct {
	byID      map[string]domain.Profile
	taken     map[string]bool
	gets      int
	appearOn  int // profile in pending becomes visible on this GetProfile call
	pending   *domain.Profile
	getErr    error
	insertErr error
}

func (s *stubProfiles) GetProfile(_ context.Context, id string) (*domain.Profile, error) {
	s.gets++
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.pending != nil && s.gets >= s.appearOn {
		s.byID[s.pending.ID] = *s.pending
	}
	if p, ok := s.byID[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (s *stubProfiles) FindProfileByUsername(context.Context, string) (*domain.Profile, error) {
	return nil, nil
}

func (s *stubProfiles) InsertProfile(_ context.Context, p domain.Profile) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	if s.taken[p.Username] {
		return domain.ErrUsernameTaken
	}
	s.byID[p.ID] = p
	return nil
}

func (s *stubProfiles) TopProfiles(context.Context, int) ([]domain.Profile, error) { return nil, nil }

type stubSessions struct {
	stats domain.SessionStats
	err   error
}

func (s stubSessions) InsertFocusSession(_ context.Context, fs domain.FocusSession) (domain.FocusSession, error) {
	return fs, nil
}

func (s stubSessions) SessionStats(context.Context, string) (domain.SessionStats, error) {
	return s.stats, s.err
}

func newService(store *stubProfiles, sessions stubSessions) *Service {
	return NewService(store, sessions, WithRetryDelay(time.Millisecond), WithLogger(log.New(io.Discard, "", 0)))
}

func TestDefaultUsername(t *testing.T) {
	require.Equal(t, "ada", DefaultUsername(gateway.User{Username: " ada ", Email: "x@example.com"}))
	require.Equal(t, "grace", DefaultUsername(gateway.User{Email: "grace@example.com"}))
	require.Equal(t, "user", DefaultUsername(gateway.User{Email: "@example.com"}))
	require.Equal(t, "user", DefaultUsername(gateway.User{}))
}

func TestEnsureCreatesOnce(t *testing.T) {
	store := &stubProfiles{byID: map[string]domain.Profile{}}
	svc := newService(store, stubSessions{})
	user := gateway.User{ID: "u1", Email: "ada@example.com", Username: "ada"}

	p, err := svc.Ensure(context.Background(), user)
	require.NoError(t, err)
	require.Equal(t, domain.Profile{ID: "u1", Username: "ada", Email: "ada@example.com"}, p)

	store.byID["u1"] = domain.Profile{ID: "u1", Username: "ada", TotalXP: 750}
	p, err = svc.Ensure(context.Background(), user)
	require.NoError(t, err)
	require.Equal(t, 750, p.TotalXP)
}

func TestEnsureSuffixesTakenUsername(t *testing.T) {
	store := &stubProfiles{byID: map[string]domain.Profile{}, taken: map[string]bool{"grace": true}}
	svc := newService(store, stubSessions{})

	p, err := svc.Ensure(context.Background(), gateway.User{ID: "0f8a9c21-aaaa", Email: "grace@example.com"})
	require.NoError(t, err)
	require.Equal(t, "grace-0f8a9c", p.Username)
}

func TestLoadRetriesOnce(t *testing.T) {
	t.Run("appears on retry", func(t *testing.T) {
		store := &stubProfiles{byID: map[string]domain.Profile{}, appearOn: 2, pending: &domain.Profile{ID: "u1", TotalXP: 250}}
		p, err := newService(store, stubSessions{}).Load(context.Background(), "u1")
		require.NoError(t, err)
		require.Equal(t, 250, p.TotalXP)
		require.Equal(t, 2, store.gets)
	})

	t.Run("still missing", func(t *testing.T) {
		store := &stubProfiles{byID: map[string]domain.Profile{}}
		_, err := newService(store, stubSessions{}).Load(context.Background(), "u1")
		require.ErrorIs(t, err, domain.ErrProfileNotFound)
		require.Equal(t, 2, store.gets)
	})

	t.Run("policy rejection", func(t *testing.T) {
		store := &stubProfiles{byID: map[string]domain.Profile{}, getErr: domain.ErrForbidden}
		_, err := newService(store, stubSessions{}).Load(context.Background(), "u1")
		require.ErrorIs(t, err, domain.ErrForbidden)
		require.Equal(t, 1, store.gets)
	})

	t.Run("cancelled while waiting", func(t *testing.T) {
		store := &stubProfiles{byID: map[string]domain.Profile{}}
		svc := NewService(store, stubSessions{}, WithRetryDelay(time.Hour), WithLogger(log.New(io.Discard, "", 0)))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := svc.Load(ctx, "u1")
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestSummary(t *testing.T) {
	store := &stubProfiles{byID: map[string]domain.Profile{"u1": {ID: "u1", Username: "ada", TotalXP: 1250}}}
	svc := newService(store, stubSessions{stats: domain.SessionStats{Sessions: 5, Minutes: 125}})

	summary, err := svc.Summary(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, 3, summary.XP.Level)
	require.Equal(t, 250, summary.XP.ToNextLevel)
	require.Equal(t, 5, summary.Sessions)
	require.Equal(t, 125, summary.Minutes)

	_, err = newService(store, stubSessions{err: errors.New("offline")}).Summary(context.Background(), "u1")
	require.Error(t, err)
}
