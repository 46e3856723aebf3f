package account

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"example.com/focusquest/internal/auth"
	"example.com/focusquest/internal/domain"
	"example.com/focusquest/internal/gateway"
	"example.com/focusquest/internal/profile"
)

var tokens = auth.Config{Secret: "test-secret", Issuer: "focusquest.test"}

func sessionToken(t *testing.T, userID string, recovery bool) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   userID,
		"email": "ada@example.com",
		"iss":   tokens.Issuer,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	if recovery {
		claims["amr"] = []interface{}{"recovery"}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(tokens.Secret))
	require.NoError(t, err)
	return signed
}

type stubAuth struct {
	mu         sync.Mutex
	redirects  []string
	signUps    []string
	updated    []string
	signedOut  []string
	session    gateway.Session
	err        error
	signOutErr error
}

func (s *stubAuth) SignUp(_ context.Context, email, _, username, redirectTo string) (gateway.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redirects = append(s.redirects, redirectTo)
	s.signUps = append(s.signUps, username)
	if s.err != nil {
		return gateway.User{}, s.err
	}
	return gateway.User{ID: "new-user", Email: email, Username: username}, nil
}

func (s *stubAuth) SignIn(context.Context, string, string) (gateway.Session, error) {
	return s.session, s.err
}

func (s *stubAuth) ExchangeCode(context.Context, string) (gateway.Session, error) {
	return s.session, s.err
}

func (s *stubAuth) SendPasswordReset(_ context.Context, _, redirectTo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redirects = append(s.redirects, redirectTo)
	return s.err
}

func (s *stubAuth) UpdatePassword(_ context.Context, token, _ string) error {
	s.updated = append(s.updated, token)
	return s.err
}

func (s *stubAuth) SignOut(_ context.Context, token string) error {
	s.signedOut = append(s.signedOut, token)
	return s.signOutErr
}

func (s *stubAuth) CurrentUser(context.Context, string) (gateway.User, error) {
	return s.session.User, s.err
}

type memProfiles struct {
	mu   sync.Mutex
	byID map[string]domain.Profile
}

func newMemProfiles(profiles ...domain.Profile) *memProfiles {
	m := &memProfiles{byID: make(map[string]domain.Profile)}
	for _, p := range profiles {
		m.byID[p.ID] = p
	}
	return m
}

func (m *memProfiles) GetProfile(_ context.Context, id string) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.byID[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (m *memProfiles) FindProfileByUsername(_ context.Context, username string) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		if p.Username == username {
			return &p, nil
		}
	}
	return nil, nil
}

func (m *memProfiles) InsertProfile(_ context.Context, p domain.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[p.ID] = p
	return nil
}

func (m *memProfiles) TopProfiles(context.Context, int) ([]domain.Profile, error) { return nil, nil }

type fixture struct {
	svc      *Service
	backend  *stubAuth
	profiles *memProfiles
	changes  chan auth.StateChange
}

func newFixture(t *testing.T, backend *stubAuth, profiles *memProfiles) fixture {
	t.Helper()
	quiet := log.New(io.Discard, "", 0)
	feed := auth.NewFeed(quiet)
	t.Cleanup(feed.Close)
	changes := make(chan auth.StateChange, 8)
	feed.Subscribe(func(c auth.StateChange) { changes <- c })

	gw := &gateway.Gateway{Auth: backend, Profiles: profiles}
	ensure := profile.NewService(profiles, nil, profile.WithLogger(quiet))
	svc := NewService(gw, ensure, feed, tokens, "https://focus.example.com/", WithLogger(quiet))
	return fixture{svc: svc, backend: backend, profiles: profiles, changes: changes}
}

func (f fixture) next(t *testing.T) auth.StateChange {
	t.Helper()
	select {
	case c := <-f.changes:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no auth state change published")
		return auth.StateChange{}
	}
}

func TestSignUpValidatesAndChecksUsername(t *testing.T) {
	f := newFixture(t, &stubAuth{}, newMemProfiles(domain.Profile{ID: "u0", Username: "taken"}))
	ctx := context.Background()

	_, err := f.svc.SignUp(ctx, SignUpRequest{Email: "a@example.com", Password: "pw"})
	require.ErrorIs(t, err, ErrMissingFields)
	_, err = f.svc.SignUp(ctx, SignUpRequest{Email: "a@example.com", Password: "pw", Username: "taken"})
	require.ErrorIs(t, err, domain.ErrUsernameTaken)
	require.Empty(t, f.backend.signUps)

	user, err := f.svc.SignUp(ctx, SignUpRequest{Email: " a@example.com ", Password: "pw", Username: " ada "})
	require.NoError(t, err)
	require.Equal(t, "ada", user.Username)
	require.Equal(t, []string{"https://focus.example.com/callback"}, f.backend.redirects)
}

func TestSignInEnsuresProfileAndPublishes(t *testing.T) {
	backend := &stubAuth{session: gateway.Session{
		AccessToken: "token",
		User:        gateway.User{ID: "u1", Email: "grace@example.com"},
	}}
	f := newFixture(t, backend, newMemProfiles())

	session, err := f.svc.SignIn(context.Background(), "grace@example.com", "pw")
	require.NoError(t, err)
	require.Equal(t, "token", session.AccessToken)

	change := f.next(t)
	require.Equal(t, auth.EventSignedIn, change.Event)
	require.Equal(t, auth.Authenticated{ID: "u1", Email: "grace@example.com"}, change.Identity)
	require.Equal(t, "grace", change.Username)

	p, err := f.profiles.GetProfile(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Zero(t, p.TotalXP)
}

func TestSignInFailureDoesNotPublish(t *testing.T) {
	backend := &stubAuth{err: &gateway.AuthError{Status: 400, Kind: gateway.KindInvalidCredentials}}
	f := newFixture(t, backend, newMemProfiles())

	_, err := f.svc.SignIn(context.Background(), "a@example.com", "wrong")
	require.True(t, gateway.IsKind(err, gateway.KindInvalidCredentials))
	select {
	case c := <-f.changes:
		t.Fatalf("unexpected change %v", c.Event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCallbackDistinguishesRecovery(t *testing.T) {
	user := gateway.User{ID: "u1", Email: "ada@example.com", Username: "ada"}

	backend := &stubAuth{session: gateway.Session{AccessToken: sessionToken(t, "u1", true), User: user}}
	f := newFixture(t, backend, newMemProfiles(domain.Profile{ID: "u1", Username: "ada"}))
	result, err := f.svc.Callback(context.Background(), "code-1")
	require.NoError(t, err)
	require.True(t, result.Recovery)
	require.Equal(t, auth.EventPasswordRecovery, f.next(t).Event)

	backend.session.AccessToken = sessionToken(t, "u1", false)
	result, err = f.svc.Callback(context.Background(), "code-2")
	require.NoError(t, err)
	require.False(t, result.Recovery)
	require.Equal(t, auth.EventSignedIn, f.next(t).Event)

	_, err = f.svc.Callback(context.Background(), " ")
	require.ErrorIs(t, err, ErrMissingFields)
}

func TestPasswordRecovery(t *testing.T) {
	f := newFixture(t, &stubAuth{}, newMemProfiles())
	ctx := context.Background()

	require.NoError(t, f.svc.ForgotPassword(ctx, "ada@example.com"))
	require.Equal(t, []string{"https://focus.example.com/reset-password"}, f.backend.redirects)

	require.ErrorIs(t, f.svc.ResetPassword(ctx, nil, "new"), ErrRecoveryRequired)
	require.ErrorIs(t, f.svc.ResetPassword(ctx, &auth.Claims{Subject: "u1", Token: "t"}, "new"), ErrRecoveryRequired)
	require.ErrorIs(t, f.svc.ResetPassword(ctx, &auth.Claims{Subject: "u1", Token: "t", Recovery: true}, ""), ErrMissingFields)
	require.NoError(t, f.svc.ResetPassword(ctx, &auth.Claims{Subject: "u1", Token: "t", Recovery: true}, "new"))
	require.Equal(t, []string{"t"}, f.backend.updated)
}

func TestSignOutPublishesEvenWhenRemoteFails(t *testing.T) {
	f := newFixture(t, &stubAuth{signOutErr: errors.New("offline")}, newMemProfiles())

	err := f.svc.SignOut(context.Background(), &auth.Claims{Subject: "u1", Token: "t", Username: "ada"})
	require.Error(t, err)
	change := f.next(t)
	require.Equal(t, auth.EventSignedOut, change.Event)
	require.Equal(t, []string{"t"}, f.backend.signedOut)
}

func TestDirectoryFollowsFeed(t *testing.T) {
	quiet := log.New(io.Discard, "", 0)
	feed := auth.NewFeed(quiet)
	defer feed.Close()
	profiles := newMemProfiles(domain.Profile{ID: "u2", Username: "bob"})
	dir := NewDirectory(feed, profiles)
	defer dir.Close()
	ctx := context.Background()

	feed.Publish(auth.StateChange{Event: auth.EventSignedIn, Identity: auth.Authenticated{ID: "u1"}, Username: "ada"})
	require.Eventually(t, func() bool {
		name, err := dir.Username(ctx, "u1")
		return err == nil && name == "ada"
	}, time.Second, 5*time.Millisecond)

	name, err := dir.Username(ctx, "u2")
	require.NoError(t, err)
	require.Equal(t, "bob", name)

	_, err = dir.Username(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrProfileNotFound)

	feed.Publish(auth.StateChange{Event: auth.EventSignedOut, Identity: auth.Authenticated{ID: "u1"}})
	require.Eventually(t, func() bool {
		_, err := dir.Username(ctx, "u1")
		return errors.Is(err, domain.ErrProfileNotFound)
	}, time.Second, 5*time.Millisecond)
}
