package auth

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{Secret: "test-secret", Issuer: "focusquest.test"}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testConfig.Secret))
	require.NoError(t, err)
	return token
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":           "user-1",
		"email":         "ada@example.com",
		"iss":           testConfig.Issuer,
		"exp":           time.Now().Add(time.Hour).Unix(),
		"user_metadata": map[string]interface{}{"username": "ada"},
	}
}

func TestParseExtractsClaims(t *testing.T) {
	token := signToken(t, validClaims())

	claims, err := Parse(token, testConfig)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "ada@example.com", claims.Email)
	require.Equal(t, "ada", claims.Username)
	require.False(t, claims.Recovery)
	require.Equal(t, token, claims.Token)
}

func TestParseDetectsRecoverySessions(t *testing.T) {
	raw := validClaims()
	raw["amr"] = []interface{}{map[string]interface{}{"method": "recovery", "timestamp": 1}}

	claims, err := Parse(signToken(t, raw), testConfig)
	require.NoError(t, err)
	require.True(t, claims.Recovery)
}

func TestParseRejectsBadTokens(t *testing.T) {
	_, err := Parse("  ", testConfig)
	require.ErrorIs(t, err, ErrMissingToken)

	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Minute).Unix()
	_, err = Parse(signToken(t, expired), testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer := validClaims()
	wrongIssuer["iss"] = "someone-else"
	_, err = Parse(signToken(t, wrongIssuer), testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)

	noSubject := validClaims()
	delete(noSubject, "sub")
	_, err = Parse(signToken(t, noSubject), testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddlewareResolvesAuthenticatedFromCookie(t *testing.T) {
	mw := NewMiddleware(testConfig, "session", "guest", nil)
	var seen Identity
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		claims, ok := ClaimsFromContext(r.Context())
		require.True(t, ok)
		require.Equal(t, "ada", claims.Username)
	}))

	req := httptest.NewRequest(http.MethodGet, "/focus", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: signToken(t, validClaims())})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, Authenticated{ID: "user-1", Email: "ada@example.com"}, seen)
	require.Empty(t, rr.Result().Cookies(), "authenticated visitors get no guest cookie")
}

func TestMiddlewareIssuesGuestIdentity(t *testing.T) {
	mw := NewMiddleware(testConfig, "session", "guest", nil)
	var seen Identity
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/focus", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	guest, ok := seen.(Anonymous)
	require.True(t, ok)
	require.NotEmpty(t, guest.GuestID)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, "guest", cookies[0].Name)
	require.Equal(t, guest.GuestID, cookies[0].Value)

	// The issued id is reused on the next visit.
	req2 := httptest.NewRequest(http.MethodGet, "/focus", nil)
	req2.AddCookie(cookies[0])
	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, req2)
	require.Equal(t, guest, seen)
	require.Empty(t, rr2.Result().Cookies())
}

func TestMiddlewareSkipper(t *testing.T) {
	mw := NewMiddleware(testConfig, "session", "guest", func(r *http.Request) bool { return r.URL.Path == "/healthz" })
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, Anonymous{}, FromContext(r.Context()))
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Empty(t, rr.Result().Cookies())
}

func testPolicy() RoutePolicy {
	return RoutePolicy{
		Protected:   []string{"/profile", "/leaderboard", "/planner"},
		AuthOnly:    []string{"/login", "/signup", "/forgot-password"},
		LoginPath:   "/login",
		LandingPath: "/focus",
	}
}

func TestGateRedirectsAnonymousFromProtectedPaths(t *testing.T) {
	gate := NewGate(testPolicy())
	handler := gate.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/profile", "/leaderboard", "/planner/tasks"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req = req.WithContext(WithIdentity(req.Context(), Anonymous{GuestID: "g"}))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		require.Equal(t, http.StatusTemporaryRedirect, rr.Code, path)
		require.Equal(t, "/login", rr.Header().Get("Location"), path)
	}
}

func TestGateRedirectsAuthenticatedFromAuthPages(t *testing.T) {
	gate := NewGate(testPolicy())
	handler := gate.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req = req.WithContext(WithIdentity(req.Context(), Authenticated{ID: "user-1"}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusTemporaryRedirect, rr.Code)
	require.Equal(t, "/focus", rr.Header().Get("Location"))
}

func TestGateAllowsEverythingElse(t *testing.T) {
	policy := testPolicy()
	cases := []struct {
		path string
		id   Identity
	}{
		{"/focus", Anonymous{}},
		{"/login", Anonymous{}},
		{"/profiles", Anonymous{}},
		{"/profile", Authenticated{ID: "u"}},
		{"/reset-password", Authenticated{ID: "u"}},
	}
	for _, tc := range cases {
		_, redirect := policy.Redirect(tc.path, tc.id)
		require.False(t, redirect, tc.path)
	}
}

func TestFeedDeliversInOrderAndUnsubscribes(t *testing.T) {
	feed := NewFeed(nil)
	defer feed.Close()

	var mu sync.Mutex
	var got []Event
	done := make(chan struct{})
	unsubscribe := feed.Subscribe(func(change StateChange) {
		mu.Lock()
		got = append(got, change.Event)
		n := len(got)
		mu.Unlock()
		if n == 3 {
			close(done)
		}
	})

	feed.Publish(StateChange{Event: EventSignedIn, Identity: Authenticated{ID: "u"}})
	feed.Publish(StateChange{Event: EventPasswordRecovery, Identity: Authenticated{ID: "u"}})
	feed.Publish(StateChange{Event: EventSignedOut, Identity: Authenticated{ID: "u"}})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not receive all changes")
	}
	mu.Lock()
	require.Equal(t, []Event{EventSignedIn, EventPasswordRecovery, EventSignedOut}, got)
	mu.Unlock()

	unsubscribe()
	unsubscribe()
	feed.Publish(StateChange{Event: EventSignedIn})
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	require.Len(t, got, 3)
	mu.Unlock()
}

func TestFeedSurvivesPanickingSubscriber(t *testing.T) {
	feed := NewFeed(nil)
	defer feed.Close()

	received := make(chan Event, 2)
	feed.Subscribe(func(change StateChange) {
		if change.Event == EventSignedIn {
			panic("boom")
		}
		received <- change.Event
	})

	feed.Publish(StateChange{Event: EventSignedIn})
	feed.Publish(StateChange{Event: EventSignedOut})

	select {
	case ev := <-received:
		require.Equal(t, EventSignedOut, ev)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber stopped after panic")
	}
}
