package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// guestCookieMaxAge keeps a guest id for a year; guest data itself never outlives the process.
const guestCookieMaxAge = 365 * 24 * 60 * 60

// Skipper allows callers to bypass identity resolution for specific requests.
type Skipper func(r *http.Request) bool

// Middleware resolves the visitor's Identity from the session cookie or bearer header.
// It never rejects a request: missing or invalid sessions resolve to Anonymous and the
// route gate decides what that means.
type Middleware struct {
	Config        Config
	SessionCookie string
	GuestCookie   string
	Skipper       Skipper
}

// NewMiddleware constructs a middleware with optional skipper.
func NewMiddleware(cfg Config, sessionCookie, guestCookie string, skipper Skipper) Middleware {
	return Middleware{Config: cfg, SessionCookie: sessionCookie, GuestCookie: guestCookie, Skipper: skipper}
}

// Wrap wraps an http.Handler with identity resolution.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skipper != nil && m.Skipper(r) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		claims, err := Parse(m.token(r), m.Config)
		if err == nil {
			ctx = WithClaims(ctx, claims)
			ctx = WithIdentity(ctx, Authenticated{ID: claims.Subject, Email: claims.Email})
		} else {
			ctx = WithIdentity(ctx, Anonymous{GuestID: m.guestID(w, r)})
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m Middleware) token(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if strings.HasPrefix(strings.ToLower(header), "bearer ") {
			return strings.TrimSpace(header[len("Bearer "):])
		}
		return ""
	}
	if m.SessionCookie == "" {
		return ""
	}
	cookie, err := r.Cookie(m.SessionCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// guestID returns the visitor's guest id, issuing a fresh one when the cookie is
// missing or malformed.
func (m Middleware) guestID(w http.ResponseWriter, r *http.Request) string {
	if m.GuestCookie != "" {
		if cookie, err := r.Cookie(m.GuestCookie); err == nil {
			if _, parseErr := uuid.Parse(cookie.Value); parseErr == nil {
				return cookie.Value
			}
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	if m.GuestCookie != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     m.GuestCookie,
			Value:    id.String(),
			Path:     "/",
			MaxAge:   guestCookieMaxAge,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return id.String()
}

// SetSessionCookie persists a session token for subsequent requests.
func SetSessionCookie(w http.ResponseWriter, name, token string, expiresAt time.Time) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if !expiresAt.IsZero() {
		cookie.Expires = expiresAt
	}
	http.SetCookie(w, cookie)
}

// ClearSessionCookie removes the session token.
func ClearSessionCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
}
