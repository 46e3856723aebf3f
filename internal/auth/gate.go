package auth

import (
	"net/http"
	"strings"
)

// RoutePolicy declares which paths require a session and which are only for visitors
// without one. Paths match on whole segments: "/profile" covers "/profile" and
// "/profile/edit" but not "/profiles".
type RoutePolicy struct {
	Protected   []string
	AuthOnly    []string
	LoginPath   string
	LandingPath string
}

// Redirect returns where the visitor must be sent instead of path, if anywhere.
func (p RoutePolicy) Redirect(path string, id Identity) (string, bool) {
	authenticated := IsAuthenticated(id)
	if !authenticated && matchesAny(path, p.Protected) {
		return p.LoginPath, p.LoginPath != ""
	}
	if authenticated && matchesAny(path, p.AuthOnly) {
		return p.LandingPath, p.LandingPath != ""
	}
	return "", false
}

// Gate enforces a RoutePolicy. It must run after Middleware so the identity is resolved.
type Gate struct {
	Policy RoutePolicy
}

// NewGate constructs a Gate.
func NewGate(policy RoutePolicy) Gate {
	return Gate{Policy: policy}
}

// Wrap attaches route guarding to an http.Handler.
func (g Gate) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if target, ok := g.Policy.Redirect(r.URL.Path, FromContext(r.Context())); ok {
			http.Redirect(w, r, target, http.StatusTemporaryRedirect)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func matchesAny(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		prefix = strings.TrimRight(prefix, "/")
		if prefix == "" {
			continue
		}
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}
