// Package api exposes the focusquest HTTP surface.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"example.com/focusquest/internal/account"
	"example.com/focusquest/internal/leaderboard"
	"example.com/focusquest/internal/profile"
	"example.com/focusquest/internal/views"
)

// Deps are the collaborators a Handler needs.
type Deps struct {
	Views       *views.Registry
	Accounts    *account.Service
	Directory   *account.Directory
	Profiles    *profile.Service
	Leaderboard *leaderboard.Board

	SessionCookie string
	LandingPath   string
	Location      *time.Location
	Logger        *log.Logger
	Now           func() time.Time
}

// Handler coordinates HTTP requests with the views and account flows.
type Handler struct {
	views     *views.Registry
	accounts  *account.Service
	directory *account.Directory
	profiles  *profile.Service
	board     *leaderboard.Board

	sessionCookie string
	landingPath   string
	loc           *time.Location
	logger        *log.Logger
	now           func() time.Time
}

// NewHandler builds a Handler.
func NewHandler(deps Deps) *Handler {
	h := &Handler{
		views:         deps.Views,
		accounts:      deps.Accounts,
		directory:     deps.Directory,
		profiles:      deps.Profiles,
		board:         deps.Leaderboard,
		sessionCookie: deps.SessionCookie,
		landingPath:   deps.LandingPath,
		loc:           deps.Location,
		logger:        deps.Logger,
		now:           deps.Now,
	}
	if h.loc == nil {
		h.loc = time.UTC
	}
	if h.logger == nil {
		h.logger = log.New(log.Writer(), "[api] ", log.LstdFlags)
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.landingPath == "" {
		h.landingPath = "/focus"
	}
	return h
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", healthz)

	mux.HandleFunc("/signup", h.signUp)
	mux.HandleFunc("/login", h.signIn)
	mux.HandleFunc("/callback", h.callback)
	mux.HandleFunc("/forgot-password", h.forgotPassword)
	mux.HandleFunc("/reset-password", h.resetPassword)
	mux.HandleFunc("/logout", h.signOut)

	mux.HandleFunc("/focus", h.focus)
	mux.HandleFunc("/focus/start", h.focusStart)
	mux.HandleFunc("/focus/stop", h.focusStop)
	mux.HandleFunc("/focus/reset", h.focusReset)
	mux.HandleFunc("/focus/duration", h.focusDuration)
	mux.HandleFunc("/focus/active-task", h.focusActiveTask)
	mux.HandleFunc("/focus/tasks", h.focusTasks)
	mux.HandleFunc("/focus/tasks/", h.focusTaskByID)

	mux.HandleFunc("/planner", h.plannerMonth)
	mux.HandleFunc("/planner/tasks", h.plannerTasks)
	mux.HandleFunc("/planner/tasks/", h.plannerTaskByID)

	mux.HandleFunc("/leaderboard", h.leaderboard)
	mux.HandleFunc("/profile", h.profile)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) today() time.Time {
	return h.now().In(h.loc)
}

// taskRoute splits "<id>" or "<id>/toggle" out of a path below prefix.
func taskRoute(path, prefix string) (id, action string) {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	id, action, _ = strings.Cut(rest, "/")
	return id, action
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return false
	}
	return true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		methodNotAllowed(w)
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
