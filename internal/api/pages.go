package api

import (
	"net/http"
	"time"

	"example.com/focusquest/internal/auth"
	"example.com/focusquest/internal/domain"
)

// PlannerResponse is the monthly planner page model.
type PlannerResponse struct {
	Month        string         `json:"month"`
	Tasks        []TaskView     `json:"tasks"`
	CountByDate  map[string]int `json:"count_by_date"`
	SelectedDate string         `json:"selected_date"`
	Selected     []TaskView     `json:"selected"`
	Divergent    []string       `json:"divergent"`
}

const monthLayout = "2006-01"

func (h *Handler) plannerMonth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	today := h.today()
	month := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	if raw := r.URL.Query().Get("month"); raw != "" {
		parsed, err := time.Parse(monthLayout, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "month must be YYYY-MM")
			return
		}
		month = parsed
	}
	selected := domain.DateOf(today, h.loc)
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := domain.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "date must be YYYY-MM-DD")
			return
		}
		selected = parsed
	}

	p := h.view(r).PlannerTasks
	if err := p.Load(r.Context(), domain.MonthScope(month.Year(), month.Month())); err != nil {
		h.writeFailure(w, "planner load", err)
		return
	}
	writeJSON(w, http.StatusOK, PlannerResponse{
		Month:        month.Format(monthLayout),
		Tasks:        toTaskViews(p.Tasks()),
		CountByDate:  p.CountByDate(),
		SelectedDate: domain.DateKey(selected),
		Selected:     toTaskViews(p.OnDate(selected)),
		Divergent:    p.Divergent(),
	})
}

func (h *Handler) plannerTasks(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	today := h.today()
	h.addTask(w, r, h.view(r).PlannerTasks, domain.MonthScope(today.Year(), today.Month()))
}

func (h *Handler) plannerTaskByID(w http.ResponseWriter, r *http.Request) {
	h.taskByID(w, r, "/planner/tasks/", h.view(r).PlannerTasks)
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if !h.board.Loaded() {
		if err := h.board.Reload(r.Context()); err != nil {
			h.writeFailure(w, "leaderboard", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, h.board.View(auth.FromContext(r.Context())))
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	userID, ok := auth.UserID(auth.FromContext(r.Context()))
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "sign in to view your profile")
		return
	}
	summary, err := h.profiles.Summary(r.Context(), userID)
	if err != nil {
		h.writeFailure(w, "profile", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
