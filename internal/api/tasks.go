package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"example.com/focusquest/internal/domain"
	"example.com/focusquest/internal/planner"
)

// TaskRequest is the payload for creating a task.
type TaskRequest struct {
	Title       string `json:"title"`
	Priority    string `json:"priority"`
	DurationMin int    `json:"duration_min"`
	DueDate     string `json:"due_date"` // YYYY-MM-DD, empty for undated
}

// TaskView is the wire form of a task.
type TaskView struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Completed       bool      `json:"completed"`
	Priority        string    `json:"priority"`
	DueDate         *string   `json:"due_date,omitempty"`
	DurationMin     int       `json:"duration_min"`
	SpentMin        int       `json:"spent_min"`
	ProgressPercent int       `json:"progress_percent"`
	CreatedAt       time.Time `json:"created_at"`
}

// FocusTasksResponse groups the focus page's tasks.
type FocusTasksResponse struct {
	Today     []TaskView `json:"today"`
	Upcoming  []TaskView `json:"upcoming"`
	Divergent []string   `json:"divergent"`
}

func toTaskView(t domain.Task) TaskView {
	view := TaskView{
		ID:              t.ID,
		Title:           t.Title,
		Completed:       t.Completed,
		Priority:        string(t.Priority),
		DurationMin:     t.DurationMin,
		SpentMin:        t.SpentMin,
		ProgressPercent: t.ProgressPercent(),
		CreatedAt:       t.CreatedAt,
	}
	if t.DueDate != nil {
		key := domain.DateKey(*t.DueDate)
		view.DueDate = &key
	}
	return view
}

func toTaskViews(tasks []domain.Task) []TaskView {
	out := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskView(t))
	}
	return out
}

// addTask creates a task in p, loading scope first if p has never been loaded.
func (h *Handler) addTask(w http.ResponseWriter, r *http.Request, p *planner.Planner, scope domain.TaskScope) {
	var req TaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in := planner.NewTask{Title: req.Title, Priority: req.Priority, DurationMin: req.DurationMin}
	if raw := strings.TrimSpace(req.DueDate); raw != "" {
		due, err := domain.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "due_date must be YYYY-MM-DD")
			return
		}
		in.DueDate = &due
	}

	if !p.Loaded() {
		if err := p.Load(r.Context(), scope); err != nil {
			h.writeFailure(w, "load tasks", err)
			return
		}
	}
	task, err := p.Add(r.Context(), in)
	if err != nil {
		h.writeFailure(w, "add task", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTaskView(task))
}

// taskByID serves POST <prefix><id>/toggle and DELETE <prefix><id>. A failed remote
// write leaves the local change in place and is reported with the mapped status.
func (h *Handler) taskByID(w http.ResponseWriter, r *http.Request, prefix string, p *planner.Planner) {
	id, action := taskRoute(r.URL.Path, prefix)
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing task id")
		return
	}

	switch {
	case action == "toggle" && r.Method == http.MethodPost:
		task, err := p.Toggle(r.Context(), id)
		if err != nil {
			if errors.Is(err, domain.ErrTaskNotFound) {
				h.writeFailure(w, "toggle task", err)
				return
			}
			h.writeSyncFailure(w, "toggle task", err, &task)
			return
		}
		writeJSON(w, http.StatusOK, toTaskView(task))
	case action == "" && r.Method == http.MethodDelete:
		if err := p.Remove(r.Context(), id); err != nil {
			h.writeSyncFailure(w, "remove task", err, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case action == "toggle" || action == "":
		methodNotAllowed(w)
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown task action")
	}
}

// SyncFailureResponse reports a remote write that failed after the local change was
// applied. Task carries the local state the viewer keeps.
type SyncFailureResponse struct {
	Type   string    `json:"type"`
	Detail string    `json:"detail"`
	Task   *TaskView `json:"task,omitempty"`
}

func (h *Handler) writeSyncFailure(w http.ResponseWriter, op string, err error, task *domain.Task) {
	var syncErr *planner.SyncError
	if errors.As(err, &syncErr) {
		h.logger.Printf("%s diverged (task=%s): %v", op, syncErr.TaskID, syncErr.Err)
	}
	status, code, detail := h.classify(op, err)
	resp := SyncFailureResponse{Type: code, Detail: detail}
	if task != nil {
		view := toTaskView(*task)
		resp.Task = &view
	}
	writeJSON(w, status, resp)
}
