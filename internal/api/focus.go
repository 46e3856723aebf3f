package api

import (
	"net/http"

	"example.com/focusquest/internal/auth"
	"example.com/focusquest/internal/domain"
	"example.com/focusquest/internal/views"
)

// DurationRequest is the payload for PUT /focus/duration.
type DurationRequest struct {
	Minutes int `json:"minutes"`
}

// ActiveTaskRequest is the payload for PUT /focus/active-task. An empty id clears it.
type ActiveTaskRequest struct {
	TaskID string `json:"task_id"`
}

func (h *Handler) view(r *http.Request) *views.View {
	return h.views.Get(r.Context(), auth.FromContext(r.Context()))
}

func (h *Handler) focus(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getFocus(w, r)
	case http.MethodDelete:
		h.views.Drop(auth.FromContext(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

// getFocus seeds the engine's XP from the profile. A profile that cannot be read does
// not block the timer.
func (h *Handler) getFocus(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	v := h.views.Get(r.Context(), id)
	if userID, ok := auth.UserID(id); ok && h.profiles != nil {
		p, err := h.profiles.Load(r.Context(), userID)
		if err != nil {
			h.logger.Printf("focus profile load (user=%s): %v", userID, err)
		} else {
			v.Engine.SetTotalXP(p.TotalXP)
		}
	}
	writeJSON(w, http.StatusOK, v.Engine.Snapshot())
}

func (h *Handler) focusStart(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	engine := h.view(r).Engine
	if err := engine.Start(); err != nil {
		h.writeFailure(w, "focus start", err)
		return
	}
	writeJSON(w, http.StatusOK, engine.Snapshot())
}

func (h *Handler) focusStop(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	engine := h.view(r).Engine
	engine.Stop()
	writeJSON(w, http.StatusOK, engine.Snapshot())
}

func (h *Handler) focusReset(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	engine := h.view(r).Engine
	engine.Reset()
	writeJSON(w, http.StatusOK, engine.Snapshot())
}

func (h *Handler) focusDuration(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPut) {
		return
	}
	var req DurationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	engine := h.view(r).Engine
	if err := engine.SetDuration(r.Context(), req.Minutes); err != nil {
		h.writeFailure(w, "focus duration", err)
		return
	}
	writeJSON(w, http.StatusOK, engine.Snapshot())
}

func (h *Handler) focusActiveTask(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPut) {
		return
	}
	var req ActiveTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	v := h.view(r)
	if req.TaskID != "" {
		if _, ok := v.FocusTasks.Task(req.TaskID); !ok {
			h.writeFailure(w, "focus active task", domain.ErrTaskNotFound)
			return
		}
	}
	v.Engine.SetActiveTask(req.TaskID)
	writeJSON(w, http.StatusOK, v.Engine.Snapshot())
}

func (h *Handler) focusTasks(w http.ResponseWriter, r *http.Request) {
	v := h.view(r)
	scope := domain.UpcomingScope(h.today())
	switch r.Method {
	case http.MethodGet:
		if err := v.FocusTasks.Load(r.Context(), scope); err != nil {
			h.writeFailure(w, "focus tasks", err)
			return
		}
		groups := v.FocusTasks.Groups(h.today())
		writeJSON(w, http.StatusOK, FocusTasksResponse{
			Today:     toTaskViews(groups.Today),
			Upcoming:  toTaskViews(groups.Upcoming),
			Divergent: v.FocusTasks.Divergent(),
		})
	case http.MethodPost:
		h.addTask(w, r, v.FocusTasks, scope)
	default:
		methodNotAllowed(w)
	}
}

func (h *Handler) focusTaskByID(w http.ResponseWriter, r *http.Request) {
	h.taskByID(w, r, "/focus/tasks/", h.view(r).FocusTasks)
}
