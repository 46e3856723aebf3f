package api

import (
	"net/http"

	"example.com/focusquest/internal/account"
	"example.com/focusquest/internal/auth"
)

// SignInRequest is the payload for POST /login.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignInResponse tells the client where to go after signing in.
type SignInResponse struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
	Redirect string `json:"redirect"`
}

// SignUpResponse reports an account waiting for email verification.
type SignUpResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Status string `json:"status"`
}

// EmailRequest is the payload for POST /forgot-password.
type EmailRequest struct {
	Email string `json:"email"`
}

// PasswordRequest is the payload for POST /reset-password.
type PasswordRequest struct {
	Password string `json:"password"`
}

func (h *Handler) signUp(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req account.SignUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.accounts.SignUp(r.Context(), req)
	if err != nil {
		h.writeFailure(w, "sign-up", err)
		return
	}
	writeJSON(w, http.StatusCreated, SignUpResponse{UserID: user.ID, Email: user.Email, Status: "pending_verification"})
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req SignInRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	session, err := h.accounts.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeFailure(w, "sign-in", err)
		return
	}
	auth.SetSessionCookie(w, h.sessionCookie, session.AccessToken, session.ExpiresAt)
	resp := SignInResponse{UserID: session.User.ID, Email: session.User.Email, Redirect: h.landingPath}
	if h.directory != nil {
		if name, err := h.directory.Username(r.Context(), session.User.ID); err == nil {
			resp.Username = name
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	result, err := h.accounts.Callback(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		h.writeFailure(w, "callback", err)
		return
	}
	auth.SetSessionCookie(w, h.sessionCookie, result.Session.AccessToken, result.Session.ExpiresAt)
	target := h.landingPath
	if result.Recovery {
		target = account.ResetPasswordPath
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req EmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.accounts.ForgotPassword(r.Context(), req.Email); err != nil {
		h.writeFailure(w, "forgot-password", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reset_email_sent"})
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req PasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	claims, _ := auth.ClaimsFromContext(r.Context())
	if err := h.accounts.ResetPassword(r.Context(), claims, req.Password); err != nil {
		h.writeFailure(w, "reset-password", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) signOut(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	claims, _ := auth.ClaimsFromContext(r.Context())
	if err := h.accounts.SignOut(r.Context(), claims); err != nil {
		h.logger.Printf("sign-out: %v", err)
	}
	auth.ClearSessionCookie(w, h.sessionCookie)
	w.WriteHeader(http.StatusNoContent)
}
