package api

import (
	"errors"
	"net/http"

	"example.com/focusquest/internal/account"
	"example.com/focusquest/internal/domain"
	"example.com/focusquest/internal/focus"
	"example.com/focusquest/internal/gateway"
)

// writeFailure maps an operation error onto a status and a displayable message.
// Policy rejections are deliberately reported without detail.
func (h *Handler) writeFailure(w http.ResponseWriter, op string, err error) {
	status, code, detail := h.classify(op, err)
	writeError(w, status, code, detail)
}

func (h *Handler) classify(op string, err error) (int, string, string) {
	var authErr *gateway.AuthError
	switch {
	case errors.As(err, &authErr):
		return authStatus(authErr.Kind), string(authErr.Kind), authMessage(authErr)
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden", "Operation failed."
	case errors.Is(err, account.ErrRecoveryRequired):
		return http.StatusUnauthorized, "recovery_required", err.Error()
	case errors.Is(err, domain.ErrEmptyTitle),
		errors.Is(err, domain.ErrInvalidPriority),
		errors.Is(err, domain.ErrUsernameTaken),
		errors.Is(err, account.ErrMissingFields),
		errors.Is(err, focus.ErrInvalidDuration):
		return http.StatusBadRequest, "validation_failed", err.Error()
	case errors.Is(err, domain.ErrTaskNotFound), errors.Is(err, domain.ErrProfileNotFound):
		return http.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, focus.ErrCompletionInFlight),
		errors.Is(err, focus.ErrNotIdle),
		errors.Is(err, focus.ErrClosed):
		return http.StatusConflict, "conflict", err.Error()
	default:
		h.logger.Printf("%s failed: %v", op, err)
		return http.StatusBadGateway, "upstream_error", "Something went wrong. Please try again."
	}
}

func authStatus(kind gateway.ErrorKind) int {
	switch kind {
	case gateway.KindUserExists, gateway.KindWeakPassword:
		return http.StatusBadRequest
	case gateway.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusUnauthorized
	}
}

func authMessage(err *gateway.AuthError) string {
	switch err.Kind {
	case gateway.KindInvalidCredentials:
		return "Invalid email or password."
	case gateway.KindEmailNotConfirmed:
		return "Please confirm your email before signing in."
	case gateway.KindLinkExpired:
		return "This link is invalid or has expired."
	}
	if err.Message != "" {
		return err.Message
	}
	return err.Error()
}
