package gateway

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an auth service rejection.
type ErrorKind string

const (
	KindInvalidCredentials ErrorKind = "invalid_credentials"
	KindEmailNotConfirmed  ErrorKind = "email_not_confirmed"
	KindLinkExpired        ErrorKind = "link_expired"
	KindUserExists         ErrorKind = "user_exists"
	KindWeakPassword       ErrorKind = "weak_password"
	KindUnauthorized       ErrorKind = "unauthorized"
	KindRateLimited        ErrorKind = "rate_limited"
	KindUnknown            ErrorKind = "unknown"
)

// AuthError is a non-2xx answer from the auth service.
type AuthError struct {
	Status  int
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("auth service: %s (status %d)", e.Kind, e.Status)
	}
	return fmt.Sprintf("auth service: %s (status %d): %s", e.Kind, e.Status, e.Message)
}

// IsKind reports whether err is an AuthError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Kind == kind
}

func classify(status int, code, message string) ErrorKind {
	switch code {
	case "invalid_credentials", "invalid_grant":
		if message == "Email not confirmed" {
			return KindEmailNotConfirmed
		}
		return KindInvalidCredentials
	case "email_not_confirmed":
		return KindEmailNotConfirmed
	case "otp_expired", "flow_state_expired", "flow_state_not_found", "bad_code_verifier", "bad_jwt":
		return KindLinkExpired
	case "user_already_exists", "email_exists":
		return KindUserExists
	case "weak_password":
		return KindWeakPassword
	case "over_request_rate_limit", "over_email_send_rate_limit":
		return KindRateLimited
	}
	switch status {
	case 401, 403:
		return KindUnauthorized
	case 429:
		return KindRateLimited
	}
	return KindUnknown
}
