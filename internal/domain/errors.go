package domain

import "errors"

var (
	// ErrForbidden is returned when the data store's row-level policy rejects an operation.
	ErrForbidden = errors.New("operation not permitted")
	// ErrTaskNotFound is returned when a task does not exist for the calling user.
	ErrTaskNotFound = errors.New("task not found")
	// ErrEmptyTitle rejects tasks whose title is blank.
	ErrEmptyTitle = errors.New("task title is required")
	// ErrInvalidPriority rejects priorities outside low/medium/high.
	ErrInvalidPriority = errors.New("priority must be low, medium or high")
	// ErrUsernameTaken is returned when sign-up picks a username already in use.
	ErrUsernameTaken = errors.New("username already taken")
)

// ErrProfileNotFound is returned when a user has no profile row yet.
var ErrProfileNotFound = errors.New("profile not found")
