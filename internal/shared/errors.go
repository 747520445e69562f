package shared

import "errors"

var (
	// ErrNotFound indicates the referenced record is absent or soft-deleted.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness or duplicate-assignment violation.
	ErrConflict = errors.New("conflict")
	// ErrForbidden indicates the subject lacks the required permission.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidInput indicates a malformed identifier or empty required field.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnauthorized indicates a missing or expired session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
