package shared

import "errors"

var (
	// ErrUnauthenticated indicates a missing, unknown or expired session token.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden indicates an authenticated actor lacking the required capability.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a linkage invariant violation.
	ErrConflict = errors.New("conflict")
	// ErrUnavailable indicates a backing store failure. Callers may retry.
	ErrUnavailable = errors.New("unavailable")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing indicates a mutating request without a CSRF token.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch indicates a CSRF token not matching the session.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
