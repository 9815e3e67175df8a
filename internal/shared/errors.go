package shared

import "errors"

var (
	// ErrNotFound indicates a resource could not be located.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAuthRequired indicates the caller has no authenticated session.
	ErrAuthRequired = errors.New("authentication required")
	// ErrFirmAccessDenied indicates the caller holds no access to the firm.
	ErrFirmAccessDenied = errors.New("firm access denied")
	// ErrCSRFTokenMissing occurs when the CSRF token is missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
