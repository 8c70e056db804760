package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")

	// ErrUnauthenticated means the request carries no valid session token.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden means the caller is authenticated but lacks the permission.
	ErrForbidden = errors.New("forbidden")
	// ErrUserNotFound is returned when a user id does not resolve.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserInactive is returned for soft-deactivated users.
	ErrUserInactive = errors.New("user inactive")
	// ErrRoleNotFound is returned when a role id or name does not resolve.
	ErrRoleNotFound = errors.New("role not found")
	// ErrUnknownPermission is returned for codes outside the registry.
	ErrUnknownPermission = errors.New("unknown permission code")
	// ErrRateLimited means a per-user quota was exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrStoreUnavailable wraps permission store or cache connectivity failures.
	ErrStoreUnavailable = errors.New("store unavailable")
)
