package errors

import (
	"errors"
	"fmt"
)

// Common error types shared by the session layer and the gateway
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserBlocked        = errors.New("user is blocked")
	ErrUserNotFound       = errors.New("user not found")
	ErrRateLimited        = errors.New("too many attempts")

	// Token errors
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")
	ErrTokenRevoked        = errors.New("token revoked")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	ErrMalformedResponse   = errors.New("malformed auth response")

	// Session errors
	ErrSessionExpired = errors.New("session expired")
	ErrNotLoggedIn    = errors.New("not logged in")

	// Request errors
	ErrTransientNetwork = errors.New("transient network failure")
	ErrPermissionDenied = errors.New("permission denied")

	// General errors
	ErrNotFound = errors.New("not found")
	ErrInternal = errors.New("internal error")
)

// AuthError reports a failed login. Never retried automatically.
type AuthError struct {
	Username string
	Err      error
}

func (e *AuthError) Error() string {
	if e.Username == "" {
		return fmt.Sprintf("authentication failed: %v", e.Err)
	}
	return fmt.Sprintf("authentication failed for %q: %v", e.Username, e.Err)
}

func (e *AuthError) Unwrap() error {
	if e.Err == nil {
		return ErrInvalidCredentials
	}
	return e.Err
}

// SessionExpiredError is terminal: the session could not be kept alive and has been cleared.
type SessionExpiredError struct {
	Err error
}

func (e *SessionExpiredError) Error() string {
	if e.Err == nil {
		return ErrSessionExpired.Error()
	}
	return fmt.Sprintf("%s: %v", ErrSessionExpired, e.Err)
}

func (e *SessionExpiredError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrSessionExpired}
	}
	return []error{ErrSessionExpired, e.Err}
}

// TransientNetworkError is a transport failure unrelated to authentication.
type TransientNetworkError struct {
	Op  string
	Err error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, ErrTransientNetwork, e.Err)
}

func (e *TransientNetworkError) Unwrap() []error {
	return []error{ErrTransientNetwork, e.Err}
}

// PermissionDenied means the session is valid but lacks the rights for the request.
type PermissionDenied struct {
	Resource string
	Detail   string
}

func (e *PermissionDenied) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", ErrPermissionDenied, e.Resource)
	}
	return fmt.Sprintf("%s: %s (%s)", ErrPermissionDenied, e.Resource, e.Detail)
}

func (e *PermissionDenied) Unwrap() error {
	return ErrPermissionDenied
}

// NewSessionExpired wraps cause as a SessionExpiredError
func NewSessionExpired(cause error) error {
	return &SessionExpiredError{Err: cause}
}

// NewTransient wraps cause as a TransientNetworkError
func NewTransient(op string, cause error) error {
	return &TransientNetworkError{Op: op, Err: cause}
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is errors.New, re-exported so callers need a single import
func New(text string) error {
	return errors.New(text)
}
