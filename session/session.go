// Package session owns the authenticated session of the admin client: the access/refresh token
// pair, its expiry, and the cached user identity. A single Manager is built at start-up and
// injected wherever protected requests are made.
package session

import (
	"context"
	"slices"
	"time"
)

// UserIdentity is the cached profile of the logged-in user
type UserIdentity struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	Name        string   `json:"name,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

func (u *UserIdentity) HasRole(code string) bool {
	return u != nil && slices.Contains(u.Roles, code)
}

func (u *UserIdentity) HasPermission(code string) bool {
	return u != nil && slices.Contains(u.Permissions, code)
}

func (u *UserIdentity) Clone() *UserIdentity {
	if u == nil {
		return nil
	}
	c := *u
	c.Roles = slices.Clone(u.Roles)
	c.Permissions = slices.Clone(u.Permissions)
	return &c
}

// Session is the in-memory state. AccessToken is non-empty if and only if User is non-nil.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         *UserIdentity
	Refreshing   bool
}

func (s Session) Authenticated() bool {
	return s.AccessToken != ""
}

func (s Session) clone() Session {
	s.User = s.User.Clone()
	return s
}

// Grant is what the auth backend hands back from a login or refresh round-trip
type Grant struct {
	AccessToken string
	// RefreshToken is empty when the backend does not rotate; the current one is kept
	RefreshToken string
	// ExpiresAt is absolute, computed by the backend client when the response arrived
	ExpiresAt time.Time
	// User is usually only present on login
	User *UserIdentity
}

// AuthBackend is the remote authentication service
type AuthBackend interface {
	Login(ctx context.Context, username, password string) (*Grant, error)
	Refresh(ctx context.Context, refreshToken string) (*Grant, error)
	// Revoke is best effort; its error is only logged
	Revoke(ctx context.Context, refreshToken string) error
}

// UserFetcher is implemented by backends that can look the user up when a login response
// carries no embedded identity
type UserFetcher interface {
	FetchUser(ctx context.Context, accessToken string) (*UserIdentity, error)
}

// EndReason says why a session ended
type EndReason string

const (
	ReasonLogout          EndReason = "logout"
	ReasonRefreshFailed   EndReason = "refresh_failed"
	ReasonRequestRejected EndReason = "request_rejected"
)

// NotificationSink is told when a session ends, e.g. to route back to the login screen
type NotificationSink interface {
	SessionEnded(reason EndReason)
}

// SinkFunc adapts a function to NotificationSink
type SinkFunc func(reason EndReason)

func (f SinkFunc) SessionEnded(reason EndReason) {
	f(reason)
}
