package authapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Route paths served by the gateway
const (
	RouteLogin   = "/auth/login"
	RouteRefresh = "/auth/refresh"
	RouteLogout  = "/auth/logout"

	// RouteMe serves the identity of the bearer
	RouteMe = "/api/me"
	// RouteBaseFees lists the base tariff; needs fee:read
	RouteBaseFees = "/api/fees/base"
)

// Error codes carried in ErrorResponse.Error
const (
	ErrorInvalidRequest         = "invalid_request"
	ErrorInvalidCredentials     = "invalid_credentials"
	ErrorUserBlocked            = "user_blocked"
	ErrorInvalidGrant           = "invalid_grant"
	ErrorUnauthorized           = "unauthorized"
	ErrorInsufficientPermission = "insufficient_permission"
	ErrorRateLimited            = "rate_limited"
	ErrorServer                 = "server_error"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// User is the identity embedded in login responses and served by /api/me
type User struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	Name        string   `json:"name,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

func (u *User) Validate() error {
	if u.ID == "" || u.Username == "" {
		return errors.New("user identity requires id and username")
	}
	return nil
}

type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// Decode reads exactly one JSON document into v. Unknown fields are ignored.
func Decode(r io.Reader, v any) error {
	dec := json.NewDecoder(io.LimitReader(r, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

// DecodeStrict is Decode but fails on unknown fields; the gateway uses it for request bodies.
func DecodeStrict(r io.Reader, v any) error {
	dec := json.NewDecoder(io.LimitReader(r, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}
