package authapi

import (
	"errors"
	"strings"
)

// TokenResponse is returned by POST /auth/login and POST /auth/refresh.
type TokenResponse struct {
	// AccessToken is the bearer JWT used on protected requests.
	// Usage: Authorization: Bearer <access_token>
	AccessToken string `json:"access_token"`

	// TokenType is always "bearer" from the gateway; other providers may send "Bearer".
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the access token lifetime in seconds, counted from when the response was produced.
	ExpiresIn int `json:"expires_in,omitempty"`

	// RefreshToken is opaque and rotates on every refresh. A refresh response may omit it,
	// in which case the caller keeps the refresh token it already has.
	RefreshToken *string `json:"refresh_token,omitempty"`

	// User is embedded on login. Refresh responses normally leave it out.
	User *User `json:"user,omitempty"`
}

// Validate rejects responses that cannot produce a usable session
func (t *TokenResponse) Validate() error {
	if t == nil {
		return errors.New("empty token response")
	}
	if strings.TrimSpace(t.AccessToken) == "" {
		return errors.New("access_token is empty")
	}
	if t.ExpiresIn < 0 {
		return errors.New("expires_in must not be negative")
	}
	if t.TokenType != "" && !strings.EqualFold(t.TokenType, "bearer") {
		return errors.New("unexpected token_type: " + t.TokenType)
	}
	if t.User != nil {
		if err := t.User.Validate(); err != nil {
			return err
		}
	}
	return nil
}
