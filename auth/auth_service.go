// Package auth holds the gateway's credential checks: password login, refresh rotation and
// logout, on top of the user store and the token manager.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jrsteele09/freight-session/authapi"
	apperrors "github.com/jrsteele09/freight-session/internal/errors"
	"github.com/jrsteele09/freight-session/token"
	"github.com/jrsteele09/freight-session/users"
)

// Repos groups the storage the service depends on
type Repos struct {
	Users users.UserRepo
}

// AuthorizationService exchanges credentials for tokens
type AuthorizationService struct {
	repos        Repos            // All repository dependencies
	tokenCreator *token.Manager   // Create and handle token generation
	nowTime      func() time.Time // nowTime function (injectable for testing)
}

// AuthorizationServiceOption defines a function type to modify the AuthorizationService instance.
type AuthorizationServiceOption func(*AuthorizationService)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.nowTime = nowFunc
	}
}

func NewAuthorizationService(repos Repos, tokenCreator *token.Manager, options ...AuthorizationServiceOption) (*AuthorizationService, error) {
	if repos.Users == nil {
		return nil, errors.New("[NewAuthorizationService] Users repo is required")
	}
	if tokenCreator == nil {
		return nil, errors.New("[NewAuthorizationService] tokenCreator is required")
	}

	authService := &AuthorizationService{
		repos:        repos,
		tokenCreator: tokenCreator,
		nowTime:      time.Now,
	}
	for _, opt := range options {
		opt(authService)
	}
	return authService, nil
}

// Login checks the password and issues a token pair with the user embedded. Unknown users and
// wrong passwords are indistinguishable to the caller.
func (as *AuthorizationService) Login(username, password string) (*authapi.TokenResponse, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperrors.ErrInvalidCredentials
	}

	user, err := as.repos.Users.GetByUsername(username)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("[AuthorizationService.Login] GetByUsername: %w", err)
	}
	if !user.CheckPassword(password) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if user.Blocked {
		return nil, apperrors.ErrUserBlocked
	}

	resp, err := as.tokenCreator.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("[AuthorizationService.Login] Issue: %w", err)
	}
	if err := as.repos.Users.SetLastLogin(user.ID, as.nowTime()); err != nil {
		return nil, fmt.Errorf("[AuthorizationService.Login] SetLastLogin: %w", err)
	}
	return resp, nil
}

// Refresh rotates refreshToken. Any refusal is ErrInvalidRefreshToken, ErrRefreshTokenExpired
// or ErrUserBlocked.
func (as *AuthorizationService) Refresh(refreshToken string) (*authapi.TokenResponse, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, apperrors.ErrInvalidRefreshToken
	}
	return as.tokenCreator.Refresh(refreshToken)
}

// Logout revokes whichever tokens it is given
func (as *AuthorizationService) Logout(refreshToken, accessToken string) {
	as.tokenCreator.Revoke(refreshToken, accessToken)
}

// Authenticate validates a bearer access token
func (as *AuthorizationService) Authenticate(rawToken string) (*token.Claims, error) {
	return as.tokenCreator.Validate(rawToken)
}

// CleanupRevokedTokens forgets revoked access tokens that have expired anyway
func (as *AuthorizationService) CleanupRevokedTokens() int {
	return as.tokenCreator.CleanupRevoked()
}
