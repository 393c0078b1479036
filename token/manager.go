package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/freight-session/authapi"
	apperrors "github.com/jrsteele09/freight-session/internal/errors"
	"github.com/jrsteele09/freight-session/internal/utils"
	"github.com/jrsteele09/freight-session/token/refresh"
	"github.com/jrsteele09/freight-session/users"
)

// Claims carried by gateway access tokens
type Claims struct {
	Username    string   `json:"preferred_username"`
	Name        string   `json:"name,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the user the token was issued to, as served by /api/me
func (c *Claims) Identity() *authapi.User {
	return &authapi.User{
		ID:          c.Subject,
		Username:    c.Username,
		Name:        c.Name,
		Roles:       c.Roles,
		Permissions: c.Permissions,
	}
}

type Manager struct {
	signer            Signer
	issuer            string
	audience          string
	refresh           *refresh.Manager
	userRepo          users.UserRepo
	revokedCache      RevokedTokenCache
	accessTokenExpiry time.Duration
	nowFunc           func() time.Time
}

type ManagerOption func(*Manager)

func WithAccessTokenExpiry(expiry time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessTokenExpiry = expiry
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithIssuer(issuer string) ManagerOption {
	return func(m *Manager) {
		m.issuer = issuer
	}
}

func WithAudience(audience string) ManagerOption {
	return func(m *Manager) {
		m.audience = audience
	}
}

func WithRevokedTokenCache(cache RevokedTokenCache) ManagerOption {
	return func(m *Manager) {
		m.revokedCache = cache
	}
}

func New(refreshManager *refresh.Manager, userRepo users.UserRepo, signer Signer, options ...ManagerOption) *Manager {
	m := &Manager{
		signer:       signer,
		refresh:      refreshManager,
		userRepo:     userRepo,
		revokedCache: NewInMemoryRevokedTokenCache(),
		issuer:       "freight-admin-gateway",
		audience:     "freight-admin",
	}

	for _, opt := range options {
		opt(m)
	}

	if m.accessTokenExpiry == 0 {
		m.accessTokenExpiry = 15 * time.Minute
	}
	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}
	return m
}

// AccessTokenExpiry is the lifetime of issued access tokens
func (c *Manager) AccessTokenExpiry() time.Duration {
	return c.accessTokenExpiry
}

// Issue creates the token pair for a freshly authenticated user. The response embeds the
// identity so the client does not need a second round-trip.
func (c *Manager) Issue(user *users.User) (*authapi.TokenResponse, error) {
	resp, err := c.issue(user)
	if err != nil {
		return nil, err
	}
	resp.User = Identity(user)
	return resp, nil
}

// Refresh redeems refreshToken and issues a new pair. The presented refresh token stops working.
func (c *Manager) Refresh(refreshToken string) (*authapi.TokenResponse, error) {
	rt, err := c.refresh.Redeem(refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := c.userRepo.GetByID(rt.UserID)
	if err != nil {
		return nil, fmt.Errorf("[Manager Refresh] %w: owner no longer exists", apperrors.ErrInvalidRefreshToken)
	}
	if user.Blocked {
		return nil, apperrors.ErrUserBlocked
	}
	return c.issue(user)
}

// Revoke drops the refresh token and, when given, blacklists the access token until it expires.
// Unknown or malformed tokens are ignored.
func (c *Manager) Revoke(refreshToken, accessToken string) {
	if refreshToken != "" {
		_ = c.refresh.Delete(refreshToken)
	}
	if accessToken == "" {
		return
	}
	claims, err := c.Validate(accessToken)
	if err != nil || claims.ID == "" || claims.ExpiresAt == nil {
		return
	}
	_ = c.revokedCache.Add(claims.ID, claims.ExpiresAt.Time)
}

// Validate checks signature, issuer, audience, expiry and revocation of an access token
func (c *Manager) Validate(rawToken string) (*Claims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, apperrors.ErrInvalidToken
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(rawToken, claims, c.signer.GetVerificationKey,
		jwt.WithValidMethods([]string{c.signer.GetSigningMethod().Alg()}),
		jwt.WithTimeFunc(c.nowFunc),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, apperrors.ErrTokenExpired
	case err != nil:
		return nil, apperrors.Wrapf(apperrors.ErrInvalidToken, "%v", err)
	}

	if claims.ID != "" && c.revokedCache.IsRevoked(claims.ID) {
		return nil, apperrors.ErrTokenRevoked
	}
	return claims, nil
}

// CleanupRevoked forgets revoked tokens that have expired anyway and returns how many
func (c *Manager) CleanupRevoked() int {
	return c.revokedCache.Cleanup(c.nowFunc())
}

func (c *Manager) CreateAccessToken(user *users.User) (string, error) {
	now := c.nowFunc()
	claims := &Claims{
		Username:    user.Username,
		Name:        user.Name,
		Roles:       user.Roles,
		Permissions: user.EffectivePermissions(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   user.ID,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.accessTokenExpiry)),
			ID:        uuid.New().String(),
		},
	}
	return c.signer.Sign(claims)
}

func (c *Manager) issue(user *users.User) (*authapi.TokenResponse, error) {
	accessToken, err := c.CreateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("[Manager issue] create access token: %w", err)
	}
	refreshToken, err := c.refresh.Create("freight-admin", user.ID)
	if err != nil {
		return nil, fmt.Errorf("[Manager issue] create refresh token: %w", err)
	}
	return &authapi.TokenResponse{
		AccessToken:  accessToken,
		TokenType:    "bearer",
		ExpiresIn:    int(c.accessTokenExpiry.Seconds()),
		RefreshToken: utils.Ptr(refreshToken),
	}, nil
}

// Identity converts a stored user into the wire identity
func Identity(user *users.User) *authapi.User {
	return &authapi.User{
		ID:          user.ID,
		Username:    user.Username,
		Name:        user.Name,
		Roles:       user.Roles,
		Permissions: user.EffectivePermissions(),
	}
}
