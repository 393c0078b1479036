// Package authclient is the session.AuthBackend that talks JSON to the freight gateway's
// /auth endpoints.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/freight-session/authapi"
	apperrors "github.com/jrsteele09/freight-session/internal/errors"
	"github.com/jrsteele09/freight-session/internal/utils"
	"github.com/jrsteele09/freight-session/session"
	"github.com/rs/zerolog"
)

// RouteMe serves the identity of the bearer
const RouteMe = authapi.RouteMe

var (
	_ session.AuthBackend = (*Client)(nil)
	_ session.UserFetcher = (*Client)(nil)
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
	nowFunc    func() time.Time
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger.With().Str("component", "authclient").Logger()
	}
}

// WithNowFunc sets the clock used to turn expires_in into an absolute expiry
func WithNowFunc(now func() time.Time) Option {
	return func(c *Client) {
		c.nowFunc = now
	}
}

func New(baseURL string, options ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     zerolog.Nop(),
		nowFunc:    time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *Client) Login(ctx context.Context, username, password string) (*session.Grant, error) {
	var resp authapi.TokenResponse
	if err := c.post(ctx, "login", authapi.RouteLogin, authapi.LoginRequest{Username: username, Password: password}, &resp); err != nil {
		return nil, err
	}
	return c.grant(&resp)
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*session.Grant, error) {
	var resp authapi.TokenResponse
	if err := c.post(ctx, "refresh", authapi.RouteRefresh, authapi.RefreshRequest{RefreshToken: refreshToken}, &resp); err != nil {
		return nil, err
	}
	return c.grant(&resp)
}

func (c *Client) Revoke(ctx context.Context, refreshToken string) error {
	return c.post(ctx, "logout", authapi.RouteLogout, authapi.LogoutRequest{RefreshToken: refreshToken}, nil)
}

func (c *Client) FetchUser(ctx context.Context, accessToken string) (*session.UserIdentity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+RouteMe, nil)
	if err != nil {
		return nil, fmt.Errorf("[Client FetchUser] build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	var user authapi.User
	if err := c.do(req, "me", &user); err != nil {
		return nil, err
	}
	if err := user.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedResponse, err)
	}
	return identity(&user), nil
}

func (c *Client) post(ctx context.Context, op, route string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("[Client %s] encode request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+route, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("[Client %s] build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(req, op, out)
}

func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.NewTransient(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperrors.NewTransient(op, err)
	}
	c.logger.Debug().Str("op", op).Int("status", resp.StatusCode).Msg("auth round-trip")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(op, resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := authapi.Decode(bytes.NewReader(data), out); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrMalformedResponse, err)
	}
	return nil
}

// statusError maps a gateway error body onto the shared sentinels
func statusError(op string, status int, body []byte) error {
	var errResp authapi.ErrorResponse
	_ = json.Unmarshal(body, &errResp)

	var cause error
	switch errResp.Error {
	case authapi.ErrorInvalidCredentials:
		cause = apperrors.ErrInvalidCredentials
	case authapi.ErrorUserBlocked:
		cause = apperrors.ErrUserBlocked
	case authapi.ErrorInvalidGrant, "invalid_token":
		cause = apperrors.ErrInvalidRefreshToken
	case authapi.ErrorRateLimited:
		cause = apperrors.ErrRateLimited
	default:
		switch {
		case status == http.StatusTooManyRequests:
			cause = apperrors.ErrRateLimited
		case status >= 500:
			return apperrors.NewTransient(op, fmt.Errorf("status %d", status))
		case status == http.StatusUnauthorized && op == "login":
			cause = apperrors.ErrInvalidCredentials
		case status == http.StatusUnauthorized:
			cause = apperrors.ErrInvalidToken
		default:
			cause = apperrors.ErrInternal
		}
	}
	if errResp.ErrorDescription != "" {
		return fmt.Errorf("[Client %s] %w: %s", op, cause, errResp.ErrorDescription)
	}
	return fmt.Errorf("[Client %s] %w (status %d)", op, cause, status)
}

func (c *Client) grant(resp *authapi.TokenResponse) (*session.Grant, error) {
	if err := resp.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedResponse, err)
	}

	expiresAt, err := c.expiry(resp)
	if err != nil {
		return nil, err
	}

	g := &session.Grant{
		AccessToken:  resp.AccessToken,
		RefreshToken: utils.Value(resp.RefreshToken),
		ExpiresAt:    expiresAt,
	}
	if resp.User != nil {
		g.User = identity(resp.User)
	}
	return g, nil
}

// expiry prefers expires_in and falls back to the exp claim of a JWT access token. The token is
// not verified here; the gateway does that on every request.
func (c *Client) expiry(resp *authapi.TokenResponse) (time.Time, error) {
	if resp.ExpiresIn > 0 {
		return c.nowFunc().Add(time.Duration(resp.ExpiresIn) * time.Second), nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(resp.AccessToken, claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: no expires_in and access token is not a JWT", apperrors.ErrMalformedResponse)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, fmt.Errorf("%w: no expires_in and no exp claim", apperrors.ErrMalformedResponse)
	}
	return exp.Time, nil
}

func identity(u *authapi.User) *session.UserIdentity {
	return &session.UserIdentity{
		ID:          u.ID,
		Username:    u.Username,
		Name:        u.Name,
		Roles:       append([]string(nil), u.Roles...),
		Permissions: append([]string(nil), u.Permissions...),
	}
}
