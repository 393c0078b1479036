// Package oidcbackend is a session.AuthBackend for a standard OpenID Connect provider. Login uses
// the resource owner password grant and the identity is read from the verified ID token.
package oidcbackend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	apperrors "github.com/jrsteele09/freight-session/internal/errors"
	"github.com/jrsteele09/freight-session/session"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

var _ session.AuthBackend = (*Backend)(nil)

// Config wires the backend to a provider without discovery
type Config struct {
	ClientID     string
	ClientSecret string
	Endpoint     oauth2.Endpoint
	Scopes       []string
	// RevokeURL is the RFC 7009 revocation endpoint. Revoke is a no-op without it.
	RevokeURL string
	Verifier  *oidc.IDTokenVerifier
}

type Backend struct {
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	revokeURL    string
	httpClient   *http.Client
	logger       zerolog.Logger
}

type Option func(*Backend)

func WithHTTPClient(client *http.Client) Option {
	return func(b *Backend) {
		b.httpClient = client
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger.With().Str("component", "oidcbackend").Logger()
	}
}

func New(cfg Config, options ...Option) (*Backend, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("[oidcbackend New] client id is required")
	}
	if cfg.Endpoint.TokenURL == "" {
		return nil, errors.New("[oidcbackend New] token endpoint is required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("[oidcbackend New] id token verifier is required")
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", oidc.ScopeOfflineAccess}
	}

	b := &Backend{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     cfg.Endpoint,
			Scopes:       scopes,
		},
		verifier:   cfg.Verifier,
		revokeURL:  cfg.RevokeURL,
		httpClient: http.DefaultClient,
		logger:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(b)
	}
	return b, nil
}

// Discover builds a Backend from the provider's /.well-known/openid-configuration
func Discover(ctx context.Context, issuer, clientID, clientSecret string, options ...Option) (*Backend, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("[oidcbackend Discover] failed to create OIDC provider: %w", err)
	}
	var extra struct {
		RevocationEndpoint string `json:"revocation_endpoint"`
	}
	if err := provider.Claims(&extra); err != nil {
		return nil, fmt.Errorf("[oidcbackend Discover] provider metadata: %w", err)
	}
	return New(Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     provider.Endpoint(),
		RevokeURL:    extra.RevocationEndpoint,
		Verifier:     provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, options...)
}

func (b *Backend) Login(ctx context.Context, username, password string) (*session.Grant, error) {
	tok, err := b.oauth2Config.PasswordCredentialsToken(b.clientContext(ctx), username, password)
	if err != nil {
		return nil, mapTokenError("login", err, apperrors.ErrInvalidCredentials)
	}
	grant, err := b.grant(ctx, tok)
	if err != nil {
		return nil, err
	}
	if grant.User == nil {
		return nil, fmt.Errorf("%w: no id_token in login response", apperrors.ErrMalformedResponse)
	}
	return grant, nil
}

func (b *Backend) Refresh(ctx context.Context, refreshToken string) (*session.Grant, error) {
	src := b.oauth2Config.TokenSource(b.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, mapTokenError("refresh", err, apperrors.ErrInvalidRefreshToken)
	}
	return b.grant(ctx, tok)
}

func (b *Backend) Revoke(ctx context.Context, refreshToken string) error {
	if b.revokeURL == "" {
		return nil
	}
	form := url.Values{}
	form.Set("token", refreshToken)
	form.Set("token_type_hint", "refresh_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("[oidcbackend Revoke] build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(url.QueryEscape(b.oauth2Config.ClientID), url.QueryEscape(b.oauth2Config.ClientSecret))

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return apperrors.NewTransient("revoke", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("[oidcbackend Revoke] unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (b *Backend) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)
}

type idClaims struct {
	Subject           string   `json:"sub"`
	PreferredUsername string   `json:"preferred_username"`
	Name              string   `json:"name"`
	Roles             []string `json:"roles"`
	Permissions       []string `json:"permissions"`
}

func (b *Backend) grant(ctx context.Context, tok *oauth2.Token) (*session.Grant, error) {
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: missing access token", apperrors.ErrMalformedResponse)
	}
	if tok.Expiry.IsZero() {
		return nil, fmt.Errorf("%w: provider sent no expires_in", apperrors.ErrMalformedResponse)
	}
	g := &session.Grant{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return g, nil
	}
	idToken, err := b.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: id token verification failed: %v", apperrors.ErrMalformedResponse, err)
	}
	var claims idClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: id token claims: %v", apperrors.ErrMalformedResponse, err)
	}
	username := claims.PreferredUsername
	if username == "" {
		username = claims.Subject
	}
	g.User = &session.UserIdentity{
		ID:          claims.Subject,
		Username:    username,
		Name:        claims.Name,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
	}
	b.logger.Debug().Str("user", username).Msg("id token verified")
	return g, nil
}

// mapTokenError turns an OAuth2 token endpoint failure into the shared sentinels. invalid_grant
// means the credential presented was rejected; rejected is the sentinel for that case.
func mapTokenError(op string, err error, rejected error) error {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		return apperrors.NewTransient(op, err)
	}
	status := 0
	if retrieveErr.Response != nil {
		status = retrieveErr.Response.StatusCode
	}
	switch {
	case retrieveErr.ErrorCode == "invalid_grant":
		return fmt.Errorf("[oidcbackend %s] %w: %s", op, rejected, retrieveErr.ErrorDescription)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("[oidcbackend %s] %w", op, apperrors.ErrRateLimited)
	case status >= 500:
		return apperrors.NewTransient(op, err)
	default:
		return fmt.Errorf("[oidcbackend %s] %w: %v", op, rejected, err)
	}
}
