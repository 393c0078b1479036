package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/freight-session/internal/errors"
	"github.com/jrsteele09/freight-session/kvstore"
	"github.com/jrsteele09/freight-session/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultRefreshMargin = 2 * time.Minute
	DefaultRevokeTimeout = 5 * time.Second
	DefaultStoragePrefix = "freight_admin_"
)

// Manager is the only writer of the Session. All transitions happen under mu so readers never
// see a half-applied update; generation is bumped on every login and logout so refresh results
// that land afterwards are discarded.
type Manager struct {
	backend       AuthBackend
	store         kvstore.Store
	logger        zerolog.Logger
	recorder      metrics.Recorder
	nowFunc       func() time.Time
	refreshMargin time.Duration
	revokeTimeout time.Duration
	storagePrefix string

	mu         sync.RWMutex
	session    Session
	generation uint64
	lifetime   time.Duration // of the current access token when granted, zero if unknown
	sinks      []NotificationSink

	initMu      sync.Mutex
	initialized bool

	flight    singleflight.Group
	persistMu sync.Mutex
	revokes   sync.WaitGroup
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger.With().Str("component", "session").Logger()
	}
}

func WithRecorder(recorder metrics.Recorder) ManagerOption {
	return func(m *Manager) {
		m.recorder = recorder
	}
}

// WithNowFunc sets the clock (primarily for testing)
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// WithRefreshMargin sets how close to expiry a token may get before it is refreshed. Tokens
// granted with less than twice the margin left are refreshed at half their lifetime instead.
func WithRefreshMargin(margin time.Duration) ManagerOption {
	return func(m *Manager) {
		m.refreshMargin = margin
	}
}

// WithRevokeTimeout bounds the fire-and-forget revoke call made on logout
func WithRevokeTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		m.revokeTimeout = timeout
	}
}

// WithStoragePrefix namespaces the persisted keys. An empty prefix stores the bare key names.
func WithStoragePrefix(prefix string) ManagerOption {
	return func(m *Manager) {
		m.storagePrefix = prefix
	}
}

// WithSink registers a NotificationSink at construction time
func WithSink(sink NotificationSink) ManagerOption {
	return func(m *Manager) {
		m.sinks = append(m.sinks, sink)
	}
}

// NewManager builds an unauthenticated Manager. Call Initialize to hydrate from the store.
func NewManager(backend AuthBackend, store kvstore.Store, options ...ManagerOption) (*Manager, error) {
	if backend == nil {
		return nil, errors.New("[NewManager] auth backend is required")
	}
	if store == nil {
		return nil, errors.New("[NewManager] store is required")
	}

	m := &Manager{
		backend:       backend,
		logger:        zerolog.Nop(),
		recorder:      metrics.Nop{},
		nowFunc:       time.Now,
		refreshMargin: DefaultRefreshMargin,
		revokeTimeout: DefaultRevokeTimeout,
		storagePrefix: DefaultStoragePrefix,
	}
	for _, opt := range options {
		opt(m)
	}
	if m.refreshMargin < 0 {
		m.refreshMargin = 0
	}
	m.store = kvstore.WithPrefix(store, m.storagePrefix)
	return m, nil
}

// Subscribe adds a sink that is told whenever the session ends
func (m *Manager) Subscribe(sink NotificationSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, sink)
}

// Snapshot returns a copy of the current Session
func (m *Manager) Snapshot() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.clone()
}

// User returns the cached identity, or nil when logged out
func (m *Manager) User() *UserIdentity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.User.Clone()
}

func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.Authenticated()
}

func (m *Manager) HasPermission(code string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.User.HasPermission(code)
}

func (m *Manager) HasRole(code string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.User.HasRole(code)
}

// Login authenticates against the backend and replaces any current session. A refresh still
// in flight for the previous session is superseded. On failure the previous session is kept.
func (m *Manager) Login(ctx context.Context, username, password string) (*UserIdentity, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, &apperrors.AuthError{Username: username, Err: apperrors.ErrInvalidCredentials}
	}

	grant, err := m.backend.Login(ctx, username, password)
	if err != nil {
		m.logger.Info().Str("user", username).Err(err).Msg("login rejected")
		return nil, &apperrors.AuthError{Username: username, Err: err}
	}
	if err := validateGrant(grant); err != nil {
		return nil, &apperrors.AuthError{Username: username, Err: err}
	}
	if grant.RefreshToken == "" {
		return nil, &apperrors.AuthError{Username: username, Err: fmt.Errorf("%w: login returned no refresh token", apperrors.ErrMalformedResponse)}
	}

	user := grant.User.Clone()
	if user == nil {
		fetcher, ok := m.backend.(UserFetcher)
		if !ok {
			return nil, &apperrors.AuthError{Username: username, Err: fmt.Errorf("%w: login returned no user", apperrors.ErrMalformedResponse)}
		}
		if user, err = fetcher.FetchUser(ctx, grant.AccessToken); err != nil {
			return nil, &apperrors.AuthError{Username: username, Err: err}
		}
		if user == nil {
			return nil, &apperrors.AuthError{Username: username, Err: fmt.Errorf("%w: empty user", apperrors.ErrMalformedResponse)}
		}
	}

	m.mu.Lock()
	m.generation++
	m.session = Session{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    grant.ExpiresAt,
		User:         user,
	}
	m.lifetime = m.grantLifetime(grant)
	generation := m.generation
	m.mu.Unlock()

	m.initMu.Lock()
	m.initialized = true
	m.initMu.Unlock()

	m.persist(ctx)
	m.logger.Info().Str("user", user.Username).Uint64("generation", generation).Time("expires_at", grant.ExpiresAt).Msg("logged in")
	return user.Clone(), nil
}

// Logout clears the session and its persisted mirror. It never fails.
func (m *Manager) Logout(ctx context.Context) {
	m.EndSession(ctx, ReasonLogout)
}

// EndSession is Logout with an explicit reason. Sinks are only told when a session was active.
func (m *Manager) EndSession(ctx context.Context, reason EndReason) {
	m.end(ctx, reason, nil)
}

// EndSessionIf ends the session only while accessToken is still its current token, so a
// rejection of a token from an earlier login or refresh cannot end a newer session. It reports
// whether the session was ended.
func (m *Manager) EndSessionIf(ctx context.Context, reason EndReason, accessToken string) bool {
	return m.end(ctx, reason, func() bool {
		return accessToken != "" && m.session.AccessToken == accessToken
	})
}

// end clears the session. A non-nil guard is evaluated under mu and must return true for the
// session to be cleared; end reports whether it was.
func (m *Manager) end(ctx context.Context, reason EndReason, guard func() bool) bool {
	m.mu.Lock()
	if guard != nil && !guard() {
		m.mu.Unlock()
		return false
	}
	ended := m.session
	m.session = Session{}
	m.lifetime = 0
	m.generation++
	generation := m.generation
	sinks := append([]NotificationSink(nil), m.sinks...)
	m.mu.Unlock()

	m.persist(ctx)

	if ended.RefreshToken != "" && reason != ReasonRefreshFailed {
		m.revokeAsync(ctx, ended.RefreshToken)
	}
	if !ended.Authenticated() {
		return true
	}

	m.recorder.SessionEnded(string(reason))
	m.logger.Info().Str("reason", string(reason)).Uint64("generation", generation).Msg("session ended")
	for _, sink := range sinks {
		sink.SessionEnded(reason)
	}
	return true
}

func (m *Manager) revokeAsync(ctx context.Context, refreshToken string) {
	m.revokes.Add(1)
	go func() {
		defer m.revokes.Done()
		revokeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.revokeTimeout)
		defer cancel()
		if err := m.backend.Revoke(revokeCtx, refreshToken); err != nil {
			m.logger.Warn().Err(err).Msg("revoke refresh token failed")
		}
	}()
}

// Close waits for outstanding fire-and-forget revoke calls
func (m *Manager) Close() {
	m.revokes.Wait()
}

// grantLifetime is how long grant has left at the time it arrived. Grants that already sit
// inside the refresh margin are logged, they will be refreshed at half their lifetime.
func (m *Manager) grantLifetime(grant *Grant) time.Duration {
	lifetime := grant.ExpiresAt.Sub(m.nowFunc())
	if lifetime <= m.refreshMargin {
		m.logger.Warn().Dur("lifetime", lifetime).Dur("refresh_margin", m.refreshMargin).
			Msg("access token lifetime is within the refresh margin")
	}
	return lifetime
}

// margin is the refresh margin for a token granted with lifetime left. Unknown lifetimes, as
// for a restored session, use the configured margin.
func (m *Manager) margin(lifetime time.Duration) time.Duration {
	if lifetime > 0 && lifetime/2 < m.refreshMargin {
		return lifetime / 2
	}
	return m.refreshMargin
}

func validateGrant(grant *Grant) error {
	if grant == nil || grant.AccessToken == "" {
		return fmt.Errorf("%w: missing access token", apperrors.ErrMalformedResponse)
	}
	if grant.ExpiresAt.IsZero() {
		return fmt.Errorf("%w: missing expiry", apperrors.ErrMalformedResponse)
	}
	return nil
}
