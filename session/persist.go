package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/freight-session/internal/errors"
)

// Persisted key names. They are prefixed with the storage prefix and must stay stable across
// releases or Initialize cannot hydrate an older mirror.
const (
	KeyAccessToken     = "access_token"
	KeyRefreshToken    = "refresh_token"
	KeyTokenExpireTime = "token_expire_time"
	KeyUserInfo        = "user_info"
	KeyUserRoles       = "user_roles"
)

var persistedKeys = []string{KeyAccessToken, KeyRefreshToken, KeyTokenExpireTime, KeyUserInfo, KeyUserRoles}

// Initialize hydrates the session from the store once. If the stored expiry has already passed
// a single refresh is attempted. It never fails: anything unreadable leaves the session logged
// out. Calls after the first, or after a Login, do nothing.
func (m *Manager) Initialize(ctx context.Context) {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	if m.initialized {
		return
	}
	m.initialized = true

	stored, err := m.load(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("discarding persisted session")
		m.clearStore(ctx)
		return
	}
	if stored == nil {
		m.logger.Debug().Msg("no persisted session")
		return
	}

	m.mu.Lock()
	if m.session.Authenticated() {
		m.mu.Unlock()
		return
	}
	m.session = *stored
	m.lifetime = 0
	generation := m.generation
	m.mu.Unlock()

	m.logger.Info().Str("user", stored.User.Username).Time("expires_at", stored.ExpiresAt).Msg("session restored")

	if stored.ExpiresAt.After(m.nowFunc()) {
		return
	}
	if _, err := m.sharedRefresh(ctx, generation, stored.AccessToken); err != nil {
		m.logger.Info().Err(err).Msg("stored session could not be refreshed")
	}
}

// load reads the mirror. A nil Session with no error means nothing was stored. A partial or
// corrupt mirror is an error.
func (m *Manager) load(ctx context.Context) (*Session, error) {
	values := make(map[string]string, len(persistedKeys))
	for _, key := range persistedKeys {
		v, ok, err := m.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("[Manager load] %s: %w", key, err)
		}
		if ok && v != "" {
			values[key] = v
		}
	}
	if len(values) == 0 {
		return nil, nil
	}
	for _, key := range persistedKeys {
		if _, ok := values[key]; !ok {
			return nil, fmt.Errorf("[Manager load] incomplete mirror, missing %s", key)
		}
	}

	expiresAt, err := time.Parse(time.RFC3339Nano, values[KeyTokenExpireTime])
	if err != nil {
		return nil, apperrors.Wrapf(err, "[Manager load] %s", KeyTokenExpireTime)
	}

	var user UserIdentity
	if err := json.Unmarshal([]byte(values[KeyUserInfo]), &user); err != nil {
		return nil, apperrors.Wrapf(err, "[Manager load] %s", KeyUserInfo)
	}
	if user.Username == "" {
		return nil, fmt.Errorf("[Manager load] %s has no username", KeyUserInfo)
	}

	var roles []string
	if err := json.Unmarshal([]byte(values[KeyUserRoles]), &roles); err != nil {
		return nil, apperrors.Wrapf(err, "[Manager load] %s", KeyUserRoles)
	}
	user.Roles = roles

	return &Session{
		AccessToken:  values[KeyAccessToken],
		RefreshToken: values[KeyRefreshToken],
		ExpiresAt:    expiresAt,
		User:         &user,
	}, nil
}

// persist writes the current snapshot, or removes every key when logged out. Writes are
// serialised and always take the latest state, so the mirror ends up matching memory. If any
// key fails to write the whole mirror is removed; a missing mirror only costs a login, a mixed
// one would restore one session's tokens with another's identity.
func (m *Manager) persist(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)

	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	snapshot := m.Snapshot()
	if !snapshot.Authenticated() {
		m.clearStore(ctx)
		return
	}

	userInfo, err := json.Marshal(snapshot.User)
	if err != nil {
		m.logger.Error().Err(err).Msg("encode user_info")
		return
	}
	roles := snapshot.User.Roles
	if roles == nil {
		roles = []string{}
	}
	userRoles, err := json.Marshal(roles)
	if err != nil {
		m.logger.Error().Err(err).Msg("encode user_roles")
		return
	}

	values := map[string]string{
		KeyAccessToken:     snapshot.AccessToken,
		KeyRefreshToken:    snapshot.RefreshToken,
		KeyTokenExpireTime: snapshot.ExpiresAt.UTC().Format(time.RFC3339Nano),
		KeyUserInfo:        string(userInfo),
		KeyUserRoles:       string(userRoles),
	}
	for _, key := range persistedKeys {
		if err := m.store.Set(ctx, key, values[key]); err != nil {
			m.logger.Error().Err(err).Str("key", key).Msg("persist session, dropping mirror")
			m.clearStore(ctx)
			return
		}
	}
}

func (m *Manager) clearStore(ctx context.Context) {
	for _, key := range persistedKeys {
		if err := m.store.Remove(ctx, key); err != nil {
			m.logger.Error().Err(err).Str("key", key).Msg("clear persisted session")
		}
	}
}
