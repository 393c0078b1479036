package session

import (
	"context"
	"strconv"
	"time"

	apperrors "github.com/jrsteele09/freight-session/internal/errors"
	"github.com/jrsteele09/freight-session/metrics"
)

// issued is a token together with the expiry it was committed with
type issued struct {
	token     string
	expiresAt time.Time
}

// EnsureValidToken returns an access token that is safe to use right now. Tokens outside the
// refresh margin are returned without suspending. Otherwise one refresh round-trip is shared by
// every concurrent caller. A failed refresh is a *errors.SessionExpiredError and the session is
// gone. If ctx ends while waiting the error wraps ctx.Err() and the session is left as it is;
// the shared refresh carries on for the other callers.
func (m *Manager) EnsureValidToken(ctx context.Context) (string, error) {
	result, err := m.ensureValid(ctx)
	if err != nil {
		return "", err
	}
	return result.token, nil
}

func (m *Manager) ensureValid(ctx context.Context) (issued, error) {
	m.mu.RLock()
	current := issued{token: m.session.AccessToken, expiresAt: m.session.ExpiresAt}
	generation := m.generation
	margin := m.margin(m.lifetime)
	m.mu.RUnlock()

	if current.token == "" {
		return issued{}, apperrors.NewSessionExpired(apperrors.ErrNotLoggedIn)
	}
	if current.expiresAt.Sub(m.nowFunc()) > margin {
		return current, nil
	}
	return m.sharedRefresh(ctx, generation, current.token)
}

// ForceRefresh refreshes after the backend rejected staleToken. If the session already moved on
// to a different token, that token is returned without another round-trip. Errors are as for
// EnsureValidToken.
func (m *Manager) ForceRefresh(ctx context.Context, staleToken string) (string, error) {
	m.mu.RLock()
	token := m.session.AccessToken
	generation := m.generation
	m.mu.RUnlock()

	if token == "" {
		return "", apperrors.NewSessionExpired(apperrors.ErrNotLoggedIn)
	}
	if staleToken != "" && token != staleToken {
		return token, nil
	}
	result, err := m.sharedRefresh(ctx, generation, token)
	if err != nil {
		return "", err
	}
	return result.token, nil
}

// sharedRefresh joins or starts the refresh for this generation. The round-trip runs detached
// from ctx so one caller giving up does not fail the others; ctx only bounds this caller's wait.
func (m *Manager) sharedRefresh(ctx context.Context, generation uint64, observed string) (issued, error) {
	key := "refresh-" + strconv.FormatUint(generation, 10)
	detached := context.WithoutCancel(ctx)
	ch := m.flight.DoChan(key, func() (any, error) {
		return m.refresh(detached, generation, observed)
	})

	select {
	case <-ctx.Done():
		return issued{}, apperrors.Wrapf(ctx.Err(), "[Manager sharedRefresh] waiting for %s", key)
	case res := <-ch:
		if res.Err != nil {
			return issued{}, res.Err
		}
		return res.Val.(issued), nil
	}
}

// refresh performs the round-trip once per flight. The result is committed only if the
// generation captured by the first caller is still current.
func (m *Manager) refresh(ctx context.Context, generation uint64, observed string) (issued, error) {
	m.mu.Lock()
	if m.generation != generation {
		m.mu.Unlock()
		return m.superseded()
	}
	if m.session.AccessToken != observed {
		// a previous flight already replaced the token this caller saw
		current := issued{token: m.session.AccessToken, expiresAt: m.session.ExpiresAt}
		m.mu.Unlock()
		return current, nil
	}
	refreshToken := m.session.RefreshToken
	m.session.Refreshing = true
	m.mu.Unlock()

	log := m.logger.With().Uint64("generation", generation).Logger()
	log.Debug().Msg("refreshing access token")

	grant, err := m.backend.Refresh(ctx, refreshToken)
	if err == nil {
		err = validateGrant(grant)
	}

	m.mu.Lock()
	if m.generation != generation {
		m.mu.Unlock()
		log.Info().Msg("refresh result discarded, session changed while in flight")
		return m.superseded()
	}

	if err != nil {
		m.mu.Unlock()
		if !m.end(ctx, ReasonRefreshFailed, func() bool { return m.generation == generation }) {
			return m.superseded()
		}
		m.recorder.RefreshCompleted(metrics.RefreshFailure)
		log.Warn().Err(err).Msg("refresh failed, session ended")
		return issued{}, apperrors.NewSessionExpired(err)
	}

	m.session.AccessToken = grant.AccessToken
	m.session.ExpiresAt = grant.ExpiresAt
	if grant.RefreshToken != "" {
		m.session.RefreshToken = grant.RefreshToken
	}
	if grant.User != nil {
		m.session.User = grant.User.Clone()
	}
	m.session.Refreshing = false
	m.lifetime = m.grantLifetime(grant)
	result := issued{token: m.session.AccessToken, expiresAt: m.session.ExpiresAt}
	m.mu.Unlock()

	m.persist(ctx)
	m.recorder.RefreshCompleted(metrics.RefreshSuccess)
	log.Debug().Time("expires_at", result.expiresAt).Msg("access token refreshed")
	return result, nil
}

// superseded reports whatever session is current after a login or logout overtook a refresh
func (m *Manager) superseded() (issued, error) {
	m.recorder.RefreshCompleted(metrics.RefreshSuperseded)
	m.mu.RLock()
	current := issued{token: m.session.AccessToken, expiresAt: m.session.ExpiresAt}
	m.mu.RUnlock()
	if current.token == "" {
		return issued{}, apperrors.NewSessionExpired(apperrors.ErrSessionExpired)
	}
	return current, nil
}
