package token_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/freight-session/internal/config"
	apperrors "github.com/jrsteele09/freight-session/internal/errors"
	"github.com/jrsteele09/freight-session/token"
	"github.com/jrsteele09/freight-session/token/refresh"
	refreshrepofake "github.com/jrsteele09/freight-session/token/refresh/repofake"
	"github.com/jrsteele09/freight-session/users"
	fakeuserrepo "github.com/jrsteele09/freight-session/users/repofake"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	now      time.Time
	userRepo users.UserRepo
	cache    *token.InMemoryRevokedTokenCache
	manager  *token.Manager
	alice    *users.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		now:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		userRepo: fakeuserrepo.NewFakeUserRepo(),
		cache:    token.NewInMemoryRevokedTokenCache(),
	}
	f.alice = &users.User{ID: "u-1", Username: "alice", Name: "Alice Carter", Roles: []string{users.RoleDispatcher}}
	require.NoError(t, f.userRepo.Upsert(f.alice))

	refreshManager := refresh.NewManager(refreshrepofake.NewFakeRefreshTokenRepo(), config.New())
	f.manager = token.New(refreshManager, f.userRepo, token.NewHMACSigner("test-secret"),
		token.WithNowFunc(func() time.Time { return f.now }),
		token.WithRevokedTokenCache(f.cache),
	)
	return f
}

func TestIssueEmbedsIdentity(t *testing.T) {
	f := newFixture(t)

	resp, err := f.manager.Issue(f.alice)
	require.NoError(t, err)
	require.NoError(t, resp.Validate())
	require.Equal(t, 900, resp.ExpiresIn)
	require.NotNil(t, resp.RefreshToken)
	require.Equal(t, "alice", resp.User.Username)
	require.Equal(t, []string{users.PermFeeRead, users.PermOrderRead, users.PermOrderWrite}, resp.User.Permissions)

	claims, err := f.manager.Validate(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "u-1", claims.Subject)
	require.Equal(t, resp.User, claims.Identity())
	require.Equal(t, f.now.Add(15*time.Minute).Unix(), claims.ExpiresAt.Unix())
}

func TestValidateRejects(t *testing.T) {
	f := newFixture(t)
	resp, err := f.manager.Issue(f.alice)
	require.NoError(t, err)

	t.Run("empty", func(t *testing.T) {
		_, err := f.manager.Validate("  ")
		require.ErrorIs(t, err, apperrors.ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := token.New(refresh.NewManager(refreshrepofake.NewFakeRefreshTokenRepo(), config.New()), f.userRepo, token.NewHMACSigner("other"))
		_, err := other.Validate(resp.AccessToken)
		require.ErrorIs(t, err, apperrors.ErrInvalidToken)
	})

	t.Run("unsigned", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u-1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = f.manager.Validate(unsigned)
		require.ErrorIs(t, err, apperrors.ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		f.now = f.now.Add(16 * time.Minute)
		t.Cleanup(func() { f.now = f.now.Add(-16 * time.Minute) })
		_, err := f.manager.Validate(resp.AccessToken)
		require.ErrorIs(t, err, apperrors.ErrTokenExpired)
	})
}

func TestRefreshRotates(t *testing.T) {
	f := newFixture(t)
	issued, err := f.manager.Issue(f.alice)
	require.NoError(t, err)

	refreshed, err := f.manager.Refresh(*issued.RefreshToken)
	require.NoError(t, err)
	require.Nil(t, refreshed.User)
	require.NotEqual(t, *issued.RefreshToken, *refreshed.RefreshToken)

	_, err = f.manager.Refresh(*issued.RefreshToken)
	require.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
}

func TestRefreshBlockedUser(t *testing.T) {
	f := newFixture(t)
	issued, err := f.manager.Issue(f.alice)
	require.NoError(t, err)

	require.NoError(t, f.userRepo.SetBlocked("alice", true))
	_, err = f.manager.Refresh(*issued.RefreshToken)
	require.ErrorIs(t, err, apperrors.ErrUserBlocked)
}

func TestRefreshDeletedUser(t *testing.T) {
	f := newFixture(t)
	issued, err := f.manager.Issue(f.alice)
	require.NoError(t, err)

	require.NoError(t, f.userRepo.Delete("u-1"))
	_, err = f.manager.Refresh(*issued.RefreshToken)
	require.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
}

func TestRevoke(t *testing.T) {
	f := newFixture(t)
	issued, err := f.manager.Issue(f.alice)
	require.NoError(t, err)

	f.manager.Revoke(*issued.RefreshToken, issued.AccessToken)

	_, err = f.manager.Validate(issued.AccessToken)
	require.ErrorIs(t, err, apperrors.ErrTokenRevoked)
	_, err = f.manager.Refresh(*issued.RefreshToken)
	require.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)

	// Unknown tokens are ignored
	f.manager.Revoke("nope", "not-a-jwt")
	require.Equal(t, 1, f.cache.Len())

	f.now = f.now.Add(time.Hour)
	require.Equal(t, 1, f.manager.CleanupRevoked())
	require.Zero(t, f.cache.Len())
}
