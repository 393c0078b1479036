package auth_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/freight-session/auth"
	"github.com/jrsteele09/freight-session/internal/config"
	apperrors "github.com/jrsteele09/freight-session/internal/errors"
	"github.com/jrsteele09/freight-session/token"
	"github.com/jrsteele09/freight-session/token/refresh"
	refreshrepofake "github.com/jrsteele09/freight-session/token/refresh/repofake"
	"github.com/jrsteele09/freight-session/users"
	fakeuserrepo "github.com/jrsteele09/freight-session/users/repofake"
	"github.com/stretchr/testify/require"
)

const (
	secretStr        = "1234"
	testUserID       = "user-1"
	testUsername     = "john.doe"
	testUserPassword = "password123"
)

// testFixture holds all test dependencies
type testFixture struct {
	now          time.Time
	userRepo     users.UserRepo
	tokenCreator *token.Manager
	authService  *auth.AuthorizationService
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{
		now:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		userRepo: fakeuserrepo.NewFakeUserRepo(),
	}
	f.tokenCreator = token.New(
		refresh.NewManager(refreshrepofake.NewFakeRefreshTokenRepo(), config.New()),
		f.userRepo,
		token.NewHMACSigner(secretStr),
		token.WithNowFunc(func() time.Time { return f.now }),
	)

	var err error
	f.authService, err = auth.NewAuthorizationService(auth.Repos{Users: f.userRepo}, f.tokenCreator,
		auth.WithNowTime(func() time.Time { return f.now }))
	require.NoError(t, err)

	f.createTestUser(t)
	return f
}

func (f *testFixture) createTestUser(t *testing.T) {
	t.Helper()
	hash, err := users.HashPassword(testUserPassword)
	require.NoError(t, err)
	require.NoError(t, f.userRepo.Upsert(&users.User{
		ID:           testUserID,
		Username:     testUsername,
		Name:         "John Doe",
		PasswordHash: hash,
		Roles:        []string{users.RoleDispatcher},
	}))
}

func TestLogin_Success(t *testing.T) {
	f := setupTestFixture(t)

	resp, err := f.authService.Login(testUsername, testUserPassword)
	require.NoError(t, err)
	require.NoError(t, resp.Validate())
	require.Equal(t, testUserID, resp.User.ID)
	require.NotNil(t, resp.RefreshToken)

	user, err := f.userRepo.GetByID(testUserID)
	require.NoError(t, err)
	require.Equal(t, f.now, user.LastLogin)

	claims, err := f.authService.Authenticate(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, testUsername, claims.Username)
}

func TestLogin_CaseInsensitiveUsername(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.authService.Login("  JOHN.DOE ", testUserPassword)
	require.NoError(t, err)
}

func TestLogin_Failures(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		blocked  bool
		want     error
	}{
		{name: "invalid password", username: testUsername, password: "wrong", want: apperrors.ErrInvalidCredentials},
		{name: "user not found", username: "jane", password: testUserPassword, want: apperrors.ErrInvalidCredentials},
		{name: "empty username", username: " ", password: testUserPassword, want: apperrors.ErrInvalidCredentials},
		{name: "blocked user", username: testUsername, password: testUserPassword, blocked: true, want: apperrors.ErrUserBlocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			if tt.blocked {
				require.NoError(t, f.userRepo.SetBlocked(testUsername, true))
			}
			_, err := f.authService.Login(tt.username, tt.password)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRefreshToken_Success(t *testing.T) {
	f := setupTestFixture(t)
	login, err := f.authService.Login(testUsername, testUserPassword)
	require.NoError(t, err)

	refreshed, err := f.authService.Refresh(*login.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, *login.RefreshToken, *refreshed.RefreshToken)

	_, err = f.authService.Refresh(*login.RefreshToken)
	require.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)

	_, err = f.authService.Refresh("")
	require.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
}

func TestLogout_Success(t *testing.T) {
	f := setupTestFixture(t)
	login, err := f.authService.Login(testUsername, testUserPassword)
	require.NoError(t, err)

	f.authService.Logout(*login.RefreshToken, login.AccessToken)

	_, err = f.authService.Authenticate(login.AccessToken)
	require.ErrorIs(t, err, apperrors.ErrTokenRevoked)
	_, err = f.authService.Refresh(*login.RefreshToken)
	require.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)

	f.now = f.now.Add(time.Hour)
	require.Equal(t, 1, f.authService.CleanupRevokedTokens())
	_, err = f.authService.Authenticate(login.AccessToken)
	require.ErrorIs(t, err, apperrors.ErrTokenExpired)
}

func TestNewAuthorizationService_MissingDependencies(t *testing.T) {
	tests := []struct {
		name      string
		repos     auth.Repos
		manager   *token.Manager
		expectErr string
	}{
		{
			name:      "missing users repo",
			repos:     auth.Repos{},
			manager:   &token.Manager{},
			expectErr: "Users repo is required",
		},
		{
			name:      "missing token manager",
			repos:     auth.Repos{Users: fakeuserrepo.NewFakeUserRepo()},
			manager:   nil,
			expectErr: "tokenCreator is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.NewAuthorizationService(tt.repos, tt.manager)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.expectErr)
		})
	}
}
