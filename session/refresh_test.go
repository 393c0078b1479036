package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/freight-session/internal/errors"
	"github.com/jrsteele09/freight-session/session"
	"github.com/stretchr/testify/require"
)

func TestEnsureValidTokenOutsideMarginDoesNotRefresh(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	token := f.manager.Snapshot().AccessToken

	f.clock.Advance(10 * time.Minute)
	got, err := f.manager.EnsureValidToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, token, got)
	require.Zero(t, f.backend.RefreshCalls())
}

func TestShortLivedTokenIsNotRefreshedOnEveryCall(t *testing.T) {
	f := newFixture(t)
	f.backend.AccessTTL = time.Minute
	f.login(t)
	token := f.manager.Snapshot().AccessToken

	for range 3 {
		got, err := f.manager.EnsureValidToken(context.Background())
		require.NoError(t, err)
		require.Equal(t, token, got)
	}
	require.Zero(t, f.backend.RefreshCalls())

	f.clock.Advance(31 * time.Second)
	refreshed, err := f.manager.EnsureValidToken(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, token, refreshed)
	require.Equal(t, 1, f.backend.RefreshCalls())

	got, err := f.manager.EnsureValidToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, refreshed, got)
	require.Equal(t, 1, f.backend.RefreshCalls())
}

func TestEnsureValidTokenLoggedOut(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.EnsureValidToken(context.Background())
	require.ErrorIs(t, err, apperrors.ErrSessionExpired)
	require.ErrorIs(t, err, apperrors.ErrNotLoggedIn)
	require.Zero(t, f.backend.RefreshCalls())
}

func TestEnsureValidTokenRefreshesInsideMargin(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	before := f.manager.Snapshot()

	f.clock.Advance(14 * time.Minute)
	got, err := f.manager.EnsureValidToken(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, before.AccessToken, got)
	require.Equal(t, 1, f.backend.RefreshCalls())

	after := f.manager.Snapshot()
	require.Equal(t, got, after.AccessToken)
	require.NotEqual(t, before.RefreshToken, after.RefreshToken)
	require.Equal(t, f.clock.Now().Add(15*time.Minute), after.ExpiresAt)
	require.False(t, after.Refreshing)
	require.Equal(t, before.User, after.User)

	raw, ok, err := f.store.Get(context.Background(), "freight_admin_access_token")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, got, raw)
}

func TestRefreshKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	before := f.manager.Snapshot()
	f.backend.KeepRefreshToken = true

	f.clock.Advance(14 * time.Minute)
	_, err := f.manager.EnsureValidToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, before.RefreshToken, f.manager.Snapshot().RefreshToken)
}

func TestConcurrentCallersShareOneRefresh(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.clock.Advance(14 * time.Minute)

	f.backend.RefreshStarted = make(chan struct{}, 1)
	f.backend.RefreshGate = make(chan struct{})

	const callers = 16
	tokens := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens[i], errs[i] = f.manager.EnsureValidToken(context.Background())
		}()
	}

	<-f.backend.RefreshStarted
	require.True(t, f.manager.Snapshot().Refreshing)
	close(f.backend.RefreshGate)
	wg.Wait()

	require.Equal(t, 1, f.backend.RefreshCalls())
	want := f.manager.Snapshot().AccessToken
	for i := range callers {
		require.NoError(t, errs[i])
		require.Equal(t, want, tokens[i])
	}
}

func TestReadersNeverSeeHalfAppliedRefresh(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.clock.Advance(14 * time.Minute)

	f.backend.RefreshStarted = make(chan struct{}, 1)
	f.backend.RefreshGate = make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.manager.EnsureValidToken(context.Background())
	}()
	<-f.backend.RefreshStarted

	type pair struct {
		token   string
		expires time.Time
	}
	seen := map[pair]bool{}
	var readers sync.WaitGroup
	var seenMu sync.Mutex
	stop := make(chan struct{})
	for range 4 {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := f.manager.Snapshot()
				seenMu.Lock()
				key := pair{snap.AccessToken, snap.ExpiresAt}
				prev, ok := seen[key]
				seen[key] = (!ok || prev) && snap.Authenticated() == (snap.User != nil)
				seenMu.Unlock()
			}
		}()
	}

	close(f.backend.RefreshGate)
	<-done
	close(stop)
	readers.Wait()

	oldExpiry := f.clock.Now().Add(1 * time.Minute)
	newExpiry := f.clock.Now().Add(15 * time.Minute)
	for p, consistent := range seen {
		require.True(t, consistent)
		switch p.token {
		case "access-1":
			require.Equal(t, oldExpiry, p.expires)
		case "access-2":
			require.Equal(t, newExpiry, p.expires)
		default:
			t.Fatalf("unexpected token %q", p.token)
		}
	}
}

func TestWaiterGivingUpDoesNotCancelRefresh(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.clock.Advance(14 * time.Minute)

	f.backend.RefreshStarted = make(chan struct{}, 1)
	f.backend.RefreshGate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	impatient := make(chan error, 1)
	go func() {
		_, err := f.manager.EnsureValidToken(ctx)
		impatient <- err
	}()
	<-f.backend.RefreshStarted

	patient := make(chan string, 1)
	go func() {
		token, _ := f.manager.EnsureValidToken(context.Background())
		patient <- token
	}()

	cancel()
	err := <-impatient
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, apperrors.ErrSessionExpired)
	require.Contains(t, err.Error(), "waiting for refresh-")

	close(f.backend.RefreshGate)
	require.Equal(t, "access-2", <-patient)
	require.True(t, f.manager.IsAuthenticated())
	require.Equal(t, 1, f.backend.RefreshCalls())
}

func TestRefreshFailureEndsSession(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	require.True(t, f.manager.HasPermission("fee:read"))

	f.backend.RefreshErr = apperrors.ErrInvalidRefreshToken
	f.clock.Advance(14 * time.Minute)

	_, err := f.manager.EnsureValidToken(context.Background())
	require.ErrorIs(t, err, apperrors.ErrSessionExpired)
	require.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)

	var expired *apperrors.SessionExpiredError
	require.ErrorAs(t, err, &expired)

	require.Equal(t, session.Session{}, f.manager.Snapshot())
	require.False(t, f.manager.HasPermission("fee:read"))
	require.Empty(t, f.store.Keys())
	require.Equal(t, []session.EndReason{session.ReasonRefreshFailed}, f.sink.Reasons())

	f.manager.Close()
	require.Zero(t, f.backend.RevokeCalls())
}

func TestLogoutDuringRefreshDoesNotResurrectSession(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.clock.Advance(14 * time.Minute)

	f.backend.RefreshStarted = make(chan struct{}, 1)
	f.backend.RefreshGate = make(chan struct{})

	result := make(chan error, 1)
	go func() {
		_, err := f.manager.EnsureValidToken(context.Background())
		result <- err
	}()
	<-f.backend.RefreshStarted

	f.manager.Logout(context.Background())
	close(f.backend.RefreshGate)

	require.ErrorIs(t, <-result, apperrors.ErrSessionExpired)
	require.False(t, f.manager.IsAuthenticated())
	require.Empty(t, f.store.Keys())
	require.Equal(t, []session.EndReason{session.ReasonLogout}, f.sink.Reasons())
}

func TestLoginSupersedesInFlightRefresh(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.clock.Advance(14 * time.Minute)

	f.backend.RefreshStarted = make(chan struct{}, 1)
	f.backend.RefreshGate = make(chan struct{})

	result := make(chan string, 1)
	go func() {
		token, _ := f.manager.EnsureValidToken(context.Background())
		result <- token
	}()
	<-f.backend.RefreshStarted

	user, err := f.manager.Login(context.Background(), "bob", "pw2")
	require.NoError(t, err)
	loginToken := f.manager.Snapshot().AccessToken
	close(f.backend.RefreshGate)

	require.Equal(t, loginToken, <-result)
	require.Equal(t, user, f.manager.User())
	require.Equal(t, loginToken, f.manager.Snapshot().AccessToken)

	raw, _, err := f.store.Get(context.Background(), "freight_admin_access_token")
	require.NoError(t, err)
	require.Equal(t, loginToken, raw)
}

func TestForceRefresh(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	ctx := context.Background()
	stale := f.manager.Snapshot().AccessToken

	fresh, err := f.manager.ForceRefresh(ctx, stale)
	require.NoError(t, err)
	require.NotEqual(t, stale, fresh)
	require.Equal(t, 1, f.backend.RefreshCalls())

	again, err := f.manager.ForceRefresh(ctx, stale)
	require.NoError(t, err)
	require.Equal(t, fresh, again)
	require.Equal(t, 1, f.backend.RefreshCalls())

	f.manager.Logout(ctx)
	_, err = f.manager.ForceRefresh(ctx, fresh)
	require.ErrorIs(t, err, apperrors.ErrSessionExpired)
}

func TestTokenSource(t *testing.T) {
	f := newFixture(t)
	ts := f.manager.TokenSource(context.Background())

	_, err := ts.Token()
	require.ErrorIs(t, err, apperrors.ErrSessionExpired)

	f.login(t)
	tok, err := ts.Token()
	require.NoError(t, err)
	require.Equal(t, f.manager.Snapshot().AccessToken, tok.AccessToken)
	require.Equal(t, "Bearer", tok.Type())
	require.Equal(t, f.manager.Snapshot().ExpiresAt, tok.Expiry)
}
