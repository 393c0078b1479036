package backendfake

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/jrsteele09/freight-session/internal/errors"
	"github.com/jrsteele09/freight-session/session"
)

var (
	_ session.AuthBackend = (*FakeBackend)(nil)
	_ session.UserFetcher = (*FakeBackend)(nil)
)

type account struct {
	password string
	identity session.UserIdentity
	blocked  bool
}

// FakeBackend is an in-memory auth service. Tokens are sequential strings so tests can tell
// which round-trip issued them.
type FakeBackend struct {
	accounts map[string]*account
	access   map[string]string // access token to username
	refresh  map[string]string // refresh token to username
	revoked  []string
	lock     sync.RWMutex

	serial       atomic.Int64
	loginCalls   atomic.Int32
	refreshCalls atomic.Int32
	revokeCalls  atomic.Int32
	fetchCalls   atomic.Int32

	// AccessTTL is the lifetime of issued access tokens
	AccessTTL time.Duration
	// NowFunc is the clock used for expiries
	NowFunc func() time.Time
	// RefreshGate, when set, holds every Refresh until it is closed or sent to
	RefreshGate chan struct{}
	// RefreshStarted, when set, receives once per Refresh call before it waits on RefreshGate
	RefreshStarted chan struct{}
	// RefreshErr, when set, fails every Refresh
	RefreshErr error
	// LoginErr, when set, fails every Login
	LoginErr error
	// KeepRefreshToken makes Refresh omit the refresh token from its grant
	KeepRefreshToken bool
	// OmitUser makes Login omit the embedded identity so the caller has to FetchUser
	OmitUser bool
	// Revoked, when set, receives each revoked refresh token
	Revoked chan string
}

func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		accounts:  make(map[string]*account),
		access:    make(map[string]string),
		refresh:   make(map[string]string),
		AccessTTL: 15 * time.Minute,
		NowFunc:   time.Now,
	}
}

// AddUser registers an account. Roles and permissions come from identity.
func (b *FakeBackend) AddUser(password string, identity session.UserIdentity) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if identity.ID == "" {
		identity.ID = "user-" + identity.Username
	}
	b.accounts[identity.Username] = &account{password: password, identity: identity}
}

func (b *FakeBackend) Block(username string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if a, ok := b.accounts[username]; ok {
		a.blocked = true
	}
}

func (b *FakeBackend) Login(ctx context.Context, username, password string) (*session.Grant, error) {
	b.loginCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewTransient("login", err)
	}
	if b.LoginErr != nil {
		return nil, b.LoginErr
	}

	b.lock.Lock()
	defer b.lock.Unlock()
	a, ok := b.accounts[username]
	if !ok || a.password != password {
		return nil, apperrors.ErrInvalidCredentials
	}
	if a.blocked {
		return nil, apperrors.ErrUserBlocked
	}

	grant := b.issue(username)
	if !b.OmitUser {
		grant.User = a.identity.Clone()
	}
	return grant, nil
}

func (b *FakeBackend) Refresh(ctx context.Context, refreshToken string) (*session.Grant, error) {
	b.refreshCalls.Add(1)
	if b.RefreshStarted != nil {
		b.RefreshStarted <- struct{}{}
	}
	if b.RefreshGate != nil {
		select {
		case <-b.RefreshGate:
		case <-ctx.Done():
			return nil, apperrors.NewTransient("refresh", ctx.Err())
		}
	}
	if b.RefreshErr != nil {
		return nil, b.RefreshErr
	}

	b.lock.Lock()
	defer b.lock.Unlock()
	username, ok := b.refresh[refreshToken]
	if !ok {
		return nil, apperrors.ErrInvalidRefreshToken
	}
	if b.KeepRefreshToken {
		grant := b.issue(username)
		delete(b.refresh, grant.RefreshToken)
		grant.RefreshToken = ""
		return grant, nil
	}
	delete(b.refresh, refreshToken)
	return b.issue(username), nil
}

func (b *FakeBackend) Revoke(_ context.Context, refreshToken string) error {
	b.revokeCalls.Add(1)
	b.lock.Lock()
	delete(b.refresh, refreshToken)
	b.revoked = append(b.revoked, refreshToken)
	b.lock.Unlock()
	if b.Revoked != nil {
		b.Revoked <- refreshToken
	}
	return nil
}

func (b *FakeBackend) FetchUser(_ context.Context, accessToken string) (*session.UserIdentity, error) {
	b.fetchCalls.Add(1)
	b.lock.RLock()
	defer b.lock.RUnlock()
	username, ok := b.access[accessToken]
	if !ok {
		return nil, apperrors.ErrInvalidToken
	}
	return b.accounts[username].identity.Clone(), nil
}

// ExpireAccess forgets an access token so that a request presenting it is rejected
func (b *FakeBackend) ExpireAccess(accessToken string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	delete(b.access, accessToken)
}

// ValidAccess reports whether accessToken is currently accepted
func (b *FakeBackend) ValidAccess(accessToken string) bool {
	b.lock.RLock()
	defer b.lock.RUnlock()
	_, ok := b.access[accessToken]
	return ok
}

// ValidRefresh reports whether refreshToken is currently accepted
func (b *FakeBackend) ValidRefresh(refreshToken string) bool {
	b.lock.RLock()
	defer b.lock.RUnlock()
	_, ok := b.refresh[refreshToken]
	return ok
}

func (b *FakeBackend) RevokedTokens() []string {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return append([]string(nil), b.revoked...)
}

func (b *FakeBackend) LoginCalls() int   { return int(b.loginCalls.Load()) }
func (b *FakeBackend) RefreshCalls() int { return int(b.refreshCalls.Load()) }
func (b *FakeBackend) RevokeCalls() int  { return int(b.revokeCalls.Load()) }
func (b *FakeBackend) FetchCalls() int   { return int(b.fetchCalls.Load()) }

// issue must be called with the lock held
func (b *FakeBackend) issue(username string) *session.Grant {
	n := b.serial.Add(1)
	access := fmt.Sprintf("access-%d", n)
	refresh := fmt.Sprintf("refresh-%d", n)
	b.access[access] = username
	b.refresh[refresh] = username
	return &session.Grant{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    b.NowFunc().Add(b.AccessTTL),
	}
}
