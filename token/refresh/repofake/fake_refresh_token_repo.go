package refreshrepofake

import (
	"sync"

	apperrors "github.com/jrsteele09/freight-session/internal/errors"
	"github.com/jrsteele09/freight-session/token/refresh"
)

var _ refresh.Repo = (*FakeRefreshTokenRepo)(nil)

// FakeRefreshTokenRepo keeps refresh tokens in process memory
type FakeRefreshTokenRepo struct {
	lock   sync.RWMutex
	byTok  map[string]refresh.StoredRefreshToken
	byUser map[string]string // user ID -> live token
}

func NewFakeRefreshTokenRepo() refresh.Repo {
	return &FakeRefreshTokenRepo{
		byTok:  make(map[string]refresh.StoredRefreshToken),
		byUser: make(map[string]string),
	}
}

func (tr *FakeRefreshTokenRepo) Upsert(rt *refresh.StoredRefreshToken) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	if previous, ok := tr.byUser[rt.UserID]; ok && previous != rt.Token {
		delete(tr.byTok, previous)
	}
	tr.byTok[rt.Token] = *rt
	tr.byUser[rt.UserID] = rt.Token
	return nil
}

func (tr *FakeRefreshTokenRepo) Delete(token string) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	rt, ok := tr.byTok[token]
	if !ok {
		return apperrors.ErrNotFound
	}
	delete(tr.byTok, token)
	if tr.byUser[rt.UserID] == token {
		delete(tr.byUser, rt.UserID)
	}
	return nil
}

func (tr *FakeRefreshTokenRepo) Get(token string) (*refresh.StoredRefreshToken, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	rt, ok := tr.byTok[token]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &rt, nil
}

func (tr *FakeRefreshTokenRepo) GetByUserID(userID string) (*refresh.StoredRefreshToken, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	token, ok := tr.byUser[userID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	rt := tr.byTok[token]
	return &rt, nil
}
