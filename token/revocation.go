package token

import (
	"sync"
	"time"
)

// RevokedTokenCache is the deny list consulted by Validate. Entries are keyed by the access
// token's jti and only need to outlive the token's own exp.
type RevokedTokenCache interface {
	Add(jti string, exp time.Time) error
	IsRevoked(jti string) bool
	// Cleanup drops entries that expired before now and reports how many went
	Cleanup(now time.Time) int
}

// InMemoryRevokedTokenCache is the deny list of a single gateway process
type InMemoryRevokedTokenCache struct {
	mu      sync.RWMutex
	expires map[string]time.Time // jti -> exp of the revoked token
}

var _ RevokedTokenCache = (*InMemoryRevokedTokenCache)(nil)

func NewInMemoryRevokedTokenCache() *InMemoryRevokedTokenCache {
	return &InMemoryRevokedTokenCache{expires: make(map[string]time.Time)}
}

func (c *InMemoryRevokedTokenCache) Add(jti string, exp time.Time) error {
	c.mu.Lock()
	if current, ok := c.expires[jti]; !ok || exp.After(current) {
		c.expires[jti] = exp
	}
	c.mu.Unlock()
	return nil
}

func (c *InMemoryRevokedTokenCache) IsRevoked(jti string) bool {
	c.mu.RLock()
	_, revoked := c.expires[jti]
	c.mu.RUnlock()
	return revoked
}

func (c *InMemoryRevokedTokenCache) Cleanup(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for jti, exp := range c.expires {
		if !now.Before(exp) {
			delete(c.expires, jti)
			removed++
		}
	}
	return removed
}

// Len is the number of tokens currently denied
func (c *InMemoryRevokedTokenCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.expires)
}
