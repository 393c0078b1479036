package config

import "time"

type SessionConfig interface {
	GetRefreshMargin() time.Duration
	GetStoragePrefix() string
	GetRequestTimeout() time.Duration
	GetRevokeTimeout() time.Duration
}

type Session struct {
	src *source
}

var _ SessionConfig = Session{}

// GetRefreshMargin is how long before expiry a token is treated as due for refresh
func (s Session) GetRefreshMargin() time.Duration {
	return getDuration(s.src, "SESSION_REFRESH_MARGIN", 2*time.Minute)
}

// GetStoragePrefix namespaces the persisted session keys
func (s Session) GetStoragePrefix() string {
	return s.src.get("SESSION_STORAGE_PREFIX", "freight_admin_")
}

func (s Session) GetRequestTimeout() time.Duration {
	return getDuration(s.src, "SESSION_REQUEST_TIMEOUT", 10*time.Second)
}

func (s Session) GetRevokeTimeout() time.Duration {
	return getDuration(s.src, "SESSION_REVOKE_TIMEOUT", 5*time.Second)
}
