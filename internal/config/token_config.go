package config

import "time"

type TokenConfig interface {
	GetSigningSecret() string
	GetRefreshTokenLength() int
	GetDefaultAccessTokenExpiry() time.Duration
	GetDefaultRefreshTokenExpiry() time.Duration
	GetIssuer() string
}

type Token struct {
	src *source
}

var _ TokenConfig = Token{}

func (t Token) GetSigningSecret() string {
	return t.src.get("TOKEN_SIGNING_SECRET", "change-me-in-production")
}

func (t Token) GetRefreshTokenLength() int {
	return getInt(t.src, "TOKEN_REFRESH_LENGTH", 32) // 32 bytes = 256 bits
}

func (t Token) GetDefaultAccessTokenExpiry() time.Duration {
	return getDuration(t.src, "TOKEN_ACCESS_EXPIRY", 15*time.Minute)
}

func (t Token) GetDefaultRefreshTokenExpiry() time.Duration {
	return getDuration(t.src, "TOKEN_REFRESH_EXPIRY", 7*24*time.Hour) // 7 days
}

func (t Token) GetIssuer() string {
	return t.src.get("TOKEN_ISSUER", "freight-admin-gateway")
}
