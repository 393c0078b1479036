package config

import "time"

type SecurityConfig interface {
	GetEnableRateLimiting() bool
	GetLoginAttemptInterval() time.Duration
	GetLoginBurst() int
}

type Security struct {
	src *source
}

var _ SecurityConfig = Security{}

func (s Security) GetEnableRateLimiting() bool {
	return getBool(s.src, "SECURITY_RATE_LIMITING", true)
}

// GetLoginAttemptInterval is the steady-state spacing between login attempts per username
func (s Security) GetLoginAttemptInterval() time.Duration {
	return getDuration(s.src, "SECURITY_LOGIN_INTERVAL", 10*time.Second)
}

func (s Security) GetLoginBurst() int {
	return getInt(s.src, "SECURITY_LOGIN_BURST", 5)
}
