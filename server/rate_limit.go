package server

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/freight-session/authapi"
	"golang.org/x/time/rate"
)

// loginLimiter throttles login attempts per username
type loginLimiter struct {
	every rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newLoginLimiter(interval time.Duration, burst int) *loginLimiter {
	if burst < 1 {
		burst = 1
	}
	return &loginLimiter{
		every:    rate.Every(interval),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// reserve reports whether an attempt for username may proceed, and otherwise how long to wait
func (l *loginLimiter) reserve(username string) (bool, time.Duration) {
	key := strings.ToLower(strings.TrimSpace(username))

	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.every, l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()

	now := time.Now()
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		seconds := int64(retryAfter.Round(time.Second).Seconds())
		w.Header().Set("Retry-After", strconv.FormatInt(max(seconds, 1), 10))
	}
	writeJSONError(w, authapi.ErrorRateLimited, "too many login attempts", http.StatusTooManyRequests)
}
