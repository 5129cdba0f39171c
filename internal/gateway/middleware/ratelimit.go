package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"
)

// Limiter consumes one request of key's budget.
type Limiter interface {
	Allow(key string, limit int) (bool, time.Duration)
}

// RateLimit enforces the per-key limit of the KeyInfo set by Auth. A key
// without a configured limit falls back to defaultLimit.
func RateLimit(limiter Limiter, defaultLimit int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := GetKeyInfo(r.Context())
			if info == nil {
				next.ServeHTTP(w, r)
				return
			}
			limit := info.RateLimit
			if limit == 0 {
				limit = defaultLimit
			}
			ok, wait := limiter.Allow(info.ID, limit)
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
