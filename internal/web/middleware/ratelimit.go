package middleware

import (
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimit returns middleware that limits the whole server to reqPerSec
// requests per second with the given burst. A non-positive rate disables it.
func RateLimit(reqPerSec float64, burst int) func(http.Handler) http.Handler {
	if reqPerSec <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(reqPerSec), burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded","code":"RATE_LIMITED"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
