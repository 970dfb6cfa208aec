/**
 * @description
 * HTTP middleware for the verification server. The only custom middleware is
 * a per-IP rate limit in front of the verify endpoint, backed by whichever
 * RateLimiter implementation the process was wired with (Redis or in-memory).
 *
 * @dependencies
 * - log, net/http, strconv, time: Standard Go libraries.
 * - internal/app: The RateLimiter interface.
 */

package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/exoboost/engagement-service/internal/app"
)

// IPRateLimitMiddleware throttles requests per client IP. A limiter failure
// lets the request through: losing rate limiting is preferable to losing
// verification.
func IPRateLimitMiddleware(limiter app.RateLimiter, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			ip := ExtractIP(r)
			count, retryAfter, err := limiter.ConsumeRateLimit(r.Context(), "verify_ip", ip, limit, window)
			if err != nil {
				log.Printf("level=warn component=api middleware=rate_limit msg=\"limiter unavailable; allowing request\" ip=%s err=%v", ip, err)
				next.ServeHTTP(w, r)
				return
			}
			if count > limit {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				http.Error(w, "Too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
