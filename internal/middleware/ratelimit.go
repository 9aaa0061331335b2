package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/lehrershow/songsubmit/internal/errors"
	"github.com/lehrershow/songsubmit/internal/logger"
)

// Limiter counts hits per key within a fixed window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// KeyFunc derives the rate limit key for a request.
type KeyFunc func(r *http.Request) string

// ByClientIP keys requests by the address logger.ClientIPMiddleware resolved,
// under the given scope.
func ByClientIP(scope string) KeyFunc {
	return func(r *http.Request) string {
		return scope + ":" + logger.ClientIP(r)
	}
}

// RateLimit rejects requests over limit per window with 429 RATE_LIMITED.
// A nil limiter or a non-positive limit disables the check. Limiter errors
// let the request through.
func RateLimit(limiter Limiter, limit int, window time.Duration, keyFn KeyFunc) func(http.Handler) http.Handler {
	log := logger.Default().WithComponent("ratelimit")

	return func(next http.Handler) http.Handler {
		if limiter == nil || limit <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)

			allowed, err := limiter.Allow(r.Context(), key, limit, window)
			if err != nil {
				log.Warn(r.Context(), "rate limiter unavailable, allowing request", logger.Fields{
					"key":   key,
					"error": err.Error(),
				})
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				apperrors.WriteError(w, apperrors.GetRequestID(r.Context()), apperrors.RateLimited())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
