package middleware

import (
	"net/http"
	"strconv"
	"time"

	"teamboard-api/internal/auth"
	"teamboard-api/internal/http/httperr"
	"teamboard-api/internal/observability/logger"
	"teamboard-api/internal/ratelimit"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const rateLimitWindow = time.Minute

// RateLimitMiddleware enforces a per-identity request budget. It must run
// after auth.Middleware.
func RateLimitMiddleware(limiter ratelimit.Limiter, limitPerMin int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := logger.GetLogger(ctx)

			identity, ok := auth.GetIdentity(ctx)
			if !ok {
				logger.SetRootError(ctx, errIdentityMissing)
				httperr.InternalError500(w, ctx, "identity not found in context for rate limiting")
				return
			}

			res, err := limiter.AllowRequest(ctx, "identity", identity.ID, limitPerMin, rateLimitWindow)
			if err != nil {
				// Redis outages must not take the API down with them.
				log.Error(ctx, "rate limit check failed, allowing request",
					logger.Module("ratelimit"),
					logger.Action("check"),
					zap.Error(err),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed {
				trace.SpanFromContext(ctx).AddEvent("rate_limit_exceeded")

				log.Warn(ctx, "rate limit exceeded",
					logger.Module("ratelimit"),
					logger.Action("check"),
					zap.Int("limit", limitPerMin),
				)

				retryAfter := int(time.Until(res.ResetAt).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				httperr.TooManyRequests429(w, ctx, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
