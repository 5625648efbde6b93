package middleware

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"teamboard-api/internal/http/httperr"
	"teamboard-api/internal/observability/logger"
	"teamboard-api/internal/observability/requestid"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// RequestIDMiddleware reuses a well-formed X-Request-ID or generates one,
// stores it in the context and echoes it on the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := requestid.Sanitize(r.Header.Get(requestid.Header))

		ctx := requestid.SetRequestID(r.Context(), reqID)
		w.Header().Set(requestid.Header, reqID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestLoggingMiddleware logs one line per request once it completes.
// Bodies and sensitive headers are never logged.
func RequestLoggingMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx := logger.SetLoggerInContext(r.Context(), log)
			ctx = logger.InitRootErrorContext(ctx)

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r.WithContext(ctx))

			route := getRoutePattern(r)
			log.Info(ctx, "http request completed",
				logger.Module("http"),
				logger.Action("request"),
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.String("path", r.URL.Path),
				zap.String("query", sanitizeQuery(r.URL.RawQuery)),
				zap.Int("status", wrapped.statusCode),
				zap.Float64("latency_ms", float64(time.Since(start).Microseconds())/1000),
				zap.String("remote_addr", sanitizeRemoteAddr(r.RemoteAddr)),
				zap.String("user_agent", sanitizeUserAgent(r.UserAgent())),
			)

			if wrapped.statusCode < http.StatusInternalServerError {
				return
			}

			rootErr := logger.GetRootError(ctx)
			fields := []zap.Field{
				logger.Module("http"),
				logger.Action("http_error"),
				zap.Int("status", wrapped.statusCode),
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.String("kind", classifyError(rootErr)),
			}
			if rootErr != nil {
				fields = append(fields, zap.String("err", rootErr.Error()))
				var pgErr *pgconn.PgError
				if errors.As(rootErr, &pgErr) {
					fields = append(fields, zap.String("pgcode", pgErr.Code))
				}
			} else {
				fields = append(fields, zap.String("err", "internal server error (unspecified cause)"))
			}
			log.Error(ctx, "http_error", fields...)
		})
	}
}

// RecoveryMiddleware turns a panic into a 500 and logs the stack.
func RecoveryMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				ctx := r.Context()
				logger.SetRootError(ctx, fmt.Errorf("panic: %v", rec))

				log.Error(ctx, "panic_recovered",
					logger.Module("http"),
					logger.Action("panic_recovery"),
					zap.Any("panic", rec),
					zap.String("stack", string(debug.Stack())),
					zap.String("method", r.Method),
					zap.String("route", getRoutePattern(r)),
				)

				httperr.InternalError500(w, ctx, "panic recovered")
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	if !rw.wroteHeader {
		rw.statusCode = statusCode
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

var sensitiveQueryKeys = []string{"token", "access_token", "code", "invite_code", "key"}

// sanitizeQuery drops credential-like parameters and truncates the rest.
func sanitizeQuery(query string) string {
	if query == "" {
		return ""
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		return "[unparseable]"
	}
	for _, k := range sensitiveQueryKeys {
		if values.Has(k) {
			values.Set(k, "[REDACTED]")
		}
	}

	out := values.Encode()
	const maxLen = 200
	if len(out) > maxLen {
		return out[:maxLen] + "..."
	}
	return out
}

// sanitizeRemoteAddr drops the port: 192.168.1.100:54321 -> 192.168.1.100
func sanitizeRemoteAddr(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func sanitizeUserAgent(ua string) string {
	const maxLen = 100
	if len(ua) > maxLen {
		return ua[:maxLen] + "..."
	}
	return ua
}

// getRoutePattern prefers the chi route pattern so paths with IDs group together.
func getRoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func classifyError(err error) string {
	if err == nil {
		return "unknown"
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return "db"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.HasPrefix(msg, "panic"):
		return "panic"
	case strings.Contains(msg, "scan"):
		return "scan"
	case strings.Contains(msg, "redis"):
		return "redis"
	}
	return "unknown"
}
