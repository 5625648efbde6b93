package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"teamboard-api/internal/http/httperr"
	"teamboard-api/internal/ratelimit"

	"github.com/stretchr/testify/assert"
)

type stubLimiter struct {
	res      ratelimit.Result
	err      error
	subjects []string
}

func (s *stubLimiter) AllowRequest(_ context.Context, _, subject string, limit int, _ time.Duration) (ratelimit.Result, error) {
	s.subjects = append(s.subjects, subject)
	res := s.res
	res.Limit = limit
	return res, s.err
}

func serveRateLimited(limiter ratelimit.Limiter, req *http.Request) (*httptest.ResponseRecorder, bool) {
	called := false
	handler := RateLimitMiddleware(limiter, 10)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, called
}

func TestRateLimitMiddleware_Allows(t *testing.T) {
	limiter := &stubLimiter{res: ratelimit.Result{Allowed: true, Remaining: 9, ResetAt: time.Now().Add(time.Minute)}}
	req := withIdentity(httptest.NewRequest(http.MethodGet, "/v1/workspaces", nil).WithContext(testContext()), "alice")

	rec, called := serveRateLimited(limiter, req)

	assert.True(t, called)
	assert.Equal(t, []string{"alice"}, limiter.subjects)
	assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimitMiddleware_Rejects(t *testing.T) {
	limiter := &stubLimiter{res: ratelimit.Result{Allowed: false, ResetAt: time.Now().Add(30 * time.Second)}}
	req := withIdentity(httptest.NewRequest(http.MethodGet, "/v1/workspaces", nil).WithContext(testContext()), "alice")

	rec, called := serveRateLimited(limiter, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, httperr.ErrCodeRateLimited, errorCode(t, rec))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	limiter := &stubLimiter{err: errors.New("redis: connection refused")}
	req := withIdentity(httptest.NewRequest(http.MethodGet, "/v1/workspaces", nil).WithContext(testContext()), "alice")

	rec, called := serveRateLimited(limiter, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitMiddleware_NoIdentity(t *testing.T) {
	rec, called := serveRateLimited(&stubLimiter{}, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(testContext()))

	assert.False(t, called)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
