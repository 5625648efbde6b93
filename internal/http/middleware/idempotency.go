package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"teamboard-api/internal/auth"
	"teamboard-api/internal/http/httperr"
	"teamboard-api/internal/observability/logger"
	"teamboard-api/internal/repo"

	"go.uber.org/zap"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	maxIdempotencyKeyLen = 255
)

var errIdentityMissing = errors.New("identity not found in request context")

// IdempotencyStore is implemented by repo.IdempotencyRepo.
type IdempotencyStore interface {
	CheckKey(ctx context.Context, scopeID, keyHash string) (*repo.CachedResponse, error)
	StoreResult(ctx context.Context, req repo.StoredRequest) error
}

// IdempotencyMiddleware replays the stored response when a mutating request
// repeats an Idempotency-Key. Keys are scoped to the authenticated identity.
// Reusing a key for a different method or path is rejected with 409.
func IdempotencyMiddleware(store IdempotencyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := logger.GetLogger(ctx)

			if !isMutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			idempotencyKey := r.Header.Get(IdempotencyKeyHeader)
			if idempotencyKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			if len(idempotencyKey) > maxIdempotencyKeyLen {
				httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidParameter, "Idempotency-Key must be 255 characters or less")
				return
			}

			identity, ok := auth.GetIdentity(ctx)
			if !ok {
				logger.SetRootError(ctx, errIdentityMissing)
				httperr.InternalError500(w, ctx, "identity not found in context for idempotency")
				return
			}

			keyHash := repo.HashKey(idempotencyKey)
			w.Header().Set("X-Idempotency-Key-Hash", keyHash)

			cached, err := store.CheckKey(ctx, identity.ID, keyHash)
			if err != nil {
				logger.SetRootError(ctx, err)
				httperr.InternalError500(w, ctx, "failed to check idempotency key")
				return
			}

			if cached != nil {
				if cached.Method != r.Method || cached.Path != r.URL.Path {
					httperr.Conflict409(w, ctx, httperr.ErrCodeIdempotencyReuse, "Idempotency-Key was already used for a different request")
					return
				}

				log.Info(ctx, "replaying idempotent response",
					logger.Module("idempotency"),
					logger.Action("replay"),
					zap.String("key_hash", keyHash),
					zap.Int("status", cached.Status),
				)

				for k, v := range cached.Headers {
					w.Header().Set(k, v)
				}
				w.Header().Set("X-Idempotency-Replay", "true")
				w.WriteHeader(cached.Status)
				_, _ = w.Write(cached.Body)
				return
			}

			var requestBody []byte
			if r.Body != nil {
				requestBody, err = io.ReadAll(r.Body)
				if err != nil {
					httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidBody, "failed to read request body")
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(requestBody))
			}

			recorder := &responseRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
				body:           &bytes.Buffer{},
			}

			next.ServeHTTP(recorder, r)

			// only successful outcomes are replayed; failures may be retried
			if recorder.statusCode < 200 || recorder.statusCode >= 300 {
				return
			}

			headers := make(map[string]string)
			for _, key := range []string{"Content-Type", "Location"} {
				if val := recorder.Header().Get(key); val != "" {
					headers[key] = val
				}
			}

			err = store.StoreResult(ctx, repo.StoredRequest{
				ScopeID:     identity.ID,
				KeyHash:     keyHash,
				OriginalKey: idempotencyKey,
				Method:      r.Method,
				Path:        r.URL.Path,
				Payload:     requestBody,
				Response: repo.CachedResponse{
					Status:  recorder.statusCode,
					Body:    recorder.body.Bytes(),
					Headers: headers,
				},
			})
			if err != nil {
				log.Error(ctx, "failed to store idempotency result",
					logger.Module("idempotency"),
					logger.Action("store"),
					zap.Error(err),
				)
				return
			}

			log.Debug(ctx, "stored idempotent response",
				logger.Module("idempotency"),
				logger.Action("store"),
				zap.String("key_hash", keyHash),
				zap.Int("status", recorder.statusCode),
			)
		})
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// responseRecorder captures the response while passing it through.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
	written    bool
}

func (rr *responseRecorder) WriteHeader(code int) {
	if !rr.written {
		rr.statusCode = code
		rr.written = true
	}
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	if !rr.written {
		rr.WriteHeader(http.StatusOK)
	}
	rr.body.Write(b)
	return rr.ResponseWriter.Write(b)
}
