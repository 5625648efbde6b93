package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"teamboard-api/internal/domain"
	"teamboard-api/internal/http/httperr"
	"teamboard-api/internal/observability/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLoader struct {
	identities map[string]*domain.Identity
	err        error
	calls      int
}

func (s *stubLoader) EnsureIdentity(_ context.Context, id, email, name string) (*domain.Identity, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if existing, ok := s.identities[id]; ok {
		return existing, nil
	}
	created := &domain.Identity{ID: id, Email: email, Name: name, IsActive: true}
	s.identities[id] = created
	return created, nil
}

func serve(t *testing.T, loader IdentityLoader, authHeader string) (*httptest.ResponseRecorder, *domain.Identity) {
	t.Helper()
	var seen *domain.Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetIdentity(r.Context())
		_, ok := GetClaims(r.Context())
		assert.True(t, ok)
		assert.Equal(t, seen.ID, logger.GetIdentityIDFromContext(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/workspaces", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	ctx := logger.SetLoggerInContext(req.Context(), logger.NewNop())
	ctx = logger.InitRootErrorContext(ctx)

	rr := httptest.NewRecorder()
	Middleware(newResolver(), loader)(next).ServeHTTP(rr, req.WithContext(ctx))
	return rr, seen
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp httperr.ErrorResponse
	require.NoError(t, jsonDecode(rr, &resp))
	return resp.Error.Code
}

func TestMiddleware_ProvisionsIdentity(t *testing.T) {
	loader := &stubLoader{identities: map[string]*domain.Identity{}}
	token := signHS256(t, testSecret, newClaims("id-1", time.Now().Add(time.Hour)))

	rr, identity := serve(t, loader, "Bearer "+token)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	require.NotNil(t, identity)
	assert.Equal(t, "id-1", identity.ID)
	assert.Equal(t, "id-1@example.com", identity.Email)
	assert.Equal(t, 1, loader.calls)
}

func TestMiddleware_Rejections(t *testing.T) {
	valid := signHS256(t, testSecret, newClaims("id-1", time.Now().Add(time.Hour)))
	expired := signHS256(t, testSecret, newClaims("id-1", time.Now().Add(-time.Hour)))

	tests := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"missing header", "", http.StatusUnauthorized, httperr.ErrCodeMissingAuthorization},
		{"basic scheme", "Basic abc", http.StatusUnauthorized, httperr.ErrCodeInvalidScheme},
		{"empty bearer", "Bearer ", http.StatusUnauthorized, httperr.ErrCodeInvalidScheme},
		{"expired", "Bearer " + expired, http.StatusUnauthorized, httperr.ErrCodeTokenExpired},
		{"garbage", "Bearer not.a.jwt", http.StatusUnauthorized, httperr.ErrCodeInvalidToken},
		{"lowercase scheme accepted", "bearer " + valid, http.StatusNoContent, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, _ := serve(t, &stubLoader{identities: map[string]*domain.Identity{}}, tt.header)
			assert.Equal(t, tt.status, rr.Code)
			if tt.code != "" {
				assert.Equal(t, tt.code, errorCode(t, rr))
			}
		})
	}
}

func TestMiddleware_InactiveIdentity(t *testing.T) {
	loader := &stubLoader{identities: map[string]*domain.Identity{
		"id-1": {ID: "id-1", IsActive: false},
	}}
	token := signHS256(t, testSecret, newClaims("id-1", time.Now().Add(time.Hour)))

	rr, identity := serve(t, loader, "Bearer "+token)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Nil(t, identity)
	assert.Equal(t, httperr.ErrCodeIdentityInactive, errorCode(t, rr))
}

func TestMiddleware_LoaderFailure(t *testing.T) {
	loader := &stubLoader{err: errors.New("db down")}
	token := signHS256(t, testSecret, newClaims("id-1", time.Now().Add(time.Hour)))

	rr, _ := serve(t, loader, "Bearer "+token)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestGetIdentity_Empty(t *testing.T) {
	_, ok := GetIdentity(context.Background())
	assert.False(t, ok)

	ctx := WithIdentityForTesting(context.Background(), &domain.Identity{ID: "x"})
	got, ok := GetIdentity(ctx)
	require.True(t, ok)
	assert.Equal(t, "x", got.ID)
}

func jsonDecode(rr *httptest.ResponseRecorder, v any) error {
	return json.NewDecoder(rr.Body).Decode(v)
}
