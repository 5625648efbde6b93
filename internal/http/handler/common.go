package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"teamboard-api/internal/auth"
	"teamboard-api/internal/domain"
	"teamboard-api/internal/http/httperr"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// decodeBody decodes a JSON request body into dst. On failure it writes the
// 400 response and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	ctx := r.Context()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidBody, "request body is required")
		case errors.As(err, &maxErr):
			httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidBody, "request body too large")
		default:
			httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidBody, "request body must be valid JSON")
		}
		return false
	}
	return true
}

// currentIdentity returns the authenticated identity. The auth middleware
// guarantees one on every /v1 route, so a miss is a wiring bug.
func currentIdentity(w http.ResponseWriter, r *http.Request) (*domain.Identity, bool) {
	identity, ok := auth.GetIdentity(r.Context())
	if !ok {
		httperr.Unauthorized401(w, r.Context(), httperr.ErrCodeInvalidToken, "authentication required")
		return nil, false
	}
	return identity, true
}

// pathID reads a UUID path parameter. Malformed IDs are rejected before any lookup.
func pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		if name == "workspaceId" {
			httperr.BadRequest400(w, r.Context(), httperr.ErrCodeInvalidWorkspaceID, "workspaceId must be a UUID")
		} else {
			httperr.BadRequest400WithFields(w, r.Context(), httperr.ErrCodeInvalidParameter, name+" must be a UUID",
				map[string]string{name: "uuid"})
		}
		return "", false
	}
	return id.String(), true
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		httperr.BadRequest400WithFields(w, r.Context(), httperr.ErrCodeInvalidParameter, name+" must be a non-negative integer",
			map[string]string{name: "min"})
		return 0, false
	}
	return v, true
}

func queryString(r *http.Request, name string) *string {
	if v := r.URL.Query().Get(name); v != "" {
		return &v
	}
	return nil
}
