package requestid

import (
	"context"
	"regexp"

	"github.com/google/uuid"
)

type contextKey string

const requestIDContextKey contextKey = "request_id"

// Header carries the request ID in both directions.
const Header = "X-Request-ID"

// MaxLength bounds client-supplied IDs before they reach logs and audit rows.
const MaxLength = 128

var validID = regexp.MustCompile(`^[A-Za-z0-9._:-]+$`)

// NewRequestID returns a time-ordered ID (UUIDv7) prefixed with "req_".
func NewRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "req_" + uuid.NewString()
	}
	return "req_" + id.String()
}

// Sanitize returns id when it is safe to propagate, or a fresh ID otherwise.
func Sanitize(id string) string {
	if id == "" || len(id) > MaxLength || !validID.MatchString(id) {
		return NewRequestID()
	}
	return id
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// SetRequestID stores request ID in context
func SetRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}
