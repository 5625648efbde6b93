package auth

import (
	"context"

	"teamboard-api/internal/domain"
)

// WithIdentityForTesting injects an authenticated Identity. Only for tests that
// bypass Middleware.
func WithIdentityForTesting(ctx context.Context, identity *domain.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// WithClaimsForTesting injects resolved token claims.
func WithClaimsForTesting(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}
