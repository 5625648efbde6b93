package auth

import (
	"context"
	"net/http"
	"strings"

	"teamboard-api/internal/domain"
	"teamboard-api/internal/http/httperr"
	"teamboard-api/internal/observability/logger"

	"go.uber.org/zap"
)

type contextKey string

const (
	claimsContextKey   contextKey = "claims"
	identityContextKey contextKey = "identity"
)

// IdentityLoader provisions the Identity named by a token subject on first sight
// and returns its current state.
type IdentityLoader interface {
	EnsureIdentity(ctx context.Context, identityID, email, name string) (*domain.Identity, error)
}

// Middleware authenticates the bearer token, loads the caller's Identity and
// puts both into the request context. Deactivated identities get 403.
func Middleware(resolver *KeyResolver, identities IdentityLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := logger.GetLogger(ctx)

			tokenString, reason := bearerToken(r.Header.Get("Authorization"))
			if reason != "" {
				logFailure(ctx, log, r, reason, "", nil)
				if reason == AuthFailureMissingAuthorization {
					httperr.Unauthorized401(w, ctx, httperr.ErrCodeMissingAuthorization, "missing authorization header")
				} else {
					httperr.Unauthorized401(w, ctx, httperr.ErrCodeInvalidScheme, "invalid authorization scheme, expected Bearer")
				}
				return
			}

			claims, err := resolver.Resolve(ctx, tokenString)
			if err != nil {
				authErr, _ := IsAuthError(err)
				reason := AuthFailureUnknown
				if authErr != nil {
					reason = authErr.Reason
				}
				logFailure(ctx, log, r, reason, tokenString, err)
				httperr.Unauthorized401(w, ctx, mapAuthErrorToCode(authErr), "invalid or expired token")
				return
			}

			identity, err := identities.EnsureIdentity(ctx, claims.Subject, claims.Email, claims.Name)
			if err != nil {
				logger.SetRootError(ctx, err)
				httperr.InternalError500(w, ctx, "failed to load identity")
				return
			}
			if !identity.IsActive {
				log.Warn(ctx, "inactive identity rejected",
					logger.Module("auth"),
					logger.Action("authenticate"),
					zap.String("actor_id", identity.ID),
				)
				httperr.Forbidden403(w, ctx, httperr.ErrCodeIdentityInactive, "identity is not active")
				return
			}

			ctx = context.WithValue(ctx, claimsContextKey, claims)
			ctx = context.WithValue(ctx, identityContextKey, identity)
			ctx = logger.SetIdentityIDInContext(ctx, identity.ID)

			log.Debug(ctx, "authenticated request",
				logger.Module("auth"),
				logger.Action("authenticate"),
				zap.String("issuer", claims.Issuer),
			)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) (string, AuthFailureReason) {
	if header == "" {
		return "", AuthFailureMissingAuthorization
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", AuthFailureInvalidScheme
	}
	return strings.TrimSpace(token), ""
}

func logFailure(ctx context.Context, log *logger.Logger, r *http.Request, reason AuthFailureReason, token string, err error) {
	fields := []logger.Field{
		logger.Module("auth"),
		logger.Action("authenticate"),
		zap.String("auth_failure_reason", string(reason)),
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	}
	if token != "" {
		fields = append(fields, zap.String("token_prefix", maskToken(token)))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	log.Warn(ctx, "authentication failed", fields...)
}

func mapAuthErrorToCode(authErr *AuthError) string {
	if authErr == nil {
		return httperr.ErrCodeInvalidToken
	}

	switch authErr.Reason {
	case AuthFailureInvalidSignature:
		return httperr.ErrCodeInvalidSignature
	case AuthFailureTokenExpired:
		return httperr.ErrCodeTokenExpired
	case AuthFailureInvalidIssuer:
		return httperr.ErrCodeInvalidIssuer
	case AuthFailureInvalidAudience:
		return httperr.ErrCodeInvalidAudience
	default:
		return httperr.ErrCodeInvalidToken
	}
}

// GetClaims retrieves claims from context
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*Claims)
	return claims, ok
}

// GetIdentity returns the authenticated Identity.
func GetIdentity(ctx context.Context) (*domain.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*domain.Identity)
	return identity, ok && identity != nil
}
