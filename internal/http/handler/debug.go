package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"teamboard-api/internal/auth"
	"teamboard-api/internal/http/httperr"
	"teamboard-api/internal/observability/logger"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DBPool is the slice of pgxpool.Pool the debug endpoints need.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// DebugHandler serves /debug/* in dev. Outside dev every route answers 404.
type DebugHandler struct {
	dev  bool
	pool DBPool
}

func NewDebugHandler(dev bool, pool DBPool) *DebugHandler {
	return &DebugHandler{dev: dev, pool: pool}
}

// DebugAuthData describes what the auth middleware resolved for this request.
type DebugAuthData struct {
	IdentityID          string   `json:"identityId"`
	IsActive            bool     `json:"isActive"`
	CurrentWorkspaceID  *string  `json:"currentWorkspaceId,omitempty"`
	TokenIssuer         string   `json:"tokenIssuer"`
	TokenAudience       []string `json:"tokenAudience"`
	ExpiresAt           *string  `json:"expiresAt,omitempty"`
	WorkspaceIDFromPath *string  `json:"workspaceIdFromPath,omitempty"`
}

// GetAuthDebug handles GET /debug/auth and GET /debug/auth/workspaces/{workspaceId}
func (h *DebugHandler) GetAuthDebug(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.allowed(w, r) {
		return
	}

	claims, ok := auth.GetClaims(ctx)
	identity, okIdentity := auth.GetIdentity(ctx)
	if !ok || !okIdentity {
		httperr.Unauthorized401(w, ctx, httperr.ErrCodeInvalidToken, "authentication required")
		return
	}

	data := DebugAuthData{
		IdentityID:         identity.ID,
		IsActive:           identity.IsActive,
		CurrentWorkspaceID: identity.CurrentWorkspaceID,
		TokenIssuer:        claims.Issuer,
		TokenAudience:      claims.Audience,
	}
	if claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.UTC().Format(time.RFC3339)
		data.ExpiresAt = &exp
	}
	if ws := chi.URLParam(r, "workspaceId"); ws != "" {
		data.WorkspaceIDFromPath = &ws
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "data": data})
}

// PingDB handles GET /debug/db/ping with SELECT 1.
func (h *DebugHandler) PingDB(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.allowed(w, r) {
		return
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var result int
	if err := h.pool.QueryRow(pingCtx, "SELECT 1").Scan(&result); err != nil {
		fields := []zap.Field{logger.Module("debug"), logger.Action("db_ping"), zap.Error(err)}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			fields = append(fields, zap.String("pgcode", pgErr.Code))
		}
		logger.GetLogger(ctx).Error(ctx, "db_ping_failed", fields...)

		logger.SetRootError(ctx, err)
		httperr.InternalError500(w, ctx, "db ping failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *DebugHandler) allowed(w http.ResponseWriter, r *http.Request) bool {
	if h.dev {
		return true
	}
	logger.GetLogger(r.Context()).Warn(r.Context(), "debug endpoint accessed outside dev",
		logger.Module("debug"),
		logger.Action("deny"),
	)
	http.NotFound(w, r)
	return false
}
