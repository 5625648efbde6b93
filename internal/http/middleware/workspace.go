package middleware

import (
	"context"
	"net/http"

	"teamboard-api/internal/http/httperr"
	"teamboard-api/internal/observability/logger"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const workspaceIDKey contextKey = "workspace_id"

// WorkspaceMiddleware validates the {workspaceId} path parameter and injects it
// into the request and logger context. It does not check membership: that is
// the authorization guard's job, run inside every service call.
func WorkspaceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := logger.GetLogger(ctx)

		workspaceID := chi.URLParam(r, "workspaceId")
		if workspaceID == "" {
			httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidWorkspaceID, "workspaceId is required")
			return
		}

		parsed, err := uuid.Parse(workspaceID)
		if err != nil {
			log.Warn(ctx, "malformed workspace id",
				logger.Module("http"),
				logger.Action("workspace_scope"),
				zap.String("path", r.URL.Path),
			)
			httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidWorkspaceID, "workspaceId must be a UUID")
			return
		}
		workspaceID = parsed.String()

		trace.SpanFromContext(ctx).SetAttributes(attribute.String("workspace_id", workspaceID))

		ctx = context.WithValue(ctx, workspaceIDKey, workspaceID)
		ctx = logger.SetWorkspaceIDInContext(ctx, workspaceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetWorkspaceID retrieves the validated workspace ID from context
func GetWorkspaceID(ctx context.Context) (string, bool) {
	workspaceID, ok := ctx.Value(workspaceIDKey).(string)
	return workspaceID, ok && workspaceID != ""
}
