package main

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"teamboard-api/internal/auth"
	"teamboard-api/internal/config"
	"teamboard-api/internal/http/docs"
	"teamboard-api/internal/http/handler"
	"teamboard-api/internal/http/httperr"
	"teamboard-api/internal/http/middleware"
	"teamboard-api/internal/observability/logger"
	"teamboard-api/internal/ratelimit"
	"teamboard-api/internal/telemetry"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const readinessTimeout = 2 * time.Second

// ReadinessCheck is one dependency probed by /ready.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// RouterDeps holds everything buildRouter wires together. Nil handlers leave
// their routes unregistered.
type RouterDeps struct {
	Cfg              *config.Config
	Log              *logger.Logger
	Resolver         *auth.KeyResolver
	Identities       auth.IdentityLoader
	IdempotencyStore middleware.IdempotencyStore
	RateLimiter      ratelimit.Limiter
	Metrics          *telemetry.Metrics
	PromMetrics      *telemetry.PromMetrics
	Readiness        []ReadinessCheck

	MeHandler         *handler.MeHandler
	WorkspaceHandler  *handler.WorkspaceHandler
	MembershipHandler *handler.MembershipHandler
	ProjectHandler    *handler.ProjectHandler
	TaskHandler       *handler.TaskHandler
	DebugHandler      *handler.DebugHandler
}

func buildRouter(deps RouterDeps) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.RequestLoggingMiddleware(deps.Log))
	r.Use(middleware.RecoveryMiddleware(deps.Log))
	r.Use(telemetry.OTelMiddleware(deps.Cfg.OTELServiceName))
	if deps.Metrics != nil {
		r.Use(telemetry.MetricsMiddleware(deps.Metrics))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/ready", readyHandler(deps.Log, deps.Readiness))

	if deps.PromMetrics != nil {
		r.With(metricsAuth(deps.Cfg.MetricsToken)).Get("/metrics", deps.PromMetrics.Handler().ServeHTTP)
	}

	r.Get("/openapi.yaml", docs.OpenAPIHandler().ServeHTTP)
	r.Get("/docs", docs.ScalarDocsHandler("/openapi.yaml").ServeHTTP)

	if deps.Cfg.IsDev() && deps.DebugHandler != nil {
		r.Route("/debug", func(r chi.Router) {
			r.Get("/db/ping", deps.DebugHandler.PingDB)
			r.Group(func(r chi.Router) {
				r.Use(auth.Middleware(deps.Resolver, deps.Identities))
				r.Get("/auth", deps.DebugHandler.GetAuthDebug)
				r.With(middleware.WorkspaceMiddleware).Get("/auth/workspaces/{workspaceId}", deps.DebugHandler.GetAuthDebug)
			})
		})
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.Middleware(deps.Resolver, deps.Identities))
		if deps.RateLimiter != nil {
			r.Use(middleware.RateLimitMiddleware(deps.RateLimiter, deps.Cfg.RateLimitPerIdentityPerMin))
		}
		if deps.IdempotencyStore != nil {
			r.Use(middleware.IdempotencyMiddleware(deps.IdempotencyStore))
		}

		if deps.MeHandler != nil {
			r.Get("/me", deps.MeHandler.GetMe)
			r.Put("/me/current-workspace", deps.MeHandler.SwitchWorkspace)
		}

		if deps.MembershipHandler != nil {
			r.Post("/invites/{inviteCode}/join", deps.MembershipHandler.JoinByInviteCode)
		}

		if deps.WorkspaceHandler != nil {
			r.Post("/workspaces", deps.WorkspaceHandler.CreateWorkspace)
			r.Get("/workspaces", deps.WorkspaceHandler.ListWorkspaces)
		}

		r.Route("/workspaces/{workspaceId}", func(r chi.Router) {
			r.Use(middleware.WorkspaceMiddleware)

			if deps.WorkspaceHandler != nil {
				r.Get("/", deps.WorkspaceHandler.GetWorkspace)
				r.Patch("/", deps.WorkspaceHandler.UpdateWorkspace)
				r.Delete("/", deps.WorkspaceHandler.DeleteWorkspace)
				r.Post("/invite-code/rotate", deps.WorkspaceHandler.RotateInviteCode)
				r.Get("/members", deps.WorkspaceHandler.ListMembers)
				r.Get("/analytics", deps.WorkspaceHandler.Analytics)
			}

			if deps.MembershipHandler != nil {
				r.Route("/members/{identityId}", func(r chi.Router) {
					r.Delete("/", deps.MembershipHandler.RemoveMember)
					r.Put("/role", deps.MembershipHandler.ChangeRole)
				})
			}

			if deps.ProjectHandler != nil {
				r.Route("/projects", func(r chi.Router) {
					r.Get("/", deps.ProjectHandler.ListProjects)
					r.Post("/", deps.ProjectHandler.CreateProject)
					r.Route("/{projectId}", func(r chi.Router) {
						r.Get("/", deps.ProjectHandler.GetProject)
						r.Patch("/", deps.ProjectHandler.UpdateProject)
						r.Delete("/", deps.ProjectHandler.DeleteProject)
						r.Get("/analytics", deps.ProjectHandler.Analytics)
						if deps.TaskHandler != nil {
							r.Post("/tasks", deps.TaskHandler.CreateTask)
							r.Get("/tasks/{taskId}", deps.TaskHandler.GetProjectTask)
						}
					})
				})
			}

			if deps.TaskHandler != nil {
				r.Route("/tasks", func(r chi.Router) {
					r.Get("/", deps.TaskHandler.ListTasks)
					r.Route("/{taskId}", func(r chi.Router) {
						r.Get("/", deps.TaskHandler.GetTask)
						r.Patch("/", deps.TaskHandler.UpdateTask)
						r.Delete("/", deps.TaskHandler.DeleteTask)
					})
				})
			}
		})
	})

	return r
}

func readyHandler(log *logger.Logger, checks []ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				log.Error(ctx, "readiness check failed",
					logger.Module("http"),
					logger.Action("ready"),
					zap.String("dependency", c.Name),
					zap.Error(err),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"error","message":"` + c.Name + ` unavailable"}`))
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}
}

// metricsAuth accepts the scrape token as a bearer token or in X-Metrics-Token.
// An empty token leaves the endpoint open.
func metricsAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			got := r.Header.Get("X-Metrics-Token")
			if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
				got = bearer
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				httperr.Unauthorized401(w, r.Context(), httperr.ErrCodeInvalidToken, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
