package service

import (
	"context"
	"errors"
	"fmt"

	"teamboard-api/internal/domain"
	"teamboard-api/internal/observability/logger"
	"teamboard-api/internal/telemetry"

	"go.uber.org/zap"
)

// Guard is the single authorization checkpoint. Every project and task operation
// goes through Authorize, AuthorizeProject or AuthorizeTask before touching data.
type Guard struct {
	memberships MembershipStore
	projects    ProjectStore
	tasks       TaskStore
	metrics     *telemetry.PromMetrics
	log         *logger.Logger
}

func NewGuard(memberships MembershipStore, projects ProjectStore, tasks TaskStore, metrics *telemetry.PromMetrics, log *logger.Logger) *Guard {
	return &Guard{
		memberships: memberships,
		projects:    projects,
		tasks:       tasks,
		metrics:     metrics,
		log:         log,
	}
}

// Authorize returns the identity's membership in workspaceID when its role grants perm.
//
// Non-membership is reported as PermissionDenied, never NotFound, so callers
// outside the workspace cannot probe whether it exists. Inactive identities are denied.
func (g *Guard) Authorize(ctx context.Context, identity *domain.Identity, workspaceID string, perm domain.Permission) (*domain.Membership, error) {
	if identity == nil || !identity.IsActive {
		return nil, g.deny(ctx, identity, workspaceID, perm, "identity inactive")
	}

	m, err := g.memberships.GetMembership(ctx, workspaceID, identity.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, g.deny(ctx, identity, workspaceID, perm, "not a member")
		}
		g.metrics.ObserveAuthz(string(perm), telemetry.OutcomeError)
		g.log.Error(ctx, "failed to load membership",
			logger.Module("guard"),
			logger.Action("authorize"),
			zap.String("actor_id", identity.ID),
			zap.String("workspace_id", workspaceID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("get membership: %w", err)
	}

	if !m.Can(perm) {
		return nil, g.deny(ctx, identity, workspaceID, perm, "role lacks permission", zap.String("role", string(m.Role)))
	}

	g.metrics.ObserveAuthz(string(perm), telemetry.OutcomeAllowed)
	g.log.Debug(ctx, "workspace access granted",
		logger.Module("guard"),
		logger.Action("authorize"),
		zap.String("actor_id", identity.ID),
		zap.String("workspace_id", workspaceID),
		zap.String("permission", string(perm)),
		zap.String("role", string(m.Role)),
	)
	return m, nil
}

// AuthorizeProject resolves the project first. A missing project, or one that
// belongs to another workspace, is NotFound and is reported before any membership check.
func (g *Guard) AuthorizeProject(ctx context.Context, identity *domain.Identity, workspaceID, projectID string, perm domain.Permission) (*domain.Membership, *domain.Project, error) {
	project, err := g.resolveProject(ctx, workspaceID, projectID, perm)
	if err != nil {
		return nil, nil, err
	}

	m, err := g.Authorize(ctx, identity, workspaceID, perm)
	if err != nil {
		return nil, nil, err
	}
	return m, project, nil
}

// AuthorizeTask resolves task -> project -> workspace. Any broken link or any
// mismatch with the supplied workspaceID (or projectID, when non-empty) is NotFound.
func (g *Guard) AuthorizeTask(ctx context.Context, identity *domain.Identity, workspaceID, projectID, taskID string, perm domain.Permission) (*domain.Membership, *domain.Task, error) {
	task, err := g.tasks.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, g.notFound(ctx, workspaceID, perm, "task", taskID)
		}
		return nil, nil, fmt.Errorf("get task: %w", err)
	}
	if task.WorkspaceID != workspaceID || (projectID != "" && task.ProjectID != projectID) {
		return nil, nil, g.notFound(ctx, workspaceID, perm, "task", taskID)
	}

	if _, err := g.resolveProject(ctx, workspaceID, task.ProjectID, perm); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, g.notFound(ctx, workspaceID, perm, "task", taskID)
		}
		return nil, nil, err
	}

	m, err := g.Authorize(ctx, identity, workspaceID, perm)
	if err != nil {
		return nil, nil, err
	}
	return m, task, nil
}

func (g *Guard) resolveProject(ctx context.Context, workspaceID, projectID string, perm domain.Permission) (*domain.Project, error) {
	project, err := g.projects.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, g.notFound(ctx, workspaceID, perm, "project", projectID)
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	if project.WorkspaceID != workspaceID {
		return nil, g.notFound(ctx, workspaceID, perm, "project", projectID)
	}
	return project, nil
}

func (g *Guard) deny(ctx context.Context, identity *domain.Identity, workspaceID string, perm domain.Permission, reason string, extra ...logger.Field) error {
	g.metrics.ObserveAuthz(string(perm), telemetry.OutcomeDenied)

	actorID := ""
	if identity != nil {
		actorID = identity.ID
	}
	fields := append([]logger.Field{
		logger.Module("guard"),
		logger.Action("authorize"),
		zap.String("actor_id", actorID),
		zap.String("workspace_id", workspaceID),
		zap.String("permission", string(perm)),
		zap.String("reason", reason),
	}, extra...)
	g.log.Warn(ctx, "workspace access denied", fields...)

	return domain.PermissionDeniedError("permission denied: %s", perm)
}

func (g *Guard) notFound(ctx context.Context, workspaceID string, perm domain.Permission, kind, id string) error {
	g.metrics.ObserveAuthz(string(perm), telemetry.OutcomeNotFound)
	g.log.Info(ctx, "resource not found in workspace",
		logger.Module("guard"),
		logger.Action("resolve"),
		zap.String("workspace_id", workspaceID),
		zap.String("resource_type", kind),
		zap.String("resource_id", id),
	)
	return domain.NotFoundError("%s not found", kind)
}
