package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"teamboard-api/internal/domain"
	"teamboard-api/internal/observability/logger"
	"teamboard-api/internal/repo"

	"go.uber.org/zap"
)

// maxInviteCodeAttempts bounds regeneration when a freshly drawn code collides
// with one already issued. Storage errors are never retried.
const maxInviteCodeAttempts = 3

type WorkspaceService struct {
	workspaces  WorkspaceStore
	memberships MembershipStore
	identities  IdentityStore
	tasks       TaskStore
	guard       *Guard
	audit       AuditLogger
	log         *logger.Logger

	newInviteCode func() (string, error)
	now           Clock
}

func NewWorkspaceService(
	workspaces WorkspaceStore,
	memberships MembershipStore,
	identities IdentityStore,
	tasks TaskStore,
	guard *Guard,
	audit AuditLogger,
	log *logger.Logger,
) *WorkspaceService {
	return &WorkspaceService{
		workspaces:    workspaces,
		memberships:   memberships,
		identities:    identities,
		tasks:         tasks,
		guard:         guard,
		audit:         audit,
		log:           log,
		newInviteCode: GenerateInviteCode,
		now:           time.Now,
	}
}

// CreateWorkspace creates the workspace and the creator's Owner membership atomically.
func (s *WorkspaceService) CreateWorkspace(ctx context.Context, identity *domain.Identity, req *domain.CreateWorkspaceRequest) (*domain.Workspace, error) {
	if err := requireActive(identity); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxInviteCodeAttempts; attempt++ {
		code, err := s.newInviteCode()
		if err != nil {
			return nil, err
		}

		ws := &domain.Workspace{
			ID:          newID(),
			OwnerID:     identity.ID,
			Name:        req.Name,
			Description: req.Description,
			InviteCode:  code,
		}
		owner := &domain.Membership{ID: newID(), IdentityID: identity.ID, Role: domain.RoleOwner}

		err = s.workspaces.CreateWorkspace(ctx, ws, owner)
		if err == nil {
			s.log.Info(ctx, "workspace created",
				logger.Module("workspace"),
				logger.Action("create"),
				zap.String("workspace_id", ws.ID),
				zap.String("actor_id", identity.ID),
			)
			recordAudit(ctx, s.audit, s.log, repo.AuditEntry{
				WorkspaceID: ws.ID, ActorID: identity.ID, Action: "create", ResourceType: "workspace", ResourceID: strPtr(ws.ID),
			})
			return ws, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("create workspace: %w", err)
		}
		lastErr = err
	}
	return nil, lastErr
}

// GetWorkspace requires view-workspace.
func (s *WorkspaceService) GetWorkspace(ctx context.Context, identity *domain.Identity, workspaceID string) (*domain.Workspace, error) {
	if _, err := s.guard.Authorize(ctx, identity, workspaceID, domain.PermViewWorkspace); err != nil {
		return nil, err
	}
	ws, err := s.workspaces.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("get workspace: %w", err)
	}
	return ws, nil
}

// ListWorkspaces returns the caller's workspaces with the caller's role in each.
func (s *WorkspaceService) ListWorkspaces(ctx context.Context, identity *domain.Identity) ([]domain.WorkspaceSummary, error) {
	if err := requireActive(identity); err != nil {
		return nil, err
	}
	out, err := s.workspaces.ListWorkspacesForIdentity(ctx, identity.ID)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	return out, nil
}

// UpdateWorkspace requires manage-workspace.
func (s *WorkspaceService) UpdateWorkspace(ctx context.Context, identity *domain.Identity, workspaceID string, req *domain.UpdateWorkspaceRequest) (*domain.Workspace, error) {
	if _, err := s.guard.Authorize(ctx, identity, workspaceID, domain.PermManageWorkspace); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ws, err := s.workspaces.UpdateWorkspace(ctx, workspaceID, req)
	if err != nil {
		return nil, fmt.Errorf("update workspace: %w", err)
	}

	recordAudit(ctx, s.audit, s.log, repo.AuditEntry{
		WorkspaceID: workspaceID, ActorID: identity.ID, Action: "update", ResourceType: "workspace", ResourceID: strPtr(workspaceID),
	})
	return ws, nil
}

// DeleteWorkspace requires delete-workspace. Memberships, projects and tasks cascade.
func (s *WorkspaceService) DeleteWorkspace(ctx context.Context, identity *domain.Identity, workspaceID string) error {
	if _, err := s.guard.Authorize(ctx, identity, workspaceID, domain.PermDeleteWorkspace); err != nil {
		return err
	}

	if err := s.workspaces.DeleteWorkspace(ctx, workspaceID); err != nil {
		return fmt.Errorf("delete workspace: %w", err)
	}

	s.log.Info(ctx, "workspace deleted",
		logger.Module("workspace"),
		logger.Action("delete"),
		zap.String("workspace_id", workspaceID),
		zap.String("actor_id", identity.ID),
	)
	recordAudit(ctx, s.audit, s.log, repo.AuditEntry{
		WorkspaceID: workspaceID, ActorID: identity.ID, Action: "delete", ResourceType: "workspace", ResourceID: strPtr(workspaceID),
	})
	return nil
}

// RotateInviteCode requires manage-workspace. The previous code stops working
// as soon as the rotation commits.
func (s *WorkspaceService) RotateInviteCode(ctx context.Context, identity *domain.Identity, workspaceID string) (*domain.Workspace, error) {
	if _, err := s.guard.Authorize(ctx, identity, workspaceID, domain.PermManageWorkspace); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxInviteCodeAttempts; attempt++ {
		code, err := s.newInviteCode()
		if err != nil {
			return nil, err
		}

		ws, err := s.workspaces.RotateInviteCode(ctx, workspaceID, code)
		if err == nil {
			s.log.Info(ctx, "invite code rotated",
				logger.Module("workspace"),
				logger.Action("rotate_invite_code"),
				zap.String("workspace_id", workspaceID),
				zap.String("actor_id", identity.ID),
			)
			recordAudit(ctx, s.audit, s.log, repo.AuditEntry{
				WorkspaceID: workspaceID, ActorID: identity.ID, Action: "rotate_invite_code", ResourceType: "workspace", ResourceID: strPtr(workspaceID),
			})
			return ws, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("rotate invite code: %w", err)
		}
		lastErr = err
	}
	return nil, lastErr
}

// ListMembers requires view-workspace.
func (s *WorkspaceService) ListMembers(ctx context.Context, identity *domain.Identity, workspaceID string) ([]domain.MemberView, error) {
	if _, err := s.guard.Authorize(ctx, identity, workspaceID, domain.PermViewWorkspace); err != nil {
		return nil, err
	}
	members, err := s.memberships.ListMembers(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// Analytics requires view-analytics.
func (s *WorkspaceService) Analytics(ctx context.Context, identity *domain.Identity, workspaceID string) (*domain.Analytics, error) {
	if _, err := s.guard.Authorize(ctx, identity, workspaceID, domain.PermViewAnalytics); err != nil {
		return nil, err
	}
	a, err := s.tasks.WorkspaceAnalytics(ctx, workspaceID, s.now())
	if err != nil {
		return nil, fmt.Errorf("workspace analytics: %w", err)
	}
	return a, nil
}

// SwitchWorkspace moves the caller's current-workspace pointer. Only a member may
// point at a workspace; the pointer itself grants nothing.
func (s *WorkspaceService) SwitchWorkspace(ctx context.Context, identity *domain.Identity, workspaceID string) (*domain.Identity, error) {
	if _, err := s.guard.Authorize(ctx, identity, workspaceID, domain.PermViewWorkspace); err != nil {
		return nil, err
	}
	if err := s.identities.SetCurrentWorkspace(ctx, identity.ID, &workspaceID); err != nil {
		return nil, fmt.Errorf("switch workspace: %w", err)
	}
	updated, err := s.identities.GetIdentity(ctx, identity.ID)
	if err != nil {
		return nil, fmt.Errorf("reload identity: %w", err)
	}
	return updated, nil
}
