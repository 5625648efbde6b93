package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"teamboard-api/internal/domain"
	"teamboard-api/internal/observability/logger"
	"teamboard-api/internal/repo"
	"teamboard-api/internal/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// MembershipService owns role changes, removals and the invite join protocol.
type MembershipService struct {
	memberships MembershipStore
	guard       *Guard
	audit       AuditLogger
	metrics     *telemetry.PromMetrics
	log         *logger.Logger
}

func NewMembershipService(memberships MembershipStore, guard *Guard, audit AuditLogger, metrics *telemetry.PromMetrics, log *logger.Logger) *MembershipService {
	return &MembershipService{
		memberships: memberships,
		guard:       guard,
		audit:       audit,
		metrics:     metrics,
		log:         log,
	}
}

// ChangeRole sets the target's role. Requires manage-roles; the permission is
// checked again under the workspace lock together with the last-Owner guard.
func (s *MembershipService) ChangeRole(ctx context.Context, identity *domain.Identity, workspaceID, targetID string, req *domain.ChangeRoleRequest) (*domain.Membership, error) {
	if _, err := s.guard.Authorize(ctx, identity, workspaceID, domain.PermManageRoles); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "membership.change_role", trace.WithAttributes(
		attribute.String("workspace_id", workspaceID),
		attribute.String("role", string(req.Role)),
	))
	defer span.End()

	m, err := s.memberships.ChangeRole(ctx, workspaceID, identity.ID, targetID, req.Role, changeRoleCheck)
	if err != nil {
		span.SetStatus(codes.Error, string(domain.KindOf(err)))
		s.observe(ctx, "change_role", workspaceID, identity.ID, targetID, err)
		return nil, wrapStoreErr("change role", err)
	}
	s.observe(ctx, "change_role", workspaceID, identity.ID, targetID, nil)

	recordAudit(ctx, s.audit, s.log, repo.AuditEntry{
		WorkspaceID:  workspaceID,
		ActorID:      identity.ID,
		Action:       "change_role",
		ResourceType: "membership",
		ResourceID:   strPtr(m.ID),
		Metadata:     map[string]interface{}{"identityId": targetID, "role": string(m.Role)},
	})
	return m, nil
}

func changeRoleCheck(actor, _ *domain.Membership) error {
	if !actor.Can(domain.PermManageRoles) {
		return domain.PermissionDeniedError("permission denied: %s", domain.PermManageRoles)
	}
	return nil
}

// RemoveMember deletes the target's membership.
//
// Any member may remove itself without manage-members. Removing someone else
// needs manage-members, and only an Owner may remove an Owner. The sole Owner
// can never leave.
func (s *MembershipService) RemoveMember(ctx context.Context, identity *domain.Identity, workspaceID, targetID string) error {
	perm := domain.PermManageMembers
	if identity != nil && identity.ID == targetID {
		perm = domain.PermViewWorkspace
	}
	if _, err := s.guard.Authorize(ctx, identity, workspaceID, perm); err != nil {
		return err
	}

	removed, err := s.memberships.RemoveMember(ctx, workspaceID, identity.ID, targetID, removeMemberCheck)
	if err != nil {
		s.observe(ctx, "remove_member", workspaceID, identity.ID, targetID, err)
		return wrapStoreErr("remove member", err)
	}
	s.observe(ctx, "remove_member", workspaceID, identity.ID, targetID, nil)

	recordAudit(ctx, s.audit, s.log, repo.AuditEntry{
		WorkspaceID:  workspaceID,
		ActorID:      identity.ID,
		Action:       "remove_member",
		ResourceType: "membership",
		ResourceID:   strPtr(removed.ID),
		Metadata:     map[string]interface{}{"identityId": targetID, "role": string(removed.Role)},
	})
	return nil
}

func removeMemberCheck(actor, target *domain.Membership) error {
	if actor.IdentityID == target.IdentityID {
		return nil
	}
	if !actor.Can(domain.PermManageMembers) {
		return domain.PermissionDeniedError("permission denied: %s", domain.PermManageMembers)
	}
	if target.IsOwner() && !actor.IsOwner() {
		return domain.PermissionDeniedError("only an owner can remove an owner")
	}
	return nil
}

// JoinByInviteCode turns a valid code into a Member membership. Joining twice
// returns the existing membership unchanged. Unknown and rotated codes fail
// with the same NotFound.
func (s *MembershipService) JoinByInviteCode(ctx context.Context, identity *domain.Identity, code string) (*domain.Membership, bool, error) {
	if err := requireActive(identity); err != nil {
		return nil, false, err
	}

	code = strings.TrimSpace(code)
	if code == "" {
		s.metrics.ObserveJoin("invalid")
		return nil, false, domain.NotFoundError("invalid or expired invite code")
	}

	ctx, span := telemetry.StartSpan(ctx, "membership.join")
	defer span.End()

	m, created, err := s.memberships.JoinByInviteCode(ctx, code, &domain.Membership{
		ID:         newID(),
		IdentityID: identity.ID,
		Role:       domain.RoleMember,
	})
	span.SetAttributes(attribute.Bool("created", created))
	if err != nil {
		span.SetStatus(codes.Error, "join failed")
		if errors.Is(err, domain.ErrNotFound) {
			s.metrics.ObserveJoin("invalid")
			s.log.Info(ctx, "join with invalid invite code",
				logger.Module("membership"),
				logger.Action("join"),
				zap.String("actor_id", identity.ID),
			)
			return nil, false, err
		}
		return nil, false, fmt.Errorf("join workspace: %w", err)
	}

	if !created {
		s.metrics.ObserveJoin("existing")
		return m, false, nil
	}

	s.metrics.ObserveJoin("created")
	s.log.Info(ctx, "identity joined workspace",
		logger.Module("membership"),
		logger.Action("join"),
		zap.String("workspace_id", m.WorkspaceID),
		zap.String("actor_id", identity.ID),
	)
	recordAudit(ctx, s.audit, s.log, repo.AuditEntry{
		WorkspaceID: m.WorkspaceID, ActorID: identity.ID, Action: "join", ResourceType: "membership", ResourceID: strPtr(m.ID),
	})
	return m, true, nil
}

func (s *MembershipService) observe(ctx context.Context, event, workspaceID, actorID, targetID string, err error) {
	if err == nil {
		s.metrics.ObserveMembership(event, "ok")
		s.log.Info(ctx, "membership updated",
			logger.Module("membership"),
			logger.Action(event),
			zap.String("workspace_id", workspaceID),
			zap.String("actor_id", actorID),
			zap.String("target_id", targetID),
		)
		return
	}

	kind := domain.KindOf(err)
	result := string(kind)
	if kind == "" {
		result = "error"
	}
	s.metrics.ObserveMembership(event, result)
	s.log.Warn(ctx, "membership update rejected",
		logger.Module("membership"),
		logger.Action(event),
		zap.String("workspace_id", workspaceID),
		zap.String("actor_id", actorID),
		zap.String("target_id", targetID),
		zap.String("kind", result),
		zap.Error(err),
	)
}

// wrapStoreErr keeps typed domain errors as they are and wraps storage failures.
func wrapStoreErr(op string, err error) error {
	if _, ok := domain.AsError(err); ok {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
