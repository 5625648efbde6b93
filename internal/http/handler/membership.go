package handler

import (
	"context"
	"net/http"

	"teamboard-api/internal/domain"
	"teamboard-api/internal/http/httperr"

	"github.com/go-chi/chi/v5"
)

// MembershipService is implemented by service.MembershipService.
type MembershipService interface {
	ChangeRole(ctx context.Context, identity *domain.Identity, workspaceID, targetID string, req *domain.ChangeRoleRequest) (*domain.Membership, error)
	RemoveMember(ctx context.Context, identity *domain.Identity, workspaceID, targetID string) error
	JoinByInviteCode(ctx context.Context, identity *domain.Identity, code string) (*domain.Membership, bool, error)
}

type MembershipHandler struct {
	service MembershipService
}

func NewMembershipHandler(service MembershipService) *MembershipHandler {
	return &MembershipHandler{service: service}
}

// ChangeRole handles PUT /v1/workspaces/{workspaceId}/members/{identityId}/role
func (h *MembershipHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	identity, workspaceID, ok := workspaceScope(w, r)
	if !ok {
		return
	}
	targetID := chi.URLParam(r, "identityId")

	var req domain.ChangeRoleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	m, err := h.service.ChangeRole(r.Context(), identity, workspaceID, targetID, &req)
	if err != nil {
		httperr.FromDomainError(w, r.Context(), err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// RemoveMember handles DELETE /v1/workspaces/{workspaceId}/members/{identityId}.
// Identities are issued by the identity provider, so {identityId} is opaque.
func (h *MembershipHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	identity, workspaceID, ok := workspaceScope(w, r)
	if !ok {
		return
	}

	if err := h.service.RemoveMember(r.Context(), identity, workspaceID, chi.URLParam(r, "identityId")); err != nil {
		httperr.FromDomainError(w, r.Context(), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// JoinByInviteCode handles POST /v1/invites/{inviteCode}/join.
// 201 for a new membership, 200 when the caller was already a member.
func (h *MembershipHandler) JoinByInviteCode(w http.ResponseWriter, r *http.Request) {
	identity, ok := currentIdentity(w, r)
	if !ok {
		return
	}

	m, created, err := h.service.JoinByInviteCode(r.Context(), identity, chi.URLParam(r, "inviteCode"))
	if err != nil {
		httperr.FromDomainError(w, r.Context(), err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, m)
}
