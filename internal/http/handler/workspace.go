package handler

import (
	"context"
	"net/http"

	"teamboard-api/internal/domain"
	"teamboard-api/internal/http/httperr"
	"teamboard-api/internal/observability/logger"

	"go.uber.org/zap"
)

// WorkspaceService is implemented by service.WorkspaceService.
type WorkspaceService interface {
	CreateWorkspace(ctx context.Context, identity *domain.Identity, req *domain.CreateWorkspaceRequest) (*domain.Workspace, error)
	GetWorkspace(ctx context.Context, identity *domain.Identity, workspaceID string) (*domain.Workspace, error)
	ListWorkspaces(ctx context.Context, identity *domain.Identity) ([]domain.WorkspaceSummary, error)
	UpdateWorkspace(ctx context.Context, identity *domain.Identity, workspaceID string, req *domain.UpdateWorkspaceRequest) (*domain.Workspace, error)
	DeleteWorkspace(ctx context.Context, identity *domain.Identity, workspaceID string) error
	RotateInviteCode(ctx context.Context, identity *domain.Identity, workspaceID string) (*domain.Workspace, error)
	ListMembers(ctx context.Context, identity *domain.Identity, workspaceID string) ([]domain.MemberView, error)
	Analytics(ctx context.Context, identity *domain.Identity, workspaceID string) (*domain.Analytics, error)
	SwitchWorkspace(ctx context.Context, identity *domain.Identity, workspaceID string) (*domain.Identity, error)
}

type WorkspaceHandler struct {
	service WorkspaceService
}

func NewWorkspaceHandler(service WorkspaceService) *WorkspaceHandler {
	return &WorkspaceHandler{service: service}
}

// WorkspaceListResponse wraps the caller's workspaces.
type WorkspaceListResponse struct {
	Data []domain.WorkspaceSummary `json:"data"`
}

// MemberListResponse wraps a workspace's members.
type MemberListResponse struct {
	Data []domain.MemberView `json:"data"`
}

// CreateWorkspace handles POST /v1/workspaces
func (h *WorkspaceHandler) CreateWorkspace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := currentIdentity(w, r)
	if !ok {
		return
	}

	var req domain.CreateWorkspaceRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ws, err := h.service.CreateWorkspace(ctx, identity, &req)
	if err != nil {
		httperr.FromDomainError(w, ctx, err)
		return
	}

	logger.GetLogger(ctx).Info(ctx, "workspace created",
		logger.Module("workspace"),
		logger.Action("create"),
		zap.String("workspace_id", ws.ID),
	)
	w.Header().Set("Location", "/v1/workspaces/"+ws.ID)
	writeJSON(w, http.StatusCreated, ws)
}

// ListWorkspaces handles GET /v1/workspaces
func (h *WorkspaceHandler) ListWorkspaces(w http.ResponseWriter, r *http.Request) {
	identity, ok := currentIdentity(w, r)
	if !ok {
		return
	}

	list, err := h.service.ListWorkspaces(r.Context(), identity)
	if err != nil {
		httperr.FromDomainError(w, r.Context(), err)
		return
	}
	if list == nil {
		list = []domain.WorkspaceSummary{}
	}
	writeJSON(w, http.StatusOK, WorkspaceListResponse{Data: list})
}

// GetWorkspace handles GET /v1/workspaces/{workspaceId}
func (h *WorkspaceHandler) GetWorkspace(w http.ResponseWriter, r *http.Request) {
	identity, workspaceID, ok := workspaceScope(w, r)
	if !ok {
		return
	}

	ws, err := h.service.GetWorkspace(r.Context(), identity, workspaceID)
	if err != nil {
		httperr.FromDomainError(w, r.Context(), err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

// UpdateWorkspace handles PATCH /v1/workspaces/{workspaceId}
func (h *WorkspaceHandler) UpdateWorkspace(w http.ResponseWriter, r *http.Request) {
	identity, workspaceID, ok := workspaceScope(w, r)
	if !ok {
		return
	}

	var req domain.UpdateWorkspaceRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ws, err := h.service.UpdateWorkspace(r.Context(), identity, workspaceID, &req)
	if err != nil {
		httperr.FromDomainError(w, r.Context(), err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

// DeleteWorkspace handles DELETE /v1/workspaces/{workspaceId}
func (h *WorkspaceHandler) DeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	identity, workspaceID, ok := workspaceScope(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteWorkspace(r.Context(), identity, workspaceID); err != nil {
		httperr.FromDomainError(w, r.Context(), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RotateInviteCode handles POST /v1/workspaces/{workspaceId}/invite-code/rotate
func (h *WorkspaceHandler) RotateInviteCode(w http.ResponseWriter, r *http.Request) {
	identity, workspaceID, ok := workspaceScope(w, r)
	if !ok {
		return
	}

	ws, err := h.service.RotateInviteCode(r.Context(), identity, workspaceID)
	if err != nil {
		httperr.FromDomainError(w, r.Context(), err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

// ListMembers handles GET /v1/workspaces/{workspaceId}/members
func (h *WorkspaceHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	identity, workspaceID, ok := workspaceScope(w, r)
	if !ok {
		return
	}

	members, err := h.service.ListMembers(r.Context(), identity, workspaceID)
	if err != nil {
		httperr.FromDomainError(w, r.Context(), err)
		return
	}
	if members == nil {
		members = []domain.MemberView{}
	}
	writeJSON(w, http.StatusOK, MemberListResponse{Data: members})
}

// Analytics handles GET /v1/workspaces/{workspaceId}/analytics
func (h *WorkspaceHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	identity, workspaceID, ok := workspaceScope(w, r)
	if !ok {
		return
	}

	a, err := h.service.Analytics(r.Context(), identity, workspaceID)
	if err != nil {
		httperr.FromDomainError(w, r.Context(), err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// workspaceScope resolves the caller and the {workspaceId} path parameter.
func workspaceScope(w http.ResponseWriter, r *http.Request) (*domain.Identity, string, bool) {
	identity, ok := currentIdentity(w, r)
	if !ok {
		return nil, "", false
	}
	workspaceID, ok := pathID(w, r, "workspaceId")
	if !ok {
		return nil, "", false
	}
	return identity, workspaceID, true
}
