package handler

import (
	"net/http"

	"teamboard-api/internal/domain"
	"teamboard-api/internal/http/httperr"

	"github.com/google/uuid"
)

// MeResponse is the caller's identity together with every workspace it belongs to.
type MeResponse struct {
	Identity   *domain.Identity          `json:"identity"`
	Workspaces []domain.WorkspaceSummary `json:"workspaces"`
}

// SwitchWorkspaceRequest DTO for PUT /v1/me/current-workspace.
type SwitchWorkspaceRequest struct {
	WorkspaceID string `json:"workspaceId"`
}

type MeHandler struct {
	workspaces WorkspaceService
}

func NewMeHandler(workspaces WorkspaceService) *MeHandler {
	return &MeHandler{workspaces: workspaces}
}

// GetMe handles GET /v1/me
func (h *MeHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := currentIdentity(w, r)
	if !ok {
		return
	}

	list, err := h.workspaces.ListWorkspaces(r.Context(), identity)
	if err != nil {
		httperr.FromDomainError(w, r.Context(), err)
		return
	}
	if list == nil {
		list = []domain.WorkspaceSummary{}
	}
	writeJSON(w, http.StatusOK, MeResponse{Identity: identity, Workspaces: list})
}

// SwitchWorkspace handles PUT /v1/me/current-workspace
func (h *MeHandler) SwitchWorkspace(w http.ResponseWriter, r *http.Request) {
	identity, ok := currentIdentity(w, r)
	if !ok {
		return
	}

	var req SwitchWorkspaceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := uuid.Parse(req.WorkspaceID)
	if err != nil {
		httperr.BadRequest400WithFields(w, r.Context(), httperr.ErrCodeValidationError, "invalid request",
			map[string]string{"workspaceId": "uuid"})
		return
	}

	updated, err := h.workspaces.SwitchWorkspace(r.Context(), identity, id.String())
	if err != nil {
		httperr.FromDomainError(w, r.Context(), err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
