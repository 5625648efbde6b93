package handler

import (
	"context"
	"net/http"

	"teamboard-api/internal/domain"
	"teamboard-api/internal/http/httperr"
)

// ProjectService is implemented by service.ProjectService.
type ProjectService interface {
	CreateProject(ctx context.Context, identity *domain.Identity, workspaceID string, req *domain.CreateProjectRequest) (*domain.Project, error)
	GetProject(ctx context.Context, identity *domain.Identity, workspaceID, projectID string) (*domain.Project, error)
	ListProjects(ctx context.Context, identity *domain.Identity, workspaceID string, params domain.ListProjectsParams) (*domain.ProjectListResponse, error)
	UpdateProject(ctx context.Context, identity *domain.Identity, workspaceID, projectID string, req *domain.UpdateProjectRequest) (*domain.Project, error)
	DeleteProject(ctx context.Context, identity *domain.Identity, workspaceID, projectID string) error
	Analytics(ctx context.Context, identity *domain.Identity, workspaceID, projectID string) (*domain.Analytics, error)
}

type ProjectHandler struct {
	service ProjectService
}

func NewProjectHandler(service ProjectService) *ProjectHandler {
	return &ProjectHandler{service: service}
}

// CreateProject handles POST /v1/workspaces/{workspaceId}/projects
func (h *ProjectHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	identity, workspaceID, ok := workspaceScope(w, r)
	if !ok {
		return
	}

	var req domain.CreateProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}

	p, err := h.service.CreateProject(r.Context(), identity, workspaceID, &req)
	if err != nil {
		httperr.FromDomainError(w, r.Context(), err)
		return
	}
	w.Header().Set("Location", "/v1/workspaces/"+workspaceID+"/projects/"+p.ID)
	writeJSON(w, http.StatusCreated, p)
}

// ListProjects handles GET /v1/workspaces/{workspaceId}/projects
func (h *ProjectHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	identity, workspaceID, ok := workspaceScope(w, r)
	if !ok {
		return
	}

	limit, ok := queryInt(w, r, "limit", 0)
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset", 0)
	if !ok {
		return
	}

	resp, err := h.service.ListProjects(r.Context(), identity, workspaceID, domain.ListProjectsParams{Limit: limit, Offset: offset})
	if err != nil {
		httperr.FromDomainError(w, r.Context(), err)
		return
	}
	if resp.Data == nil {
		resp.Data = []domain.Project{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetProject handles GET /v1/workspaces/{workspaceId}/projects/{projectId}
func (h *ProjectHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	identity, workspaceID, projectID, ok := projectScope(w, r)
	if !ok {
		return
	}

	p, err := h.service.GetProject(r.Context(), identity, workspaceID, projectID)
	if err != nil {
		httperr.FromDomainError(w, r.Context(), err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpdateProject handles PATCH /v1/workspaces/{workspaceId}/projects/{projectId}
func (h *ProjectHandler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	identity, workspaceID, projectID, ok := projectScope(w, r)
	if !ok {
		return
	}

	var req domain.UpdateProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}

	p, err := h.service.UpdateProject(r.Context(), identity, workspaceID, projectID, &req)
	if err != nil {
		httperr.FromDomainError(w, r.Context(), err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeleteProject handles DELETE /v1/workspaces/{workspaceId}/projects/{projectId}
func (h *ProjectHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	identity, workspaceID, projectID, ok := projectScope(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteProject(r.Context(), identity, workspaceID, projectID); err != nil {
		httperr.FromDomainError(w, r.Context(), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Analytics handles GET /v1/workspaces/{workspaceId}/projects/{projectId}/analytics
func (h *ProjectHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	identity, workspaceID, projectID, ok := projectScope(w, r)
	if !ok {
		return
	}

	a, err := h.service.Analytics(r.Context(), identity, workspaceID, projectID)
	if err != nil {
		httperr.FromDomainError(w, r.Context(), err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func projectScope(w http.ResponseWriter, r *http.Request) (*domain.Identity, string, string, bool) {
	identity, workspaceID, ok := workspaceScope(w, r)
	if !ok {
		return nil, "", "", false
	}
	projectID, ok := pathID(w, r, "projectId")
	if !ok {
		return nil, "", "", false
	}
	return identity, workspaceID, projectID, true
}
