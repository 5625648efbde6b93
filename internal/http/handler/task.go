package handler

import (
	"context"
	"net/http"

	"teamboard-api/internal/domain"
	"teamboard-api/internal/http/httperr"
	"teamboard-api/internal/observability/logger"

	"go.uber.org/zap"
)

// TaskService is implemented by service.TaskService.
type TaskService interface {
	CreateTask(ctx context.Context, identity *domain.Identity, workspaceID, projectID string, req *domain.CreateTaskRequest) (*domain.Task, error)
	GetTask(ctx context.Context, identity *domain.Identity, workspaceID, taskID string) (*domain.Task, error)
	GetProjectTask(ctx context.Context, identity *domain.Identity, workspaceID, projectID, taskID string) (*domain.Task, error)
	ListTasks(ctx context.Context, identity *domain.Identity, workspaceID string, params domain.ListTasksParams) (*domain.TaskListResponse, error)
	UpdateTask(ctx context.Context, identity *domain.Identity, workspaceID, taskID string, req *domain.UpdateTaskRequest) (*domain.Task, error)
	DeleteTask(ctx context.Context, identity *domain.Identity, workspaceID, taskID string) error
}

type TaskHandler struct {
	service TaskService
}

func NewTaskHandler(service TaskService) *TaskHandler {
	return &TaskHandler{service: service}
}

// ListTasks handles GET /v1/workspaces/{workspaceId}/tasks
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
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

	params := domain.ListTasksParams{
		ProjectID:  queryString(r, "projectId"),
		AssignedTo: queryString(r, "assignedTo"),
		Keyword:    queryString(r, "q"),
		Limit:      limit,
		Offset:     offset,
	}
	if v := queryString(r, "status"); v != nil {
		status := domain.TaskStatus(*v)
		params.Status = &status
	}
	if v := queryString(r, "priority"); v != nil {
		priority := domain.Priority(*v)
		params.Priority = &priority
	}

	logger.GetLogger(ctx).Debug(ctx, "listing tasks",
		logger.Module("task"),
		logger.Action("list"),
		zap.Int("limit", limit),
		zap.Int("offset", offset),
	)

	resp, err := h.service.ListTasks(ctx, identity, workspaceID, params)
	if err != nil {
		httperr.FromDomainError(w, ctx, err)
		return
	}
	if resp.Data == nil {
		resp.Data = []domain.Task{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateTask handles POST /v1/workspaces/{workspaceId}/projects/{projectId}/tasks
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	identity, workspaceID, projectID, ok := projectScope(w, r)
	if !ok {
		return
	}

	var req domain.CreateTaskRequest
	if !decodeBody(w, r, &req) {
		return
	}

	t, err := h.service.CreateTask(r.Context(), identity, workspaceID, projectID, &req)
	if err != nil {
		httperr.FromDomainError(w, r.Context(), err)
		return
	}
	w.Header().Set("Location", "/v1/workspaces/"+workspaceID+"/tasks/"+t.ID)
	writeJSON(w, http.StatusCreated, t)
}

// GetTask handles GET /v1/workspaces/{workspaceId}/tasks/{taskId}
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	identity, workspaceID, taskID, ok := taskScope(w, r)
	if !ok {
		return
	}

	t, err := h.service.GetTask(r.Context(), identity, workspaceID, taskID)
	if err != nil {
		httperr.FromDomainError(w, r.Context(), err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// GetProjectTask handles GET /v1/workspaces/{workspaceId}/projects/{projectId}/tasks/{taskId}
func (h *TaskHandler) GetProjectTask(w http.ResponseWriter, r *http.Request) {
	identity, workspaceID, projectID, ok := projectScope(w, r)
	if !ok {
		return
	}
	taskID, ok := pathID(w, r, "taskId")
	if !ok {
		return
	}

	t, err := h.service.GetProjectTask(r.Context(), identity, workspaceID, projectID, taskID)
	if err != nil {
		httperr.FromDomainError(w, r.Context(), err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// UpdateTask handles PATCH /v1/workspaces/{workspaceId}/tasks/{taskId}
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	identity, workspaceID, taskID, ok := taskScope(w, r)
	if !ok {
		return
	}

	var req domain.UpdateTaskRequest
	if !decodeBody(w, r, &req) {
		return
	}

	t, err := h.service.UpdateTask(r.Context(), identity, workspaceID, taskID, &req)
	if err != nil {
		httperr.FromDomainError(w, r.Context(), err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// DeleteTask handles DELETE /v1/workspaces/{workspaceId}/tasks/{taskId}
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	identity, workspaceID, taskID, ok := taskScope(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteTask(r.Context(), identity, workspaceID, taskID); err != nil {
		httperr.FromDomainError(w, r.Context(), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func taskScope(w http.ResponseWriter, r *http.Request) (*domain.Identity, string, string, bool) {
	identity, workspaceID, ok := workspaceScope(w, r)
	if !ok {
		return nil, "", "", false
	}
	taskID, ok := pathID(w, r, "taskId")
	if !ok {
		return nil, "", "", false
	}
	return identity, workspaceID, taskID, true
}
