package service

import (
	"context"
	"errors"
	"fmt"

	"teamboard-api/internal/domain"
	"teamboard-api/internal/observability/logger"
	"teamboard-api/internal/repo"
)

type TaskService struct {
	tasks       TaskStore
	memberships MembershipStore
	guard       *Guard
	audit       AuditLogger
	log         *logger.Logger
}

func NewTaskService(tasks TaskStore, memberships MembershipStore, guard *Guard, audit AuditLogger, log *logger.Logger) *TaskService {
	return &TaskService{
		tasks:       tasks,
		memberships: memberships,
		guard:       guard,
		audit:       audit,
		log:         log,
	}
}

// CreateTask requires create-task in the project's workspace. The assignee, when
// given, must be a member of the same workspace.
func (s *TaskService) CreateTask(ctx context.Context, identity *domain.Identity, workspaceID, projectID string, req *domain.CreateTaskRequest) (*domain.Task, error) {
	if _, _, err := s.guard.AuthorizeProject(ctx, identity, workspaceID, projectID, domain.PermCreateTask); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkAssignee(ctx, workspaceID, req.AssignedTo); err != nil {
		return nil, err
	}

	t := &domain.Task{
		ID:          newID(),
		WorkspaceID: workspaceID,
		ProjectID:   projectID,
		Title:       req.Title,
		Description: req.Description,
		Status:      domain.TaskStatusTodo,
		Priority:    domain.PriorityMedium,
		AssignedTo:  req.AssignedTo,
		CreatedBy:   identity.ID,
		DueDate:     req.DueDate,
	}
	if req.Status != nil {
		t.Status = *req.Status
	}
	if req.Priority != nil {
		t.Priority = *req.Priority
	}

	if err := s.tasks.CreateTask(ctx, t); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	recordAudit(ctx, s.audit, s.log, repo.AuditEntry{
		WorkspaceID: workspaceID, ActorID: identity.ID, Action: "create", ResourceType: "task", ResourceID: strPtr(t.ID),
	})
	return t, nil
}

// GetTask requires view-task.
func (s *TaskService) GetTask(ctx context.Context, identity *domain.Identity, workspaceID, taskID string) (*domain.Task, error) {
	return s.GetProjectTask(ctx, identity, workspaceID, "", taskID)
}

// GetProjectTask is GetTask scoped to one project. A task of another project is NotFound.
func (s *TaskService) GetProjectTask(ctx context.Context, identity *domain.Identity, workspaceID, projectID, taskID string) (*domain.Task, error) {
	_, t, err := s.guard.AuthorizeTask(ctx, identity, workspaceID, projectID, taskID, domain.PermViewTask)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ListTasks requires view-task. A project filter must name a project of this workspace.
func (s *TaskService) ListTasks(ctx context.Context, identity *domain.Identity, workspaceID string, params domain.ListTasksParams) (*domain.TaskListResponse, error) {
	params.WorkspaceID = workspaceID
	params.Normalize()

	if params.ProjectID != nil {
		if _, _, err := s.guard.AuthorizeProject(ctx, identity, workspaceID, *params.ProjectID, domain.PermViewTask); err != nil {
			return nil, err
		}
	} else if _, err := s.guard.Authorize(ctx, identity, workspaceID, domain.PermViewTask); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	tasks, total, err := s.tasks.ListTasks(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	resp := &domain.TaskListResponse{Data: tasks}
	resp.Meta.Total = total
	resp.Meta.Limit = params.Limit
	resp.Meta.Offset = params.Offset
	return resp, nil
}

// UpdateTask requires update-task. Members may only update tasks they created.
func (s *TaskService) UpdateTask(ctx context.Context, identity *domain.Identity, workspaceID, taskID string, req *domain.UpdateTaskRequest) (*domain.Task, error) {
	m, current, err := s.guard.AuthorizeTask(ctx, identity, workspaceID, "", taskID, domain.PermUpdateTask)
	if err != nil {
		return nil, err
	}
	if m.Role == domain.RoleMember && current.CreatedBy != identity.ID {
		return nil, domain.PermissionDeniedError("members can only update their own tasks")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.IsEmpty() {
		return current, nil
	}
	if err := s.checkAssignee(ctx, workspaceID, req.AssignedTo); err != nil {
		return nil, err
	}

	t, err := s.tasks.UpdateTask(ctx, taskID, req)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}

	recordAudit(ctx, s.audit, s.log, repo.AuditEntry{
		WorkspaceID: workspaceID, ActorID: identity.ID, Action: "update", ResourceType: "task", ResourceID: strPtr(taskID),
	})
	return t, nil
}

// DeleteTask requires delete-task.
func (s *TaskService) DeleteTask(ctx context.Context, identity *domain.Identity, workspaceID, taskID string) error {
	if _, _, err := s.guard.AuthorizeTask(ctx, identity, workspaceID, "", taskID, domain.PermDeleteTask); err != nil {
		return err
	}

	if err := s.tasks.DeleteTask(ctx, taskID); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}

	recordAudit(ctx, s.audit, s.log, repo.AuditEntry{
		WorkspaceID: workspaceID, ActorID: identity.ID, Action: "delete", ResourceType: "task", ResourceID: strPtr(taskID),
	})
	return nil
}

func (s *TaskService) checkAssignee(ctx context.Context, workspaceID string, assignee *string) error {
	if assignee == nil {
		return nil
	}
	_, err := s.memberships.GetMembership(ctx, workspaceID, *assignee)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ValidationError("assignee is not a member of this workspace", map[string]string{"assignedTo": "member"})
		}
		return fmt.Errorf("check assignee: %w", err)
	}
	return nil
}
