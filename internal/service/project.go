package service

import (
	"context"
	"fmt"
	"time"

	"teamboard-api/internal/domain"
	"teamboard-api/internal/observability/logger"
	"teamboard-api/internal/repo"
)

type ProjectService struct {
	projects ProjectStore
	tasks    TaskStore
	guard    *Guard
	audit    AuditLogger
	log      *logger.Logger
	now      Clock
}

func NewProjectService(projects ProjectStore, tasks TaskStore, guard *Guard, audit AuditLogger, log *logger.Logger) *ProjectService {
	return &ProjectService{
		projects: projects,
		tasks:    tasks,
		guard:    guard,
		audit:    audit,
		log:      log,
		now:      time.Now,
	}
}

// CreateProject requires create-project.
func (s *ProjectService) CreateProject(ctx context.Context, identity *domain.Identity, workspaceID string, req *domain.CreateProjectRequest) (*domain.Project, error) {
	if _, err := s.guard.Authorize(ctx, identity, workspaceID, domain.PermCreateProject); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p := &domain.Project{
		ID:          newID(),
		WorkspaceID: workspaceID,
		Name:        req.Name,
		Emoji:       req.Emoji,
		Description: req.Description,
		CreatedBy:   identity.ID,
	}
	if err := s.projects.CreateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}

	recordAudit(ctx, s.audit, s.log, repo.AuditEntry{
		WorkspaceID: workspaceID, ActorID: identity.ID, Action: "create", ResourceType: "project", ResourceID: strPtr(p.ID),
	})
	return p, nil
}

// GetProject requires view-project.
func (s *ProjectService) GetProject(ctx context.Context, identity *domain.Identity, workspaceID, projectID string) (*domain.Project, error) {
	_, p, err := s.guard.AuthorizeProject(ctx, identity, workspaceID, projectID, domain.PermViewProject)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListProjects requires view-project.
func (s *ProjectService) ListProjects(ctx context.Context, identity *domain.Identity, workspaceID string, params domain.ListProjectsParams) (*domain.ProjectListResponse, error) {
	if _, err := s.guard.Authorize(ctx, identity, workspaceID, domain.PermViewProject); err != nil {
		return nil, err
	}

	params.WorkspaceID = workspaceID
	params.Normalize()

	projects, total, err := s.projects.ListProjects(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	resp := &domain.ProjectListResponse{Data: projects}
	resp.Meta.Total = total
	resp.Meta.Limit = params.Limit
	resp.Meta.Offset = params.Offset
	return resp, nil
}

// UpdateProject requires update-project.
func (s *ProjectService) UpdateProject(ctx context.Context, identity *domain.Identity, workspaceID, projectID string, req *domain.UpdateProjectRequest) (*domain.Project, error) {
	if _, _, err := s.guard.AuthorizeProject(ctx, identity, workspaceID, projectID, domain.PermUpdateProject); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p, err := s.projects.UpdateProject(ctx, projectID, req)
	if err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}

	recordAudit(ctx, s.audit, s.log, repo.AuditEntry{
		WorkspaceID: workspaceID, ActorID: identity.ID, Action: "update", ResourceType: "project", ResourceID: strPtr(projectID),
	})
	return p, nil
}

// DeleteProject requires delete-project. The project's tasks are deleted with it.
func (s *ProjectService) DeleteProject(ctx context.Context, identity *domain.Identity, workspaceID, projectID string) error {
	if _, _, err := s.guard.AuthorizeProject(ctx, identity, workspaceID, projectID, domain.PermDeleteProject); err != nil {
		return err
	}

	if err := s.projects.DeleteProject(ctx, projectID); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}

	recordAudit(ctx, s.audit, s.log, repo.AuditEntry{
		WorkspaceID: workspaceID, ActorID: identity.ID, Action: "delete", ResourceType: "project", ResourceID: strPtr(projectID),
	})
	return nil
}

// Analytics requires view-analytics on the project's workspace.
func (s *ProjectService) Analytics(ctx context.Context, identity *domain.Identity, workspaceID, projectID string) (*domain.Analytics, error) {
	if _, _, err := s.guard.AuthorizeProject(ctx, identity, workspaceID, projectID, domain.PermViewAnalytics); err != nil {
		return nil, err
	}
	a, err := s.tasks.ProjectAnalytics(ctx, workspaceID, projectID, s.now())
	if err != nil {
		return nil, fmt.Errorf("project analytics: %w", err)
	}
	return a, nil
}
