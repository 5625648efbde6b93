package service

import (
	"context"
	"time"

	"teamboard-api/internal/domain"
	"teamboard-api/internal/repo"
)

// The stores below are implemented by the pgx repositories in internal/repo.
// Services depend on these interfaces so they can be exercised without Postgres.

// WorkspaceStore persists workspaces and their invite codes.
type WorkspaceStore interface {
	CreateWorkspace(ctx context.Context, ws *domain.Workspace, owner *domain.Membership) error
	GetWorkspace(ctx context.Context, workspaceID string) (*domain.Workspace, error)
	UpdateWorkspace(ctx context.Context, workspaceID string, req *domain.UpdateWorkspaceRequest) (*domain.Workspace, error)
	DeleteWorkspace(ctx context.Context, workspaceID string) error
	RotateInviteCode(ctx context.Context, workspaceID, newCode string) (*domain.Workspace, error)
	ListWorkspacesForIdentity(ctx context.Context, identityID string) ([]domain.WorkspaceSummary, error)
}

// MembershipStore persists memberships. ChangeRole and RemoveMember must run
// check and the last-Owner guard under a lock that serializes all membership
// writes of the workspace.
type MembershipStore interface {
	GetMembership(ctx context.Context, workspaceID, identityID string) (*domain.Membership, error)
	ListMembers(ctx context.Context, workspaceID string) ([]domain.MemberView, error)
	JoinByInviteCode(ctx context.Context, code string, m *domain.Membership) (*domain.Membership, bool, error)
	ChangeRole(ctx context.Context, workspaceID, actorID, targetID string, newRole domain.Role, check repo.MembershipCheck) (*domain.Membership, error)
	RemoveMember(ctx context.Context, workspaceID, actorID, targetID string, check repo.MembershipCheck) (*domain.Membership, error)
}

// IdentityStore reads identities and maintains the current-workspace pointer.
type IdentityStore interface {
	GetIdentity(ctx context.Context, identityID string) (*domain.Identity, error)
	SetCurrentWorkspace(ctx context.Context, identityID string, workspaceID *string) error
}

// ProjectStore persists projects.
type ProjectStore interface {
	CreateProject(ctx context.Context, p *domain.Project) error
	GetProject(ctx context.Context, projectID string) (*domain.Project, error)
	UpdateProject(ctx context.Context, projectID string, req *domain.UpdateProjectRequest) (*domain.Project, error)
	DeleteProject(ctx context.Context, projectID string) error
	ListProjects(ctx context.Context, params domain.ListProjectsParams) ([]domain.Project, int, error)
}

// TaskStore persists tasks and answers the analytics aggregation.
type TaskStore interface {
	CreateTask(ctx context.Context, t *domain.Task) error
	GetTask(ctx context.Context, taskID string) (*domain.Task, error)
	UpdateTask(ctx context.Context, taskID string, req *domain.UpdateTaskRequest) (*domain.Task, error)
	DeleteTask(ctx context.Context, taskID string) error
	ListTasks(ctx context.Context, params domain.ListTasksParams) ([]domain.Task, int, error)
	WorkspaceAnalytics(ctx context.Context, workspaceID string, now time.Time) (*domain.Analytics, error)
	ProjectAnalytics(ctx context.Context, workspaceID, projectID string, now time.Time) (*domain.Analytics, error)
}

// AuditLogger records mutations. Failures are logged, never returned to callers.
type AuditLogger interface {
	LogAction(ctx context.Context, entry repo.AuditEntry) error
}

var (
	_ WorkspaceStore  = (*repo.WorkspaceRepository)(nil)
	_ MembershipStore = (*repo.WorkspaceRepository)(nil)
	_ IdentityStore   = (*repo.UserRepository)(nil)
	_ ProjectStore    = (*repo.ProjectRepository)(nil)
	_ TaskStore       = (*repo.TaskRepository)(nil)
	_ AuditLogger     = (*repo.AuditRepo)(nil)
)
