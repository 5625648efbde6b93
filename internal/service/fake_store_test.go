package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"teamboard-api/internal/domain"
	"teamboard-api/internal/observability/logger"
	"teamboard-api/internal/repo"
	"teamboard-api/internal/telemetry"

	"github.com/stretchr/testify/require"
)

// memStore implements every store interface in memory. A single mutex plays the
// role of the workspace row lock in Postgres.
type memStore struct {
	mu sync.Mutex

	users       map[string]*domain.Identity
	workspaces  map[string]*domain.Workspace
	issuedCodes map[string]bool
	members     map[string]map[string]*domain.Membership
	projects    map[string]*domain.Project
	tasks       map[string]*domain.Task
	audit       []repo.AuditEntry

	clock time.Time
}

func newMemStore() *memStore {
	return &memStore{
		users:       map[string]*domain.Identity{},
		workspaces:  map[string]*domain.Workspace{},
		issuedCodes: map[string]bool{},
		members:     map[string]map[string]*domain.Membership{},
		projects:    map[string]*domain.Project{},
		tasks:       map[string]*domain.Task{},
		clock:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// tick returns strictly increasing timestamps so join order is deterministic.
func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) addUser(id string, active bool) *domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &domain.Identity{ID: id, Email: id + "@example.com", Name: id, IsActive: active}
	s.users[id] = u
	cp := *u
	return &cp
}

// ---- WorkspaceStore ----

func (s *memStore) CreateWorkspace(_ context.Context, ws *domain.Workspace, owner *domain.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.issuedCodes[ws.InviteCode] {
		return domain.ConflictError("invite code already issued", nil)
	}
	if _, ok := s.users[ws.OwnerID]; !ok {
		return domain.NotFoundError("identity %s not found", ws.OwnerID)
	}

	now := s.tick()
	ws.CreatedAt, ws.UpdatedAt = now, now
	owner.WorkspaceID = ws.ID
	owner.Role = domain.RoleOwner
	owner.JoinedAt = now

	s.issuedCodes[ws.InviteCode] = true
	stored := *ws
	s.workspaces[ws.ID] = &stored
	m := *owner
	s.members[ws.ID] = map[string]*domain.Membership{owner.IdentityID: &m}
	s.users[owner.IdentityID].CurrentWorkspaceID = strPtr(ws.ID)
	return nil
}

func (s *memStore) GetWorkspace(_ context.Context, workspaceID string) (*domain.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.workspaces[workspaceID]
	if !ok {
		return nil, domain.NotFoundError("workspace not found")
	}
	cp := *ws
	return &cp, nil
}

func (s *memStore) UpdateWorkspace(_ context.Context, workspaceID string, req *domain.UpdateWorkspaceRequest) (*domain.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.workspaces[workspaceID]
	if !ok {
		return nil, domain.NotFoundError("workspace not found")
	}
	if req.Name != nil {
		ws.Name = *req.Name
	}
	if req.Description != nil {
		ws.Description = req.Description
	}
	ws.UpdatedAt = s.tick()
	cp := *ws
	return &cp, nil
}

func (s *memStore) DeleteWorkspace(_ context.Context, workspaceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workspaces[workspaceID]; !ok {
		return domain.NotFoundError("workspace not found")
	}
	delete(s.workspaces, workspaceID)
	delete(s.members, workspaceID)
	for id, p := range s.projects {
		if p.WorkspaceID == workspaceID {
			delete(s.projects, id)
		}
	}
	for id, t := range s.tasks {
		if t.WorkspaceID == workspaceID {
			delete(s.tasks, id)
		}
	}
	for _, u := range s.users {
		if u.CurrentWorkspaceID != nil && *u.CurrentWorkspaceID == workspaceID {
			u.CurrentWorkspaceID = nil
		}
	}
	return nil
}

func (s *memStore) RotateInviteCode(_ context.Context, workspaceID, newCode string) (*domain.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.workspaces[workspaceID]
	if !ok {
		return nil, domain.NotFoundError("workspace not found")
	}
	if s.issuedCodes[newCode] {
		return nil, domain.ConflictError("invite code already issued", nil)
	}
	s.issuedCodes[newCode] = true
	ws.InviteCode = newCode
	ws.UpdatedAt = s.tick()
	cp := *ws
	return &cp, nil
}

func (s *memStore) ListWorkspacesForIdentity(_ context.Context, identityID string) ([]domain.WorkspaceSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.WorkspaceSummary{}
	for wsID, ms := range s.members {
		if m, ok := ms[identityID]; ok {
			out = append(out, domain.WorkspaceSummary{Workspace: *s.workspaces[wsID], Role: m.Role})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ---- MembershipStore ----

func (s *memStore) GetMembership(_ context.Context, workspaceID, identityID string) (*domain.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[workspaceID][identityID]
	if !ok {
		return nil, domain.NotFoundError("membership not found")
	}
	cp := *m
	return &cp, nil
}

func (s *memStore) ListMembers(_ context.Context, workspaceID string) ([]domain.MemberView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.MemberView{}
	for id, m := range s.members[workspaceID] {
		u := s.users[id]
		out = append(out, domain.MemberView{Membership: *m, Email: u.Email, Name: u.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (s *memStore) JoinByInviteCode(_ context.Context, code string, m *domain.Membership) (*domain.Membership, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ws *domain.Workspace
	for _, w := range s.workspaces {
		if w.InviteCode == code {
			ws = w
			break
		}
	}
	if ws == nil {
		return nil, false, domain.NotFoundError("invalid or expired invite code")
	}

	s.users[m.IdentityID].CurrentWorkspaceID = strPtr(ws.ID)
	if existing, ok := s.members[ws.ID][m.IdentityID]; ok {
		cp := *existing
		return &cp, false, nil
	}

	created := *m
	created.WorkspaceID = ws.ID
	created.Role = domain.RoleMember
	created.JoinedAt = s.tick()
	s.members[ws.ID][m.IdentityID] = &created
	cp := created
	return &cp, true, nil
}

func (s *memStore) lockedMembershipWrite(workspaceID, actorID, targetID string) (*domain.Workspace, *domain.Membership, *domain.Membership, error) {
	ws, ok := s.workspaces[workspaceID]
	if !ok {
		return nil, nil, nil, domain.PermissionDeniedError("not a member of this workspace")
	}
	actor, ok := s.members[workspaceID][actorID]
	if !ok {
		return nil, nil, nil, domain.PermissionDeniedError("not a member of this workspace")
	}
	target, ok := s.members[workspaceID][targetID]
	if !ok {
		return nil, nil, nil, domain.NotFoundError("identity %s is not a member of this workspace", targetID)
	}
	a, t := *actor, *target
	return ws, &a, &t, nil
}

func (s *memStore) ownerCount(workspaceID string) int {
	n := 0
	for _, m := range s.members[workspaceID] {
		if m.Role == domain.RoleOwner {
			n++
		}
	}
	return n
}

func (s *memStore) repointOwner(ws *domain.Workspace, leavingID string) {
	var best *domain.Membership
	for id, m := range s.members[ws.ID] {
		if id == leavingID || m.Role != domain.RoleOwner {
			continue
		}
		if best == nil || m.JoinedAt.Before(best.JoinedAt) {
			best = m
		}
	}
	ws.OwnerID = best.IdentityID
}

func (s *memStore) ChangeRole(_ context.Context, workspaceID, actorID, targetID string, newRole domain.Role, check repo.MembershipCheck) (*domain.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, actor, target, err := s.lockedMembershipWrite(workspaceID, actorID, targetID)
	if err != nil {
		return nil, err
	}
	if check != nil {
		if err := check(actor, target); err != nil {
			return nil, err
		}
	}
	if target.Role == newRole {
		return target, nil
	}
	if err := domain.EnsureOwnerRemains(target, s.ownerCount(workspaceID)); err != nil {
		return nil, err
	}

	stored := s.members[workspaceID][targetID]
	stored.Role = newRole
	if target.Role == domain.RoleOwner && ws.OwnerID == targetID {
		s.repointOwner(ws, targetID)
	}
	cp := *stored
	return &cp, nil
}

func (s *memStore) RemoveMember(_ context.Context, workspaceID, actorID, targetID string, check repo.MembershipCheck) (*domain.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, actor, target, err := s.lockedMembershipWrite(workspaceID, actorID, targetID)
	if err != nil {
		return nil, err
	}
	if check != nil {
		if err := check(actor, target); err != nil {
			return nil, err
		}
	}
	if err := domain.EnsureOwnerRemains(target, s.ownerCount(workspaceID)); err != nil {
		return nil, err
	}

	delete(s.members[workspaceID], targetID)
	if ws.OwnerID == targetID {
		s.repointOwner(ws, targetID)
	}
	if u := s.users[targetID]; u.CurrentWorkspaceID != nil && *u.CurrentWorkspaceID == workspaceID {
		u.CurrentWorkspaceID = nil
	}
	return target, nil
}

// ---- IdentityStore ----

func (s *memStore) GetIdentity(_ context.Context, identityID string) (*domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[identityID]
	if !ok {
		return nil, domain.NotFoundError("identity not found")
	}
	cp := *u
	return &cp, nil
}

func (s *memStore) SetCurrentWorkspace(_ context.Context, identityID string, workspaceID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[identityID]
	if !ok {
		return domain.NotFoundError("identity not found")
	}
	u.CurrentWorkspaceID = workspaceID
	return nil
}

// ---- ProjectStore ----

func (s *memStore) CreateProject(_ context.Context, p *domain.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workspaces[p.WorkspaceID]; !ok {
		return domain.NotFoundError("workspace not found")
	}
	now := s.tick()
	p.CreatedAt, p.UpdatedAt = now, now
	cp := *p
	s.projects[p.ID] = &cp
	return nil
}

func (s *memStore) GetProject(_ context.Context, projectID string) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return nil, domain.NotFoundError("project not found")
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) UpdateProject(_ context.Context, projectID string, req *domain.UpdateProjectRequest) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return nil, domain.NotFoundError("project not found")
	}
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Emoji != nil {
		p.Emoji = req.Emoji
	}
	if req.Description != nil {
		p.Description = req.Description
	}
	p.UpdatedAt = s.tick()
	cp := *p
	return &cp, nil
}

func (s *memStore) DeleteProject(_ context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[projectID]; !ok {
		return domain.NotFoundError("project not found")
	}
	delete(s.projects, projectID)
	for id, t := range s.tasks {
		if t.ProjectID == projectID {
			delete(s.tasks, id)
		}
	}
	return nil
}

func (s *memStore) ListProjects(_ context.Context, params domain.ListProjectsParams) ([]domain.Project, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := []domain.Project{}
	for _, p := range s.projects {
		if p.WorkspaceID == params.WorkspaceID {
			all = append(all, *p)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return page(all, params.Offset, params.Limit), len(all), nil
}

// ---- TaskStore ----

func (s *memStore) CreateTask(_ context.Context, t *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[t.ProjectID]; !ok {
		return domain.NotFoundError("project not found")
	}
	now := s.tick()
	t.CreatedAt, t.UpdatedAt = now, now
	cp := *t
	s.tasks[t.ID] = &cp
	return nil
}

func (s *memStore) GetTask(_ context.Context, taskID string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return nil, domain.NotFoundError("task not found")
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) UpdateTask(_ context.Context, taskID string, req *domain.UpdateTaskRequest) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return nil, domain.NotFoundError("task not found")
	}
	if req.Title != nil {
		t.Title = *req.Title
	}
	if req.Description != nil {
		t.Description = req.Description
	}
	if req.Status != nil {
		t.Status = *req.Status
	}
	if req.Priority != nil {
		t.Priority = *req.Priority
	}
	if req.AssignedTo != nil {
		t.AssignedTo = req.AssignedTo
	}
	if req.DueDate != nil {
		t.DueDate = req.DueDate
	}
	t.UpdatedAt = s.tick()
	cp := *t
	return &cp, nil
}

func (s *memStore) DeleteTask(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[taskID]; !ok {
		return domain.NotFoundError("task not found")
	}
	delete(s.tasks, taskID)
	return nil
}

func (s *memStore) ListTasks(_ context.Context, params domain.ListTasksParams) ([]domain.Task, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := []domain.Task{}
	for _, t := range s.tasks {
		if t.WorkspaceID != params.WorkspaceID {
			continue
		}
		if params.ProjectID != nil && t.ProjectID != *params.ProjectID {
			continue
		}
		if params.Status != nil && t.Status != *params.Status {
			continue
		}
		if params.Priority != nil && t.Priority != *params.Priority {
			continue
		}
		if params.AssignedTo != nil && (t.AssignedTo == nil || *t.AssignedTo != *params.AssignedTo) {
			continue
		}
		if params.Keyword != nil && !strings.Contains(strings.ToLower(t.Title), strings.ToLower(*params.Keyword)) {
			continue
		}
		all = append(all, *t)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return page(all, params.Offset, params.Limit), len(all), nil
}

func (s *memStore) WorkspaceAnalytics(_ context.Context, workspaceID string, now time.Time) (*domain.Analytics, error) {
	return s.analytics(func(t *domain.Task) bool { return t.WorkspaceID == workspaceID }, now), nil
}

func (s *memStore) ProjectAnalytics(_ context.Context, workspaceID, projectID string, now time.Time) (*domain.Analytics, error) {
	return s.analytics(func(t *domain.Task) bool {
		return t.WorkspaceID == workspaceID && t.ProjectID == projectID
	}, now), nil
}

func (s *memStore) analytics(match func(*domain.Task) bool, now time.Time) *domain.Analytics {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := &domain.Analytics{}
	for _, t := range s.tasks {
		if !match(t) {
			continue
		}
		a.TotalTasks++
		if t.Status == domain.TaskStatusDone {
			a.CompletedTasks++
		} else if t.DueDate != nil && t.DueDate.Before(now) {
			a.OverdueTasks++
		}
	}
	return a
}

// ---- AuditLogger ----

func (s *memStore) LogAction(_ context.Context, entry repo.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, entry)
	return nil
}

func (s *memStore) auditActions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.audit))
	for _, e := range s.audit {
		out = append(out, e.ResourceType+":"+e.Action)
	}
	return out
}

func (s *memStore) ownerIDOf(workspaceID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workspaces[workspaceID].OwnerID
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// ---- wiring ----

type testEnv struct {
	store       *memStore
	metrics     *telemetry.PromMetrics
	guard       *Guard
	workspaces  *WorkspaceService
	memberships *MembershipService
	projects    *ProjectService
	tasks       *TaskService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log, err := logger.New("test", "error")
	require.NoError(t, err)

	store := newMemStore()
	metrics := telemetry.NewPromMetrics()
	guard := NewGuard(store, store, store, metrics, log)

	return &testEnv{
		store:       store,
		metrics:     metrics,
		guard:       guard,
		workspaces:  NewWorkspaceService(store, store, store, store, guard, store, log),
		memberships: NewMembershipService(store, guard, store, metrics, log),
		projects:    NewProjectService(store, store, guard, store, log),
		tasks:       NewTaskService(store, store, guard, store, log),
	}
}

// createWorkspace is a test helper that fails the test on error.
func (e *testEnv) createWorkspace(t *testing.T, owner *domain.Identity, name string) *domain.Workspace {
	t.Helper()
	ws, err := e.workspaces.CreateWorkspace(context.Background(), owner, &domain.CreateWorkspaceRequest{Name: name})
	require.NoError(t, err)
	return ws
}

func (e *testEnv) join(t *testing.T, identity *domain.Identity, ws *domain.Workspace) *domain.Membership {
	t.Helper()
	m, _, err := e.memberships.JoinByInviteCode(context.Background(), identity, ws.InviteCode)
	require.NoError(t, err)
	return m
}

func (e *testEnv) setRole(t *testing.T, actor *domain.Identity, ws *domain.Workspace, targetID string, role domain.Role) {
	t.Helper()
	_, err := e.memberships.ChangeRole(context.Background(), actor, ws.ID, targetID, &domain.ChangeRoleRequest{Role: role})
	require.NoError(t, err)
}
