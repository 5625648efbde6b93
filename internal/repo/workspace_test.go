package repo_test

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"teamboard-api/internal/database"
	"teamboard-api/internal/domain"
	"teamboard-api/internal/repo"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration tests against a real Postgres. They run the embedded migrations first.
//
// Run with: DATABASE_URL=postgres://... go test -v ./internal/repo
func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	require.NoError(t, database.RunMigrations(databaseURL), "failed to run migrations")

	pool, err := database.NewPool(context.Background(), databaseURL)
	require.NoError(t, err, "failed to connect to database")
	t.Cleanup(pool.Close)
	return pool
}

func newIdentity(t *testing.T, pool *pgxpool.Pool, users *repo.UserRepository) *domain.Identity {
	t.Helper()
	id := "test-user-" + uuid.NewString()
	identity, err := users.EnsureIdentity(context.Background(), id, id+"@example.com", "Test User")
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, id)
	})
	return identity
}

func createWorkspace(t *testing.T, workspaces *repo.WorkspaceRepository, ownerID, name string) *domain.Workspace {
	t.Helper()
	ws := &domain.Workspace{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Name:       name,
		InviteCode: uuid.NewString(),
	}
	owner := &domain.Membership{ID: uuid.NewString(), IdentityID: ownerID}
	require.NoError(t, workspaces.CreateWorkspace(context.Background(), ws, owner))
	t.Cleanup(func() { _ = workspaces.DeleteWorkspace(context.Background(), ws.ID) })
	return ws
}

func TestWorkspaceRepository_CreateAndJoin_Integration(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	users := repo.NewUserRepository(pool)
	workspaces := repo.NewWorkspaceRepository(pool)

	u1 := newIdentity(t, pool, users)
	u2 := newIdentity(t, pool, users)
	ws := createWorkspace(t, workspaces, u1.ID, "Acme")

	owner, err := workspaces.GetMembership(ctx, ws.ID, u1.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOwner, owner.Role)

	reloaded, err := users.GetIdentity(ctx, u1.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.CurrentWorkspaceID)
	assert.Equal(t, ws.ID, *reloaded.CurrentWorkspaceID)

	first, created, err := workspaces.JoinByInviteCode(ctx, ws.InviteCode, &domain.Membership{ID: uuid.NewString(), IdentityID: u2.ID})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.RoleMember, first.Role)

	second, created, err := workspaces.JoinByInviteCode(ctx, ws.InviteCode, &domain.Membership{ID: uuid.NewString(), IdentityID: u2.ID})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	members, err := workspaces.ListMembers(ctx, ws.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestWorkspaceRepository_RotateInviteCode_Integration(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	users := repo.NewUserRepository(pool)
	workspaces := repo.NewWorkspaceRepository(pool)

	u1 := newIdentity(t, pool, users)
	u2 := newIdentity(t, pool, users)
	ws := createWorkspace(t, workspaces, u1.ID, "Rotate")
	oldCode := ws.InviteCode

	rotated, err := workspaces.RotateInviteCode(ctx, ws.ID, uuid.NewString())
	require.NoError(t, err)
	assert.NotEqual(t, oldCode, rotated.InviteCode)

	_, _, err = workspaces.JoinByInviteCode(ctx, oldCode, &domain.Membership{ID: uuid.NewString(), IdentityID: u2.ID})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// A retired code can never be issued again.
	_, err = workspaces.RotateInviteCode(ctx, ws.ID, oldCode)
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, created, err := workspaces.JoinByInviteCode(ctx, rotated.InviteCode, &domain.Membership{ID: uuid.NewString(), IdentityID: u2.ID})
	require.NoError(t, err)
	assert.True(t, created)
}

func TestWorkspaceRepository_JoinDuringRotation_Integration(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	users := repo.NewUserRepository(pool)
	workspaces := repo.NewWorkspaceRepository(pool)

	u1 := newIdentity(t, pool, users)
	ws := createWorkspace(t, workspaces, u1.ID, "Rotating")
	oldCode := ws.InviteCode

	const joiners = 8
	joining := make([]*domain.Identity, joiners)
	for i := range joining {
		joining[i] = newIdentity(t, pool, users)
	}

	var (
		wg      sync.WaitGroup
		rotated atomic.Bool
		start   = make(chan struct{})
		errs    = make([]error, joiners)
		late    = make([]bool, joiners)
	)
	for i, u := range joining {
		wg.Add(1)
		go func(i int, identityID string) {
			defer wg.Done()
			<-start
			late[i] = rotated.Load()
			_, _, errs[i] = workspaces.JoinByInviteCode(ctx, oldCode, &domain.Membership{ID: uuid.NewString(), IdentityID: identityID})
		}(i, u.ID)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		_, err := workspaces.RotateInviteCode(ctx, ws.ID, uuid.NewString())
		assert.NoError(t, err)
		rotated.Store(true)
	}()

	close(start)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, domain.ErrNotFound)
			continue
		}
		assert.False(t, late[i], "join started after the rotation committed must not succeed")
	}

	_, _, err := workspaces.JoinByInviteCode(ctx, oldCode, &domain.Membership{ID: uuid.NewString(), IdentityID: newIdentity(t, pool, users).ID})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	for i, u := range joining {
		var rows int
		require.NoError(t, pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM workspace_members WHERE workspace_id = $1 AND user_id = $2`, ws.ID, u.ID,
		).Scan(&rows))
		if errs[i] == nil {
			assert.Equal(t, 1, rows)
		} else {
			assert.Zero(t, rows)
		}
	}
}

func TestWorkspaceRepository_ConcurrentDuplicateJoin_Integration(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	users := repo.NewUserRepository(pool)
	workspaces := repo.NewWorkspaceRepository(pool)

	u1 := newIdentity(t, pool, users)
	u2 := newIdentity(t, pool, users)
	ws := createWorkspace(t, workspaces, u1.ID, "Crowded")

	const attempts = 6
	var wg sync.WaitGroup
	results := make([]*domain.Membership, attempts)
	created := make([]bool, attempts)
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], created[i], errs[i] = workspaces.JoinByInviteCode(ctx, ws.InviteCode, &domain.Membership{ID: uuid.NewString(), IdentityID: u2.ID})
		}(i)
	}
	wg.Wait()

	createdCount := 0
	for i := 0; i < attempts; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].ID, results[i].ID)
		if created[i] {
			createdCount++
		}
	}
	assert.Equal(t, 1, createdCount)

	var rows int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM workspace_members WHERE workspace_id = $1 AND user_id = $2`, ws.ID, u2.ID,
	).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestWorkspaceRepository_LastOwnerGuard_Integration(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	users := repo.NewUserRepository(pool)
	workspaces := repo.NewWorkspaceRepository(pool)

	u1 := newIdentity(t, pool, users)
	ws := createWorkspace(t, workspaces, u1.ID, "Solo")

	_, err := workspaces.ChangeRole(ctx, ws.ID, u1.ID, u1.ID, domain.RoleAdmin, nil)
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)

	_, err = workspaces.RemoveMember(ctx, ws.ID, u1.ID, u1.ID, nil)
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)

	m, err := workspaces.GetMembership(ctx, ws.ID, u1.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOwner, m.Role)
}

func TestWorkspaceRepository_ConcurrentOwnerDemotion_Integration(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	users := repo.NewUserRepository(pool)
	workspaces := repo.NewWorkspaceRepository(pool)

	u1 := newIdentity(t, pool, users)
	u2 := newIdentity(t, pool, users)
	ws := createWorkspace(t, workspaces, u1.ID, "Race")

	_, _, err := workspaces.JoinByInviteCode(ctx, ws.InviteCode, &domain.Membership{ID: uuid.NewString(), IdentityID: u2.ID})
	require.NoError(t, err)
	_, err = workspaces.ChangeRole(ctx, ws.ID, u1.ID, u2.ID, domain.RoleOwner, nil)
	require.NoError(t, err)

	// Each owner demotes the other at the same time; exactly one may win.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	pairs := [][2]string{{u1.ID, u2.ID}, {u2.ID, u1.ID}}
	for i, p := range pairs {
		wg.Add(1)
		go func(i int, actor, target string) {
			defer wg.Done()
			_, errs[i] = workspaces.ChangeRole(ctx, ws.ID, actor, target, domain.RoleMember, func(actor, _ *domain.Membership) error {
				if !actor.Can(domain.PermManageRoles) {
					return domain.PermissionDeniedError("missing permission")
				}
				return nil
			})
		}(i, p[0], p[1])
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			failures++
		}
	}
	assert.Equal(t, 1, failures)

	members, err := workspaces.ListMembers(ctx, ws.ID)
	require.NoError(t, err)
	owners := 0
	for _, m := range members {
		if m.Role == domain.RoleOwner {
			owners++
		}
	}
	assert.Equal(t, 1, owners)

	reloaded, err := workspaces.GetWorkspace(ctx, ws.ID)
	require.NoError(t, err)
	owner, err := workspaces.GetMembership(ctx, ws.ID, reloaded.OwnerID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOwner, owner.Role, "owner_id must always point at an Owner")
}

func TestWorkspaceRepository_DeleteCascades_Integration(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	users := repo.NewUserRepository(pool)
	workspaces := repo.NewWorkspaceRepository(pool)
	projects := repo.NewProjectRepository(pool)
	tasks := repo.NewTaskRepository(pool)

	u1 := newIdentity(t, pool, users)
	ws := createWorkspace(t, workspaces, u1.ID, "Doomed")

	p := &domain.Project{ID: uuid.NewString(), WorkspaceID: ws.ID, Name: "P", CreatedBy: u1.ID}
	require.NoError(t, projects.CreateProject(ctx, p))
	task := &domain.Task{
		ID: uuid.NewString(), WorkspaceID: ws.ID, ProjectID: p.ID, Title: "T",
		Status: domain.TaskStatusTodo, Priority: domain.PriorityMedium, CreatedBy: u1.ID,
	}
	require.NoError(t, tasks.CreateTask(ctx, task))

	require.NoError(t, workspaces.DeleteWorkspace(ctx, ws.ID))

	_, err := projects.GetProject(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = tasks.GetTask(ctx, task.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = workspaces.GetMembership(ctx, ws.ID, u1.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	reloaded, err := users.GetIdentity(ctx, u1.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.CurrentWorkspaceID)
}

func TestUserRepository_SetCurrentWorkspace_Integration(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	users := repo.NewUserRepository(pool)
	workspaces := repo.NewWorkspaceRepository(pool)

	u1 := newIdentity(t, pool, users)
	ws := createWorkspace(t, workspaces, u1.ID, "Pointer")

	missing := uuid.NewString()
	err := users.SetCurrentWorkspace(ctx, u1.ID, &missing)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	reloaded, err := users.GetIdentity(ctx, u1.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.CurrentWorkspaceID)
	assert.Equal(t, ws.ID, *reloaded.CurrentWorkspaceID, "failed update must roll back")

	require.NoError(t, users.SetCurrentWorkspace(ctx, u1.ID, nil))
	reloaded, err = users.GetIdentity(ctx, u1.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.CurrentWorkspaceID)
}
