package service

import (
	"context"
	"regexp"
	"testing"

	"teamboard-api/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateInviteCode(t *testing.T) {
	seen := map[string]bool{}
	pattern := regexp.MustCompile(`^[a-z2-7]{26}$`)

	for i := 0; i < 100; i++ {
		code, err := GenerateInviteCode()
		require.NoError(t, err)
		assert.Regexp(t, pattern, code)
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
}

func TestCreateWorkspace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.store.addUser("owner", true)

	t.Run("blank name", func(t *testing.T) {
		_, err := env.workspaces.CreateWorkspace(ctx, owner, &domain.CreateWorkspaceRequest{Name: "   "})
		require.Error(t, err)
		de, ok := domain.AsError(err)
		require.True(t, ok)
		assert.Equal(t, domain.KindValidation, de.Kind)
		assert.Equal(t, "required", de.Fields["name"])
	})

	t.Run("inactive identity", func(t *testing.T) {
		inactive := env.store.addUser("inactive", false)
		_, err := env.workspaces.CreateWorkspace(ctx, inactive, &domain.CreateWorkspaceRequest{Name: "Nope"})
		assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	})

	t.Run("sets current workspace", func(t *testing.T) {
		ws := env.createWorkspace(t, owner, "Acme")
		id, err := env.store.GetIdentity(ctx, owner.ID)
		require.NoError(t, err)
		require.NotNil(t, id.CurrentWorkspaceID)
		assert.Equal(t, ws.ID, *id.CurrentWorkspaceID)
	})

	t.Run("distinct invite codes", func(t *testing.T) {
		a := env.createWorkspace(t, owner, "A")
		b := env.createWorkspace(t, owner, "B")
		assert.NotEqual(t, a.InviteCode, b.InviteCode)
	})
}

func TestCreateWorkspace_RetriesOnCodeCollision(t *testing.T) {
	env := newTestEnv(t)
	owner := env.store.addUser("owner", true)
	first := env.createWorkspace(t, owner, "First")

	codes := []string{first.InviteCode, "freshcode"}
	env.workspaces.newInviteCode = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}

	ws, err := env.workspaces.CreateWorkspace(context.Background(), owner, &domain.CreateWorkspaceRequest{Name: "Second"})
	require.NoError(t, err)
	assert.Equal(t, "freshcode", ws.InviteCode)
}

func TestCreateWorkspace_GivesUpAfterRepeatedCollisions(t *testing.T) {
	env := newTestEnv(t)
	owner := env.store.addUser("owner", true)
	first := env.createWorkspace(t, owner, "First")

	calls := 0
	env.workspaces.newInviteCode = func() (string, error) {
		calls++
		return first.InviteCode, nil
	}

	_, err := env.workspaces.CreateWorkspace(context.Background(), owner, &domain.CreateWorkspaceRequest{Name: "Second"})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, maxInviteCodeAttempts, calls)
}

func TestRotateInviteCode_NeverReissues(t *testing.T) {
	env := newTestEnv(t)
	owner := env.store.addUser("owner", true)
	ws := env.createWorkspace(t, owner, "Acme")
	original := ws.InviteCode

	_, err := env.workspaces.RotateInviteCode(context.Background(), owner, ws.ID)
	require.NoError(t, err)

	env.workspaces.newInviteCode = func() (string, error) { return original, nil }
	_, err = env.workspaces.RotateInviteCode(context.Background(), owner, ws.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestWorkspacePermissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.store.addUser("owner", true)
	admin := env.store.addUser("admin", true)
	member := env.store.addUser("member", true)
	outsider := env.store.addUser("outsider", true)
	ws := env.createWorkspace(t, owner, "Acme")
	env.join(t, admin, ws)
	env.join(t, member, ws)
	env.setRole(t, owner, ws, admin.ID, domain.RoleAdmin)

	name := "Renamed"

	_, err := env.workspaces.UpdateWorkspace(ctx, admin, ws.ID, &domain.UpdateWorkspaceRequest{Name: &name})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = env.workspaces.GetWorkspace(ctx, outsider, ws.ID)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	got, err := env.workspaces.GetWorkspace(ctx, member, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Name)

	updated, err := env.workspaces.UpdateWorkspace(ctx, owner, ws.ID, &domain.UpdateWorkspaceRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)

	err = env.workspaces.DeleteWorkspace(ctx, admin, ws.ID)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	require.NoError(t, env.workspaces.DeleteWorkspace(ctx, owner, ws.ID))
	_, err = env.workspaces.GetWorkspace(ctx, owner, ws.ID)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestListWorkspaces_IncludesRole(t *testing.T) {
	env := newTestEnv(t)
	owner := env.store.addUser("owner", true)
	member := env.store.addUser("member", true)
	mine := env.createWorkspace(t, owner, "Mine")
	theirs := env.createWorkspace(t, member, "Theirs")
	env.join(t, owner, theirs)

	list, err := env.workspaces.ListWorkspaces(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, mine.ID, list[0].ID)
	assert.Equal(t, domain.RoleOwner, list[0].Role)
	assert.Equal(t, theirs.ID, list[1].ID)
	assert.Equal(t, domain.RoleMember, list[1].Role)
}

func TestSwitchWorkspace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.store.addUser("owner", true)
	stranger := env.store.addUser("stranger", true)
	a := env.createWorkspace(t, owner, "A")
	b := env.createWorkspace(t, owner, "B")
	other := env.createWorkspace(t, stranger, "Other")

	// the response reflects the stored identity, not the caller's snapshot
	env.store.mu.Lock()
	env.store.users[owner.ID].Name = "Owner Renamed"
	env.store.mu.Unlock()

	updated, err := env.workspaces.SwitchWorkspace(ctx, owner, a.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.CurrentWorkspaceID)
	assert.Equal(t, a.ID, *updated.CurrentWorkspaceID)
	assert.Equal(t, "Owner Renamed", updated.Name)

	stored, err := env.store.GetIdentity(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, *stored.CurrentWorkspaceID)
	assert.NotEqual(t, b.ID, *stored.CurrentWorkspaceID)

	_, err = env.workspaces.SwitchWorkspace(ctx, owner, other.ID)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestAuditIsRecorded(t *testing.T) {
	env := newTestEnv(t)
	owner := env.store.addUser("owner", true)
	ws := env.createWorkspace(t, owner, "Acme")
	_, err := env.workspaces.RotateInviteCode(context.Background(), owner, ws.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{"workspace:create", "workspace:rotate_invite_code"}, env.store.auditActions())
}
