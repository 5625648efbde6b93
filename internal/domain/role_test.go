package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasPermission_Matrix(t *testing.T) {
	tests := []struct {
		role    Role
		perm    Permission
		allowed bool
	}{
		{RoleOwner, PermManageWorkspace, true},
		{RoleOwner, PermDeleteWorkspace, true},
		{RoleOwner, PermManageRoles, true},
		{RoleOwner, PermManageMembers, true},
		{RoleOwner, PermDeleteTask, true},

		{RoleAdmin, PermManageWorkspace, false},
		{RoleAdmin, PermDeleteWorkspace, false},
		{RoleAdmin, PermManageRoles, false},
		{RoleAdmin, PermManageMembers, true},
		{RoleAdmin, PermCreateProject, true},
		{RoleAdmin, PermDeleteTask, true},
		{RoleAdmin, PermViewAnalytics, true},

		{RoleMember, PermManageMembers, false},
		{RoleMember, PermManageRoles, false},
		{RoleMember, PermCreateProject, false},
		{RoleMember, PermDeleteProject, false},
		{RoleMember, PermDeleteTask, false},
		{RoleMember, PermCreateTask, true},
		{RoleMember, PermUpdateTask, true},
		{RoleMember, PermViewTask, true},
		{RoleMember, PermViewProject, true},
		{RoleMember, PermViewAnalytics, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.perm), func(t *testing.T) {
			assert.Equal(t, tt.allowed, HasPermission(tt.role, tt.perm))
		})
	}
}

func TestHasPermission_FailsClosed(t *testing.T) {
	assert.False(t, HasPermission(Role("superuser"), PermViewTask))
	assert.False(t, HasPermission(Role(""), PermViewTask))
	assert.False(t, HasPermission(RoleOwner, Permission("launch-rockets")))
}

func TestPermissions_OwnerIsSuperset(t *testing.T) {
	owner := Permissions(RoleOwner)
	assert.ElementsMatch(t, AllPermissions, owner)

	for _, role := range []Role{RoleAdmin, RoleMember} {
		for _, p := range Permissions(role) {
			assert.Contains(t, owner, p, "%s grants %s which owner lacks", role, p)
		}
	}
}

func TestRole_ScanValue(t *testing.T) {
	var r Role
	require.NoError(t, r.Scan("admin"))
	assert.Equal(t, RoleAdmin, r)

	require.NoError(t, r.Scan([]byte("member")))
	assert.Equal(t, RoleMember, r)

	assert.Error(t, r.Scan("root"))
	assert.Error(t, r.Scan(42))

	v, err := RoleOwner.Value()
	require.NoError(t, err)
	assert.Equal(t, "owner", v)

	_, err = Role("nope").Value()
	assert.Error(t, err)
}
