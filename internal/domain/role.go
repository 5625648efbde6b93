package domain

import (
	"database/sql/driver"
	"fmt"
)

// =====================================================
// Workspace Role Constants
// =====================================================

// Role is one of the fixed workspace roles. Roles are static configuration,
// never created or deleted at runtime.
type Role string

const (
	// RoleOwner has every permission, including deleting the workspace and changing roles
	RoleOwner Role = "owner"

	// RoleAdmin manages members and all projects/tasks but cannot touch Owners
	RoleAdmin Role = "admin"

	// RoleMember works on tasks and has read access to the workspace
	RoleMember Role = "member"
)

// String returns the string representation of the Role
func (r Role) String() string {
	return string(r)
}

// IsValid checks if the role is one of the defined constants
func (r Role) IsValid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	default:
		return false
	}
}

// Scan implements sql.Scanner for the workspace_role enum column.
func (r *Role) Scan(src interface{}) error {
	var str string
	switch v := src.(type) {
	case string:
		str = v
	case []byte:
		str = string(v)
	default:
		return fmt.Errorf("cannot scan %T into Role", src)
	}

	*r = Role(str)
	if !r.IsValid() {
		return fmt.Errorf("invalid Role value: %s", str)
	}
	return nil
}

// Value implements driver.Valuer for the workspace_role enum column.
func (r Role) Value() (driver.Value, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("invalid Role value: %s", string(r))
	}
	return string(r), nil
}

// =====================================================
// Permissions
// =====================================================

// Permission names a single capability checked by the authorization guard.
type Permission string

const (
	PermManageWorkspace Permission = "manage-workspace"
	PermDeleteWorkspace Permission = "delete-workspace"
	PermManageRoles     Permission = "manage-roles"
	PermManageMembers   Permission = "manage-members"
	PermViewWorkspace   Permission = "view-workspace"

	PermCreateProject Permission = "create-project"
	PermUpdateProject Permission = "update-project"
	PermDeleteProject Permission = "delete-project"
	PermViewProject   Permission = "view-project"

	PermCreateTask Permission = "create-task"
	PermUpdateTask Permission = "update-task"
	PermDeleteTask Permission = "delete-task"
	PermViewTask   Permission = "view-task"

	PermViewAnalytics Permission = "view-analytics"
)

type permissionSet map[Permission]struct{}

func newPermissionSet(perms ...Permission) permissionSet {
	s := make(permissionSet, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// rolePermissions is the static role -> permission table. Not exported so it
// cannot be mutated at runtime.
var rolePermissions = map[Role]permissionSet{
	RoleOwner: newPermissionSet(
		PermManageWorkspace, PermDeleteWorkspace, PermManageRoles, PermManageMembers, PermViewWorkspace,
		PermCreateProject, PermUpdateProject, PermDeleteProject, PermViewProject,
		PermCreateTask, PermUpdateTask, PermDeleteTask, PermViewTask,
		PermViewAnalytics,
	),
	RoleAdmin: newPermissionSet(
		PermManageMembers, PermViewWorkspace,
		PermCreateProject, PermUpdateProject, PermDeleteProject, PermViewProject,
		PermCreateTask, PermUpdateTask, PermDeleteTask, PermViewTask,
		PermViewAnalytics,
	),
	RoleMember: newPermissionSet(
		PermViewWorkspace,
		PermViewProject,
		PermCreateTask, PermUpdateTask, PermViewTask,
		PermViewAnalytics,
	),
}

// HasPermission reports whether role grants perm. Unknown roles and
// permissions are denied.
func HasPermission(role Role, perm Permission) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}
	_, ok = perms[perm]
	return ok
}

// Permissions returns the permissions granted to role, in table order of AllPermissions.
func Permissions(role Role) []Permission {
	out := make([]Permission, 0, len(AllPermissions))
	for _, p := range AllPermissions {
		if HasPermission(role, p) {
			out = append(out, p)
		}
	}
	return out
}

// AllPermissions lists every permission known to the registry.
var AllPermissions = []Permission{
	PermManageWorkspace, PermDeleteWorkspace, PermManageRoles, PermManageMembers, PermViewWorkspace,
	PermCreateProject, PermUpdateProject, PermDeleteProject, PermViewProject,
	PermCreateTask, PermUpdateTask, PermDeleteTask, PermViewTask,
	PermViewAnalytics,
}

// =====================================================
// Permission Matrix
// =====================================================
//
// | Operation            | Owner | Admin | Member        |
// |----------------------|-------|-------|---------------|
// | Edit workspace       | ✅    | ❌    | ❌            |
// | Rotate invite code   | ✅    | ❌    | ❌            |
// | Delete workspace     | ✅    | ❌    | ❌            |
// | Change member role   | ✅    | ❌    | ❌            |
// | Remove member        | ✅    | ✅ *  | self only     |
// | Project CRUD         | ✅    | ✅    | view only     |
// | Create/Update task   | ✅    | ✅    | ✅ own tasks  |
// | Delete task          | ✅    | ✅    | ❌            |
// | View analytics       | ✅    | ✅    | ✅            |
//
// * Admins can never remove or demote an Owner.
