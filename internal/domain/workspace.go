package domain

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// =====================================================
// Identity
// =====================================================

// Identity is the authenticated actor of a request. It is owned by the identity
// source; the core only reads it, except for the CurrentWorkspaceID convenience pointer.
type Identity struct {
	ID                 string  `json:"id" db:"id"`
	Email              string  `json:"email" db:"email"`
	Name               string  `json:"name" db:"name"`
	IsActive           bool    `json:"isActive" db:"is_active"`
	CurrentWorkspaceID *string `json:"currentWorkspaceId,omitempty" db:"current_workspace_id"`
}

// =====================================================
// Workspace
// =====================================================

// Workspace is the tenant boundary. OwnerID always references an identity
// holding an Owner membership in this workspace.
type Workspace struct {
	ID          string    `json:"id" db:"id"`
	OwnerID     string    `json:"ownerId" db:"owner_id"`
	Name        string    `json:"name" db:"name"`
	Description *string   `json:"description,omitempty" db:"description"`
	InviteCode  string    `json:"inviteCode" db:"invite_code"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// Membership binds one identity to one workspace with exactly one role.
type Membership struct {
	ID          string    `json:"id" db:"id"`
	WorkspaceID string    `json:"workspaceId" db:"workspace_id"`
	IdentityID  string    `json:"identityId" db:"identity_id"`
	Role        Role      `json:"role" db:"role"`
	JoinedAt    time.Time `json:"joinedAt" db:"joined_at"`
}

// IsOwner reports whether the membership carries the Owner role.
func (m *Membership) IsOwner() bool {
	return m.Role == RoleOwner
}

// Can reports whether the membership's role grants perm.
func (m *Membership) Can(perm Permission) bool {
	return HasPermission(m.Role, perm)
}

// ErrLastOwner is returned when a write would leave a workspace without an Owner.
var ErrLastOwner = &Error{Kind: KindInvariantViolation, Message: "workspace must keep at least one owner"}

// EnsureOwnerRemains is the last-Owner guard. ownerCount must be read under the same
// lock as the write that takes the Owner role away from target.
func EnsureOwnerRemains(target *Membership, ownerCount int) error {
	if target.Role == RoleOwner && ownerCount <= 1 {
		return ErrLastOwner
	}
	return nil
}

// MemberView is a membership joined with the member's public profile.
type MemberView struct {
	Membership
	Email string `json:"email"`
	Name  string `json:"name"`
}

// WorkspaceSummary is a workspace as seen by one of its members.
type WorkspaceSummary struct {
	Workspace
	Role Role `json:"role"`
}

// =====================================================
// Request DTOs
// =====================================================

// CreateWorkspaceRequest DTO for workspace creation.
type CreateWorkspaceRequest struct {
	Name        string  `json:"name" validate:"required,min=1,max=255"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=1000"`
}

// Validate trims the name and validates the request.
func (r *CreateWorkspaceRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Description != nil {
		trimmed := strings.TrimSpace(*r.Description)
		r.Description = &trimmed
	}
	return validationErr(validate.Struct(r))
}

// UpdateWorkspaceRequest DTO for partial workspace updates. nil = unchanged.
type UpdateWorkspaceRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=1000"`
}

// Validate trims string fields and validates the request.
func (r *UpdateWorkspaceRequest) Validate() error {
	if r.Name != nil {
		trimmed := strings.TrimSpace(*r.Name)
		r.Name = &trimmed
	}
	if r.Description != nil {
		trimmed := strings.TrimSpace(*r.Description)
		r.Description = &trimmed
	}
	return validationErr(validate.Struct(r))
}

// ChangeRoleRequest DTO for PUT /members/{identityId}/role.
type ChangeRoleRequest struct {
	Role Role `json:"role" validate:"required,oneof=owner admin member"`
}

// Validate validates the request.
func (r *ChangeRoleRequest) Validate() error {
	return validationErr(validate.Struct(r))
}

// validationErr converts validator output into a KindValidation *Error with
// one entry per failing field.
func validationErr(err error) error {
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return ValidationError("invalid request", nil)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[lowerFirst(fe.Field())] = fe.Tag()
	}
	return ValidationError("invalid request", fields)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
