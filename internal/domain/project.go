package domain

import (
	"strings"
	"time"
)

// Project groups tasks inside a workspace. It carries no authorization state;
// access always goes through the workspace membership.
type Project struct {
	ID          string    `json:"id" db:"id"`
	WorkspaceID string    `json:"workspaceId" db:"workspace_id"`
	Name        string    `json:"name" db:"name"`
	Emoji       *string   `json:"emoji,omitempty" db:"emoji"`
	Description *string   `json:"description,omitempty" db:"description"`
	CreatedBy   string    `json:"createdBy" db:"created_by"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// CreateProjectRequest is the body of POST .../projects.
type CreateProjectRequest struct {
	Name        string  `json:"name" validate:"required,min=1,max=255"`
	Emoji       *string `json:"emoji,omitempty" validate:"omitempty,max=16"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=1000"`
}

// Validate trims the name and validates the request.
func (r *CreateProjectRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Emoji = trimOptional(r.Emoji)
	return validationErr(validate.Struct(r))
}

// UpdateProjectRequest is a partial update; nil fields are left unchanged.
type UpdateProjectRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Emoji       *string `json:"emoji,omitempty" validate:"omitempty,max=16"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=1000"`
}

// Validate trims string fields and validates the request.
func (r *UpdateProjectRequest) Validate() error {
	if r.Name != nil {
		n := strings.TrimSpace(*r.Name)
		r.Name = &n
	}
	return validationErr(validate.Struct(r))
}

// ListProjectsParams filters and paginates ListProjects.
type ListProjectsParams struct {
	WorkspaceID string
	Limit       int
	Offset      int
}

// Normalize applies pagination defaults.
func (p *ListProjectsParams) Normalize() {
	if p.Limit <= 0 || p.Limit > 100 {
		p.Limit = 20
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
}

// ProjectListResponse is one page of projects.
type ProjectListResponse struct {
	Data []Project `json:"data"`
	Meta struct {
		Total  int `json:"total"`
		Limit  int `json:"limit"`
		Offset int `json:"offset"`
	} `json:"meta"`
}

// Analytics is the read-only task aggregation for a workspace or a project.
type Analytics struct {
	TotalTasks     int `json:"totalTasks"`
	OverdueTasks   int `json:"overdueTasks"`
	CompletedTasks int `json:"completedTasks"`
}
