package domain

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// Priority of a task.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// IsValid reports whether p is a known priority.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Scan implements sql.Scanner.
func (p *Priority) Scan(src interface{}) error {
	if src == nil {
		*p = PriorityMedium // default
		return nil
	}

	var str string
	switch v := src.(type) {
	case string:
		str = v
	case []byte:
		str = string(v)
	default:
		return fmt.Errorf("cannot scan %T into Priority", src)
	}

	*p = Priority(str)
	if !p.IsValid() {
		return fmt.Errorf("invalid Priority value: %s", str)
	}
	return nil
}

// Value implements driver.Valuer.
func (p Priority) Value() (driver.Value, error) {
	if !p.IsValid() {
		return nil, fmt.Errorf("invalid Priority value: %s", string(p))
	}
	return string(p), nil
}

// TaskStatus is the board column a task sits in.
type TaskStatus string

const (
	TaskStatusBacklog    TaskStatus = "BACKLOG"
	TaskStatusTodo       TaskStatus = "TODO"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusInReview   TaskStatus = "IN_REVIEW"
	TaskStatusDone       TaskStatus = "DONE"
)

// IsValid reports whether s is a known status.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusBacklog, TaskStatusTodo, TaskStatusInProgress, TaskStatusInReview, TaskStatusDone:
		return true
	}
	return false
}

// Scan implements sql.Scanner.
func (s *TaskStatus) Scan(src interface{}) error {
	if src == nil {
		*s = TaskStatusTodo // default
		return nil
	}

	var str string
	switch v := src.(type) {
	case string:
		str = v
	case []byte:
		str = string(v)
	default:
		return fmt.Errorf("cannot scan %T into TaskStatus", src)
	}

	*s = TaskStatus(str)
	if !s.IsValid() {
		return fmt.Errorf("invalid TaskStatus value: %s", str)
	}
	return nil
}

// Value implements driver.Valuer.
func (s TaskStatus) Value() (driver.Value, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("invalid TaskStatus value: %s", string(s))
	}
	return string(s), nil
}

// Task belongs to exactly one project, and through it to one workspace.
// WorkspaceID is denormalized from the project so tenant filters stay a single column.
type Task struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspaceId" db:"workspace_id"`
	ProjectID   string `json:"projectId" db:"project_id"`

	Title       string  `json:"title" db:"title"`
	Description *string `json:"description,omitempty" db:"description"`

	Status   TaskStatus `json:"status" db:"status"`
	Priority Priority   `json:"priority" db:"priority"`

	AssignedTo *string `json:"assignedTo,omitempty" db:"assigned_to"`
	CreatedBy  string  `json:"createdBy" db:"created_by"`

	DueDate *time.Time `json:"dueDate,omitempty" db:"due_date"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// CreateTaskRequest is the body of POST .../projects/{projectId}/tasks.
//
// WorkspaceID and ProjectID come from the path, CreatedBy from the authenticated identity.
type CreateTaskRequest struct {
	Title       string  `json:"title" validate:"required,min=1,max=500"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=5000"`

	Status   *TaskStatus `json:"status,omitempty" validate:"omitempty,oneof=BACKLOG TODO IN_PROGRESS IN_REVIEW DONE"`
	Priority *Priority   `json:"priority,omitempty" validate:"omitempty,oneof=LOW MEDIUM HIGH"`

	AssignedTo *string    `json:"assignedTo,omitempty"`
	DueDate    *time.Time `json:"dueDate,omitempty"`
}

// Validate trims the title and validates the request.
func (r *CreateTaskRequest) Validate() error {
	r.Title = strings.TrimSpace(r.Title)
	r.AssignedTo = trimOptional(r.AssignedTo)
	return validationErr(validate.Struct(r))
}

// UpdateTaskRequest is a partial update; nil fields are left unchanged.
type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty" validate:"omitempty,min=1,max=500"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=5000"`

	Status   *TaskStatus `json:"status,omitempty" validate:"omitempty,oneof=BACKLOG TODO IN_PROGRESS IN_REVIEW DONE"`
	Priority *Priority   `json:"priority,omitempty" validate:"omitempty,oneof=LOW MEDIUM HIGH"`

	AssignedTo *string    `json:"assignedTo,omitempty"`
	DueDate    *time.Time `json:"dueDate,omitempty"`
}

// Validate trims string fields and validates the request.
func (r *UpdateTaskRequest) Validate() error {
	if r.Title != nil {
		t := strings.TrimSpace(*r.Title)
		r.Title = &t
	}
	r.AssignedTo = trimOptional(r.AssignedTo)
	return validationErr(validate.Struct(r))
}

// IsEmpty reports whether the update carries no field at all.
func (r *UpdateTaskRequest) IsEmpty() bool {
	return r.Title == nil && r.Description == nil && r.Status == nil &&
		r.Priority == nil && r.AssignedTo == nil && r.DueDate == nil
}

// ListTasksParams filters and paginates ListTasks.
//
// WorkspaceID is always required.
type ListTasksParams struct {
	WorkspaceID string

	// Optional filters
	ProjectID  *string
	Status     *TaskStatus
	Priority   *Priority
	AssignedTo *string

	// keyword over title and description
	Keyword *string

	Limit  int
	Offset int
}

// Normalize applies pagination defaults and bounds.
func (p *ListTasksParams) Normalize() {
	if p.Limit <= 0 || p.Limit > 100 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	p.Keyword = trimOptional(p.Keyword)
	p.ProjectID = trimOptional(p.ProjectID)
	p.AssignedTo = trimOptional(p.AssignedTo)
}

// Validate rejects enum filters that are not part of the closed sets.
func (p *ListTasksParams) Validate() error {
	fields := map[string]string{}
	if p.Status != nil && !p.Status.IsValid() {
		fields["status"] = "oneof"
	}
	if p.Priority != nil && !p.Priority.IsValid() {
		fields["priority"] = "oneof"
	}
	if len(fields) > 0 {
		return ValidationError("invalid filters", fields)
	}
	return nil
}

// TaskListResponse is one page of tasks.
type TaskListResponse struct {
	Data []Task `json:"data"`
	Meta struct {
		Total  int `json:"total"`
		Limit  int `json:"limit"`
		Offset int `json:"offset"`
	} `json:"meta"`
}

// trimOptional trims s and collapses blank values to nil.
func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
