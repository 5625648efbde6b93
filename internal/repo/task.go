package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"teamboard-api/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TaskRepository struct {
	pool *pgxpool.Pool
}

func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

const taskColumns = `id, workspace_id, project_id, title, description, status, priority,
	assigned_to, created_by, due_date, created_at, updated_at`

func scanTask(row pgx.Row) (*domain.Task, error) {
	var t domain.Task
	err := row.Scan(
		&t.ID, &t.WorkspaceID, &t.ProjectID, &t.Title, &t.Description,
		&t.Status, &t.Priority,
		&t.AssignedTo, &t.CreatedBy, &t.DueDate,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTask inserts t and fills its timestamps.
func (r *TaskRepository) CreateTask(ctx context.Context, t *domain.Task) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO tasks (id, workspace_id, project_id, title, description, status, priority,
		                   assigned_to, created_by, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`,
		t.ID, t.WorkspaceID, t.ProjectID, t.Title, t.Description, string(t.Status), string(t.Priority),
		t.AssignedTo, t.CreatedBy, t.DueDate,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.NotFoundError("project not found")
		}
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetTask loads a task by id regardless of workspace; the guard does tenant matching.
func (r *TaskRepository) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	t, err := scanTask(r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, taskID))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NotFoundError("task not found")
		}
		return nil, fmt.Errorf("query task: %w", err)
	}
	return t, nil
}

// UpdateTask applies a partial update (PATCH semantics).
func (r *TaskRepository) UpdateTask(ctx context.Context, taskID string, req *domain.UpdateTaskRequest) (*domain.Task, error) {
	sets := []string{"updated_at = NOW()"}
	args := []interface{}{taskID}
	argIdx := 2

	add := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, value)
		argIdx++
	}

	if req.Title != nil {
		add("title", *req.Title)
	}
	if req.Description != nil {
		add("description", *req.Description)
	}
	if req.Status != nil {
		add("status", string(*req.Status))
	}
	if req.Priority != nil {
		add("priority", string(*req.Priority))
	}
	if req.AssignedTo != nil {
		add("assigned_to", *req.AssignedTo)
	}
	if req.DueDate != nil {
		add("due_date", *req.DueDate)
	}

	query := `UPDATE tasks SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + taskColumns

	t, err := scanTask(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NotFoundError("task not found")
		}
		if isForeignKeyViolation(err) {
			return nil, domain.ValidationError("invalid assignee", map[string]string{"assignedTo": "member"})
		}
		return nil, fmt.Errorf("update task: %w", err)
	}
	return t, nil
}

// DeleteTask hard-deletes a task.
func (r *TaskRepository) DeleteTask(ctx context.Context, taskID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, taskID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundError("task not found")
	}
	return nil
}

// ListTasks retrieves tasks for a workspace with optional filters.
// Multi-tenant isolation enforced by workspace_id filter.
func (r *TaskRepository) ListTasks(ctx context.Context, params domain.ListTasksParams) ([]domain.Task, int, error) {
	where := " WHERE workspace_id = $1"
	args := []interface{}{params.WorkspaceID}
	argIdx := 2

	// Optional filters
	if params.ProjectID != nil {
		where += fmt.Sprintf(" AND project_id = $%d", argIdx)
		args = append(args, *params.ProjectID)
		argIdx++
	}
	if params.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(*params.Status))
		argIdx++
	}
	if params.Priority != nil {
		where += fmt.Sprintf(" AND priority = $%d", argIdx)
		args = append(args, string(*params.Priority))
		argIdx++
	}
	if params.AssignedTo != nil {
		where += fmt.Sprintf(" AND assigned_to = $%d", argIdx)
		args = append(args, *params.AssignedTo)
		argIdx++
	}
	if params.Keyword != nil {
		where += fmt.Sprintf(" AND (title ILIKE $%d OR COALESCE(description, '') ILIKE $%d)", argIdx, argIdx)
		args = append(args, "%"+escapeLike(*params.Keyword)+"%")
		argIdx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tasks`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	query := `SELECT ` + taskColumns + ` FROM tasks` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id ASC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, params.Limit, params.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]domain.Task, 0, params.Limit)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, total, nil
}

// =====================================================
// Analytics
// =====================================================

// WorkspaceAnalytics counts all tasks of a workspace. Overdue means due before now and not DONE.
func (r *TaskRepository) WorkspaceAnalytics(ctx context.Context, workspaceID string, now time.Time) (*domain.Analytics, error) {
	return r.analytics(ctx, `workspace_id = $1`, []interface{}{workspaceID}, now)
}

// ProjectAnalytics is WorkspaceAnalytics narrowed to one project.
func (r *TaskRepository) ProjectAnalytics(ctx context.Context, workspaceID, projectID string, now time.Time) (*domain.Analytics, error) {
	return r.analytics(ctx, `workspace_id = $1 AND project_id = $2`, []interface{}{workspaceID, projectID}, now)
}

func (r *TaskRepository) analytics(ctx context.Context, where string, args []interface{}, now time.Time) (*domain.Analytics, error) {
	nowIdx := len(args) + 1
	query := fmt.Sprintf(`
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE due_date < $%d AND status <> 'DONE'),
			COUNT(*) FILTER (WHERE status = 'DONE')
		FROM tasks
		WHERE %s
	`, nowIdx, where)

	var a domain.Analytics
	if err := r.pool.QueryRow(ctx, query, append(args, now)...).Scan(&a.TotalTasks, &a.OverdueTasks, &a.CompletedTasks); err != nil {
		return nil, fmt.Errorf("query task analytics: %w", err)
	}
	return &a, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
