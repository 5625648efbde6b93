package repo

import (
	"context"
	"fmt"

	"teamboard-api/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ProjectRepository struct {
	pool *pgxpool.Pool
}

func NewProjectRepository(pool *pgxpool.Pool) *ProjectRepository {
	return &ProjectRepository{pool: pool}
}

const projectColumns = `id, workspace_id, name, emoji, description, created_by, created_at, updated_at`

func scanProject(row pgx.Row) (*domain.Project, error) {
	var p domain.Project
	err := row.Scan(&p.ID, &p.WorkspaceID, &p.Name, &p.Emoji, &p.Description, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProject inserts p and fills its timestamps.
func (r *ProjectRepository) CreateProject(ctx context.Context, p *domain.Project) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO projects (id, workspace_id, name, emoji, description, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, p.ID, p.WorkspaceID, p.Name, p.Emoji, p.Description, p.CreatedBy).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.NotFoundError("workspace not found")
		}
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// GetProject loads a project by id regardless of workspace. Tenant matching is
// the caller's job so a mismatch and a missing row look the same to clients.
func (r *ProjectRepository) GetProject(ctx context.Context, projectID string) (*domain.Project, error) {
	p, err := scanProject(r.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, projectID))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NotFoundError("project not found")
		}
		return nil, fmt.Errorf("query project: %w", err)
	}
	return p, nil
}

// UpdateProject applies a partial update; nil fields are left unchanged.
func (r *ProjectRepository) UpdateProject(ctx context.Context, projectID string, req *domain.UpdateProjectRequest) (*domain.Project, error) {
	p, err := scanProject(r.pool.QueryRow(ctx, `
		UPDATE projects
		SET name = COALESCE($2, name),
		    emoji = COALESCE($3, emoji),
		    description = COALESCE($4, description),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+projectColumns,
		projectID, req.Name, req.Emoji, req.Description,
	))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NotFoundError("project not found")
		}
		return nil, fmt.Errorf("update project: %w", err)
	}
	return p, nil
}

// DeleteProject removes the project; its tasks cascade.
func (r *ProjectRepository) DeleteProject(ctx context.Context, projectID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, projectID)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundError("project not found")
	}
	return nil
}

// ListProjects returns one page of the workspace's projects, newest first, and the total count.
func (r *ProjectRepository) ListProjects(ctx context.Context, params domain.ListProjectsParams) ([]domain.Project, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM projects WHERE workspace_id = $1`, params.WorkspaceID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count projects: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE workspace_id = $1
		ORDER BY created_at DESC, id ASC
		LIMIT $2 OFFSET $3
	`, params.WorkspaceID, params.Limit, params.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	projects := make([]domain.Project, 0, params.Limit)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate projects: %w", err)
	}
	return projects, total, nil
}
