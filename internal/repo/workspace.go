package repo

import (
	"context"
	"fmt"

	"teamboard-api/internal/database"
	"teamboard-api/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// =====================================================
// Repository Definition
// =====================================================

// WorkspaceRepository handles workspaces, memberships and invite codes.
// Every write that can affect the Owner set locks the workspace row first, so
// membership mutations of one workspace are serialized.
type WorkspaceRepository struct {
	pool *pgxpool.Pool
}

// NewWorkspaceRepository creates a new WorkspaceRepository instance.
func NewWorkspaceRepository(pool *pgxpool.Pool) *WorkspaceRepository {
	return &WorkspaceRepository{pool: pool}
}

const workspaceColumns = `id, owner_id, name, description, invite_code, created_at, updated_at`

func scanWorkspace(row pgx.Row) (*domain.Workspace, error) {
	var ws domain.Workspace
	err := row.Scan(&ws.ID, &ws.OwnerID, &ws.Name, &ws.Description, &ws.InviteCode, &ws.CreatedAt, &ws.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

// =====================================================
// Workspace CRUD
// =====================================================

// CreateWorkspace inserts the workspace, its first invite code and the creator's
// Owner membership in one transaction, and points the creator's current workspace at it.
// ws.CreatedAt/UpdatedAt and owner.JoinedAt are filled from the database.
func (r *WorkspaceRepository) CreateWorkspace(ctx context.Context, ws *domain.Workspace, owner *domain.Membership) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO invite_codes (code, workspace_id) VALUES ($1, $2)`,
			ws.InviteCode, ws.ID,
		); err != nil {
			if isUniqueViolation(err, "") {
				return domain.ConflictError("invite code already issued", err)
			}
			return fmt.Errorf("insert invite code: %w", err)
		}

		err := tx.QueryRow(ctx, `
			INSERT INTO workspaces (id, owner_id, name, description, invite_code)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at, updated_at
		`, ws.ID, ws.OwnerID, ws.Name, ws.Description, ws.InviteCode).Scan(&ws.CreatedAt, &ws.UpdatedAt)
		if err != nil {
			if isForeignKeyViolation(err) {
				return domain.NotFoundError("identity %s not found", ws.OwnerID)
			}
			if isUniqueViolation(err, "") {
				return domain.ConflictError("workspace already exists", err)
			}
			return fmt.Errorf("insert workspace: %w", err)
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO workspace_members (id, workspace_id, user_id, role)
			VALUES ($1, $2, $3, $4)
			RETURNING joined_at
		`, owner.ID, ws.ID, owner.IdentityID, string(domain.RoleOwner)).Scan(&owner.JoinedAt)
		if err != nil {
			return fmt.Errorf("insert owner membership: %w", err)
		}
		owner.WorkspaceID = ws.ID
		owner.Role = domain.RoleOwner

		if err := setCurrentWorkspace(ctx, tx, owner.IdentityID, &ws.ID); err != nil {
			return err
		}
		return nil
	})
}

// GetWorkspace retrieves a workspace by id.
func (r *WorkspaceRepository) GetWorkspace(ctx context.Context, workspaceID string) (*domain.Workspace, error) {
	ws, err := scanWorkspace(r.pool.QueryRow(ctx,
		`SELECT `+workspaceColumns+` FROM workspaces WHERE id = $1`, workspaceID))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NotFoundError("workspace not found")
		}
		return nil, fmt.Errorf("query workspace: %w", err)
	}
	return ws, nil
}

// UpdateWorkspace applies a partial update; nil fields are left unchanged.
func (r *WorkspaceRepository) UpdateWorkspace(ctx context.Context, workspaceID string, req *domain.UpdateWorkspaceRequest) (*domain.Workspace, error) {
	ws, err := scanWorkspace(r.pool.QueryRow(ctx, `
		UPDATE workspaces
		SET name = COALESCE($2, name),
		    description = COALESCE($3, description),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+workspaceColumns,
		workspaceID, req.Name, req.Description,
	))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NotFoundError("workspace not found")
		}
		return nil, fmt.Errorf("update workspace: %w", err)
	}
	return ws, nil
}

// DeleteWorkspace removes the workspace. Memberships, projects and tasks go with it
// through ON DELETE CASCADE, and users.current_workspace_id is cleared by ON DELETE SET NULL.
// Its invite codes are retired but kept so they are never reissued.
func (r *WorkspaceRepository) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM workspaces WHERE id = $1`, workspaceID)
		if err != nil {
			return fmt.Errorf("delete workspace: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.NotFoundError("workspace not found")
		}

		if _, err := tx.Exec(ctx,
			`UPDATE invite_codes SET retired_at = NOW() WHERE workspace_id = $1 AND retired_at IS NULL`,
			workspaceID,
		); err != nil {
			return fmt.Errorf("retire invite codes: %w", err)
		}
		return nil
	})
}

// RotateInviteCode replaces the current code with newCode. The workspace row is
// locked FOR UPDATE, so concurrent joins (which hold FOR SHARE on the row they
// matched by code) are ordered strictly before or after the rotation.
func (r *WorkspaceRepository) RotateInviteCode(ctx context.Context, workspaceID, newCode string) (*domain.Workspace, error) {
	var ws *domain.Workspace
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var oldCode string
		err := tx.QueryRow(ctx,
			`SELECT invite_code FROM workspaces WHERE id = $1 FOR UPDATE`, workspaceID,
		).Scan(&oldCode)
		if err != nil {
			if isNoRows(err) {
				return domain.NotFoundError("workspace not found")
			}
			return fmt.Errorf("lock workspace: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO invite_codes (code, workspace_id) VALUES ($1, $2)`, newCode, workspaceID,
		); err != nil {
			if isUniqueViolation(err, "") {
				return domain.ConflictError("invite code already issued", err)
			}
			return fmt.Errorf("insert invite code: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE invite_codes SET retired_at = NOW() WHERE code = $1`, oldCode,
		); err != nil {
			return fmt.Errorf("retire invite code: %w", err)
		}

		ws, err = scanWorkspace(tx.QueryRow(ctx, `
			UPDATE workspaces
			SET invite_code = $2, updated_at = NOW()
			WHERE id = $1 AND invite_code = $3
			RETURNING `+workspaceColumns,
			workspaceID, newCode, oldCode,
		))
		if err != nil {
			if isNoRows(err) {
				return domain.ConflictError("invite code changed concurrently", nil)
			}
			return fmt.Errorf("update invite code: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ws, nil
}

// ListWorkspacesForIdentity returns every workspace the identity belongs to, with its role.
func (r *WorkspaceRepository) ListWorkspacesForIdentity(ctx context.Context, identityID string) ([]domain.WorkspaceSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT w.id, w.owner_id, w.name, w.description, w.invite_code, w.created_at, w.updated_at, m.role
		FROM workspace_members m
		JOIN workspaces w ON w.id = m.workspace_id
		WHERE m.user_id = $1
		ORDER BY m.joined_at ASC
	`, identityID)
	if err != nil {
		return nil, fmt.Errorf("query identity workspaces: %w", err)
	}
	defer rows.Close()

	out := make([]domain.WorkspaceSummary, 0)
	for rows.Next() {
		var s domain.WorkspaceSummary
		if err := rows.Scan(
			&s.ID, &s.OwnerID, &s.Name, &s.Description, &s.InviteCode, &s.CreatedAt, &s.UpdatedAt, &s.Role,
		); err != nil {
			return nil, fmt.Errorf("scan workspace summary: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identity workspaces: %w", err)
	}
	return out, nil
}
