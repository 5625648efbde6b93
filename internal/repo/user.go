package repo

import (
	"context"
	"fmt"

	"teamboard-api/internal/database"
	"teamboard-api/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository reads identities and maintains the current-workspace pointer.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `id, email, name, is_active, current_workspace_id`

func scanIdentity(row pgx.Row) (*domain.Identity, error) {
	var id domain.Identity
	if err := row.Scan(&id.ID, &id.Email, &id.Name, &id.IsActive, &id.CurrentWorkspaceID); err != nil {
		return nil, err
	}
	return &id, nil
}

// GetIdentity retrieves an identity by id.
func (r *UserRepository) GetIdentity(ctx context.Context, identityID string) (*domain.Identity, error) {
	id, err := scanIdentity(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, identityID))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NotFoundError("identity not found")
		}
		return nil, fmt.Errorf("query identity: %w", err)
	}
	return id, nil
}

// EnsureIdentity provisions the identity on first sight and refreshes email/name
// from the token afterwards. is_active is never touched here.
func (r *UserRepository) EnsureIdentity(ctx context.Context, identityID, email, name string) (*domain.Identity, error) {
	id, err := scanIdentity(r.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET email = CASE WHEN EXCLUDED.email <> '' THEN EXCLUDED.email ELSE users.email END,
		    name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE users.name END,
		    updated_at = CASE
		        WHEN (EXCLUDED.email <> '' AND EXCLUDED.email <> users.email)
		          OR (EXCLUDED.name <> '' AND EXCLUDED.name <> users.name)
		        THEN NOW() ELSE users.updated_at END
		RETURNING `+userColumns,
		identityID, email, name,
	))
	if err != nil {
		return nil, fmt.Errorf("upsert identity: %w", err)
	}
	return id, nil
}

// SetCurrentWorkspace updates the convenience pointer. nil clears it.
func (r *UserRepository) SetCurrentWorkspace(ctx context.Context, identityID string, workspaceID *string) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return setCurrentWorkspace(ctx, tx, identityID, workspaceID)
	})
}

func setCurrentWorkspace(ctx context.Context, tx pgx.Tx, identityID string, workspaceID *string) error {
	tag, err := tx.Exec(ctx,
		`UPDATE users SET current_workspace_id = $2, updated_at = NOW() WHERE id = $1`,
		identityID, workspaceID,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.NotFoundError("workspace not found")
		}
		return fmt.Errorf("set current workspace: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundError("identity not found")
	}
	return nil
}
