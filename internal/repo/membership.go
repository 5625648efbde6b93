package repo

import (
	"context"
	"fmt"

	"teamboard-api/internal/database"
	"teamboard-api/internal/domain"

	"github.com/jackc/pgx/v5"
)

// MembershipCheck is evaluated with the workspace row locked, against freshly read
// actor and target memberships. A non-nil error aborts the write.
type MembershipCheck func(actor, target *domain.Membership) error

const membershipColumns = `id, workspace_id, user_id, role, joined_at`

func scanMembership(row pgx.Row) (*domain.Membership, error) {
	var m domain.Membership
	if err := row.Scan(&m.ID, &m.WorkspaceID, &m.IdentityID, &m.Role, &m.JoinedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// getMembership returns (nil, nil) when the identity is not a member.
func getMembership(ctx context.Context, q querier, workspaceID, identityID string, lock bool) (*domain.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM workspace_members WHERE workspace_id = $1 AND user_id = $2`
	if lock {
		query += ` FOR UPDATE`
	}
	m, err := scanMembership(q.QueryRow(ctx, query, workspaceID, identityID))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("query membership: %w", err)
	}
	return m, nil
}

// =====================================================
// Membership reads
// =====================================================

// GetMembership is the lookup behind every authorization check.
// Returns a KindNotFound error when the identity has no membership in the workspace.
func (r *WorkspaceRepository) GetMembership(ctx context.Context, workspaceID, identityID string) (*domain.Membership, error) {
	m, err := getMembership(ctx, r.pool, workspaceID, identityID, false)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, domain.NotFoundError("membership not found")
	}
	return m, nil
}

// ListMembers returns the workspace members with their profile, oldest first.
func (r *WorkspaceRepository) ListMembers(ctx context.Context, workspaceID string) ([]domain.MemberView, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT m.id, m.workspace_id, m.user_id, m.role, m.joined_at, u.email, u.name
		FROM workspace_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.workspace_id = $1
		ORDER BY m.joined_at ASC, m.id ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("query workspace members: %w", err)
	}
	defer rows.Close()

	members := make([]domain.MemberView, 0)
	for rows.Next() {
		var v domain.MemberView
		if err := rows.Scan(&v.ID, &v.WorkspaceID, &v.IdentityID, &v.Role, &v.JoinedAt, &v.Email, &v.Name); err != nil {
			return nil, fmt.Errorf("scan workspace member: %w", err)
		}
		members = append(members, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workspace members: %w", err)
	}
	return members, nil
}

// =====================================================
// Join protocol
// =====================================================

// JoinByInviteCode resolves the workspace by code and creates a Member membership
// for m.IdentityID, or returns the existing one unchanged. The boolean reports
// whether a membership was created.
//
// The matched workspace row is held FOR SHARE until commit: a rotation blocks
// until this join commits, and a join that starts after a rotation re-checks the
// code against the new row version and finds nothing.
func (r *WorkspaceRepository) JoinByInviteCode(ctx context.Context, code string, m *domain.Membership) (*domain.Membership, bool, error) {
	var (
		result  *domain.Membership
		created bool
	)
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var workspaceID string
		err := tx.QueryRow(ctx,
			`SELECT id FROM workspaces WHERE invite_code = $1 FOR SHARE`, code,
		).Scan(&workspaceID)
		if err != nil {
			if isNoRows(err) {
				return domain.NotFoundError("invalid or expired invite code")
			}
			return fmt.Errorf("resolve invite code: %w", err)
		}

		inserted, err := scanMembership(tx.QueryRow(ctx, `
			INSERT INTO workspace_members (id, workspace_id, user_id, role)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (workspace_id, user_id) DO NOTHING
			RETURNING `+membershipColumns,
			m.ID, workspaceID, m.IdentityID, string(domain.RoleMember),
		))
		switch {
		case err == nil:
			result, created = inserted, true
		case isNoRows(err):
			existing, err := getMembership(ctx, tx, workspaceID, m.IdentityID, false)
			if err != nil {
				return err
			}
			if existing == nil {
				return fmt.Errorf("membership for %s vanished during join", m.IdentityID)
			}
			result = existing
		case isForeignKeyViolation(err):
			return domain.NotFoundError("identity %s not found", m.IdentityID)
		default:
			return fmt.Errorf("insert membership: %w", err)
		}

		return setCurrentWorkspace(ctx, tx, m.IdentityID, &workspaceID)
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

// =====================================================
// Role change and removal
// =====================================================

// lockForMembershipWrite locks the workspace row and loads actor and target.
// A missing actor is PermissionDenied so non-members learn nothing; a missing
// target is NotFound.
func lockForMembershipWrite(ctx context.Context, tx pgx.Tx, workspaceID, actorID, targetID string) (ownerID string, actor, target *domain.Membership, err error) {
	err = tx.QueryRow(ctx, `SELECT owner_id FROM workspaces WHERE id = $1 FOR UPDATE`, workspaceID).Scan(&ownerID)
	if err != nil {
		if isNoRows(err) {
			return "", nil, nil, domain.PermissionDeniedError("not a member of this workspace")
		}
		return "", nil, nil, fmt.Errorf("lock workspace: %w", err)
	}

	actor, err = getMembership(ctx, tx, workspaceID, actorID, false)
	if err != nil {
		return "", nil, nil, err
	}
	if actor == nil {
		return "", nil, nil, domain.PermissionDeniedError("not a member of this workspace")
	}

	if targetID == actorID {
		target = actor
	} else {
		target, err = getMembership(ctx, tx, workspaceID, targetID, false)
		if err != nil {
			return "", nil, nil, err
		}
	}
	if target == nil {
		return "", nil, nil, domain.NotFoundError("identity %s is not a member of this workspace", targetID)
	}
	return ownerID, actor, target, nil
}

func countOwners(ctx context.Context, tx pgx.Tx, workspaceID string) (int, error) {
	var n int
	err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM workspace_members WHERE workspace_id = $1 AND role = 'owner'`, workspaceID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count owners: %w", err)
	}
	return n, nil
}

// repointOwner moves workspaces.owner_id to the longest-standing Owner other than
// leavingID. Called after leavingID lost the Owner role within the same transaction.
func repointOwner(ctx context.Context, tx pgx.Tx, workspaceID, leavingID string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE workspaces
		SET owner_id = (
			SELECT user_id FROM workspace_members
			WHERE workspace_id = $1 AND role = 'owner' AND user_id <> $2
			ORDER BY joined_at ASC, id ASC
			LIMIT 1
		), updated_at = NOW()
		WHERE id = $1
	`, workspaceID, leavingID)
	if err != nil {
		return fmt.Errorf("repoint workspace owner: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repoint workspace owner: workspace %s vanished", workspaceID)
	}
	return nil
}

// ChangeRole sets target's role to newRole. check runs under the workspace lock;
// the last-Owner guard is re-evaluated against the locked Owner count. Changing
// to the current role is a no-op that returns the membership.
func (r *WorkspaceRepository) ChangeRole(ctx context.Context, workspaceID, actorID, targetID string, newRole domain.Role, check MembershipCheck) (*domain.Membership, error) {
	var result *domain.Membership
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		ownerID, actor, target, err := lockForMembershipWrite(ctx, tx, workspaceID, actorID, targetID)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(actor, target); err != nil {
				return err
			}
		}
		if target.Role == newRole {
			result = target
			return nil
		}

		if target.Role == domain.RoleOwner {
			owners, err := countOwners(ctx, tx, workspaceID)
			if err != nil {
				return err
			}
			if err := domain.EnsureOwnerRemains(target, owners); err != nil {
				return err
			}
		}

		result, err = scanMembership(tx.QueryRow(ctx, `
			UPDATE workspace_members SET role = $3
			WHERE workspace_id = $1 AND user_id = $2
			RETURNING `+membershipColumns,
			workspaceID, targetID, string(newRole),
		))
		if err != nil {
			return fmt.Errorf("update membership role: %w", err)
		}

		if target.Role == domain.RoleOwner && ownerID == targetID {
			return repointOwner(ctx, tx, workspaceID, targetID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RemoveMember deletes target's membership and returns it. check runs under the
// workspace lock, then the last-Owner guard. The target's current workspace
// pointer is cleared when it referenced this workspace.
func (r *WorkspaceRepository) RemoveMember(ctx context.Context, workspaceID, actorID, targetID string, check MembershipCheck) (*domain.Membership, error) {
	var removed *domain.Membership
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		ownerID, actor, target, err := lockForMembershipWrite(ctx, tx, workspaceID, actorID, targetID)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(actor, target); err != nil {
				return err
			}
		}

		if target.Role == domain.RoleOwner {
			owners, err := countOwners(ctx, tx, workspaceID)
			if err != nil {
				return err
			}
			if err := domain.EnsureOwnerRemains(target, owners); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM workspace_members WHERE workspace_id = $1 AND user_id = $2`,
			workspaceID, targetID,
		); err != nil {
			return fmt.Errorf("delete membership: %w", err)
		}

		if ownerID == targetID {
			if err := repointOwner(ctx, tx, workspaceID, targetID); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(ctx, `
			UPDATE users SET current_workspace_id = NULL, updated_at = NOW()
			WHERE id = $1 AND current_workspace_id = $2
		`, targetID, workspaceID); err != nil {
			return fmt.Errorf("clear current workspace: %w", err)
		}

		removed = target
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}
