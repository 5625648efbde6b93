package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"teamboard-api/internal/observability/requestid"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEntry is one row of the audit trail.
type AuditEntry struct {
	WorkspaceID  string
	ActorID      string
	Action       string
	ResourceType string
	ResourceID   *string
	Metadata     map[string]interface{}
}

// AuditRepo handles audit log storage
type AuditRepo struct {
	pool *pgxpool.Pool
}

// NewAuditRepo creates a new AuditRepo
func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// LogAction logs an action to the audit log. The request id is taken from ctx.
func (r *AuditRepo) LogAction(ctx context.Context, entry AuditEntry) error {
	var metadataJSON []byte
	var err error

	if entry.Metadata != nil {
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	var requestID *string
	if id := requestid.GetRequestID(ctx); id != "" {
		requestID = &id
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO audit_log (
			workspace_id, actor_id, action, resource_type, resource_id, metadata, request_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		entry.WorkspaceID, entry.ActorID, entry.Action, entry.ResourceType, entry.ResourceID,
		metadataJSON, requestID,
	)
	if err != nil {
		return fmt.Errorf("failed to log action: %w", err)
	}

	return nil
}

// CleanupOlderThan removes audit rows older than the given number of days.
func (r *AuditRepo) CleanupOlderThan(ctx context.Context, days int) (int64, error) {
	result, err := r.pool.Exec(ctx,
		`DELETE FROM audit_log WHERE created_at < NOW() - make_interval(days => $1)`, days)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit log: %w", err)
	}
	return result.RowsAffected(), nil
}
