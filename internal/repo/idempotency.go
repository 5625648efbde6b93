package repo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyRepo handles idempotency key storage and retrieval.
// Keys are scoped per identity, so two users may reuse the same key.
type IdempotencyRepo struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewIdempotencyRepo creates a new IdempotencyRepo. ttl <= 0 means 24h.
func NewIdempotencyRepo(pool *pgxpool.Pool, ttl time.Duration) *IdempotencyRepo {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyRepo{pool: pool, ttl: ttl}
}

// CachedResponse represents a cached response from an idempotent request.
// Method and Path identify the request that produced it.
type CachedResponse struct {
	Method  string
	Path    string
	Status  int
	Body    []byte
	Headers map[string]string
}

// StoredRequest is what gets persisted for a completed idempotent request.
type StoredRequest struct {
	ScopeID     string
	KeyHash     string
	OriginalKey string
	Method      string
	Path        string
	Payload     []byte
	Response    CachedResponse
}

// HashKey generates SHA256 hash of idempotency key
func HashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// CheckKey returns the cached response for (scopeID, keyHash), or nil when absent or expired.
func (r *IdempotencyRepo) CheckKey(ctx context.Context, scopeID, keyHash string) (*CachedResponse, error) {
	var cached CachedResponse
	var headersJSON []byte

	err := r.pool.QueryRow(ctx, `
		SELECT request_method, request_path, response_status, response_body, response_headers
		FROM idempotency_keys
		WHERE scope_id = $1 AND key_hash = $2 AND expires_at > NOW()
	`, scopeID, keyHash).Scan(&cached.Method, &cached.Path, &cached.Status, &cached.Body, &headersJSON)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency key: %w", err)
	}

	if headersJSON != nil {
		if err := json.Unmarshal(headersJSON, &cached.Headers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal headers: %w", err)
		}
	}

	return &cached, nil
}

// StoreResult stores the result of an idempotent request. The first writer wins.
func (r *IdempotencyRepo) StoreResult(ctx context.Context, req StoredRequest) error {
	headersJSON, err := json.Marshal(req.Response.Headers)
	if err != nil {
		return fmt.Errorf("failed to marshal headers: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO idempotency_keys (
			key_hash, scope_id, original_key, request_method, request_path,
			request_payload, response_status, response_body, response_headers, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (scope_id, key_hash) DO NOTHING
	`,
		req.KeyHash, req.ScopeID, req.OriginalKey, req.Method, req.Path,
		req.Payload, req.Response.Status, req.Response.Body, headersJSON,
		time.Now().Add(r.ttl),
	)
	if err != nil {
		return fmt.Errorf("failed to store idempotency result: %w", err)
	}

	return nil
}

// CleanupExpired removes expired idempotency keys
func (r *IdempotencyRepo) CleanupExpired(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired keys: %w", err)
	}

	return result.RowsAffected(), nil
}
