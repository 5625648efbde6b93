package service

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"teamboard-api/internal/domain"
	"teamboard-api/internal/observability/logger"
	"teamboard-api/internal/repo"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// inviteCodeBytes gives 128 bits of entropy per code.
const inviteCodeBytes = 16

var inviteEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateInviteCode returns an opaque, URL-safe, 26-character invite code.
func GenerateInviteCode() (string, error) {
	b := make([]byte, inviteCodeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate invite code: %w", err)
	}
	return strings.ToLower(inviteEncoding.EncodeToString(b)), nil
}

func newID() string {
	return uuid.NewString()
}

// requireActive rejects missing or deactivated identities before any store access.
func requireActive(identity *domain.Identity) error {
	if identity == nil || !identity.IsActive {
		return domain.PermissionDeniedError("identity is not active")
	}
	return nil
}

// recordAudit writes an audit row. Audit failures are logged and swallowed so a
// committed mutation is never reported as failed.
func recordAudit(ctx context.Context, audit AuditLogger, log *logger.Logger, entry repo.AuditEntry) {
	if audit == nil {
		return
	}
	if err := audit.LogAction(ctx, entry); err != nil {
		log.Warn(ctx, "failed to write audit log",
			logger.Module("audit"),
			logger.Action(entry.Action),
			zap.String("resource_type", entry.ResourceType),
			zap.Error(err),
		)
	}
}

func strPtr(s string) *string {
	return &s
}

// Clock is swappable in tests.
type Clock func() time.Time
