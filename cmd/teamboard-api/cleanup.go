package main

import (
	"context"
	"fmt"

	"teamboard-api/internal/config"
	"teamboard-api/internal/database"
	"teamboard-api/internal/observability/logger"
	"teamboard-api/internal/repo"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove expired idempotency keys and old audit entries",
	Long:  `Delete idempotency keys past their TTL and audit log rows older than AUDIT_RETENTION_DAYS.`,
	RunE:  runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.OTELServiceName, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info(ctx, "starting cleanup", logger.Module("cleanup"), logger.Action("start"))

	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	idempotencyRepo := repo.NewIdempotencyRepo(pool, cfg.IdempotencyTTL())
	keysDeleted, err := idempotencyRepo.CleanupExpired(ctx)
	if err != nil {
		log.Error(ctx, "idempotency cleanup failed", logger.Module("cleanup"), logger.Action("idempotency"), zap.Error(err))
		return fmt.Errorf("failed to cleanup expired keys: %w", err)
	}

	auditRepo := repo.NewAuditRepo(pool)
	auditDeleted, err := auditRepo.CleanupOlderThan(ctx, cfg.AuditRetentionDays)
	if err != nil {
		log.Error(ctx, "audit cleanup failed", logger.Module("cleanup"), logger.Action("audit"), zap.Error(err))
		return fmt.Errorf("failed to cleanup audit log: %w", err)
	}

	log.Info(ctx, "cleanup completed",
		logger.Module("cleanup"),
		logger.Action("done"),
		zap.Int64("idempotency_keys_deleted", keysDeleted),
		zap.Int64("audit_entries_deleted", auditDeleted),
	)
	fmt.Printf("✓ Cleanup completed: %d expired keys, %d audit entries removed\n", keysDeleted, auditDeleted)
	return nil
}
