package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"teamboard-api/internal/auth"
	"teamboard-api/internal/config"
	"teamboard-api/internal/database"
	"teamboard-api/internal/http/handler"
	"teamboard-api/internal/http/httperr"
	"teamboard-api/internal/observability/logger"
	"teamboard-api/internal/ratelimit"
	"teamboard-api/internal/repo"
	"teamboard-api/internal/service"
	"teamboard-api/internal/telemetry"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long:  `Start the Teamboard API HTTP server with all middlewares and observability`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
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

	httperr.SetExposeErrorID(cfg.IsDev())

	log.Info(ctx, "starting teamboard api",
		logger.Module("main"),
		logger.Action("start"),
		zap.String("version", telemetry.Version),
		zap.String("env", cfg.AppEnv),
	)

	if cfg.MigrateOnBoot {
		log.Info(ctx, "running database migrations", logger.Module("main"), logger.Action("migrate"))
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	// Telemetry is opt-in. Without an exporter the instruments are no-ops.
	metrics, shutdownTelemetry := initTelemetry(ctx, cfg, log)
	defer shutdownTelemetry()

	pool, err := database.NewPoolWithOptions(ctx, cfg.DatabaseURL, database.PoolOptions{
		MaxConns:       cfg.DBMaxConns,
		MinConns:       cfg.DBMinConns,
		SimpleProtocol: true,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Info(ctx, "database connected", logger.Module("main"), logger.Action("connect_db"))

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Info(ctx, "redis connected", logger.Module("main"), logger.Action("connect_redis"))

	resolver, err := buildResolver(cfg)
	if err != nil {
		return err
	}
	log.Info(ctx, "JWT authentication initialized",
		logger.Module("main"),
		logger.Action("init_auth"),
		zap.Strings("allowed_issuers", cfg.GetAllowedIssuers()),
		zap.Bool("rs256", cfg.JWTRS256PublicKey != ""),
		zap.Int("clock_skew_seconds", cfg.JWTClockSkewSeconds),
	)

	promMetrics := telemetry.NewPromMetrics()
	promMetrics.RegisterPoolStats(pool)

	workspaceRepo := repo.NewWorkspaceRepository(pool)
	userRepo := repo.NewUserRepository(pool)
	projectRepo := repo.NewProjectRepository(pool)
	taskRepo := repo.NewTaskRepository(pool)
	auditRepo := repo.NewAuditRepo(pool)
	idempotencyRepo := repo.NewIdempotencyRepo(pool, cfg.IdempotencyTTL())

	guard := service.NewGuard(workspaceRepo, projectRepo, taskRepo, promMetrics, log)
	workspaceService := service.NewWorkspaceService(workspaceRepo, workspaceRepo, userRepo, taskRepo, guard, auditRepo, log)
	membershipService := service.NewMembershipService(workspaceRepo, guard, auditRepo, promMetrics, log)
	projectService := service.NewProjectService(projectRepo, taskRepo, guard, auditRepo, log)
	taskService := service.NewTaskService(taskRepo, workspaceRepo, guard, auditRepo, log)

	var rateLimitCounter metric.Int64Counter
	if metrics != nil {
		rateLimitCounter = metrics.RateLimitRejections
	}
	rateLimiter := ratelimit.NewRedisRateLimiter(redisClient, rateLimitCounter)

	r := buildRouter(RouterDeps{
		Cfg:              cfg,
		Log:              log,
		Resolver:         resolver,
		Identities:       userRepo,
		IdempotencyStore: idempotencyRepo,
		RateLimiter:      rateLimiter,
		Metrics:          metrics,
		PromMetrics:      promMetrics,
		Readiness: []ReadinessCheck{
			{Name: "database", Check: pool.Ping},
			{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
		},
		MeHandler:         handler.NewMeHandler(workspaceService),
		WorkspaceHandler:  handler.NewWorkspaceHandler(workspaceService),
		MembershipHandler: handler.NewMembershipHandler(membershipService),
		ProjectHandler:    handler.NewProjectHandler(projectService),
		TaskHandler:       handler.NewTaskHandler(taskService),
		DebugHandler:      handler.NewDebugHandler(cfg.IsDev(), pool),
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting http server", logger.Module("main"), logger.Action("listen"), zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	case <-sigChan:
	}

	log.Info(ctx, "shutdown signal received, starting graceful shutdown", logger.Module("main"), logger.Action("shutdown"))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown error", logger.Module("main"), logger.Action("shutdown"), zap.Error(err))
	}

	log.Info(shutdownCtx, "shutdown complete", logger.Module("main"), logger.Action("shutdown"))
	return nil
}

// buildResolver registers a validator for every allowed issuer. Every issuer
// shares the HS256 secret; the RS256 public key, when set, is accepted too.
func buildResolver(cfg *config.Config) (*auth.KeyResolver, error) {
	secret, err := cfg.HS256Secret()
	if err != nil {
		return nil, err
	}

	issuers := cfg.GetAllowedIssuers()
	keyStore := auth.NewKeyStore()
	resolver := auth.NewKeyResolver(issuers, []string{cfg.JWTAudience})

	for _, issuer := range issuers {
		keyStore.LoadHS256Key(issuer, cfg.JWTKid, secret)
		validators := []auth.TokenValidator{auth.NewHS256Validator(keyStore, issuer, cfg.ClockSkew())}

		if cfg.JWTRS256PublicKey != "" {
			if err := keyStore.LoadRS256Key(issuer, cfg.JWTKid, cfg.JWTRS256PublicKey); err != nil {
				return nil, fmt.Errorf("failed to load JWT_RS256_PUBLIC_KEY: %w", err)
			}
			validators = append(validators, auth.NewRS256Validator(keyStore, issuer, cfg.ClockSkew()))
		}

		resolver.RegisterValidator(issuer, auth.NewAnyValidator(validators...))
	}
	return resolver, nil
}

// initTelemetry starts the OTLP trace and metric pipelines when configured.
// Otherwise the HTTP instruments record into the global noop provider.
func initTelemetry(ctx context.Context, cfg *config.Config, log *logger.Logger) (*telemetry.Metrics, func()) {
	var shutdowns []func(context.Context) error

	if cfg.TelemetryEnabled() {
		tp, err := telemetry.InitTracer(ctx, cfg.OTELServiceName, cfg.OTELExporterEndpoint, cfg.OTELSamplingRatio)
		if err != nil {
			log.Warn(ctx, "failed to initialize tracer, continuing without tracing", logger.Module("main"), logger.Action("init_telemetry"), zap.Error(err))
		} else {
			shutdowns = append(shutdowns, tp.Shutdown)
		}

		mp, m, err := telemetry.InitMetrics(ctx, cfg.OTELServiceName, cfg.OTELExporterEndpoint)
		if err != nil {
			log.Warn(ctx, "failed to initialize metrics, continuing without metrics", logger.Module("main"), logger.Action("init_telemetry"), zap.Error(err))
		} else {
			shutdowns = append(shutdowns, mp.Shutdown)
			return m, shutdownFunc(log, shutdowns)
		}
	} else {
		log.Info(ctx, "telemetry disabled", logger.Module("main"), logger.Action("init_telemetry"))
	}

	m, err := telemetry.GlobalMetrics()
	if err != nil {
		log.Warn(ctx, "failed to create noop metrics", logger.Module("main"), logger.Action("init_telemetry"), zap.Error(err))
		return nil, shutdownFunc(log, shutdowns)
	}
	return m, shutdownFunc(log, shutdowns)
}

func shutdownFunc(log *logger.Logger, shutdowns []func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, shutdown := range shutdowns {
			if err := shutdown(ctx); err != nil {
				log.Error(ctx, "failed to shutdown telemetry provider", logger.Module("main"), logger.Action("shutdown"), zap.Error(err))
			}
		}
	}
}
