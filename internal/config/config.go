package config

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration
type Config struct {
	// Runtime
	AppEnv   string `env:"APP_ENV" envDefault:"prod"` // dev | staging | prod
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Port     string `env:"PORT" envDefault:"3002"`

	ShutdownTimeoutSeconds int `env:"SHUTDOWN_TIMEOUT_SECONDS" envDefault:"25"`

	// Database
	DatabaseURL   string `env:"DATABASE_URL,required"`
	DBMaxConns    int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns    int32  `env:"DB_MIN_CONNS" envDefault:"2"`
	MigrateOnBoot bool   `env:"MIGRATE_ON_BOOT" envDefault:"true"`

	// Redis
	RedisURL string `env:"REDIS_URL,required"`

	// JWT
	JWTHS256Secret      string `env:"JWT_HS256_SECRET,required"` // Base64-encoded HMAC secret, >= 32 bytes decoded
	JWTRS256PublicKey   string `env:"JWT_RS256_PUBLIC_KEY"`      // optional PEM, accepted for every allowed issuer
	JWTKid              string `env:"JWT_KID" envDefault:"v1"`
	JWTAllowedIssuers   string `env:"JWT_ALLOWED_ISSUERS" envDefault:"teamboard-web"` // CSV
	JWTAudience         string `env:"JWT_AUDIENCE,required"`
	JWTClockSkewSeconds int    `env:"JWT_CLOCK_SKEW_SECONDS" envDefault:"60"`

	// OpenTelemetry
	OTELEnabled          bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELExporterEndpoint string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTELServiceName      string  `env:"OTEL_SERVICE_NAME" envDefault:"teamboard-api"`
	OTELSamplingRatio    float64 `env:"OTEL_SAMPLING_RATIO" envDefault:"0.1"`

	// Prometheus scrape endpoint. Empty token leaves /metrics open (dev only).
	MetricsToken string `env:"METRICS_TOKEN"`

	// Rate limiting
	RateLimitPerIdentityPerMin int `env:"RATE_LIMIT_PER_IDENTITY_PER_MIN" envDefault:"120"`

	// Retention
	IdempotencyTTLHours int `env:"IDEMPOTENCY_TTL_HOURS" envDefault:"24"`
	AuditRetentionDays  int `env:"AUDIT_RETENTION_DAYS" envDefault:"90"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate performs custom validation on the configuration
func (c *Config) Validate() error {
	switch c.AppEnv {
	case "dev", "staging", "prod":
	default:
		return fmt.Errorf("APP_ENV must be one of dev, staging, prod (got %q)", c.AppEnv)
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.JWTAudience == "" {
		return fmt.Errorf("JWT_AUDIENCE is required")
	}

	if _, err := c.HS256Secret(); err != nil {
		return err
	}

	if len(c.GetAllowedIssuers()) == 0 {
		return fmt.Errorf("JWT_ALLOWED_ISSUERS must contain at least one valid issuer")
	}
	if c.JWTClockSkewSeconds < 0 {
		return fmt.Errorf("JWT_CLOCK_SKEW_SECONDS must be non-negative")
	}

	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS/DB_MAX_CONNS must satisfy 0 <= min <= max, max > 0")
	}

	if c.OTELSamplingRatio < 0 || c.OTELSamplingRatio > 1 {
		return fmt.Errorf("OTEL_SAMPLING_RATIO must be between 0 and 1")
	}

	if c.RateLimitPerIdentityPerMin <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_IDENTITY_PER_MIN must be positive")
	}
	if c.IdempotencyTTLHours <= 0 {
		return fmt.Errorf("IDEMPOTENCY_TTL_HOURS must be positive")
	}
	if c.AuditRetentionDays <= 0 {
		return fmt.Errorf("AUDIT_RETENTION_DAYS must be positive")
	}

	// a production /metrics must not be world-readable
	if c.AppEnv == "prod" && c.MetricsToken == "" {
		return fmt.Errorf("METRICS_TOKEN is required when APP_ENV=prod")
	}

	return nil
}

// HS256Secret decodes JWT_HS256_SECRET.
func (c *Config) HS256Secret() ([]byte, error) {
	secret, err := base64.StdEncoding.DecodeString(c.JWTHS256Secret)
	if err != nil {
		return nil, fmt.Errorf("JWT_HS256_SECRET must be valid Base64: %w", err)
	}
	if len(secret) < 32 {
		return nil, fmt.Errorf("JWT_HS256_SECRET must decode to at least 32 bytes, got %d", len(secret))
	}
	return secret, nil
}

// GetAllowedIssuers returns the list of allowed JWT issuers
func (c *Config) GetAllowedIssuers() []string {
	issuers := strings.Split(c.JWTAllowedIssuers, ",")
	result := make([]string, 0, len(issuers))
	seen := make(map[string]bool, len(issuers))
	for _, issuer := range issuers {
		trimmed := strings.TrimSpace(issuer)
		if trimmed != "" && !seen[trimmed] {
			seen[trimmed] = true
			result = append(result, trimmed)
		}
	}
	return result
}

// IsDev reports whether dev-only routes and error ids are enabled.
func (c *Config) IsDev() bool {
	return c.AppEnv == "dev"
}

// TelemetryEnabled reports whether OTLP exporters should be started.
func (c *Config) TelemetryEnabled() bool {
	return c.OTELEnabled && c.OTELExporterEndpoint != ""
}

func (c *Config) ClockSkew() time.Duration {
	return time.Duration(c.JWTClockSkewSeconds) * time.Second
}

func (c *Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.IdempotencyTTLHours) * time.Hour
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}
