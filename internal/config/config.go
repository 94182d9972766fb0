package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ProfileProduction = "production"
	ProfileSandbox    = "sandbox"
)

// Config carries every tunable the gateway reads at startup. Values come
// from DEVICEGATE_* environment variables with sandbox-friendly defaults.
type Config struct {
	Profile  string
	HTTPAddr string

	// Relational store holding pinned public keys and device sessions.
	DatabaseDriver string
	DatabaseDSN    string

	// Challenge store.
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	ChallengeKeyPrefix string
	ChallengeTTL       time.Duration

	// Pinned public keys are cached in front of the relational store;
	// zero disables the cache.
	KeyCacheTTL time.Duration

	// The outbound message table is owned by the messaging collaborator;
	// the gateway only verifies it exists at startup.
	MessagesTable string

	APIRateLimitRPM int
	ShutdownTimeout time.Duration

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELMetricsExportInterval time.Duration
}

func Load(ctx context.Context) (*Config, error) {
	cfg := &Config{
		Profile:  envString("DEVICEGATE_PROFILE", ProfileSandbox),
		HTTPAddr: envString("DEVICEGATE_HTTP_ADDR", ":50051"),

		DatabaseDriver: envString("DEVICEGATE_DB_DRIVER", "sqlite"),
		DatabaseDSN:    envString("DEVICEGATE_DB_DSN", "devicegate.db"),

		RedisAddr:          envString("DEVICEGATE_REDIS_ADDR", "localhost:6379"),
		RedisPassword:      envString("DEVICEGATE_REDIS_PASSWORD", ""),
		ChallengeKeyPrefix: envString("DEVICEGATE_CHALLENGE_KEY_PREFIX", "device_challenge"),

		MessagesTable: envString("DEVICEGATE_MESSAGES_TABLE", "relay_messages"),

		OTELServiceName:          envString("OTEL_SERVICE_NAME", "devicegate"),
		OTELEnvironment:          envString("OTEL_ENVIRONMENT", "development"),
		OTELExporterOTLPEndpoint: envString("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}

	var err error
	if cfg.RedisDB, err = envInt("DEVICEGATE_REDIS_DB", 0); err != nil {
		return nil, recordLoadError(ctx, cfg.Profile, err)
	}
	if cfg.ChallengeTTL, err = envDuration("DEVICEGATE_CHALLENGE_TTL", 30*time.Minute); err != nil {
		return nil, recordLoadError(ctx, cfg.Profile, err)
	}
	if cfg.KeyCacheTTL, err = envDuration("DEVICEGATE_KEY_CACHE_TTL", 10*time.Minute); err != nil {
		return nil, recordLoadError(ctx, cfg.Profile, err)
	}
	if cfg.APIRateLimitRPM, err = envInt("DEVICEGATE_API_RATE_LIMIT_RPM", 600); err != nil {
		return nil, recordLoadError(ctx, cfg.Profile, err)
	}
	if cfg.ShutdownTimeout, err = envDuration("DEVICEGATE_SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		return nil, recordLoadError(ctx, cfg.Profile, err)
	}
	if cfg.OTELExporterOTLPInsecure, err = envBool("OTEL_EXPORTER_OTLP_INSECURE", true); err != nil {
		return nil, recordLoadError(ctx, cfg.Profile, err)
	}
	if cfg.OTELMetricsEnabled, err = envBool("OTEL_METRICS_ENABLED", false); err != nil {
		return nil, recordLoadError(ctx, cfg.Profile, err)
	}
	if cfg.OTELTracingEnabled, err = envBool("OTEL_TRACING_ENABLED", false); err != nil {
		return nil, recordLoadError(ctx, cfg.Profile, err)
	}
	if cfg.OTELLogsEnabled, err = envBool("OTEL_LOGS_ENABLED", false); err != nil {
		return nil, recordLoadError(ctx, cfg.Profile, err)
	}
	if cfg.OTELMetricsExportInterval, err = envDuration("OTEL_METRICS_EXPORT_INTERVAL", 30*time.Second); err != nil {
		return nil, recordLoadError(ctx, cfg.Profile, err)
	}

	if err := cfg.Validate(); err != nil {
		recordConfigValidationEvent(ctx, cfg.Profile, "failure", classifyConfigLoadError(err))
		return nil, err
	}
	recordConfigValidationEvent(ctx, cfg.Profile, "success", "none")
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Profile {
	case ProfileProduction, ProfileSandbox:
	default:
		return fmt.Errorf("validate config: unknown profile %q", c.Profile)
	}
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("validate config: unsupported database driver %q", c.DatabaseDriver)
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("validate config: http address must not be empty")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("validate config: redis address must not be empty")
	}
	if c.ChallengeTTL < 0 {
		return fmt.Errorf("validate config: challenge ttl must not be negative")
	}
	if c.Profile == ProfileProduction && c.DatabaseDriver == "sqlite" {
		return fmt.Errorf("validate config: sqlite is only supported in the sandbox profile")
	}
	return nil
}

func (c *Config) IsSandbox() bool {
	return c.Profile == ProfileSandbox
}

func recordLoadError(ctx context.Context, profile string, err error) error {
	recordConfigValidationEvent(ctx, profile, "failure", classifyConfigLoadError(err))
	return err
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
