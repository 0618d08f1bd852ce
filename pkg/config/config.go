package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	Review      ReviewConfig
	Override    OverrideConfig
	Invitations InvitationConfig
	AuditExport AuditExportConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ReviewConfig tunes the approval review queues.
type ReviewConfig struct {
	QueueCacheTTL time.Duration
}

// OverrideConfig bounds account-override sessions and selects the session backend.
type OverrideConfig struct {
	MinDuration   time.Duration
	MaxDuration   time.Duration
	Backend       string // "memory" or "redis"
	SweepInterval time.Duration
}

// InvitationConfig governs admin invitation lifetimes.
type InvitationConfig struct {
	TTL time.Duration
}

// AuditExportConfig configures asynchronous audit trail exports.
type AuditExportConfig struct {
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	CleanupInterval   time.Duration
	WorkerConcurrency int
	WorkerRetries     int
	MaxRows           int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Review = ReviewConfig{
		QueueCacheTTL: parseDuration(v.GetString("REVIEW_QUEUE_CACHE_TTL"), 2*time.Minute),
	}

	cfg.Override = OverrideConfig{
		MinDuration:   parseDuration(v.GetString("OVERRIDE_MIN_DURATION"), 5*time.Minute),
		MaxDuration:   parseDuration(v.GetString("OVERRIDE_MAX_DURATION"), 120*time.Minute),
		Backend:       v.GetString("OVERRIDE_SESSION_BACKEND"),
		SweepInterval: parseDuration(v.GetString("OVERRIDE_SWEEP_INTERVAL"), 5*time.Minute),
	}

	cfg.Invitations = InvitationConfig{
		TTL: parseDuration(v.GetString("INVITATION_TTL"), 72*time.Hour),
	}

	maxRows := v.GetInt("AUDIT_EXPORT_MAX_ROWS")
	if maxRows <= 0 {
		maxRows = 10000
	}
	cfg.AuditExport = AuditExportConfig{
		StorageDir:        v.GetString("AUDIT_EXPORT_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("AUDIT_EXPORT_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("AUDIT_EXPORT_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupInterval:   parseDuration(v.GetString("AUDIT_EXPORT_CLEANUP_INTERVAL"), time.Hour),
		WorkerConcurrency: v.GetInt("AUDIT_EXPORT_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("AUDIT_EXPORT_WORKER_RETRIES"),
		MaxRows:           maxRows,
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "medibook_admin")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("REVIEW_QUEUE_CACHE_TTL", "2m")

	v.SetDefault("OVERRIDE_MIN_DURATION", "5m")
	v.SetDefault("OVERRIDE_MAX_DURATION", "120m")
	v.SetDefault("OVERRIDE_SESSION_BACKEND", "memory")
	v.SetDefault("OVERRIDE_SWEEP_INTERVAL", "5m")

	v.SetDefault("INVITATION_TTL", "72h")

	v.SetDefault("AUDIT_EXPORT_STORAGE_DIR", "./exports")
	v.SetDefault("AUDIT_EXPORT_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("AUDIT_EXPORT_SIGNED_URL_TTL", "24h")
	v.SetDefault("AUDIT_EXPORT_CLEANUP_INTERVAL", "1h")
	v.SetDefault("AUDIT_EXPORT_WORKER_CONCURRENCY", 1)
	v.SetDefault("AUDIT_EXPORT_WORKER_RETRIES", 3)
	v.SetDefault("AUDIT_EXPORT_MAX_ROWS", 10000)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
