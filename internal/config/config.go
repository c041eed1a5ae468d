package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	apperrors "github.com/spec-kit/pixmart/pkg/util/errorutil"
)

// DefaultPublicPrefixes are reachable without a session.
var DefaultPublicPrefixes = []string{
	"/login",
	"/register",
	"/api/auth",
	"/favicon.ico",
	"/_next",
	"/health",
	"/metrics",
}

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	Secret string
	// SessionMaxAge is the absolute lifetime of a session token, measured from issuance.
	SessionMaxAge     time.Duration
	BcryptCost        int
	CookieName        string
	LoginPath         string
	PublicPrefixes    []string
	RevocationEnabled bool
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults where possible.
// AUTH_SECRET and POSTGRES_DSN are required.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, apperrors.NewConfigurationError("invalid REDIS_DB", err)
	}

	maxAge, err := time.ParseDuration(getEnv("AUTH_SESSION_MAX_AGE", "240h"))
	if err != nil {
		return nil, apperrors.NewConfigurationError("invalid AUTH_SESSION_MAX_AGE", err)
	}
	if maxAge <= 0 {
		return nil, apperrors.NewConfigurationError("AUTH_SESSION_MAX_AGE must be positive", nil)
	}

	secret := os.Getenv("AUTH_SECRET")
	if strings.TrimSpace(secret) == "" {
		return nil, apperrors.NewConfigurationError("AUTH_SECRET is required", nil)
	}

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		return nil, apperrors.NewConfigurationError("POSTGRES_DSN is required", nil)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "pixmart"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            dsn,
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			Secret:            secret,
			SessionMaxAge:     maxAge,
			BcryptCost:        getEnvAsInt("AUTH_BCRYPT_COST", 12),
			CookieName:        getEnv("AUTH_COOKIE_NAME", "pixmart.session-token"),
			LoginPath:         getEnv("AUTH_LOGIN_PATH", "/login"),
			PublicPrefixes:    getEnvAsList("AUTH_PUBLIC_PREFIXES", DefaultPublicPrefixes),
			RevocationEnabled: getEnvAsBool("AUTH_REVOCATION_ENABLED", false),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@pixmart.example"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// IsProduction reports whether secure-only cookies should be issued.
func (a AppConfig) IsProduction() bool {
	return strings.EqualFold(a.Env, "production")
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return append([]string(nil), fallback...)
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), fallback...)
	}
	return out
}
