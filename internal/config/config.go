package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Session store backends.
const (
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config aggregates runtime configuration for the portal.
type Config struct {
	App       AppConfig
	API       APIConfig
	Session   SessionConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	AMQP      AMQPConfig
	Logger    LoggerConfig
	RateLimit RateLimitConfig
	Telemetry TelemetryConfig
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

// APIConfig points at the remote complaint API.
type APIConfig struct {
	BaseURL        string
	TimeoutSeconds int
	RetryAttempts  int
	AuthScheme     string
}

// SessionConfig covers the portal session cookie and its persisted record.
type SessionConfig struct {
	Store        string
	Secret       string
	TTLMinutes   int
	CookieName   string
	CookieSecure bool
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

// AMQPConfig enables audit publishing when URL is set.
type AMQPConfig struct {
	URL      string
	Exchange string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// RateLimitConfig bounds login attempts per client IP.
type RateLimitConfig struct {
	LoginRequests      int
	LoginWindowSeconds int
}

// TelemetryConfig configures the OTLP trace exporter.
type TelemetryConfig struct {
	Endpoint string
	Insecure bool
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "worker-portal"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		API: APIConfig{
			BaseURL:        strings.TrimRight(getEnv("API_BASE_URL", "http://127.0.0.1:8000/api"), "/"),
			TimeoutSeconds: getEnvAsInt("API_TIMEOUT_SECONDS", 15),
			RetryAttempts:  getEnvAsInt("API_RETRY_ATTEMPTS", 3),
			AuthScheme:     getEnv("API_AUTH_SCHEME", "Token"),
		},
		Session: SessionConfig{
			Store:        strings.ToLower(getEnv("SESSION_STORE", StoreRedis)),
			Secret:       getEnv("SESSION_SECRET", "dev-secret"),
			TTLMinutes:   getEnvAsInt("SESSION_TTL_MINUTES", 12*60),
			CookieName:   getEnv("SESSION_COOKIE_NAME", "portal_session"),
			CookieSecure: getEnvAsBool("SESSION_COOKIE_SECURE", false),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
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
		AMQP: AMQPConfig{
			URL:      os.Getenv("AMQP_URL"),
			Exchange: getEnv("AMQP_EXCHANGE", "portal.audit"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		RateLimit: RateLimitConfig{
			LoginRequests:      getEnvAsInt("LOGIN_RATE_REQUESTS", 10),
			LoginWindowSeconds: getEnvAsInt("LOGIN_RATE_WINDOW_SECONDS", 60),
		},
		Telemetry: TelemetryConfig{
			Endpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Insecure: getEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations the portal cannot start with.
func (c *Config) Validate() error {
	switch c.Session.Store {
	case StoreRedis, StoreMemory:
	case StorePostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("SESSION_STORE=postgres requires POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("invalid SESSION_STORE %q", c.Session.Store)
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	if c.App.Env == "production" && c.Session.Secret == "dev-secret" {
		return fmt.Errorf("SESSION_SECRET must be set in production")
	}
	return nil
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

// Timeout returns the per-request timeout for upstream calls.
func (a APIConfig) Timeout() time.Duration {
	if a.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// TTL returns how long a persisted session survives without activity.
func (s SessionConfig) TTL() time.Duration {
	if s.TTLMinutes <= 0 {
		return 12 * time.Hour
	}
	return time.Duration(s.TTLMinutes) * time.Minute
}

// LoginWindow returns the rate limiting window.
func (r RateLimitConfig) LoginWindow() time.Duration {
	if r.LoginWindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(r.LoginWindowSeconds) * time.Second
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
