package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Scheduler    SchedulerConfig
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

// AuthConfig defines token verification parameters. Token issuance belongs to
// the identity provider, not this service.
type AuthConfig struct {
	JWTSecret string
}

// NotificationConfig tunes the dispatch pipeline.
type NotificationConfig struct {
	WorkerCount             int
	QueueSize               int
	TemplateCacheTTLMinutes int
}

// SchedulerConfig tunes the persistent job runner.
type SchedulerConfig struct {
	// PollSchedule is a cron expression; "@every 30s" by default.
	PollSchedule        string
	BatchSize           int
	LockLifetimeSeconds int
	MaxAttempts         int
	// ApproachingLeadMinutes is how long before promised-by the warning fires.
	ApproachingLeadMinutes int
	// AutoCloseAfterHours closes work orders left in DONE unattended.
	AutoCloseAfterHours int
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
			Name:                  getEnv("APP_NAME", "workorder-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
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
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", "dev-secret"),
		},
		Notification: NotificationConfig{
			WorkerCount:             getEnvAsInt("NOTIFY_WORKER_COUNT", 4),
			QueueSize:               getEnvAsInt("NOTIFY_QUEUE_SIZE", 256),
			TemplateCacheTTLMinutes: getEnvAsInt("NOTIFY_TEMPLATE_CACHE_TTL_MINUTES", 60),
		},
		Scheduler: SchedulerConfig{
			PollSchedule:           getEnv("SCHEDULER_POLL_SCHEDULE", "@every 30s"),
			BatchSize:              getEnvAsInt("SCHEDULER_BATCH_SIZE", 20),
			LockLifetimeSeconds:    getEnvAsInt("SCHEDULER_LOCK_LIFETIME_SECONDS", 300),
			MaxAttempts:            getEnvAsInt("SCHEDULER_MAX_ATTEMPTS", 5),
			ApproachingLeadMinutes: getEnvAsInt("SCHEDULER_APPROACHING_LEAD_MINUTES", 60),
			AutoCloseAfterHours:    getEnvAsInt("SCHEDULER_AUTO_CLOSE_AFTER_HOURS", 72),
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

// LockLifetime returns the job lock duration.
func (s SchedulerConfig) LockLifetime() time.Duration {
	return time.Duration(s.LockLifetimeSeconds) * time.Second
}

// ApproachingLead returns the warning offset before promised-by.
func (s SchedulerConfig) ApproachingLead() time.Duration {
	return time.Duration(s.ApproachingLeadMinutes) * time.Minute
}

// AutoCloseAfter returns how long a DONE work order may sit unattended.
func (s SchedulerConfig) AutoCloseAfter() time.Duration {
	return time.Duration(s.AutoCloseAfterHours) * time.Hour
}

// TemplateCacheTTL returns the registry cache expiration.
func (n NotificationConfig) TemplateCacheTTL() time.Duration {
	return time.Duration(n.TemplateCacheTTLMinutes) * time.Minute
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
