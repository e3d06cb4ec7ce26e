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

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Workflow      WorkflowConfig
	Enrollments   EnrollmentsConfig
	Approvals     ApprovalsConfig
	Notifications NotificationsConfig
	Exports       ExportsConfig
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

// WorkflowConfig holds reason-validation rules for entity decisions.
// Entity and enrollment rules are deliberately separate knobs so either
// can be corrected without touching the other.
type WorkflowConfig struct {
	EntityReasonMin     int
	EntityReasonMax     int
	EnrollmentReasonMin int
	EnrollmentReasonMax int
	ForkRetries         int
}

// EnrollmentsConfig gates the enrollment workflow endpoints.
type EnrollmentsConfig struct {
	Enabled  bool
	MaxBatch int
}

// ApprovalsConfig tunes the HOD pending-approval queue.
type ApprovalsConfig struct {
	QueueCacheTTL time.Duration
}

// NotificationsConfig controls best-effort dispatch after decisions.
type NotificationsConfig struct {
	Enabled bool
}

// ExportsConfig toggles timeline/lineage export endpoints.
type ExportsConfig struct {
	Enabled    bool
	StorageDir string
	URLSecret  string
	URLTTL     time.Duration
	ResultTTL  time.Duration
	Workers    int
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

	cfg.Workflow = WorkflowConfig{
		EntityReasonMin:     v.GetInt("WORKFLOW_ENTITY_REASON_MIN"),
		EntityReasonMax:     v.GetInt("WORKFLOW_ENTITY_REASON_MAX"),
		EnrollmentReasonMin: v.GetInt("WORKFLOW_ENROLLMENT_REASON_MIN"),
		EnrollmentReasonMax: v.GetInt("WORKFLOW_ENROLLMENT_REASON_MAX"),
		ForkRetries:         v.GetInt("WORKFLOW_FORK_RETRIES"),
	}

	cfg.Enrollments = EnrollmentsConfig{
		Enabled:  v.GetBool("ENABLE_ENROLLMENTS"),
		MaxBatch: v.GetInt("ENROLLMENT_DECISION_MAX_BATCH"),
	}

	cfg.Approvals = ApprovalsConfig{
		QueueCacheTTL: parseDuration(v.GetString("APPROVAL_QUEUE_CACHE_TTL"), 2*time.Minute),
	}

	cfg.Notifications = NotificationsConfig{
		Enabled: v.GetBool("ENABLE_NOTIFICATIONS"),
	}

	cfg.Exports = ExportsConfig{
		Enabled:    v.GetBool("ENABLE_EXPORTS"),
		StorageDir: v.GetString("EXPORT_STORAGE_DIR"),
		URLSecret:  v.GetString("EXPORT_URL_SECRET"),
		URLTTL:     parseDuration(v.GetString("EXPORT_URL_TTL"), time.Hour),
		ResultTTL:  parseDuration(v.GetString("EXPORT_RESULT_TTL"), 24*time.Hour),
		Workers:    v.GetInt("EXPORT_WORKERS"),
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
	v.SetDefault("DB_NAME", "curricula")
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

	v.SetDefault("WORKFLOW_ENTITY_REASON_MIN", 10)
	v.SetDefault("WORKFLOW_ENTITY_REASON_MAX", 500)
	v.SetDefault("WORKFLOW_ENROLLMENT_REASON_MIN", 1)
	v.SetDefault("WORKFLOW_ENROLLMENT_REASON_MAX", 500)
	v.SetDefault("WORKFLOW_FORK_RETRIES", 1)

	v.SetDefault("ENABLE_ENROLLMENTS", true)
	v.SetDefault("ENROLLMENT_DECISION_MAX_BATCH", 100)
	v.SetDefault("APPROVAL_QUEUE_CACHE_TTL", "2m")
	v.SetDefault("ENABLE_NOTIFICATIONS", false)
	v.SetDefault("ENABLE_EXPORTS", true)
	v.SetDefault("EXPORT_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORT_URL_SECRET", "dev_export_secret")
	v.SetDefault("EXPORT_URL_TTL", "1h")
	v.SetDefault("EXPORT_RESULT_TTL", "24h")
	v.SetDefault("EXPORT_WORKERS", 2)
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
