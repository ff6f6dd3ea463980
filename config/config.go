// Package config loads gateway configuration from the environment.
// A .env file in the working directory is read first when present;
// real environment variables always win.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"modelgate/internal/catalog"
	"modelgate/internal/storage"
)

// Cache backends for the model catalog.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Config is the root configuration for the gateway.
type Config struct {
	Server   ServerConfig
	Google   GoogleConfig
	LiteLLM  LiteLLMConfig
	Cache    CacheConfig
	Storage  StorageConfig
	Logging  LoggingConfig
	Metrics  MetricsConfig
	Chat     ChatConfig
	LogLevel string
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port          int
	BodySizeLimit string
}

// GoogleConfig holds the process-level default credential and an optional
// endpoint override for tests.
type GoogleConfig struct {
	APIKey  string
	APIRoot string
}

// LiteLLMConfig points at the downstream LiteLLM deployment.
type LiteLLMConfig struct {
	BaseURL string
}

// CacheConfig selects the model catalog backend.
type CacheConfig struct {
	Backend  string
	TTL      time.Duration
	RedisURL string
}

// StorageConfig selects the request log database.
type StorageConfig struct {
	Type             string
	SQLitePath       string
	PostgresURL      string
	PostgresMaxConns int
	MongoURL         string
	MongoDatabase    string
}

// LoggingConfig controls request logging.
type LoggingConfig struct {
	Enabled       bool
	BufferSize    int
	FlushInterval time.Duration
	RetentionDays int
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled  bool
	Endpoint string
}

// ChatConfig holds generation defaults.
type ChatConfig struct {
	DefaultModel      string
	CompleteMaxTokens int
}

// Load reads configuration from the environment, applying defaults for
// everything unset.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("failed to load .env file", "error", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:          getEnvInt("PORT", 8080),
			BodySizeLimit: getEnv("BODY_SIZE_LIMIT", "1M"),
		},
		Google: GoogleConfig{
			APIKey:  getEnv("GEMINI_API_KEY", ""),
			APIRoot: getEnv("GOOGLE_API_ROOT", ""),
		},
		LiteLLM: LiteLLMConfig{
			BaseURL: getEnv("LITELLM_BASE_URL", ""),
		},
		Cache: CacheConfig{
			Backend:  getEnv("CACHE_BACKEND", CacheBackendMemory),
			TTL:      getEnvDuration("MODEL_CACHE_TTL", catalog.DefaultTTL),
			RedisURL: getEnv("REDIS_URL", ""),
		},
		Storage: StorageConfig{
			Type:             getEnv("STORAGE_TYPE", storage.TypeSQLite),
			SQLitePath:       getEnv("SQLITE_PATH", "data/modelgate.db"),
			PostgresURL:      getEnv("POSTGRES_URL", ""),
			PostgresMaxConns: getEnvInt("POSTGRES_MAX_CONNS", 10),
			MongoURL:         getEnv("MONGODB_URL", ""),
			MongoDatabase:    getEnv("MONGODB_DATABASE", "modelgate"),
		},
		Logging: LoggingConfig{
			Enabled:       getEnvBool("REQUEST_LOG_ENABLED", false),
			BufferSize:    getEnvInt("REQUEST_LOG_BUFFER_SIZE", 1000),
			FlushInterval: getEnvDuration("REQUEST_LOG_FLUSH_INTERVAL", 5*time.Second),
			RetentionDays: getEnvInt("REQUEST_LOG_RETENTION_DAYS", 0),
		},
		Metrics: MetricsConfig{
			Enabled:  getEnvBool("METRICS_ENABLED", true),
			Endpoint: getEnv("METRICS_ENDPOINT", "/metrics"),
		},
		Chat: ChatConfig{
			DefaultModel:      getEnv("CHAT_DEFAULT_MODEL", "gemini-2.5-flash"),
			CompleteMaxTokens: getEnvInt("COMPLETE_MAX_TOKENS", 200),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	switch c.Cache.Backend {
	case CacheBackendMemory:
	case CacheBackendRedis:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when CACHE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unsupported cache backend: %s", c.Cache.Backend)
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("model cache TTL must be positive, got %s", c.Cache.TTL)
	}

	if c.Logging.Enabled {
		switch c.Storage.Type {
		case storage.TypeSQLite:
		case storage.TypePostgreSQL:
			if c.Storage.PostgresURL == "" {
				return fmt.Errorf("POSTGRES_URL is required when STORAGE_TYPE=postgresql")
			}
		case storage.TypeMongoDB:
			if c.Storage.MongoURL == "" {
				return fmt.Errorf("MONGODB_URL is required when STORAGE_TYPE=mongodb")
			}
		default:
			return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
		}
	}

	return nil
}

// StorageConfig converts the flat env fields into the storage package's
// config shape.
func (c *Config) StorageConfig() storage.Config {
	return storage.Config{
		Type: c.Storage.Type,
		SQLite: storage.SQLiteConfig{
			Path: c.Storage.SQLitePath,
		},
		PostgreSQL: storage.PostgreSQLConfig{
			URL:      c.Storage.PostgresURL,
			MaxConns: c.Storage.PostgresMaxConns,
		},
		MongoDB: storage.MongoDBConfig{
			URL:      c.Storage.MongoURL,
			Database: c.Storage.MongoDatabase,
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer in environment, using default",
			"key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("invalid boolean in environment, using default",
			"key", key, "value", v, "default", fallback)
		return fallback
	}
	return b
}

// getEnvDuration accepts Go duration strings ("90s", "5m") and bare
// numbers, which are treated as seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	slog.Warn("invalid duration in environment, using default",
		"key", key, "value", v, "default", fallback)
	return fallback
}
