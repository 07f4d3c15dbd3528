package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Import        ImportConfig
	Observability ObservabilityConfig
	Assist        AssistConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	BaseURL            string
	RateLimitPerSecond int
	RateLimitBurst     int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// ImportConfig tunes the import wizard engine.
type ImportConfig struct {
	// MaxInlineBytes is the largest file analyzed synchronously; anything
	// bigger is deferred to the batch pipeline.
	MaxInlineBytes int64
	// DateValidityThreshold is the minimum fraction of a column's sampled
	// cells that must parse as dates for an explicit Date assignment.
	DateValidityThreshold float64
	// SessionTTL is how long an idle wizard session survives before the
	// sweeper drops it.
	SessionTTL time.Duration
	// StagingPath is where deferred uploads are staged for the batch
	// pipeline.
	StagingPath string
}

type ObservabilityConfig struct {
	MetricsEnabled bool
}

// AssistConfig points at the external AI transformation service. An empty
// BaseURL disables the assist path.
type AssistConfig struct {
	BaseURL string
	APIKey  string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "localhost"),
			Port:               getEnvAsInt("SERVER_PORT", 8080),
			BaseURL:            getEnv("BASE_URL", "http://localhost:8080"),
			RateLimitPerSecond: getEnvAsInt("SERVER_RATE_LIMIT_PER_SECOND", 100),
			RateLimitBurst:     getEnvAsInt("SERVER_RATE_LIMIT_BURST", 200),
		},
		Database: DatabaseConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvAsInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			Database: getEnv("POSTGRES_DB", "demand-planner-dev"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		Import: ImportConfig{
			MaxInlineBytes:        int64(getEnvAsInt("IMPORT_MAX_INLINE_BYTES", 16<<20)),
			DateValidityThreshold: getEnvAsFloat("IMPORT_DATE_VALIDITY_THRESHOLD", 0.5),
			SessionTTL:            getEnvAsDuration("IMPORT_SESSION_TTL", 4*time.Hour),
			StagingPath:           getEnv("IMPORT_STAGING_PATH", "./staging"),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
		Assist: AssistConfig{
			BaseURL: getEnv("ASSIST_BASE_URL", ""),
			APIKey:  getEnv("ASSIST_API_KEY", ""),
		},
	}

	if cfg.Import.DateValidityThreshold <= 0 || cfg.Import.DateValidityThreshold > 1 {
		return nil, fmt.Errorf("IMPORT_DATE_VALIDITY_THRESHOLD must be in (0, 1], got %v", cfg.Import.DateValidityThreshold)
	}

	return cfg, nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
