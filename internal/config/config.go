package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store and storage driver names
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	StorageDriverLocal = "local"
	StorageDriverS3    = "s3"
)

// Config holds all application configuration
type Config struct {
	// Server
	Port        string
	Environment string
	LogLevel    string

	// Records
	StoreDriver string
	DatabaseURL string

	// Blob storage
	StorageDriver  string
	StoragePath    string
	S3Bucket       string
	S3Region       string
	S3Prefix       string
	MaxUploadBytes int64

	// Coordination and events
	RedisURL string
	NATSURL  string

	// Licensing authority
	AuthorityURL     string
	AuthorityTimeout time.Duration

	// Background workers
	WorkerCount       int
	SweepWorkers      int
	SweepInterval     time.Duration
	SweepCron         string
	ReminderDaysAhead int

	// Log parsing
	LogMaxRows int

	// CORS
	AllowedOrigins []string

	// Sentry
	SentryDSN string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		Environment:       getEnv("ENVIRONMENT", "development"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		StoreDriver:       strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		StorageDriver:     strings.ToLower(getEnv("STORAGE_DRIVER", StorageDriverLocal)),
		StoragePath:       getEnv("STORAGE_PATH", "./storage/logs"),
		S3Bucket:          getEnv("S3_BUCKET", ""),
		S3Region:          getEnv("S3_REGION", ""),
		S3Prefix:          getEnv("S3_PREFIX", "driving-logs"),
		MaxUploadBytes:    int64(getEnvAsInt("MAX_UPLOAD_BYTES", 20*1024*1024)),
		RedisURL:          getEnv("REDIS_URL", ""),
		NATSURL:           getEnv("NATS_URL", ""),
		AuthorityURL:      getEnv("AUTHORITY_URL", ""),
		AuthorityTimeout:  getEnvAsDuration("AUTHORITY_TIMEOUT", 10*time.Second),
		WorkerCount:       getEnvAsInt("WORKER_COUNT", 5),
		SweepWorkers:      getEnvAsInt("SWEEP_WORKERS", 8),
		SweepInterval:     getEnvAsDuration("SWEEP_INTERVAL", 24*time.Hour),
		SweepCron:         getEnv("SWEEP_CRON", ""),
		ReminderDaysAhead: getEnvAsInt("REMINDER_DAYS_AHEAD", 3),
		LogMaxRows:        getEnvAsInt("LOG_MAX_ROWS", 100000),
		AllowedOrigins:    getEnvAsSlice("ALLOWED_ORIGINS", []string{"*"}),
		SentryDSN:         getEnv("SENTRY_DSN", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the combinations Load cannot default its way out of
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=%s", StoreDriverPostgres)
		}
	case StoreDriverMemory:
		if c.Environment == "production" {
			return fmt.Errorf("STORE_DRIVER=%s is not allowed in production", StoreDriverMemory)
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.StorageDriver {
	case StorageDriverLocal:
		if c.StoragePath == "" {
			return fmt.Errorf("STORAGE_PATH is required when STORAGE_DRIVER=%s", StorageDriverLocal)
		}
	case StorageDriverS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when STORAGE_DRIVER=%s", StorageDriverS3)
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}

	if c.SweepWorkers < 1 {
		return fmt.Errorf("SWEEP_WORKERS must be at least 1")
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1")
	}
	if c.LogMaxRows < 1 {
		return fmt.Errorf("LOG_MAX_ROWS must be at least 1")
	}
	if c.SweepCron == "" && c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive when SWEEP_CRON is empty")
	}
	return nil
}

// UseMockAuthority reports whether license actions go to the in-process mock
func (c *Config) UseMockAuthority() bool {
	return c.AuthorityURL == ""
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt reads an environment variable as integer
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration reads an environment variable as a Go duration ("10s", "24h")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice reads an environment variable as comma-separated slice
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
