package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config carries all runtime configuration for the service. Values come from
// the environment, with a .env file loaded first if one is present.
type Config struct {
	Env  string
	Port string

	// DatabaseURL is a postgres DSN. When empty the service falls back to a
	// local SQLite file at SQLitePath.
	DatabaseURL   string
	SQLitePath    string
	MigrationsDir string

	GoogleAPIKey string
	GeminiModel  string

	ClassifyBatchSize   int
	ClassifyMaxParallel int

	// GCSBucket enables raw-statement archiving when non-empty.
	GCSBucket string

	MaxUploadBytes int64
}

// Load reads configuration from the environment. A missing .env file is not
// an error; explicit environment variables win over .env entries.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                 getEnv("ENV", "dev"),
		Port:                getEnv("PORT", "8080"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		SQLitePath:          getEnv("SQLITE_PATH", "bankledger.db"),
		MigrationsDir:       getEnv("MIGRATIONS_DIR", "migrations"),
		GoogleAPIKey:        getEnv("GOOGLE_API_KEY", ""),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		ClassifyBatchSize:   getEnvInt("CLASSIFY_BATCH_SIZE", 50),
		ClassifyMaxParallel: getEnvInt("CLASSIFY_MAX_PARALLEL", 100),
		GCSBucket:           getEnv("GCS_BUCKET", ""),
		MaxUploadBytes:      getEnvInt64("MAX_UPLOAD_BYTES", 10*1024*1024),
	}

	if cfg.ClassifyBatchSize < 1 {
		return nil, fmt.Errorf("config: CLASSIFY_BATCH_SIZE must be positive, got %d", cfg.ClassifyBatchSize)
	}
	if cfg.ClassifyMaxParallel < 1 {
		return nil, fmt.Errorf("config: CLASSIFY_MAX_PARALLEL must be positive, got %d", cfg.ClassifyMaxParallel)
	}

	return cfg, nil
}

// SQLiteDSN returns the DSN for the local SQLite fallback database.
func (c *Config) SQLiteDSN() string {
	return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", c.SQLitePath)
}

// UsePostgres reports whether a postgres DSN is configured.
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
