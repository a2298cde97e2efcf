// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	DataDir  string // Base directory for both databases, always absolute
	Port     int
	LogLevel string
	DevMode  bool

	// TimerTickSchedule is the cron spec for the auto-timer driver scan.
	// Must tick at least once per second so sync_auto deadlines are honored
	// with sub-second slack.
	TimerTickSchedule string

	Backup BackupConfig
}

// BackupConfig holds the nightly backup settings. When Bucket is empty the
// backup job still produces local archives but skips the cloud upload.
type BackupConfig struct {
	Enabled         bool
	Schedule        string // cron spec, defaults to nightly
	Endpoint        string // S3-compatible endpoint (Cloudflare R2, MinIO, AWS)
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Retain          int // number of remote archives to keep
}

// Load reads configuration from environment variables, loading a .env file
// first if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	// Data directory: MARKETCLASS_DATA_DIR, defaulting to ./data, always
	// resolved to an absolute path and created up front.
	dataDir := getEnv("MARKETCLASS_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:           absDataDir,
		Port:              getEnvAsInt("PORT", 8002),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DevMode:           getEnvAsBool("DEV_MODE", false),
		TimerTickSchedule: getEnv("TIMER_TICK_SCHEDULE", "@every 1s"),
		Backup: BackupConfig{
			Enabled:         getEnvAsBool("BACKUP_ENABLED", false),
			Schedule:        getEnv("BACKUP_SCHEDULE", "0 0 3 * * *"), // 03:00 nightly
			Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
			Region:          getEnv("BACKUP_S3_REGION", "auto"),
			Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
			AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
			Retain:          getEnvAsInt("BACKUP_RETAIN", 14),
		},
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}

	return cfg, nil
}

// GameDBPath returns the path of the game database.
func (c *Config) GameDBPath() string {
	return filepath.Join(c.DataDir, "game.db")
}

// MarketDBPath returns the path of the market database.
func (c *Config) MarketDBPath() string {
	return filepath.Join(c.DataDir, "market.db")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
