package config

import (
	"time"
)

// DefaultMaxUploadBytes mirrors the dashboard's 15MB upload cap.
const DefaultMaxUploadBytes = 15 * 1024 * 1024

// Config is the process configuration assembled from the environment.
type Config struct {
	Port               string
	GinMode            string
	LogLevel           string
	DataDir            string
	MaxUploadBytes     int64
	SessionIdleTimeout time.Duration
	RateLimitPerMinute int
	Database           DatabaseConfig
	Feed               FeedConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Type     string // "sqlite" or "postgres"
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	DataDir  string // For SQLite
}

// FeedConfig describes the optional image feed poller. An empty URL
// disables it.
type FeedConfig struct {
	URL      string
	Interval time.Duration
	Display  string
	Palette  string
	Method   string
	MaxBytes int64
}

// Load reads the configuration from environment variables.
func Load() Config {
	dataDir := Get("DATA_DIR", "./data")
	maxUpload := GetInt64("MAX_UPLOAD_BYTES", DefaultMaxUploadBytes)
	return Config{
		Port:               Get("PORT", "8080"),
		GinMode:            Get("GIN_MODE", ""),
		LogLevel:           Get("LOG_LEVEL", "info"),
		DataDir:            dataDir,
		MaxUploadBytes:     maxUpload,
		SessionIdleTimeout: GetDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		RateLimitPerMinute: GetInt("RATE_LIMIT_PER_MINUTE", 30),
		Database: DatabaseConfig{
			Type:     Get("DB_TYPE", "sqlite"),
			Host:     Get("DB_HOST", "localhost"),
			Port:     GetInt("DB_PORT", 5432),
			User:     Get("DB_USER", "inkprep"),
			Password: Get("DB_PASSWORD", ""),
			DBName:   Get("DB_NAME", "inkprep"),
			SSLMode:  Get("DB_SSLMODE", "disable"),
			DataDir:  dataDir,
		},
		Feed: FeedConfig{
			URL:      Get("FEED_URL", ""),
			Interval: GetDuration("FEED_INTERVAL", 2*time.Minute),
			Display:  Get("FEED_DISPLAY", "impression480"),
			Palette:  Get("FEED_PALETTE", ""),
			Method:   Get("FEED_METHOD", "floyd-steinberg"),
			MaxBytes: maxUpload,
		},
	}
}
