package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration. All values come from environment
// variables so the same binaries run unchanged in local, staging and
// production environments.
type Config struct {
	// HTTP
	Port string

	// Aggregator gateway
	AggregatorURL     string
	AggregatorToken   string
	AggregatorTimeout time.Duration

	// Classification
	CacheTTL          time.Duration
	DefaultCategoryID int64
	GeminiModel       string

	// Broker / worker pools
	QueueDepth      int
	WorkersPerTopic int
	MaxAttempts     int
	RetryBackoff    time.Duration

	// BigQuery
	BigQueryProject string
	BigQueryDataset string

	// GCS archive of raw aggregator payloads; empty disables archiving.
	ArchiveBucket string

	// Scheduler (cron expressions, robfig/cron standard format)
	IncrementalCron string
	FullRebuildCron string

	// Dead-letter alerting; empty SMTPAddr disables email notification.
	SMTPAddr     string
	SMTPUser     string
	SMTPPassword string
	AlertFrom    string
	AlertTo      string
}

// NewConfig loads configuration from environment variables.
func NewConfig() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		AggregatorURL:     getEnv("AGGREGATOR_URL", ""),
		AggregatorToken:   getEnv("AGGREGATOR_TOKEN", ""),
		AggregatorTimeout: getDuration("AGGREGATOR_TIMEOUT", 30*time.Second),
		CacheTTL:          getDuration("CLASSIFY_CACHE_TTL", 6*time.Hour),
		DefaultCategoryID: getInt64("DEFAULT_CATEGORY_ID", 8),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		QueueDepth:        getInt("QUEUE_DEPTH", 200),
		WorkersPerTopic:   getInt("WORKERS_PER_TOPIC", 20),
		MaxAttempts:       getInt("MAX_ATTEMPTS", 3),
		RetryBackoff:      getDuration("RETRY_BACKOFF", time.Second),
		BigQueryProject:   getEnv("BQ_PROJECT", ""),
		BigQueryDataset:   getEnv("BQ_DATASET", "banklab"),
		ArchiveBucket:     getEnv("ARCHIVE_BUCKET", ""),
		IncrementalCron:   getEnv("INCREMENTAL_CRON", "30 4 * * *"),
		FullRebuildCron:   getEnv("FULL_REBUILD_CRON", "0 3 1 * *"),
		SMTPAddr:          getEnv("SMTP_ADDR", ""),
		SMTPUser:          getEnv("SMTP_USER", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),
		AlertFrom:         getEnv("ALERT_FROM", ""),
		AlertTo:           getEnv("ALERT_TO", ""),
	}

	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("MAX_ATTEMPTS must be at least 1")
	}
	if cfg.WorkersPerTopic < 1 {
		return nil, fmt.Errorf("WORKERS_PER_TOPIC must be at least 1")
	}
	if cfg.DefaultCategoryID <= 0 {
		return nil, fmt.Errorf("DEFAULT_CATEGORY_ID must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultVal
}

func getInt64(key string, defaultVal int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}
