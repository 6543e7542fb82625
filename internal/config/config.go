// Package config defines the application configuration and its loading.
package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue"    validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Storage  StorageConfig  `mapstructure:"storage"  validate:"required"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// QueueConfig tunes the durable job queue and its workers. Retry and
// concurrency policy is fixed per lane, not per job.
type QueueConfig struct {
	ProcessConcurrency int           `mapstructure:"process_concurrency" validate:"required,gt=0"`
	ProcessMaxRetries  int           `mapstructure:"process_max_retries" validate:"gte=0"`
	ProcessRetryDelay  time.Duration `mapstructure:"process_retry_delay"`
	BulkMaxRetries     int           `mapstructure:"bulk_max_retries"    validate:"gte=0"`
	BulkRetryDelay     time.Duration `mapstructure:"bulk_retry_delay"`
	JobExpiry          time.Duration `mapstructure:"job_expiry"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	StuckRunAge        time.Duration `mapstructure:"stuck_run_age"`
}

// LLMConfig contains Gemini integration settings. The API key may be empty
// when no embedding or transform columns are configured.
type LLMConfig struct {
	GeminiAPIKey   string `mapstructure:"gemini_api_key"`
	GenerateModel  string `mapstructure:"generate_model"`
	EmbeddingModel string `mapstructure:"embedding_model"`
}

// StorageConfig locates the document artifact store on local disk.
type StorageConfig struct {
	Root string `mapstructure:"root" validate:"required"`
}

// FetchConfig bounds remote URL fetches performed by processors.
type FetchConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxBytes int64         `mapstructure:"max_bytes"`
}
