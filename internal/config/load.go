package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config.yaml in the working directory. Environment variables take
// precedence and use the DOCPIPE_ prefix with underscores for nesting,
// e.g. DOCPIPE_DATABASE_URL, DOCPIPE_QUEUE_PROCESS_CONCURRENCY.
// Returns a populated, validated Config or an error.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DOCPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; anything else is not.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("queue.process_concurrency", 5)
	v.SetDefault("queue.process_max_retries", 2)
	v.SetDefault("queue.process_retry_delay", 10*time.Second)
	v.SetDefault("queue.bulk_max_retries", 1)
	v.SetDefault("queue.bulk_retry_delay", 30*time.Second)
	v.SetDefault("queue.job_expiry", 60*time.Minute)
	v.SetDefault("queue.poll_interval", time.Second)
	v.SetDefault("queue.stuck_run_age", 30*time.Minute)

	v.SetDefault("llm.generate_model", "gemini-2.0-flash")
	v.SetDefault("llm.embedding_model", "text-embedding-004")

	v.SetDefault("storage.root", "data")

	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.max_bytes", int64(10*1024*1024))
}
