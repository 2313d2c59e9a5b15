package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the application configuration
type Config struct {
	// Database, empty disables Postgres
	DatabaseURL string `env:"DATABASE_URL"`

	// Server
	ServerPort      string        `env:"SERVER_PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// AWS
	AWSRegion string `env:"AWS_REGION" envDefault:"us-east-1"`

	// Run
	RunSpecPath string `env:"RUN_SPEC" envDefault:"run.yaml"`
	LogDir      string `env:"LOG_DIR"` // Overrides the run spec's log_dir
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// DatabaseEnabled reports whether a database is configured
func (c *Config) DatabaseEnabled() bool {
	return c.DatabaseURL != ""
}
