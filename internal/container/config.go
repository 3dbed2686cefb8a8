// Package container provides dependency injection and lifecycle management
// for the inspection flow engine following Clean Architecture principles.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// OpenAI configuration
	OpenAI OpenAIConfig

	// Storage configuration
	Storage StorageConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration

	// MigrationsDir is the path to migration files
	MigrationsDir string
}

// OpenAIConfig holds OpenAI API settings for the movement suggester.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key
	APIKey string

	// BaseURL overrides the API endpoint (empty uses the default)
	BaseURL string

	// Model is the model to use (e.g., "gpt-4o")
	Model string

	// Temperature controls randomness (0.0-1.0)
	Temperature float32

	// MaxTokens limits response length
	MaxTokens int

	// Timeout for API calls
	Timeout time.Duration

	// Enabled selects the OpenAI suggester; false selects the static
	// checklist suggester and requires no key
	Enabled bool

	// MaxCandidates caps suggestions returned per call
	MaxCandidates int

	// PromptsPath is the path to the suggestion prompt YAML; empty
	// uses the built-in prompts
	PromptsPath string
}

// StorageConfig holds evidence blob and report output settings.
type StorageConfig struct {
	// EvidenceDir is the base directory evidence blobs are resolved under
	EvidenceDir string

	// EvidenceBaseURL prefixes resolved evidence URLs
	EvidenceBaseURL string

	// ReportsDir is the directory timeline exports are written to
	ReportsDir string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/fieldflow.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			MigrationsDir:   "migrations",
		},
		OpenAI: OpenAIConfig{
			Model:         "gpt-4o",
			Temperature:   0.4,
			MaxTokens:     1024,
			Timeout:       60 * time.Second,
			Enabled:       false,
			MaxCandidates: 5,
		},
		Storage: StorageConfig{
			EvidenceDir:     "data/evidence",
			EvidenceBaseURL: "/evidence",
			ReportsDir:      "data/reports",
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	// Validate database configuration
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	// Validate OpenAI configuration
	if c.OpenAI.Enabled && c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required when openai.enabled is true")
	}

	// Validate storage configuration
	if c.Storage.EvidenceDir == "" {
		return fmt.Errorf("storage.evidence_dir is required")
	}
	if c.Storage.ReportsDir == "" {
		return fmt.Errorf("storage.reports_dir is required")
	}

	return nil
}
