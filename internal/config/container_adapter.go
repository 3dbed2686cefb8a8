package config

import (
	"github.com/verisite/fieldflow/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			MigrationsDir:   c.Database.MigrationsDir,
		},
		OpenAI: container.OpenAIConfig{
			APIKey:        c.OpenAI.APIKey,
			BaseURL:       c.OpenAI.BaseURL,
			Model:         c.OpenAI.Model,
			Temperature:   c.OpenAI.Temperature,
			MaxTokens:     c.OpenAI.MaxTokens,
			Timeout:       c.OpenAI.Timeout,
			Enabled:       c.OpenAI.Enabled,
			MaxCandidates: c.OpenAI.MaxCandidates,
			PromptsPath:   c.OpenAI.PromptsPath,
		},
		Storage: container.StorageConfig{
			EvidenceDir:     c.Storage.EvidenceDir,
			EvidenceBaseURL: c.Storage.EvidenceBaseURL,
			ReportsDir:      c.Storage.ReportsDir,
		},
	}
}
