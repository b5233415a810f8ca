package config_test

import (
	"testing"

	"github.com/flemzord/tiermem/internal/config"
)

func validConfig() *config.Config {
	cfg := &config.Config{Version: "1"}
	cfg.Defaults()
	return cfg
}

func TestValidate_OK(t *testing.T) {
	t.Parallel()

	if err := config.Validate(validConfig()); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	cfg := validConfig()
	cfg.Memory.Persistence = config.PersistenceConfig{Enabled: true, Directory: "/var/lib/tiermem", SaveIntervalSeconds: 60}
	cfg.Memory.Archive.Enabled = true
	cfg.Memory.Archive.Directory = "/var/lib/tiermem/archive"
	cfg.Provider = config.ProviderConfig{BaseURL: "https://api.example.com/v1", APIKeyEnv: "OPENAI_API_KEY", Model: "gpt-4o-mini"}
	if err := config.Validate(cfg); err != nil {
		t.Errorf("full config rejected: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "missing version", mutate: func(c *config.Config) { c.Version = "" }},
		{name: "unsupported version", mutate: func(c *config.Config) { c.Version = "2" }},
		{name: "zero max_turns", mutate: func(c *config.Config) { c.Memory.MaxTurns = 0 }},
		{name: "zero max_tokens", mutate: func(c *config.Config) { c.Memory.MaxTokens = 0 }},
		{name: "negative ttl", mutate: func(c *config.Config) { c.Memory.TTLMinutes = -1 }},
		{name: "persistence without directory", mutate: func(c *config.Config) {
			c.Memory.Persistence.Enabled = true
		}},
		{name: "zero trigger_turns", mutate: func(c *config.Config) { c.Memory.Summarization.TriggerTurns = 0 }},
		{name: "zero max_summaries", mutate: func(c *config.Config) { c.Memory.Summarization.MaxSummaries = 0 }},
		{name: "archive without directory", mutate: func(c *config.Config) {
			c.Memory.Archive.Enabled = true
		}},
		{name: "provider without credentials", mutate: func(c *config.Config) {
			c.Provider.BaseURL = "https://api.example.com"
			c.Provider.Model = "m"
		}},
		{name: "provider bad scheme", mutate: func(c *config.Config) {
			c.Provider.BaseURL = "ftp://api.example.com"
			c.Provider.APIKey = "k"
			c.Provider.Model = "m"
		}},
		{name: "provider without models", mutate: func(c *config.Config) {
			c.Provider.BaseURL = "https://api.example.com"
			c.Provider.APIKey = "k"
		}},
		{name: "bad bind address", mutate: func(c *config.Config) { c.Gateway.Bind = "not-an-addr:port" }},
		{name: "negative turn limit", mutate: func(c *config.Config) { c.Gateway.TurnsPerMin = -1 }},
		{name: "negative search limit", mutate: func(c *config.Config) { c.Gateway.SearchesPerMin = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			if err := config.Validate(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
