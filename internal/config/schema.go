// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for tiermem.
package config

import "time"

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Memory configures the tiered memory engine.
	Memory MemoryConfig `yaml:"memory"`

	// Provider configures the OpenAI-compatible backend used for
	// summarization and embeddings. Leave empty to run without either
	// capability (summarization and archiving degrade to no-ops).
	Provider ProviderConfig `yaml:"provider"`

	// Gateway configures the HTTP API server.
	Gateway GatewayConfig `yaml:"gateway"`
}

// MemoryConfig holds the engine tuning knobs.
type MemoryConfig struct {
	// Enabled toggles the whole engine. Defaults to true.
	Enabled *bool `yaml:"enabled"`

	// MaxTurns bounds the per-session sliding window by turn count.
	MaxTurns int `yaml:"max_turns"`

	// MaxTokens bounds the per-session sliding window by estimated tokens.
	// At least one turn is always retained even above this budget.
	MaxTokens int `yaml:"max_tokens"`

	// TTLMinutes discards a session after this much inactivity.
	// 0 disables expiry entirely.
	TTLMinutes int `yaml:"ttl_minutes"`

	Persistence   PersistenceConfig   `yaml:"persistence"`
	Summarization SummarizationConfig `yaml:"summarization"`
	Archive       ArchiveConfig       `yaml:"archive"`
}

// PersistenceConfig controls the snapshot file.
type PersistenceConfig struct {
	Enabled bool `yaml:"enabled"`

	// Directory holds the snapshot file. Required when enabled.
	Directory string `yaml:"directory"`

	// SaveIntervalSeconds is the periodic save interval. Defaults to 300.
	SaveIntervalSeconds int `yaml:"save_interval_seconds"`
}

// SummarizationConfig controls background compaction of old turns.
type SummarizationConfig struct {
	Enabled *bool `yaml:"enabled"`

	// TriggerTurns schedules a summarization once a session has accumulated
	// this many turns since the last completed summary. Defaults to 12.
	TriggerTurns int `yaml:"trigger_turns"`

	// MaxSummaries bounds the per-session summary list; the oldest entry
	// is dropped first. Defaults to 5.
	MaxSummaries int `yaml:"max_summaries"`

	// SummaryMaxTokens is the target length requested from the generator.
	// Defaults to 500.
	SummaryMaxTokens int `yaml:"summary_max_tokens"`
}

// ArchiveConfig controls the vector-searchable long-term store.
type ArchiveConfig struct {
	Enabled bool `yaml:"enabled"`

	// Directory holds the record database and vector index. Required when enabled.
	Directory string `yaml:"directory"`

	// ArchiveAfterDays: window turns older than this are moved to the
	// archive by the periodic sweep. Defaults to 7.
	ArchiveAfterDays int `yaml:"archive_after_days"`

	// ArchiveCheckIntervalMinutes is the sweep period. Defaults to 60.
	ArchiveCheckIntervalMinutes int `yaml:"archive_check_interval_minutes"`

	// SearchTopK is the default similarity-search result count. Defaults to 5.
	SearchTopK int `yaml:"search_top_k"`
}

// ProviderConfig configures the OpenAI-compatible capability backend.
type ProviderConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	APIKeyEnv      string        `yaml:"api_key_env"`
	Model          string        `yaml:"model"`
	EmbeddingModel string        `yaml:"embedding_model"`
	Timeout        time.Duration `yaml:"timeout"`
}

// GatewayConfig configures the HTTP API server.
type GatewayConfig struct {
	// Bind is the listen address. Defaults to "127.0.0.1:8420".
	Bind string `yaml:"bind"`

	// BearerToken protects the /api routes when set.
	BearerToken string `yaml:"bearer_token"`

	// TurnsPerMin caps POST /api/turns requests. 0 = unlimited.
	TurnsPerMin int `yaml:"turns_per_min"`

	// SearchesPerMin caps GET /api/search requests. 0 = unlimited.
	SearchesPerMin int `yaml:"searches_per_min"`

	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// IsEnabled reports whether the engine is enabled (default true).
func (c *MemoryConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// IsEnabled reports whether summarization is enabled (default true).
func (c *SummarizationConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Defaults fills zero-valued fields with their documented defaults.
func (c *Config) Defaults() {
	if c.Memory.MaxTurns == 0 {
		c.Memory.MaxTurns = 20
	}
	if c.Memory.MaxTokens == 0 {
		c.Memory.MaxTokens = 4000
	}
	if c.Memory.Persistence.SaveIntervalSeconds == 0 {
		c.Memory.Persistence.SaveIntervalSeconds = 300
	}
	if c.Memory.Summarization.TriggerTurns == 0 {
		c.Memory.Summarization.TriggerTurns = 12
	}
	if c.Memory.Summarization.MaxSummaries == 0 {
		c.Memory.Summarization.MaxSummaries = 5
	}
	if c.Memory.Summarization.SummaryMaxTokens == 0 {
		c.Memory.Summarization.SummaryMaxTokens = 500
	}
	if c.Memory.Archive.ArchiveAfterDays == 0 {
		c.Memory.Archive.ArchiveAfterDays = 7
	}
	if c.Memory.Archive.ArchiveCheckIntervalMinutes == 0 {
		c.Memory.Archive.ArchiveCheckIntervalMinutes = 60
	}
	if c.Memory.Archive.SearchTopK == 0 {
		c.Memory.Archive.SearchTopK = 5
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = 30 * time.Second
	}
	if c.Gateway.Bind == "" {
		c.Gateway.Bind = "127.0.0.1:8420"
	}
	if c.Gateway.ReadTimeout == 0 {
		c.Gateway.ReadTimeout = 30 * time.Second
	}
	if c.Gateway.WriteTimeout == 0 {
		c.Gateway.WriteTimeout = 60 * time.Second
	}
}

// TTL returns the session time-to-live as a duration. Zero means no expiry.
func (c *MemoryConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// SaveInterval returns the snapshot save period.
func (c *PersistenceConfig) SaveInterval() time.Duration {
	return time.Duration(c.SaveIntervalSeconds) * time.Second
}

// CheckInterval returns the archive sweep period.
func (c *ArchiveConfig) CheckInterval() time.Duration {
	return time.Duration(c.ArchiveCheckIntervalMinutes) * time.Minute
}
