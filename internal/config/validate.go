package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Validate checks the structural validity of a Config.
// All problems are reported at once via a joined error.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if cfg.Memory.MaxTurns < 1 {
		errs = append(errs, fmt.Errorf("config: memory.max_turns must be at least 1, got %d", cfg.Memory.MaxTurns))
	}
	if cfg.Memory.MaxTokens < 1 {
		errs = append(errs, fmt.Errorf("config: memory.max_tokens must be at least 1, got %d", cfg.Memory.MaxTokens))
	}
	if cfg.Memory.TTLMinutes < 0 {
		errs = append(errs, fmt.Errorf("config: memory.ttl_minutes must not be negative, got %d", cfg.Memory.TTLMinutes))
	}

	if cfg.Memory.Persistence.Enabled && cfg.Memory.Persistence.Directory == "" {
		errs = append(errs, errors.New("config: memory.persistence.directory is required when persistence is enabled"))
	}
	if cfg.Memory.Persistence.SaveIntervalSeconds < 1 {
		errs = append(errs, fmt.Errorf("config: memory.persistence.save_interval_seconds must be at least 1, got %d", cfg.Memory.Persistence.SaveIntervalSeconds))
	}

	if cfg.Memory.Summarization.TriggerTurns < 1 {
		errs = append(errs, fmt.Errorf("config: memory.summarization.trigger_turns must be at least 1, got %d", cfg.Memory.Summarization.TriggerTurns))
	}
	if cfg.Memory.Summarization.MaxSummaries < 1 {
		errs = append(errs, fmt.Errorf("config: memory.summarization.max_summaries must be at least 1, got %d", cfg.Memory.Summarization.MaxSummaries))
	}

	if cfg.Memory.Archive.Enabled {
		if cfg.Memory.Archive.Directory == "" {
			errs = append(errs, errors.New("config: memory.archive.directory is required when the archive is enabled"))
		}
		if cfg.Memory.Archive.ArchiveAfterDays < 0 {
			errs = append(errs, fmt.Errorf("config: memory.archive.archive_after_days must not be negative, got %d", cfg.Memory.Archive.ArchiveAfterDays))
		}
	}

	errs = append(errs, validateProvider(&cfg.Provider)...)

	if _, err := net.ResolveTCPAddr("tcp", cfg.Gateway.Bind); err != nil {
		errs = append(errs, fmt.Errorf("config: gateway.bind is not a valid address: %w", err))
	}
	if cfg.Gateway.TurnsPerMin < 0 {
		errs = append(errs, fmt.Errorf("config: gateway.turns_per_min must not be negative, got %d", cfg.Gateway.TurnsPerMin))
	}
	if cfg.Gateway.SearchesPerMin < 0 {
		errs = append(errs, fmt.Errorf("config: gateway.searches_per_min must not be negative, got %d", cfg.Gateway.SearchesPerMin))
	}

	return errors.Join(errs...)
}

// validateProvider checks the provider block. An entirely empty block is
// valid: the engine then runs without summarization or archiving.
func validateProvider(p *ProviderConfig) []error {
	if p.BaseURL == "" {
		return nil
	}

	var errs []error
	u, err := url.Parse(p.BaseURL)
	if err != nil {
		errs = append(errs, fmt.Errorf("config: provider.base_url is not a valid URL: %w", err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, fmt.Errorf("config: provider.base_url scheme must be http or https, got %q", u.Scheme))
	}
	if p.APIKey == "" && p.APIKeyEnv == "" {
		errs = append(errs, errors.New("config: one of provider.api_key or provider.api_key_env is required"))
	}
	if p.Model == "" && p.EmbeddingModel == "" {
		errs = append(errs, errors.New("config: provider needs at least one of model or embedding_model"))
	}
	return errs
}
