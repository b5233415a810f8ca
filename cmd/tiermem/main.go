// Package main is the entry point for the tiermem CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/flemzord/tiermem/internal/capability"
	"github.com/flemzord/tiermem/internal/config"
	"github.com/flemzord/tiermem/internal/cron"
	"github.com/flemzord/tiermem/internal/engine"
	"github.com/flemzord/tiermem/internal/gateway"
	"github.com/flemzord/tiermem/internal/provider/openai"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tiermem",
		Short:         "A tiered conversational memory service for chat agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(versionCmd(), startCmd(), configCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("tiermem %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the memory service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			if cfgPath == "" {
				resolved, err := resolveConfigPath()
				if err != nil {
					return err
				}
				cfgPath = resolved
			}

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelInfo,
			}))

			return run(cfg, logger)
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	return cmd
}

// run wires the engine, scheduler, and gateway together and blocks until
// a termination signal arrives.
func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	generator, embedder, err := buildCapabilities(cfg.Provider, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	eng := engine.New(cfg.Memory, generator, embedder, engine.NewMetrics(reg), logger)
	if err := eng.Start(ctx); err != nil {
		return err
	}

	sched := cron.NewScheduler(logger)
	if cfg.Memory.Archive.Enabled {
		job := &cron.ArchiveSweepJob{
			Sweeper:      eng,
			Logger:       logger,
			ScheduleExpr: "@every " + cfg.Memory.Archive.CheckInterval().String(),
		}
		if err := sched.RegisterJob(job); err != nil {
			return err
		}
	}
	if cfg.Memory.Persistence.Enabled {
		job := &cron.SnapshotSaveJob{
			Saver:    eng,
			Logger:   logger,
			Interval: cfg.Memory.Persistence.SaveInterval(),
		}
		if err := sched.RegisterJob(job); err != nil {
			return err
		}
	}
	if err := sched.Start(); err != nil {
		return err
	}

	gw := gateway.New(cfg.Gateway, eng, reg, logger)
	if err := gw.Start(); err != nil {
		return err
	}

	logger.Info("tiermem started", "version", version, "bind", cfg.Gateway.Bind)
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := gw.Stop(shutdownCtx); err != nil {
		logger.Error("gateway shutdown failed", "error", err)
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Error("scheduler shutdown failed", "error", err)
	}
	return eng.Close(shutdownCtx)
}

// buildCapabilities creates the provider client when one is configured.
// Without a base_url the service runs in window-only mode: no
// summarization and no archive indexing.
func buildCapabilities(cfg config.ProviderConfig, logger *slog.Logger) (capability.Generator, capability.Embedder, error) {
	if cfg.BaseURL == "" {
		logger.Info("no provider configured, summarization and archiving disabled")
		return nil, nil, nil
	}

	client, err := openai.New(openai.Config{
		BaseURL:        cfg.BaseURL,
		APIKey:         cfg.APIKey,
		APIKeyEnv:      cfg.APIKeyEnv,
		Model:          cfg.Model,
		EmbeddingModel: cfg.EmbeddingModel,
		Timeout:        cfg.Timeout,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	var generator capability.Generator
	var embedder capability.Embedder
	if client.CanGenerate() {
		generator = client
	}
	if client.CanEmbed() {
		embedder = client
	}
	return generator, embedder, nil
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			fmt.Println("Configuration OK")
			return nil
		},
	})
	return cmd
}

// resolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/tiermem/tiermem.yaml → ./tiermem.yaml
func resolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "tiermem", "tiermem.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "tiermem", "tiermem.yaml"))
	}

	candidates = append(candidates, "tiermem.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}
