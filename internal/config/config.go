// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package config registers defaults and decodes operator settings into a
// types.Config. Settings come from curation.yaml, CURATION_* environment
// variables, and command flags bound by the CLI.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/pkg/types"
)

// EnvPrefix is the environment variable prefix (CURATION_REVIEW_CLAIM_TTL).
const EnvPrefix = "CURATION"

// Default returns the built-in configuration.
func Default() types.Config {
	return types.Config{
		Store: types.StoreConfig{
			DataDir:     "data",
			BusyTimeout: 5 * time.Second,
		},
		Review: types.ReviewConfig{
			ClaimTTL:               120 * time.Minute,
			RequireRejectionReason: true,
			EnableBulkActions:      true,
			BulkConcurrency:        4,
			SweepInterval:          time.Minute,
		},
		Discovery: types.DiscoveryConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:    30 * time.Second,
				UserAgent:  "curation/0.1",
				MaxRetries: 5,
			},
			BackendURL:      "http://localhost:8700",
			PollInterval:    2 * time.Second,
			DefaultMaxPages: 50,
			MaxPagesCeiling: types.MaxPagesCeiling,
		},
		Evidence: types.EvidenceConfig{
			HighThreshold:     0.75,
			MediumThreshold:   0.4,
			EnrichmentRetries: 2,
		},
		Stats: types.StatsConfig{
			BacklogThreshold: 10,
		},
	}
}

// SetDefaults registers every default on v so config files and the
// environment only need to name what they override.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("store.data_dir", d.Store.DataDir)
	v.SetDefault("store.busy_timeout", d.Store.BusyTimeout)

	v.SetDefault("review.claim_ttl", d.Review.ClaimTTL)
	v.SetDefault("review.require_rejection_reason", d.Review.RequireRejectionReason)
	v.SetDefault("review.enable_bulk_actions", d.Review.EnableBulkActions)
	v.SetDefault("review.bulk_concurrency", d.Review.BulkConcurrency)
	v.SetDefault("review.sweep_interval", d.Review.SweepInterval)

	v.SetDefault("discovery.timeout", d.Discovery.Timeout)
	v.SetDefault("discovery.user_agent", d.Discovery.UserAgent)
	v.SetDefault("discovery.max_retries", d.Discovery.MaxRetries)
	v.SetDefault("discovery.backend_url", d.Discovery.BackendURL)
	v.SetDefault("discovery.poll_interval", d.Discovery.PollInterval)
	v.SetDefault("discovery.default_max_pages", d.Discovery.DefaultMaxPages)
	v.SetDefault("discovery.max_pages_ceiling", d.Discovery.MaxPagesCeiling)

	v.SetDefault("evidence.high_threshold", d.Evidence.HighThreshold)
	v.SetDefault("evidence.medium_threshold", d.Evidence.MediumThreshold)
	v.SetDefault("evidence.enrichment_retries", d.Evidence.EnrichmentRetries)

	v.SetDefault("stats.backlog_threshold", d.Stats.BacklogThreshold)
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (types.Config, error) {
	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return types.Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the components cannot honor.
func Validate(cfg types.Config) error {
	if cfg.Review.ClaimTTL <= 0 {
		return fmt.Errorf("review.claim_ttl must be positive, got %v", cfg.Review.ClaimTTL)
	}
	if cfg.Discovery.PollInterval <= 0 {
		return fmt.Errorf("discovery.poll_interval must be positive, got %v", cfg.Discovery.PollInterval)
	}
	if cfg.Discovery.MaxPagesCeiling < 1 || cfg.Discovery.MaxPagesCeiling > types.MaxPagesCeiling {
		return fmt.Errorf("discovery.max_pages_ceiling must be within [1, %d], got %d",
			types.MaxPagesCeiling, cfg.Discovery.MaxPagesCeiling)
	}
	if cfg.Evidence.MediumThreshold > cfg.Evidence.HighThreshold {
		return fmt.Errorf("evidence.medium_threshold (%.2f) exceeds evidence.high_threshold (%.2f)",
			cfg.Evidence.MediumThreshold, cfg.Evidence.HighThreshold)
	}
	return nil
}
