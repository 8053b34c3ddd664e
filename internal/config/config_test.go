// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/pkg/types"
)

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 120*time.Minute, cfg.Review.ClaimTTL)
	assert.True(t, cfg.Review.RequireRejectionReason)
	assert.True(t, cfg.Review.EnableBulkActions)
	assert.Equal(t, 2*time.Second, cfg.Discovery.PollInterval)
	assert.Equal(t, 50, cfg.Discovery.DefaultMaxPages)
	assert.Equal(t, 200, cfg.Discovery.MaxPagesCeiling)
}

func TestLoadFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "curation.yaml")
	content := `review:
  claim_ttl: 30m
  require_rejection_reason: false
discovery:
  backend_url: https://crawler.internal
  timeout: 5s
  default_max_pages: 20
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.Review.ClaimTTL)
	assert.False(t, cfg.Review.RequireRejectionReason)
	assert.True(t, cfg.Review.EnableBulkActions, "unset keys keep defaults")
	assert.Equal(t, "https://crawler.internal", cfg.Discovery.BackendURL)
	assert.Equal(t, 5*time.Second, cfg.Discovery.Timeout)
	assert.Equal(t, 20, cfg.Discovery.DefaultMaxPages)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CURATION_REVIEW_ENABLE_BULK_ACTIONS", "false")
	t.Setenv("CURATION_STATS_BACKLOG_THRESHOLD", "25")

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.False(t, cfg.Review.EnableBulkActions)
	assert.Equal(t, 25, cfg.Stats.BacklogThreshold)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.Config)
		errMsg string
	}{
		{"defaults are valid", func(*types.Config) {}, ""},
		{"zero ttl", func(c *types.Config) { c.Review.ClaimTTL = 0 }, "claim_ttl"},
		{"zero poll interval", func(c *types.Config) { c.Discovery.PollInterval = 0 }, "poll_interval"},
		{"ceiling above hard limit", func(c *types.Config) { c.Discovery.MaxPagesCeiling = 500 }, "max_pages_ceiling"},
		{"inverted thresholds", func(c *types.Config) { c.Evidence.MediumThreshold = 0.9 }, "medium_threshold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
