// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the curation CLI. It drives the
// extraction lifecycle: ingest, claim, review, promotion, discovery,
// answer evidence, and pipeline stats.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/internal/config"
	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/internal/logging"
	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/internal/secrets"
	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/internal/store"
	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// cfg is the decoded configuration, ready after PersistentPreRunE.
	cfg types.Config

	logger *zap.Logger

	// loadedSecrets holds credentials loaded from .secrets/ at startup.
	loadedSecrets secrets.Secrets
)

// rootCmd is the base command for the curation CLI.
var rootCmd = &cobra.Command{
	Use:   "curation",
	Short: "Extraction lifecycle orchestrator for the knowledge library",
	Long: `curation moves candidate extractions from ingestion through human review
into the canonical library. Reviewers claim items, approve or reject them,
and every decision lands in an append-only audit log.

It also drives web discovery through the crawler service, records the
evidence behind produced answers, and reports pipeline health.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		l, err := logging.New(verbose)
		if err != nil {
			return err
		}
		logger = l

		c, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		cfg = c

		s, err := secrets.Load(secrets.DefaultDir, logger)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			logger.Debug("loaded secrets", zap.Strings("keys", keys))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./curation.yaml or ~/.config/curation/config.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "base directory for the database and exports (default: data)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	_ = viper.BindPFlag("store.data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
}

func initConfig() {
	config.SetDefaults(viper.GetViper())

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("curation")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "curation"))
		}
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// openStore opens the database under the configured data directory.
func openStore() (*store.Store, error) {
	return store.Open(cfg.Store, logger)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// truncate shortens s to n runes for table output.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
