// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [dir]",
	Short: "Load extraction batches into the staging queue",
	Long: `Ingest reads extraction YAML batches from a directory (default:
<data-dir>/extractions) and inserts each record as a pending staging item.
Records already staged are left untouched and unchanged files are skipped,
so ingest can run repeatedly.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	dir := filepath.Join(s.DataDir(), "extractions")
	if len(args) > 0 {
		dir = args[0]
	}

	summary, err := s.IngestExtractions(cmd.Context(), dir, time.Now())
	if err != nil {
		return err
	}
	fmt.Printf("Ingested %d file(s): %d new item(s), %d already staged, %d unchanged file(s) skipped\n",
		summary.Files, summary.Inserted, summary.Existing, summary.Skipped)
	if summary.Failed > 0 {
		return fmt.Errorf("%d file(s) failed ingestion", summary.Failed)
	}
	return nil
}
