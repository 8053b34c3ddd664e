// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.yaml.in/yaml/v3"

	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/pkg/types"
)

const batchSuffix = "-extractions.yaml"

// IngestSummary holds counts from one ingest run.
type IngestSummary struct {
	Files    int
	Skipped  int
	Failed   int
	Inserted int
	Existing int
}

// IngestExtractions loads every *-extractions.yaml batch in dir into the
// staging table. Files whose modification time is unchanged since the last
// run are skipped. A file is ingested in one transaction; existing ids are
// left untouched so re-ingest never resets a reviewed item.
func (s *Store) IngestExtractions(ctx context.Context, dir string, now time.Time) (IngestSummary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return IngestSummary{}, fmt.Errorf("reading extraction directory %s: %w", dir, err)
	}

	var summary IngestSummary

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), batchSuffix) {
			continue
		}

		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		name := entry.Name()
		log := s.log.With(zap.String("file", name))

		info, err := entry.Info()
		if err != nil {
			log.Warn("ingest failed", zap.Error(err))
			summary.Failed++
			continue
		}
		modTime := info.ModTime().UTC().Format(time.RFC3339Nano)

		var storedModTime string
		err = s.db.QueryRowContext(ctx,
			`SELECT file_mod_time FROM ingest_status WHERE file = ?`, name,
		).Scan(&storedModTime)
		if err == nil && storedModTime == modTime {
			log.Debug("ingest skipped unchanged file")
			summary.Skipped++
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Warn("ingest failed", zap.Error(err))
			summary.Failed++
			continue
		}

		var batch types.ExtractionBatch
		if err := yaml.Unmarshal(data, &batch); err != nil {
			log.Warn("ingest failed to parse batch", zap.Error(err))
			summary.Failed++
			continue
		}
		source := batch.Source
		if source == "" {
			source = strings.TrimSuffix(name, batchSuffix)
		}

		var inserted, existing int
		err = s.withTx(ctx, func(tx *sql.Tx) error {
			for i, rec := range batch.Extractions {
				_, ok, err := insertExtractionTx(ctx, tx, rec, source, now)
				if err != nil {
					return fmt.Errorf("record %d: %w", i, err)
				}
				if ok {
					inserted++
				} else {
					existing++
				}
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO ingest_status (file, file_mod_time) VALUES (?, ?)
				 ON CONFLICT(file) DO UPDATE SET file_mod_time=excluded.file_mod_time`,
				name, modTime)
			if err != nil {
				return fmt.Errorf("updating ingest status: %w", err)
			}
			return nil
		})
		if err != nil {
			log.Warn("ingest failed", zap.Error(err))
			summary.Failed++
			continue
		}

		log.Info("ingested batch",
			zap.String("source", source),
			zap.Int("inserted", inserted),
			zap.Int("existing", existing))
		summary.Files++
		summary.Inserted += inserted
		summary.Existing += existing
	}

	return summary, nil
}
