// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/pkg/types"
)

// stageQuery holds the SQL that produces one stage row. depth yields the
// current queue depth; flow yields (items since day start, items in the
// last hour) from the timestamp column that marks arrival in the stage.
type stageQuery struct {
	stage    types.Stage
	depth    string
	depthNow bool
	flow     string
}

var stageQueries = []stageQuery{
	{
		stage: types.StageSources,
		depth: `SELECT count(*) FROM discovered_urls WHERE consumed = 0`,
		flow: `SELECT COALESCE(SUM(created_at >= ?1), 0), COALESCE(SUM(created_at >= ?2), 0)
		       FROM discovered_urls WHERE created_at >= MIN(?1, ?2)`,
	},
	{
		stage: types.StageExtraction,
		depth: `SELECT count(*) FROM staging_extractions
		        WHERE status = 'pending' OR (status = 'claimed' AND (claim_expires_at IS NULL OR claim_expires_at <= ?))`,
		depthNow: true,
		flow: `SELECT COALESCE(SUM(created_at >= ?1), 0), COALESCE(SUM(created_at >= ?2), 0)
		       FROM staging_extractions WHERE created_at >= MIN(?1, ?2)`,
	},
	{
		stage: types.StageValidation,
		depth: `SELECT count(*) FROM staging_extractions WHERE status = 'claimed' AND claim_expires_at > ?`,
		depthNow: true,
		flow: `SELECT COALESCE(SUM(timestamp >= ?1), 0), COALESCE(SUM(timestamp >= ?2), 0)
		       FROM review_decisions WHERE decision IN ('approve', 'reject') AND timestamp >= MIN(?1, ?2)`,
	},
	{
		stage: types.StagePromotion,
		depth: `SELECT count(*) FROM staging_extractions WHERE status = 'accepted'`,
		flow: `SELECT COALESCE(SUM(timestamp >= ?1), 0), COALESCE(SUM(timestamp >= ?2), 0)
		       FROM review_decisions WHERE decision = 'approve' AND timestamp >= MIN(?1, ?2)`,
	},
	{
		stage: types.StageLibrary,
		depth: `SELECT count(*) FROM library_entities`,
		flow: `SELECT COALESCE(SUM(promoted_at >= ?1), 0), COALESCE(SUM(promoted_at >= ?2), 0)
		       FROM library_entities WHERE promoted_at >= MIN(?1, ?2)`,
	},
}

// PipelineStats returns one row per stage. "Today" starts at UTC midnight;
// "this hour" is the trailing sixty minutes, clipped to the day so it never
// exceeds the day count.
func (s *Store) PipelineStats(ctx context.Context, now time.Time) ([]types.StageCounts, error) {
	utc := now.UTC()
	dayStart := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
	hourStart := utc.Add(-time.Hour)
	if hourStart.Before(dayStart) {
		hourStart = dayStart
	}

	out := make([]types.StageCounts, 0, len(stageQueries))
	for _, q := range stageQueries {
		row := types.StageCounts{Stage: q.stage}

		var depthArgs []any
		if q.depthNow {
			depthArgs = append(depthArgs, nanos(utc))
		}
		if err := s.db.QueryRowContext(ctx, q.depth, depthArgs...).Scan(&row.Count); err != nil {
			return nil, classify(fmt.Errorf("counting %s depth: %w", q.stage, err))
		}
		if err := s.db.QueryRowContext(ctx, q.flow,
			nanos(dayStart), nanos(hourStart),
		).Scan(&row.ItemsToday, &row.ItemsThisHour); err != nil {
			return nil, classify(fmt.Errorf("counting %s flow: %w", q.stage, err))
		}
		out = append(out, row)
	}
	return out, nil
}
