// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package stats summarizes pipeline queue depth and throughput for
// dashboards. It only reads.
//
// Health is a heuristic for operators, not an alerting signal: a stage
// with any throughput in the last hour is healthy; an idle stage is
// degraded only when its backlog exceeds the threshold.
package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/internal/logging"
	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/pkg/types"
)

const defaultBacklogThreshold = 10

// Store is the persistence the reporter reads.
type Store interface {
	PipelineStats(ctx context.Context, now time.Time) ([]types.StageCounts, error)
}

// Reporter derives the pipeline report.
type Reporter struct {
	store   Store
	backlog int
	log     *zap.Logger
	now     func() time.Time
}

// New returns a Reporter using cfg.BacklogThreshold.
func New(s Store, cfg types.StatsConfig, logger *zap.Logger) *Reporter {
	backlog := cfg.BacklogThreshold
	if backlog <= 0 {
		backlog = defaultBacklogThreshold
	}
	return &Reporter{
		store:   s,
		backlog: backlog,
		log:     logging.OrNop(logger).Named("stats"),
		now:     time.Now,
	}
}

// Report returns one row per stage in flow order. A transient store error
// yields an empty report marked degraded so dashboards stay usable.
func (r *Reporter) Report(ctx context.Context) (types.PipelineReport, error) {
	rows, err := r.store.PipelineStats(ctx, r.now())
	if errors.Is(err, types.ErrTransientStore) {
		r.log.Warn("pipeline stats unavailable", zap.Error(err))
		return types.PipelineReport{Stages: []types.StageStats{}, Degraded: true}, nil
	}
	if err != nil {
		return types.PipelineReport{}, fmt.Errorf("reading pipeline stats: %w", err)
	}

	byStage := make(map[types.Stage]types.StageCounts, len(rows))
	for _, row := range rows {
		byStage[row.Stage] = row
	}

	report := types.PipelineReport{Stages: make([]types.StageStats, 0, len(types.Stages))}
	for _, stage := range types.Stages {
		counts, ok := byStage[stage]
		if !ok {
			counts = types.StageCounts{Stage: stage}
		}
		report.Stages = append(report.Stages, types.StageStats{
			StageCounts: counts,
			Health:      r.Health(counts),
		})
	}
	return report, nil
}

// Health classifies one stage.
func (r *Reporter) Health(c types.StageCounts) types.Health {
	if c.ItemsThisHour > 0 {
		return types.HealthHealthy
	}
	if c.Count > r.backlog {
		return types.HealthDegraded
	}
	return types.HealthHealthy
}
