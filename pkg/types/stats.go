// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Stage names a pipeline stage reported on dashboards.
type Stage string

const (
	StageSources    Stage = "sources"
	StageExtraction Stage = "extraction"
	StageValidation Stage = "validation"
	StagePromotion  Stage = "promotion"
	StageLibrary    Stage = "library"
)

// Stages lists the pipeline stages in flow order.
var Stages = []Stage{StageSources, StageExtraction, StageValidation, StagePromotion, StageLibrary}

// StageCounts is the raw per-stage row the store returns.
type StageCounts struct {
	Stage         Stage `json:"stage"`
	Count         int   `json:"count"`
	ItemsToday    int   `json:"items_today"`
	ItemsThisHour int   `json:"items_this_hour"`
}

// Health is a heuristic classification for operator interpretation.
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded"
)

// StageStats is a stage row with its derived health.
type StageStats struct {
	StageCounts
	Health Health `json:"health"`
}

// PipelineReport is the full dashboard summary.
type PipelineReport struct {
	Stages []StageStats `json:"stages"`

	// Degraded is set when the store could not be read and the report is empty.
	Degraded bool `json:"degraded,omitempty"`
}
