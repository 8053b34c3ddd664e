// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"encoding/json"
	"time"
)

// SourceType says where a cited source came from.
type SourceType string

const (
	SourceCollective SourceType = "collective"
	SourceNotebook   SourceType = "notebook"
	SourceExternal   SourceType = "external"
)

// Valid reports whether t is a known source type.
func (t SourceType) Valid() bool {
	switch t {
	case SourceCollective, SourceNotebook, SourceExternal:
		return true
	}
	return false
}

// ConfidenceLevel is the bucketed confidence of an answer.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// EvidenceSource is one citation attached to a produced answer.
type EvidenceSource struct {
	Type           SourceType `json:"type" yaml:"type"`
	SourceID       string     `json:"source_id,omitempty" yaml:"source_id,omitempty"`
	Title          string     `json:"title" yaml:"title"`
	Excerpt        string     `json:"excerpt,omitempty" yaml:"excerpt,omitempty"`
	URL            string     `json:"url,omitempty" yaml:"url,omitempty"`
	RelevanceScore *float64   `json:"relevance_score,omitempty" yaml:"relevance_score,omitempty"`
}

// AnswerMetadata is the summary recorded next to an answer's sources.
type AnswerMetadata struct {
	Confidence    float64         `json:"confidence" yaml:"confidence"`
	FreshnessDays int             `json:"freshness_days" yaml:"freshness_days"`
	ModelInfo     json.RawMessage `json:"model_info,omitempty" yaml:"-"`
	RecordedAt    time.Time       `json:"recorded_at" yaml:"recorded_at"`
}

// RawEvidence is what the store holds for one message.
type RawEvidence struct {
	MessageID string
	Sources   []EvidenceSource

	// Metadata is nil when no summary was recorded.
	Metadata *AnswerMetadata
}

// AnswerEvidence is the aggregated view of an answer's evidence.
type AnswerEvidence struct {
	MessageID       string           `json:"message_id"`
	CollectiveCount int              `json:"collective_count"`
	NotebookCount   int              `json:"notebook_count"`
	ExternalCount   int              `json:"external_count"`
	Confidence      ConfidenceLevel  `json:"confidence"`
	FreshnessLabel  string           `json:"freshness_label"`
	Sources         []EvidenceSource `json:"sources"`

	// Partial is true when metadata or sources could not be read.
	Partial bool `json:"partial,omitempty"`
}
