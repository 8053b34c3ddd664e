// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"encoding/json"
	"time"
)

// LibraryEntity is a promoted, canonical knowledge entity.
type LibraryEntity struct {
	Key          string          `json:"key" yaml:"key"`
	Type         CandidateType   `json:"type" yaml:"type"`
	Ecosystem    string          `json:"ecosystem" yaml:"ecosystem"`
	Payload      json.RawMessage `json:"payload,omitempty" yaml:"-"`
	Confidence   float64         `json:"confidence" yaml:"confidence"`
	ExtractionID string          `json:"extraction_id" yaml:"extraction_id"`
	PromotedAt   time.Time       `json:"promoted_at" yaml:"promoted_at"`
}
