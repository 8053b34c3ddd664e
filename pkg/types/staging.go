// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"encoding/json"
	"time"
)

// CandidateType categorizes a staging extraction by the kind of library
// entity it proposes.
type CandidateType string

const (
	CandidateComponent CandidateType = "component"
	CandidateParameter CandidateType = "parameter"
	CandidateTelemetry CandidateType = "telemetry"
	CandidateInterface CandidateType = "interface"
	CandidateSubsystem CandidateType = "subsystem"
)

// Valid reports whether t is one of the known candidate types.
func (t CandidateType) Valid() bool {
	switch t {
	case CandidateComponent, CandidateParameter, CandidateTelemetry, CandidateInterface, CandidateSubsystem:
		return true
	}
	return false
}

// StagingStatus is the lifecycle state of a staging extraction.
//
//	pending -> claimed -> accepted -> promoted
//	              |   \-> rejected
//	              \-> pending (release or lease expiry)
type StagingStatus string

const (
	StatusPending  StagingStatus = "pending"
	StatusClaimed  StagingStatus = "claimed"
	StatusAccepted StagingStatus = "accepted"
	StatusRejected StagingStatus = "rejected"
	StatusPromoted StagingStatus = "promoted"
)

// Reviewed reports whether the status records a completed human review.
func (s StagingStatus) Reviewed() bool {
	return s == StatusAccepted || s == StatusRejected || s == StatusPromoted
}

// Terminal reports whether no transition leaves the status.
func (s StagingStatus) Terminal() bool {
	return s == StatusRejected || s == StatusPromoted
}

// StagingExtraction is a candidate knowledge unit awaiting review.
type StagingExtraction struct {
	ID              string          `json:"extraction_id" yaml:"extraction_id"`
	CandidateKey    string          `json:"candidate_key" yaml:"candidate_key"`
	CandidateType   CandidateType   `json:"candidate_type" yaml:"candidate_type"`
	Payload         json.RawMessage `json:"payload,omitempty" yaml:"-"`
	ConfidenceScore float64         `json:"confidence_score" yaml:"confidence_score"`
	Ecosystem       string          `json:"ecosystem" yaml:"ecosystem"`
	Evidence        json.RawMessage `json:"evidence,omitempty" yaml:"-"`
	Status          StagingStatus   `json:"status" yaml:"status"`
	CreatedAt       time.Time       `json:"created_at" yaml:"created_at"`
	ReviewedAt      *time.Time      `json:"reviewed_at,omitempty" yaml:"reviewed_at,omitempty"`
	ClaimedBy       string          `json:"claimed_by,omitempty" yaml:"claimed_by,omitempty"`
	ClaimExpiresAt  *time.Time      `json:"claim_expires_at,omitempty" yaml:"claim_expires_at,omitempty"`
}

// ClaimActive reports whether the item is held by an unexpired lease at now.
func (e *StagingExtraction) ClaimActive(now time.Time) bool {
	return e.Status == StatusClaimed && e.ClaimedBy != "" &&
		e.ClaimExpiresAt != nil && e.ClaimExpiresAt.After(now)
}

// Normalize rewrites a lapsed claim so the item reads as pending. Expiry is
// evaluated at read time; the stored row is reset later by a sweep.
func (e *StagingExtraction) Normalize(now time.Time) {
	if e.Status == StatusClaimed && !e.ClaimActive(now) {
		e.Status = StatusPending
		e.ClaimedBy = ""
		e.ClaimExpiresAt = nil
	}
}

// Claim is a time-boxed exclusive lease held by a reviewer.
type Claim struct {
	ItemID     string    `json:"item_id" yaml:"item_id"`
	ReviewerID string    `json:"reviewer_id" yaml:"reviewer_id"`
	ExpiresAt  time.Time `json:"expires_at" yaml:"expires_at"`

	// Renewed is true when the reviewer already held the lease and the
	// claim only extended its expiry.
	Renewed bool `json:"renewed" yaml:"renewed"`
}

// ExtractionRecord is one candidate as written by the extraction pipeline
// into a batch file. Payload and evidence are free-form maps so batch files
// stay readable YAML.
type ExtractionRecord struct {
	ID              string         `json:"extraction_id,omitempty" yaml:"extraction_id,omitempty"`
	CandidateKey    string         `json:"candidate_key" yaml:"candidate_key"`
	CandidateType   CandidateType  `json:"candidate_type" yaml:"candidate_type"`
	Payload         map[string]any `json:"payload,omitempty" yaml:"payload,omitempty"`
	ConfidenceScore float64        `json:"confidence_score" yaml:"confidence_score"`
	Ecosystem       string         `json:"ecosystem" yaml:"ecosystem"`
	Evidence        map[string]any `json:"evidence,omitempty" yaml:"evidence,omitempty"`
}

// ExtractionBatch is the file format produced by one extraction run.
type ExtractionBatch struct {
	Source      string             `json:"source" yaml:"source"`
	Extractions []ExtractionRecord `json:"extractions" yaml:"extractions"`
}
