// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Decision is a reviewer's verdict on a claimed item.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"

	// DecisionCorrection marks an audit entry that amends an earlier one.
	DecisionCorrection Decision = "correction"
)

// Valid reports whether d can be passed to a review decision.
func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// TargetStatus maps a decision to the terminal staging state it produces.
func (d Decision) TargetStatus() StagingStatus {
	if d == DecisionApprove {
		return StatusAccepted
	}
	return StatusRejected
}

// FieldChange records one reviewer edit applied alongside a decision.
type FieldChange struct {
	Field string `json:"field" yaml:"field"`
	From  string `json:"from,omitempty" yaml:"from,omitempty"`
	To    string `json:"to" yaml:"to"`
}

// ReviewDecision is one immutable audit entry.
type ReviewDecision struct {
	RevID     string        `json:"rev_id" yaml:"rev_id"`
	Entity    string        `json:"entity" yaml:"entity"`
	Type      CandidateType `json:"type" yaml:"type"`
	Decision  Decision      `json:"decision" yaml:"decision"`
	Reviewer  string        `json:"reviewer" yaml:"reviewer"`
	Timestamp time.Time     `json:"timestamp" yaml:"timestamp"`
	Changes   []FieldChange `json:"changes" yaml:"changes"`
	Notes     string        `json:"notes,omitempty" yaml:"notes,omitempty"`

	// Corrects is the rev id of the entry this one amends.
	Corrects string `json:"corrects,omitempty" yaml:"corrects,omitempty"`
}

// AuditFilter narrows an audit query. Zero values match everything.
type AuditFilter struct {
	Decision Decision
	Reviewer string
	Entity   string
	From     time.Time
	To       time.Time
	Limit    int
}

// ItemResult is the per-id outcome of a bulk decision.
type ItemResult struct {
	ItemID   string          `json:"item_id"`
	Decision *ReviewDecision `json:"decision,omitempty"`
	Err      error           `json:"-"`
}

// OK reports whether the decision was applied.
func (r ItemResult) OK() bool { return r.Err == nil }
