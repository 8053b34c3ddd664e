// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// TaskState is the lifecycle state of a discovery task. States only move
// forward: queued -> running -> completed | failed.
type TaskState string

const (
	TaskQueued    TaskState = "queued"
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
)

// Rank orders states so forward progress can be compared. Unknown states
// rank below queued.
func (s TaskState) Rank() int {
	switch s {
	case TaskQueued:
		return 1
	case TaskRunning:
		return 2
	case TaskCompleted, TaskFailed:
		return 3
	}
	return 0
}

// Terminal reports whether the task has finished.
func (s TaskState) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// MaxPagesCeiling is the hard upper bound on pages per discovery task.
const MaxPagesCeiling = 200

// DiscoveryTask is one crawl job tracked by the coordinator.
type DiscoveryTask struct {
	TaskID       string    `json:"task_id" yaml:"task_id"`
	Status       TaskState `json:"status" yaml:"status"`
	SeedURL      string    `json:"seed_url" yaml:"seed_url"`
	MaxPages     int       `json:"max_pages" yaml:"max_pages"`
	Instructions string    `json:"instructions,omitempty" yaml:"instructions,omitempty"`

	// Detail carries the backend-reported reason for a failure.
	Detail    string    `json:"detail,omitempty" yaml:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// TaskStatus is the answer to a status poll.
type TaskStatus struct {
	TaskID     string    `json:"task_id"`
	Status     TaskState `json:"status"`
	Detail     string    `json:"detail,omitempty"`
	Discovered int       `json:"discovered"`
}

// DiscoveredURL is a crawl result awaiting conversion into staging items.
type DiscoveredURL struct {
	TaskID       string    `json:"task_id" yaml:"task_id"`
	URL          string    `json:"url" yaml:"url"`
	QualityScore float64   `json:"quality_score" yaml:"quality_score"`
	Summary      string    `json:"summary,omitempty" yaml:"summary,omitempty"`
	Keywords     []string  `json:"keywords" yaml:"keywords"`
	Consumed     bool      `json:"consumed" yaml:"consumed"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
}

// URLFilter narrows a discovered URL listing.
type URLFilter struct {
	TaskID          string
	MinQuality      float64
	IncludeConsumed bool
	Limit           int
}
