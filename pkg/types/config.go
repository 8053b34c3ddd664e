package types

import "time"

// HTTPConfig holds shared HTTP settings for calls to remote services.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`

	// MaxRetries bounds retries on 429/503 responses (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// StoreConfig locates the orchestrator database.
type StoreConfig struct {
	// DataDir is the base directory (contains index/, extractions/, export/).
	DataDir string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`

	// BusyTimeout is how long SQLite waits on a locked database.
	BusyTimeout time.Duration `json:"busy_timeout" yaml:"busy_timeout" mapstructure:"busy_timeout"`
}

// ReviewConfig holds the team-tunable review policy.
type ReviewConfig struct {
	// ClaimTTL is the default lease duration (default 120m).
	ClaimTTL time.Duration `json:"claim_ttl" yaml:"claim_ttl" mapstructure:"claim_ttl"`

	// RequireRejectionReason makes notes mandatory on reject (default true).
	RequireRejectionReason bool `json:"require_rejection_reason" yaml:"require_rejection_reason" mapstructure:"require_rejection_reason"`

	// EnableBulkActions allows batch decisions (default true).
	EnableBulkActions bool `json:"enable_bulk_actions" yaml:"enable_bulk_actions" mapstructure:"enable_bulk_actions"`

	// BulkConcurrency bounds concurrent decisions in a batch (default 4).
	BulkConcurrency int `json:"bulk_concurrency" yaml:"bulk_concurrency" mapstructure:"bulk_concurrency"`

	// SweepInterval is the period of the background claim sweep (default 1m).
	SweepInterval time.Duration `json:"sweep_interval" yaml:"sweep_interval" mapstructure:"sweep_interval"`
}

// DiscoveryConfig holds settings for the discovery task coordinator.
type DiscoveryConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// BackendURL is the base URL of the crawler service.
	BackendURL string `json:"backend_url" yaml:"backend_url" mapstructure:"backend_url"`

	// PollInterval is the status polling period (default 2s).
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval" mapstructure:"poll_interval"`

	// DefaultMaxPages is used when a submission gives no page budget (default 50).
	DefaultMaxPages int `json:"default_max_pages" yaml:"default_max_pages" mapstructure:"default_max_pages"`

	// MaxPagesCeiling caps page budgets; never above MaxPagesCeiling (200).
	MaxPagesCeiling int `json:"max_pages_ceiling" yaml:"max_pages_ceiling" mapstructure:"max_pages_ceiling"`
}

// EvidenceConfig holds confidence bucketing and enrichment settings.
type EvidenceConfig struct {
	// HighThreshold is the minimum producer confidence for "high" (default 0.75).
	HighThreshold float64 `json:"high_threshold" yaml:"high_threshold" mapstructure:"high_threshold"`

	// MediumThreshold is the minimum producer confidence for "medium" (default 0.4).
	MediumThreshold float64 `json:"medium_threshold" yaml:"medium_threshold" mapstructure:"medium_threshold"`

	// EnrichmentRetries is the number of extra attempts for each best-effort write (default 2).
	EnrichmentRetries int `json:"enrichment_retries" yaml:"enrichment_retries" mapstructure:"enrichment_retries"`
}

// StatsConfig holds the pipeline health heuristic settings.
type StatsConfig struct {
	// BacklogThreshold is the queue depth above which an idle stage is degraded (default 10).
	BacklogThreshold int `json:"backlog_threshold" yaml:"backlog_threshold" mapstructure:"backlog_threshold"`
}

// Config groups all component configurations. It is passed to each
// component at construction time.
type Config struct {
	Store     StoreConfig     `json:"store" yaml:"store" mapstructure:"store"`
	Review    ReviewConfig    `json:"review" yaml:"review" mapstructure:"review"`
	Discovery DiscoveryConfig `json:"discovery" yaml:"discovery" mapstructure:"discovery"`
	Evidence  EvidenceConfig  `json:"evidence" yaml:"evidence" mapstructure:"evidence"`
	Stats     StatsConfig     `json:"stats" yaml:"stats" mapstructure:"stats"`
}
