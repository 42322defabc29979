package policy

import (
	"time"
)

// Type identifies the kind of compliance rule a policy enforces.
type Type string

const (
	// TypeGeofence blocks actions originating from or targeting a
	// configured set of countries.
	TypeGeofence Type = "GEOFENCE"

	// TypeAgentRevocation blocks all actions from revoked agents.
	TypeAgentRevocation Type = "AGENT_REVOCATION"

	// TypeDataTransfer restricts cross-border data transfers to an
	// allow-list of target regions.
	TypeDataTransfer Type = "DATA_TRANSFER"

	// TypeProcessingRestriction blocks specific action types outright
	// (e.g. "train", "profile").
	TypeProcessingRestriction Type = "PROCESSING_RESTRICTION"
)

// RiskLevel classifies the severity of a blocked (or would-block) action.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// RuleConfig holds the per-kind rule configuration. Only the fields
// relevant to the policy's Type are consulted during evaluation.
type RuleConfig struct {
	// BlockedCountries is the deny-list for GEOFENCE policies.
	// Country codes are upper-cased ISO 3166-1 alpha-2.
	BlockedCountries []string `yaml:"blocked_countries,omitempty"`

	// RevokedAgents is the deny-list for AGENT_REVOCATION policies.
	RevokedAgents []string `yaml:"revoked_agents,omitempty"`

	// AllowedRegions is the allow-list for DATA_TRANSFER policies.
	// An empty list means all regions are permitted.
	AllowedRegions []string `yaml:"allowed_regions,omitempty"`

	// RestrictedActions is the deny-list of action types for
	// PROCESSING_RESTRICTION policies.
	RestrictedActions []string `yaml:"restricted_actions,omitempty"`
}

// BreakerSettings configures the per-policy circuit breaker.
type BreakerSettings struct {
	// Enabled enables the circuit breaker for this policy.
	// Default: true
	Enabled *bool `yaml:"enabled,omitempty"`

	// ErrorThreshold is the error-rate percentage (0-100] above which
	// the breaker opens. Default: 10
	ErrorThreshold float64 `yaml:"error_threshold"`

	// WindowMinutes is the rolling window over which the error rate is
	// computed. Default: 10
	WindowMinutes int `yaml:"window_minutes"`

	// CooldownMinutes is how long the breaker stays OPEN before probing
	// recovery. Default: 15
	CooldownMinutes int `yaml:"cooldown_minutes"`
}

// CanarySettings configures the per-policy canary rollout.
type CanarySettings struct {
	// Enabled enables canary rollout for this policy. When disabled the
	// policy applies to all traffic.
	Enabled bool `yaml:"enabled"`

	// InitialPercentage is the rollout percentage when the canary is
	// first enabled. Default: 1
	InitialPercentage int `yaml:"initial_percentage"`

	// PromotionThreshold is the success-rate percentage at or above
	// which traffic is advanced to the next rung. Default: 95
	PromotionThreshold float64 `yaml:"promotion_threshold"`

	// RollbackThreshold is the success-rate percentage below which
	// traffic is reverted to the previous rung. Default: 90
	RollbackThreshold float64 `yaml:"rollback_threshold"`

	// MinRequestsForPromotion is the minimum number of canary-cohort
	// requests required before a promotion is considered. Default: 100
	MinRequestsForPromotion int64 `yaml:"min_requests_for_promotion"`

	// EvaluationWindowMinutes is the window over which canary success
	// rates are measured. Default: 10
	EvaluationWindowMinutes int `yaml:"evaluation_window_minutes"`

	// AutoPromoteEnabled enables automatic promotion. Default: true
	AutoPromoteEnabled *bool `yaml:"auto_promote_enabled,omitempty"`

	// AutoRollbackEnabled enables automatic rollback. Default: true
	AutoRollbackEnabled *bool `yaml:"auto_rollback_enabled,omitempty"`
}

// Version is a single immutable revision of a policy's rule configuration.
type Version struct {
	// Number is the monotonically increasing version number, starting at 1.
	Number int `yaml:"number"`

	// Config is the rule configuration for this revision.
	Config RuleConfig `yaml:"config"`

	// CreatedAt is when this revision was created.
	CreatedAt time.Time `yaml:"created_at"`
}

// Policy is a configured compliance rule. Every config change creates a
// new Version; prior versions are retained for rollback.
type Policy struct {
	// ID uniquely identifies the policy.
	ID string `yaml:"id"`

	// Name is the human-readable policy name.
	Name string `yaml:"name"`

	// Type is the policy kind.
	Type Type `yaml:"type"`

	// Enabled controls whether the policy participates in evaluation.
	Enabled bool `yaml:"enabled"`

	// Config is the rule configuration of the active version.
	Config RuleConfig `yaml:"config"`

	// Breaker holds circuit-breaker settings for this policy.
	Breaker BreakerSettings `yaml:"breaker"`

	// Canary holds canary-rollout settings for this policy.
	Canary CanarySettings `yaml:"canary"`

	// ActiveVersion is the version number of Config.
	ActiveVersion int `yaml:"-"`

	// Versions holds every revision of the policy, oldest first.
	Versions []Version `yaml:"-"`

	// UpdatedAt is when the policy was last modified.
	UpdatedAt time.Time `yaml:"-"`
}

// BaselineConfig returns the rule configuration evaluated for traffic
// outside the canary cohort: the previous version when one exists,
// otherwise the active config. Traffic inside the cohort always gets the
// active (newest) config.
func (p *Policy) BaselineConfig() RuleConfig {
	if n := len(p.Versions); n >= 2 {
		return p.Versions[n-2].Config
	}
	return p.Config
}

// ActionRequest is one incoming agent action to be gated against the
// policy set. It is the engine's view of a request; transport concerns
// live outside the core.
type ActionRequest struct {
	// RequestID correlates all outcome events for one request.
	RequestID string

	// AgentID is the stable identity of the acting agent. It is also
	// the canary cohort key.
	AgentID string

	// ActionType classifies the operation (e.g. "inference", "export").
	ActionType string

	// ActionSummary is a short human-readable description of the action.
	ActionSummary string

	// TargetRegion is the region data would be sent to, if any.
	TargetRegion string

	// DetectedCountry is the country the request originates from.
	DetectedCountry string

	// Endpoint is the upstream endpoint the action targets.
	Endpoint string

	// Timestamp is when the request was received.
	Timestamp time.Time
}

// RuleVerdict is the outcome of evaluating a single policy's rule
// against one request.
type RuleVerdict struct {
	// Block reports whether the rule says the action must be denied.
	Block bool

	// Reason explains the block decision.
	Reason string

	// Risk is the severity assigned to a blocking verdict.
	Risk RiskLevel
}
