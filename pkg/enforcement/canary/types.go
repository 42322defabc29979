package canary

import (
	"errors"
	"fmt"
	"time"
)

// Ladder is the fixed sequence of rollout percentages under automatic
// control. Manual overrides may set any value in [0, 100].
var Ladder = []int{1, 5, 10, 25, 50, 100}

// Config is per-policy canary configuration.
type Config struct {
	// InitialPercentage is the rollout percentage when the canary is
	// registered. Default: 1
	InitialPercentage int

	// PromotionThreshold is the success-rate percentage at or above
	// which traffic advances a rung. Default: 95
	PromotionThreshold float64

	// RollbackThreshold is the success-rate percentage below which
	// traffic reverts a rung. Must be <= PromotionThreshold.
	// Default: 90
	RollbackThreshold float64

	// MinRequestsForPromotion is the minimum canary-cohort request
	// count in the window before promotion is considered. Default: 100
	MinRequestsForPromotion int64

	// EvaluationWindow is the window over which success rates are
	// measured. Default: 10 minutes
	EvaluationWindow time.Duration

	// AutoPromote enables automatic promotion. Default: true
	AutoPromote bool

	// AutoRollback enables automatic rollback. Default: true
	AutoRollback bool
}

// DefaultConfig returns the default canary configuration.
func DefaultConfig() Config {
	return Config{
		InitialPercentage:       1,
		PromotionThreshold:      95,
		RollbackThreshold:       90,
		MinRequestsForPromotion: 100,
		EvaluationWindow:        10 * time.Minute,
		AutoPromote:             true,
		AutoRollback:            true,
	}
}

// Validate checks the configuration for configure-time errors.
func (c Config) Validate() error {
	if c.InitialPercentage < 0 || c.InitialPercentage > 100 {
		return &ConfigError{Field: "initial_percentage", Message: "must be within [0, 100]"}
	}
	if c.PromotionThreshold < 0 || c.PromotionThreshold > 100 {
		return &ConfigError{Field: "promotion_threshold", Message: "must be within [0, 100]"}
	}
	if c.RollbackThreshold < 0 || c.RollbackThreshold > 100 {
		return &ConfigError{Field: "rollback_threshold", Message: "must be within [0, 100]"}
	}
	if c.PromotionThreshold < c.RollbackThreshold {
		return &ConfigError{Field: "promotion_threshold", Message: "must be >= rollback_threshold"}
	}
	if c.MinRequestsForPromotion < 0 {
		return &ConfigError{Field: "min_requests_for_promotion", Message: "must be positive"}
	}
	if c.EvaluationWindow <= 0 {
		return &ConfigError{Field: "evaluation_window", Message: "must be positive"}
	}
	return nil
}

// Snapshot is a point-in-time view of one policy's rollout.
type Snapshot struct {
	PolicyID          string    `json:"policy_id"`
	TrafficPercentage int       `json:"traffic_percentage"`
	Config            Config    `json:"-"`
	CanaryRequests    int64     `json:"canary_requests"`
	CanarySuccesses   int64     `json:"canary_successes"`
	SuccessRate       float64   `json:"success_rate"`
	LastEvaluatedAt   time.Time `json:"last_evaluated_at,omitempty"`
	Version           uint64    `json:"version"`
}

// Change is the audit record of a traffic-percentage transition.
type Change struct {
	PolicyID       string    `json:"policy_id"`
	FromPercentage int       `json:"from_percentage"`
	ToPercentage   int       `json:"to_percentage"`
	Reason         string    `json:"reason"`
	TriggeredBy    string    `json:"triggered_by"`
	SuccessRate    float64   `json:"success_rate"`
	TotalRequests  int64     `json:"total_requests"`
	Timestamp      time.Time `json:"timestamp"`
}

// Sentinel errors
var (
	// ErrNotFound indicates no canary state exists for the policy.
	ErrNotFound = errors.New("no canary state for policy")

	// ErrConflict indicates an optimistic update lost its race and
	// exhausted retries. Surfaced only to callers that requested
	// strict conflict reporting.
	ErrConflict = errors.New("canary state changed concurrently")
)

// ConfigError indicates invalid canary configuration, rejected at
// configure time.
type ConfigError struct {
	Field   string
	Message string
}

// Error returns the error message.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid canary config: %s %s", e.Field, e.Message)
}

// nextRung returns the smallest ladder value above pct, or pct when
// already at or past the top.
func nextRung(pct int) int {
	for _, r := range Ladder {
		if r > pct {
			return r
		}
	}
	return pct
}

// prevRung returns the largest ladder value below pct, or 0 when there
// is no prior rung.
func prevRung(pct int) int {
	prev := 0
	for _, r := range Ladder {
		if r >= pct {
			break
		}
		prev = r
	}
	return prev
}
