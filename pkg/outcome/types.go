package outcome

import (
	"context"
	"time"
)

// Event is the immutable result of evaluating one policy against one
// request. The decision engine emits exactly one Event per (request,
// policy) pair; the circuit breaker, the canary controller, shadow
// analytics, and the audit collaborator all consume the same stream.
type Event struct {
	// ID is a UUID assigned at creation.
	ID string `json:"id"`

	// RequestID correlates all events produced for one request.
	RequestID string `json:"request_id"`

	// AgentID is the acting agent.
	AgentID string `json:"agent_id"`

	// PolicyID is the policy that was evaluated.
	PolicyID string `json:"policy_id"`

	// PolicyType is the policy kind, denormalized for analytics.
	PolicyType string `json:"policy_type"`

	// PolicyVersion is the configuration version that was evaluated.
	PolicyVersion int `json:"policy_version"`

	// ActionType classifies the gated operation.
	ActionType string `json:"action_type"`

	// ActionSummary is a short description of the action.
	ActionSummary string `json:"action_summary"`

	// TargetRegion is the destination region of the action, if any.
	TargetRegion string `json:"target_region"`

	// DetectedCountry is the origin country of the request.
	DetectedCountry string `json:"detected_country"`

	// Endpoint is the upstream endpoint the action targeted.
	Endpoint string `json:"endpoint"`

	// WouldBlock reports the policy's verdict, independent of whether
	// it was enforced.
	WouldBlock bool `json:"would_block"`

	// WouldAllow is the complement of WouldBlock, recorded explicitly
	// so the counterfactual log reads unambiguously.
	WouldAllow bool `json:"would_allow"`

	// Enforced reports whether the verdict was actually applied (true
	// only in ENFORCING mode).
	Enforced bool `json:"enforced"`

	// InCanaryCohort reports whether the request fell in the policy's
	// canary cohort.
	InCanaryCohort bool `json:"in_canary_cohort"`

	// EvalFailed reports whether the policy evaluation itself errored
	// (the policy abstained). Failed evaluations feed the circuit
	// breaker as errors.
	EvalFailed bool `json:"eval_failed"`

	// RiskLevel is the severity assigned by the policy rule.
	RiskLevel string `json:"risk_level"`

	// BlockReason explains a would-block verdict.
	BlockReason string `json:"block_reason"`

	// Timestamp is when the event was produced.
	Timestamp time.Time `json:"timestamp"`
}

// TransitionKind distinguishes the state machines that produce
// transition records.
type TransitionKind string

const (
	// KindCircuit is a circuit-breaker state transition.
	KindCircuit TransitionKind = "circuit"

	// KindCanary is a canary traffic-percentage change.
	KindCanary TransitionKind = "canary"

	// KindMode is a global enforcement-mode change.
	KindMode TransitionKind = "mode"
)

// Transition is an audit record of a safety-layer state change:
// circuit breaker transitions, canary promotions and rollbacks, and
// enforcement-mode changes all share this shape.
type Transition struct {
	ID       string         `json:"id"`
	PolicyID string         `json:"policy_id,omitempty"`
	Kind     TransitionKind `json:"kind"`

	// FromState/ToState carry breaker states or enforcement modes.
	FromState string `json:"from_state,omitempty"`
	ToState   string `json:"to_state,omitempty"`

	// FromPercentage/ToPercentage carry canary traffic changes.
	FromPercentage int `json:"from_percentage,omitempty"`
	ToPercentage   int `json:"to_percentage,omitempty"`

	// Measurements at the time of the transition.
	ErrorRate     float64 `json:"error_rate,omitempty"`
	SuccessRate   float64 `json:"success_rate,omitempty"`
	ErrorCount    int64   `json:"error_count,omitempty"`
	TotalRequests int64   `json:"total_requests,omitempty"`

	// TriggeredBy records what initiated the transition
	// (AUTO_THRESHOLD, AUTO_RECOVERY, AUTO_PROMOTE, AUTO_ROLLBACK_ERROR_RATE,
	// MANUAL, or an operator identity for mode changes).
	TriggeredBy string `json:"triggered_by"`

	// Reason is a human-readable explanation.
	Reason string `json:"reason,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Filter selects events from a backend.
type Filter struct {
	// AgentID filters by agent, if non-empty.
	AgentID string

	// PolicyID filters by policy, if non-empty.
	PolicyID string

	// WouldBlock filters by verdict when non-nil.
	WouldBlock *bool

	// InCanaryCohort filters by cohort membership when non-nil.
	InCanaryCohort *bool

	// Since/Until bound the time window. Zero values are unbounded.
	Since time.Time
	Until time.Time

	// Limit caps the number of returned events; 0 means no cap.
	// Events are returned newest first.
	Limit int
}

// Backend persists outcome events and transition records.
//
// Implementations must be safe for concurrent use. Save is called from
// the async recorder worker, never from the hot decision path.
type Backend interface {
	// Save persists one outcome event.
	Save(ctx context.Context, ev *Event) error

	// Query returns events matching the filter, newest first.
	Query(ctx context.Context, f Filter) ([]*Event, error)

	// Count returns the number of events matching the filter.
	Count(ctx context.Context, f Filter) (int64, error)

	// SaveTransition persists one transition record.
	SaveTransition(ctx context.Context, tr *Transition) error

	// Transitions returns transition records, newest first, optionally
	// filtered by policy id and kind ("" matches all). limit 0 means
	// no cap.
	Transitions(ctx context.Context, policyID string, kind TransitionKind, limit int) ([]*Transition, error)

	// Close releases backend resources.
	Close() error
}
