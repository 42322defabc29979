package engine

import (
	"time"

	"veridion-hq/sentinel/pkg/enforcement/mode"
	"veridion-hq/sentinel/pkg/policy"
)

// Verdict is the engine's final answer for one request.
type Verdict string

const (
	// VerdictAllow lets the action proceed.
	VerdictAllow Verdict = "ALLOW"

	// VerdictBlock denies the action. Only produced while ENFORCING.
	VerdictBlock Verdict = "BLOCK"

	// VerdictShadowLogged means at least one policy would have blocked
	// but the mode is non-enforcing: the action proceeds and the
	// counterfactual is logged.
	VerdictShadowLogged Verdict = "SHADOW_LOGGED"
)

// Allowed reports whether the action may proceed.
func (v Verdict) Allowed() bool { return v != VerdictBlock }

// PolicyResult is the per-policy outcome inside one decision.
type PolicyResult struct {
	PolicyID       string
	Version        int
	WouldBlock     bool
	Reason         string
	Risk           policy.RiskLevel
	InCanaryCohort bool

	// Skipped is true when the policy's circuit breaker was OPEN and
	// its rule was passed through.
	Skipped    bool
	SkipReason string

	// Failed is true when the evaluation itself errored and the policy
	// abstained.
	Failed bool
}

// Decision is the full result of gating one request.
type Decision struct {
	RequestID      string
	Verdict        Verdict
	Mode           mode.Mode
	BlockedBy      string
	BlockReason    string
	Policies       []PolicyResult
	EvaluationTime time.Duration

	wouldBlock bool
}

// WouldBlock reports whether any applicable policy's verdict said
// block, regardless of whether it was enforced.
func (d *Decision) WouldBlock() bool { return d.wouldBlock }
