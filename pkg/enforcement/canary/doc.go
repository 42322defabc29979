// Package canary implements gradual policy rollout: a per-policy
// traffic percentage with sticky cohort assignment, automatic promotion
// along the fixed ladder {1, 5, 10, 25, 50, 100} when the canary cohort
// succeeds, and automatic rollback to the previous rung when it fails.
//
// Rollback takes precedence over promotion when degenerate thresholds
// make both conditions true at once.
//
// The scheduled Evaluator and manual overrides coordinate through
// optimistic versioning so an operator action issued mid-evaluation is
// never overwritten by a stale automatic decision.
package canary
