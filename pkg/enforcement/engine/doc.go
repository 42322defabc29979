// Package engine implements the policy enforcement decision engine: the
// per-request orchestration of the policy store, circuit breakers,
// canary cohorts, and the global enforcement mode.
//
// # Decision Flow
//
//  1. Load the enabled policy set.
//  2. Skip any policy whose circuit breaker is OPEN (pass-through for
//     that policy only).
//  3. Determine the request's canary cohort per policy and evaluate the
//     matching configuration revision.
//  4. In SHADOW/DRY_RUN the result is logged and the verdict is always
//     ALLOW (or SHADOW_LOGGED when a block was averted); in ENFORCING a
//     single blocking policy yields BLOCK.
//  5. Emit one outcome event per (request, policy) pair, feeding the
//     breaker, the canary statistics, and the async recorder.
//
// A failure inside one policy's evaluation makes that policy abstain;
// it never aborts the other policies or the decision. The hot path
// performs no blocking I/O.
package engine
