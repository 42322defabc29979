// Package breaker implements the per-policy circuit breaker: an
// error-rate monitor that automatically disables a failing policy so a
// broken rule cannot harm production traffic.
//
// # State Machine
//
//	CLOSED --(error rate > threshold)--> OPEN
//	OPEN --(cooldown elapsed)--> HALF_OPEN
//	HALF_OPEN --(probe success)--> CLOSED
//	HALF_OPEN --(probe failure)--> OPEN
//
// While OPEN, the policy's own rule is skipped for new requests; the
// breaker disables a failing protection, it does not become the
// protection. Manual OPEN/CLOSE controls hold the breaker in place
// until an AUTO control resumes automatic evaluation from HALF_OPEN.
//
// Every transition produces an audit Transition record with the error
// rate, counters, and trigger (AUTO_THRESHOLD, AUTO_RECOVERY, MANUAL).
package breaker
