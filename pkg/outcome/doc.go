// Package outcome holds the request-outcome event stream: one immutable
// Event per (request, policy) pair, plus the Transition audit records
// produced by the circuit breaker, the canary controller, and the
// enforcement-mode switch.
//
// # Architecture
//
//  1. Recorder - async hand-off from the decision path (never blocks)
//  2. Backend  - persistence (memory or SQLite)
//  3. Query    - windowed reads for shadow analytics, impact simulation,
//     and scheduled aggregate rollups
//
// The SQLite backend uses WAL mode so the recorder's writer and the
// analytics/simulator readers do not contend.
package outcome
