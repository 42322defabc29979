// Package server provides the HTTP API for decision and operator
// traffic.
//
// The decision path is POST /v1/decide: one agent action in, one
// verdict out. Operator endpoints expose the policy set, enforcement
// mode, circuit breakers, canary rollouts, shadow analytics, the
// outcome log, and offline impact simulation.
//
// All responses are JSON. Requests carry an X-Request-ID header
// (client-supplied or generated) which is echoed back and attached to
// every log line for the request.
package server
