// Veridion Sentinel is a compliance-policy enforcement platform for
// AI agent actions.
//
// It evaluates proposed agent actions against compliance policies
// (geofencing, agent revocation, data transfer, processing
// restrictions) and returns an allow/block decision, with:
//   - Shadow and dry-run modes for risk-free policy rollout
//   - Per-policy circuit breakers that fail open on elevated error rates
//   - Canary percentage rollout with automatic promotion and rollback
//   - Outcome recording and shadow-impact analytics
//   - Offline impact simulation against recorded traffic
//
// Usage:
//
//	# Start the decision server with default configuration
//	sentinel run
//
//	# Start with a custom configuration file
//	sentinel run --config /path/to/config.yaml
//
//	# Show version information
//	sentinel version
//
//	# Validate a policy file
//	sentinel validate --file policies.yaml
//
//	# Simulate a proposed policy against recorded outcomes
//	sentinel simulate --type GEOFENCE --blocked-countries RU,KP --window-days 7
package main

func main() {
	Execute()
}
