// Package policy holds compliance policy definitions, the in-memory
// policy store, and the rule-matching logic shared by the live decision
// path, the shadow path, and the impact simulator.
//
// # Policy Kinds
//
//   - GEOFENCE: deny-list of origin countries
//   - AGENT_REVOCATION: deny-list of agent identities
//   - DATA_TRANSFER: allow-list of target regions for data movement
//   - PROCESSING_RESTRICTION: deny-list of action types
//
// # Versioning
//
// Every configuration change creates a new immutable Version; prior
// versions are retained so operators can roll a policy back, and so the
// canary baseline cohort can keep evaluating the previous revision while
// the canary cohort exercises the new one.
//
// # Sources
//
// Policies load from YAML files (single file or directory) and hot-reload
// on edit via fsnotify, debounced. A reload that fails validation keeps
// the previous policy set live.
package policy
