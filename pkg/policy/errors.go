package policy

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	// ErrNotFound indicates the referenced policy does not exist.
	ErrNotFound = errors.New("policy not found")

	// ErrUnknownPolicyType indicates an unrecognized policy type.
	ErrUnknownPolicyType = errors.New("unknown policy type")

	// ErrVersionNotFound indicates the referenced policy version does
	// not exist.
	ErrVersionNotFound = errors.New("policy version not found")
)

// ValidationError indicates a policy definition failed configure-time
// validation. Validation errors are rejected synchronously and never
// reach the decision path.
type ValidationError struct {
	PolicyID string
	Field    string
	Message  string
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	if e.PolicyID != "" {
		return fmt.Sprintf("policy %s: invalid %s: %s", e.PolicyID, e.Field, e.Message)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
