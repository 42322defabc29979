package breaker

import (
	"errors"
	"fmt"
	"time"
)

// State is a circuit breaker state.
type State string

const (
	// Closed: the policy is evaluated normally and outcomes accumulate
	// in the rolling window.
	Closed State = "CLOSED"

	// Open: the policy is treated as disabled; its rule is skipped for
	// new requests and no further errors accumulate.
	Open State = "OPEN"

	// HalfOpen: a probe state after the cooldown; the next outcome
	// decides whether the breaker closes or re-opens.
	HalfOpen State = "HALF_OPEN"
)

// ControlAction is a manual breaker control operation.
type ControlAction string

const (
	// ControlOpen forces the breaker OPEN.
	ControlOpen ControlAction = "OPEN"

	// ControlClose forces the breaker CLOSED and resets counters.
	ControlClose ControlAction = "CLOSE"

	// ControlAuto clears a manual override and resumes rolling-window
	// evaluation from HALF_OPEN.
	ControlAuto ControlAction = "AUTO"
)

// Config is per-policy breaker configuration.
type Config struct {
	// ErrorThreshold is the error-rate percentage above which the
	// breaker opens. Must be > 0.
	ErrorThreshold float64

	// Window is the rolling window over which the error rate is
	// computed. Must be > 0.
	Window time.Duration

	// Cooldown is how long the breaker stays OPEN before probing
	// recovery. Must be > 0.
	Cooldown time.Duration
}

// DefaultConfig returns the default breaker configuration: 10% error
// threshold over a 10 minute window with a 15 minute cooldown.
func DefaultConfig() Config {
	return Config{
		ErrorThreshold: 10,
		Window:         10 * time.Minute,
		Cooldown:       15 * time.Minute,
	}
}

// Validate checks the configuration for configure-time errors.
func (c Config) Validate() error {
	if c.ErrorThreshold <= 0 || c.ErrorThreshold > 100 {
		return &ConfigError{Field: "error_threshold", Message: "must be within (0, 100]"}
	}
	if c.Window <= 0 {
		return &ConfigError{Field: "window", Message: "must be positive"}
	}
	if c.Cooldown <= 0 {
		return &ConfigError{Field: "cooldown", Message: "must be positive"}
	}
	return nil
}

// Snapshot is a point-in-time view of one policy's breaker.
type Snapshot struct {
	PolicyID      string    `json:"policy_id"`
	State         State     `json:"state"`
	ManualHold    bool      `json:"manual_hold"`
	ErrorCount    int64     `json:"error_count"`
	TotalRequests int64     `json:"total_requests"`
	ErrorRate     float64   `json:"error_rate"`
	OpenedAt      time.Time `json:"opened_at,omitempty"`
	LastErrorAt   time.Time `json:"last_error_at,omitempty"`
	Config        Config    `json:"-"`
}

// RecoveryMetrics summarizes how quickly a policy's breaker recovers.
type RecoveryMetrics struct {
	PolicyID        string        `json:"policy_id"`
	TimesOpened     int           `json:"times_opened"`
	TimesRecovered  int           `json:"times_recovered"`
	AvgRecoveryTime time.Duration `json:"avg_recovery_time"`
	MaxRecoveryTime time.Duration `json:"max_recovery_time"`
}

// ErrNotFound indicates no breaker state exists for the policy.
var ErrNotFound = errors.New("no circuit breaker state for policy")

// ConfigError indicates invalid breaker configuration, rejected at
// configure time.
type ConfigError struct {
	Field   string
	Message string
}

// Error returns the error message.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid circuit breaker config: %s %s", e.Field, e.Message)
}
