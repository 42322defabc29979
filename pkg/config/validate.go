package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "policy.file_path").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateEnforcement(&cfg.Enforcement)...)
	errs = append(errs, validatePolicy(&cfg.Policy)...)
	errs = append(errs, validateBreaker(&cfg.Breaker)...)
	errs = append(errs, validateCanary(&cfg.Canary)...)
	errs = append(errs, validateOutcome(&cfg.Outcome)...)
	errs = append(errs, validateAnalytics(&cfg.Analytics)...)
	errs = append(errs, validateSimulator(&cfg.Simulator)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateServer validates the server section.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid listen address %q: %v", cfg.ListenAddress, err),
		})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must not be negative",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must not be negative",
		})
	}
	if cfg.ShutdownTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "server.shutdown_timeout",
			Message: "shutdown timeout must be positive",
		})
	}
	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes must not be negative",
		})
	}

	return errs
}

// validateEnforcement validates the enforcement section.
func validateEnforcement(cfg *EnforcementConfig) []FieldError {
	var errs []FieldError

	switch cfg.Mode {
	case "SHADOW", "DRY_RUN", "ENFORCING":
	default:
		errs = append(errs, FieldError{
			Field:   "enforcement.mode",
			Message: fmt.Sprintf("invalid mode %q, must be one of: SHADOW, DRY_RUN, ENFORCING", cfg.Mode),
		})
	}

	return errs
}

// validatePolicy validates the policy section.
func validatePolicy(cfg *PolicyConfig) []FieldError {
	var errs []FieldError

	if cfg.FilePath == "" {
		errs = append(errs, FieldError{
			Field:   "policy.file_path",
			Message: "policy file path is required",
		})
	}

	return errs
}

// validateBreaker validates the breaker section.
func validateBreaker(cfg *BreakerConfig) []FieldError {
	var errs []FieldError

	if cfg.ErrorThreshold < 0 || cfg.ErrorThreshold > 100 {
		errs = append(errs, FieldError{
			Field:   "breaker.error_threshold",
			Message: fmt.Sprintf("error threshold must be in [0, 100], got %v", cfg.ErrorThreshold),
		})
	}
	if cfg.Window <= 0 {
		errs = append(errs, FieldError{
			Field:   "breaker.window",
			Message: "window must be positive",
		})
	}
	if cfg.Cooldown <= 0 {
		errs = append(errs, FieldError{
			Field:   "breaker.cooldown",
			Message: "cooldown must be positive",
		})
	}
	if err := validateCronSpec(cfg.SweepSchedule); err != nil {
		errs = append(errs, FieldError{
			Field:   "breaker.sweep_schedule",
			Message: fmt.Sprintf("invalid cron expression %q: %v", cfg.SweepSchedule, err),
		})
	}

	return errs
}

// validateCanary validates the canary section.
func validateCanary(cfg *CanaryConfig) []FieldError {
	var errs []FieldError

	validInitial := false
	for _, rung := range []int{1, 5, 10, 25, 50, 100} {
		if cfg.InitialPercentage == rung {
			validInitial = true
			break
		}
	}
	if !validInitial {
		errs = append(errs, FieldError{
			Field:   "canary.initial_percentage",
			Message: fmt.Sprintf("initial percentage %d is not a ladder value (1, 5, 10, 25, 50, 100)", cfg.InitialPercentage),
		})
	}
	if cfg.PromotionThreshold < 0 || cfg.PromotionThreshold > 100 {
		errs = append(errs, FieldError{
			Field:   "canary.promotion_threshold",
			Message: fmt.Sprintf("promotion threshold must be in [0, 100], got %v", cfg.PromotionThreshold),
		})
	}
	if cfg.RollbackThreshold < 0 || cfg.RollbackThreshold > 100 {
		errs = append(errs, FieldError{
			Field:   "canary.rollback_threshold",
			Message: fmt.Sprintf("rollback threshold must be in [0, 100], got %v", cfg.RollbackThreshold),
		})
	}
	if cfg.PromotionThreshold < cfg.RollbackThreshold {
		errs = append(errs, FieldError{
			Field:   "canary.promotion_threshold",
			Message: "promotion threshold must be at least the rollback threshold",
		})
	}
	if cfg.MinRequestsForPromotion < 1 {
		errs = append(errs, FieldError{
			Field:   "canary.min_requests_for_promotion",
			Message: "minimum requests for promotion must be at least 1",
		})
	}
	if cfg.EvaluationWindow <= 0 {
		errs = append(errs, FieldError{
			Field:   "canary.evaluation_window",
			Message: "evaluation window must be positive",
		})
	}
	if err := validateCronSpec(cfg.EvaluateSchedule); err != nil {
		errs = append(errs, FieldError{
			Field:   "canary.evaluate_schedule",
			Message: fmt.Sprintf("invalid cron expression %q: %v", cfg.EvaluateSchedule, err),
		})
	}

	return errs
}

// validateOutcome validates the outcome section.
func validateOutcome(cfg *OutcomeConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory", "sqlite":
	default:
		errs = append(errs, FieldError{
			Field:   "outcome.backend",
			Message: fmt.Sprintf("invalid backend %q, must be one of: memory, sqlite", cfg.Backend),
		})
	}
	if cfg.Backend == "sqlite" && cfg.SQLite.Path == "" {
		errs = append(errs, FieldError{
			Field:   "outcome.sqlite.path",
			Message: "sqlite path is required when backend is sqlite",
		})
	}
	if cfg.Memory.MaxEvents < 0 {
		errs = append(errs, FieldError{
			Field:   "outcome.memory.max_events",
			Message: "max events must not be negative",
		})
	}
	if cfg.Recorder.Buffer < 1 {
		errs = append(errs, FieldError{
			Field:   "outcome.recorder.buffer",
			Message: "recorder buffer must be at least 1",
		})
	}
	if cfg.Recorder.WriteTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "outcome.recorder.write_timeout",
			Message: "write timeout must be positive",
		})
	}

	return errs
}

// validateAnalytics validates the analytics section.
func validateAnalytics(cfg *AnalyticsConfig) []FieldError {
	var errs []FieldError

	if err := validateCronSpec(cfg.Schedule); err != nil {
		errs = append(errs, FieldError{
			Field:   "analytics.schedule",
			Message: fmt.Sprintf("invalid cron expression %q: %v", cfg.Schedule, err),
		})
	}
	if cfg.Window <= 0 {
		errs = append(errs, FieldError{
			Field:   "analytics.window",
			Message: "window must be positive",
		})
	}

	return errs
}

// validateSimulator validates the simulator section.
func validateSimulator(cfg *SimulatorConfig) []FieldError {
	var errs []FieldError

	if cfg.MediumCutPoint <= 0 || cfg.MediumCutPoint > 100 {
		errs = append(errs, FieldError{
			Field:   "simulator.medium_cut_point",
			Message: fmt.Sprintf("medium cut point must be in (0, 100], got %v", cfg.MediumCutPoint),
		})
	}
	if cfg.HighCutPoint <= cfg.MediumCutPoint {
		errs = append(errs, FieldError{
			Field:   "simulator.high_cut_point",
			Message: "high cut point must be greater than the medium cut point",
		})
	}
	if cfg.CriticalCutPoint <= cfg.HighCutPoint {
		errs = append(errs, FieldError{
			Field:   "simulator.critical_cut_point",
			Message: "critical cut point must be greater than the high cut point",
		})
	}

	return errs
}

// validateTelemetry validates the telemetry section.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q, must be one of: debug, info, warn, error", cfg.Logging.Level),
		})
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q, must be one of: json, text", cfg.Logging.Format),
		})
	}
	if cfg.Metrics.Enabled != nil && *cfg.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Metrics.ListenAddress); err != nil {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.listen_address",
				Message: fmt.Sprintf("invalid listen address %q: %v", cfg.Metrics.ListenAddress, err),
			})
		}
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.path",
				Message: "metrics path must start with /",
			})
		}
	}

	return errs
}

// validateCronSpec checks a standard 5-field cron expression.
func validateCronSpec(spec string) error {
	if spec == "" {
		return fmt.Errorf("expression is empty")
	}
	_, err := cron.ParseStandard(spec)
	return err
}
