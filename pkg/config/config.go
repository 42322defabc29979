package config

import "time"

// Config is the root configuration structure for Veridion Sentinel.
// It contains all configuration sections for the decision engine,
// policy loading, enforcement safety layers, outcome storage, and
// telemetry settings.
type Config struct {
	// Server contains HTTP API server configuration including listen
	// address, timeouts, and header limits.
	Server ServerConfig `yaml:"server"`

	// Enforcement contains the global enforcement mode and decision
	// engine settings.
	Enforcement EnforcementConfig `yaml:"enforcement"`

	// Policy contains configuration for policy loading including the
	// source location and watch mode.
	Policy PolicyConfig `yaml:"policy"`

	// Breaker contains default circuit breaker settings applied to
	// policies that do not override them.
	Breaker BreakerConfig `yaml:"breaker"`

	// Canary contains default canary rollout settings and the
	// background evaluation schedule.
	Canary CanaryConfig `yaml:"canary"`

	// Outcome contains configuration for outcome event storage
	// including backend selection and the async recorder.
	Outcome OutcomeConfig `yaml:"outcome"`

	// Analytics contains configuration for the scheduled rollup job.
	Analytics AnalyticsConfig `yaml:"analytics"`

	// Simulator contains configuration for offline impact simulation.
	Simulator SimulatorConfig `yaml:"simulator"`

	// Telemetry contains configuration for observability including
	// logging and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP API server.
type ServerConfig struct {
	// ListenAddress is the address and port for the server to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of
	// the response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next
	// request when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful
	// shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server
	// will read parsing request headers.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`
}

// EnforcementConfig contains the global enforcement mode and decision
// engine settings.
type EnforcementConfig struct {
	// Mode is the enforcement mode the engine starts in.
	// Options: "SHADOW", "DRY_RUN", "ENFORCING"
	// Default: "SHADOW"
	Mode string `yaml:"mode"`

	// FailClosed controls the verdict when every applicable policy
	// fails to evaluate while the engine is ENFORCING. When false the
	// engine fails safe and allows the action.
	// Default: false
	FailClosed bool `yaml:"fail_closed"`
}

// PolicyConfig contains configuration for policy loading.
type PolicyConfig struct {
	// FilePath is the path to the policy file or directory.
	// Default: "./policies.yaml"
	FilePath string `yaml:"file_path"`

	// Watch enables automatic reloading when policy files change.
	// Default: false
	Watch bool `yaml:"watch"`
}

// BreakerConfig contains default circuit breaker settings. Individual
// policies may override these in their own definitions.
type BreakerConfig struct {
	// ErrorThreshold is the error-rate percentage above which a
	// breaker opens (0-100).
	// Default: 10
	ErrorThreshold float64 `yaml:"error_threshold"`

	// Window is the rolling window over which error rates are
	// computed.
	// Default: 10m
	Window time.Duration `yaml:"window"`

	// Cooldown is how long an open breaker waits before probing
	// recovery.
	// Default: 15m
	Cooldown time.Duration `yaml:"cooldown"`

	// SweepSchedule is a cron expression for the recovery sweep that
	// moves cooled-down breakers to HALF_OPEN even without traffic.
	// Default: "*/5 * * * *" (every 5 minutes)
	SweepSchedule string `yaml:"sweep_schedule"`
}

// CanaryConfig contains default canary rollout settings. Individual
// policies may override these in their own definitions.
type CanaryConfig struct {
	// InitialPercentage is the traffic percentage a new canary starts
	// at. Must be a ladder value (1, 5, 10, 25, 50, 100).
	// Default: 1
	InitialPercentage int `yaml:"initial_percentage"`

	// PromotionThreshold is the success-rate percentage at or above
	// which the canary advances one rung (0-100).
	// Default: 95
	PromotionThreshold float64 `yaml:"promotion_threshold"`

	// RollbackThreshold is the success-rate percentage below which the
	// canary retreats one rung (0-100).
	// Default: 90
	RollbackThreshold float64 `yaml:"rollback_threshold"`

	// MinRequestsForPromotion is the minimum number of cohort requests
	// in the evaluation window before promotion is considered.
	// Default: 100
	MinRequestsForPromotion int64 `yaml:"min_requests_for_promotion"`

	// EvaluationWindow is the rolling window over which cohort success
	// rates are computed.
	// Default: 10m
	EvaluationWindow time.Duration `yaml:"evaluation_window"`

	// EvaluateSchedule is a cron expression for the background
	// promotion/rollback evaluator.
	// Default: "*/5 * * * *" (every 5 minutes)
	EvaluateSchedule string `yaml:"evaluate_schedule"`
}

// OutcomeConfig contains configuration for outcome event storage.
type OutcomeConfig struct {
	// Backend specifies the storage backend for outcome events.
	// Options: "memory", "sqlite"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite-specific configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Memory contains memory backend configuration.
	Memory MemoryConfig `yaml:"memory"`

	// Recorder contains async recorder configuration.
	Recorder RecorderConfig `yaml:"recorder"`
}

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the file path for the SQLite database.
	// Default: "data/outcomes.db"
	Path string `yaml:"path"`

	// MaxOpenConns is the maximum number of open database connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle database connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// MemoryConfig contains memory backend configuration.
type MemoryConfig struct {
	// MaxEvents is the maximum number of outcome events retained.
	// Oldest events are evicted when the limit is reached.
	// Default: 100000
	MaxEvents int `yaml:"max_events"`
}

// RecorderConfig contains async recorder configuration.
type RecorderConfig struct {
	// Buffer is the size of the async write channel. When the buffer
	// is full, events are dropped rather than blocking the decision
	// path.
	// Default: 1000
	Buffer int `yaml:"buffer"`

	// WriteTimeout is the timeout for writing an event to storage.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// AnalyticsConfig contains configuration for the scheduled rollup job.
type AnalyticsConfig struct {
	// Enabled controls whether the rollup job runs. Pointer so an
	// explicit false is distinguishable from an unset field.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Schedule is a cron expression for recomputing per-policy
	// aggregates from the outcome log.
	// Default: "0 * * * *" (hourly)
	Schedule string `yaml:"schedule"`

	// Window is how far back each recomputation looks.
	// Default: 24h
	Window time.Duration `yaml:"window"`
}

// SimulatorConfig contains configuration for offline impact simulation.
type SimulatorConfig struct {
	// MediumCutPoint is the block percentage at or above which the
	// estimated impact is at least MEDIUM.
	// Default: 5
	MediumCutPoint float64 `yaml:"medium_cut_point"`

	// HighCutPoint is the block percentage at or above which the
	// estimated impact is at least HIGH.
	// Default: 20
	HighCutPoint float64 `yaml:"high_cut_point"`

	// CriticalCutPoint is the block percentage at or above which the
	// estimated impact is CRITICAL.
	// Default: 50
	CriticalCutPoint float64 `yaml:"critical_cut_point"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether the metrics endpoint is served. Pointer
	// so an explicit false is distinguishable from an unset field.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// ListenAddress is the address and port for the metrics endpoint.
	// Format: "host:port".
	// Default: "127.0.0.1:9464"
	ListenAddress string `yaml:"listen_address"`

	// Path is the HTTP path for the Prometheus scrape endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "sentinel"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "enforcement"
	Subsystem string `yaml:"subsystem"`
}
