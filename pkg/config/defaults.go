package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB

	// Enforcement defaults
	DefaultEnforcementMode = "SHADOW"
	DefaultFailClosed      = false

	// Policy defaults
	DefaultPolicyFilePath = "./policies.yaml"
	DefaultPolicyWatch    = false

	// Breaker defaults
	DefaultBreakerErrorThreshold = 10.0
	DefaultBreakerWindow         = 10 * time.Minute
	DefaultBreakerCooldown       = 15 * time.Minute
	DefaultBreakerSweepSchedule  = "*/5 * * * *"

	// Canary defaults
	DefaultCanaryInitialPercentage  = 1
	DefaultCanaryPromotionThreshold = 95.0
	DefaultCanaryRollbackThreshold  = 90.0
	DefaultCanaryMinRequests        = int64(100)
	DefaultCanaryEvaluationWindow   = 10 * time.Minute
	DefaultCanaryEvaluateSchedule   = "*/5 * * * *"

	// Outcome defaults
	DefaultOutcomeBackend       = "sqlite"
	DefaultSQLitePath           = "data/outcomes.db"
	DefaultSQLiteMaxOpenConns   = 10
	DefaultSQLiteMaxIdleConns   = 5
	DefaultSQLiteBusyTimeout    = 5 * time.Second
	DefaultMemoryMaxEvents      = 100000
	DefaultRecorderBuffer       = 1000
	DefaultRecorderWriteTimeout = 5 * time.Second

	// Analytics defaults
	DefaultAnalyticsEnabled  = true
	DefaultAnalyticsSchedule = "0 * * * *"
	DefaultAnalyticsWindow   = 24 * time.Hour

	// Simulator defaults
	DefaultMediumCutPoint   = 5.0
	DefaultHighCutPoint     = 20.0
	DefaultCriticalCutPoint = 50.0

	// Telemetry defaults
	DefaultLoggingLevel         = "info"
	DefaultLoggingFormat        = "json"
	DefaultMetricsEnabled       = true
	DefaultMetricsListenAddress = "127.0.0.1:9464"
	DefaultMetricsPath          = "/metrics"
	DefaultMetricsNamespace     = "sentinel"
	DefaultMetricsSubsystem     = "enforcement"
)

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	// Enforcement defaults
	if cfg.Enforcement.Mode == "" {
		cfg.Enforcement.Mode = DefaultEnforcementMode
	}

	// Policy defaults
	if cfg.Policy.FilePath == "" {
		cfg.Policy.FilePath = DefaultPolicyFilePath
	}

	// Breaker defaults
	if cfg.Breaker.ErrorThreshold == 0 {
		cfg.Breaker.ErrorThreshold = DefaultBreakerErrorThreshold
	}
	if cfg.Breaker.Window == 0 {
		cfg.Breaker.Window = DefaultBreakerWindow
	}
	if cfg.Breaker.Cooldown == 0 {
		cfg.Breaker.Cooldown = DefaultBreakerCooldown
	}
	if cfg.Breaker.SweepSchedule == "" {
		cfg.Breaker.SweepSchedule = DefaultBreakerSweepSchedule
	}

	// Canary defaults
	if cfg.Canary.InitialPercentage == 0 {
		cfg.Canary.InitialPercentage = DefaultCanaryInitialPercentage
	}
	if cfg.Canary.PromotionThreshold == 0 {
		cfg.Canary.PromotionThreshold = DefaultCanaryPromotionThreshold
	}
	if cfg.Canary.RollbackThreshold == 0 {
		cfg.Canary.RollbackThreshold = DefaultCanaryRollbackThreshold
	}
	if cfg.Canary.MinRequestsForPromotion == 0 {
		cfg.Canary.MinRequestsForPromotion = DefaultCanaryMinRequests
	}
	if cfg.Canary.EvaluationWindow == 0 {
		cfg.Canary.EvaluationWindow = DefaultCanaryEvaluationWindow
	}
	if cfg.Canary.EvaluateSchedule == "" {
		cfg.Canary.EvaluateSchedule = DefaultCanaryEvaluateSchedule
	}

	// Outcome defaults
	if cfg.Outcome.Backend == "" {
		cfg.Outcome.Backend = DefaultOutcomeBackend
	}
	if cfg.Outcome.SQLite.Path == "" {
		cfg.Outcome.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Outcome.SQLite.MaxOpenConns == 0 {
		cfg.Outcome.SQLite.MaxOpenConns = DefaultSQLiteMaxOpenConns
	}
	if cfg.Outcome.SQLite.MaxIdleConns == 0 {
		cfg.Outcome.SQLite.MaxIdleConns = DefaultSQLiteMaxIdleConns
	}
	if cfg.Outcome.SQLite.BusyTimeout == 0 {
		cfg.Outcome.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.Outcome.Memory.MaxEvents == 0 {
		cfg.Outcome.Memory.MaxEvents = DefaultMemoryMaxEvents
	}
	if cfg.Outcome.Recorder.Buffer == 0 {
		cfg.Outcome.Recorder.Buffer = DefaultRecorderBuffer
	}
	if cfg.Outcome.Recorder.WriteTimeout == 0 {
		cfg.Outcome.Recorder.WriteTimeout = DefaultRecorderWriteTimeout
	}

	// Analytics defaults
	if cfg.Analytics.Enabled == nil {
		enabled := DefaultAnalyticsEnabled
		cfg.Analytics.Enabled = &enabled
	}
	if cfg.Analytics.Schedule == "" {
		cfg.Analytics.Schedule = DefaultAnalyticsSchedule
	}
	if cfg.Analytics.Window == 0 {
		cfg.Analytics.Window = DefaultAnalyticsWindow
	}

	// Simulator defaults
	if cfg.Simulator.MediumCutPoint == 0 {
		cfg.Simulator.MediumCutPoint = DefaultMediumCutPoint
	}
	if cfg.Simulator.HighCutPoint == 0 {
		cfg.Simulator.HighCutPoint = DefaultHighCutPoint
	}
	if cfg.Simulator.CriticalCutPoint == 0 {
		cfg.Simulator.CriticalCutPoint = DefaultCriticalCutPoint
	}

	// Telemetry defaults
	if cfg.Telemetry.Metrics.Enabled == nil {
		enabled := DefaultMetricsEnabled
		cfg.Telemetry.Metrics.Enabled = &enabled
	}
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.ListenAddress == "" {
		cfg.Telemetry.Metrics.ListenAddress = DefaultMetricsListenAddress
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSubsystem
	}
}
