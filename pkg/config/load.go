package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any
// errors. The configuration is not modified by environment variables; use
// LoadConfigWithEnvOverrides for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention SENTINEL_SECTION_FIELD (e.g., SENTINEL_ENFORCEMENT_MODE).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with all default values applied.
// Used when no configuration file is given.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Environment variables use the format SENTINEL_SECTION_FIELD.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	if val := os.Getenv("SENTINEL_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("SENTINEL_SERVER_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if val := os.Getenv("SENTINEL_SERVER_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if val := os.Getenv("SENTINEL_SERVER_SHUTDOWN_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ShutdownTimeout = d
		}
	}

	// Enforcement overrides
	if val := os.Getenv("SENTINEL_ENFORCEMENT_MODE"); val != "" {
		cfg.Enforcement.Mode = val
	}
	if val := os.Getenv("SENTINEL_ENFORCEMENT_FAIL_CLOSED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Enforcement.FailClosed = b
		}
	}

	// Policy overrides
	if val := os.Getenv("SENTINEL_POLICY_FILE_PATH"); val != "" {
		cfg.Policy.FilePath = val
	}
	if val := os.Getenv("SENTINEL_POLICY_WATCH"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Policy.Watch = b
		}
	}

	// Breaker overrides
	if val := os.Getenv("SENTINEL_BREAKER_ERROR_THRESHOLD"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Breaker.ErrorThreshold = f
		}
	}
	if val := os.Getenv("SENTINEL_BREAKER_WINDOW"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Breaker.Window = d
		}
	}
	if val := os.Getenv("SENTINEL_BREAKER_COOLDOWN"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Breaker.Cooldown = d
		}
	}
	if val := os.Getenv("SENTINEL_BREAKER_SWEEP_SCHEDULE"); val != "" {
		cfg.Breaker.SweepSchedule = val
	}

	// Canary overrides
	if val := os.Getenv("SENTINEL_CANARY_INITIAL_PERCENTAGE"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Canary.InitialPercentage = i
		}
	}
	if val := os.Getenv("SENTINEL_CANARY_PROMOTION_THRESHOLD"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Canary.PromotionThreshold = f
		}
	}
	if val := os.Getenv("SENTINEL_CANARY_ROLLBACK_THRESHOLD"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Canary.RollbackThreshold = f
		}
	}
	if val := os.Getenv("SENTINEL_CANARY_MIN_REQUESTS_FOR_PROMOTION"); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Canary.MinRequestsForPromotion = i
		}
	}
	if val := os.Getenv("SENTINEL_CANARY_EVALUATION_WINDOW"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Canary.EvaluationWindow = d
		}
	}
	if val := os.Getenv("SENTINEL_CANARY_EVALUATE_SCHEDULE"); val != "" {
		cfg.Canary.EvaluateSchedule = val
	}

	// Outcome overrides
	if val := os.Getenv("SENTINEL_OUTCOME_BACKEND"); val != "" {
		cfg.Outcome.Backend = val
	}
	if val := os.Getenv("SENTINEL_OUTCOME_SQLITE_PATH"); val != "" {
		cfg.Outcome.SQLite.Path = val
	}
	if val := os.Getenv("SENTINEL_OUTCOME_MEMORY_MAX_EVENTS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Outcome.Memory.MaxEvents = i
		}
	}
	if val := os.Getenv("SENTINEL_OUTCOME_RECORDER_BUFFER"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Outcome.Recorder.Buffer = i
		}
	}
	if val := os.Getenv("SENTINEL_OUTCOME_RECORDER_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Outcome.Recorder.WriteTimeout = d
		}
	}

	// Analytics overrides
	if val := os.Getenv("SENTINEL_ANALYTICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Analytics.Enabled = &b
		}
	}
	if val := os.Getenv("SENTINEL_ANALYTICS_SCHEDULE"); val != "" {
		cfg.Analytics.Schedule = val
	}
	if val := os.Getenv("SENTINEL_ANALYTICS_WINDOW"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Analytics.Window = d
		}
	}

	// Telemetry overrides
	if val := os.Getenv("SENTINEL_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("SENTINEL_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("SENTINEL_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = &b
		}
	}
	if val := os.Getenv("SENTINEL_TELEMETRY_METRICS_LISTEN_ADDRESS"); val != "" {
		cfg.Telemetry.Metrics.ListenAddress = val
	}
	if val := os.Getenv("SENTINEL_TELEMETRY_METRICS_PATH"); val != "" {
		cfg.Telemetry.Metrics.Path = val
	}
}
