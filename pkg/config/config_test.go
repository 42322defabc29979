package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

// ============================================================
// Loading
// ============================================================

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_address: "0.0.0.0:9090"
  read_timeout: 10s
enforcement:
  mode: "ENFORCING"
  fail_closed: true
policy:
  file_path: "/etc/sentinel/policies.yaml"
  watch: true
breaker:
  error_threshold: 25
canary:
  initial_percentage: 5
outcome:
  backend: "memory"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9090" {
		t.Errorf("unexpected listen address %q", cfg.Server.ListenAddress)
	}
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("unexpected read timeout %v", cfg.Server.ReadTimeout)
	}
	if cfg.Enforcement.Mode != "ENFORCING" || !cfg.Enforcement.FailClosed {
		t.Errorf("unexpected enforcement settings: %+v", cfg.Enforcement)
	}
	if !cfg.Policy.Watch {
		t.Error("expected watch mode enabled")
	}
	if cfg.Breaker.ErrorThreshold != 25 {
		t.Errorf("unexpected breaker threshold %v", cfg.Breaker.ErrorThreshold)
	}
	if cfg.Outcome.Backend != "memory" {
		t.Errorf("unexpected outcome backend %q", cfg.Outcome.Backend)
	}

	// Unset fields pick up defaults.
	if cfg.Server.WriteTimeout != DefaultWriteTimeout {
		t.Errorf("expected default write timeout, got %v", cfg.Server.WriteTimeout)
	}
	if cfg.Canary.PromotionThreshold != DefaultCanaryPromotionThreshold {
		t.Errorf("expected default promotion threshold, got %v", cfg.Canary.PromotionThreshold)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a mapping")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestLoadConfig_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
enforcement:
  mode: "PANIC"
`)
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected validation error")
	}

	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(verr.Errors) != 1 || verr.Errors[0].Field != "enforcement.mode" {
		t.Errorf("unexpected field errors: %+v", verr.Errors)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := Validate(cfg); err != nil {
		t.Fatalf("default configuration must validate: %v", err)
	}
	if cfg.Enforcement.Mode != DefaultEnforcementMode {
		t.Errorf("unexpected default mode %q", cfg.Enforcement.Mode)
	}
	if cfg.Analytics.Enabled == nil || !*cfg.Analytics.Enabled {
		t.Error("analytics should default to enabled")
	}
	if cfg.Telemetry.Metrics.Enabled == nil || !*cfg.Telemetry.Metrics.Enabled {
		t.Error("metrics should default to enabled")
	}
}

// ============================================================
// Defaults
// ============================================================

func TestApplyDefaults_Idempotent(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)
	first := cfg
	ApplyDefaults(&cfg)

	if cfg.Server != first.Server || cfg.Breaker != first.Breaker || cfg.Canary != first.Canary {
		t.Error("second ApplyDefaults changed the configuration")
	}
}

func TestApplyDefaults_RespectsExplicitFalse(t *testing.T) {
	enabled := false
	cfg := Config{
		Analytics: AnalyticsConfig{Enabled: &enabled},
		Telemetry: TelemetryConfig{Metrics: MetricsConfig{Enabled: &enabled}},
	}
	ApplyDefaults(&cfg)

	if *cfg.Analytics.Enabled {
		t.Error("explicit analytics.enabled=false overwritten by defaults")
	}
	if *cfg.Telemetry.Metrics.Enabled {
		t.Error("explicit metrics.enabled=false overwritten by defaults")
	}
}

// ============================================================
// Validation
// ============================================================

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Enforcement.Mode = "MAYBE"
	cfg.Breaker.ErrorThreshold = 150
	cfg.Canary.InitialPercentage = 7
	cfg.Outcome.Backend = "postgres"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(verr.Errors) != 4 {
		t.Fatalf("expected 4 field errors, got %d: %v", len(verr.Errors), verr.Errors)
	}
	if !strings.Contains(verr.Error(), "4 errors") {
		t.Errorf("message should report the error count: %q", verr.Error())
	}
}

func TestValidate_Fields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad listen address", func(c *Config) { c.Server.ListenAddress = "no-port" }, "server.listen_address"},
		{"zero shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = 0 }, "server.shutdown_timeout"},
		{"empty policy path", func(c *Config) { c.Policy.FilePath = "" }, "policy.file_path"},
		{"negative breaker threshold", func(c *Config) { c.Breaker.ErrorThreshold = -1 }, "breaker.error_threshold"},
		{"bad sweep schedule", func(c *Config) { c.Breaker.SweepSchedule = "often" }, "breaker.sweep_schedule"},
		{"off-ladder initial percentage", func(c *Config) { c.Canary.InitialPercentage = 33 }, "canary.initial_percentage"},
		{"inverted canary thresholds", func(c *Config) {
			c.Canary.PromotionThreshold = 80
			c.Canary.RollbackThreshold = 90
		}, "canary.promotion_threshold"},
		{"sqlite without path", func(c *Config) { c.Outcome.SQLite.Path = "" }, "outcome.sqlite.path"},
		{"zero recorder buffer", func(c *Config) { c.Outcome.Recorder.Buffer = 0 }, "outcome.recorder.buffer"},
		{"bad analytics schedule", func(c *Config) { c.Analytics.Schedule = "1 2 3" }, "analytics.schedule"},
		{"inverted cut points", func(c *Config) { c.Simulator.HighCutPoint = 2 }, "simulator.high_cut_point"},
		{"bad log level", func(c *Config) { c.Telemetry.Logging.Level = "trace" }, "telemetry.logging.level"},
		{"bad metrics path", func(c *Config) { c.Telemetry.Metrics.Path = "metrics" }, "telemetry.metrics.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected a validation error")
			}
			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %T", err)
			}
			found := false
			for _, fe := range verr.Errors {
				if fe.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected an error on %s, got %v", tt.field, verr.Errors)
			}
		})
	}
}

func TestValidate_MetricsDisabledSkipsEndpointChecks(t *testing.T) {
	cfg := Default()
	disabled := false
	cfg.Telemetry.Metrics.Enabled = &disabled
	cfg.Telemetry.Metrics.ListenAddress = "not-an-address"
	cfg.Telemetry.Metrics.Path = "metrics"

	if err := Validate(cfg); err != nil {
		t.Fatalf("disabled metrics should skip endpoint validation: %v", err)
	}
}

// ============================================================
// Environment overrides
// ============================================================

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
enforcement:
  mode: "SHADOW"
outcome:
  backend: "sqlite"
`)

	t.Setenv("SENTINEL_ENFORCEMENT_MODE", "ENFORCING")
	t.Setenv("SENTINEL_ENFORCEMENT_FAIL_CLOSED", "true")
	t.Setenv("SENTINEL_OUTCOME_BACKEND", "memory")
	t.Setenv("SENTINEL_BREAKER_WINDOW", "30m")
	t.Setenv("SENTINEL_ANALYTICS_ENABLED", "false")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides failed: %v", err)
	}

	if cfg.Enforcement.Mode != "ENFORCING" {
		t.Errorf("env override for mode not applied: %q", cfg.Enforcement.Mode)
	}
	if !cfg.Enforcement.FailClosed {
		t.Error("env override for fail_closed not applied")
	}
	if cfg.Outcome.Backend != "memory" {
		t.Errorf("env override for backend not applied: %q", cfg.Outcome.Backend)
	}
	if cfg.Breaker.Window != 30*time.Minute {
		t.Errorf("env override for window not applied: %v", cfg.Breaker.Window)
	}
	if cfg.Analytics.Enabled == nil || *cfg.Analytics.Enabled {
		t.Error("env override for analytics.enabled not applied")
	}
}

func TestLoadConfigWithEnvOverrides_RevalidatesAfterOverride(t *testing.T) {
	path := writeConfig(t, "")
	t.Setenv("SENTINEL_ENFORCEMENT_MODE", "SOMETIMES")

	if _, err := LoadConfigWithEnvOverrides(path); err == nil {
		t.Fatal("expected validation error for invalid env override")
	}
}

func TestLoadConfigWithEnvOverrides_IgnoresUnparsableValues(t *testing.T) {
	path := writeConfig(t, "")
	t.Setenv("SENTINEL_BREAKER_ERROR_THRESHOLD", "lots")
	t.Setenv("SENTINEL_POLICY_WATCH", "definitely")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("unparsable overrides should be ignored: %v", err)
	}
	if cfg.Breaker.ErrorThreshold != DefaultBreakerErrorThreshold {
		t.Errorf("unparsable float override was applied: %v", cfg.Breaker.ErrorThreshold)
	}
	if cfg.Policy.Watch {
		t.Error("unparsable bool override was applied")
	}
}

// ============================================================
// Singleton
// ============================================================

func TestSetAndGetConfig(t *testing.T) {
	prev := GetConfig()
	defer SetConfig(prev)

	cfg := Default()
	cfg.Server.ListenAddress = "127.0.0.1:7777"
	SetConfig(cfg)

	got := GetConfig()
	if got == nil || got.Server.ListenAddress != "127.0.0.1:7777" {
		t.Errorf("unexpected global config: %+v", got)
	}
}

func TestReloadConfig_KeepsPreviousOnFailure(t *testing.T) {
	prev := GetConfig()
	defer SetConfig(prev)

	cfg := Default()
	SetConfig(cfg)

	if err := ReloadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected reload error for missing file")
	}
	if GetConfig() != cfg {
		t.Error("failed reload must not replace the active configuration")
	}
}
