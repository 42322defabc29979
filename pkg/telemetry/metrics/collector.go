// Package metrics provides Prometheus metrics for the enforcement core:
// decisions, policy evaluations, circuit breaker states, and canary
// rollout percentages. Metrics are grouped into per-concern structs and
// registered on a private registry exposed over HTTP.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"veridion-hq/sentinel/pkg/enforcement/engine"
	"veridion-hq/sentinel/pkg/enforcement/mode"
)

// Config contains metrics configuration.
type Config struct {
	// Enabled enables metric collection. Default: true
	Enabled bool `yaml:"enabled"`

	// Namespace is the metric namespace prefix. Default: "sentinel"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem. Default: "enforcement"
	Subsystem string `yaml:"subsystem"`

	// ListenAddress is where the scrape endpoint listens.
	// Default: "127.0.0.1:9464"
	ListenAddress string `yaml:"listen_address"`
}

// DefaultConfig returns the default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		Namespace:     "sentinel",
		Subsystem:     "enforcement",
		ListenAddress: "127.0.0.1:9464",
	}
}

// Collector owns all enforcement metrics.
type Collector struct {
	config   Config
	registry *prometheus.Registry

	decisionsTotal   *prometheus.CounterVec
	decisionDuration prometheus.Histogram
	policyEvalsTotal *prometheus.CounterVec

	breakerState       *prometheus.GaugeVec
	breakerTransitions *prometheus.CounterVec

	canaryPercentage  *prometheus.GaugeVec
	canaryTransitions *prometheus.CounterVec

	shadowAlertsTotal prometheus.Counter
	recordsDropped    prometheus.Counter
}

// NewCollector creates and registers all enforcement metrics. If
// registry is nil a new private registry is used.
func NewCollector(cfg Config, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		config:   cfg,
		registry: registry,

		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decisions_total",
				Help:      "Total decisions by verdict and enforcement mode",
			},
			[]string{"verdict", "mode"},
		),

		decisionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decision_duration_seconds",
				Help:      "Duration of the full per-request decision",
				// The decision path is in-memory only (< 1ms typical).
				Buckets: prometheus.ExponentialBuckets(0.000001, 2, 15),
			},
		),

		policyEvalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_evaluations_total",
				Help:      "Per-policy evaluations by result",
			},
			[]string{"policy_id", "result"},
		),

		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state per policy (0=CLOSED, 1=HALF_OPEN, 2=OPEN)",
			},
			[]string{"policy_id"},
		),

		breakerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "circuit_breaker_transitions_total",
				Help:      "Circuit breaker transitions per policy and target state",
			},
			[]string{"policy_id", "to"},
		),

		canaryPercentage: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "canary_traffic_percentage",
				Help:      "Current canary traffic percentage per policy",
			},
			[]string{"policy_id"},
		),

		canaryTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "canary_transitions_total",
				Help:      "Canary percentage changes per policy",
			},
			[]string{"policy_id"},
		),

		shadowAlertsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "shadow_alerts_total",
				Help:      "Shadow-mode would-block notifications fired",
			},
		),

		recordsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "outcome_records_dropped_total",
				Help:      "Outcome records dropped because the async buffer was full",
			},
		),
	}

	registry.MustRegister(
		c.decisionsTotal,
		c.decisionDuration,
		c.policyEvalsTotal,
		c.breakerState,
		c.breakerTransitions,
		c.canaryPercentage,
		c.canaryTransitions,
		c.shadowAlertsTotal,
		c.recordsDropped,
	)
	return c
}

// RecordDecision records one completed decision.
func (c *Collector) RecordDecision(verdict engine.Verdict, m mode.Mode, duration time.Duration) {
	c.decisionsTotal.WithLabelValues(string(verdict), string(m)).Inc()
	c.decisionDuration.Observe(duration.Seconds())
}

// RecordPolicyEvaluation records one per-policy evaluation.
func (c *Collector) RecordPolicyEvaluation(policyID string, wouldBlock, failed bool) {
	result := "allow"
	switch {
	case failed:
		result = "error"
	case wouldBlock:
		result = "block"
	}
	c.policyEvalsTotal.WithLabelValues(policyID, result).Inc()
}

// SetBreakerState updates the breaker state gauge for a policy.
func (c *Collector) SetBreakerState(policyID string, state string) {
	var v float64
	switch state {
	case "HALF_OPEN":
		v = 1
	case "OPEN":
		v = 2
	}
	c.breakerState.WithLabelValues(policyID).Set(v)
	c.breakerTransitions.WithLabelValues(policyID, state).Inc()
}

// SetCanaryPercentage updates the canary gauge for a policy.
func (c *Collector) SetCanaryPercentage(policyID string, pct int) {
	c.canaryPercentage.WithLabelValues(policyID).Set(float64(pct))
	c.canaryTransitions.WithLabelValues(policyID).Inc()
}

// ShadowAlertFired counts one shadow notification.
func (c *Collector) ShadowAlertFired() {
	c.shadowAlertsTotal.Inc()
}

// AddRecordsDropped synchronizes the dropped-records counter with the
// recorder's running total.
func (c *Collector) AddRecordsDropped(n float64) {
	c.recordsDropped.Add(n)
}

// Handler returns the HTTP handler serving the scrape endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
