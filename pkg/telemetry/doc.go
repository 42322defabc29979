// Package telemetry groups the observability layers of Veridion
// Sentinel.
//
// # Components
//
//   - logging: structured slog logging shared by every component
//   - metrics: Prometheus metrics for decisions, breakers, and canaries
//
// Both are configured from the telemetry section of the configuration:
//
//	logger, err := logging.Setup(cfg.Telemetry.Logging)
//	collector := metrics.NewCollector(metrics.DefaultConfig(), nil)
//	http.Handle("/metrics", collector.Handler())
//
// The decision path is in-memory only, so the collector is built for
// sub-microsecond updates on the hot path.
package telemetry
