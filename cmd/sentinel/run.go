package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"veridion-hq/sentinel/pkg/analytics"
	"veridion-hq/sentinel/pkg/cli"
	"veridion-hq/sentinel/pkg/config"
	"veridion-hq/sentinel/pkg/enforcement/breaker"
	"veridion-hq/sentinel/pkg/enforcement/canary"
	"veridion-hq/sentinel/pkg/enforcement/engine"
	"veridion-hq/sentinel/pkg/enforcement/mode"
	"veridion-hq/sentinel/pkg/enforcement/shadow"
	"veridion-hq/sentinel/pkg/enforcement/simulator"
	"veridion-hq/sentinel/pkg/notify"
	"veridion-hq/sentinel/pkg/outcome"
	"veridion-hq/sentinel/pkg/policy"
	"veridion-hq/sentinel/pkg/server"
	"veridion-hq/sentinel/pkg/telemetry/logging"
	"veridion-hq/sentinel/pkg/telemetry/metrics"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	modeOverride  string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Sentinel decision server",
	Long: `Start the Sentinel decision server with the specified configuration.

The server listens on the configured address and evaluates agent action
requests through the policy store, circuit breakers, canary controller,
and enforcement mode switch, recording one outcome event per policy.

Examples:
  # Start with default config
  sentinel run

  # Start with custom config
  sentinel run --config /etc/sentinel/config.yaml

  # Override listen address
  sentinel run --listen 0.0.0.0:8080

  # Start in shadow mode regardless of the configured mode
  sentinel run --mode SHADOW

  # Validate config without starting the server
  sentinel run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&runFlags.modeOverride, "mode", "", "override enforcement mode (SHADOW, DRY_RUN, ENFORCING)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if runFlags.modeOverride != "" {
		cfg.Enforcement.Mode = runFlags.modeOverride
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	initialMode, err := mode.Parse(cfg.Enforcement.Mode)
	if err != nil {
		return cli.NewConfigError("enforcement.mode", err.Error())
	}

	if _, err := logging.Setup(logging.Config{
		Level:     cfg.Telemetry.Logging.Level,
		Format:    cfg.Telemetry.Logging.Format,
		AddSource: cfg.Telemetry.Logging.AddSource,
	}); err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	// Print startup banner
	printBanner(cfg)

	// Outcome storage
	slog.Info("initializing outcome storage", "backend", cfg.Outcome.Backend)
	var backend outcome.Backend
	switch cfg.Outcome.Backend {
	case "sqlite":
		backend, err = outcome.NewSQLiteBackend(&outcome.SQLiteConfig{
			Path:         cfg.Outcome.SQLite.Path,
			MaxOpenConns: cfg.Outcome.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.Outcome.SQLite.MaxIdleConns,
			BusyTimeout:  cfg.Outcome.SQLite.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to create SQLite backend: %w", err)
		}
	case "memory":
		backend = outcome.NewMemoryBackendWithConfig(outcome.MemoryBackendConfig{
			MaxEvents: cfg.Outcome.Memory.MaxEvents,
		})
	default:
		return fmt.Errorf("unsupported outcome backend: %s", cfg.Outcome.Backend)
	}
	defer backend.Close()

	recorder := outcome.NewRecorder(backend, &outcome.RecorderConfig{
		Buffer:       cfg.Outcome.Recorder.Buffer,
		WriteTimeout: cfg.Outcome.Recorder.WriteTimeout,
	})
	defer recorder.Close()
	fmt.Println("✓ Outcome store initialized")

	notifier := notify.NewLogNotifier(nil)

	// Enforcement core
	modeSwitch := mode.NewSwitch(initialMode, recorder, notifier)
	brk := breaker.New(recorder, notifier)
	can := canary.NewController(recorder, notifier)
	shadowEval := shadow.NewEvaluator(backend, notifier)

	// Metrics
	var collector *metrics.Collector
	var engineMetrics engine.Metrics
	if cfg.Telemetry.Metrics.Enabled != nil && *cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(metrics.Config{
			Enabled:       true,
			Namespace:     cfg.Telemetry.Metrics.Namespace,
			Subsystem:     cfg.Telemetry.Metrics.Subsystem,
			ListenAddress: cfg.Telemetry.Metrics.ListenAddress,
		}, nil)
		engineMetrics = collector

		brk.SetTransitionObserver(func(policyID string, from, to breaker.State) {
			collector.SetBreakerState(policyID, string(to))
		})
		can.SetChangeObserver(func(policyID string, pct int) {
			collector.SetCanaryPercentage(policyID, pct)
		})
	}

	// Policies
	slog.Info("loading policies", "path", cfg.Policy.FilePath)
	store := policy.NewStore()
	src := policy.NewFileSource(cfg.Policy.FilePath, nil)
	policies, err := src.Load()
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}
	if err := store.Replace(policies); err != nil {
		return fmt.Errorf("failed to install policies: %w", err)
	}
	syncSafety(policies, brk, can, cfg)
	src.SetOnReload(func(ps []*policy.Policy) {
		syncSafety(ps, brk, can, cfg)
	})
	fmt.Printf("✓ Policies loaded (%d policies)\n", len(policies))

	eng := engine.New(store, brk, can, modeSwitch, shadowEval, recorder, engineMetrics, engine.Config{
		FailClosed: cfg.Enforcement.FailClosed,
	})

	sim := simulator.New(backend, simulator.CutPoints{
		Medium:   cfg.Simulator.MediumCutPoint,
		High:     cfg.Simulator.HighCutPoint,
		Critical: cfg.Simulator.CriticalCutPoint,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Policy hot reload
	if cfg.Policy.Watch {
		go func() {
			if err := src.Watch(ctx, store); err != nil {
				slog.Warn("policy watcher stopped", "error", err)
			}
		}()
	}

	// Background schedulers
	sweeper := breaker.NewSweeper(brk, cfg.Breaker.SweepSchedule)
	if err := sweeper.Start(ctx); err != nil {
		return fmt.Errorf("failed to start breaker sweeper: %w", err)
	}
	defer sweeper.Stop()

	evaluator := canary.NewEvaluator(can, cfg.Canary.EvaluateSchedule)
	if err := evaluator.Start(ctx); err != nil {
		return fmt.Errorf("failed to start canary evaluator: %w", err)
	}
	defer evaluator.Stop()

	var aggregator *analytics.Aggregator
	if cfg.Analytics.Enabled != nil && *cfg.Analytics.Enabled {
		aggregator = analytics.NewAggregator(backend, cfg.Analytics.Window)
		scheduler := analytics.NewScheduler(aggregator, cfg.Analytics.Schedule)
		if err := scheduler.Start(ctx); err != nil {
			slog.Warn("failed to start analytics scheduler", "error", err)
		} else {
			defer scheduler.Stop()
		}
	}

	// Metrics scrape endpoint
	if collector != nil {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
		metricsSrv := &http.Server{
			Addr:    cfg.Telemetry.Metrics.ListenAddress,
			Handler: metricsMux,
		}
		go func() {
			slog.Info("starting metrics endpoint", "address", metricsSrv.Addr, "path", cfg.Telemetry.Metrics.Path)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics endpoint failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			metricsSrv.Shutdown(shutdownCtx)
		}()

		go trackDroppedRecords(ctx, recorder, collector)
	}

	// HTTP decision server
	slog.Info("creating HTTP server")
	srv := server.New(&cfg.Server, server.Components{
		Engine:    eng,
		Store:     store,
		Breaker:   brk,
		Canary:    can,
		Mode:      modeSwitch,
		Shadow:    shadowEval,
		Simulator: sim,
		Backend:   backend,
		Analytics: aggregator,
	})

	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting HTTP server",
			"address", cfg.Server.ListenAddress,
			"mode", modeSwitch.Get(),
		)
		if err := srv.Start(ctx); err != nil {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	fmt.Println()
	fmt.Printf("✓ Server listening on %s\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Enforcement mode: %s\n", modeSwitch.Get())
	fmt.Printf("✓ Health endpoint: http://%s/health\n", cfg.Server.ListenAddress)
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for shutdown signal or server error
	sigChan := cli.WaitForShutdown()

	select {
	case err := <-errChan:
		return cli.NewCommandError("run", err)
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal %s, shutting down gracefully...\n", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown failed", "error", err)
			return cli.NewCommandError("run", err)
		}

		fmt.Println("✓ Server stopped")
		return nil
	}
}

// syncSafety applies per-policy breaker and canary settings, falling
// back to the global defaults for unset fields. Called at startup and
// again after every successful policy reload.
func syncSafety(policies []*policy.Policy, brk *breaker.Breaker, can *canary.Controller, cfg *config.Config) {
	for _, p := range policies {
		bc := breaker.Config{
			ErrorThreshold: cfg.Breaker.ErrorThreshold,
			Window:         cfg.Breaker.Window,
			Cooldown:       cfg.Breaker.Cooldown,
		}
		if p.Breaker.ErrorThreshold > 0 {
			bc.ErrorThreshold = p.Breaker.ErrorThreshold
		}
		if p.Breaker.WindowMinutes > 0 {
			bc.Window = time.Duration(p.Breaker.WindowMinutes) * time.Minute
		}
		if p.Breaker.CooldownMinutes > 0 {
			bc.Cooldown = time.Duration(p.Breaker.CooldownMinutes) * time.Minute
		}
		if p.Breaker.Enabled != nil && !*p.Breaker.Enabled {
			// The breaker opens only when the error rate exceeds the
			// threshold, so 100 can never trip.
			bc.ErrorThreshold = 100
		}
		if err := brk.Configure(p.ID, bc); err != nil {
			slog.Warn("failed to configure breaker", "policy_id", p.ID, "error", err)
		}

		if !p.Canary.Enabled {
			can.Deregister(p.ID)
			continue
		}
		cc := canary.Config{
			InitialPercentage:       cfg.Canary.InitialPercentage,
			PromotionThreshold:      cfg.Canary.PromotionThreshold,
			RollbackThreshold:       cfg.Canary.RollbackThreshold,
			MinRequestsForPromotion: cfg.Canary.MinRequestsForPromotion,
			EvaluationWindow:        cfg.Canary.EvaluationWindow,
			AutoPromote:             true,
			AutoRollback:            true,
		}
		if p.Canary.InitialPercentage > 0 {
			cc.InitialPercentage = p.Canary.InitialPercentage
		}
		if p.Canary.PromotionThreshold > 0 {
			cc.PromotionThreshold = p.Canary.PromotionThreshold
		}
		if p.Canary.RollbackThreshold > 0 {
			cc.RollbackThreshold = p.Canary.RollbackThreshold
		}
		if p.Canary.MinRequestsForPromotion > 0 {
			cc.MinRequestsForPromotion = p.Canary.MinRequestsForPromotion
		}
		if p.Canary.EvaluationWindowMinutes > 0 {
			cc.EvaluationWindow = time.Duration(p.Canary.EvaluationWindowMinutes) * time.Minute
		}
		if p.Canary.AutoPromoteEnabled != nil {
			cc.AutoPromote = *p.Canary.AutoPromoteEnabled
		}
		if p.Canary.AutoRollbackEnabled != nil {
			cc.AutoRollback = *p.Canary.AutoRollbackEnabled
		}
		if err := can.Register(p.ID, cc); err != nil {
			slog.Warn("failed to register canary", "policy_id", p.ID, "error", err)
		}
	}
}

// trackDroppedRecords periodically folds the recorder's cumulative drop
// count into the metrics counter.
func trackDroppedRecords(ctx context.Context, recorder *outcome.Recorder, collector *metrics.Collector) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	var last int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dropped := recorder.Dropped()
			if delta := dropped - last; delta > 0 {
				collector.AddRecordsDropped(float64(delta))
				last = dropped
			}
		}
	}
}

func printBanner(cfg *config.Config) {
	fmt.Printf("Veridion Sentinel v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	slog.Debug("enforcement configured",
		"mode", cfg.Enforcement.Mode,
		"fail_closed", cfg.Enforcement.FailClosed,
	)
	slog.Debug("policy source", "path", cfg.Policy.FilePath, "watch", cfg.Policy.Watch)
	slog.Debug("outcome backend", "backend", cfg.Outcome.Backend)
}
