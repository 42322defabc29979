// Package analytics recomputes the aggregate views behind operator
// dashboards from the outcome event stream. The original platform
// derived these with database-side triggers and materialized views;
// here they are explicit scheduled jobs over the outcome log so the
// logic is unit-testable without a database.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"veridion-hq/sentinel/pkg/outcome"
)

// PolicySummary is the aggregate health view for one policy over the
// rollup window.
type PolicySummary struct {
	PolicyID      string    `json:"policy_id"`
	TotalRequests int64     `json:"total_requests"`
	WouldBlock    int64     `json:"would_block"`
	Enforced      int64     `json:"enforced"`
	EvalFailures  int64     `json:"eval_failures"`
	FailureRate   float64   `json:"failure_rate"`
	WindowStart   time.Time `json:"window_start"`
	WindowEnd     time.Time `json:"window_end"`
	ComputedAt    time.Time `json:"computed_at"`
}

// Aggregator computes and caches policy summaries.
type Aggregator struct {
	backend outcome.Backend
	window  time.Duration
	logger  *slog.Logger
	clock   func() time.Time

	mu        sync.RWMutex
	summaries map[string]*PolicySummary
}

// NewAggregator creates an aggregator over the given window (24h when
// zero).
func NewAggregator(backend outcome.Backend, window time.Duration) *Aggregator {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Aggregator{
		backend:   backend,
		window:    window,
		logger:    slog.Default().With("component", "analytics"),
		clock:     time.Now,
		summaries: make(map[string]*PolicySummary),
	}
}

// Recompute rebuilds all policy summaries from the outcome log.
func (a *Aggregator) Recompute(ctx context.Context) error {
	now := a.clock()
	since := now.Add(-a.window)

	events, err := a.backend.Query(ctx, outcome.Filter{Since: since, Until: now})
	if err != nil {
		return fmt.Errorf("failed to load outcomes for rollup: %w", err)
	}

	next := make(map[string]*PolicySummary)
	for _, ev := range events {
		s := next[ev.PolicyID]
		if s == nil {
			s = &PolicySummary{
				PolicyID:    ev.PolicyID,
				WindowStart: since,
				WindowEnd:   now,
				ComputedAt:  now,
			}
			next[ev.PolicyID] = s
		}
		s.TotalRequests++
		if ev.WouldBlock {
			s.WouldBlock++
		}
		if ev.Enforced {
			s.Enforced++
		}
		if ev.EvalFailed {
			s.EvalFailures++
		}
	}
	for _, s := range next {
		if s.TotalRequests > 0 {
			s.FailureRate = float64(s.EvalFailures) / float64(s.TotalRequests) * 100
		}
	}

	a.mu.Lock()
	a.summaries = next
	a.mu.Unlock()

	a.logger.Info("aggregate views recomputed",
		"policy_count", len(next),
		"event_count", len(events),
	)
	return nil
}

// Summary returns the cached summary for a policy, or nil when the
// policy has no traffic in the window.
func (a *Aggregator) Summary(policyID string) *PolicySummary {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.summaries[policyID]
}

// Summaries returns all cached summaries.
func (a *Aggregator) Summaries() []*PolicySummary {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*PolicySummary, 0, len(a.summaries))
	for _, s := range a.summaries {
		out = append(out, s)
	}
	return out
}

// Scheduler runs Recompute on a cron schedule.
type Scheduler struct {
	aggregator *Aggregator
	schedule   string
	cron       *cron.Cron
	mu         sync.Mutex
	logger     *slog.Logger
	running    bool
}

// NewScheduler creates a rollup scheduler.
func NewScheduler(aggregator *Aggregator, schedule string) *Scheduler {
	return &Scheduler{
		aggregator: aggregator,
		schedule:   schedule,
		cron:       cron.New(),
		logger:     slog.Default().With("component", "analytics.scheduler"),
	}
}

// Start begins scheduled rollups. An empty schedule disables the job.
// Rollup failures are logged and retried on the next tick.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("rollup schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	_, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.aggregator.Recompute(ctx); err != nil {
			s.logger.Error("scheduled rollup failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule rollup: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("analytics scheduler started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts the scheduler and waits for a running rollup to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.running = false
		s.logger.Info("analytics scheduler stopped")
	}
}
