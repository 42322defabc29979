package canary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Evaluator runs the promotion/rollback decision for every registered
// canary on a cron schedule. Evaluation ticks are independent of the
// request path; a tick failure is logged and retried on the next tick,
// never fatal.
type Evaluator struct {
	controller *Controller
	schedule   string
	cron       *cron.Cron
	mu         sync.Mutex
	logger     *slog.Logger
	running    bool
}

// NewEvaluator creates a scheduled evaluator. Common schedules:
//
//   - "@every 5m"  - every five minutes (the default tick)
//   - "*/1 * * * *" - every minute
func NewEvaluator(controller *Controller, schedule string) *Evaluator {
	return &Evaluator{
		controller: controller,
		schedule:   schedule,
		cron:       cron.New(),
		logger:     slog.Default().With("component", "enforcement.canary.evaluator"),
	}
}

// Start begins scheduled evaluation. If the schedule is empty the
// evaluator does nothing. Stops cleanly when the context is cancelled:
// the in-flight policy evaluation completes atomically, then the tick
// loop exits.
func (e *Evaluator) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.schedule == "" {
		e.logger.Info("canary evaluation schedule not configured, skipping evaluator")
		return nil
	}

	if _, err := cron.ParseStandard(e.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", e.schedule, err)
	}

	_, err := e.cron.AddFunc(e.schedule, func() {
		e.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule canary evaluation: %w", err)
	}

	e.cron.Start()
	e.running = true
	e.logger.Info("canary evaluator started", "schedule", e.schedule)

	go func() {
		<-ctx.Done()
		e.Stop()
	}()
	return nil
}

// RunOnce evaluates every registered canary once. Exported so operator
// tooling can force an evaluation pass.
func (e *Evaluator) RunOnce(ctx context.Context) {
	for _, policyID := range e.controller.PolicyIDs() {
		if ctx.Err() != nil {
			return
		}
		change, err := e.controller.Evaluate(ctx, policyID)
		switch {
		case errors.Is(err, ErrConflict):
			// A manual override won the race; next tick re-evaluates.
			e.logger.Debug("canary evaluation superseded by concurrent change", "policy_id", policyID)
		case err != nil:
			e.logger.Error("canary evaluation failed", "policy_id", policyID, "error", err)
		case change != nil:
			e.logger.Info("canary transition applied",
				"policy_id", policyID,
				"from", change.FromPercentage,
				"to", change.ToPercentage,
				"triggered_by", change.TriggeredBy,
			)
		}
	}
}

// Stop halts the tick loop and waits for a running pass to finish.
func (e *Evaluator) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cron != nil && e.running {
		ctx := e.cron.Stop()
		<-ctx.Done()
		e.running = false
		e.logger.Info("canary evaluator stopped")
	}
}
