package canary

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"veridion-hq/sentinel/pkg/notify"
	"veridion-hq/sentinel/pkg/outcome"
)

// Controller is the per-policy canary rollout engine: it tracks each
// policy's traffic percentage, accumulates cohort outcomes, and promotes
// or rolls back traffic along the fixed ladder.
//
// Per-policy state is independently locked (arena-plus-index). The
// scheduled evaluator and manual overrides coordinate through an
// optimistic version counter: the evaluator snapshots state, computes
// its decision, and commits only if the version is unchanged, retrying
// on conflict. Manual operations bump the version, so an override
// issued mid-evaluation always wins.
type Controller struct {
	mu      sync.RWMutex
	entries map[string]*entry

	sink     *outcome.Recorder
	notifier notify.Notifier
	logger   *slog.Logger
	clock    func() time.Time

	onChange func(policyID string, pct int)
}

type sample struct {
	at        time.Time
	inCohort  bool
	succeeded bool
}

type entry struct {
	mu        sync.Mutex
	version   uint64
	config    Config
	pct       int
	samples   []sample
	evaluated time.Time
}

// NewController creates a canary controller. sink and notifier may be
// nil.
func NewController(sink *outcome.Recorder, notifier notify.Notifier) *Controller {
	return &Controller{
		entries:  make(map[string]*entry),
		sink:     sink,
		notifier: notifier,
		logger:   slog.Default().With("component", "enforcement.canary"),
		clock:    time.Now,
	}
}

// SetChangeObserver registers a callback invoked after every committed
// percentage change. Must be called before concurrent use.
func (c *Controller) SetChangeObserver(fn func(policyID string, pct int)) {
	c.onChange = fn
}

// Register enables canary rollout for a policy. Invalid configurations
// are rejected before any state changes. Re-registering updates the
// configuration but preserves the current traffic percentage.
func (c *Controller) Register(policyID string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	e, ok := c.entries[policyID]
	if !ok {
		e = &entry{config: cfg, pct: cfg.InitialPercentage}
		c.entries[policyID] = e
		c.mu.Unlock()
		c.logger.Info("canary registered",
			"policy_id", policyID,
			"initial_percentage", cfg.InitialPercentage,
		)
		return nil
	}
	c.mu.Unlock()

	e.mu.Lock()
	e.config = cfg
	e.version++
	e.mu.Unlock()
	return nil
}

// Deregister disables canary rollout for a policy. The policy reverts
// to applying to all traffic. Unknown policies are a no-op.
func (c *Controller) Deregister(policyID string) {
	c.mu.Lock()
	_, ok := c.entries[policyID]
	delete(c.entries, policyID)
	c.mu.Unlock()
	if ok {
		c.logger.Info("canary deregistered", "policy_id", policyID)
	}
}

// Enabled reports whether a canary is registered for the policy.
func (c *Controller) Enabled(policyID string) bool {
	c.mu.RLock()
	_, ok := c.entries[policyID]
	c.mu.RUnlock()
	return ok
}

// InCohort reports whether an agent's traffic falls inside the policy's
// canary cohort at the current traffic percentage.
//
// Assignment is sticky: a deterministic hash of (policy id, agent id)
// modulo 100 compared against the percentage, so a given agent lands
// consistently in canary or baseline within an evaluation window, and
// raising the percentage only ever adds agents to the cohort.
func (c *Controller) InCohort(policyID, agentID string) bool {
	c.mu.RLock()
	e, ok := c.entries[policyID]
	c.mu.RUnlock()
	if !ok {
		// No canary: the whole population gets the active config.
		return true
	}

	e.mu.Lock()
	pct := e.pct
	e.mu.Unlock()

	return cohortBucket(policyID, agentID) < pct
}

// cohortBucket maps an agent to a stable bucket in [0, 100).
func cohortBucket(policyID, agentID string) int {
	h := xxhash.New()
	h.WriteString(policyID)
	h.WriteString(":")
	h.WriteString(agentID)
	return int(h.Sum64() % 100)
}

// RecordOutcome ingests one evaluation outcome for a policy's rollout
// statistics.
func (c *Controller) RecordOutcome(policyID string, inCohort, succeeded bool) {
	c.mu.RLock()
	e, ok := c.entries[policyID]
	c.mu.RUnlock()
	if !ok {
		return
	}

	now := c.clock()
	e.mu.Lock()
	e.samples = append(e.samples, sample{at: now, inCohort: inCohort, succeeded: succeeded})
	pruneLocked(e, now)
	e.mu.Unlock()
}

// Evaluate runs one promotion/rollback decision for a policy. Invoked
// on a schedule, not per-request. Returns the committed change, or nil
// when no transition applies.
//
// Rollback takes precedence over promotion when both conditions hold
// (fail toward safety). Promotion requires the window's cohort request
// count to reach MinRequestsForPromotion; rollback does not wait for a
// full sample.
func (c *Controller) Evaluate(ctx context.Context, policyID string) (*Change, error) {
	c.mu.RLock()
	e, ok := c.entries[policyID]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, policyID)
	}

	const maxRetries = 3
	for attempt := 0; attempt < maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		e.mu.Lock()
		pruneLocked(e, c.clock())
		version := e.version
		cfg := e.config
		pct := e.pct
		requests, successes := cohortCountLocked(e)
		e.mu.Unlock()

		if requests == 0 {
			c.touchEvaluated(e)
			return nil, nil
		}
		rate := float64(successes) / float64(requests) * 100

		var (
			target      int
			reason      string
			triggeredBy string
		)
		switch {
		case cfg.AutoRollback && rate < cfg.RollbackThreshold && pct > 0:
			target = prevRung(pct)
			triggeredBy = "AUTO_ROLLBACK_ERROR_RATE"
			reason = fmt.Sprintf("auto-rollback from %d%% to %d%%: success rate %.2f%% below threshold %.2f%%",
				pct, target, rate, cfg.RollbackThreshold)

		case cfg.AutoPromote && rate >= cfg.PromotionThreshold && requests >= cfg.MinRequestsForPromotion && pct < 100:
			target = nextRung(pct)
			triggeredBy = "AUTO_PROMOTE"
			reason = fmt.Sprintf("auto-promoted from %d%% to %d%%: success rate %.2f%% met threshold %.2f%% over %d requests",
				pct, target, rate, cfg.PromotionThreshold, requests)

		default:
			c.touchEvaluated(e)
			return nil, nil
		}

		// Optimistic commit: only apply if no manual override (or
		// concurrent evaluation) moved the state since the snapshot.
		e.mu.Lock()
		if e.version != version {
			e.mu.Unlock()
			continue
		}
		e.pct = target
		e.version++
		e.evaluated = c.clock()
		e.mu.Unlock()

		change := c.commitChange(policyID, pct, target, reason, triggeredBy, rate, requests)
		return change, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrConflict, policyID)
}

// SetTrafficPercentage sets a policy's rollout percentage directly,
// bypassing the ladder and thresholds. Still audited.
func (c *Controller) SetTrafficPercentage(policyID string, pct int, by string) (*Change, error) {
	if pct < 0 || pct > 100 {
		return nil, &ConfigError{Field: "traffic_percentage", Message: "must be within [0, 100]"}
	}

	c.mu.RLock()
	e, ok := c.entries[policyID]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, policyID)
	}

	e.mu.Lock()
	from := e.pct
	requests, successes := cohortCountLocked(e)
	e.pct = pct
	e.version++
	e.evaluated = c.clock()
	e.mu.Unlock()

	rate := successRate(successes, requests)
	reason := fmt.Sprintf("manual override by %s: %d%% to %d%%", by, from, pct)
	return c.commitChange(policyID, from, pct, reason, "MANUAL", rate, requests), nil
}

// Rollback reverts a policy's rollout. With a nil target it steps back
// one ladder rung; with no prior rung it falls back to 0 (baseline).
// An explicit target may be any value in [0, 100].
func (c *Controller) Rollback(policyID string, target *int, by string) (*Change, error) {
	c.mu.RLock()
	e, ok := c.entries[policyID]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, policyID)
	}

	e.mu.Lock()
	from := e.pct
	to := prevRung(from)
	if target != nil {
		if *target < 0 || *target > 100 {
			e.mu.Unlock()
			return nil, &ConfigError{Field: "target_percentage", Message: "must be within [0, 100]"}
		}
		to = *target
	}
	requests, successes := cohortCountLocked(e)
	e.pct = to
	e.version++
	e.evaluated = c.clock()
	e.mu.Unlock()

	rate := successRate(successes, requests)
	reason := fmt.Sprintf("manual rollback by %s: %d%% to %d%%", by, from, to)
	return c.commitChange(policyID, from, to, reason, "MANUAL", rate, requests), nil
}

// State returns a point-in-time view of the policy's rollout.
func (c *Controller) State(policyID string) (Snapshot, error) {
	c.mu.RLock()
	e, ok := c.entries[policyID]
	c.mu.RUnlock()
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, policyID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	pruneLocked(e, c.clock())
	requests, successes := cohortCountLocked(e)
	return Snapshot{
		PolicyID:          policyID,
		TrafficPercentage: e.pct,
		Config:            e.config,
		CanaryRequests:    requests,
		CanarySuccesses:   successes,
		SuccessRate:       successRate(successes, requests),
		LastEvaluatedAt:   e.evaluated,
		Version:           e.version,
	}, nil
}

// States returns snapshots for all registered canaries.
func (c *Controller) States() []Snapshot {
	c.mu.RLock()
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	c.mu.RUnlock()

	out := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		if snap, err := c.State(id); err == nil {
			out = append(out, snap)
		}
	}
	return out
}

// PolicyIDs returns the ids of all registered canaries.
func (c *Controller) PolicyIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	return ids
}

func (c *Controller) touchEvaluated(e *entry) {
	e.mu.Lock()
	e.evaluated = c.clock()
	e.mu.Unlock()
}

// commitChange records and announces a committed percentage change.
func (c *Controller) commitChange(policyID string, from, to int, reason, triggeredBy string, rate float64, requests int64) *Change {
	now := c.clock()
	change := &Change{
		PolicyID:       policyID,
		FromPercentage: from,
		ToPercentage:   to,
		Reason:         reason,
		TriggeredBy:    triggeredBy,
		SuccessRate:    rate,
		TotalRequests:  requests,
		Timestamp:      now,
	}

	c.logger.Info("canary traffic change",
		"policy_id", policyID,
		"from", from,
		"to", to,
		"triggered_by", triggeredBy,
		"success_rate", rate,
	)

	if c.sink != nil {
		c.sink.RecordTransition(&outcome.Transition{
			PolicyID:       policyID,
			Kind:           outcome.KindCanary,
			FromPercentage: from,
			ToPercentage:   to,
			SuccessRate:    rate,
			TotalRequests:  requests,
			TriggeredBy:    triggeredBy,
			Reason:         reason,
			Timestamp:      now,
		})
	}
	if c.notifier != nil {
		typ := notify.CanaryPromoted
		if to < from {
			typ = notify.CanaryRolledBack
		}
		c.notifier.Notify(context.Background(), notify.Event{
			Type:      typ,
			PolicyID:  policyID,
			Message:   reason,
			Fields:    map[string]any{"from": from, "to": to, "success_rate": rate},
			Timestamp: now,
		})
	}
	if c.onChange != nil {
		c.onChange(policyID, to)
	}
	return change
}

// pruneLocked drops samples older than the evaluation window.
func pruneLocked(e *entry, now time.Time) {
	cutoff := now.Add(-e.config.EvaluationWindow)
	i := 0
	for ; i < len(e.samples); i++ {
		if !e.samples[i].at.Before(cutoff) {
			break
		}
	}
	if i > 0 {
		e.samples = append(e.samples[:0:0], e.samples[i:]...)
	}
}

func cohortCountLocked(e *entry) (requests, successes int64) {
	for _, s := range e.samples {
		if !s.inCohort {
			continue
		}
		requests++
		if s.succeeded {
			successes++
		}
	}
	return requests, successes
}

// successRate computes percentage success rate, defined as 0 when
// requests is 0.
func successRate(successes, requests int64) float64 {
	if requests == 0 {
		return 0
	}
	return float64(successes) / float64(requests) * 100
}
