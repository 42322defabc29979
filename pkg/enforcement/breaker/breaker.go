package breaker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"veridion-hq/sentinel/pkg/notify"
	"veridion-hq/sentinel/pkg/outcome"
)

// Breaker is the per-policy circuit breaker arena. Each policy gets one
// independently-locked entry so contention on a hot policy never blocks
// decisions for another (arena-plus-index: one RWMutex guards the map,
// one mutex guards each entry's state machine).
//
// State transitions for a policy are linearizable: the entry mutex is
// held from outcome ingestion through transition commit, so no two
// transitions commit out of order relative to the outcomes that
// triggered them.
type Breaker struct {
	mu      sync.RWMutex
	entries map[string]*entry

	sink     *outcome.Recorder
	notifier notify.Notifier
	logger   *slog.Logger
	clock    func() time.Time

	// onTransition, when set, observes every committed transition
	// (used by the metrics collector).
	onTransition func(policyID string, from, to State)
}

type sample struct {
	at        time.Time
	succeeded bool
}

type entry struct {
	mu         sync.Mutex
	config     Config
	state      State
	manualHold bool
	samples    []sample
	openedAt   time.Time
	lastError  time.Time

	// recovery bookkeeping for RecoveryMetrics
	opened    int
	recovered int
	totalRec  time.Duration
	maxRec    time.Duration
}

// New creates a breaker arena. sink and notifier may be nil.
func New(sink *outcome.Recorder, notifier notify.Notifier) *Breaker {
	return &Breaker{
		entries:  make(map[string]*entry),
		sink:     sink,
		notifier: notifier,
		logger:   slog.Default().With("component", "enforcement.breaker"),
		clock:    time.Now,
	}
}

// SetTransitionObserver registers a callback invoked after every
// committed transition. Must be called before concurrent use.
func (b *Breaker) SetTransitionObserver(fn func(policyID string, from, to State)) {
	b.onTransition = fn
}

// Configure sets (or replaces) the breaker configuration for a policy,
// creating its state if absent. Invalid configurations are rejected
// before any state changes.
func (b *Breaker) Configure(policyID string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	e := b.entry(policyID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.config = cfg
	return nil
}

// IsOpen reports whether the policy's rule should be skipped for new
// requests. An OPEN breaker whose cooldown has elapsed transitions to
// HALF_OPEN here, so the next request becomes the recovery probe.
//
// Unknown policies report false: a breaker that has never seen traffic
// is CLOSED by definition.
func (b *Breaker) IsOpen(policyID string) bool {
	b.mu.RLock()
	e, ok := b.entries[policyID]
	b.mu.RUnlock()
	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	b.maybeHalfOpenLocked(policyID, e)
	return e.state == Open
}

// RecordOutcome ingests one evaluation outcome for a policy, creating
// breaker state on first use. Returns the resulting state.
//
// CLOSED: the outcome joins the rolling window; crossing the error
// threshold opens the breaker within the same call.
// OPEN: outcomes are not accumulated.
// HALF_OPEN: the outcome is the probe; success closes the breaker and
// resets counters, failure re-opens it and restarts the cooldown clock.
func (b *Breaker) RecordOutcome(policyID string, succeeded bool) State {
	e := b.entry(policyID)
	now := b.clock()

	e.mu.Lock()
	defer e.mu.Unlock()

	b.maybeHalfOpenLocked(policyID, e)

	switch e.state {
	case Open:
		return Open

	case HalfOpen:
		if succeeded {
			b.transitionLocked(policyID, e, Closed, "AUTO_RECOVERY",
				fmt.Sprintf("probe succeeded after %s cooldown", e.config.Cooldown))
			e.samples = e.samples[:0]
		} else {
			e.lastError = now
			b.transitionLocked(policyID, e, Open, "AUTO_RECOVERY",
				"probe failed, cooldown restarted")
			e.openedAt = now
		}
		return e.state

	default: // Closed
		e.samples = append(e.samples, sample{at: now, succeeded: succeeded})
		if !succeeded {
			e.lastError = now
		}
		pruneLocked(e, now)

		errs, total := countLocked(e)
		rate := errorRate(errs, total)
		if total > 0 && rate > e.config.ErrorThreshold && !e.manualHold {
			b.transitionLocked(policyID, e, Open, "AUTO_THRESHOLD",
				fmt.Sprintf("error rate %.2f%% exceeded threshold %.2f%% (%d/%d)",
					rate, e.config.ErrorThreshold, errs, total))
			e.openedAt = now
			e.opened++
		}
		return e.state
	}
}

// Control forces a manual breaker transition.
//
// OPEN and CLOSE hold the breaker in the target state until a
// subsequent AUTO clears the override. AUTO resumes rolling-window
// evaluation from HALF_OPEN so real traffic re-validates the policy;
// calling AUTO repeatedly is idempotent.
func (b *Breaker) Control(policyID string, action ControlAction, reason string) (Snapshot, error) {
	b.mu.RLock()
	e, ok := b.entries[policyID]
	b.mu.RUnlock()
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, policyID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := b.clock()
	switch action {
	case ControlOpen:
		if e.state != Open {
			b.transitionLocked(policyID, e, Open, "MANUAL", reason)
			e.openedAt = now
			e.opened++
		}
		e.manualHold = true

	case ControlClose:
		if e.state != Closed {
			b.transitionLocked(policyID, e, Closed, "MANUAL", reason)
			e.samples = e.samples[:0]
		}
		e.manualHold = true

	case ControlAuto:
		e.manualHold = false
		if e.state != HalfOpen {
			b.transitionLocked(policyID, e, HalfOpen, "MANUAL", reason)
		}

	default:
		return Snapshot{}, fmt.Errorf("unknown control action %q", action)
	}

	return b.snapshotLocked(policyID, e), nil
}

// State returns a point-in-time view of the policy's breaker.
func (b *Breaker) State(policyID string) (Snapshot, error) {
	b.mu.RLock()
	e, ok := b.entries[policyID]
	b.mu.RUnlock()
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, policyID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	b.maybeHalfOpenLocked(policyID, e)
	pruneLocked(e, b.clock())
	return b.snapshotLocked(policyID, e), nil
}

// States returns snapshots for all known policies.
func (b *Breaker) States() []Snapshot {
	b.mu.RLock()
	ids := make([]string, 0, len(b.entries))
	for id := range b.entries {
		ids = append(ids, id)
	}
	b.mu.RUnlock()

	out := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		if snap, err := b.State(id); err == nil {
			out = append(out, snap)
		}
	}
	return out
}

// Recovery returns recovery-time metrics for a policy's breaker.
func (b *Breaker) Recovery(policyID string) (RecoveryMetrics, error) {
	b.mu.RLock()
	e, ok := b.entries[policyID]
	b.mu.RUnlock()
	if !ok {
		return RecoveryMetrics{}, fmt.Errorf("%w: %s", ErrNotFound, policyID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	m := RecoveryMetrics{
		PolicyID:        policyID,
		TimesOpened:     e.opened,
		TimesRecovered:  e.recovered,
		MaxRecoveryTime: e.maxRec,
	}
	if e.recovered > 0 {
		m.AvgRecoveryTime = e.totalRec / time.Duration(e.recovered)
	}
	return m, nil
}

// Sweep advances cooldowns for all OPEN breakers, moving any whose
// cooldown has elapsed to HALF_OPEN. Invoked on a schedule so recovery
// does not depend on a request arriving; safe to call concurrently with
// the decision path.
func (b *Breaker) Sweep(ctx context.Context) {
	b.mu.RLock()
	ids := make([]string, 0, len(b.entries))
	for id := range b.entries {
		ids = append(ids, id)
	}
	b.mu.RUnlock()

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		b.mu.RLock()
		e := b.entries[id]
		b.mu.RUnlock()
		if e == nil {
			continue
		}
		e.mu.Lock()
		b.maybeHalfOpenLocked(id, e)
		e.mu.Unlock()
	}
}

// entry returns the state for a policy, creating it on first use with
// the default configuration.
func (b *Breaker) entry(policyID string) *entry {
	b.mu.RLock()
	e, ok := b.entries[policyID]
	b.mu.RUnlock()
	if ok {
		return e
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok = b.entries[policyID]; ok {
		return e
	}
	e = &entry{config: DefaultConfig(), state: Closed}
	b.entries[policyID] = e
	return e
}

// maybeHalfOpenLocked transitions OPEN→HALF_OPEN once the cooldown has
// elapsed. Manual holds are respected: an operator-forced OPEN stays
// open until AUTO.
func (b *Breaker) maybeHalfOpenLocked(policyID string, e *entry) {
	if e.state != Open || e.manualHold {
		return
	}
	if b.clock().Sub(e.openedAt) >= e.config.Cooldown {
		b.transitionLocked(policyID, e, HalfOpen, "AUTO_RECOVERY",
			fmt.Sprintf("cooldown of %s elapsed", e.config.Cooldown))
	}
}

// transitionLocked commits a state transition, records it, and notifies.
// Caller holds e.mu.
func (b *Breaker) transitionLocked(policyID string, e *entry, to State, triggeredBy, reason string) {
	from := e.state
	if from == to {
		return
	}
	e.state = to

	if from == Open && to == Closed || from == HalfOpen && to == Closed {
		if !e.openedAt.IsZero() {
			d := b.clock().Sub(e.openedAt)
			e.recovered++
			e.totalRec += d
			if d > e.maxRec {
				e.maxRec = d
			}
		}
	}

	errs, total := countLocked(e)
	rate := errorRate(errs, total)

	b.logger.Info("circuit breaker transition",
		"policy_id", policyID,
		"from", from,
		"to", to,
		"error_rate", rate,
		"triggered_by", triggeredBy,
	)

	if b.sink != nil {
		b.sink.RecordTransition(&outcome.Transition{
			PolicyID:      policyID,
			Kind:          outcome.KindCircuit,
			FromState:     string(from),
			ToState:       string(to),
			ErrorRate:     rate,
			ErrorCount:    errs,
			TotalRequests: total,
			TriggeredBy:   triggeredBy,
			Reason:        reason,
			Timestamp:     b.clock(),
		})
	}
	if b.notifier != nil {
		switch to {
		case Open:
			b.notifier.Notify(context.Background(), notify.Event{
				Type:      notify.CircuitOpened,
				PolicyID:  policyID,
				Message:   reason,
				Fields:    map[string]any{"error_rate": rate, "triggered_by": triggeredBy},
				Timestamp: b.clock(),
			})
		case Closed:
			b.notifier.Notify(context.Background(), notify.Event{
				Type:      notify.CircuitClosed,
				PolicyID:  policyID,
				Message:   reason,
				Timestamp: b.clock(),
			})
		}
	}
	if b.onTransition != nil {
		b.onTransition(policyID, from, to)
	}
}

func (b *Breaker) snapshotLocked(policyID string, e *entry) Snapshot {
	errs, total := countLocked(e)
	return Snapshot{
		PolicyID:      policyID,
		State:         e.state,
		ManualHold:    e.manualHold,
		ErrorCount:    errs,
		TotalRequests: total,
		ErrorRate:     errorRate(errs, total),
		OpenedAt:      e.openedAt,
		LastErrorAt:   e.lastError,
		Config:        e.config,
	}
}

// pruneLocked drops samples older than the rolling window.
func pruneLocked(e *entry, now time.Time) {
	cutoff := now.Add(-e.config.Window)
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

func countLocked(e *entry) (errs, total int64) {
	for _, s := range e.samples {
		total++
		if !s.succeeded {
			errs++
		}
	}
	return errs, total
}

// errorRate computes percentage error rate, defined as 0 when total is 0.
func errorRate(errs, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(errs) / float64(total) * 100
}
