// Package shadow implements the counterfactual side of enforcement:
// recording what every policy would have done without enforcing it,
// alerting on would-block outcomes, and scoring how trustworthy the
// shadow analytics are before an operator flips to ENFORCING.
package shadow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"veridion-hq/sentinel/pkg/notify"
	"veridion-hq/sentinel/pkg/outcome"
)

// AlertWindow is how long repeat would-block alerts for the same agent
// are suppressed to avoid alert storms.
const AlertWindow = 5 * time.Minute

// Confidence scores the trustworthiness of shadow analytics as a
// percentage, given the number of logged outcomes in the query window.
// More data means a more representative picture of what enforcement
// would do.
func Confidence(n int64) int {
	switch {
	case n < 10:
		return 50
	case n < 100:
		return 70
	case n < 1000:
		return 85
	default:
		return 95
	}
}

// Evaluator observes shadow-mode outcomes: it triggers a notification
// on the first would-block outcome per agent within the alert window
// and aggregates shadow analytics from the outcome log.
type Evaluator struct {
	backend  outcome.Backend
	notifier notify.Notifier
	logger   *slog.Logger
	clock    func() time.Time

	mu        sync.Mutex
	lastAlert map[string]time.Time
}

// NewEvaluator creates a shadow evaluator. notifier may be nil, in
// which case alerts are only logged.
func NewEvaluator(backend outcome.Backend, notifier notify.Notifier) *Evaluator {
	return &Evaluator{
		backend:   backend,
		notifier:  notifier,
		logger:    slog.Default().With("component", "enforcement.shadow"),
		clock:     time.Now,
		lastAlert: make(map[string]time.Time),
	}
}

// Observe ingests one non-enforced outcome event. The first would-block
// outcome for an agent fires a notification; subsequent would-block
// outcomes for the same agent within AlertWindow are suppressed.
func (e *Evaluator) Observe(ctx context.Context, ev *outcome.Event) {
	if ev == nil || !ev.WouldBlock {
		return
	}

	if !e.shouldAlert(ev.AgentID) {
		return
	}

	e.logger.Warn("shadow mode would-block",
		"agent_id", ev.AgentID,
		"policy_id", ev.PolicyID,
		"reason", ev.BlockReason,
		"risk_level", ev.RiskLevel,
	)
	if e.notifier != nil {
		e.notifier.Notify(ctx, notify.Event{
			Type:     notify.ShadowViolation,
			PolicyID: ev.PolicyID,
			AgentID:  ev.AgentID,
			Message: fmt.Sprintf("shadow mode detected a violation that would be blocked in enforcing mode: %s",
				ev.BlockReason),
			Fields: map[string]any{
				"action_type": ev.ActionType,
				"risk_level":  ev.RiskLevel,
			},
			Timestamp: ev.Timestamp,
		})
	}
}

// shouldAlert applies the per-agent rate limit and records the alert
// time when it passes.
func (e *Evaluator) shouldAlert(agentID string) bool {
	now := e.clock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if last, ok := e.lastAlert[agentID]; ok && now.Sub(last) < AlertWindow {
		return false
	}
	e.lastAlert[agentID] = now

	// Opportunistic prune so the map does not grow with agent churn.
	if len(e.lastAlert) > 10000 {
		for id, at := range e.lastAlert {
			if now.Sub(at) >= AlertWindow {
				delete(e.lastAlert, id)
			}
		}
	}
	return true
}

// Analytics summarizes the shadow outcome log over a window.
type Analytics struct {
	WindowStart   time.Time        `json:"window_start"`
	WindowEnd     time.Time        `json:"window_end"`
	TotalOutcomes int64            `json:"total_outcomes"`
	WouldBlock    int64            `json:"would_block"`
	WouldAllow    int64            `json:"would_allow"`
	ByPolicy      map[string]int64 `json:"would_block_by_policy"`
	TopAgents     []AgentCount     `json:"top_agents"`

	// Confidence is the percentage trust score for this window's
	// analytics, derived from the outcome count.
	Confidence int `json:"confidence"`
}

// AgentCount pairs an agent with its would-block count.
type AgentCount struct {
	AgentID string `json:"agent_id"`
	Count   int64  `json:"count"`
}

// Analyze computes shadow analytics for the given window.
func (e *Evaluator) Analyze(ctx context.Context, since, until time.Time) (*Analytics, error) {
	total, err := e.backend.Count(ctx, outcome.Filter{Since: since, Until: until})
	if err != nil {
		return nil, fmt.Errorf("failed to count shadow outcomes: %w", err)
	}

	wb := true
	blocked, err := e.backend.Query(ctx, outcome.Filter{Since: since, Until: until, WouldBlock: &wb})
	if err != nil {
		return nil, fmt.Errorf("failed to query shadow outcomes: %w", err)
	}

	a := &Analytics{
		WindowStart:   since,
		WindowEnd:     until,
		TotalOutcomes: total,
		WouldBlock:    int64(len(blocked)),
		WouldAllow:    total - int64(len(blocked)),
		ByPolicy:      make(map[string]int64),
		Confidence:    Confidence(total),
	}

	agentCounts := make(map[string]int64)
	for _, ev := range blocked {
		a.ByPolicy[ev.PolicyID]++
		agentCounts[ev.AgentID]++
	}
	for agent, n := range agentCounts {
		a.TopAgents = append(a.TopAgents, AgentCount{AgentID: agent, Count: n})
	}
	sort.Slice(a.TopAgents, func(i, j int) bool {
		if a.TopAgents[i].Count != a.TopAgents[j].Count {
			return a.TopAgents[i].Count > a.TopAgents[j].Count
		}
		return a.TopAgents[i].AgentID < a.TopAgents[j].AgentID
	})
	if len(a.TopAgents) > 10 {
		a.TopAgents = a.TopAgents[:10]
	}
	return a, nil
}
