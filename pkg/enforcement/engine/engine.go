package engine

import (
	"context"
	"log/slog"
	"time"

	"veridion-hq/sentinel/pkg/enforcement/breaker"
	"veridion-hq/sentinel/pkg/enforcement/canary"
	"veridion-hq/sentinel/pkg/enforcement/mode"
	"veridion-hq/sentinel/pkg/enforcement/shadow"
	"veridion-hq/sentinel/pkg/outcome"
	"veridion-hq/sentinel/pkg/policy"
)

// Config contains engine configuration.
type Config struct {
	// FailClosed controls the fail-safe direction for internal
	// evaluation failures while ENFORCING: when true a policy whose
	// evaluation errors counts as a block; when false (the default)
	// the policy abstains and the request is allowed unless another
	// policy blocks it. In SHADOW/DRY_RUN failures never block.
	FailClosed bool
}

// Metrics receives decision-path measurements. Implemented by the
// telemetry collector; nil-safe via the engine's guard.
type Metrics interface {
	RecordDecision(verdict Verdict, m mode.Mode, duration time.Duration)
	RecordPolicyEvaluation(policyID string, wouldBlock, failed bool)
}

// Engine orchestrates the safety layers for every incoming action: it
// computes the verdict, feeds the circuit breaker and canary
// statistics, and emits one outcome event per (request, policy) pair.
//
// Decide never blocks on I/O and never returns an error: persistence
// and notification are handed off asynchronously, and internal
// failures degrade to the configured fail-safe verdict.
type Engine struct {
	store    *policy.Store
	breaker  *breaker.Breaker
	canary   *canary.Controller
	mode     *mode.Switch
	shadow   *shadow.Evaluator
	recorder *outcome.Recorder
	metrics  Metrics
	config   Config
	logger   *slog.Logger
	clock    func() time.Time
}

// New creates a decision engine. shadow, recorder, and metrics may be
// nil; store, brk, can, and sw must not be.
func New(store *policy.Store, brk *breaker.Breaker, can *canary.Controller, sw *mode.Switch,
	shadowEval *shadow.Evaluator, recorder *outcome.Recorder, metrics Metrics, config Config) *Engine {
	return &Engine{
		store:    store,
		breaker:  brk,
		canary:   can,
		mode:     sw,
		shadow:   shadowEval,
		recorder: recorder,
		metrics:  metrics,
		config:   config,
		logger:   slog.Default().With("component", "enforcement.engine"),
		clock:    time.Now,
	}
}

// Decide evaluates one action against the enabled policy set and
// returns the verdict. Safe for concurrent use from many request
// handlers.
func (e *Engine) Decide(ctx context.Context, req *policy.ActionRequest) *Decision {
	start := e.clock()
	if req.Timestamp.IsZero() {
		req.Timestamp = start
	}

	currentMode := e.mode.Get()
	enforcing := currentMode.Enforcing()

	decision := &Decision{
		RequestID: req.RequestID,
		Mode:      currentMode,
		Verdict:   VerdictAllow,
	}

	for _, p := range e.store.Enabled() {
		res := e.evaluatePolicy(req, p, enforcing)
		decision.Policies = append(decision.Policies, res)

		if res.WouldBlock && !res.Skipped {
			decision.wouldBlock = true
			if decision.BlockReason == "" {
				decision.BlockReason = res.Reason
				decision.BlockedBy = p.ID
			}
		}
	}

	if decision.wouldBlock && enforcing {
		decision.Verdict = VerdictBlock
	} else if decision.wouldBlock {
		decision.Verdict = VerdictShadowLogged
	}

	// Statistics and persistence happen after the verdict is fixed so
	// a slow consumer never delays the caller.
	e.emit(ctx, req, decision, enforcing)

	decision.EvaluationTime = e.clock().Sub(start)
	if e.metrics != nil {
		e.metrics.RecordDecision(decision.Verdict, currentMode, decision.EvaluationTime)
	}

	if currentMode == mode.DryRun {
		e.logger.Info("dry-run decision",
			"request_id", req.RequestID,
			"agent_id", req.AgentID,
			"verdict", decision.Verdict,
			"would_block", decision.wouldBlock,
			"blocked_by", decision.BlockedBy,
			"policies_evaluated", len(decision.Policies),
		)
	}
	return decision
}

// evaluatePolicy runs a single policy against the request. A policy
// whose breaker is OPEN is skipped: its rule is treated as pass-through
// for this policy only, leaving every other policy in force. An
// evaluation error makes the policy abstain rather than aborting the
// decision.
func (e *Engine) evaluatePolicy(req *policy.ActionRequest, p *policy.Policy, enforcing bool) PolicyResult {
	res := PolicyResult{PolicyID: p.ID, Version: p.ActiveVersion}

	if e.breaker.IsOpen(p.ID) {
		res.Skipped = true
		res.SkipReason = "circuit breaker open"
		return res
	}

	inCohort := e.canary.InCohort(p.ID, req.AgentID)
	res.InCanaryCohort = inCohort

	cfg := p.Config
	if !inCohort {
		cfg = p.BaselineConfig()
		if n := len(p.Versions); n >= 2 {
			res.Version = p.Versions[n-2].Number
		}
	}

	verdict, err := policy.Evaluate(p.Type, cfg, req)
	if err != nil {
		res.Failed = true
		res.WouldBlock = e.config.FailClosed && enforcing
		if res.WouldBlock {
			res.Reason = "policy evaluation failed (fail-closed)"
		}
		e.logger.Warn("policy evaluation failed, policy abstains",
			"policy_id", p.ID,
			"request_id", req.RequestID,
			"error", err,
		)
	} else {
		res.WouldBlock = verdict.Block
		res.Reason = verdict.Reason
		res.Risk = verdict.Risk
	}

	if e.metrics != nil {
		e.metrics.RecordPolicyEvaluation(p.ID, res.WouldBlock, res.Failed)
	}
	return res
}

// emit produces one outcome event per evaluated policy and feeds the
// breaker and canary statistics.
func (e *Engine) emit(ctx context.Context, req *policy.ActionRequest, d *Decision, enforcing bool) {
	for _, res := range d.Policies {
		if res.Skipped {
			// An OPEN breaker accumulates no outcomes.
			continue
		}

		succeeded := !res.Failed
		e.breaker.RecordOutcome(res.PolicyID, succeeded)
		e.canary.RecordOutcome(res.PolicyID, res.InCanaryCohort, succeeded)

		ev := &outcome.Event{
			RequestID:       req.RequestID,
			AgentID:         req.AgentID,
			PolicyID:        res.PolicyID,
			PolicyVersion:   res.Version,
			ActionType:      req.ActionType,
			ActionSummary:   req.ActionSummary,
			TargetRegion:    req.TargetRegion,
			DetectedCountry: req.DetectedCountry,
			Endpoint:        req.Endpoint,
			WouldBlock:      res.WouldBlock,
			WouldAllow:      !res.WouldBlock,
			Enforced:        enforcing && res.WouldBlock,
			InCanaryCohort:  res.InCanaryCohort,
			EvalFailed:      res.Failed,
			RiskLevel:       string(res.Risk),
			BlockReason:     res.Reason,
			Timestamp:       req.Timestamp,
		}
		if p, err := e.store.Get(res.PolicyID); err == nil {
			ev.PolicyType = string(p.Type)
		}

		if e.recorder != nil {
			e.recorder.Record(ev)
		}
		if !enforcing && e.shadow != nil {
			e.shadow.Observe(ctx, ev)
		}
	}
}
