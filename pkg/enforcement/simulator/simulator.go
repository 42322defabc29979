// Package simulator implements offline impact analysis: replaying a
// window of historical outcomes through a proposed policy configuration
// to predict who would be affected before it is rolled out. Simulation
// is read-only and never touches live enforcement state.
package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"veridion-hq/sentinel/pkg/outcome"
	"veridion-hq/sentinel/pkg/policy"
)

// ImpactLevel grades the predicted blast radius of a policy change.
type ImpactLevel string

const (
	ImpactLow      ImpactLevel = "LOW"
	ImpactMedium   ImpactLevel = "MEDIUM"
	ImpactHigh     ImpactLevel = "HIGH"
	ImpactCritical ImpactLevel = "CRITICAL"
)

// CutPoints are the blocked-traffic percentages separating impact
// levels. They are configuration, not a hidden rule.
type CutPoints struct {
	// Medium is the lower bound of MEDIUM impact. Default: 5
	Medium float64 `yaml:"medium"`

	// High is the lower bound of HIGH impact. Default: 20
	High float64 `yaml:"high"`

	// Critical is the lower bound of CRITICAL impact. Default: 50
	Critical float64 `yaml:"critical"`
}

// DefaultCutPoints returns the default impact thresholds.
func DefaultCutPoints() CutPoints {
	return CutPoints{Medium: 5, High: 20, Critical: 50}
}

// Level grades a blocked fraction against the cut points.
func (c CutPoints) Level(blocked, total int64) ImpactLevel {
	if total == 0 {
		return ImpactLow
	}
	pct := float64(blocked) / float64(total) * 100
	switch {
	case pct >= c.Critical:
		return ImpactCritical
	case pct >= c.High:
		return ImpactHigh
	case pct >= c.Medium:
		return ImpactMedium
	default:
		return ImpactLow
	}
}

// Request describes one simulation run.
type Request struct {
	// PolicyType is the kind of the proposed policy.
	PolicyType policy.Type

	// Config is the proposed rule configuration (not the live one).
	Config policy.RuleConfig

	// WindowDays is how many days of history to replay. Default: 7
	WindowDays int

	// OffsetDays shifts the window back in time for "what if N days
	// ago" scenarios. Default: 0
	OffsetDays int

	// AgentFilter restricts the replay to specific agents, when
	// non-empty.
	AgentFilter []string

	// LocationFilter restricts the replay to requests whose detected
	// country matches one of the entries, when non-empty.
	LocationFilter []string
}

// AgentImpact is the per-agent breakdown of a simulation.
type AgentImpact struct {
	AgentID           string   `json:"agent_id"`
	TotalRequests     int64    `json:"total_requests"`
	WouldBlock        int64    `json:"would_block"`
	WouldAllow        int64    `json:"would_allow"`
	BlockPercentage   float64  `json:"block_percentage"`
	AffectedEndpoints []string `json:"affected_endpoints"`
}

// Result is the outcome of one simulation run.
type Result struct {
	PolicyType    policy.Type `json:"policy_type"`
	TotalRequests int64       `json:"total_requests"`
	WouldBlock    int64       `json:"would_block"`
	WouldAllow    int64       `json:"would_allow"`

	AffectedAgents    []AgentImpact    `json:"affected_agents"`
	AffectedEndpoints map[string]int64 `json:"affected_endpoints"`
	RequestsByCountry map[string]int64 `json:"requests_by_country"`

	// CriticalAgents would have 100% of their traffic blocked.
	CriticalAgents []string `json:"critical_agents"`

	// PartialImpactAgents have some but not all traffic blocked.
	PartialImpactAgents []string `json:"partial_impact_agents"`

	EstimatedImpact ImpactLevel `json:"estimated_impact"`
	SimulatedAt     time.Time   `json:"simulated_at"`
}

// Simulator replays historical outcomes against proposed policy
// configurations.
type Simulator struct {
	backend outcome.Backend
	cuts    CutPoints
	logger  *slog.Logger
	clock   func() time.Time
}

// New creates a simulator reading from the given outcome backend.
func New(backend outcome.Backend, cuts CutPoints) *Simulator {
	if cuts == (CutPoints{}) {
		cuts = DefaultCutPoints()
	}
	return &Simulator{
		backend: backend,
		cuts:    cuts,
		logger:  slog.Default().With("component", "enforcement.simulator"),
		clock:   time.Now,
	}
}

// Simulate replays the window through the proposed configuration and
// returns the predicted impact. Stops early (with an error) if the
// context is cancelled; an in-progress run holds no locks and mutates
// nothing, so cancellation is always safe.
func (s *Simulator) Simulate(ctx context.Context, req Request) (*Result, error) {
	if _, err := policy.Evaluate(req.PolicyType, req.Config, &policy.ActionRequest{}); err != nil {
		return nil, err
	}

	windowDays := req.WindowDays
	if windowDays <= 0 {
		windowDays = 7
	}
	until := s.clock().AddDate(0, 0, -req.OffsetDays)
	since := until.AddDate(0, 0, -windowDays)

	events, err := s.backend.Query(ctx, outcome.Filter{Since: since, Until: until})
	if err != nil {
		return nil, fmt.Errorf("failed to load historical outcomes: %w", err)
	}

	res := &Result{
		PolicyType:        req.PolicyType,
		AffectedEndpoints: make(map[string]int64),
		RequestsByCountry: make(map[string]int64),
		SimulatedAt:       s.clock(),
	}

	type agentStats struct {
		total, blocked int64
		endpoints      map[string]struct{}
	}
	perAgent := make(map[string]*agentStats)

	// The outcome log holds one event per (request, policy); replay
	// each distinct request once.
	seen := make(map[string]struct{}, len(events))

	for _, ev := range events {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if ev.RequestID != "" {
			if _, dup := seen[ev.RequestID]; dup {
				continue
			}
			seen[ev.RequestID] = struct{}{}
		}
		if !matchesFilters(ev, req) {
			continue
		}

		replay := &policy.ActionRequest{
			RequestID:       ev.RequestID,
			AgentID:         ev.AgentID,
			ActionType:      ev.ActionType,
			ActionSummary:   ev.ActionSummary,
			TargetRegion:    ev.TargetRegion,
			DetectedCountry: ev.DetectedCountry,
			Endpoint:        ev.Endpoint,
			Timestamp:       ev.Timestamp,
		}
		verdict, err := policy.Evaluate(req.PolicyType, req.Config, replay)
		if err != nil {
			return nil, fmt.Errorf("replay failed: %w", err)
		}

		res.TotalRequests++
		country := strings.ToUpper(ev.DetectedCountry)
		if country == "" {
			country = "UNKNOWN"
		}
		res.RequestsByCountry[country]++

		endpoint := ev.Endpoint
		if endpoint == "" {
			endpoint = "unknown"
		}
		res.AffectedEndpoints[endpoint]++

		st := perAgent[ev.AgentID]
		if st == nil {
			st = &agentStats{endpoints: make(map[string]struct{})}
			perAgent[ev.AgentID] = st
		}
		st.total++
		st.endpoints[endpoint] = struct{}{}

		if verdict.Block {
			res.WouldBlock++
			st.blocked++
		} else {
			res.WouldAllow++
		}
	}

	for agentID, st := range perAgent {
		pct := float64(st.blocked) / float64(st.total) * 100
		endpoints := make([]string, 0, len(st.endpoints))
		for ep := range st.endpoints {
			endpoints = append(endpoints, ep)
		}
		sort.Strings(endpoints)

		res.AffectedAgents = append(res.AffectedAgents, AgentImpact{
			AgentID:           agentID,
			TotalRequests:     st.total,
			WouldBlock:        st.blocked,
			WouldAllow:        st.total - st.blocked,
			BlockPercentage:   pct,
			AffectedEndpoints: endpoints,
		})
		switch {
		case st.blocked == st.total && st.total > 0:
			res.CriticalAgents = append(res.CriticalAgents, agentID)
		case st.blocked > 0:
			res.PartialImpactAgents = append(res.PartialImpactAgents, agentID)
		}
	}

	sort.Slice(res.AffectedAgents, func(i, j int) bool {
		if res.AffectedAgents[i].BlockPercentage != res.AffectedAgents[j].BlockPercentage {
			return res.AffectedAgents[i].BlockPercentage > res.AffectedAgents[j].BlockPercentage
		}
		return res.AffectedAgents[i].AgentID < res.AffectedAgents[j].AgentID
	})
	sort.Strings(res.CriticalAgents)
	sort.Strings(res.PartialImpactAgents)

	res.EstimatedImpact = s.cuts.Level(res.WouldBlock, res.TotalRequests)

	s.logger.Info("simulation complete",
		"policy_type", req.PolicyType,
		"total_requests", res.TotalRequests,
		"would_block", res.WouldBlock,
		"estimated_impact", res.EstimatedImpact,
	)
	return res, nil
}

func matchesFilters(ev *outcome.Event, req Request) bool {
	if len(req.AgentFilter) > 0 {
		found := false
		for _, id := range req.AgentFilter {
			if id == ev.AgentID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(req.LocationFilter) > 0 {
		found := false
		for _, loc := range req.LocationFilter {
			if strings.EqualFold(loc, ev.DetectedCountry) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
