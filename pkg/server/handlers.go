package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"veridion-hq/sentinel/pkg/enforcement/breaker"
	"veridion-hq/sentinel/pkg/enforcement/canary"
	"veridion-hq/sentinel/pkg/enforcement/engine"
	"veridion-hq/sentinel/pkg/enforcement/mode"
	"veridion-hq/sentinel/pkg/enforcement/simulator"
	"veridion-hq/sentinel/pkg/outcome"
	"veridion-hq/sentinel/pkg/policy"
)

// errorResponse is the JSON body for error replies.
type errorResponse struct {
	Error string `json:"error"`
}

// decideRequest is the JSON body for POST /v1/decide.
type decideRequest struct {
	RequestID       string `json:"request_id"`
	AgentID         string `json:"agent_id"`
	ActionType      string `json:"action_type"`
	ActionSummary   string `json:"action_summary"`
	TargetRegion    string `json:"target_region"`
	DetectedCountry string `json:"detected_country"`
	Endpoint        string `json:"endpoint"`
}

// policyResultView is the per-policy slice of a decision reply.
type policyResultView struct {
	PolicyID       string           `json:"policy_id"`
	Version        int              `json:"version"`
	WouldBlock     bool             `json:"would_block"`
	Reason         string           `json:"reason,omitempty"`
	Risk           policy.RiskLevel `json:"risk,omitempty"`
	InCanaryCohort bool             `json:"in_canary_cohort"`
	Skipped        bool             `json:"skipped,omitempty"`
	SkipReason     string           `json:"skip_reason,omitempty"`
	Failed         bool             `json:"failed,omitempty"`
}

// decideResponse is the JSON reply for POST /v1/decide.
type decideResponse struct {
	RequestID        string             `json:"request_id"`
	Verdict          engine.Verdict     `json:"verdict"`
	Allowed          bool               `json:"allowed"`
	Mode             mode.Mode          `json:"mode"`
	BlockedBy        string             `json:"blocked_by,omitempty"`
	BlockReason      string             `json:"block_reason,omitempty"`
	WouldBlock       bool               `json:"would_block"`
	Policies         []policyResultView `json:"policies"`
	EvaluationTimeMs float64            `json:"evaluation_time_ms"`
}

// policyView is the JSON shape of a policy in list/get replies.
type policyView struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	Type          policy.Type            `json:"type"`
	Enabled       bool                   `json:"enabled"`
	Config        policy.RuleConfig      `json:"config"`
	ActiveVersion int                    `json:"active_version"`
	Versions      []policyVersionView    `json:"versions"`
	Breaker       policy.BreakerSettings `json:"breaker"`
	Canary        policy.CanarySettings  `json:"canary"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

type policyVersionView struct {
	Number    int               `json:"number"`
	Config    policy.RuleConfig `json:"config"`
	CreatedAt time.Time         `json:"created_at"`
}

// modeRequest is the JSON body for PUT /v1/mode.
type modeRequest struct {
	Mode        string `json:"mode"`
	ChangedBy   string `json:"changed_by"`
	Description string `json:"description"`
}

// modeResponse is the JSON reply for mode endpoints.
type modeResponse struct {
	Mode        mode.Mode `json:"mode"`
	EnabledAt   time.Time `json:"enabled_at"`
	EnabledBy   string    `json:"enabled_by,omitempty"`
	Description string    `json:"description,omitempty"`
}

// breakerControlRequest is the JSON body for breaker control.
type breakerControlRequest struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

// canaryTrafficRequest is the JSON body for setting canary traffic.
type canaryTrafficRequest struct {
	Percentage int    `json:"percentage"`
	ChangedBy  string `json:"changed_by"`
}

// canaryRollbackRequest is the JSON body for manual canary rollback.
type canaryRollbackRequest struct {
	TargetPercentage *int   `json:"target_percentage,omitempty"`
	ChangedBy        string `json:"changed_by"`
}

// rollbackVersionRequest is the JSON body for policy version rollback.
type rollbackVersionRequest struct {
	Version int `json:"version"`
}

// simulateRequest is the JSON body for POST /v1/simulate.
type simulateRequest struct {
	PolicyType     policy.Type       `json:"policy_type"`
	Config         policy.RuleConfig `json:"config"`
	WindowDays     int               `json:"window_days,omitempty"`
	OffsetDays     int               `json:"offset_days,omitempty"`
	AgentFilter    []string          `json:"agent_filter,omitempty"`
	LocationFilter []string          `json:"location_filter,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, policy.ErrNotFound),
		errors.Is(err, breaker.ErrNotFound),
		errors.Is(err, canary.ErrNotFound),
		errors.Is(err, policy.ErrVersionNotFound):
		return http.StatusNotFound
	case errors.Is(err, canary.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, policy.ErrUnknownPolicyType):
		return http.StatusBadRequest
	default:
		var vErr *policy.ValidationError
		var bcErr *breaker.ConfigError
		var ccErr *canary.ConfigError
		if errors.As(err, &vErr) || errors.As(err, &bcErr) || errors.As(err, &ccErr) {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	}
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDecide gates one agent action against the policy set.
func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id is required")
		return
	}
	if req.RequestID == "" {
		req.RequestID = GetRequestID(r.Context())
	}

	decision := s.engine.Decide(r.Context(), &policy.ActionRequest{
		RequestID:       req.RequestID,
		AgentID:         req.AgentID,
		ActionType:      req.ActionType,
		ActionSummary:   req.ActionSummary,
		TargetRegion:    req.TargetRegion,
		DetectedCountry: req.DetectedCountry,
		Endpoint:        req.Endpoint,
	})

	resp := decideResponse{
		RequestID:        decision.RequestID,
		Verdict:          decision.Verdict,
		Allowed:          decision.Verdict.Allowed(),
		Mode:             decision.Mode,
		BlockedBy:        decision.BlockedBy,
		BlockReason:      decision.BlockReason,
		WouldBlock:       decision.WouldBlock(),
		Policies:         make([]policyResultView, 0, len(decision.Policies)),
		EvaluationTimeMs: float64(decision.EvaluationTime.Microseconds()) / 1000,
	}
	for _, pr := range decision.Policies {
		resp.Policies = append(resp.Policies, policyResultView{
			PolicyID:       pr.PolicyID,
			Version:        pr.Version,
			WouldBlock:     pr.WouldBlock,
			Reason:         pr.Reason,
			Risk:           pr.Risk,
			InCanaryCohort: pr.InCanaryCohort,
			Skipped:        pr.Skipped,
			SkipReason:     pr.SkipReason,
			Failed:         pr.Failed,
		})
	}

	status := http.StatusOK
	if decision.Verdict == engine.VerdictBlock {
		status = http.StatusForbidden
	}
	writeJSON(w, status, resp)
}

// handleListPolicies returns every configured policy.
func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	policies := s.store.List()
	views := make([]policyView, 0, len(policies))
	for _, p := range policies {
		views = append(views, toPolicyView(p))
	}
	writeJSON(w, http.StatusOK, views)
}

// handleGetPolicy returns one policy with its version history.
func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toPolicyView(p))
}

func toPolicyView(p *policy.Policy) policyView {
	v := policyView{
		ID:            p.ID,
		Name:          p.Name,
		Type:          p.Type,
		Enabled:       p.Enabled,
		Config:        p.Config,
		ActiveVersion: p.ActiveVersion,
		Versions:      make([]policyVersionView, 0, len(p.Versions)),
		Breaker:       p.Breaker,
		Canary:        p.Canary,
		UpdatedAt:     p.UpdatedAt,
	}
	for _, ver := range p.Versions {
		v.Versions = append(v.Versions, policyVersionView{
			Number:    ver.Number,
			Config:    ver.Config,
			CreatedAt: ver.CreatedAt,
		})
	}
	return v
}

// handleSetPolicyEnabled flips a policy on or off.
func (s *Server) handleSetPolicyEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := s.store.SetEnabled(id, enabled); err != nil {
			writeError(w, statusForError(err), err.Error())
			return
		}
		p, err := s.store.Get(id)
		if err != nil {
			writeError(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, toPolicyView(p))
	}
}

// handleRollbackPolicyVersion reverts a policy to a prior config version.
func (s *Server) handleRollbackPolicyVersion(w http.ResponseWriter, r *http.Request) {
	var req rollbackVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	id := r.PathValue("id")
	if err := s.store.RollbackVersion(id, req.Version); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	p, err := s.store.Get(id)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toPolicyView(p))
}

// handleGetMode returns the current enforcement mode.
func (s *Server) handleGetMode(w http.ResponseWriter, r *http.Request) {
	rec := s.mode.Current()
	writeJSON(w, http.StatusOK, modeResponse{
		Mode:        rec.Mode,
		EnabledAt:   rec.EnabledAt,
		EnabledBy:   rec.EnabledBy,
		Description: rec.Description,
	})
}

// handleSetMode switches the global enforcement mode.
func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	m, err := mode.Parse(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := s.mode.Set(m, req.ChangedBy, req.Description)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, modeResponse{
		Mode:        rec.Mode,
		EnabledAt:   rec.EnabledAt,
		EnabledBy:   rec.EnabledBy,
		Description: rec.Description,
	})
}

// handleModeHistory returns every mode change, oldest first.
func (s *Server) handleModeHistory(w http.ResponseWriter, r *http.Request) {
	history := s.mode.History()
	views := make([]modeResponse, 0, len(history))
	for _, rec := range history {
		views = append(views, modeResponse{
			Mode:        rec.Mode,
			EnabledAt:   rec.EnabledAt,
			EnabledBy:   rec.EnabledBy,
			Description: rec.Description,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

// handleListBreakers returns every breaker's state.
func (s *Server) handleListBreakers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.breaker.States())
}

// handleGetBreaker returns one breaker's state.
func (s *Server) handleGetBreaker(w http.ResponseWriter, r *http.Request) {
	snap, err := s.breaker.State(r.PathValue("id"))
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleBreakerControl applies a manual breaker transition.
func (s *Server) handleBreakerControl(w http.ResponseWriter, r *http.Request) {
	var req breakerControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	var action breaker.ControlAction
	switch req.Action {
	case "OPEN":
		action = breaker.ControlOpen
	case "CLOSE":
		action = breaker.ControlClose
	case "AUTO":
		action = breaker.ControlAuto
	default:
		writeError(w, http.StatusBadRequest, "invalid action, must be one of: OPEN, CLOSE, AUTO")
		return
	}
	snap, err := s.breaker.Control(r.PathValue("id"), action, req.Reason)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleBreakerRecovery returns recovery-time metrics for one breaker.
func (s *Server) handleBreakerRecovery(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.breaker.Recovery(r.PathValue("id"))
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

// handleTransitions returns a policy's transition history for one state
// machine, newest first.
func (s *Server) handleTransitions(kind outcome.TransitionKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "invalid limit value")
				return
			}
			limit = n
		}
		transitions, err := s.backend.Transitions(r.Context(), r.PathValue("id"), kind, limit)
		if err != nil {
			writeError(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, transitions)
	}
}

// handleListCanaries returns every canary's state.
func (s *Server) handleListCanaries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.canary.States())
}

// handleGetCanary returns one canary's state.
func (s *Server) handleGetCanary(w http.ResponseWriter, r *http.Request) {
	snap, err := s.canary.State(r.PathValue("id"))
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleSetCanaryTraffic manually sets a canary's traffic percentage.
func (s *Server) handleSetCanaryTraffic(w http.ResponseWriter, r *http.Request) {
	var req canaryTrafficRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	change, err := s.canary.SetTrafficPercentage(r.PathValue("id"), req.Percentage, req.ChangedBy)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, change)
}

// handleCanaryRollback manually rolls a canary back one rung (or to an
// explicit target percentage).
func (s *Server) handleCanaryRollback(w http.ResponseWriter, r *http.Request) {
	var req canaryRollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	change, err := s.canary.Rollback(r.PathValue("id"), req.TargetPercentage, req.ChangedBy)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, change)
}

// handleShadowAnalytics summarizes would-block activity over a window.
func (s *Server) handleShadowAnalytics(w http.ResponseWriter, r *http.Request) {
	until := time.Now()
	since := until.Add(-24 * time.Hour)
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since timestamp: "+err.Error())
			return
		}
		since = t
	}
	if v := r.URL.Query().Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid until timestamp: "+err.Error())
			return
		}
		until = t
	}
	analytics, err := s.shadow.Analyze(r.Context(), since, until)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

// handleSimulate replays recorded traffic through a proposed config.
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	result, err := s.simulator.Simulate(r.Context(), simulator.Request{
		PolicyType:     req.PolicyType,
		Config:         req.Config,
		WindowDays:     req.WindowDays,
		OffsetDays:     req.OffsetDays,
		AgentFilter:    req.AgentFilter,
		LocationFilter: req.LocationFilter,
	})
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleQueryOutcomes queries the outcome log with optional filters.
func (s *Server) handleQueryOutcomes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := outcome.Filter{
		AgentID:  q.Get("agent_id"),
		PolicyID: q.Get("policy_id"),
		Limit:    100,
	}
	if v := q.Get("would_block"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid would_block value: "+err.Error())
			return
		}
		filter.WouldBlock = &b
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit value")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since timestamp: "+err.Error())
			return
		}
		filter.Since = t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid until timestamp: "+err.Error())
			return
		}
		filter.Until = t
	}

	events, err := s.backend.Query(r.Context(), filter)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// handleAnalyticsSummaries returns the latest per-policy rollups.
func (s *Server) handleAnalyticsSummaries(w http.ResponseWriter, r *http.Request) {
	if s.analytics == nil {
		writeError(w, http.StatusNotFound, "analytics rollups are disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.analytics.Summaries())
}
