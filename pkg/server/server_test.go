package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"veridion-hq/sentinel/pkg/analytics"
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
)

type testServer struct {
	server   *Server
	handler  http.Handler
	store    *policy.Store
	breaker  *breaker.Breaker
	canary   *canary.Controller
	mode     *mode.Switch
	backend  *outcome.MemoryBackend
	recorder *outcome.Recorder
}

func newTestServer(t *testing.T, m mode.Mode) *testServer {
	t.Helper()

	backend := outcome.NewMemoryBackend()
	recorder := outcome.NewRecorder(backend, nil)
	t.Cleanup(recorder.Close)

	store := policy.NewStore()
	brk := breaker.New(recorder, nil)
	can := canary.NewController(recorder, nil)
	sw := mode.NewSwitch(m, recorder, nil)
	shadowEval := shadow.NewEvaluator(backend, notify.NewMemoryNotifier())
	eng := engine.New(store, brk, can, sw, shadowEval, recorder, nil, engine.Config{})
	sim := simulator.New(backend, simulator.CutPoints{})

	srv := New(&config.ServerConfig{ListenAddress: "127.0.0.1:0"}, Components{
		Engine:    eng,
		Store:     store,
		Breaker:   brk,
		Canary:    can,
		Mode:      sw,
		Shadow:    shadowEval,
		Simulator: sim,
		Backend:   backend,
		Analytics: analytics.NewAggregator(backend, time.Hour),
	})

	return &testServer{
		server:   srv,
		handler:  srv.Handler(),
		store:    store,
		breaker:  brk,
		canary:   can,
		mode:     sw,
		backend:  backend,
		recorder: recorder,
	}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func (ts *testServer) addGeofence(t *testing.T, id string, countries ...string) {
	t.Helper()
	err := ts.store.Upsert(&policy.Policy{
		ID:      id,
		Name:    "geofence " + id,
		Type:    policy.TypeGeofence,
		Enabled: true,
		Config:  policy.RuleConfig{BlockedCountries: countries},
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
}

// ============================================================================
// Health and Decide
// ============================================================================

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t, mode.Shadow)
	rec := ts.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleDecide_Allow(t *testing.T) {
	ts := newTestServer(t, mode.Enforcing)
	ts.addGeofence(t, "geo-1", "RU")

	rec := ts.do(t, http.MethodPost, "/v1/decide",
		`{"agent_id":"agent-1","action_type":"inference","detected_country":"DE"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decode[decideResponse](t, rec)
	if resp.Verdict != engine.VerdictAllow || !resp.Allowed {
		t.Errorf("expected an allowed verdict, got %+v", resp)
	}
	if len(resp.Policies) != 1 || resp.Policies[0].PolicyID != "geo-1" {
		t.Errorf("expected one geo-1 policy result, got %+v", resp.Policies)
	}
}

func TestHandleDecide_BlockReturns403(t *testing.T) {
	ts := newTestServer(t, mode.Enforcing)
	ts.addGeofence(t, "geo-1", "RU")

	rec := ts.do(t, http.MethodPost, "/v1/decide",
		`{"agent_id":"agent-1","action_type":"inference","detected_country":"RU"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decode[decideResponse](t, rec)
	if resp.Verdict != engine.VerdictBlock || resp.Allowed {
		t.Errorf("expected a blocked verdict, got %+v", resp)
	}
	if resp.BlockedBy != "geo-1" || resp.BlockReason == "" {
		t.Errorf("expected geo-1 as blocker with a reason, got %+v", resp)
	}
}

func TestHandleDecide_ShadowModeReturns200(t *testing.T) {
	ts := newTestServer(t, mode.Shadow)
	ts.addGeofence(t, "geo-1", "RU")

	rec := ts.do(t, http.MethodPost, "/v1/decide",
		`{"agent_id":"agent-1","detected_country":"RU"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 in shadow mode, got %d", rec.Code)
	}

	resp := decode[decideResponse](t, rec)
	if resp.Verdict != engine.VerdictShadowLogged || !resp.Allowed || !resp.WouldBlock {
		t.Errorf("expected an allowed shadow-logged verdict, got %+v", resp)
	}
}

func TestHandleDecide_RequiresAgentID(t *testing.T) {
	ts := newTestServer(t, mode.Shadow)
	rec := ts.do(t, http.MethodPost, "/v1/decide", `{"action_type":"inference"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleDecide_RejectsMalformedBody(t *testing.T) {
	ts := newTestServer(t, mode.Shadow)
	rec := ts.do(t, http.MethodPost, "/v1/decide", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleDecide_AssignsRequestIDWhenMissing(t *testing.T) {
	ts := newTestServer(t, mode.Shadow)
	rec := ts.do(t, http.MethodPost, "/v1/decide", `{"agent_id":"agent-1"}`)
	resp := decode[decideResponse](t, rec)
	if resp.RequestID == "" {
		t.Error("expected a generated request id")
	}
}

// ============================================================================
// Policies
// ============================================================================

func TestHandleListPolicies(t *testing.T) {
	ts := newTestServer(t, mode.Shadow)
	ts.addGeofence(t, "geo-1", "RU")
	ts.addGeofence(t, "geo-2", "KP")

	rec := ts.do(t, http.MethodGet, "/v1/policies", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	views := decode[[]policyView](t, rec)
	if len(views) != 2 {
		t.Errorf("expected 2 policies, got %d", len(views))
	}
}

func TestHandleGetPolicy(t *testing.T) {
	ts := newTestServer(t, mode.Shadow)
	ts.addGeofence(t, "geo-1", "RU")

	rec := ts.do(t, http.MethodGet, "/v1/policies/geo-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	view := decode[policyView](t, rec)
	if view.ID != "geo-1" || view.ActiveVersion != 1 || len(view.Versions) != 1 {
		t.Errorf("unexpected policy view: %+v", view)
	}

	if rec := ts.do(t, http.MethodGet, "/v1/policies/absent", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown policy, got %d", rec.Code)
	}
}

func TestHandleSetPolicyEnabled(t *testing.T) {
	ts := newTestServer(t, mode.Shadow)
	ts.addGeofence(t, "geo-1", "RU")

	rec := ts.do(t, http.MethodPost, "/v1/policies/geo-1/disable", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if view := decode[policyView](t, rec); view.Enabled {
		t.Error("policy should be disabled")
	}

	rec = ts.do(t, http.MethodPost, "/v1/policies/geo-1/enable", "")
	if view := decode[policyView](t, rec); !view.Enabled {
		t.Error("policy should be enabled again")
	}

	if rec := ts.do(t, http.MethodPost, "/v1/policies/absent/disable", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandleRollbackPolicyVersion(t *testing.T) {
	ts := newTestServer(t, mode.Shadow)
	ts.addGeofence(t, "geo-1", "RU")
	ts.addGeofence(t, "geo-1", "RU", "CN") // second upsert creates version 2

	rec := ts.do(t, http.MethodPost, "/v1/policies/geo-1/rollback", `{"version":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	view := decode[policyView](t, rec)
	if view.ActiveVersion != 3 {
		t.Errorf("rollback should append a new version, got active %d", view.ActiveVersion)
	}
	if len(view.Config.BlockedCountries) != 1 || view.Config.BlockedCountries[0] != "RU" {
		t.Errorf("rollback should restore the version 1 config, got %v", view.Config.BlockedCountries)
	}

	if rec := ts.do(t, http.MethodPost, "/v1/policies/geo-1/rollback", `{"version":9}`); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown version, got %d", rec.Code)
	}
}

// ============================================================================
// Mode
// ============================================================================

func TestHandleMode(t *testing.T) {
	ts := newTestServer(t, mode.Shadow)

	rec := ts.do(t, http.MethodGet, "/v1/mode", "")
	if got := decode[modeResponse](t, rec); got.Mode != mode.Shadow {
		t.Errorf("expected SHADOW, got %v", got.Mode)
	}

	rec = ts.do(t, http.MethodPut, "/v1/mode",
		`{"mode":"enforcing","changed_by":"ops","description":"go live"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[modeResponse](t, rec)
	if got.Mode != mode.Enforcing || got.EnabledBy != "ops" {
		t.Errorf("unexpected mode record: %+v", got)
	}

	rec = ts.do(t, http.MethodGet, "/v1/mode/history", "")
	history := decode[[]modeResponse](t, rec)
	if len(history) != 2 || history[1].Mode != mode.Enforcing {
		t.Errorf("unexpected history: %+v", history)
	}
}

func TestHandleSetMode_RejectsInvalidMode(t *testing.T) {
	ts := newTestServer(t, mode.Shadow)
	rec := ts.do(t, http.MethodPut, "/v1/mode", `{"mode":"YOLO"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if ts.mode.Get() != mode.Shadow {
		t.Error("invalid request must not change the mode")
	}
}

// ============================================================================
// Breakers
// ============================================================================

func TestHandleBreakers(t *testing.T) {
	ts := newTestServer(t, mode.Shadow)
	if err := ts.breaker.Configure("geo-1", breaker.DefaultConfig()); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	rec := ts.do(t, http.MethodGet, "/v1/breakers", "")
	if snaps := decode[[]breaker.Snapshot](t, rec); len(snaps) != 1 {
		t.Errorf("expected 1 breaker, got %d", len(snaps))
	}

	rec = ts.do(t, http.MethodGet, "/v1/breakers/geo-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if snap := decode[breaker.Snapshot](t, rec); snap.State != breaker.Closed {
		t.Errorf("expected CLOSED, got %v", snap.State)
	}

	if rec := ts.do(t, http.MethodGet, "/v1/breakers/absent", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandleBreakerControl(t *testing.T) {
	ts := newTestServer(t, mode.Shadow)
	if err := ts.breaker.Configure("geo-1", breaker.DefaultConfig()); err != nil {
		t.Fatal(err)
	}

	rec := ts.do(t, http.MethodPost, "/v1/breakers/geo-1/control",
		`{"action":"OPEN","reason":"incident response"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if snap := decode[breaker.Snapshot](t, rec); snap.State != breaker.Open {
		t.Errorf("expected OPEN, got %v", snap.State)
	}

	if rec := ts.do(t, http.MethodPost, "/v1/breakers/geo-1/control", `{"action":"EXPLODE"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid action, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, "/v1/breakers/absent/control", `{"action":"OPEN"}`); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown breaker, got %d", rec.Code)
	}
}

func TestHandleBreakerRecovery(t *testing.T) {
	ts := newTestServer(t, mode.Shadow)
	if err := ts.breaker.Configure("geo-1", breaker.DefaultConfig()); err != nil {
		t.Fatal(err)
	}

	rec := ts.do(t, http.MethodGet, "/v1/breakers/geo-1/recovery", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if m := decode[breaker.RecoveryMetrics](t, rec); m.TimesOpened != 0 {
		t.Errorf("fresh breaker should have no openings, got %+v", m)
	}
}

func TestHandleTransitions(t *testing.T) {
	ts := newTestServer(t, mode.Shadow)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	saved := []*outcome.Transition{
		{PolicyID: "geo-1", Kind: outcome.KindCircuit, FromState: "CLOSED", ToState: "OPEN",
			ErrorRate: 12.5, TriggeredBy: "AUTO_THRESHOLD", Timestamp: base},
		{PolicyID: "geo-1", Kind: outcome.KindCircuit, FromState: "OPEN", ToState: "HALF_OPEN",
			TriggeredBy: "AUTO_RECOVERY", Timestamp: base.Add(15 * time.Minute)},
		{PolicyID: "geo-1", Kind: outcome.KindCanary, FromPercentage: 10, ToPercentage: 25,
			TriggeredBy: "AUTO_PROMOTE", Timestamp: base.Add(time.Hour)},
		{PolicyID: "geo-2", Kind: outcome.KindCircuit, FromState: "CLOSED", ToState: "OPEN",
			TriggeredBy: "MANUAL", Timestamp: base.Add(2 * time.Hour)},
	}
	for _, tr := range saved {
		if err := ts.backend.SaveTransition(ctx, tr); err != nil {
			t.Fatalf("SaveTransition failed: %v", err)
		}
	}

	rec := ts.do(t, http.MethodGet, "/v1/breakers/geo-1/transitions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	circuit := decode[[]outcome.Transition](t, rec)
	if len(circuit) != 2 {
		t.Fatalf("expected 2 circuit transitions for geo-1, got %d", len(circuit))
	}
	// Newest first: the half-open recovery precedes the original trip.
	if circuit[0].ToState != "HALF_OPEN" || circuit[1].TriggeredBy != "AUTO_THRESHOLD" {
		t.Errorf("unexpected transition order: %+v", circuit)
	}

	rec = ts.do(t, http.MethodGet, "/v1/canaries/geo-1/transitions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	promos := decode[[]outcome.Transition](t, rec)
	if len(promos) != 1 || promos[0].ToPercentage != 25 {
		t.Errorf("expected the single canary promotion, got %+v", promos)
	}

	rec = ts.do(t, http.MethodGet, "/v1/breakers/geo-1/transitions?limit=1", "")
	if got := decode[[]outcome.Transition](t, rec); len(got) != 1 {
		t.Errorf("expected limit to cap results at 1, got %d", len(got))
	}
	if rec := ts.do(t, http.MethodGet, "/v1/breakers/geo-1/transitions?limit=zero", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid limit, got %d", rec.Code)
	}

	// A policy with no recorded transitions returns an empty list.
	rec = ts.do(t, http.MethodGet, "/v1/breakers/geo-9/transitions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

// ============================================================================
// Canaries
// ============================================================================

func TestHandleCanaries(t *testing.T) {
	ts := newTestServer(t, mode.Shadow)
	if err := ts.canary.Register("geo-1", canary.DefaultConfig()); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	rec := ts.do(t, http.MethodGet, "/v1/canaries", "")
	if snaps := decode[[]canary.Snapshot](t, rec); len(snaps) != 1 {
		t.Errorf("expected 1 canary, got %d", len(snaps))
	}

	rec = ts.do(t, http.MethodGet, "/v1/canaries/geo-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	if rec := ts.do(t, http.MethodGet, "/v1/canaries/absent", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandleSetCanaryTraffic(t *testing.T) {
	ts := newTestServer(t, mode.Shadow)
	if err := ts.canary.Register("geo-1", canary.DefaultConfig()); err != nil {
		t.Fatal(err)
	}

	rec := ts.do(t, http.MethodPost, "/v1/canaries/geo-1/traffic",
		`{"percentage":42,"changed_by":"ops"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	change := decode[canary.Change](t, rec)
	if change.ToPercentage != 42 || change.TriggeredBy != "MANUAL" {
		t.Errorf("unexpected change: %+v", change)
	}

	if rec := ts.do(t, http.MethodPost, "/v1/canaries/geo-1/traffic", `{"percentage":142}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for out-of-range percentage, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, "/v1/canaries/absent/traffic", `{"percentage":10}`); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown canary, got %d", rec.Code)
	}
}

func TestHandleCanaryRollback(t *testing.T) {
	ts := newTestServer(t, mode.Shadow)
	cfg := canary.DefaultConfig()
	cfg.InitialPercentage = 25
	if err := ts.canary.Register("geo-1", cfg); err != nil {
		t.Fatal(err)
	}

	rec := ts.do(t, http.MethodPost, "/v1/canaries/geo-1/rollback", `{"changed_by":"ops"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if change := decode[canary.Change](t, rec); change.ToPercentage != 10 {
		t.Errorf("expected rollback to the previous rung (10), got %d", change.ToPercentage)
	}

	rec = ts.do(t, http.MethodPost, "/v1/canaries/geo-1/rollback", `{"target_percentage":0}`)
	if change := decode[canary.Change](t, rec); change.ToPercentage != 0 {
		t.Errorf("expected rollback to 0, got %d", change.ToPercentage)
	}
}

// ============================================================================
// Shadow analytics, simulation, outcomes
// ============================================================================

func TestHandleShadowAnalytics(t *testing.T) {
	ts := newTestServer(t, mode.Shadow)

	rec := ts.do(t, http.MethodGet, "/v1/shadow/analytics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	if rec := ts.do(t, http.MethodGet, "/v1/shadow/analytics?since=yesterday", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid since, got %d", rec.Code)
	}
}

func TestHandleSimulate(t *testing.T) {
	ts := newTestServer(t, mode.Shadow)

	rec := ts.do(t, http.MethodPost, "/v1/simulate",
		`{"policy_type":"GEOFENCE","config":{"blocked_countries":["RU"]},"window_days":7}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	result := decode[simulator.Result](t, rec)
	if result.TotalRequests != 0 || result.EstimatedImpact != simulator.ImpactLow {
		t.Errorf("empty history should be a LOW impact result, got %+v", result)
	}

	if rec := ts.do(t, http.MethodPost, "/v1/simulate", `{"policy_type":"MYSTERY"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown policy type, got %d", rec.Code)
	}
}

func TestHandleQueryOutcomes(t *testing.T) {
	ts := newTestServer(t, mode.Shadow)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		err := ts.backend.Save(ctx, &outcome.Event{
			AgentID:   fmt.Sprintf("agent-%d", i%2),
			PolicyID:  "geo-1",
			Timestamp: time.Now(),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	rec := ts.do(t, http.MethodGet, "/v1/outcomes?agent_id=agent-0", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if events := decode[[]*outcome.Event](t, rec); len(events) != 2 {
		t.Errorf("expected 2 events for agent-0, got %d", len(events))
	}

	if rec := ts.do(t, http.MethodGet, "/v1/outcomes?limit=0", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid limit, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/v1/outcomes?would_block=perhaps", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid would_block, got %d", rec.Code)
	}
}

func TestHandleAnalyticsSummaries(t *testing.T) {
	ts := newTestServer(t, mode.Shadow)

	rec := ts.do(t, http.MethodGet, "/v1/analytics/summaries", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	// A server without the aggregator reports the feature as absent.
	bare := New(&config.ServerConfig{}, Components{})
	req := httptest.NewRequest(http.MethodGet, "/v1/analytics/summaries", nil)
	w := httptest.NewRecorder()
	bare.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 when rollups are disabled, got %d", w.Code)
	}
}

// ============================================================================
// Error mapping
// ============================================================================

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{policy.ErrNotFound, http.StatusNotFound},
		{breaker.ErrNotFound, http.StatusNotFound},
		{canary.ErrNotFound, http.StatusNotFound},
		{policy.ErrVersionNotFound, http.StatusNotFound},
		{canary.ErrConflict, http.StatusConflict},
		{policy.ErrUnknownPolicyType, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", canary.ErrConflict), http.StatusConflict},
		{errors.New("anything else"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusForError(tt.err); got != tt.want {
			t.Errorf("statusForError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
