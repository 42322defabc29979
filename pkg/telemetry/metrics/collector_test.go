package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"veridion-hq/sentinel/pkg/enforcement/engine"
	"veridion-hq/sentinel/pkg/enforcement/mode"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	return NewCollector(DefaultConfig(), prometheus.NewRegistry())
}

func TestNewCollector(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := NewCollector(DefaultConfig(), registry)
	if c == nil {
		t.Fatal("expected a collector")
	}
	if c.Registry() != registry {
		t.Error("collector should use the supplied registry")
	}

	// nil registry falls back to a private one
	if NewCollector(DefaultConfig(), nil).Registry() == nil {
		t.Error("expected a private registry when none is supplied")
	}
}

func TestCollector_RecordDecision(t *testing.T) {
	c := newTestCollector(t)

	c.RecordDecision(engine.VerdictBlock, mode.Enforcing, 200*time.Microsecond)
	c.RecordDecision(engine.VerdictBlock, mode.Enforcing, 150*time.Microsecond)
	c.RecordDecision(engine.VerdictAllow, mode.Shadow, 100*time.Microsecond)

	if got := testutil.ToFloat64(c.decisionsTotal.WithLabelValues("BLOCK", "ENFORCING")); got != 2 {
		t.Errorf("expected 2 enforced blocks, got %v", got)
	}
	if got := testutil.ToFloat64(c.decisionsTotal.WithLabelValues("ALLOW", "SHADOW")); got != 1 {
		t.Errorf("expected 1 shadow allow, got %v", got)
	}
}

func TestCollector_RecordPolicyEvaluation(t *testing.T) {
	c := newTestCollector(t)

	c.RecordPolicyEvaluation("geo-1", false, false)
	c.RecordPolicyEvaluation("geo-1", true, false)
	c.RecordPolicyEvaluation("geo-1", false, true)
	c.RecordPolicyEvaluation("geo-1", true, true) // failed wins over block

	for result, want := range map[string]float64{"allow": 1, "block": 1, "error": 2} {
		if got := testutil.ToFloat64(c.policyEvalsTotal.WithLabelValues("geo-1", result)); got != want {
			t.Errorf("result %q: expected %v, got %v", result, want, got)
		}
	}
}

func TestCollector_SetBreakerState(t *testing.T) {
	c := newTestCollector(t)

	c.SetBreakerState("geo-1", "OPEN")
	if got := testutil.ToFloat64(c.breakerState.WithLabelValues("geo-1")); got != 2 {
		t.Errorf("OPEN should gauge 2, got %v", got)
	}

	c.SetBreakerState("geo-1", "HALF_OPEN")
	if got := testutil.ToFloat64(c.breakerState.WithLabelValues("geo-1")); got != 1 {
		t.Errorf("HALF_OPEN should gauge 1, got %v", got)
	}

	c.SetBreakerState("geo-1", "CLOSED")
	if got := testutil.ToFloat64(c.breakerState.WithLabelValues("geo-1")); got != 0 {
		t.Errorf("CLOSED should gauge 0, got %v", got)
	}

	if got := testutil.ToFloat64(c.breakerTransitions.WithLabelValues("geo-1", "OPEN")); got != 1 {
		t.Errorf("expected 1 OPEN transition, got %v", got)
	}
}

func TestCollector_SetCanaryPercentage(t *testing.T) {
	c := newTestCollector(t)

	c.SetCanaryPercentage("rev-1", 25)
	if got := testutil.ToFloat64(c.canaryPercentage.WithLabelValues("rev-1")); got != 25 {
		t.Errorf("expected gauge 25, got %v", got)
	}
	c.SetCanaryPercentage("rev-1", 50)
	if got := testutil.ToFloat64(c.canaryTransitions.WithLabelValues("rev-1")); got != 2 {
		t.Errorf("expected 2 transitions, got %v", got)
	}
}

func TestCollector_Counters(t *testing.T) {
	c := newTestCollector(t)

	c.ShadowAlertFired()
	c.ShadowAlertFired()
	if got := testutil.ToFloat64(c.shadowAlertsTotal); got != 2 {
		t.Errorf("expected 2 shadow alerts, got %v", got)
	}

	c.AddRecordsDropped(7)
	if got := testutil.ToFloat64(c.recordsDropped); got != 7 {
		t.Errorf("expected 7 dropped records, got %v", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := newTestCollector(t)
	c.RecordDecision(engine.VerdictAllow, mode.Shadow, time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "sentinel_enforcement_decisions_total") {
		t.Error("scrape output should include the decisions counter")
	}
}
