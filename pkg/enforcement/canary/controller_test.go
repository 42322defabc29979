package canary

import (
	"context"
	"errors"
	"testing"
	"time"

	"veridion-hq/sentinel/pkg/notify"
)

func newTestController(notifier notify.Notifier) (*Controller, *time.Time) {
	c := NewController(nil, notifier)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.clock = func() time.Time { return now }
	return c, &now
}

func register(t *testing.T, c *Controller, policyID string, cfg Config) {
	t.Helper()
	if err := c.Register(policyID, cfg); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
}

// feedCohort records n cohort outcomes, ok of them successful.
func feedCohort(c *Controller, policyID string, n, ok int) {
	for i := 0; i < n; i++ {
		c.RecordOutcome(policyID, true, i < ok)
	}
}

// ============================================================================
// Ladder Tests
// ============================================================================

func TestRungs(t *testing.T) {
	tests := []struct {
		pct        int
		next, prev int
	}{
		{0, 1, 0},
		{1, 5, 0},
		{5, 10, 1},
		{10, 25, 5},
		{25, 50, 10},
		{50, 100, 25},
		{100, 100, 50},
		{7, 10, 5}, // off-ladder values snap to neighbours
	}

	for _, tt := range tests {
		if got := nextRung(tt.pct); got != tt.next {
			t.Errorf("nextRung(%d) = %d, want %d", tt.pct, got, tt.next)
		}
		if got := prevRung(tt.pct); got != tt.prev {
			t.Errorf("prevRung(%d) = %d, want %d", tt.pct, got, tt.prev)
		}
	}
}

// ============================================================================
// Cohort Tests
// ============================================================================

func TestInCohort_Sticky(t *testing.T) {
	c, _ := newTestController(nil)
	register(t, c, "geo-1", DefaultConfig())

	if _, err := c.SetTrafficPercentage("geo-1", 50, "test"); err != nil {
		t.Fatalf("SetTrafficPercentage failed: %v", err)
	}

	first := c.InCohort("geo-1", "agent-42")
	for i := 0; i < 20; i++ {
		if c.InCohort("geo-1", "agent-42") != first {
			t.Fatal("cohort assignment must be stable for a given agent")
		}
	}
}

func TestInCohort_RaisingPercentageOnlyAddsAgents(t *testing.T) {
	c, _ := newTestController(nil)
	register(t, c, "geo-1", DefaultConfig())

	agents := []string{"a", "b", "c", "d", "e", "f", "g", "h", "agent-1", "agent-2"}

	if _, err := c.SetTrafficPercentage("geo-1", 10, "test"); err != nil {
		t.Fatal(err)
	}
	at10 := make(map[string]bool)
	for _, a := range agents {
		at10[a] = c.InCohort("geo-1", a)
	}

	if _, err := c.SetTrafficPercentage("geo-1", 50, "test"); err != nil {
		t.Fatal(err)
	}
	for _, a := range agents {
		if at10[a] && !c.InCohort("geo-1", a) {
			t.Errorf("agent %s left the cohort when the percentage was raised", a)
		}
	}
}

func TestInCohort_UnregisteredPolicyCoversEveryone(t *testing.T) {
	c, _ := newTestController(nil)
	if !c.InCohort("no-canary", "agent-1") {
		t.Error("a policy without a canary should apply to all traffic")
	}
}

func TestInCohort_FullRollout(t *testing.T) {
	c, _ := newTestController(nil)
	register(t, c, "geo-1", DefaultConfig())
	if _, err := c.SetTrafficPercentage("geo-1", 100, "test"); err != nil {
		t.Fatal(err)
	}
	for _, a := range []string{"x", "y", "z", "agent-9"} {
		if !c.InCohort("geo-1", a) {
			t.Errorf("agent %s excluded at 100%%", a)
		}
	}
}

// ============================================================================
// Promotion / Rollback Tests
// ============================================================================

func TestEvaluate_PromotesAlongLadder(t *testing.T) {
	notifier := notify.NewMemoryNotifier()
	c, _ := newTestController(notifier)
	register(t, c, "geo-1", Config{
		InitialPercentage:       10,
		PromotionThreshold:      95,
		RollbackThreshold:       90,
		MinRequestsForPromotion: 100,
		EvaluationWindow:        10 * time.Minute,
		AutoPromote:             true,
		AutoRollback:            true,
	})

	// 146/150 = 97.3% over >= 100 requests: promote 10 -> 25.
	feedCohort(c, "geo-1", 150, 146)

	change, err := c.Evaluate(context.Background(), "geo-1")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if change == nil {
		t.Fatal("expected a promotion change")
	}
	if change.FromPercentage != 10 || change.ToPercentage != 25 {
		t.Errorf("expected 10 -> 25, got %d -> %d", change.FromPercentage, change.ToPercentage)
	}
	if change.TriggeredBy != "AUTO_PROMOTE" {
		t.Errorf("expected AUTO_PROMOTE, got %s", change.TriggeredBy)
	}

	events := notifier.Events()
	if len(events) != 1 || events[0].Type != notify.CanaryPromoted {
		t.Errorf("expected a CanaryPromoted notification, got %+v", events)
	}
}

func TestEvaluate_PromotionRequiresMinRequests(t *testing.T) {
	c, _ := newTestController(nil)
	cfg := DefaultConfig()
	cfg.InitialPercentage = 10
	cfg.MinRequestsForPromotion = 100
	register(t, c, "geo-1", cfg)

	// 100% success but only 50 requests: hold.
	feedCohort(c, "geo-1", 50, 50)

	change, err := c.Evaluate(context.Background(), "geo-1")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if change != nil {
		t.Errorf("expected no change below the minimum sample, got %+v", change)
	}
}

func TestEvaluate_RollsBackOnLowSuccessRate(t *testing.T) {
	notifier := notify.NewMemoryNotifier()
	c, _ := newTestController(notifier)
	register(t, c, "geo-1", Config{
		InitialPercentage:       25,
		PromotionThreshold:      95,
		RollbackThreshold:       90,
		MinRequestsForPromotion: 100,
		EvaluationWindow:        10 * time.Minute,
		AutoPromote:             true,
		AutoRollback:            true,
	})

	// 40/50 = 80% < 90%: roll back 25 -> 10. Rollback does not wait
	// for the promotion sample size.
	feedCohort(c, "geo-1", 50, 40)

	change, err := c.Evaluate(context.Background(), "geo-1")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if change == nil {
		t.Fatal("expected a rollback change")
	}
	if change.FromPercentage != 25 || change.ToPercentage != 10 {
		t.Errorf("expected 25 -> 10, got %d -> %d", change.FromPercentage, change.ToPercentage)
	}
	if change.TriggeredBy != "AUTO_ROLLBACK_ERROR_RATE" {
		t.Errorf("expected AUTO_ROLLBACK_ERROR_RATE, got %s", change.TriggeredBy)
	}

	events := notifier.Events()
	if len(events) != 1 || events[0].Type != notify.CanaryRolledBack {
		t.Errorf("expected a CanaryRolledBack notification, got %+v", events)
	}
}

func TestEvaluate_NoTrafficNoChange(t *testing.T) {
	c, _ := newTestController(nil)
	register(t, c, "geo-1", DefaultConfig())

	change, err := c.Evaluate(context.Background(), "geo-1")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if change != nil {
		t.Errorf("expected no change without traffic, got %+v", change)
	}
}

func TestEvaluate_HoldsAtFullRollout(t *testing.T) {
	c, _ := newTestController(nil)
	cfg := DefaultConfig()
	cfg.InitialPercentage = 100
	register(t, c, "geo-1", cfg)

	feedCohort(c, "geo-1", 200, 200)

	change, err := c.Evaluate(context.Background(), "geo-1")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if change != nil {
		t.Errorf("expected no promotion past 100%%, got %+v", change)
	}
}

func TestEvaluate_AutoFlagsDisableTransitions(t *testing.T) {
	c, _ := newTestController(nil)
	cfg := DefaultConfig()
	cfg.InitialPercentage = 25
	cfg.AutoPromote = false
	cfg.AutoRollback = false
	register(t, c, "geo-1", cfg)

	feedCohort(c, "geo-1", 200, 100) // 50%: would roll back if enabled

	change, err := c.Evaluate(context.Background(), "geo-1")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if change != nil {
		t.Errorf("expected no change with auto transitions disabled, got %+v", change)
	}
}

func TestEvaluate_UnknownPolicy(t *testing.T) {
	c, _ := newTestController(nil)
	if _, err := c.Evaluate(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEvaluate_WindowExpiresOldSamples(t *testing.T) {
	c, now := newTestController(nil)
	cfg := DefaultConfig()
	cfg.InitialPercentage = 25
	register(t, c, "geo-1", cfg)

	// Bad traffic that then ages out of the window.
	feedCohort(c, "geo-1", 50, 10)
	*now = now.Add(11 * time.Minute)

	change, err := c.Evaluate(context.Background(), "geo-1")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if change != nil {
		t.Errorf("expired samples should not trigger a rollback, got %+v", change)
	}
}

// ============================================================================
// Manual Override Tests
// ============================================================================

func TestSetTrafficPercentage(t *testing.T) {
	c, _ := newTestController(nil)
	register(t, c, "geo-1", DefaultConfig())

	change, err := c.SetTrafficPercentage("geo-1", 42, "ops")
	if err != nil {
		t.Fatalf("SetTrafficPercentage failed: %v", err)
	}
	if change.ToPercentage != 42 || change.TriggeredBy != "MANUAL" {
		t.Errorf("unexpected change: %+v", change)
	}

	snap, err := c.State("geo-1")
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	if snap.TrafficPercentage != 42 {
		t.Errorf("expected 42%%, got %d%%", snap.TrafficPercentage)
	}
}

func TestSetTrafficPercentage_RejectsOutOfRange(t *testing.T) {
	c, _ := newTestController(nil)
	register(t, c, "geo-1", DefaultConfig())

	var cfgErr *ConfigError
	if _, err := c.SetTrafficPercentage("geo-1", 101, "ops"); !errors.As(err, &cfgErr) {
		t.Errorf("expected ConfigError, got %v", err)
	}
}

func TestRollback_DefaultsToPreviousRung(t *testing.T) {
	c, _ := newTestController(nil)
	cfg := DefaultConfig()
	cfg.InitialPercentage = 50
	register(t, c, "geo-1", cfg)

	change, err := c.Rollback("geo-1", nil, "ops")
	if err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if change.FromPercentage != 50 || change.ToPercentage != 25 {
		t.Errorf("expected 50 -> 25, got %d -> %d", change.FromPercentage, change.ToPercentage)
	}
}

func TestRollback_ExplicitTarget(t *testing.T) {
	c, _ := newTestController(nil)
	cfg := DefaultConfig()
	cfg.InitialPercentage = 50
	register(t, c, "geo-1", cfg)

	target := 0
	change, err := c.Rollback("geo-1", &target, "ops")
	if err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if change.ToPercentage != 0 {
		t.Errorf("expected rollback to 0, got %d", change.ToPercentage)
	}
}

func TestManualOverride_BumpsVersion(t *testing.T) {
	c, _ := newTestController(nil)
	register(t, c, "geo-1", DefaultConfig())

	before, _ := c.State("geo-1")
	if _, err := c.SetTrafficPercentage("geo-1", 25, "ops"); err != nil {
		t.Fatal(err)
	}
	after, _ := c.State("geo-1")
	if after.Version <= before.Version {
		t.Errorf("manual override should bump the version: %d -> %d", before.Version, after.Version)
	}
}

// ============================================================================
// Registration Tests
// ============================================================================

func TestRegister_ReRegisterKeepsPercentage(t *testing.T) {
	c, _ := newTestController(nil)
	register(t, c, "geo-1", DefaultConfig())
	if _, err := c.SetTrafficPercentage("geo-1", 25, "ops"); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.PromotionThreshold = 99
	register(t, c, "geo-1", cfg)

	snap, _ := c.State("geo-1")
	if snap.TrafficPercentage != 25 {
		t.Errorf("re-register should keep the percentage, got %d", snap.TrafficPercentage)
	}
	if snap.Config.PromotionThreshold != 99 {
		t.Errorf("re-register should update the config, got %f", snap.Config.PromotionThreshold)
	}
}

func TestDeregister(t *testing.T) {
	c, _ := newTestController(nil)
	register(t, c, "geo-1", DefaultConfig())

	c.Deregister("geo-1")
	if c.Enabled("geo-1") {
		t.Error("policy should not be enabled after deregistration")
	}
	if !c.InCohort("geo-1", "any-agent") {
		t.Error("deregistered policy should revert to full traffic")
	}

	// Unknown policy is a no-op.
	c.Deregister("never-registered")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"negative initial", func(c *Config) { c.InitialPercentage = -1 }, true},
		{"initial above 100", func(c *Config) { c.InitialPercentage = 101 }, true},
		{"promotion below rollback", func(c *Config) { c.PromotionThreshold = 80; c.RollbackThreshold = 90 }, true},
		{"negative min requests", func(c *Config) { c.MinRequestsForPromotion = -1 }, true},
		{"zero window", func(c *Config) { c.EvaluationWindow = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
