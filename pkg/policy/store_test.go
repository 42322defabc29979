package policy

import (
	"errors"
	"testing"
)

func validPolicy(id string) *Policy {
	return &Policy{
		ID:      id,
		Name:    "test " + id,
		Type:    TypeGeofence,
		Enabled: true,
		Config:  RuleConfig{BlockedCountries: []string{"RU"}},
	}
}

func TestStore_UpsertCreatesVersionOne(t *testing.T) {
	s := NewStore()
	if err := s.Upsert(validPolicy("geo-1")); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	p, err := s.Get("geo-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if p.ActiveVersion != 1 {
		t.Errorf("expected version 1, got %d", p.ActiveVersion)
	}
	if len(p.Versions) != 1 {
		t.Errorf("expected 1 version, got %d", len(p.Versions))
	}
}

func TestStore_ConfigChangeCreatesNewVersion(t *testing.T) {
	s := NewStore()
	if err := s.Upsert(validPolicy("geo-1")); err != nil {
		t.Fatal(err)
	}

	updated := validPolicy("geo-1")
	updated.Config.BlockedCountries = []string{"RU", "KP"}
	if err := s.Upsert(updated); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	p, _ := s.Get("geo-1")
	if p.ActiveVersion != 2 {
		t.Errorf("expected version 2 after config change, got %d", p.ActiveVersion)
	}
	if len(p.Versions) != 2 {
		t.Errorf("expected 2 retained versions, got %d", len(p.Versions))
	}

	// A no-op update does not create a version.
	if err := s.Upsert(updated); err != nil {
		t.Fatal(err)
	}
	p, _ = s.Get("geo-1")
	if p.ActiveVersion != 2 {
		t.Errorf("unchanged config must not create a version, got %d", p.ActiveVersion)
	}
}

func TestStore_RollbackVersionIsAppendOnly(t *testing.T) {
	s := NewStore()
	if err := s.Upsert(validPolicy("geo-1")); err != nil {
		t.Fatal(err)
	}
	updated := validPolicy("geo-1")
	updated.Config.BlockedCountries = []string{"RU", "KP"}
	if err := s.Upsert(updated); err != nil {
		t.Fatal(err)
	}

	if err := s.RollbackVersion("geo-1", 1); err != nil {
		t.Fatalf("RollbackVersion failed: %v", err)
	}

	p, _ := s.Get("geo-1")
	if p.ActiveVersion != 3 {
		t.Errorf("rollback should create version 3, got %d", p.ActiveVersion)
	}
	if len(p.Config.BlockedCountries) != 1 || p.Config.BlockedCountries[0] != "RU" {
		t.Errorf("expected version 1 config restored, got %v", p.Config.BlockedCountries)
	}
	if len(p.Versions) != 3 {
		t.Errorf("history must stay append-only, got %d versions", len(p.Versions))
	}
}

func TestStore_RollbackToMissingVersion(t *testing.T) {
	s := NewStore()
	if err := s.Upsert(validPolicy("geo-1")); err != nil {
		t.Fatal(err)
	}
	if err := s.RollbackVersion("geo-1", 99); !errors.Is(err, ErrVersionNotFound) {
		t.Errorf("expected ErrVersionNotFound, got %v", err)
	}
	if err := s.RollbackVersion("missing", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_SetEnabled(t *testing.T) {
	s := NewStore()
	if err := s.Upsert(validPolicy("geo-1")); err != nil {
		t.Fatal(err)
	}

	if err := s.SetEnabled("geo-1", false); err != nil {
		t.Fatalf("SetEnabled failed: %v", err)
	}
	if got := s.Enabled(); len(got) != 0 {
		t.Errorf("expected no enabled policies, got %d", len(got))
	}
	if got := s.List(); len(got) != 1 {
		t.Errorf("disabled policies still list, got %d", len(got))
	}

	if err := s.SetEnabled("missing", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := NewStore()
	if err := s.Upsert(validPolicy("geo-1")); err != nil {
		t.Fatal(err)
	}

	p, _ := s.Get("geo-1")
	p.Config.BlockedCountries[0] = "XX"
	p.Enabled = false

	fresh, _ := s.Get("geo-1")
	if fresh.Config.BlockedCountries[0] != "RU" || !fresh.Enabled {
		t.Error("Get must return an isolated copy")
	}
}

func TestStore_ReplacePreservesVersionHistory(t *testing.T) {
	s := NewStore()
	if err := s.Upsert(validPolicy("geo-1")); err != nil {
		t.Fatal(err)
	}

	// Same id, changed config: version history continues.
	changed := validPolicy("geo-1")
	changed.Config.BlockedCountries = []string{"KP"}
	if err := s.Replace([]*Policy{changed, validPolicy("geo-2")}); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	p, _ := s.Get("geo-1")
	if p.ActiveVersion != 2 || len(p.Versions) != 2 {
		t.Errorf("expected continued history (v2), got v%d with %d versions", p.ActiveVersion, len(p.Versions))
	}

	fresh, _ := s.Get("geo-2")
	if fresh.ActiveVersion != 1 {
		t.Errorf("new policy should start at version 1, got %d", fresh.ActiveVersion)
	}

	// Policies absent from the new set are gone.
	if err := s.Replace([]*Policy{validPolicy("geo-2")}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get("geo-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected geo-1 removed, got %v", err)
	}
}

func TestStore_ReplaceRejectsInvalidSetAtomically(t *testing.T) {
	s := NewStore()
	if err := s.Upsert(validPolicy("geo-1")); err != nil {
		t.Fatal(err)
	}

	bad := validPolicy("bad-1")
	bad.Type = Type("NONSENSE")
	if err := s.Replace([]*Policy{validPolicy("geo-2"), bad}); err == nil {
		t.Fatal("expected Replace to reject an invalid set")
	}

	// The previous set stays live.
	if _, err := s.Get("geo-1"); err != nil {
		t.Errorf("previous set should survive a rejected replace: %v", err)
	}
	if _, err := s.Get("geo-2"); !errors.Is(err, ErrNotFound) {
		t.Error("no part of a rejected replace may be applied")
	}
}

func TestValidatePolicy(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Policy)
		valid  bool
	}{
		{"valid", func(p *Policy) {}, true},
		{"empty id", func(p *Policy) { p.ID = "" }, false},
		{"unknown type", func(p *Policy) { p.Type = "WEIRD" }, false},
		{"breaker threshold too high", func(p *Policy) { p.Breaker.ErrorThreshold = 101 }, false},
		{"negative breaker window", func(p *Policy) { p.Breaker.WindowMinutes = -1 }, false},
		{"canary thresholds inverted", func(p *Policy) {
			p.Canary.Enabled = true
			p.Canary.PromotionThreshold = 80
			p.Canary.RollbackThreshold = 90
		}, false},
		{"canary initial out of range", func(p *Policy) {
			p.Canary.Enabled = true
			p.Canary.InitialPercentage = 150
		}, false},
		{"canary disabled skips canary checks", func(p *Policy) {
			p.Canary.Enabled = false
			p.Canary.InitialPercentage = 150
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPolicy("geo-1")
			tt.mutate(p)
			err := ValidatePolicy(p)
			if tt.valid && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.valid && err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestBaselineConfig(t *testing.T) {
	p := validPolicy("geo-1")
	p.Versions = []Version{
		{Number: 1, Config: RuleConfig{BlockedCountries: []string{"RU"}}},
		{Number: 2, Config: RuleConfig{BlockedCountries: []string{"RU", "KP"}}},
	}
	base := p.BaselineConfig()
	if len(base.BlockedCountries) != 1 {
		t.Errorf("baseline should be the previous version, got %v", base.BlockedCountries)
	}

	p.Versions = p.Versions[:1]
	base = p.BaselineConfig()
	if len(base.BlockedCountries) != 1 || base.BlockedCountries[0] != "RU" {
		t.Errorf("single-version baseline is the active config, got %v", base.BlockedCountries)
	}
}
