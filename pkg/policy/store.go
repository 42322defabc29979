package policy

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Store holds all policy definitions. It is the single read path for the
// decision engine, the safety layers, and the simulator.
//
// Store is thread-safe. Reads take a shared lock; the decision path only
// ever reads.
type Store struct {
	mu       sync.RWMutex
	policies map[string]*Policy
	logger   *slog.Logger
	clock    func() time.Time
}

// NewStore creates an empty policy store.
func NewStore() *Store {
	return &Store{
		policies: make(map[string]*Policy),
		logger:   slog.Default().With("component", "policy.store"),
		clock:    time.Now,
	}
}

// Upsert creates a policy or updates an existing one. Every update that
// changes the rule configuration creates a new version; prior versions
// are retained for rollback.
//
// The definition is validated before any state changes; an invalid
// policy is rejected without side effects.
func (s *Store) Upsert(p *Policy) error {
	if err := ValidatePolicy(p); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	existing, ok := s.policies[p.ID]
	if !ok {
		stored := clonePolicy(p)
		stored.ActiveVersion = 1
		stored.Versions = []Version{{Number: 1, Config: stored.Config, CreatedAt: now}}
		stored.UpdatedAt = now
		s.policies[p.ID] = stored
		s.logger.Info("policy created", "policy_id", p.ID, "type", p.Type, "version", 1)
		return nil
	}

	updated := clonePolicy(p)
	updated.Versions = existing.Versions
	updated.ActiveVersion = existing.ActiveVersion
	if !configEqual(existing.Config, p.Config) {
		next := existing.Versions[len(existing.Versions)-1].Number + 1
		updated.Versions = append(updated.Versions, Version{Number: next, Config: p.Config, CreatedAt: now})
		updated.ActiveVersion = next
		s.logger.Info("policy updated", "policy_id", p.ID, "version", next)
	}
	updated.UpdatedAt = now
	s.policies[p.ID] = updated
	return nil
}

// Get returns the policy with the given id.
func (s *Store) Get(id string) (*Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.policies[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return clonePolicy(p), nil
}

// List returns all policies sorted by id.
func (s *Store) List() []*Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Policy, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, clonePolicy(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Enabled returns all enabled policies sorted by id. This is the set the
// decision engine evaluates per request.
func (s *Store) Enabled() []*Policy {
	all := s.List()
	out := all[:0]
	for _, p := range all {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// SetEnabled flips the enabled flag of a policy.
func (s *Store) SetEnabled(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.policies[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	p.Enabled = enabled
	p.UpdatedAt = s.clock()
	s.logger.Info("policy enabled flag changed", "policy_id", id, "enabled", enabled)
	return nil
}

// RollbackVersion reverts a policy's active configuration to a prior
// version. The rollback itself is recorded as a new version so the
// version history stays append-only.
func (s *Store) RollbackVersion(id string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.policies[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	var target *Version
	for i := range p.Versions {
		if p.Versions[i].Number == version {
			target = &p.Versions[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("%w: policy %s version %d", ErrVersionNotFound, id, version)
	}

	now := s.clock()
	next := p.Versions[len(p.Versions)-1].Number + 1
	p.Versions = append(p.Versions, Version{Number: next, Config: target.Config, CreatedAt: now})
	p.Config = target.Config
	p.ActiveVersion = next
	p.UpdatedAt = now
	s.logger.Info("policy rolled back", "policy_id", id, "to_version", version, "new_version", next)
	return nil
}

// Delete removes a policy from the store.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.policies[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.policies, id)
	s.logger.Info("policy deleted", "policy_id", id)
	return nil
}

// Replace swaps the entire policy set atomically, preserving version
// history for policies whose id survives the reload. Used by the file
// source on hot reload. If any policy is invalid the whole replacement
// is rejected and the current set stays live.
func (s *Store) Replace(policies []*Policy) error {
	for _, p := range policies {
		if err := ValidatePolicy(p); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	next := make(map[string]*Policy, len(policies))
	for _, p := range policies {
		stored := clonePolicy(p)
		prev, existed := s.policies[p.ID]
		switch {
		case !existed:
			stored.ActiveVersion = 1
			stored.Versions = []Version{{Number: 1, Config: stored.Config, CreatedAt: now}}
		case configEqual(prev.Config, p.Config):
			stored.Versions = append([]Version(nil), prev.Versions...)
			stored.ActiveVersion = prev.ActiveVersion
		default:
			n := prev.Versions[len(prev.Versions)-1].Number + 1
			stored.Versions = append(append([]Version(nil), prev.Versions...), Version{Number: n, Config: stored.Config, CreatedAt: now})
			stored.ActiveVersion = n
		}
		stored.UpdatedAt = now
		next[p.ID] = stored
	}
	s.policies = next
	s.logger.Info("policy set replaced", "policy_count", len(next))
	return nil
}

// ValidatePolicy checks a policy definition for configure-time errors.
func ValidatePolicy(p *Policy) error {
	if p == nil {
		return &ValidationError{Field: "policy", Message: "policy cannot be nil"}
	}
	if p.ID == "" {
		return &ValidationError{Field: "id", Message: "id cannot be empty"}
	}
	switch p.Type {
	case TypeGeofence, TypeAgentRevocation, TypeDataTransfer, TypeProcessingRestriction:
	default:
		return &ValidationError{PolicyID: p.ID, Field: "type", Message: fmt.Sprintf("unknown policy type %q", p.Type)}
	}

	b := p.Breaker
	if b.ErrorThreshold < 0 || b.ErrorThreshold > 100 {
		return &ValidationError{PolicyID: p.ID, Field: "breaker.error_threshold", Message: "must be within [0, 100]"}
	}
	if b.WindowMinutes < 0 {
		return &ValidationError{PolicyID: p.ID, Field: "breaker.window_minutes", Message: "must be positive"}
	}
	if b.CooldownMinutes < 0 {
		return &ValidationError{PolicyID: p.ID, Field: "breaker.cooldown_minutes", Message: "must be positive"}
	}

	c := p.Canary
	if c.Enabled {
		if c.PromotionThreshold < 0 || c.PromotionThreshold > 100 {
			return &ValidationError{PolicyID: p.ID, Field: "canary.promotion_threshold", Message: "must be within [0, 100]"}
		}
		if c.RollbackThreshold < 0 || c.RollbackThreshold > 100 {
			return &ValidationError{PolicyID: p.ID, Field: "canary.rollback_threshold", Message: "must be within [0, 100]"}
		}
		if c.PromotionThreshold != 0 && c.RollbackThreshold != 0 && c.PromotionThreshold < c.RollbackThreshold {
			return &ValidationError{
				PolicyID: p.ID,
				Field:    "canary.promotion_threshold",
				Message:  "promotion threshold must be >= rollback threshold",
			}
		}
		if c.InitialPercentage < 0 || c.InitialPercentage > 100 {
			return &ValidationError{PolicyID: p.ID, Field: "canary.initial_percentage", Message: "must be within [0, 100]"}
		}
		if c.MinRequestsForPromotion < 0 {
			return &ValidationError{PolicyID: p.ID, Field: "canary.min_requests_for_promotion", Message: "must be positive"}
		}
	}
	return nil
}

func clonePolicy(p *Policy) *Policy {
	out := *p
	out.Versions = append([]Version(nil), p.Versions...)
	out.Config = cloneRuleConfig(p.Config)
	return &out
}

func cloneRuleConfig(c RuleConfig) RuleConfig {
	return RuleConfig{
		BlockedCountries:  append([]string(nil), c.BlockedCountries...),
		RevokedAgents:     append([]string(nil), c.RevokedAgents...),
		AllowedRegions:    append([]string(nil), c.AllowedRegions...),
		RestrictedActions: append([]string(nil), c.RestrictedActions...),
	}
}

func configEqual(a, b RuleConfig) bool {
	return sliceEqual(a.BlockedCountries, b.BlockedCountries) &&
		sliceEqual(a.RevokedAgents, b.RevokedAgents) &&
		sliceEqual(a.AllowedRegions, b.AllowedRegions) &&
		sliceEqual(a.RestrictedActions, b.RestrictedActions)
}

func sliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
