package outcome

import (
	"context"
	"fmt"
	"sync"
)

// MemoryBackend implements Backend with in-memory ring buffers. It is
// the default backend: fast, no persistence, data lost on exit.
//
// MemoryBackend is thread-safe using sync.RWMutex.
type MemoryBackend struct {
	mu          sync.RWMutex
	events      []*Event
	transitions []*Transition
	maxEvents   int
}

// MemoryBackendConfig configures the memory backend.
type MemoryBackendConfig struct {
	// MaxEvents is the maximum number of events retained. Oldest events
	// are evicted first. Default: 100,000
	MaxEvents int
}

// NewMemoryBackend creates an in-memory backend with default settings.
func NewMemoryBackend() *MemoryBackend {
	return NewMemoryBackendWithConfig(MemoryBackendConfig{MaxEvents: 100000})
}

// NewMemoryBackendWithConfig creates an in-memory backend with custom
// configuration.
func NewMemoryBackendWithConfig(cfg MemoryBackendConfig) *MemoryBackend {
	if cfg.MaxEvents == 0 {
		cfg.MaxEvents = 100000
	}
	return &MemoryBackend{maxEvents: cfg.MaxEvents}
}

// Save persists one outcome event.
func (m *MemoryBackend) Save(ctx context.Context, ev *Event) error {
	if ev == nil {
		return fmt.Errorf("event cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, ev)
	if len(m.events) > m.maxEvents {
		// Drop the oldest half in one copy rather than shifting on
		// every insert.
		keep := m.maxEvents / 2
		m.events = append(m.events[:0:0], m.events[len(m.events)-keep:]...)
	}
	return nil
}

// Query returns events matching the filter, newest first.
func (m *MemoryBackend) Query(ctx context.Context, f Filter) ([]*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Event
	for i := len(m.events) - 1; i >= 0; i-- {
		ev := m.events[i]
		if !matches(ev, f) {
			continue
		}
		out = append(out, ev)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

// Count returns the number of events matching the filter.
func (m *MemoryBackend) Count(ctx context.Context, f Filter) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, ev := range m.events {
		if matches(ev, f) {
			n++
		}
	}
	return n, nil
}

// SaveTransition persists one transition record.
func (m *MemoryBackend) SaveTransition(ctx context.Context, tr *Transition) error {
	if tr == nil {
		return fmt.Errorf("transition cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.transitions = append(m.transitions, tr)
	if len(m.transitions) > m.maxEvents {
		keep := m.maxEvents / 2
		m.transitions = append(m.transitions[:0:0], m.transitions[len(m.transitions)-keep:]...)
	}
	return nil
}

// Transitions returns transition records, newest first.
func (m *MemoryBackend) Transitions(ctx context.Context, policyID string, kind TransitionKind, limit int) ([]*Transition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Transition
	for i := len(m.transitions) - 1; i >= 0; i-- {
		tr := m.transitions[i]
		if policyID != "" && tr.PolicyID != policyID {
			continue
		}
		if kind != "" && tr.Kind != kind {
			continue
		}
		out = append(out, tr)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Close releases backend resources. No-op for the memory backend.
func (m *MemoryBackend) Close() error {
	return nil
}

func matches(ev *Event, f Filter) bool {
	if f.AgentID != "" && ev.AgentID != f.AgentID {
		return false
	}
	if f.PolicyID != "" && ev.PolicyID != f.PolicyID {
		return false
	}
	if f.WouldBlock != nil && ev.WouldBlock != *f.WouldBlock {
		return false
	}
	if f.InCanaryCohort != nil && ev.InCanaryCohort != *f.InCanaryCohort {
		return false
	}
	if !f.Since.IsZero() && ev.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && ev.Timestamp.After(f.Until) {
		return false
	}
	return true
}
