// Package mode holds the global enforcement mode switch: the single
// value deciding whether computed policy verdicts are actually applied.
package mode

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"veridion-hq/sentinel/pkg/notify"
	"veridion-hq/sentinel/pkg/outcome"
)

// Mode is the global enforcement mode.
type Mode string

const (
	// Shadow computes and logs verdicts but never denies a request.
	Shadow Mode = "SHADOW"

	// DryRun is like Shadow with full per-request decision detail
	// logged. Still never denies a request.
	DryRun Mode = "DRY_RUN"

	// Enforcing applies verdicts: blocking policies actually block.
	Enforcing Mode = "ENFORCING"
)

// Enforcing reports whether verdicts are applied in this mode.
func (m Mode) Enforcing() bool { return m == Enforcing }

// Parse validates and normalizes a mode string.
func Parse(s string) (Mode, error) {
	switch Mode(strings.ToUpper(strings.TrimSpace(s))) {
	case Shadow:
		return Shadow, nil
	case DryRun:
		return DryRun, nil
	case Enforcing:
		return Enforcing, nil
	default:
		return "", fmt.Errorf("invalid enforcement mode %q (want SHADOW, DRY_RUN, or ENFORCING)", s)
	}
}

// Record is one committed mode value with its provenance.
type Record struct {
	Mode        Mode      `json:"mode"`
	EnabledAt   time.Time `json:"enabled_at"`
	EnabledBy   string    `json:"enabled_by"`
	Description string    `json:"description"`
}

// Switch is the global enforcement mode holder. Reads are a single
// atomic pointer load because every request consults the mode; writes
// are serialized and appended to an immutable history.
//
// Concurrent Set calls are linearized by the write lock: the last
// committed write wins and a superseded caller receives the
// post-transition mode rather than an error, since mode changes are
// idempotent operator actions.
type Switch struct {
	current  atomic.Pointer[Record]
	writeMu  sync.Mutex
	history  []Record
	sink     *outcome.Recorder
	notifier notify.Notifier
	clock    func() time.Time
}

// NewSwitch creates a switch starting in the given mode. The sink and
// notifier may be nil.
func NewSwitch(initial Mode, sink *outcome.Recorder, notifier notify.Notifier) *Switch {
	s := &Switch{
		sink:     sink,
		notifier: notifier,
		clock:    time.Now,
	}
	rec := Record{Mode: initial, EnabledAt: s.clock(), EnabledBy: "system", Description: "initial mode"}
	s.current.Store(&rec)
	s.history = []Record{rec}
	return s
}

// Get returns the current mode. Safe to call on every request.
func (s *Switch) Get() Mode {
	return s.current.Load().Mode
}

// Current returns the full current record.
func (s *Switch) Current() Record {
	return *s.current.Load()
}

// Set transitions to the given mode. Transitions are unconditional
// between any two modes and global, not per-policy. Returns the
// committed record.
func (s *Switch) Set(m Mode, by, description string) (Record, error) {
	parsed, err := Parse(string(m))
	if err != nil {
		return Record{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	prev := s.current.Load().Mode
	rec := Record{Mode: parsed, EnabledAt: s.clock(), EnabledBy: by, Description: description}
	s.current.Store(&rec)
	s.history = append(s.history, rec)

	if s.sink != nil {
		s.sink.RecordTransition(&outcome.Transition{
			Kind:        outcome.KindMode,
			FromState:   string(prev),
			ToState:     string(parsed),
			TriggeredBy: by,
			Reason:      description,
			Timestamp:   rec.EnabledAt,
		})
	}
	if s.notifier != nil && prev != parsed {
		s.notifier.Notify(context.Background(), notify.Event{
			Type:      notify.ModeChanged,
			Message:   fmt.Sprintf("enforcement mode changed from %s to %s", prev, parsed),
			Fields:    map[string]any{"from": prev, "to": parsed, "by": by},
			Timestamp: rec.EnabledAt,
		})
	}
	return rec, nil
}

// History returns the append-only mode history, oldest first.
func (s *Switch) History() []Record {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return append([]Record(nil), s.history...)
}
