// Package notify defines the notification hand-off from the enforcement
// core to the dispatcher collaborator. The core only emits events;
// delivery, content, and retry are owned elsewhere.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventType classifies a notification.
type EventType string

const (
	// ShadowViolation fires on the first would-block shadow outcome for
	// an agent within the alert window.
	ShadowViolation EventType = "SHADOW_MODE_VIOLATION"

	// CircuitOpened fires when a policy's circuit breaker opens.
	CircuitOpened EventType = "CIRCUIT_BREAKER_OPENED"

	// CircuitClosed fires when a policy's circuit breaker closes.
	CircuitClosed EventType = "CIRCUIT_BREAKER_CLOSED"

	// CanaryPromoted fires when canary traffic advances a rung.
	CanaryPromoted EventType = "CANARY_PROMOTED"

	// CanaryRolledBack fires when canary traffic reverts a rung.
	CanaryRolledBack EventType = "CANARY_ROLLED_BACK"

	// ModeChanged fires when the global enforcement mode changes.
	ModeChanged EventType = "ENFORCEMENT_MODE_CHANGED"
)

// Event is one notification trigger.
type Event struct {
	Type      EventType
	PolicyID  string
	AgentID   string
	Message   string
	Fields    map[string]any
	Timestamp time.Time
}

// Notifier receives notification events from the core. Implementations
// must not block for long; the core calls Notify from background
// goroutines, never from the hot decision path.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// LogNotifier writes notifications to the structured log. It is the
// default sink when no dispatcher is wired.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notify")}
}

// Notify logs the event.
func (n *LogNotifier) Notify(ctx context.Context, ev Event) {
	n.logger.Info("notification",
		"type", ev.Type,
		"policy_id", ev.PolicyID,
		"agent_id", ev.AgentID,
		"message", ev.Message,
	)
}

// MemoryNotifier captures events in memory. Test helper.
type MemoryNotifier struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryNotifier creates an in-memory capture notifier.
func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{}
}

// Notify records the event.
func (n *MemoryNotifier) Notify(ctx context.Context, ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

// Events returns a copy of all captured events.
func (n *MemoryNotifier) Events() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Event(nil), n.events...)
}
