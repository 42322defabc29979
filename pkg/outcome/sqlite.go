package outcome

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteConfig contains configuration for the SQLite outcome backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// BusyTimeout is how long to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/outcomes.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		BusyTimeout:  5 * time.Second,
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS outcome_events (
    id TEXT PRIMARY KEY,
    request_id TEXT NOT NULL,
    agent_id TEXT NOT NULL,
    policy_id TEXT NOT NULL,
    policy_type TEXT NOT NULL,
    policy_version INTEGER NOT NULL,
    action_type TEXT,
    action_summary TEXT,
    target_region TEXT,
    detected_country TEXT,
    endpoint TEXT,
    would_block BOOLEAN NOT NULL,
    would_allow BOOLEAN NOT NULL,
    enforced BOOLEAN NOT NULL,
    in_canary_cohort BOOLEAN NOT NULL,
    eval_failed BOOLEAN NOT NULL,
    risk_level TEXT,
    block_reason TEXT,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_outcome_timestamp ON outcome_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_outcome_agent ON outcome_events(agent_id);
CREATE INDEX IF NOT EXISTS idx_outcome_policy ON outcome_events(policy_id);

CREATE TABLE IF NOT EXISTS transitions (
    id TEXT PRIMARY KEY,
    policy_id TEXT,
    kind TEXT NOT NULL,
    from_state TEXT,
    to_state TEXT,
    from_percentage INTEGER,
    to_percentage INTEGER,
    error_rate REAL,
    success_rate REAL,
    error_count INTEGER,
    total_requests INTEGER,
    triggered_by TEXT NOT NULL,
    reason TEXT,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transitions_policy ON transitions(policy_id, kind);
CREATE INDEX IF NOT EXISTS idx_transitions_timestamp ON transitions(timestamp);
`

// SQLiteBackend implements Backend using SQLite for a durable outcome
// log. WAL mode is enabled for concurrent reader performance: the
// recorder worker writes while the simulator and analytics jobs read.
type SQLiteBackend struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger

	saveStmt     *sql.Stmt
	saveTranStmt *sql.Stmt
}

// NewSQLiteBackend opens (or creates) the outcome database at the
// configured path and initializes the schema.
func NewSQLiteBackend(config *SQLiteConfig) (*SQLiteBackend, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}

	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open outcome database %q: %w", config.Path, err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteBackend{
		db:     db,
		config: config,
		logger: slog.Default().With("component", "outcome.storage.sqlite"),
	}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteBackend) initialize() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", s.config.BusyTimeout.Milliseconds()),
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize outcome schema: %w", err)
	}

	var err error
	s.saveStmt, err = s.db.Prepare(`
        INSERT INTO outcome_events (
            id, request_id, agent_id, policy_id, policy_type, policy_version,
            action_type, action_summary, target_region, detected_country, endpoint,
            would_block, would_allow, enforced, in_canary_cohort, eval_failed,
            risk_level, block_reason, timestamp
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare save statement: %w", err)
	}

	s.saveTranStmt, err = s.db.Prepare(`
        INSERT INTO transitions (
            id, policy_id, kind, from_state, to_state, from_percentage,
            to_percentage, error_rate, success_rate, error_count,
            total_requests, triggered_by, reason, timestamp
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare transition statement: %w", err)
	}

	s.logger.Info("outcome database initialized", "path", s.config.Path)
	return nil
}

// Save persists one outcome event.
func (s *SQLiteBackend) Save(ctx context.Context, ev *Event) error {
	if ev == nil {
		return fmt.Errorf("event cannot be nil")
	}

	_, err := s.saveStmt.ExecContext(ctx,
		ev.ID, ev.RequestID, ev.AgentID, ev.PolicyID, ev.PolicyType, ev.PolicyVersion,
		ev.ActionType, ev.ActionSummary, ev.TargetRegion, ev.DetectedCountry, ev.Endpoint,
		ev.WouldBlock, ev.WouldAllow, ev.Enforced, ev.InCanaryCohort, ev.EvalFailed,
		ev.RiskLevel, ev.BlockReason, ev.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save outcome event: %w", err)
	}
	return nil
}

// Query returns events matching the filter, newest first.
func (s *SQLiteBackend) Query(ctx context.Context, f Filter) ([]*Event, error) {
	where, args := buildWhere(f)
	q := `SELECT id, request_id, agent_id, policy_id, policy_type, policy_version,
               action_type, action_summary, target_region, detected_country, endpoint,
               would_block, would_allow, enforced, in_canary_cohort, eval_failed,
               risk_level, block_reason, timestamp
          FROM outcome_events` + where + " ORDER BY timestamp DESC"
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcome events: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(
			&ev.ID, &ev.RequestID, &ev.AgentID, &ev.PolicyID, &ev.PolicyType, &ev.PolicyVersion,
			&ev.ActionType, &ev.ActionSummary, &ev.TargetRegion, &ev.DetectedCountry, &ev.Endpoint,
			&ev.WouldBlock, &ev.WouldAllow, &ev.Enforced, &ev.InCanaryCohort, &ev.EvalFailed,
			&ev.RiskLevel, &ev.BlockReason, &ev.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outcome event: %w", err)
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

// Count returns the number of events matching the filter.
func (s *SQLiteBackend) Count(ctx context.Context, f Filter) (int64, error) {
	where, args := buildWhere(f)
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM outcome_events"+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count outcome events: %w", err)
	}
	return n, nil
}

// SaveTransition persists one transition record.
func (s *SQLiteBackend) SaveTransition(ctx context.Context, tr *Transition) error {
	if tr == nil {
		return fmt.Errorf("transition cannot be nil")
	}

	_, err := s.saveTranStmt.ExecContext(ctx,
		tr.ID, tr.PolicyID, string(tr.Kind), tr.FromState, tr.ToState,
		tr.FromPercentage, tr.ToPercentage, tr.ErrorRate, tr.SuccessRate,
		tr.ErrorCount, tr.TotalRequests, tr.TriggeredBy, tr.Reason, tr.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save transition: %w", err)
	}
	return nil
}

// Transitions returns transition records, newest first.
func (s *SQLiteBackend) Transitions(ctx context.Context, policyID string, kind TransitionKind, limit int) ([]*Transition, error) {
	var conds []string
	var args []any
	if policyID != "" {
		conds = append(conds, "policy_id = ?")
		args = append(args, policyID)
	}
	if kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(kind))
	}
	q := `SELECT id, policy_id, kind, from_state, to_state, from_percentage,
               to_percentage, error_rate, success_rate, error_count,
               total_requests, triggered_by, reason, timestamp
          FROM transitions`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY timestamp DESC"
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	var out []*Transition
	for rows.Next() {
		var tr Transition
		var kindStr string
		if err := rows.Scan(
			&tr.ID, &tr.PolicyID, &kindStr, &tr.FromState, &tr.ToState,
			&tr.FromPercentage, &tr.ToPercentage, &tr.ErrorRate, &tr.SuccessRate,
			&tr.ErrorCount, &tr.TotalRequests, &tr.TriggeredBy, &tr.Reason, &tr.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		tr.Kind = TransitionKind(kindStr)
		out = append(out, &tr)
	}
	return out, rows.Err()
}

// Close closes the database and releases prepared statements.
func (s *SQLiteBackend) Close() error {
	if s.saveStmt != nil {
		s.saveStmt.Close()
	}
	if s.saveTranStmt != nil {
		s.saveTranStmt.Close()
	}
	return s.db.Close()
}

func buildWhere(f Filter) (string, []any) {
	var conds []string
	var args []any
	if f.AgentID != "" {
		conds = append(conds, "agent_id = ?")
		args = append(args, f.AgentID)
	}
	if f.PolicyID != "" {
		conds = append(conds, "policy_id = ?")
		args = append(args, f.PolicyID)
	}
	if f.WouldBlock != nil {
		conds = append(conds, "would_block = ?")
		args = append(args, *f.WouldBlock)
	}
	if f.InCanaryCohort != nil {
		conds = append(conds, "in_canary_cohort = ?")
		args = append(args, *f.InCanaryCohort)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, f.Since.UTC())
	}
	if !f.Until.IsZero() {
		conds = append(conds, "timestamp <= ?")
		args = append(args, f.Until.UTC())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
