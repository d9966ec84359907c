// Package audit records management actions (rule creation and deletion) in
// an in-memory SQLite database so they can be filtered and paged over the API.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"grimm.is/sentinel/internal/clock"

	_ "modernc.org/sqlite"
)

// Actions recorded by the engine.
const (
	ActionRuleCreate = "rule.create"
	ActionRuleDelete = "rule.delete"
)

// Event represents a single audit log entry.
type Event struct {
	ID        int64          `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Actor     string         `json:"actor,omitempty"` // client address, "config" for seeded rules
	RequestID string         `json:"request_id,omitempty"`
	Action    string         `json:"action"`
	Resource  string         `json:"resource"`
	Details   map[string]any `json:"details,omitempty"`
	Success   bool           `json:"success"`
}

// Filter narrows a Query. Zero fields match everything.
type Filter struct {
	Action string
	Since  time.Time
	Limit  int
}

// Store keeps audit events in SQLite.
type Store struct {
	db         *sql.DB
	clock      clock.Clock
	maxEntries int
}

const schema = `
	CREATE TABLE IF NOT EXISTS audit_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts INTEGER NOT NULL,
		actor TEXT,
		request_id TEXT,
		action TEXT NOT NULL,
		resource TEXT NOT NULL,
		details TEXT,
		success INTEGER NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_events(ts);
	CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_events(action);
`

// NewMemoryStore opens a private in-memory database. maxEntries bounds the
// number of retained rows (0 = unbounded).
func NewMemoryStore(clk clock.Clock, maxEntries int) (*Store, error) {
	return Open(":memory:", clk, maxEntries)
}

// Open opens or creates an audit database at dsn.
func Open(dsn string, clk clock.Clock, maxEntries int) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit table: %w", err)
	}

	return &Store{db: db, clock: clock.Or(clk), maxEntries: maxEntries}, nil
}

// Write persists an audit event and returns it with its id and timestamp.
func (s *Store) Write(ctx context.Context, evt Event) (Event, error) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = s.clock.Now()
	}

	var details []byte
	if evt.Details != nil {
		var err error
		if details, err = json.Marshal(evt.Details); err != nil {
			return Event{}, fmt.Errorf("encode audit details: %w", err)
		}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (ts, actor, request_id, action, resource, details, success)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, evt.Timestamp.UnixNano(), evt.Actor, evt.RequestID, evt.Action, evt.Resource, string(details), evt.Success)
	if err != nil {
		return Event{}, fmt.Errorf("insert audit event: %w", err)
	}
	if evt.ID, err = res.LastInsertId(); err != nil {
		return Event{}, fmt.Errorf("audit event id: %w", err)
	}

	if s.maxEntries > 0 {
		if _, err := s.db.ExecContext(ctx,
			"DELETE FROM audit_events WHERE id <= ?", evt.ID-int64(s.maxEntries)); err != nil {
			return evt, fmt.Errorf("trim audit events: %w", err)
		}
	}
	return evt, nil
}

// Query returns events matching f, newest first.
func (s *Store) Query(ctx context.Context, f Filter) ([]Event, error) {
	query := `SELECT id, ts, actor, request_id, action, resource, details, success
		FROM audit_events WHERE 1 = 1`
	var args []any

	if f.Action != "" {
		query += " AND action = ?"
		args = append(args, f.Action)
	}
	if !f.Since.IsZero() {
		query += " AND ts >= ?"
		args = append(args, f.Since.UnixNano())
	}
	query += " ORDER BY id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var (
			evt                       Event
			ts                        int64
			actor, reqID, detailsJSON sql.NullString
		)
		if err := rows.Scan(&evt.ID, &ts, &actor, &reqID, &evt.Action,
			&evt.Resource, &detailsJSON, &evt.Success); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		evt.Timestamp = time.Unix(0, ts)
		evt.Actor = actor.String
		evt.RequestID = reqID.String
		if detailsJSON.Valid && detailsJSON.String != "" {
			if err := json.Unmarshal([]byte(detailsJSON.String), &evt.Details); err != nil {
				return nil, fmt.Errorf("decode audit details %d: %w", evt.ID, err)
			}
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// Count returns the number of retained events.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events").Scan(&count)
	return count, err
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
