// Package sqlite provides a monitor.Store backed by a local SQLite file.
//
// Every write is committed with synchronous=FULL so the last known verdict
// survives a crash or restart.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Registers the pure-Go "sqlite" driver.
	_ "modernc.org/sqlite"

	"github.com/JakeFAU/liquidity-monitor/internal/monitor"
)

const schema = `
CREATE TABLE IF NOT EXISTS monitor_state (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	state      TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS cycle_history (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	id              TEXT NOT NULL,
	cycle_timestamp TEXT NOT NULL,
	verdict         TEXT NOT NULL,
	agreement       INTEGER NOT NULL,
	payload         TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS alert_events (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL,
	detected_at TEXT NOT NULL,
	payload     TEXT NOT NULL
);`

var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = FULL",
	"PRAGMA busy_timeout = 10000",
	"PRAGMA foreign_keys = ON",
}

// Store persists monitor data in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps pragmas in effect and serializes writers.
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// LoadLastState returns the saved state, or the zero state on first run.
func (s *Store) LoadLastState(ctx context.Context) (monitor.MonitorState, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM monitor_state WHERE id = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return monitor.MonitorState{}, nil
	}
	if err != nil {
		return monitor.MonitorState{}, fmt.Errorf("select state: %w", err)
	}
	var state monitor.MonitorState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return monitor.MonitorState{}, fmt.Errorf("decode state: %w", err)
	}
	return state, nil
}

// SaveState upserts the singleton state row.
func (s *Store) SaveState(ctx context.Context, state monitor.MonitorState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	updatedAt := time.Now().UTC()
	if state.LastCycleAt != nil {
		updatedAt = state.LastCycleAt.UTC()
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO monitor_state (id, state, updated_at) VALUES (1, ?, ?)
ON CONFLICT (id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		string(raw), updatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}
	return nil
}

// AppendHistory inserts one cycle result.
func (s *Store) AppendHistory(ctx context.Context, result monitor.ConsensusResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO cycle_history (id, cycle_timestamp, verdict, agreement, payload)
VALUES (?, ?, ?, ?, ?)`,
		result.ID, result.CycleTimestamp.UTC().Format(time.RFC3339Nano),
		string(result.Verdict), result.Agreement, string(raw))
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// AppendAlert inserts one alert event.
func (s *Store) AppendAlert(ctx context.Context, event monitor.AlertEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO alert_events (id, detected_at, payload) VALUES (?, ?, ?)`,
		event.ID, event.DetectedAt.UTC().Format(time.RFC3339Nano), string(raw))
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// RecentHistory returns up to limit results, newest first.
func (s *Store) RecentHistory(ctx context.Context, limit int) ([]monitor.ConsensusResult, error) {
	return recent[monitor.ConsensusResult](ctx, s.db,
		`SELECT payload FROM cycle_history ORDER BY seq DESC LIMIT ?`, limit)
}

// RecentAlerts returns up to limit alert events, newest first.
func (s *Store) RecentAlerts(ctx context.Context, limit int) ([]monitor.AlertEvent, error) {
	return recent[monitor.AlertEvent](ctx, s.db,
		`SELECT payload FROM alert_events ORDER BY seq DESC LIMIT ?`, limit)
}

func recent[T any](ctx context.Context, db *sql.DB, query string, limit int) ([]T, error) {
	if limit <= 0 {
		limit = -1 // SQLite treats a negative limit as unbounded.
	}
	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []T{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var item T
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}
