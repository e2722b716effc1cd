// Package postgres provides a Postgres-backed monitor.Store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/liquidity-monitor/internal/monitor"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type queryExecCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Schema creates the tables used by Store.
const Schema = `
CREATE TABLE IF NOT EXISTS monitor_state (
	id         SMALLINT PRIMARY KEY CHECK (id = 1),
	state      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS cycle_history (
	seq             BIGSERIAL PRIMARY KEY,
	id              TEXT NOT NULL,
	cycle_timestamp TIMESTAMPTZ NOT NULL,
	verdict         TEXT NOT NULL,
	agreement       BOOLEAN NOT NULL,
	payload         JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS alert_events (
	seq         BIGSERIAL PRIMARY KEY,
	id          TEXT NOT NULL,
	detected_at TIMESTAMPTZ NOT NULL,
	payload     JSONB NOT NULL
);`

// Store persists monitor state, history and alerts in Postgres.
type Store struct {
	pool queryExecCloser
}

// New connects to Postgres and ensures the schema exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres_dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store := &Store{pool: pool}
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool queryExecCloser) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Migrate creates missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// LoadLastState returns the saved state, or the zero state on first run.
func (s *Store) LoadLastState(ctx context.Context) (monitor.MonitorState, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT state FROM monitor_state WHERE id = 1`).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return monitor.MonitorState{}, nil
	}
	if err != nil {
		return monitor.MonitorState{}, fmt.Errorf("select state: %w", err)
	}
	var state monitor.MonitorState
	if err := json.Unmarshal(raw, &state); err != nil {
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
		updatedAt = *state.LastCycleAt
	}
	query := `
INSERT INTO monitor_state (id, state, updated_at) VALUES (1, $1, $2)
ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`
	if _, err := s.pool.Exec(ctx, query, raw, updatedAt); err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}
	return nil
}

// AppendHistory inserts one cycle result.
func (s *Store) AppendHistory(ctx context.Context, result monitor.ConsensusResult) error {
	if result.ID == "" {
		return fmt.Errorf("result id is required")
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	query := `
INSERT INTO cycle_history (id, cycle_timestamp, verdict, agreement, payload)
VALUES ($1, $2, $3, $4, $5)`
	args := []any{result.ID, result.CycleTimestamp, string(result.Verdict), result.Agreement, raw}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// AppendAlert inserts one alert event.
func (s *Store) AppendAlert(ctx context.Context, event monitor.AlertEvent) error {
	if event.ID == "" {
		return fmt.Errorf("alert id is required")
	}
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	query := `INSERT INTO alert_events (id, detected_at, payload) VALUES ($1, $2, $3)`
	if _, err := s.pool.Exec(ctx, query, event.ID, event.DetectedAt, raw); err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// RecentHistory returns up to limit results, newest first.
func (s *Store) RecentHistory(ctx context.Context, limit int) ([]monitor.ConsensusResult, error) {
	return recent[monitor.ConsensusResult](ctx, s.pool,
		`SELECT payload FROM cycle_history ORDER BY seq DESC LIMIT $1`, limit)
}

// RecentAlerts returns up to limit alert events, newest first.
func (s *Store) RecentAlerts(ctx context.Context, limit int) ([]monitor.AlertEvent, error) {
	return recent[monitor.AlertEvent](ctx, s.pool,
		`SELECT payload FROM alert_events ORDER BY seq DESC LIMIT $1`, limit)
}

func recent[T any](ctx context.Context, pool queryExecCloser, query string, limit int) ([]T, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}
	rows, err := pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}
