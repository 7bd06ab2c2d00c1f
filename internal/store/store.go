// Package store keeps the run journal: one row per live run.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Run is one journal entry.
type Run struct {
	ID         string
	Effect     string
	Input      string
	StartedAt  time.Time
	StoppedAt  time.Time
	Iterations int
	Skipped    int
	Failures   int
	Renders    int
}

// Store manages the PostgreSQL connection backing the journal.
type Store struct {
	conn *pgx.Conn
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

func initSchema(ctx context.Context, conn *pgx.Conn) error {
	_, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS live_runs (
			run_id TEXT PRIMARY KEY,
			effect TEXT NOT NULL,
			input TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL,
			stopped_at TIMESTAMPTZ NOT NULL,
			iterations INT NOT NULL DEFAULT 0,
			skipped INT NOT NULL DEFAULT 0,
			failures INT NOT NULL DEFAULT 0,
			renders INT NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS live_runs_started_at_idx ON live_runs (started_at DESC);
	`)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// InsertRun records a finished run. Recording the same run twice keeps the latest counters.
func (s *Store) InsertRun(ctx context.Context, r Run) error {
	if r.ID == "" {
		return errors.New("run id is required")
	}
	_, err := s.conn.Exec(ctx, `
		INSERT INTO live_runs (run_id, effect, input, started_at, stopped_at, iterations, skipped, failures, renders)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id) DO UPDATE SET
			stopped_at = EXCLUDED.stopped_at,
			iterations = EXCLUDED.iterations,
			skipped = EXCLUDED.skipped,
			failures = EXCLUDED.failures,
			renders = EXCLUDED.renders
	`, r.ID, r.Effect, r.Input, r.StartedAt, r.StoppedAt, r.Iterations, r.Skipped, r.Failures, r.Renders)
	return err
}

// ListRuns returns the most recent runs first. A limit <= 0 returns everything.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT run_id, effect, input, started_at, stopped_at, iterations, skipped, failures, renders
		FROM live_runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Effect, &r.Input, &r.StartedAt, &r.StoppedAt,
			&r.Iterations, &r.Skipped, &r.Failures, &r.Renders); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Reset drops the journal table. The next New recreates it.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `DROP TABLE IF EXISTS live_runs CASCADE;`)
	return err
}
