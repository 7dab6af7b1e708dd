package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var ErrRunNotFound = errors.New("run not found")

type SQLiteStore struct {
	db *sql.DB
}

var _ Ledger = (*SQLiteStore)(nil)

// NewSQLiteStore creates or opens a SQLite database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// Writers from the worker pool share one connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			mode TEXT,
			root TEXT,
			output_dir TEXT,
			groups_json JSON,
			symbols_json JSON,
			started_at INTEGER,
			finished_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS invocations (
			run_id TEXT,
			item INTEGER,
			group_dir TEXT,
			symbol TEXT,
			outcome TEXT,
			exit_code INTEGER,
			artifacts JSON,
			duration_ns INTEGER,
			argv JSON,
			stderr TEXT,
			error TEXT,
			PRIMARY KEY (run_id, item)
		);`,
		`CREATE TABLE IF NOT EXISTS include_probes (
			run_id TEXT,
			group_dir TEXT,
			strategy TEXT,
			pairs INTEGER,
			PRIMARY KEY (run_id, group_dir)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) BeginRun(ctx context.Context, run *Run) error {
	groups, _ := json.Marshal(run.Groups)
	symbols, _ := json.Marshal(run.Symbols)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, mode, root, output_dir, groups_json, symbols_json, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`, run.ID, run.Mode, run.Root, run.OutputDir, groups, symbols, run.StartedAt.UnixNano())
	return err
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, finishedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, "UPDATE runs SET finished_at = ? WHERE id = ?", finishedAt.UnixNano(), runID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

func (s *SQLiteStore) RecordInvocation(ctx context.Context, inv *Invocation) error {
	artifacts, _ := json.Marshal(inv.Artifacts)
	argv, _ := json.Marshal(inv.Argv)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invocations (run_id, item, group_dir, symbol, outcome, exit_code, artifacts, duration_ns, argv, stderr, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, item) DO UPDATE SET
			outcome=excluded.outcome,
			exit_code=excluded.exit_code,
			artifacts=excluded.artifacts,
			duration_ns=excluded.duration_ns,
			stderr=excluded.stderr,
			error=excluded.error
	`, inv.RunID, inv.Item, inv.Group, inv.Symbol, inv.Outcome, inv.ExitCode, artifacts, int64(inv.Duration), argv, inv.Stderr, inv.Err)
	return err
}

func (s *SQLiteStore) RecordIncludes(ctx context.Context, p *IncludeProbe) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO include_probes (run_id, group_dir, strategy, pairs) VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, group_dir) DO UPDATE SET strategy=excluded.strategy, pairs=excluded.pairs
	`, p.RunID, p.Group, p.Strategy, p.Pairs)
	return err
}

const runColumns = "id, mode, root, output_dir, groups_json, symbols_json, started_at, finished_at"

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", runID)
	return scanRun(row, runID)
}

func (s *SQLiteStore) LatestRun(ctx context.Context) (*Run, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs ORDER BY started_at DESC LIMIT 1")
	return scanRun(row, "latest")
}

func scanRun(row *sql.Row, label string) (*Run, error) {
	var r Run
	var groups, symbols []byte
	var started, finished int64
	if err := row.Scan(&r.ID, &r.Mode, &r.Root, &r.OutputDir, &groups, &symbols, &started, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, label)
		}
		return nil, err
	}
	_ = json.Unmarshal(groups, &r.Groups)
	_ = json.Unmarshal(symbols, &r.Symbols)
	r.StartedAt = time.Unix(0, started)
	if finished != 0 {
		r.FinishedAt = time.Unix(0, finished)
	}
	return &r, nil
}

func (s *SQLiteStore) Invocations(ctx context.Context, runID string) ([]*Invocation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, item, group_dir, symbol, outcome, exit_code, artifacts, duration_ns, argv, stderr, error
		FROM invocations WHERE run_id = ? ORDER BY item
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query invocations: %w", err)
	}
	defer rows.Close()

	var out []*Invocation
	for rows.Next() {
		var inv Invocation
		var artifacts, argv []byte
		var dur int64
		if err := rows.Scan(&inv.RunID, &inv.Item, &inv.Group, &inv.Symbol, &inv.Outcome, &inv.ExitCode, &artifacts, &dur, &argv, &inv.Stderr, &inv.Err); err != nil {
			return nil, fmt.Errorf("failed to scan invocation: %w", err)
		}
		_ = json.Unmarshal(artifacts, &inv.Artifacts)
		_ = json.Unmarshal(argv, &inv.Argv)
		inv.Duration = time.Duration(dur)
		out = append(out, &inv)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) IncludeProbes(ctx context.Context, runID string) ([]*IncludeProbe, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT run_id, group_dir, strategy, pairs FROM include_probes WHERE run_id = ? ORDER BY group_dir", runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*IncludeProbe
	for rows.Next() {
		var p IncludeProbe
		if err := rows.Scan(&p.RunID, &p.Group, &p.Strategy, &p.Pairs); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
