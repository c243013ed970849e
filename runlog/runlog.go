// Package runlog records greeting runs and their log lines in SQLite.
package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"cloud.google.com/go/civil"
	_ "github.com/mattn/go-sqlite3"
)

const migrationSQL = `
CREATE TABLE IF NOT EXISTS runs (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    kind        TEXT NOT NULL,
    run_date    TEXT NOT NULL,
    started_at  DATETIME NOT NULL,
    finished_at DATETIME,
    status      TEXT NOT NULL,
    summary     TEXT,
    error       TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_kind_date ON runs(kind, run_date);

CREATE TABLE IF NOT EXISTS logs (
    id     INTEGER PRIMARY KEY AUTOINCREMENT,
    ts     DATETIME NOT NULL,
    level  TEXT NOT NULL,
    msg    TEXT NOT NULL,
    run_id INTEGER,
    attrs  TEXT
);
CREATE INDEX IF NOT EXISTS idx_logs_run ON logs(run_id);
`

// Run statuses.
const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusFailed  = "failed"
)

// maxLogRows bounds the logs table.
const maxLogRows = 10000

// RunRow is a single run returned by ListRuns.
type RunRow struct {
	ID         int64      `json:"id"`
	Kind       string     `json:"kind"`
	Date       civil.Date `json:"date"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at,omitzero"`
	Status     string     `json:"status"`
	Summary    string     `json:"summary,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// LogRow is a single log entry returned by ListLogs.
type LogRow struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"ts"`
	Level     string    `json:"level"`
	Msg       string    `json:"msg"`
	RunID     int64     `json:"run_id,omitempty"`
	Attrs     string    `json:"attrs,omitempty"`
}

// Store persists runs and log records in SQLite.
type Store struct {
	db      *sql.DB
	current atomic.Int64 // run receiving log lines, 0 when none
}

// Open opens (or creates) the store at dbPath.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create run db dir: %w", err)
	}
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open run db: %w", err)
	}
	return newStore(db)
}

func newStore(db *sql.DB) (*Store, error) {
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(context.Background(), migrationSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("run db migration: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Begin records the start of a run and directs subsequent log lines to it.
func (s *Store) Begin(ctx context.Context, kind string, date civil.Date) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (kind, run_date, started_at, status) VALUES (?, ?, ?, ?)`,
		kind, date.String(), time.Now().UTC(), StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("begin run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("begin run: %w", err)
	}
	s.current.Store(id)
	return id, nil
}

// Finish marks run as done. summary is stored as JSON; a non-nil runErr marks
// the run failed.
func (s *Store) Finish(ctx context.Context, id int64, summary any, runErr error) error {
	status, errText := StatusOK, ""
	if runErr != nil {
		status, errText = StatusFailed, runErr.Error()
	}
	var summaryJSON string
	if summary != nil {
		b, err := json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("marshal run summary: %w", err)
		}
		summaryJSON = string(b)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, summary = ?, error = ? WHERE id = ?`,
		time.Now().UTC(), status, summaryJSON, errText, id,
	)
	s.current.CompareAndSwap(id, 0)
	if err != nil {
		return fmt.Errorf("finish run %d: %w", id, err)
	}
	return nil
}

// LastSuccess reports whether a run of kind already completed successfully for date.
func (s *Store) LastSuccess(ctx context.Context, kind string, date civil.Date) (bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM runs WHERE kind = ? AND run_date = ? AND status = ? ORDER BY id DESC LIMIT 1`,
		kind, date.String(), StatusOK,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query last run: %w", err)
	}
	return true, nil
}

// ListRuns returns the most recent runs, newest first. kind "" lists all kinds.
func (s *Store) ListRuns(ctx context.Context, kind string, limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 20
	}
	where, args := "1 = 1", []any{}
	if kind != "" {
		where, args = "kind = ?", append(args, kind)
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, kind, run_date, started_at, finished_at, status, COALESCE(summary,''), COALESCE(error,'') FROM runs WHERE "+where+
			" ORDER BY id DESC LIMIT ?",
		append(args, limit)...,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var (
			r        RunRow
			date     string
			finished sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.Kind, &date, &r.StartedAt, &finished, &r.Status, &r.Summary, &r.Error); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		if r.Date, err = civil.ParseDate(date); err != nil {
			return nil, fmt.Errorf("parse run date %q: %w", date, err)
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// write persists a single log entry. Errors are discarded since logging them
// would recurse back into slog. Prunes on roughly 1 in 500 writes.
func (s *Store) write(ctx context.Context, ts time.Time, level, msg string, runID int64, attrsJSON string) {
	var run any
	if runID != 0 {
		run = runID
	}
	_, _ = s.db.ExecContext(ctx,
		`INSERT INTO logs (ts, level, msg, run_id, attrs) VALUES (?, ?, ?, ?, ?)`,
		ts, level, msg, run, attrsJSON,
	)
	if rand.IntN(500) == 0 {
		s.prune(context.Background())
	}
}

// prune keeps the newest maxLogRows log rows.
func (s *Store) prune(ctx context.Context) {
	_, _ = s.db.ExecContext(ctx,
		`DELETE FROM logs WHERE id NOT IN (SELECT id FROM logs ORDER BY id DESC LIMIT ?)`,
		maxLogRows,
	)
}

// ListLogs returns log rows of a run (0 for all runs), optionally filtered
// by minimum level: "debug", "info", "warn", "error" or "" for no filter.
func (s *Store) ListLogs(ctx context.Context, runID int64, level string, limit, offset int) ([]LogRow, int, error) {
	if limit == 0 {
		limit = 100
	}

	where := "1 = 1"
	var args []any
	if runID != 0 {
		where += " AND run_id = ?"
		args = append(args, runID)
	}
	if level != "" {
		levels := map[string]int{"debug": -4, "info": 0, "warn": 4, "error": 8}
		if n, ok := levels[level]; ok {
			where += " AND CASE level WHEN 'DEBUG' THEN -4 WHEN 'INFO' THEN 0 WHEN 'WARN' THEN 4 WHEN 'ERROR' THEN 8 ELSE 0 END >= ?"
			args = append(args, n)
		}
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM logs WHERE "+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count logs: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, ts, level, msg, COALESCE(run_id,0), COALESCE(attrs,'') FROM logs WHERE "+where+
			" ORDER BY id DESC LIMIT ? OFFSET ?",
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	var out []LogRow
	for rows.Next() {
		var r LogRow
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.Level, &r.Msg, &r.RunID, &r.Attrs); err != nil {
			return nil, 0, fmt.Errorf("scan log row: %w", err)
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}
