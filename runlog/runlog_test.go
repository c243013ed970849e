package runlog

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
)

// newTestStore opens an in-memory SQLite store for testing.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	s, err := newStore(db)
	if err != nil {
		t.Fatalf("newStore() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var day = civil.Date{Year: 2026, Month: 1, Day: 26}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if done, err := s.LastSuccess(ctx, "holiday", day); err != nil || done {
		t.Fatalf("LastSuccess() before any run = %v, %v", done, err)
	}

	failed, err := s.Begin(ctx, "holiday", day)
	if err != nil {
		t.Fatalf("Begin() error: %v", err)
	}
	if err := s.Finish(ctx, failed, nil, errors.New("gateway closed")); err != nil {
		t.Fatalf("Finish() error: %v", err)
	}
	if done, _ := s.LastSuccess(ctx, "holiday", day); done {
		t.Error("failed run counted as success")
	}

	ok, err := s.Begin(ctx, "holiday", day)
	if err != nil {
		t.Fatalf("Begin() error: %v", err)
	}
	summary := map[string]any{"delivered": 3}
	if err := s.Finish(ctx, ok, summary, nil); err != nil {
		t.Fatalf("Finish() error: %v", err)
	}

	if done, _ := s.LastSuccess(ctx, "holiday", day); !done {
		t.Error("LastSuccess() = false after a successful run")
	}
	if done, _ := s.LastSuccess(ctx, "daily", day); done {
		t.Error("LastSuccess() leaked across kinds")
	}
	if done, _ := s.LastSuccess(ctx, "holiday", day.AddDays(1)); done {
		t.Error("LastSuccess() leaked across dates")
	}

	runs, err := s.ListRuns(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListRuns() error: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != ok || runs[0].Status != StatusOK || runs[0].Summary != `{"delivered":3}` {
		t.Errorf("newest run = %+v", runs[0])
	}
	if runs[1].Status != StatusFailed || runs[1].Error != "gateway closed" {
		t.Errorf("failed run = %+v", runs[1])
	}
	if runs[0].Date != day || runs[0].FinishedAt.IsZero() {
		t.Errorf("run date/finish = %v / %v", runs[0].Date, runs[0].FinishedAt)
	}
}

func TestListRunsByKind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, kind := range []string{"daily", "holiday", "daily"} {
		if _, err := s.Begin(ctx, kind, day); err != nil {
			t.Fatal(err)
		}
	}
	runs, err := s.ListRuns(ctx, "daily", 10)
	if err != nil {
		t.Fatalf("ListRuns() error: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 daily runs, got %d", len(runs))
	}
	for _, r := range runs {
		if r.Kind != "daily" || r.Status != StatusRunning || !r.FinishedAt.IsZero() {
			t.Errorf("unexpected run %+v", r)
		}
	}
}

func TestWriteAndListLogs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.write(ctx, time.Now(), "INFO", "before any run", 0, "")
	run, _ := s.Begin(ctx, "daily", day)
	s.write(ctx, time.Now(), "INFO", "hello world", run, `{"k":"v"}`)

	rows, total, err := s.ListLogs(ctx, run, "", 10, 0)
	if err != nil {
		t.Fatalf("ListLogs() error: %v", err)
	}
	if total != 1 || len(rows) != 1 {
		t.Fatalf("expected 1 row, got total=%d rows=%d", total, len(rows))
	}
	if rows[0].Msg != "hello world" || rows[0].RunID != run || rows[0].Attrs != `{"k":"v"}` {
		t.Errorf("row = %+v", rows[0])
	}

	_, total, err = s.ListLogs(ctx, 0, "", 10, 0)
	if err != nil || total != 2 {
		t.Errorf("ListLogs(all) total = %d, %v", total, err)
	}
}

func TestListLogsFiltersByLevel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, lvl := range []string{"DEBUG", "INFO", "WARN", "ERROR"} {
		s.write(ctx, time.Now(), lvl, strings.ToLower(lvl)+" msg", 1, "")
	}

	tests := []struct {
		level string
		want  int
	}{
		{"debug", 4},
		{"info", 3},
		{"warn", 2},
		{"error", 1},
		{"", 4},
		{"bogus", 4},
	}
	for _, tt := range tests {
		_, total, err := s.ListLogs(ctx, 1, tt.level, 10, 0)
		if err != nil {
			t.Fatalf("ListLogs(level=%q) error: %v", tt.level, err)
		}
		if total != tt.want {
			t.Errorf("ListLogs(level=%q) total = %d, want %d", tt.level, total, tt.want)
		}
	}
}

func TestPrune(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const overLimit = maxLogRows + 25
	for i := range overLimit {
		s.write(ctx, time.Now(), "INFO", fmt.Sprintf("msg %d", i), 0, "")
	}
	s.prune(ctx)

	rows, total, err := s.ListLogs(ctx, 0, "", 1, 0)
	if err != nil {
		t.Fatalf("ListLogs() error: %v", err)
	}
	if total != maxLogRows {
		t.Errorf("expected %d rows after prune, got %d", maxLogRows, total)
	}
	if len(rows) != 1 || rows[0].Msg != fmt.Sprintf("msg %d", overLimit-1) {
		t.Errorf("newest row lost: %+v", rows)
	}
}

func TestHandlerTeesWithRunID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var buf bytes.Buffer
	logger := slog.New(NewHandler(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}), s)).
		With("component", "wisher")

	run, _ := s.Begin(ctx, "holiday", day)
	logger.Info("dm failed", "member_id", "42", "error", errors.New("boom"))
	logger.Debug("hidden")
	if err := s.Finish(ctx, run, nil, nil); err != nil {
		t.Fatal(err)
	}
	logger.Warn("after run")

	if !strings.Contains(buf.String(), "dm failed") {
		t.Errorf("inner handler did not receive record: %q", buf.String())
	}

	rows, _, err := s.ListLogs(ctx, run, "", 10, 0)
	if err != nil {
		t.Fatalf("ListLogs() error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row for run, got %d", len(rows))
	}
	var attrs map[string]any
	if err := json.Unmarshal([]byte(rows[0].Attrs), &attrs); err != nil {
		t.Fatalf("attrs not JSON: %v", err)
	}
	if attrs["component"] != "wisher" || attrs["member_id"] != "42" || attrs["error"] != "boom" {
		t.Errorf("attrs = %v", attrs)
	}

	all, _, _ := s.ListLogs(ctx, 0, "", 10, 0)
	if len(all) != 2 || all[0].RunID != 0 {
		t.Errorf("log after Finish should not carry the run id: %+v", all)
	}
}

func TestOpenCreatesDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "mitsuha.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer s.Close()
	if _, err := s.Begin(context.Background(), "daily", day); err != nil {
		t.Errorf("Begin() on file db: %v", err)
	}
}
