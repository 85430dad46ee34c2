package sql

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/user/sdtmflow/internal/config"
	"github.com/user/sdtmflow/internal/storage"
)

func TestPrepareQuery_Types(t *testing.T) {
	s := &sqlStorage{driver: "pgx"}
	in := "CREATE TABLE runs (score REAL, report BLOB)"
	want := "CREATE TABLE runs (score DOUBLE PRECISION, report BYTEA)"
	if got := s.prepareQuery(in); got != want {
		t.Fatalf("pgx types: want %q, got %q", want, got)
	}

	s.driver = "sqlite"
	if got := s.prepareQuery(in); got != in {
		t.Fatalf("sqlite types should be unchanged: got %q", got)
	}
}

func TestPreparePlaceholders(t *testing.T) {
	cases := []struct {
		driver string
		in     string
		want   string
	}{
		{"pgx", "SELECT * FROM t WHERE a = ? AND b = ? LIMIT ? OFFSET ?", "SELECT * FROM t WHERE a = $1 AND b = $2 LIMIT $3 OFFSET $4"},
		{"pgx", "SELECT * FROM t WHERE a = '?' AND b = ?", "SELECT * FROM t WHERE a = '?' AND b = $1"},
		{"sqlite", "UPDATE t SET a = ? WHERE id = ?", "UPDATE t SET a = ? WHERE id = ?"},
		{"mysql", "UPDATE t SET a = ? WHERE id = ?", "UPDATE t SET a = ? WHERE id = ?"},
	}
	for _, c := range cases {
		s := &sqlStorage{driver: c.driver}
		if got := s.preparePlaceholders(c.in); got != c.want {
			t.Errorf("%s: want %q, got %q", c.driver, c.want, got)
		}
	}
}

func TestQueryRegistryOverrides(t *testing.T) {
	if q := newQueryRegistry("mysql").get(QueryInitRunsIndex); q != "" {
		t.Errorf("mysql index query should be empty, got %q", q)
	}
	if q := newQueryRegistry("sqlite").get(QueryInitRunsIndex); q == "" {
		t.Error("sqlite index query should not be empty")
	}
}

func openTestStorage(t *testing.T) storage.Storage {
	t.Helper()
	s, err := Open(context.Background(), config.DBConfig{Type: "sqlite", Conn: filepath.Join(t.TempDir(), "history.db")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunCRUD(t *testing.T) {
	ctx := context.Background()
	s := openTestStorage(t)

	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	run := storage.Run{
		ID:        "run-1",
		StudyID:   "STUDY-408",
		Started:   started,
		Finished:  started.Add(2 * time.Second),
		Status:    storage.StatusReady,
		Score:     97.5,
		Threshold: 95,
		Domains:   []string{"DM", "VS"},
		Warnings:  3,
		Report:    `{"run_id":"run-1"}`,
		Artifacts: []string{"published/run-1/vs.csv"},
	}
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(run, got); diff != "" {
		t.Errorf("run mismatch (-want +got):\n%s", diff)
	}

	run.Status = storage.StatusNotReady
	run.Critical = 1
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, _ = s.GetRun(ctx, "run-1")
	if got.Status != storage.StatusNotReady || got.Critical != 1 {
		t.Errorf("upsert not applied: %+v", got)
	}

	if err := s.DeleteRun(ctx, "run-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetRun(ctx, "run-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteRun(ctx, "run-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestListRuns(t *testing.T) {
	ctx := context.Background()
	s := openTestStorage(t)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, study := range []string{"A", "A", "B"} {
		status := storage.StatusReady
		if i == 1 {
			status = storage.StatusNotReady
		}
		err := s.SaveRun(ctx, storage.Run{
			StudyID:  study,
			Started:  base.Add(time.Duration(i) * time.Hour),
			Finished: base.Add(time.Duration(i)*time.Hour + time.Minute),
			Status:   status,
			Report:   "{}",
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	runs, total, err := s.ListRuns(ctx, storage.RunFilter{StudyID: "A"})
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(runs) != 2 {
		t.Fatalf("expected 2 runs for study A, got total=%d len=%d", total, len(runs))
	}
	if !runs[0].Started.After(runs[1].Started) {
		t.Error("runs should be newest first")
	}
	if runs[0].Report != "" {
		t.Error("listing should not carry the full report")
	}

	runs, total, err = s.ListRuns(ctx, storage.RunFilter{CommonFilter: storage.CommonFilter{Page: 2, Limit: 2}})
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(runs) != 1 {
		t.Fatalf("page 2: expected total=3 len=1, got total=%d len=%d", total, len(runs))
	}

	_, total, _ = s.ListRuns(ctx, storage.RunFilter{Status: storage.StatusNotReady})
	if total != 1 {
		t.Errorf("expected 1 not_ready run, got %d", total)
	}
}

func TestLogs(t *testing.T) {
	ctx := context.Background()
	s := openTestStorage(t)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	entries := []storage.Log{
		{RunID: "r1", Timestamp: base, Level: "INFO", Message: "transform started", Domain: "VS", Action: "transform"},
		{RunID: "r1", Timestamp: base.Add(time.Second), Level: "WARN", Message: "unit not recognized", Domain: "VS", Data: `{"unit":"mmHG"}`},
		{RunID: "r1", Timestamp: base.Add(2 * time.Second), Level: "INFO", Message: "validated", Domain: "DM"},
		{RunID: "r2", Timestamp: base, Level: "INFO", Message: "other run"},
	}
	for _, l := range entries {
		if err := s.CreateLog(ctx, l); err != nil {
			t.Fatal(err)
		}
	}

	logs, total, err := s.ListLogs(ctx, storage.LogFilter{RunID: "r1"})
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Fatalf("expected 3 logs for r1, got %d", total)
	}
	if logs[0].Message != "transform started" || logs[2].Domain != "DM" {
		t.Errorf("unexpected order: %+v", logs)
	}
	if logs[1].Data != `{"unit":"mmHG"}` {
		t.Errorf("data not preserved: %q", logs[1].Data)
	}

	logs, _, _ = s.ListLogs(ctx, storage.LogFilter{RunID: "r1", Level: "WARN"})
	if len(logs) != 1 || logs[0].Domain != "VS" {
		t.Errorf("level filter: %+v", logs)
	}

	if err := s.SaveRun(ctx, storage.Run{ID: "r1", StudyID: "S", Started: base, Finished: base, Status: storage.StatusReady}); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteRun(ctx, "r1"); err != nil {
		t.Fatal(err)
	}
	_, total, _ = s.ListLogs(ctx, storage.LogFilter{RunID: "r1"})
	if total != 0 {
		t.Errorf("logs should be removed with their run, got %d", total)
	}
}

func TestOpenUnsupported(t *testing.T) {
	if _, err := Open(context.Background(), config.DBConfig{Type: "oracle"}); err == nil {
		t.Error("expected error for unsupported database type")
	}
}
