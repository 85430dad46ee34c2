package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/user/sdtmflow/internal/storage"
)

type memLogs struct {
	logs []storage.Log
	err  error
}

func (m *memLogs) CreateLog(ctx context.Context, log storage.Log) error {
	m.logs = append(m.logs, log)
	return m.err
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, "warn", false)
	l.Info("hidden")
	l.Warn("shown", "domain", "VS", "error", errors.New("boom"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line at warn level, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatal(err)
	}
	if entry["message"] != "shown" || entry["domain"] != "VS" || entry["error"] != "boom" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestNewLoggerPretty(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "", true).Info("hello", "domain", "DM")
	if out := buf.String(); !strings.Contains(out, "hello") || strings.HasPrefix(out, "{") {
		t.Errorf("expected console output, got %q", out)
	}
}

func TestStorageLogger(t *testing.T) {
	store := &memLogs{}
	var buf bytes.Buffer
	l := NewStorageLogger(context.Background(), store, "run-1", NewLogger(&buf, "debug", false))

	l.Debug("not stored")
	l.Info("domain processed", "domain", "VS", "action", "domain", "records", 6, "odd")
	l.Warn("gap", "run_id", "run-2")

	if len(store.logs) != 2 {
		t.Fatalf("expected 2 stored entries, got %d", len(store.logs))
	}
	got := store.logs[0]
	if got.RunID != "run-1" || got.Level != "INFO" || got.Domain != "VS" || got.Action != "domain" || got.Data != "records: 6" {
		t.Errorf("unexpected entry %+v", got)
	}
	if store.logs[1].RunID != "run-2" {
		t.Errorf("run_id key should override, got %q", store.logs[1].RunID)
	}
	if n := strings.Count(buf.String(), "\n"); n != 3 {
		t.Errorf("every entry should reach the next logger, got %d lines", n)
	}
}

func TestStorageLoggerIgnoresStoreErrors(t *testing.T) {
	store := &memLogs{err: errors.New("read-only")}
	l := NewStorageLogger(context.Background(), store, "run-1", nil)
	l.Error("still fine")
	if len(store.logs) != 1 {
		t.Fatal("expected an attempt to store the entry")
	}
}
