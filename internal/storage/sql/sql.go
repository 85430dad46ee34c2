package sql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/user/sdtmflow/internal/config"
	"github.com/user/sdtmflow/internal/storage"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type sqlStorage struct {
	db      *sql.DB
	driver  string
	queries *queryRegistry
}

func NewSQLStorage(db *sql.DB, driver string) storage.Storage {
	return &sqlStorage{db: db, driver: driver, queries: newQueryRegistry(driver)}
}

// Open connects to the configured history database and creates its tables.
func Open(ctx context.Context, cfg config.DBConfig) (storage.Storage, error) {
	db, driver, err := OpenDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := NewSQLStorage(db, driver)
	if err := s.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenDB opens and pings the configured database, returning the driver name it registered under.
// SQLite connections are capped so a single writer does not queue behind a busy lock.
func OpenDB(ctx context.Context, cfg config.DBConfig) (*sql.DB, string, error) {
	driver, err := cfg.Driver()
	if err != nil {
		return nil, "", err
	}
	db, err := sql.Open(driver, cfg.DSN())
	if err != nil {
		return nil, "", fmt.Errorf("failed to open database: %w", err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("failed to connect to %s: %w", driver, err)
	}
	return db, driver, nil
}

// prepareQuery adapts the SQLite-flavored DDL to the target driver's column types.
func (s *sqlStorage) prepareQuery(q string) string {
	switch s.driver {
	case "pgx":
		q = strings.ReplaceAll(q, "BLOB", "BYTEA")
		q = strings.ReplaceAll(q, "REAL", "DOUBLE PRECISION")
	}
	return s.preparePlaceholders(q)
}

// preparePlaceholders rewrites ? placeholders for drivers that use positional parameters.
// Placeholders inside quoted literals are left alone.
func (s *sqlStorage) preparePlaceholders(q string) string {
	if s.driver != "pgx" {
		return q
	}
	var b strings.Builder
	n := 0
	quoted := false
	for _, r := range q {
		switch {
		case r == '\'':
			quoted = !quoted
			b.WriteRune(r)
		case r == '?' && !quoted:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (s *sqlStorage) query(key string) string {
	return s.prepareQuery(s.queries.get(key))
}

func (s *sqlStorage) Init(ctx context.Context) error {
	for _, key := range initOrder {
		q := s.query(key)
		if q == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", key, err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func (s *sqlStorage) SaveRun(ctx context.Context, run storage.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	domains, _ := json.Marshal(run.Domains)
	artifacts, _ := json.Marshal(run.Artifacts)

	_, err := s.db.ExecContext(ctx, s.query(QuerySaveRun),
		run.ID, run.StudyID, formatTime(run.Started), formatTime(run.Finished), run.Status,
		run.Score, run.Threshold, string(domains), run.Critical, run.Errors, run.Warnings,
		sql.NullString{String: run.Report, Valid: run.Report != ""},
		string(artifacts),
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (storage.Run, error) {
	var r storage.Run
	var started, finished string
	var domains, report, artifacts sql.NullString
	var score, threshold sql.NullFloat64
	var critical, errs, warnings sql.NullInt64
	if err := row.Scan(&r.ID, &r.StudyID, &started, &finished, &r.Status, &score, &threshold,
		&domains, &critical, &errs, &warnings, &report, &artifacts); err != nil {
		return r, err
	}
	r.Started, r.Finished = parseTime(started), parseTime(finished)
	r.Score, r.Threshold = score.Float64, threshold.Float64
	r.Critical, r.Errors, r.Warnings = int(critical.Int64), int(errs.Int64), int(warnings.Int64)
	r.Report = report.String
	if domains.Valid && domains.String != "" {
		_ = json.Unmarshal([]byte(domains.String), &r.Domains)
	}
	if artifacts.Valid && artifacts.String != "" {
		_ = json.Unmarshal([]byte(artifacts.String), &r.Artifacts)
	}
	return r, nil
}

func (s *sqlStorage) GetRun(ctx context.Context, id string) (storage.Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, s.query(QueryGetRun), id))
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Run{}, storage.ErrNotFound
	}
	return r, err
}

func paginate(query string, args []any, filter storage.CommonFilter) (string, []any) {
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Page > 0 {
			query += " OFFSET ?"
			args = append(args, (filter.Page-1)*filter.Limit)
		}
	} else {
		query += " LIMIT 100"
	}
	return query, args
}

func (s *sqlStorage) ListRuns(ctx context.Context, filter storage.RunFilter) ([]storage.Run, int, error) {
	where := " WHERE 1=1"
	var args []any
	if filter.StudyID != "" {
		where += " AND study_id = ?"
		args = append(args, filter.StudyID)
	}
	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, filter.Status)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, s.prepareQuery(s.queries.get(QueryCountRuns)+where), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query, args := paginate(s.queries.get(QueryListRuns)+where+" ORDER BY started DESC", args, filter.CommonFilter)
	rows, err := s.db.QueryContext(ctx, s.prepareQuery(query), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []storage.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		// Listings carry the summary only.
		r.Report = ""
		runs = append(runs, r)
	}
	return runs, total, rows.Err()
}

func (s *sqlStorage) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.query(QueryDeleteRun), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	_, err = s.db.ExecContext(ctx, s.query(QueryDeleteRunLogs), id)
	return err
}

func (s *sqlStorage) CreateLog(ctx context.Context, l storage.Log) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.query(QueryCreateLog),
		l.ID, l.RunID, formatTime(l.Timestamp), l.Level, l.Message,
		sql.NullString{String: l.Domain, Valid: l.Domain != ""},
		sql.NullString{String: l.Action, Valid: l.Action != ""},
		sql.NullString{String: l.Data, Valid: l.Data != ""},
	)
	return err
}

func (s *sqlStorage) ListLogs(ctx context.Context, filter storage.LogFilter) ([]storage.Log, int, error) {
	where := " WHERE 1=1"
	var args []any
	if filter.RunID != "" {
		where += " AND run_id = ?"
		args = append(args, filter.RunID)
	}
	if filter.Level != "" {
		where += " AND level = ?"
		args = append(args, filter.Level)
	}
	if filter.Domain != "" {
		where += " AND domain = ?"
		args = append(args, filter.Domain)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, s.prepareQuery(s.queries.get(QueryCountLogs)+where), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query, args := paginate(s.queries.get(QueryListLogs)+where+" ORDER BY ts ASC", args, filter.CommonFilter)
	rows, err := s.db.QueryContext(ctx, s.prepareQuery(query), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var logs []storage.Log
	for rows.Next() {
		var l storage.Log
		var ts string
		var level, message, domain, action, data sql.NullString
		if err := rows.Scan(&l.ID, &l.RunID, &ts, &level, &message, &domain, &action, &data); err != nil {
			return nil, 0, err
		}
		l.Timestamp = parseTime(ts)
		l.Level, l.Message = level.String, message.String
		l.Domain, l.Action, l.Data = domain.String, action.String, data.String
		logs = append(logs, l)
	}
	return logs, total, rows.Err()
}

func (s *sqlStorage) Close() error {
	return s.db.Close()
}
