package sql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/user/sdtmflow/pkg/record"
	"github.com/user/sdtmflow/pkg/sqlutil"
)

// SQLSink writes a dataset into a table named after its domain. Every write replaces the table,
// so a re-run never leaves rows from an earlier extract behind. All columns are text, matching
// the character representation of the CSV and parquet outputs.
type SQLSink struct {
	db     *sql.DB
	driver string
	prefix string
}

// NewSQLSink writes through db. driver is the database/sql driver name (sqlite, pgx, mysql);
// prefix is prepended to the lower-cased domain code to form the table name.
func NewSQLSink(db *sql.DB, driver, prefix string) *SQLSink {
	return &SQLSink{db: db, driver: driver, prefix: prefix}
}

// Table returns the table a domain is written to.
func (s *SQLSink) Table(domain string) string {
	return s.prefix + strings.ToLower(domain)
}

func (s *SQLSink) Write(ctx context.Context, ds *record.Dataset) error {
	if ds == nil {
		return nil
	}
	if len(ds.Columns) == 0 {
		return fmt.Errorf("dataset %s has no columns", ds.Domain)
	}
	table, err := sqlutil.QuoteIdent(s.driver, s.Table(ds.Domain))
	if err != nil {
		return err
	}
	cols := make([]string, len(ds.Columns))
	for i, c := range ds.Columns {
		if cols[i], err = sqlutil.QuoteIdent(s.driver, c); err != nil {
			return fmt.Errorf("column %s: %w", c, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", table, err)
	}
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = c + " TEXT"
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), sqlutil.Placeholders(s.driver, len(cols))))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(cols))
	for _, rec := range ds.Records {
		for i, v := range rec.Values(ds.Columns) {
			args[i] = v
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert record %s: %w", rec.Source, err)
		}
	}
	return tx.Commit()
}

// Close leaves the database open; its owner closes it.
func (s *SQLSink) Close() error {
	return nil
}
