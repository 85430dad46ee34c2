package sql

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/user/sdtmflow/pkg/record"
	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "sdtm.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func vitals(results ...string) *record.Dataset {
	ds := record.NewDataset("VS", []string{"STUDYID", "DOMAIN", "USUBJID", "VSSEQ", "VSTESTCD", "VSORRES"})
	for i, res := range results {
		rec := record.New("VS", record.Ref{File: "vitals.csv", Row: i + 1})
		rec.StudyID = "STUDY"
		rec.Subject = "STUDY-408-001"
		rec.Seq = i + 1
		rec.Set("VSTESTCD", "SYSBP")
		rec.Set("VSORRES", res)
		ds.Append(rec)
	}
	return ds
}

func TestSQLSinkReplacesTable(t *testing.T) {
	db := openDB(t)
	sink := NewSQLSink(db, "sqlite", "sdtm_")
	defer sink.Close()
	ctx := context.Background()

	if err := sink.Write(ctx, vitals("120", "131", "140")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := sink.Write(ctx, vitals("118", "125")); err != nil {
		t.Fatalf("second write: %v", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT USUBJID, VSSEQ, VSORRES FROM sdtm_vs ORDER BY VSSEQ")
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	var got [][3]string
	for rows.Next() {
		var r [3]string
		if err := rows.Scan(&r[0], &r[1], &r[2]); err != nil {
			t.Fatal(err)
		}
		got = append(got, r)
	}
	if err := rows.Err(); err != nil {
		t.Fatal(err)
	}
	want := [][3]string{
		{"STUDY-408-001", "1", "118"},
		{"STUDY-408-001", "2", "125"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("table mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLSinkRejectsBadIdentifiers(t *testing.T) {
	sink := NewSQLSink(openDB(t), "sqlite", "")
	ds := record.NewDataset("VS", []string{"USUBJID", "VS ORRES"})
	if err := sink.Write(context.Background(), ds); err == nil {
		t.Error("expected error for a column name that is not an identifier")
	}
	if err := sink.Write(context.Background(), record.NewDataset("VS", nil)); err == nil {
		t.Error("expected error for a dataset without columns")
	}
	if got := sink.Table("LB"); got != "lb" {
		t.Errorf("unexpected table name %s", got)
	}
}
