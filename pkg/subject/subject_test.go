package subject

import (
	"context"
	"errors"
	"testing"

	"github.com/user/sdtmflow/pkg/record"
)

func TestDeriveID(t *testing.T) {
	if got := DeriveID("STUDY", "408", "001"); got != "STUDY-408-001" {
		t.Errorf("expected STUDY-408-001, got %q", got)
	}
	if got := DeriveID("STUDY", "", "001"); got != "STUDY-001" {
		t.Errorf("expected empty site to be skipped, got %q", got)
	}
}

func TestSiteFromCompound(t *testing.T) {
	tests := map[string]string{
		"408":           "408",
		"US/Boston-408": "408",
		"Site 408":      "408",
		"EU_DE_12":      "12",
		" 9 ":           "9",
	}
	for in, want := range tests {
		if got := SiteFromCompound(in); got != want {
			t.Errorf("SiteFromCompound(%q) = %q, want %q", in, got, want)
		}
	}
}

func newRec(subject, ts, testcd string, row int) *record.Record {
	r := record.New("VS", record.Ref{File: "vs.csv", Row: row})
	r.Subject = subject
	r.Timestamp = ts
	r.TestCode = testcd
	return r
}

func TestAssignSequences(t *testing.T) {
	recs := []*record.Record{
		newRec("S-2", "2008-08-27", "SYSBP", 4),
		newRec("S-1", "2008-08-27", "DIABP", 3),
		newRec("S-1", "2008-08-26", "SYSBP", 1),
		newRec("S-1", "2008-08-26", "DIABP", 2),
		newRec("S-2", "2008-08-27", "DIABP", 5),
	}

	if err := AssignSequences(context.Background(), recs, SortKey{}, 2); err != nil {
		t.Fatal(err)
	}

	want := []struct {
		subject, testcd, ts string
		seq                 int
	}{
		{"S-1", "DIABP", "2008-08-26", 1},
		{"S-1", "SYSBP", "2008-08-26", 2},
		{"S-1", "DIABP", "2008-08-27", 3},
		{"S-2", "DIABP", "2008-08-27", 1},
		{"S-2", "SYSBP", "2008-08-27", 2},
	}
	for i, w := range want {
		r := recs[i]
		if r.Subject != w.subject || r.TestCode != w.testcd || r.Timestamp != w.ts || r.Seq != w.seq {
			t.Errorf("position %d: got %s/%s/%s seq %d, want %+v", i, r.Subject, r.TestCode, r.Timestamp, r.Seq, w)
		}
	}
}

func TestAssignSequencesTieBreak(t *testing.T) {
	a := newRec("S-1", "2008-08-26", "SYSBP", 1)
	a.Set("VSPOS", "SUPINE")
	b := newRec("S-1", "2008-08-26", "SYSBP", 2)
	b.Set("VSPOS", "STANDING")
	recs := []*record.Record{a, b}

	if err := AssignSequences(context.Background(), recs, SortKey{TieBreaks: []string{"VSPOS"}}, 0); err != nil {
		t.Fatal(err)
	}
	if recs[0] != b || b.Seq != 1 || a.Seq != 2 {
		t.Errorf("expected STANDING before SUPINE, got %s then %s", recs[0].Get("VSPOS"), recs[1].Get("VSPOS"))
	}
}

func TestAssignSequencesIsDeterministic(t *testing.T) {
	build := func() []*record.Record {
		return []*record.Record{
			newRec("S-1", "2008-08-26", "SYSBP", 2),
			newRec("S-1", "2008-08-26", "SYSBP", 1),
		}
	}
	first, second := build(), build()
	_ = AssignSequences(context.Background(), first, SortKey{}, 0)
	_ = AssignSequences(context.Background(), second, SortKey{}, 0)
	for i := range first {
		if first[i].Source.Row != second[i].Source.Row || first[i].Seq != second[i].Seq {
			t.Fatalf("non-deterministic ordering at %d", i)
		}
	}
	if first[0].Source.Row != 1 {
		t.Errorf("expected source row to break remaining ties, got row %d first", first[0].Source.Row)
	}
}

func TestVerify(t *testing.T) {
	a := newRec("S-1", "", "", 1)
	a.Seq = 1
	b := newRec("S-1", "", "", 2)
	b.Seq = 1

	var collision *SequenceCollision
	if err := Verify([]*record.Record{a, b}); !errors.As(err, &collision) {
		t.Fatalf("expected SequenceCollision, got %v", err)
	}
	if collision.Subject != "S-1" || collision.Seq != 1 {
		t.Errorf("unexpected collision %+v", collision)
	}

	b.Seq = 3
	if err := Verify([]*record.Record{a, b}); err == nil {
		t.Error("expected gap error")
	}

	b.Seq = 2
	if err := Verify([]*record.Record{a, b}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAssignSequencesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := AssignSequences(ctx, []*record.Record{newRec("S-1", "", "", 1)}, SortKey{}, 1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
