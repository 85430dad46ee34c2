package reference

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/user/sdtmflow/pkg/record"
)

func TestLoadCSV(t *testing.T) {
	data := "usubjid,siteid,rfstdtc,rfendtc,sex\n" +
		"STUDY-408-001,408,2008-08-20,2008-12-01,M\n" +
		"STUDY-408-002,408,,,F\n" +
		",408,,,F\n"
	set, err := LoadCSV(strings.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if set.Len() != 2 {
		t.Fatalf("expected 2 subjects, got %d", set.Len())
	}
	if start, ok := set.ReferenceStart("STUDY-408-001"); !ok || start != "2008-08-20" {
		t.Errorf("unexpected reference start %q %v", start, ok)
	}
	if _, ok := set.ReferenceStart("STUDY-408-002"); ok {
		t.Error("expected no reference start for subject without RFSTDTC")
	}
	if set.Has("STUDY-408-003") {
		t.Error("unexpected subject")
	}
}

func TestLoadCSVRequiresSubjectColumn(t *testing.T) {
	if _, err := LoadCSV(strings.NewReader("site,date\n1,2\n")); err == nil {
		t.Error("expected error for missing USUBJID column")
	}
}

func TestFromDataset(t *testing.T) {
	ds := record.NewDataset("DM", []string{"USUBJID", "RFSTDTC"})
	r := record.New("DM", record.Ref{Row: 1})
	r.Subject = "STUDY-408-001"
	r.Set("RFSTDTC", "2008-08-20")
	r.Set("SITEID", "408")
	ds.Append(r)

	set := FromDataset(ds)
	subj, ok := set.Get("STUDY-408-001")
	if !ok || subj.SiteID != "408" || subj.RFSTDTC != "2008-08-20" {
		t.Errorf("unexpected subject %+v", subj)
	}
	if ids := set.IDs(); len(ids) != 1 {
		t.Errorf("unexpected ids %v", ids)
	}
}

func TestNilSet(t *testing.T) {
	var s *Set
	if s.Has("x") || s.Len() != 0 || s.IDs() != nil {
		t.Error("nil set should be empty")
	}
}

func TestFutureWait(t *testing.T) {
	f := NewFuture()
	if f.Ready() {
		t.Fatal("new future should not be ready")
	}

	got := make(chan *Set, 1)
	go func() {
		s, _ := f.Wait(context.Background())
		got <- s
	}()

	want := NewSet(Subject{USUBJID: "A"})
	f.Resolve(want, nil)
	f.Resolve(NewSet(), errors.New("ignored"))

	select {
	case s := <-got:
		if s != want {
			t.Error("waiter received the wrong set")
		}
	case <-time.After(time.Second):
		t.Fatal("waiter was not released")
	}
	if _, err := f.Wait(context.Background()); err != nil {
		t.Errorf("second resolve should be ignored, got %v", err)
	}
}

func TestFutureWaitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewFuture().Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestResolved(t *testing.T) {
	f := Resolved(NewSet())
	if !f.Ready() {
		t.Error("expected resolved future to be ready")
	}
}
