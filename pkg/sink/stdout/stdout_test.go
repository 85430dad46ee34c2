package stdout

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/tidwall/gjson"
	jsonfmt "github.com/user/sdtmflow/pkg/formatter/json"
	"github.com/user/sdtmflow/pkg/record"
)

func dataset(domain string, n int) *record.Dataset {
	ds := record.NewDataset(domain, []string{record.VarStudyID, record.VarDomain, record.VarSubject, record.Var(domain, "SEQ")})
	for i := 1; i <= n; i++ {
		rec := record.New(domain, record.Ref{File: "form.csv", Row: i})
		rec.StudyID = "STUDY"
		rec.Subject = "STUDY-408-001"
		rec.Seq = i
		ds.Append(rec)
	}
	return ds
}

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf, jsonfmt.NewJSONFormatter())
	if err := sink.Write(context.Background(), dataset("VS", 2)); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %s", len(lines), buf.String())
	}
	if got := gjson.Get(lines[1], "values.VSSEQ").String(); got != "2" {
		t.Errorf("expected VSSEQ 2 on the second line, got %q", got)
	}
	if got := gjson.Get(lines[0], "source.file").String(); got != "form.csv" {
		t.Errorf("expected lineage on the line, got %q", got)
	}
}

func TestWriterSinkKeepsDatasetsTogether(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf, jsonfmt.NewJSONFormatter())

	var wg sync.WaitGroup
	for _, d := range []string{"DM", "VS", "AE"} {
		wg.Add(1)
		go func(domain string) {
			defer wg.Done()
			if err := sink.Write(context.Background(), dataset(domain, 50)); err != nil {
				t.Error(err)
			}
		}(d)
	}
	wg.Wait()

	var domains []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		d := gjson.Get(line, "domain").String()
		if len(domains) == 0 || domains[len(domains)-1] != d {
			domains = append(domains, d)
		}
	}
	if len(domains) != 3 {
		t.Errorf("datasets interleaved: %v", domains)
	}
}

func TestWriterSinkCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf bytes.Buffer
	if err := NewWriterSink(&buf, jsonfmt.NewJSONFormatter()).Write(ctx, dataset("VS", 1)); err == nil {
		t.Error("expected error for a cancelled context")
	}
}
