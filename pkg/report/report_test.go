package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/user/sdtmflow/pkg/mapping"
	"github.com/user/sdtmflow/pkg/validate"
)

func domainReport(domain string, records int, findings ...validate.Finding) *validate.Report {
	rep := &validate.Report{
		Domain:       domain,
		Generated:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Records:      records,
		Subjects:     2,
		Threshold:    validate.DefaultThreshold,
		Completeness: map[mapping.Tier]float64{mapping.Required: 1, mapping.Expected: 0.5},
	}
	for _, l := range validate.Layers {
		rep.Layers = append(rep.Layers, validate.LayerResult{Layer: l, Weight: validate.LayerWeights[l], Checked: records})
	}
	rep.Add(findings...)
	return rep
}

func TestRunAggregates(t *testing.T) {
	clean := domainReport("DM", 10)
	bad := domainReport("VS", 30, validate.Finding{
		Severity: validate.Critical, Rule: "SD0007", Layer: validate.Structural, Domain: "VS",
		Variable: "VSSEQ", Message: "duplicate sequence",
		Records: []validate.RecordRef{{Subject: "STUDY-408-001", Seq: 1}},
	})

	run := &Run{ID: "r1", StudyID: "STUDY", Threshold: 95, Domains: []*validate.Report{bad, clean}}
	run.Sort()
	if run.Domains[0].Domain != "DM" {
		t.Fatalf("expected DM first after sort, got %s", run.Domains[0].Domain)
	}
	if run.Ready() {
		t.Error("a critical finding must make the run not ready")
	}
	if got := run.Counts()["critical"]; got != 1 {
		t.Errorf("expected 1 critical, got %d", got)
	}
	want := (clean.Score*10 + bad.Score*30) / 40
	if got := run.Score(); got != want {
		t.Errorf("expected weighted score %.4f, got %.4f", want, got)
	}
	if _, ok := run.Domain("AE"); ok {
		t.Error("unexpected AE report")
	}

	ok := &Run{Domains: []*validate.Report{clean}}
	if !ok.Ready() {
		t.Error("clean run should be ready")
	}
	ok.Errors = map[string]string{"AE": "boom"}
	if ok.Ready() {
		t.Error("a failed domain must make the run not ready")
	}
}

func TestRunJSONRoundTrip(t *testing.T) {
	run := &Run{ID: "r1", StudyID: "STUDY", Threshold: 95, Domains: []*validate.Report{domainReport("DM", 3)}}
	var buf bytes.Buffer
	if err := WriteRunJSON(&buf, run); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"submission_ready": true`) {
		t.Errorf("expected readiness in JSON, got %s", buf.String())
	}
	back, err := ReadRunJSON(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if back.ID != "r1" || len(back.Domains) != 1 || back.Domains[0].Score != run.Domains[0].Score {
		t.Errorf("unexpected decoded run: %+v", back)
	}
}

func TestMarkdown(t *testing.T) {
	var findings []validate.Finding
	for i := 0; i < MaxListed+5; i++ {
		findings = append(findings, validate.Finding{
			Severity: validate.Warning, Rule: "XD0002", Layer: validate.CrossDomain, Domain: "VS",
			Message: "date | outside reference period",
		})
	}
	findings = append(findings, validate.Finding{Severity: validate.Info, Rule: "DQ0001", Layer: validate.Quality, Domain: "VS", Message: "hidden"})
	rep := domainReport("VS", 5, findings...)

	md := Markdown(rep)
	for _, want := range []string{
		"# Domain VS",
		"- Submission Ready: no",
		"- Completeness: Req 100.0%, Exp 50.0%",
		"| cross_domain |",
		"- ... 5 more",
		`date \| outside`,
	} {
		if !strings.Contains(md, want) {
			t.Errorf("expected %q in markdown:\n%s", want, md)
		}
	}
	if strings.Contains(md, "hidden") {
		t.Error("info findings must not be listed")
	}

	run := &Run{
		ID: "r1", StudyID: "STUDY", Threshold: 95,
		Finished: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Domains:  []*validate.Report{domainReport("DM", 3)},
		Errors:   map[string]string{"AE": "missing input"},
	}
	md = RunMarkdown(run)
	for _, want := range []string{"# SDTM Compliance Report", "| DM | 3 | 2 | 100.00 | EXCELLENT |", "| AE | - |", "- AE: missing input"} {
		if !strings.Contains(md, want) {
			t.Errorf("expected %q in run markdown:\n%s", want, md)
		}
	}
}
