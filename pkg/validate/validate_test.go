package validate

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/user/sdtmflow/pkg/mapping"
	"github.com/user/sdtmflow/pkg/record"
	"github.com/user/sdtmflow/pkg/reference"
	"github.com/user/sdtmflow/pkg/rules"
	"github.com/user/sdtmflow/pkg/terminology"
)

var testNames = map[string]string{"SYSBP": "Systolic Blood Pressure", "DIABP": "Diastolic Blood Pressure"}

func spec(t *testing.T, domain string) *mapping.DomainSpec {
	t.Helper()
	s, err := mapping.Builtin(domain)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func newValidator(t *testing.T, s *mapping.DomainSpec, ref *reference.Set) *Validator {
	t.Helper()
	reg, err := terminology.Builtin()
	if err != nil {
		t.Fatal(err)
	}
	opts := Options{Codelists: reg, now: func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }}
	if ref != nil {
		opts.Reference = reference.Resolved(ref)
	}
	v, err := New(s, opts)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func vs(subject string, seq int, testcd, result, dtc string) *record.Record {
	r := record.New("VS", record.Ref{File: "vitals.csv", Row: seq})
	r.StudyID = "STUDY"
	r.Subject = subject
	r.Seq = seq
	r.TestCode = testcd
	r.Timestamp = dtc
	r.Set("VSTESTCD", testcd)
	r.Set("VSTEST", testNames[testcd])
	r.Set("VSORRES", result)
	r.Set("VSORRESU", "mmHg")
	r.Set("VSSTRESC", result)
	r.Set("VSSTRESN", result)
	r.Set("VSSTRESU", "mmHg")
	r.Set("VSDTC", dtc)
	return r
}

func cleanVitals(s *mapping.DomainSpec, subjects, perSubject int) *record.Dataset {
	ds := record.NewDataset("VS", s.Columns())
	for i := 0; i < subjects; i++ {
		subj := fmt.Sprintf("STUDY-408-%03d", i)
		for j := 1; j <= perSubject; j++ {
			code := "SYSBP"
			if j%2 == 0 {
				code = "DIABP"
			}
			ds.Append(vs(subj, j, code, fmt.Sprint(90+j%7), fmt.Sprintf("2008-08-%02d", 10+j%15)))
		}
	}
	return ds
}

func demographics(subjects int) *reference.Set {
	var out []reference.Subject
	for i := 0; i < subjects; i++ {
		out = append(out, reference.Subject{USUBJID: fmt.Sprintf("STUDY-408-%03d", i), RFSTDTC: "2008-08-01", RFENDTC: "2008-12-31"})
	}
	return reference.NewSet(out...)
}

func TestValidateCleanDataset(t *testing.T) {
	s := spec(t, "VS")
	rep, err := newValidator(t, s, demographics(3)).Validate(context.Background(), cleanVitals(s, 3, 4))
	if err != nil {
		t.Fatal(err)
	}
	if rep.Score < 99.999 || !rep.Ready {
		t.Fatalf("expected a clean ready dataset, got score %.3f ready %v: %v", rep.Score, rep.Ready, rep.Filter(Warning))
	}
	for _, sev := range []Severity{Critical, Error, Warning} {
		if rep.Count(sev) != 0 {
			t.Errorf("expected no %s findings, got %d", sev, rep.Count(sev))
		}
	}
	if rep.Records != 12 || rep.Subjects != 3 || rep.Band() != "EXCELLENT" {
		t.Errorf("unexpected summary %+v", rep)
	}
	if len(rep.Layers) != 5 {
		t.Errorf("expected five layers, got %d", len(rep.Layers))
	}
}

func TestCriticalFindingLowersScoreAndBlocksReadiness(t *testing.T) {
	s := spec(t, "VS")
	rep, err := newValidator(t, s, demographics(100)).Validate(context.Background(), cleanVitals(s, 100, 5))
	if err != nil {
		t.Fatal(err)
	}
	before := rep.Score
	if !rep.Ready {
		t.Fatal("expected clean dataset to be ready")
	}

	rep.Add(Finding{Severity: Critical, Rule: "SD0004", Layer: Structural, Domain: "VS", Message: "duplicate key"})
	if rep.Score >= before {
		t.Errorf("expected score to drop below %.4f, got %.4f", before, rep.Score)
	}
	if rep.Score < rep.Threshold {
		t.Fatalf("expected score to stay above threshold for this test, got %.2f", rep.Score)
	}
	if rep.Ready {
		t.Error("a critical finding must block readiness regardless of score")
	}
}

func TestDuplicateSequenceIsCritical(t *testing.T) {
	s := spec(t, "VS")
	ds := cleanVitals(s, 1, 2)
	ds.Append(vs("STUDY-408-000", 2, "SYSBP", "120", "2008-08-20"))

	rep, err := newValidator(t, s, demographics(1)).Validate(context.Background(), ds)
	if err != nil {
		t.Fatal(err)
	}
	crit := rep.Filter(Critical)
	if len(crit) != 1 || crit[0].Rule != "SD0004" || len(crit[0].Records) != 2 {
		t.Fatalf("expected one SD0004 finding covering both records, got %v", crit)
	}
	if rep.Ready {
		t.Error("expected not ready")
	}
}

func TestStructuralChecks(t *testing.T) {
	s := spec(t, "VS")
	ds := record.NewDataset("VS", []string{"STUDYID", "DOMAIN", "USUBJID", "VSSEQ", "VSTESTCD", "VSORRES"})
	r := vs("STUDY-408-000", 1, "SYSBP", "120", "2008-08-20")
	r.Set("VSTESTCD", "")
	r.Set("VSORRES", string(make([]byte, 201)))
	ds.Append(r)

	rep, err := newValidator(t, s, demographics(1)).Validate(context.Background(), ds)
	if err != nil {
		t.Fatal(err)
	}
	rulesSeen := make(map[string]Severity)
	for _, f := range rep.Findings {
		if f.Layer == Structural {
			rulesSeen[f.Rule+" "+f.Variable] = f.Severity
		}
	}
	want := map[string]Severity{
		"SD0001 VSTEST":   Critical,
		"SD0002 VSTESTCD": Error,
		"SD0003 VSORRES":  Error,
		"SD0006 VSSTRESN": Warning,
	}
	for k, sev := range want {
		if got, ok := rulesSeen[k]; !ok || got != sev {
			t.Errorf("expected %s as %s, got %v (present %v)", k, sev, got, ok)
		}
	}
}

func TestTerminologyStrictness(t *testing.T) {
	s := spec(t, "VS")
	ds := cleanVitals(s, 1, 2)
	ds.Records[0].Set("VSPOS", "LYING DOWN")
	ds.Records[1].Set("VSSTRESU", "MG")

	rep, err := newValidator(t, s, demographics(1)).Validate(context.Background(), ds)
	if err != nil {
		t.Fatal(err)
	}
	var nonExt, ext *Finding
	for i, f := range rep.Findings {
		if f.Rule != "CT0001" {
			continue
		}
		switch f.Variable {
		case "VSPOS":
			nonExt = &rep.Findings[i]
		case "VSSTRESU":
			ext = &rep.Findings[i]
		}
	}
	if nonExt == nil || nonExt.Severity != Error {
		t.Errorf("expected error for non-extensible miss, got %+v", nonExt)
	}
	if ext == nil || ext.Severity != Info {
		t.Errorf("expected info for extensible miss, got %+v", ext)
	}
}

func TestDateChecks(t *testing.T) {
	s := spec(t, "AE")
	ds := record.NewDataset("AE", s.Columns())
	a := ae("STUDY-408-000", 1, "HEADACHE", "2008-09-10", "2008-09-01")
	a.Set("AEENRTPT", "")
	b := ae("STUDY-408-000", 2, "NAUSEA", "2008-13-01", "")
	b.Set("AEENRTPT", "ONGOING")
	ds.Append(a, b)

	rep, err := newValidator(t, s, demographics(1)).Validate(context.Background(), ds)
	if err != nil {
		t.Fatal(err)
	}
	if !hasFinding(rep, "CT0003", "AEENDTC", Error) {
		t.Error("expected start-after-end finding")
	}
	if !hasFinding(rep, "CT0002", "AESTDTC", Error) {
		t.Error("expected invalid ISO date finding")
	}
}

func ae(subject string, seq int, term, start, end string) *record.Record {
	r := record.New("AE", record.Ref{File: "ae.csv", Row: seq})
	r.StudyID = "STUDY"
	r.Subject = subject
	r.Seq = seq
	r.Set("AETERM", term)
	r.Set("AESTDTC", start)
	r.Set("AEENDTC", end)
	return r
}

func TestBusinessRules(t *testing.T) {
	s := spec(t, "AE")
	r := ae("STUDY-408-000", 1, "FALL", "2008-09-01", "2008-09-02")
	r.Set("AESER", "Y")
	r.Set("AESDTH", "Y")
	r.Set("AEOUT", "RECOVERED/RESOLVED")

	rep, err := newValidator(t, s, demographics(1)).Validate(context.Background(), &record.Dataset{Domain: "AE", Columns: s.Columns(), Records: []*record.Record{r}})
	if err != nil {
		t.Fatal(err)
	}
	if !hasFinding(rep, "AE003", "AEOUT", Error) {
		t.Errorf("expected AE003, got %v", rep.Findings)
	}
	if hasFinding(rep, "AE001", "AESER", Error) {
		t.Error("AESDTH=Y satisfies AE001")
	}
	br, _ := rep.Layer(Business)
	if br.Score >= 100 {
		t.Errorf("expected business score below 100, got %.2f", br.Score)
	}
}

func TestCrossDomain(t *testing.T) {
	s := spec(t, "VS")
	ds := cleanVitals(s, 2, 1)
	ds.Records[0].Set("VSDTC", "2008-07-15")

	ref := reference.NewSet(reference.Subject{USUBJID: "STUDY-408-000", RFSTDTC: "2008-08-01", RFENDTC: "2008-12-31"})
	rep, err := newValidator(t, s, ref).Validate(context.Background(), ds)
	if err != nil {
		t.Fatal(err)
	}
	if !hasFinding(rep, "XD0001", "USUBJID", Error) {
		t.Error("expected missing subject finding")
	}
	if !hasFinding(rep, "XD0002", "VSDTC", Warning) {
		t.Error("expected participation window warning")
	}

	skipped, err := newValidator(t, s, nil).Validate(context.Background(), ds)
	if err != nil {
		t.Fatal(err)
	}
	xd, _ := skipped.Layer(CrossDomain)
	if !xd.Skipped || !hasFinding(skipped, "XD0000", "", Warning) {
		t.Errorf("expected skipped cross-domain layer, got %+v", xd)
	}
}

func TestCrossDomainWaitsForReference(t *testing.T) {
	s := spec(t, "VS")
	reg, _ := terminology.Builtin()
	future := reference.NewFuture()
	v, err := New(s, Options{Codelists: reg, Reference: future})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan *Report, 1)
	go func() {
		rep, _ := v.Validate(context.Background(), cleanVitals(s, 1, 2))
		done <- rep
	}()

	select {
	case <-done:
		t.Fatal("validation finished before demographics were resolved")
	case <-time.After(50 * time.Millisecond):
	}
	future.Resolve(demographics(1), nil)

	select {
	case rep := <-done:
		if rep == nil || !rep.Ready {
			t.Errorf("expected ready report, got %+v", rep)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("validation did not resume after resolve")
	}
}

func TestQualityChecks(t *testing.T) {
	s := spec(t, "VS")
	ds := cleanVitals(s, 1, 40)
	ds.Records[0].Set("VSSTRESN", "400")

	rep, err := newValidator(t, s, demographics(1)).Validate(context.Background(), ds)
	if err != nil {
		t.Fatal(err)
	}
	if !hasFinding(rep, "DQ0001", "VSSTRESN", Info) {
		t.Error("expected range outlier")
	}
	if !hasFinding(rep, "DQ0002", "VSSTRESN", Info) {
		t.Error("expected statistical outlier")
	}
	if !hasFinding(rep, "DQ0004", "VISITNUM", Info) {
		t.Error("expected low completeness for VISITNUM")
	}
	if rep.Completeness[mapping.Required] != 1 {
		t.Errorf("expected complete required tier, got %v", rep.Completeness)
	}
	if rep.QualityScore >= 100 || rep.QualityScore <= 0 {
		t.Errorf("unexpected quality score %.2f", rep.QualityScore)
	}
	if rep.Score < 99.999 {
		t.Errorf("data quality must not enter the headline score, got %.3f", rep.Score)
	}

	aeSpec := spec(t, "AE")
	dup := record.NewDataset("AE", aeSpec.Columns())
	one := ae("STUDY-408-000", 1, "Headache", "2008-09-01", "2008-09-02")
	two := ae("STUDY-408-000", 2, "HEADACHE", "2008-09-01", "2008-09-03")
	dup.Append(one, two)
	rep, err = newValidator(t, aeSpec, demographics(1)).Validate(context.Background(), dup)
	if err != nil {
		t.Fatal(err)
	}
	if !hasFinding(rep, "DQ0003", "AETERM", Warning) {
		t.Errorf("expected duplicate content warning, got %v", rep.Findings)
	}
}

func TestPersonalIdentifiersInFreeText(t *testing.T) {
	s := spec(t, "AE")
	ds := record.NewDataset("AE", s.Columns())
	ds.Append(
		ae("STUDY-408-000", 1, "RASH, CALLED 555-867-5309", "2008-09-01", "2008-09-02"),
		ae("STUDY-408-000", 2, "NAUSEA", "2008-09-04", "2008-09-05"),
	)
	rep, err := newValidator(t, s, demographics(1)).Validate(context.Background(), ds)
	if err != nil {
		t.Fatal(err)
	}
	if !hasFinding(rep, "DQ0005", "AETERM", Warning) {
		t.Fatalf("expected identifier warning, got %v", rep.Findings)
	}
	n := 0
	for _, f := range rep.Findings {
		if f.Rule == "DQ0005" {
			n++
		}
	}
	if n != 1 {
		t.Errorf("expected one identifier finding, got %d", n)
	}
}

func TestNewRejectsBrokenSpecs(t *testing.T) {
	reg, _ := terminology.Builtin()
	s := spec(t, "AE")
	s.Rules = append(s.Rules, mapping.RuleSpec{ID: "X", Type: "required_when", Variable: "AEBOGUS", When: "AESER"})
	if _, err := New(s, Options{Codelists: reg}); !errors.Is(err, rules.ErrUndeclaredVariable) {
		t.Errorf("expected ErrUndeclaredVariable, got %v", err)
	}

	s = spec(t, "AE")
	if _, err := New(s, Options{}); err == nil {
		t.Error("expected unknown codelist error with an empty registry")
	}
}

func TestLayerScore(t *testing.T) {
	if got := LayerScore(nil, 10); got != 100 {
		t.Errorf("expected 100, got %v", got)
	}
	prev := 100.0
	var findings []Finding
	for _, sev := range []Severity{Warning, Error, Critical} {
		findings = append(findings, Finding{Severity: sev})
		got := LayerScore(findings, 10)
		if got >= prev {
			t.Errorf("adding a %s finding did not lower the score", sev)
		}
		prev = got
	}
	if got := LayerScore([]Finding{{Severity: Info}}, 0); got != 100 {
		t.Errorf("info findings must not penalize, got %v", got)
	}
}

func TestSeverityText(t *testing.T) {
	for _, sev := range Severities {
		b, _ := sev.MarshalText()
		var back Severity
		if err := back.UnmarshalText(b); err != nil || back != sev {
			t.Errorf("round trip of %s failed: %v", sev, err)
		}
	}
	if _, err := ParseSeverity("fatal"); err == nil {
		t.Error("expected error for unknown severity")
	}
}

func hasFinding(rep *Report, rule, variable string, sev Severity) bool {
	for _, f := range rep.Findings {
		if f.Rule == rule && f.Variable == variable && f.Severity == sev {
			return true
		}
	}
	return false
}

func TestOverallIsStable(t *testing.T) {
	scores := map[Layer]float64{
		Structural:  97.3,
		Terminology: 88.1,
		Business:    91.7,
		CrossDomain: 99.9,
		Quality:     12.5,
	}
	want := 0.0
	for _, l := range []Layer{Structural, Terminology, Business, CrossDomain} {
		want += LayerWeights[l] * scores[l]
	}
	for i := 0; i < 100; i++ {
		if got := Overall(scores); got != want {
			t.Fatalf("iteration %d: want %v, got %v", i, want, got)
		}
	}
}
