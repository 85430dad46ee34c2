package mapping

import (
	"fmt"
	"strings"
)

// Severity of a lint issue.
type Severity int

const (
	LintWarning Severity = iota
	LintError
)

func (s Severity) String() string {
	if s == LintError {
		return "error"
	}
	return "warning"
}

// Issue is one semantic problem found in a specification.
type Issue struct {
	Severity Severity
	Code     string
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s [%s] %s: %s", i.Severity, i.Code, i.Path, i.Message)
}

// Variables shared across domains without the domain prefix.
var sharedVariables = map[string]bool{
	"STUDYID": true, "DOMAIN": true, "USUBJID": true, "SUBJID": true, "SITEID": true,
	"VISITNUM": true, "VISIT": true, "VISITDY": true, "EPOCH": true, "TAETORD": true,
	"RFSTDTC": true, "RFENDTC": true, "BRTHDTC": true, "AGE": true, "AGEU": true,
	"SEX": true, "RACE": true, "ETHNIC": true, "COUNTRY": true, "ARMCD": true, "ARM": true,
}

// CodelistSet answers whether a codelist id is known.
type CodelistSet interface {
	Has(id string) bool
}

// Lint performs the semantic checks the schema cannot express. codelists may be nil to skip
// codelist resolution.
func Lint(s *DomainSpec, codelists CodelistSet) []Issue {
	var issues []Issue
	add := func(sev Severity, code, path, format string, args ...interface{}) {
		issues = append(issues, Issue{Severity: sev, Code: code, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	seen := make(map[string]bool)
	for i, v := range s.Variables {
		p := fmt.Sprintf("variables[%d] %s", i, v.Name)
		if seen[v.Name] {
			add(LintError, "duplicate_variable", p, "variable declared more than once")
		}
		seen[v.Name] = true
		if !sharedVariables[v.Name] && !strings.HasPrefix(v.Name, s.Domain) {
			add(LintWarning, "variable_prefix", p, "variable is not prefixed with domain %s", s.Domain)
		}

		switch v.Transform {
		case CT:
			if v.Codelist == "" {
				add(LintError, "missing_codelist", p, "ct transform requires a codelist")
			} else if codelists != nil && !codelists.Has(v.Codelist) {
				add(LintError, "unknown_codelist", p, "codelist %q is not loaded", v.Codelist)
			}
			if v.Source == "" {
				add(LintError, "missing_source", p, "ct transform requires a source column")
			}
		case Date, DateTime, Identity, Upper, Site:
			if v.Source == "" {
				add(LintError, "missing_source", p, "%s transform requires a source column", v.Transform)
			}
		case Concat:
			if len(v.Sources) < 2 {
				add(LintError, "missing_sources", p, "concat needs at least two source columns")
			}
		case SubjectID:
			if len(v.Sources) == 0 && v.Source == "" {
				add(LintError, "missing_sources", p, "subject_id needs the subject column")
			}
		case StudyDay:
			if v.From == "" {
				add(LintError, "missing_from", p, "study_day needs the date variable it is derived from")
			}
		case Constant:
			if v.Value == "" {
				add(LintError, "missing_value", p, "constant transform requires a value")
			}
		case TestCode, TestName, OrigRes, OrigUnit, StdResC, StdResN, StdUnit:
			if !s.Reshaped() {
				add(LintError, "measurement_role", p, "%s is only valid on a domain with measurements", v.Transform)
			}
		case RepNumber:
			if s.Repetition == nil {
				add(LintError, "measurement_role", p, "repnum requires a repetition marker")
			}
		}
		if v.Codelist != "" && v.Transform != CT && codelists != nil && !codelists.Has(v.Codelist) {
			add(LintError, "unknown_codelist", p, "codelist %q is not loaded", v.Codelist)
		}
		if v.Core == Required && v.Transform == StudyDay {
			add(LintWarning, "derived_required", p, "derived study day should not be required")
		}
	}

	for i, v := range s.Variables {
		if v.Transform == StudyDay && v.From != "" && !seen[v.From] {
			add(LintError, "undeclared_variable", fmt.Sprintf("variables[%d] %s", i, v.Name),
				"study_day derives from undeclared variable %s", v.From)
		}
	}

	for _, id := range []string{"STUDYID", "DOMAIN", "USUBJID"} {
		if !seen[id] {
			add(LintError, "missing_identifier", "variables", "identifier %s is not declared", id)
		}
	}
	if s.Class != ClassSpecial && !seen[s.SeqVar()] {
		add(LintError, "missing_identifier", "variables", "sequence variable %s is not declared", s.SeqVar())
	}
	if s.Timestamp != "" && !seen[s.Timestamp] {
		add(LintError, "undeclared_variable", "timestamp", "timestamp variable %s is not declared", s.Timestamp)
	}
	for _, k := range s.SortKeys {
		if !seen[k] {
			add(LintError, "undeclared_variable", "sort", "sort key %s is not declared", k)
		}
	}
	for _, k := range s.Duplicates {
		if !seen[k] {
			add(LintError, "undeclared_variable", "duplicates", "duplicate key %s is not declared", k)
		}
	}

	codes := make(map[string]bool)
	for i, m := range s.Measurements {
		p := fmt.Sprintf("measurements[%d] %s", i, m.TestCode)
		if codes[m.TestCode] {
			add(LintError, "duplicate_testcd", p, "test code declared more than once")
		}
		codes[m.TestCode] = true
		if m.Unit == "" && m.UnitSource == "" && m.Kind != "string" {
			add(LintWarning, "missing_unit", p, "numeric measurement has no unit")
		}
		if m.Range != nil && m.Range.Low > m.Range.High {
			add(LintError, "invalid_range", p, "range low %v exceeds high %v", m.Range.Low, m.Range.High)
		}
		for q := range m.Qualifiers {
			if !seen[q] {
				add(LintError, "undeclared_variable", p, "qualifier %s is not declared", q)
			}
		}
	}

	for i, dp := range s.DatePairs {
		p := fmt.Sprintf("date_pairs[%d]", i)
		if !seen[dp.Start] || !seen[dp.End] {
			add(LintError, "undeclared_variable", p, "date pair %s/%s references an undeclared variable", dp.Start, dp.End)
		}
	}

	ids := make(map[string]bool)
	for i, r := range s.Rules {
		p := fmt.Sprintf("rules[%d] %s", i, r.ID)
		if ids[r.ID] {
			add(LintError, "duplicate_rule", p, "rule id declared more than once")
		}
		ids[r.ID] = true
		for _, ref := range r.Referenced() {
			if !seen[ref] {
				add(LintError, "undeclared_variable", p, "rule references undeclared variable %s", ref)
			}
		}
		if r.Type == "lua" && r.Script == "" {
			add(LintError, "missing_script", p, "lua rule has no script")
		}
	}
	return issues
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == LintError {
			return true
		}
	}
	return false
}
