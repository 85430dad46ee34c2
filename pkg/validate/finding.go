package validate

import (
	"fmt"
	"strings"

	"github.com/user/sdtmflow/pkg/record"
)

// Severity orders findings from informational to submission-blocking.
type Severity int

const (
	Info Severity = iota
	Warning
	Error
	Critical
)

var severityNames = [...]string{"info", "warning", "error", "critical"}

// Severities lists every severity, most severe first.
var Severities = []Severity{Critical, Error, Warning, Info}

func (s Severity) String() string {
	if s < Info || s > Critical {
		return "unknown"
	}
	return severityNames[s]
}

// ParseSeverity reads a severity name. Unknown names are an error.
func ParseSeverity(name string) (Severity, error) {
	for i, n := range severityNames {
		if strings.EqualFold(strings.TrimSpace(name), n) {
			return Severity(i), nil
		}
	}
	return Info, fmt.Errorf("unknown severity %q", name)
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Weight is the penalty a finding of this severity adds to its layer.
func (s Severity) Weight() float64 {
	switch s {
	case Critical:
		return 10
	case Error:
		return 5
	case Warning:
		return 1
	}
	return 0
}

// Layer names a validation layer.
type Layer string

const (
	Structural  Layer = "structural"
	Terminology Layer = "terminology"
	Business    Layer = "business"
	CrossDomain Layer = "cross_domain"
	Quality     Layer = "quality"
)

// Layers in reporting order.
var Layers = []Layer{Structural, Terminology, Business, CrossDomain, Quality}

// RecordRef identifies an affected record.
type RecordRef struct {
	Subject string `json:"usubjid,omitempty"`
	Seq     int    `json:"seq,omitempty"`
	Source  string `json:"source,omitempty"`
}

func refOf(rec *record.Record) RecordRef {
	ref := RecordRef{Subject: rec.Subject, Seq: rec.Seq}
	if rec.Source.Row > 0 {
		ref.Source = rec.Source.String()
	}
	return ref
}

// Finding is one detected non-conformance.
type Finding struct {
	Severity Severity    `json:"severity"`
	Rule     string      `json:"rule"`
	Layer    Layer       `json:"layer"`
	Domain   string      `json:"domain"`
	Variable string      `json:"variable,omitempty"`
	Records  []RecordRef `json:"records,omitempty"`
	Message  string      `json:"message"`
}

func (f Finding) String() string {
	var refs []string
	for _, r := range f.Records {
		switch {
		case r.Subject != "" && r.Seq > 0:
			refs = append(refs, fmt.Sprintf("%s/%d", r.Subject, r.Seq))
		case r.Subject != "":
			refs = append(refs, r.Subject)
		case r.Source != "":
			refs = append(refs, r.Source)
		}
	}
	out := fmt.Sprintf("[%s] %s %s", f.Severity, f.Rule, f.Message)
	if f.Variable != "" {
		out += " (" + f.Variable + ")"
	}
	if len(refs) > 0 {
		out += " @ " + strings.Join(refs, ", ")
	}
	return out
}

// collector accumulates the findings of one layer.
type collector struct {
	layer    Layer
	domain   string
	findings []Finding
}

func (c *collector) add(sev Severity, rule, variable, msg string, recs ...*record.Record) {
	f := Finding{Severity: sev, Rule: rule, Layer: c.layer, Domain: c.domain, Variable: variable, Message: msg}
	for _, r := range recs {
		f.Records = append(f.Records, refOf(r))
	}
	c.findings = append(c.findings, f)
}
