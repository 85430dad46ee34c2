package mapping

import (
	"strings"

	"github.com/user/sdtmflow/pkg/normalize"
	"github.com/user/sdtmflow/pkg/record"
)

// Tier is the SDTM core designation of a variable.
type Tier string

const (
	Required    Tier = "Req"
	Expected    Tier = "Exp"
	Permissible Tier = "Perm"
)

// Transform names how a target variable value is produced.
type Transform string

const (
	Identity  Transform = "identity"
	Upper     Transform = "upper"
	Constant  Transform = "constant"
	Study     Transform = "study"
	DomainVar Transform = "domain"
	SubjectID Transform = "subject_id"
	Site      Transform = "site"
	Sequence  Transform = "sequence"
	Date      Transform = "date"
	DateTime  Transform = "datetime"
	CT        Transform = "ct"
	Concat    Transform = "concat"
	StudyDay  Transform = "study_day"

	// Measurement roles, filled from the reshaped triple.
	TestCode  Transform = "testcd"
	TestName  Transform = "test"
	OrigRes   Transform = "orres"
	OrigUnit  Transform = "orresu"
	StdResC   Transform = "stresc"
	StdResN   Transform = "stresn"
	StdUnit   Transform = "stresu"
	RepNumber Transform = "repnum"
)

// Class values.
const (
	ClassSpecial       = "special"
	ClassFindings      = "findings"
	ClassEvents        = "events"
	ClassInterventions = "interventions"
)

// Variable declares one target variable.
type Variable struct {
	Name      string      `yaml:"name" json:"name"`
	Label     string      `yaml:"label,omitempty" json:"label,omitempty"`
	Core      Tier        `yaml:"core" json:"core"`
	Transform Transform   `yaml:"transform,omitempty" json:"transform,omitempty"`
	Source    string      `yaml:"source,omitempty" json:"source,omitempty"`
	Sources   []string    `yaml:"sources,omitempty" json:"sources,omitempty"`
	Separator string      `yaml:"separator,omitempty" json:"separator,omitempty"`
	Time      string      `yaml:"time,omitempty" json:"time,omitempty"`
	From      string      `yaml:"from,omitempty" json:"from,omitempty"`
	Value     string      `yaml:"value,omitempty" json:"value,omitempty"`
	Codelist  string      `yaml:"codelist,omitempty" json:"codelist,omitempty"`
	Kind      record.Kind `yaml:"type,omitempty" json:"type,omitempty"`
	Length    int         `yaml:"length,omitempty" json:"length,omitempty"`
	// Controlled marks a variable whose values are upper-cased even without a codelist.
	Controlled bool `yaml:"controlled,omitempty" json:"controlled,omitempty"`
}

// IsDate reports whether the variable holds an ISO 8601 date or date/time.
func (v Variable) IsDate() bool {
	return v.Transform == Date || v.Transform == DateTime || strings.HasSuffix(v.Name, "DTC")
}

// Range is a plausible value range for a measurement in its standard unit.
type Range struct {
	Low  float64 `yaml:"low" json:"low"`
	High float64 `yaml:"high" json:"high"`
}

// Contains reports whether v lies within the range, inclusive.
func (r Range) Contains(v float64) bool {
	return v >= r.Low && v <= r.High
}

// Measurement is a (source column, test code, unit) triple of a findings domain.
type Measurement struct {
	Source     string             `yaml:"source" json:"source"`
	TestCode   string             `yaml:"testcd" json:"testcd"`
	Test       string             `yaml:"test" json:"test"`
	Unit       string             `yaml:"unit,omitempty" json:"unit,omitempty"`
	UnitSource string             `yaml:"unit_source,omitempty" json:"unit_source,omitempty"`
	Quantity   normalize.Quantity `yaml:"quantity,omitempty" json:"quantity,omitempty"`
	Kind       record.Kind        `yaml:"type,omitempty" json:"type,omitempty"`
	Range      *Range             `yaml:"range,omitempty" json:"range,omitempty"`
	Qualifiers map[string]string  `yaml:"qualifiers,omitempty" json:"qualifiers,omitempty"`
}

// Repetition declares the marker column of repeated measurements within one visit.
type Repetition struct {
	Column string `yaml:"column" json:"column"`
	Time   string `yaml:"time,omitempty" json:"time,omitempty"`
}

// DatePair is a start/end variable pair checked for ordering.
type DatePair struct {
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// RuleSpec declares a business rule. Type selects the built-in or scripted implementation.
type RuleSpec struct {
	ID       string   `yaml:"id" json:"id"`
	Type     string   `yaml:"type" json:"type"`
	Severity string   `yaml:"severity,omitempty" json:"severity,omitempty"`
	Message  string   `yaml:"message,omitempty" json:"message,omitempty"`
	Variable string   `yaml:"variable,omitempty" json:"variable,omitempty"`
	When     string   `yaml:"when,omitempty" json:"when,omitempty"`
	Equals   []string `yaml:"equals,omitempty" json:"equals,omitempty"`
	Any      []string `yaml:"any,omitempty" json:"any,omitempty"`
	Values   []string `yaml:"values,omitempty" json:"values,omitempty"`
	Script   string   `yaml:"script,omitempty" json:"script,omitempty"`
	Uses     []string `yaml:"uses,omitempty" json:"uses,omitempty"`
}

// Referenced lists every variable the rule reads.
func (r RuleSpec) Referenced() []string {
	var out []string
	if r.Variable != "" {
		out = append(out, r.Variable)
	}
	if r.When != "" {
		out = append(out, r.When)
	}
	out = append(out, r.Any...)
	out = append(out, r.Uses...)
	return out
}

// DomainSpec is the declarative mapping of one source form onto one SDTM domain.
type DomainSpec struct {
	Domain       string        `yaml:"domain" json:"domain"`
	Name         string        `yaml:"name,omitempty" json:"name,omitempty"`
	Class        string        `yaml:"class" json:"class"`
	Input        string        `yaml:"input,omitempty" json:"input,omitempty"`
	Timestamp    string        `yaml:"timestamp,omitempty" json:"timestamp,omitempty"`
	SortKeys     []string      `yaml:"sort,omitempty" json:"sort,omitempty"`
	Variables    []Variable    `yaml:"variables" json:"variables"`
	Measurements []Measurement `yaml:"measurements,omitempty" json:"measurements,omitempty"`
	Repetition   *Repetition   `yaml:"repetition,omitempty" json:"repetition,omitempty"`
	DatePairs    []DatePair    `yaml:"date_pairs,omitempty" json:"date_pairs,omitempty"`
	Duplicates   []string      `yaml:"duplicates,omitempty" json:"duplicates,omitempty"`
	Rules        []RuleSpec    `yaml:"rules,omitempty" json:"rules,omitempty"`
}

// Columns returns the target variable names in declared order.
func (s *DomainSpec) Columns() []string {
	cols := make([]string, len(s.Variables))
	for i, v := range s.Variables {
		cols[i] = v.Name
	}
	return cols
}

// Variable looks up a declared variable by name.
func (s *DomainSpec) Variable(name string) (Variable, bool) {
	for _, v := range s.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return Variable{}, false
}

// Declares reports whether the variable is part of the domain.
func (s *DomainSpec) Declares(name string) bool {
	_, ok := s.Variable(name)
	return ok
}

// Reshaped reports whether rows expand into one record per measurement.
func (s *DomainSpec) Reshaped() bool {
	return len(s.Measurements) > 0
}

// Measurement looks up a triple by test code.
func (s *DomainSpec) Measurement(testcd string) (Measurement, bool) {
	for _, m := range s.Measurements {
		if m.TestCode == testcd {
			return m, true
		}
	}
	return Measurement{}, false
}

// SeqVar is the domain's sequence variable name.
func (s *DomainSpec) SeqVar() string {
	return record.Var(s.Domain, "SEQ")
}

// ColumnKinds collects the declared kind of every source column so rows can be typed at ingestion.
func (s *DomainSpec) ColumnKinds() map[string]record.Kind {
	kinds := make(map[string]record.Kind)
	for _, v := range s.Variables {
		if v.Source == "" {
			continue
		}
		switch {
		case v.Kind != "":
			kinds[v.Source] = v.Kind
		case v.Transform == Date || v.Transform == DateTime:
			kinds[v.Source] = record.KindDate
		case v.Transform == CT:
			kinds[v.Source] = record.KindCode
		}
		if v.Time != "" {
			kinds[v.Time] = record.KindTime
		}
	}
	for _, m := range s.Measurements {
		k := m.Kind
		if k == "" {
			k = record.KindNumber
		}
		kinds[m.Source] = k
	}
	if s.Repetition != nil {
		kinds[s.Repetition.Column] = record.KindNumber
		if s.Repetition.Time != "" {
			kinds[s.Repetition.Time] = record.KindTime
		}
	}
	return kinds
}

// FreeText lists the variables carrying uncontrolled text copied from the form: no codelist, no
// derivation, not a date or a number.
func (s *DomainSpec) FreeText() []Variable {
	var out []Variable
	for _, v := range s.Variables {
		switch v.Transform {
		case "", Identity, Upper, Concat:
		default:
			continue
		}
		if v.Codelist != "" || v.Controlled || v.IsDate() || (v.Kind != "" && v.Kind != record.KindString) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Variables of the given tier.
func (s *DomainSpec) Tier(t Tier) []Variable {
	var out []Variable
	for _, v := range s.Variables {
		if v.Core == t {
			out = append(out, v)
		}
	}
	return out
}
