package record

import (
	"sort"
	"strconv"
)

// Standard identifier variables shared by every domain.
const (
	VarStudyID = "STUDYID"
	VarDomain  = "DOMAIN"
	VarSubject = "USUBJID"
)

// Var builds a domain-prefixed variable name, e.g. Var("VS", "TESTCD") == "VSTESTCD".
func Var(domain, suffix string) string {
	return domain + suffix
}

// Record is one target (long-format) row. Identifier variables live in typed fields; every
// other SDTM variable is kept in values keyed by its full name.
type Record struct {
	Domain  string
	StudyID string
	Subject string
	Seq     int

	// Timestamp is the normalized ISO date/time used to order records within a subject.
	Timestamp string
	// TestCode is the reshaped variable code; empty for non-findings domains.
	TestCode string
	// Repeat is the 1-based repetition number within a subject-visit, 0 when not repeated.
	Repeat int
	Source Ref

	values map[string]string
}

func New(domain string, src Ref) *Record {
	return &Record{
		Domain: domain,
		Source: src,
		values: make(map[string]string),
	}
}

func (r *Record) seqVar() string {
	return Var(r.Domain, "SEQ")
}

// Set assigns a variable value. Identifier variables update the typed fields.
func (r *Record) Set(name, value string) {
	switch name {
	case VarStudyID:
		r.StudyID = value
	case VarDomain:
		r.Domain = value
	case VarSubject:
		r.Subject = value
	case r.seqVar():
		n, err := strconv.Atoi(value)
		if err == nil {
			r.Seq = n
		}
	default:
		if value == "" {
			delete(r.values, name)
			return
		}
		r.values[name] = value
	}
}

// Get returns a variable value, or "" when unset.
func (r *Record) Get(name string) string {
	switch name {
	case VarStudyID:
		return r.StudyID
	case VarDomain:
		return r.Domain
	case VarSubject:
		return r.Subject
	case r.seqVar():
		if r.Seq == 0 {
			return ""
		}
		return strconv.Itoa(r.Seq)
	}
	return r.values[name]
}

// Has reports whether the variable carries a non-empty value.
func (r *Record) Has(name string) bool {
	return r.Get(name) != ""
}

// Variables lists the non-identifier variables present on the record, sorted.
func (r *Record) Variables() []string {
	names := make([]string, 0, len(r.values))
	for k := range r.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Values renders the record as a column-aligned slice.
func (r *Record) Values(columns []string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = r.Get(c)
	}
	return out
}

// Map renders the record as a name->value map over the given columns.
func (r *Record) Map(columns []string) map[string]string {
	out := make(map[string]string, len(columns))
	for _, c := range columns {
		out[c] = r.Get(c)
	}
	return out
}

func (r *Record) Clone() *Record {
	clone := *r
	clone.values = make(map[string]string, len(r.values))
	for k, v := range r.values {
		clone.values[k] = v
	}
	return &clone
}
