package reshape

import (
	"strconv"
	"strings"

	"github.com/user/sdtmflow/pkg/mapping"
	"github.com/user/sdtmflow/pkg/record"
)

// Observation is one candidate target record together with the source row and measurement
// triple it came from. Variable values on Record are still raw source text; the transformer
// normalizes them.
type Observation struct {
	Row         *record.SourceRow
	Measurement *mapping.Measurement
	Record      *record.Record
}

// Reshaper expands wide source rows into long-format observations.
type Reshaper struct {
	spec *mapping.DomainSpec
}

func New(spec *mapping.DomainSpec) *Reshaper {
	return &Reshaper{spec: spec}
}

// Reshape returns one observation per measurement whose source value is present. Absent
// measurements produce nothing. Domains without measurements yield exactly one observation.
func (r *Reshaper) Reshape(row *record.SourceRow) []*Observation {
	repeat := r.repetition(row)
	if !r.spec.Reshaped() {
		return []*Observation{{Row: row, Record: r.base(row, repeat)}}
	}

	out := make([]*Observation, 0, len(r.spec.Measurements))
	for i := range r.spec.Measurements {
		m := &r.spec.Measurements[i]
		val := row.Get(m.Source)
		if val.Null {
			continue
		}
		rec := r.base(row, repeat)
		rec.TestCode = m.TestCode
		rec.Set(record.Var(r.spec.Domain, "TESTCD"), m.TestCode)
		rec.Set(record.Var(r.spec.Domain, "TEST"), m.Test)
		rec.Set(record.Var(r.spec.Domain, "ORRES"), strings.TrimSpace(val.Raw))
		rec.Set(record.Var(r.spec.Domain, "ORRESU"), unitOf(row, m))
		for q, v := range m.Qualifiers {
			rec.Set(q, v)
		}
		out = append(out, &Observation{Row: row, Measurement: m, Record: rec})
	}
	return out
}

// base copies the shared attributes of a row verbatim into a new record.
func (r *Reshaper) base(row *record.SourceRow, repeat int) *record.Record {
	rec := record.New(r.spec.Domain, row.Ref())
	rec.Repeat = repeat
	for _, v := range r.spec.Variables {
		if v.Source == "" {
			continue
		}
		if raw, ok := row.Raw[v.Source]; ok {
			rec.Set(v.Name, strings.TrimSpace(raw))
		}
	}
	if repeat > 0 {
		rec.Set(record.Var(r.spec.Domain, "REPNUM"), strconv.Itoa(repeat))
	}
	return rec
}

func (r *Reshaper) repetition(row *record.SourceRow) int {
	if r.spec.Repetition == nil {
		return 0
	}
	n, ok := record.Parse(record.KindNumber, row.Raw[r.spec.Repetition.Column]).Float()
	if !ok || n < 1 {
		return 0
	}
	return int(n)
}

// RepeatTime returns the clock time of a repeated measurement, when the spec declares one.
func (r *Reshaper) RepeatTime(row *record.SourceRow) string {
	if r.spec.Repetition == nil || r.spec.Repetition.Time == "" {
		return ""
	}
	return strings.TrimSpace(row.Raw[r.spec.Repetition.Time])
}

func unitOf(row *record.SourceRow, m *mapping.Measurement) string {
	if m.UnitSource != "" {
		if u := strings.TrimSpace(row.Raw[m.UnitSource]); u != "" {
			return u
		}
	}
	return m.Unit
}
