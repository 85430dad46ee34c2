package validate

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/user/sdtmflow/pkg/mapping"
	"github.com/user/sdtmflow/pkg/pii"
	"github.com/user/sdtmflow/pkg/record"
)

var identifiers = pii.NewEngine()

// runningStats accumulates mean and variance with Welford's online algorithm.
type runningStats struct {
	count float64
	mean  float64
	m2    float64
}

func (s *runningStats) update(x float64) {
	s.count++
	delta := x - s.mean
	s.mean += delta / s.count
	s.m2 += delta * (x - s.mean)
}

func (s *runningStats) stdDev() float64 {
	if s.count < 2 {
		return 0
	}
	return math.Sqrt(s.m2 / (s.count - 1))
}

func (v *Validator) quality(ds *record.Dataset) layerOutcome {
	c := &collector{layer: Quality, domain: v.spec.Domain}
	stresn := record.Var(v.spec.Domain, "STRESN")

	stats := make(map[string]*runningStats)
	values := make(map[*record.Record]float64)
	for _, rec := range ds.Records {
		if rec.TestCode == "" {
			continue
		}
		n, err := strconv.ParseFloat(rec.Get(stresn), 64)
		if err != nil {
			continue
		}
		values[rec] = n
		st, ok := stats[rec.TestCode]
		if !ok {
			st = &runningStats{}
			stats[rec.TestCode] = st
		}
		st.update(n)

		if m, ok := v.spec.Measurement(rec.TestCode); ok && m.Range != nil && !m.Range.Contains(n) {
			c.add(Info, "DQ0001", stresn, fmt.Sprintf("%s %s is outside the plausible range %s-%s",
				rec.TestCode, rec.Get(stresn), record.FormatNumber(m.Range.Low), record.FormatNumber(m.Range.High)), rec)
		}
	}

	for _, rec := range ds.Records {
		n, ok := values[rec]
		if !ok {
			continue
		}
		st := stats[rec.TestCode]
		if int(st.count) < v.opts.MinSamples {
			continue
		}
		sd := st.stdDev()
		if sd == 0 {
			continue
		}
		if z := math.Abs(n-st.mean) / sd; z > v.opts.ZScore {
			c.add(Info, "DQ0002", stresn, fmt.Sprintf("%s %s is a statistical outlier (z=%.1f)",
				rec.TestCode, rec.Get(stresn), z), rec)
		}
	}

	if len(v.spec.Duplicates) > 0 {
		first := make(map[string]*record.Record)
		for _, rec := range ds.Records {
			parts := []string{rec.Subject}
			for _, k := range v.spec.Duplicates {
				parts = append(parts, strings.ToUpper(rec.Get(k)))
			}
			key := strings.Join(parts, "\x00")
			if prev, dup := first[key]; dup {
				c.add(Warning, "DQ0003", v.spec.Duplicates[0], fmt.Sprintf("possible duplicate of record %d: same subject and %s",
					prev.Seq, strings.Join(v.spec.Duplicates, ", ")), prev, rec)
				continue
			}
			first[key] = rec
		}
	}

	for _, vr := range v.spec.Tier(mapping.Expected) {
		if ratio, ok := variableCompleteness(ds, vr.Name); ok && ratio < 0.5 {
			c.add(Info, "DQ0004", vr.Name, fmt.Sprintf("expected variable %s is populated on %.0f%% of records", vr.Name, ratio*100))
		}
	}
	for _, vr := range v.spec.FreeText() {
		for _, rec := range ds.Records {
			if kinds := identifiers.Discover(rec.Get(vr.Name)); len(kinds) > 0 {
				c.add(Warning, "DQ0005", vr.Name, fmt.Sprintf("%s may contain personal identifiers: %s",
					vr.Name, strings.Join(kinds, ", ")), rec)
			}
		}
	}
	return layerOutcome{findings: c.findings, checked: ds.Len()}
}

func variableCompleteness(ds *record.Dataset, name string) (float64, bool) {
	if ds.Len() == 0 || !ds.HasColumn(name) {
		return 0, false
	}
	filled := 0
	for _, rec := range ds.Records {
		if rec.Has(name) {
			filled++
		}
	}
	return float64(filled) / float64(ds.Len()), true
}

// completeness is the mean populated ratio of each tier's variables.
func completeness(spec *mapping.DomainSpec, ds *record.Dataset) map[mapping.Tier]float64 {
	out := make(map[mapping.Tier]float64)
	if ds.Len() == 0 {
		return out
	}
	for _, tier := range []mapping.Tier{mapping.Required, mapping.Expected, mapping.Permissible} {
		n, sum := 0, 0.0
		for _, vr := range spec.Tier(tier) {
			ratio, ok := variableCompleteness(ds, vr.Name)
			if !ok {
				ratio = 0
			}
			sum += ratio
			n++
		}
		if n > 0 {
			out[tier] = sum / float64(n)
		}
	}
	return out
}
