package validate

import (
	"fmt"
	"strconv"

	"github.com/user/sdtmflow/pkg/mapping"
	"github.com/user/sdtmflow/pkg/normalize"
	"github.com/user/sdtmflow/pkg/record"
)

func (v *Validator) terminology(ds *record.Dataset) layerOutcome {
	c := &collector{layer: Terminology, domain: v.spec.Domain}
	for _, rec := range ds.Records {
		for _, vr := range v.spec.Variables {
			val := rec.Get(vr.Name)
			if val == "" {
				continue
			}
			if vr.Codelist != "" {
				v.checkTerm(c, rec, vr, val)
			}
			if vr.IsDate() && !normalize.ValidISO8601(val) {
				c.add(Error, "CT0002", vr.Name, fmt.Sprintf("%s value %q is not a valid ISO 8601 date", vr.Name, val), rec)
			}
			if vr.Transform == mapping.StdResN || vr.Kind == record.KindNumber {
				if _, err := strconv.ParseFloat(val, 64); err != nil {
					c.add(Error, "CT0004", vr.Name, fmt.Sprintf("%s value %q is not numeric", vr.Name, val), rec)
				}
			}
		}
		for _, dp := range v.spec.DatePairs {
			start, end := rec.Get(dp.Start), rec.Get(dp.End)
			if cmp, ok := normalize.CompareDates(start, end); ok && cmp > 0 {
				c.add(Error, "CT0003", dp.End, fmt.Sprintf("%s %s is before %s %s", dp.End, end, dp.Start, start), rec)
			}
		}
	}
	return layerOutcome{findings: c.findings, checked: ds.Len()}
}

func (v *Validator) checkTerm(c *collector, rec *record.Record, vr mapping.Variable, val string) {
	cl, ok := v.opts.Codelists.Get(vr.Codelist)
	if !ok || cl.Contains(val) {
		return
	}
	if cl.Extensible {
		c.add(Info, "CT0001", vr.Name, fmt.Sprintf("%s value %q is a sponsor-defined term of extensible codelist %s",
			vr.Name, val, vr.Codelist), rec)
		return
	}
	c.add(Error, "CT0001", vr.Name, fmt.Sprintf("%s value %q is not in non-extensible codelist %s",
		vr.Name, val, vr.Codelist), rec)
}
