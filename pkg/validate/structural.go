package validate

import (
	"fmt"
	"unicode/utf8"

	"github.com/user/sdtmflow/pkg/mapping"
	"github.com/user/sdtmflow/pkg/record"
)

func (v *Validator) structural(ds *record.Dataset) layerOutcome {
	c := &collector{layer: Structural, domain: v.spec.Domain}

	for _, vr := range v.spec.Variables {
		if ds.HasColumn(vr.Name) {
			continue
		}
		switch vr.Core {
		case mapping.Required:
			c.add(Critical, "SD0001", vr.Name, fmt.Sprintf("required variable %s is not in the dataset", vr.Name))
		case mapping.Expected:
			c.add(Warning, "SD0006", vr.Name, fmt.Sprintf("expected variable %s is not in the dataset", vr.Name))
		}
	}

	seen := make(map[string]*record.Record)
	for _, rec := range ds.Records {
		if rec.Domain != v.spec.Domain {
			c.add(Error, "SD0005", record.VarDomain, fmt.Sprintf("DOMAIN is %q, expected %s", rec.Domain, v.spec.Domain), rec)
		}
		for _, vr := range v.spec.Variables {
			val := rec.Get(vr.Name)
			if vr.Core == mapping.Required && val == "" && ds.HasColumn(vr.Name) {
				c.add(Error, "SD0002", vr.Name, fmt.Sprintf("required variable %s is null", vr.Name), rec)
			}
			if vr.Length > 0 && utf8.RuneCountInString(val) > vr.Length {
				c.add(Error, "SD0003", vr.Name, fmt.Sprintf("%s is %d characters, maximum is %d",
					vr.Name, utf8.RuneCountInString(val), vr.Length), rec)
			}
		}

		if v.spec.Class == mapping.ClassSpecial {
			if prev, dup := seen[rec.Subject]; dup {
				c.add(Critical, "SD0004", record.VarSubject, fmt.Sprintf("subject %s appears more than once", rec.Subject), prev, rec)
			} else {
				seen[rec.Subject] = rec
			}
			continue
		}
		key := fmt.Sprintf("%s\x00%d", rec.Subject, rec.Seq)
		if prev, dup := seen[key]; dup {
			c.add(Critical, "SD0004", v.spec.SeqVar(), fmt.Sprintf("duplicate key USUBJID=%s %s=%d",
				rec.Subject, v.spec.SeqVar(), rec.Seq), prev, rec)
		} else {
			seen[key] = rec
		}
	}
	return layerOutcome{findings: c.findings, checked: ds.Len()}
}
