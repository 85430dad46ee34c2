package transform

import (
	"strconv"

	"github.com/user/sdtmflow/pkg/mapping"
	"github.com/user/sdtmflow/pkg/normalize"
	"github.com/user/sdtmflow/pkg/record"
	"github.com/user/sdtmflow/pkg/reference"
)

// deriveStudyDays fills study_day variables once the whole batch is sequenced. A missing
// reference start leaves the field empty and reports a referential gap.
func (t *Transformer) deriveStudyDays(spec *mapping.DomainSpec, records []*record.Record) []Warning {
	var derived []mapping.Variable
	for _, v := range spec.Variables {
		if v.Transform == mapping.StudyDay {
			derived = append(derived, v)
		}
	}
	if len(derived) == 0 || len(records) == 0 {
		return nil
	}
	if t.rc.Reference == nil {
		gap := &reference.ReferentialGap{Domain: spec.Domain, Variable: "RFSTDTC", Reason: "no demographics supplied; study days not derived"}
		return []Warning{{Code: WarnReferentialGap, Message: gap.Error()}}
	}

	var warnings []Warning
	missing := make(map[string]bool)
	for _, rec := range records {
		for _, v := range derived {
			dtc := rec.Get(v.From)
			if dtc == "" {
				continue
			}
			ref, ok := t.rc.Reference.ReferenceStart(rec.Subject)
			if !ok {
				if !missing[rec.Subject] {
					missing[rec.Subject] = true
					gap := &reference.ReferentialGap{Domain: spec.Domain, Subject: rec.Subject, Variable: "RFSTDTC", Reason: "no reference start date"}
					warnings = append(warnings, Warning{
						Code:     WarnReferentialGap,
						Source:   rec.Source,
						Subject:  rec.Subject,
						Variable: v.Name,
						Message:  gap.Error(),
					})
				}
				continue
			}
			if day, ok := normalize.StudyDay(dtc, ref); ok {
				rec.Set(v.Name, strconv.Itoa(day))
			}
		}
	}
	return warnings
}
