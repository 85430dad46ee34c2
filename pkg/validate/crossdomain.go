package validate

import (
	"context"
	"fmt"

	"github.com/user/sdtmflow/pkg/mapping"
	"github.com/user/sdtmflow/pkg/normalize"
	"github.com/user/sdtmflow/pkg/record"
)

// crossDomain joins the dataset against demographics. It waits for the reference future, which
// is the layer's only synchronization point.
func (v *Validator) crossDomain(ctx context.Context, ds *record.Dataset) (layerOutcome, error) {
	c := &collector{layer: CrossDomain, domain: v.spec.Domain}
	if v.opts.Reference == nil {
		c.add(Warning, "XD0000", "", "no demographics supplied; cross-domain checks skipped")
		return layerOutcome{findings: c.findings, checked: ds.Len(), skipped: true}, nil
	}
	set, err := v.opts.Reference.Wait(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return layerOutcome{}, err
		}
		c.add(Warning, "XD0000", "", fmt.Sprintf("demographics unavailable: %v; cross-domain checks skipped", err))
		return layerOutcome{findings: c.findings, checked: ds.Len(), skipped: true}, nil
	}

	var dates []mapping.Variable
	for _, vr := range v.spec.Variables {
		if vr.IsDate() && v.spec.Domain != "DM" {
			dates = append(dates, vr)
		}
	}

	missing := make(map[string][]*record.Record)
	var order []string
	for _, rec := range ds.Records {
		subj, ok := set.Get(rec.Subject)
		if !ok {
			if _, seen := missing[rec.Subject]; !seen {
				order = append(order, rec.Subject)
			}
			missing[rec.Subject] = append(missing[rec.Subject], rec)
			continue
		}
		for _, vr := range dates {
			val := rec.Get(vr.Name)
			if val == "" {
				continue
			}
			if cmp, ok := normalize.CompareDates(val, subj.RFSTDTC); ok && cmp < 0 {
				c.add(Warning, "XD0002", vr.Name, fmt.Sprintf("%s %s is before reference start %s", vr.Name, val, subj.RFSTDTC), rec)
			}
			if cmp, ok := normalize.CompareDates(val, subj.RFENDTC); ok && cmp > 0 {
				c.add(Warning, "XD0002", vr.Name, fmt.Sprintf("%s %s is after reference end %s", vr.Name, val, subj.RFENDTC), rec)
			}
		}
	}
	for _, s := range order {
		c.add(Error, "XD0001", record.VarSubject, fmt.Sprintf("subject %s is not in demographics", s), missing[s]...)
	}
	return layerOutcome{findings: c.findings, checked: ds.Len()}, nil
}
