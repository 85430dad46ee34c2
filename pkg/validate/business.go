package validate

import (
	"context"

	"github.com/user/sdtmflow/pkg/record"
)

func (v *Validator) business(ctx context.Context, ds *record.Dataset) (layerOutcome, error) {
	c := &collector{layer: Business, domain: v.spec.Domain}
	for _, rec := range ds.Records {
		if err := ctx.Err(); err != nil {
			return layerOutcome{}, err
		}
		for _, rule := range v.rules {
			viol, err := rule.Check(ctx, rec)
			if err != nil {
				return layerOutcome{}, err
			}
			if viol == nil {
				continue
			}
			sev, err := ParseSeverity(viol.Severity)
			if err != nil {
				sev = Error
			}
			c.add(sev, viol.Rule, viol.Variable, viol.Message, rec)
		}
	}
	return layerOutcome{findings: c.findings, checked: ds.Len()}, nil
}
