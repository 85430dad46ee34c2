package rules

import (
	"context"
	"fmt"
	"strings"

	"github.com/user/sdtmflow/pkg/mapping"
	"github.com/user/sdtmflow/pkg/record"
)

func init() {
	Register("conditional_any", newConditionalAny)
	Register("null_iff_present", newNullIffPresent)
	Register("required_when", newRequiredWhen)
	Register("allowed_when", newAllowedWhen)
}

// conditionalAny requires at least one of Any to be Y when the trigger holds, e.g. a serious
// event needs a seriousness criterion.
type conditionalAny struct{ base }

func newConditionalAny(spec mapping.RuleSpec, _ *mapping.DomainSpec) (Rule, error) {
	if spec.When == "" || len(spec.Any) == 0 {
		return nil, fmt.Errorf("conditional_any needs when and any")
	}
	if len(spec.Equals) == 0 {
		spec.Equals = []string{"Y"}
	}
	return &conditionalAny{base{spec}}, nil
}

func (r *conditionalAny) Check(_ context.Context, rec *record.Record) (*Violation, error) {
	if !r.holds(rec) {
		return nil, nil
	}
	accept := r.spec.Values
	if len(accept) == 0 {
		accept = []string{"Y"}
	}
	for _, v := range r.spec.Any {
		if matches(rec.Get(v), accept) {
			return nil, nil
		}
	}
	return r.violation(r.spec.When, fmt.Sprintf("%s is %s but none of %s is set", r.spec.When,
		rec.Get(r.spec.When), strings.Join(r.spec.Any, ", "))), nil
}

// nullIffPresent requires Variable to be null exactly when When carries a value.
type nullIffPresent struct{ base }

func newNullIffPresent(spec mapping.RuleSpec, _ *mapping.DomainSpec) (Rule, error) {
	if spec.Variable == "" || spec.When == "" {
		return nil, fmt.Errorf("null_iff_present needs variable and when")
	}
	return &nullIffPresent{base{spec}}, nil
}

func (r *nullIffPresent) Check(_ context.Context, rec *record.Record) (*Violation, error) {
	null := !rec.Has(r.spec.Variable)
	present := rec.Has(r.spec.When)
	if null == present {
		return nil, nil
	}
	if null {
		return r.violation(r.spec.Variable, fmt.Sprintf("%s is null while %s is also null", r.spec.Variable, r.spec.When)), nil
	}
	return r.violation(r.spec.Variable, fmt.Sprintf("%s is %s while %s is present", r.spec.Variable,
		rec.Get(r.spec.Variable), r.spec.When)), nil
}

// requiredWhen requires Variable when the trigger holds.
type requiredWhen struct{ base }

func newRequiredWhen(spec mapping.RuleSpec, _ *mapping.DomainSpec) (Rule, error) {
	if spec.Variable == "" || spec.When == "" {
		return nil, fmt.Errorf("required_when needs variable and when")
	}
	return &requiredWhen{base{spec}}, nil
}

func (r *requiredWhen) Check(_ context.Context, rec *record.Record) (*Violation, error) {
	if !r.holds(rec) || rec.Has(r.spec.Variable) {
		return nil, nil
	}
	return r.violation(r.spec.Variable, fmt.Sprintf("%s is required when %s is %s", r.spec.Variable,
		r.spec.When, rec.Get(r.spec.When))), nil
}

// allowedWhen restricts Variable to Values when the trigger holds.
type allowedWhen struct{ base }

func newAllowedWhen(spec mapping.RuleSpec, _ *mapping.DomainSpec) (Rule, error) {
	if spec.Variable == "" || len(spec.Values) == 0 {
		return nil, fmt.Errorf("allowed_when needs variable and values")
	}
	return &allowedWhen{base{spec}}, nil
}

func (r *allowedWhen) Check(_ context.Context, rec *record.Record) (*Violation, error) {
	if !r.holds(rec) {
		return nil, nil
	}
	if v := rec.Get(r.spec.Variable); v != "" && matches(v, r.spec.Values) {
		return nil, nil
	}
	return r.violation(r.spec.Variable, fmt.Sprintf("%s is %q; expected one of %s", r.spec.Variable,
		rec.Get(r.spec.Variable), strings.Join(r.spec.Values, ", "))), nil
}
