package transform

import (
	"github.com/user/sdtmflow/pkg/normalize"
	"github.com/user/sdtmflow/pkg/record"
	"github.com/user/sdtmflow/pkg/reshape"
)

// standardized holds the --STRESC/--STRESN/--STRESU values of one measurement.
type standardized struct {
	char    string
	num     string
	unit    string
	warning *Warning
}

func standardize(obs *reshape.Observation) standardized {
	m := obs.Measurement
	if m == nil {
		return standardized{}
	}
	rec := obs.Record
	orres := rec.Get(record.Var(rec.Domain, "ORRES"))
	unit := rec.Get(record.Var(rec.Domain, "ORRESU"))
	warn := func(code, msg string) *Warning {
		return &Warning{Code: code, Source: rec.Source, Variable: record.Var(rec.Domain, "STRESN"), Message: msg}
	}

	if m.Kind == record.KindString {
		return standardized{char: normalize.Canonical(orres, true)}
	}
	n, ok := obs.Row.Get(m.Source).Float()
	if !ok {
		return standardized{
			char:    normalize.Canonical(orres, true),
			warning: warn(WarnNormalization, m.TestCode+" result "+orres+" is not numeric"),
		}
	}
	if m.Quantity == "" {
		s := record.FormatNumber(n)
		return standardized{char: s, num: s, unit: unit}
	}

	conv := normalize.ConvertUnit(m.Quantity, n, unit)
	if conv.Flagged {
		s := record.FormatNumber(n)
		return standardized{
			char:    s,
			num:     s,
			unit:    unit,
			warning: warn(WarnUnitUnknown, "unit "+unit+" is not recognized for "+string(m.Quantity)+"; value not converted"),
		}
	}
	s := record.FormatNumber(conv.Value)
	return standardized{char: s, num: s, unit: conv.Unit}
}
