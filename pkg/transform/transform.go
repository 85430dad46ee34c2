package transform

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/user/sdtmflow/pkg/mapping"
	"github.com/user/sdtmflow/pkg/normalize"
	"github.com/user/sdtmflow/pkg/record"
	"github.com/user/sdtmflow/pkg/reshape"
	"github.com/user/sdtmflow/pkg/subject"
	"github.com/user/sdtmflow/pkg/terminology"
	"golang.org/x/sync/errgroup"
)

// Result is the candidate dataset of one domain plus everything that was degraded or dropped.
type Result struct {
	Dataset  *record.Dataset
	Warnings []Warning
	Errors   []error
	Rows     int
	Skipped  int
}

// Records is a shortcut for Dataset.Records.
func (r *Result) Records() []*record.Record {
	if r.Dataset == nil {
		return nil
	}
	return r.Dataset.Records
}

type Option func(*Transformer)

// WithWorkers bounds the number of rows processed concurrently.
func WithWorkers(n int) Option {
	return func(t *Transformer) {
		if n > 0 {
			t.workers = n
		}
	}
}

// Transformer turns wide source rows into a sequenced long-format dataset.
type Transformer struct {
	rc      RunContext
	workers int
}

func New(rc RunContext, opts ...Option) *Transformer {
	if rc.Codelists == nil {
		rc.Codelists = terminology.NewRegistry()
	}
	t := &Transformer{rc: rc, workers: 4}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type rowResult struct {
	records  []*record.Record
	warnings []Warning
	errs     []error
}

// Transform reshapes, normalizes and sequences rows according to spec. Record-level problems end
// up in the Result; the returned error is reserved for batch-level failures: a missing spec, a
// spec referencing an unloaded codelist, a sequence collision, or cancellation.
func (t *Transformer) Transform(ctx context.Context, rows []*record.SourceRow, spec *mapping.DomainSpec) (*Result, error) {
	if spec == nil {
		return nil, ErrMissingSpec
	}
	if err := t.checkCodelists(spec); err != nil {
		return nil, err
	}

	log := t.rc.logger()
	kinds := spec.ColumnKinds()
	shaper := reshape.New(spec)
	results := make([]rowResult, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers)
	for i, row := range rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			row.Type(kinds)
			results[i] = t.processRow(spec, shaper, row)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Dataset: record.NewDataset(spec.Domain, spec.Columns()), Rows: len(rows)}
	for _, rr := range results {
		res.Dataset.Append(rr.records...)
		res.Warnings = append(res.Warnings, rr.warnings...)
		res.Errors = append(res.Errors, rr.errs...)
		res.Skipped += len(rr.errs)
	}

	if err := subject.AssignSequences(ctx, res.Dataset.Records, subject.SortKey{TieBreaks: spec.SortKeys}, t.workers); err != nil {
		return nil, fmt.Errorf("domain %s: %w", spec.Domain, err)
	}

	res.Warnings = append(res.Warnings, t.deriveStudyDays(spec, res.Dataset.Records)...)

	for _, err := range res.Errors {
		log.Warn("record skipped", "domain", spec.Domain, "error", err)
	}
	log.Info("domain transformed", "domain", spec.Domain, "rows", res.Rows,
		"records", res.Dataset.Len(), "skipped", res.Skipped, "warnings", len(res.Warnings))
	return res, nil
}

func (t *Transformer) checkCodelists(spec *mapping.DomainSpec) error {
	for _, v := range spec.Variables {
		if v.Codelist != "" && !t.rc.Codelists.Has(v.Codelist) {
			return fmt.Errorf("domain %s: variable %s references unknown codelist %q", spec.Domain, v.Name, v.Codelist)
		}
	}
	return nil
}

func (t *Transformer) processRow(spec *mapping.DomainSpec, shaper *reshape.Reshaper, row *record.SourceRow) rowResult {
	var rr rowResult
	for _, obs := range shaper.Reshape(row) {
		rec, warnings, err := t.apply(spec, shaper, obs)
		rr.warnings = append(rr.warnings, warnings...)
		if err != nil {
			rr.errs = append(rr.errs, err)
			continue
		}
		rr.records = append(rr.records, rec)
	}
	return rr
}

// apply fills every declared variable of one observation. A Required variable left empty drops the
// record; any other failing variable keeps whatever survived normalization and is reported.
// Non-conformant terms keep the collected value for the validator to flag.
func (t *Transformer) apply(spec *mapping.DomainSpec, shaper *reshape.Reshaper, obs *reshape.Observation) (*record.Record, []Warning, error) {
	rec := obs.Record
	var warnings []Warning
	std := standardize(obs)
	if std.warning != nil {
		warnings = append(warnings, *std.warning)
	}

	for _, v := range spec.Variables {
		value, err := t.value(spec, shaper, obs, std, v)
		var nc *terminology.NonConformantValue
		switch {
		case errors.As(err, &nc):
			warnings = append(warnings, Warning{
				Code:     WarnNonConformant,
				Source:   rec.Source,
				Subject:  rec.Subject,
				Variable: v.Name,
				Message:  err.Error(),
			})
		case err != nil:
			if value == "" && v.Core == mapping.Required {
				return nil, warnings, &RequiredFieldMissing{Domain: spec.Domain, Variable: v.Name, Source: rec.Source, Cause: err}
			}
			warnings = append(warnings, Warning{
				Code:     WarnNormalization,
				Source:   rec.Source,
				Subject:  rec.Subject,
				Variable: v.Name,
				Message:  err.Error(),
			})
		}
		if v.Transform == mapping.Sequence || v.Transform == mapping.StudyDay {
			continue
		}
		rec.Set(v.Name, value)
		if value == "" && v.Core == mapping.Required {
			return nil, warnings, &RequiredFieldMissing{Domain: spec.Domain, Variable: v.Name, Source: rec.Source}
		}
	}
	if spec.Timestamp != "" {
		rec.Timestamp = rec.Get(spec.Timestamp)
	}
	if code := rec.Get(record.Var(spec.Domain, "TESTCD")); code != "" {
		rec.TestCode = code
	}
	return rec, warnings, nil
}

func (t *Transformer) value(spec *mapping.DomainSpec, shaper *reshape.Reshaper, obs *reshape.Observation, std standardized, v mapping.Variable) (string, error) {
	row := obs.Row
	raw := func(col string) string { return strings.TrimSpace(row.Raw[col]) }

	switch v.Transform {
	case mapping.Identity:
		if v.Kind == record.KindNumber {
			val := row.Get(v.Source)
			if val.Invalid {
				return "", &normalize.NormalizationError{Kind: "number", Value: val.Raw, Reason: "not a number"}
			}
			return val.String(), nil
		}
		return normalize.Canonical(obs.Record.Get(v.Name), v.Controlled), nil
	case mapping.Upper:
		return normalize.Canonical(obs.Record.Get(v.Name), true), nil
	case mapping.Constant:
		return v.Value, nil
	case mapping.Study:
		return t.rc.StudyID, nil
	case mapping.DomainVar:
		return spec.Domain, nil
	case mapping.SubjectID:
		var site, subj string
		switch {
		case len(v.Sources) >= 2:
			site, subj = subject.SiteFromCompound(raw(v.Sources[0])), raw(v.Sources[1])
		case len(v.Sources) == 1:
			subj = raw(v.Sources[0])
		default:
			subj = raw(v.Source)
		}
		if subj == "" {
			return "", nil
		}
		return subject.DeriveID(t.rc.StudyID, site, subj), nil
	case mapping.Site:
		return subject.SiteFromCompound(raw(v.Source)), nil
	case mapping.Date:
		return normalize.Date(raw(v.Source))
	case mapping.DateTime:
		date, err := normalize.Date(raw(v.Source))
		if err != nil {
			return "", err
		}
		clock := shaper.RepeatTime(row)
		if clock == "" && v.Time != "" {
			clock = raw(v.Time)
		}
		return normalize.DateTime(date, clock)
	case mapping.CT:
		return t.mapTerm(v.Codelist, obs.Record.Get(v.Name))
	case mapping.Concat:
		parts := make([]string, 0, len(v.Sources))
		for _, s := range v.Sources {
			if p := raw(s); p != "" {
				parts = append(parts, p)
			}
		}
		return normalize.Canonical(strings.Join(parts, v.Separator), v.Controlled), nil
	case mapping.TestCode:
		return t.mapOptional(v.Codelist, obs.Record.TestCode)
	case mapping.TestName:
		return t.mapOptional(v.Codelist, obs.Record.Get(v.Name))
	case mapping.OrigRes:
		return obs.Record.Get(v.Name), nil
	case mapping.OrigUnit:
		return t.mapOptional(v.Codelist, obs.Record.Get(v.Name))
	case mapping.StdResC:
		return std.char, nil
	case mapping.StdResN:
		return std.num, nil
	case mapping.StdUnit:
		return t.mapOptional(v.Codelist, std.unit)
	case mapping.RepNumber:
		if obs.Record.Repeat == 0 {
			return "", nil
		}
		return strconv.Itoa(obs.Record.Repeat), nil
	}
	return obs.Record.Get(v.Name), nil
}

// mapTerm maps a value through a codelist. A non-conformant value is returned as the error so
// the caller can keep the collected value and report it.
func (t *Transformer) mapTerm(codelist, value string) (string, error) {
	res, err := t.rc.Codelists.Map(codelist, normalize.Canonical(value, true))
	if err != nil {
		return "", err
	}
	if res.Status == terminology.NonConformant {
		return res.Original, res.Err()
	}
	return res.Value, nil
}

func (t *Transformer) mapOptional(codelist, value string) (string, error) {
	if codelist == "" {
		return strings.TrimSpace(value), nil
	}
	res, err := t.rc.Codelists.Map(codelist, strings.TrimSpace(value))
	if err != nil {
		return "", err
	}
	if res.Status == terminology.NonConformant {
		return res.Original, res.Err()
	}
	return res.Value, nil
}
