package validate

import (
	"context"
	"fmt"
	"time"

	"github.com/user/sdtmflow"
	"github.com/user/sdtmflow/pkg/mapping"
	"github.com/user/sdtmflow/pkg/record"
	"github.com/user/sdtmflow/pkg/reference"
	"github.com/user/sdtmflow/pkg/rules"
	"github.com/user/sdtmflow/pkg/terminology"
	"golang.org/x/sync/errgroup"
)

// Options configure a Validator.
type Options struct {
	// Threshold is the minimum overall score for submission readiness. Zero means DefaultThreshold.
	Threshold float64
	Codelists *terminology.Registry
	// Reference resolves to the demographics set. Nil skips the cross-domain layer.
	Reference *reference.Future
	// ZScore is the outlier threshold of the statistical check; MinSamples the sample size it
	// needs per test code.
	ZScore     float64
	MinSamples int
	Logger     sdtmflow.Logger
	now        func() time.Time
}

// Validator runs the five validation layers for one domain.
type Validator struct {
	spec  *mapping.DomainSpec
	rules []rules.Rule
	opts  Options
}

// New prepares a validator. It fails only on a broken specification: a rule reading an
// undeclared variable, or a codelist that is not loaded.
func New(spec *mapping.DomainSpec, opts Options) (*Validator, error) {
	if spec == nil {
		return nil, fmt.Errorf("validator requires a mapping specification")
	}
	if opts.Threshold == 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Codelists == nil {
		opts.Codelists = terminology.NewRegistry()
	}
	if opts.ZScore == 0 {
		opts.ZScore = 3
	}
	if opts.MinSamples == 0 {
		opts.MinSamples = 10
	}
	if opts.Logger == nil {
		opts.Logger = sdtmflow.NopLogger{}
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	for _, v := range spec.Variables {
		if v.Codelist != "" && !opts.Codelists.Has(v.Codelist) {
			return nil, fmt.Errorf("domain %s: variable %s references unknown codelist %q", spec.Domain, v.Name, v.Codelist)
		}
	}
	built, err := rules.Build(spec)
	if err != nil {
		return nil, err
	}
	return &Validator{spec: spec, rules: built, opts: opts}, nil
}

type layerOutcome struct {
	findings []Finding
	checked  int
	skipped  bool
}

// Validate inspects the dataset without modifying it. Content problems become findings; the error
// is reserved for broken rules and cancellation.
func (v *Validator) Validate(ctx context.Context, ds *record.Dataset) (*Report, error) {
	if ds == nil {
		ds = record.NewDataset(v.spec.Domain, v.spec.Columns())
	}
	outcomes := make(map[Layer]*layerOutcome, len(Layers))
	for _, l := range Layers {
		outcomes[l] = &layerOutcome{}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		*outcomes[Structural] = v.structural(ds)
		return nil
	})
	g.Go(func() error {
		*outcomes[Terminology] = v.terminology(ds)
		return nil
	})
	g.Go(func() error {
		out, err := v.business(gctx, ds)
		*outcomes[Business] = out
		return err
	})
	g.Go(func() error {
		*outcomes[Quality] = v.quality(ds)
		return nil
	})
	g.Go(func() error {
		out, err := v.crossDomain(gctx, ds)
		*outcomes[CrossDomain] = out
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep := &Report{
		Domain:       v.spec.Domain,
		Generated:    v.opts.now().UTC(),
		Records:      ds.Len(),
		Subjects:     len(ds.Subjects()),
		Threshold:    v.opts.Threshold,
		Completeness: completeness(v.spec, ds),
	}
	for _, l := range Layers {
		out := outcomes[l]
		rep.Findings = append(rep.Findings, out.findings...)
		rep.Layers = append(rep.Layers, LayerResult{
			Layer:   l,
			Weight:  LayerWeights[l],
			Checked: max(out.checked, 1),
			Skipped: out.skipped,
		})
	}
	rep.rescore()

	v.opts.Logger.Info("domain validated", "domain", v.spec.Domain, "score", rep.Score,
		"quality", rep.QualityScore, "ready", rep.Ready, "findings", len(rep.Findings))
	return rep, nil
}
