package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/user/sdtmflow"
	"github.com/user/sdtmflow/internal/storage"
	"github.com/user/sdtmflow/pkg/filestorage"
	"github.com/user/sdtmflow/pkg/mapping"
	"github.com/user/sdtmflow/pkg/pii"
	"github.com/user/sdtmflow/pkg/record"
	"github.com/user/sdtmflow/pkg/reference"
	"github.com/user/sdtmflow/pkg/report"
	csvsource "github.com/user/sdtmflow/pkg/source/csv"
	"github.com/user/sdtmflow/pkg/terminology"
	"github.com/user/sdtmflow/pkg/transform"
	"github.com/user/sdtmflow/pkg/validate"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Report artifact names written next to the datasets.
const (
	ReportJSON     = "report.json"
	ReportMarkdown = "report.md"
)

// DomainJob is one domain of a run: where its wide rows come from, how to map them and where
// the resulting dataset goes. Sink may be nil for validate-only runs.
type DomainJob struct {
	Spec   *mapping.DomainSpec
	Source sdtmflow.Source
	Sink   sdtmflow.Sink
}

// Config holds configuration for the Engine.
type Config struct {
	StudyID   string
	Threshold float64
	// Workers bounds the rows transformed concurrently within a domain.
	Workers int
	// Parallel bounds the domains processed concurrently. Zero runs all at once.
	Parallel int
	// OutputDir receives report.json and report.md. Empty skips writing them.
	OutputDir  string
	ZScore     float64
	MinSamples int
	// MaskPII masks personal identifiers found in free-text variables before datasets are written.
	// The report still carries the findings for the unmasked values.
	MaskPII bool
}

// DefaultConfig returns the default configuration for the Engine.
func DefaultConfig() Config {
	return Config{
		StudyID:   "STUDY",
		Threshold: validate.DefaultThreshold,
		Workers:   4,
	}
}

// Result is the outcome of one run.
type Result struct {
	Run *report.Run
	// Outputs are the local files written by sinks and the report writer.
	Outputs   []string
	Artifacts []filestorage.Artifact
}

// Engine runs the transform, validate and write stages for a set of domains.
type Engine struct {
	config    Config
	codelists *terminology.Registry
	logger    sdtmflow.Logger
	reference *reference.Set
	history   storage.Storage
	publisher *filestorage.Publisher
	tracer    trace.Tracer

	pushURL string
	pushJob string

	now func() time.Time
}

func NewEngine(config Config, codelists *terminology.Registry) *Engine {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.Threshold <= 0 {
		config.Threshold = validate.DefaultThreshold
	}
	if codelists == nil {
		codelists = terminology.NewRegistry()
	}
	return &Engine{
		config:    config,
		codelists: codelists,
		logger:    NewDefaultLogger(),
		tracer:    otel.Tracer("github.com/user/sdtmflow/pkg/engine"),
		now:       time.Now,
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger sdtmflow.Logger) {
	if logger == nil {
		logger = sdtmflow.NopLogger{}
	}
	e.logger = logger
}

// SetReference supplies demographics up front instead of deriving them from a DM job.
func (e *Engine) SetReference(set *reference.Set) {
	e.reference = set
}

// SetHistory records runs and their logs in s.
func (e *Engine) SetHistory(s storage.Storage) {
	e.history = s
}

// SetPublisher publishes every output of a run through p.
func (e *Engine) SetPublisher(p *filestorage.Publisher) {
	e.publisher = p
}

// SetMetricsPush pushes the metrics registry to a Pushgateway after each run.
func (e *Engine) SetMetricsPush(url, job string) {
	e.pushURL = url
	e.pushJob = job
}

func checkJobs(jobs []DomainJob) error {
	if len(jobs) == 0 {
		return errors.New("no domains to process")
	}
	seen := make(map[string]bool, len(jobs))
	for i, job := range jobs {
		if job.Spec == nil {
			return fmt.Errorf("domain job %d: %w", i, transform.ErrMissingSpec)
		}
		if job.Source == nil {
			return fmt.Errorf("domain %s: source is required", job.Spec.Domain)
		}
		if seen[job.Spec.Domain] {
			return fmt.Errorf("domain %s is configured more than once", job.Spec.Domain)
		}
		seen[job.Spec.Domain] = true
	}
	return nil
}

// Run processes every job and returns the run report. Demographics (DM) are processed first
// and feed study-day derivation and cross-domain checks of the other domains. A domain that
// fails is recorded in the run report and the others continue; the returned error is reserved
// for invalid jobs and cancellation.
func (e *Engine) Run(ctx context.Context, jobs []DomainJob) (*Result, error) {
	if err := checkJobs(jobs); err != nil {
		return nil, err
	}

	run := &report.Run{
		ID:        uuid.New().String(),
		StudyID:   e.config.StudyID,
		Started:   e.now().UTC(),
		Threshold: e.config.Threshold,
	}
	logger := e.logger
	if e.history != nil {
		logger = NewStorageLogger(ctx, e.history, run.ID, e.logger)
	}

	ctx, span := e.tracer.Start(ctx, "sdtmflow.run", trace.WithAttributes(
		attribute.String("run.id", run.ID),
		attribute.String("study.id", run.StudyID),
		attribute.Int("domains", len(jobs)),
	))
	defer span.End()

	logger.Info("Starting run", "run_id", run.ID, "study_id", run.StudyID, "domains", len(jobs), "action", "start")

	future, ordered := e.plan(jobs)

	var (
		mu      sync.Mutex
		outputs []string
	)
	run.Errors = make(map[string]string)

	g, gctx := errgroup.WithContext(ctx)
	if e.config.Parallel > 0 {
		g.SetLimit(e.config.Parallel)
	}
	for _, job := range ordered {
		g.Go(func() error {
			rep, out, err := e.runDomain(gctx, job, future, logger)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				run.Errors[job.Spec.Domain] = err.Error()
				logger.Error("Domain failed", "domain", job.Spec.Domain, "error", err)
				return nil
			}
			run.Domains = append(run.Domains, rep)
			outputs = append(outputs, out...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		RunsTotal.WithLabelValues(storage.StatusFailed).Inc()
		return nil, err
	}
	if len(run.Errors) == 0 {
		run.Errors = nil
	}
	run.Finished = e.now().UTC()
	run.Sort()

	res := &Result{Run: run, Outputs: outputs}

	reports, err := e.writeReports(run)
	if err != nil {
		return nil, err
	}
	res.Outputs = append(res.Outputs, reports...)

	res.Artifacts = e.publish(ctx, run.ID, res.Outputs, logger)
	e.record(ctx, run, res.Artifacts, logger)

	status := runStatus(run)
	RunsTotal.WithLabelValues(status).Inc()
	span.SetAttributes(attribute.Float64("score", run.Score()), attribute.String("status", status))

	if err := PushMetrics(ctx, e.pushURL, e.pushJob, run.ID); err != nil {
		logger.Warn("Metrics push failed", "error", err)
	}

	logger.Info("Run finished", "run_id", run.ID, "status", status, "score", run.Score(),
		"duration", run.Finished.Sub(run.Started).String(), "action", "finish")
	return res, nil
}

// plan resolves where demographics come from and puts the DM job first so it holds a slot
// before any domain that waits for it.
func (e *Engine) plan(jobs []DomainJob) (*reference.Future, []DomainJob) {
	ordered := make([]DomainJob, 0, len(jobs))
	hasDM := false
	for _, job := range jobs {
		if job.Spec.Domain == "DM" {
			hasDM = true
			ordered = append([]DomainJob{job}, ordered...)
			continue
		}
		ordered = append(ordered, job)
	}

	switch {
	case e.reference != nil:
		return reference.Resolved(e.reference), ordered
	case hasDM:
		return reference.NewFuture(), ordered
	default:
		return nil, ordered
	}
}

func (e *Engine) runDomain(ctx context.Context, job DomainJob, future *reference.Future, logger sdtmflow.Logger) (rep *validate.Report, outputs []string, err error) {
	spec := job.Spec
	domain := spec.Domain
	ActiveDomains.Inc()
	defer ActiveDomains.Dec()
	defer job.Source.Close()
	sinkClosed := job.Sink == nil
	defer func() {
		if !sinkClosed {
			job.Sink.Close()
		}
	}()

	ctx, span := e.tracer.Start(ctx, "sdtmflow.domain", trace.WithAttributes(attribute.String("domain", domain)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	// A DM job owns the future; whatever happens, waiting domains must be released.
	derivesReference := domain == "DM" && future != nil && !future.Ready()
	if derivesReference {
		defer func() {
			if err != nil {
				future.Resolve(nil, fmt.Errorf("domain DM failed: %w", err))
			}
		}()
	}

	var ref *reference.Set
	if future != nil && !derivesReference {
		if ref, err = future.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			logger.Warn("Demographics unavailable, study days not derived", "domain", domain, "error", err)
			ref = nil
		}
	}

	res, err := e.transform(ctx, job, ref, logger)
	if err != nil {
		DomainErrors.WithLabelValues(e.config.StudyID, domain, "transform").Inc()
		return nil, nil, err
	}
	if derivesReference {
		future.Resolve(reference.FromDataset(res.Dataset), nil)
	}

	rep, err = e.validate(ctx, spec, res, future, logger)
	if err != nil {
		DomainErrors.WithLabelValues(e.config.StudyID, domain, "validate").Inc()
		return nil, nil, err
	}

	if e.config.MaskPII {
		if n := maskIdentifiers(spec, res.Dataset); n > 0 {
			logger.Warn("Masked personal identifiers", "domain", domain, "values", n, "action", "mask")
		}
	}

	if job.Sink != nil {
		sinkClosed = true
		out, err := e.write(ctx, job.Sink, res.Dataset)
		if err != nil {
			DomainErrors.WithLabelValues(e.config.StudyID, domain, "write").Inc()
			return nil, nil, err
		}
		if out != "" {
			outputs = append(outputs, out)
		}
	}

	logger.Info("Domain processed", "domain", domain, "rows", res.Rows, "records", res.Dataset.Len(),
		"skipped", res.Skipped, "score", rep.Score, "ready", rep.Ready, "action", "domain")
	return rep, outputs, nil
}

// maskIdentifiers rewrites free-text values in place and returns how many changed.
func maskIdentifiers(spec *mapping.DomainSpec, ds *record.Dataset) int {
	masker := pii.NewEngine()
	n := 0
	for _, v := range spec.FreeText() {
		for _, rec := range ds.Records {
			val := rec.Get(v.Name)
			if masked := masker.Mask(val); masked != val {
				rec.Set(v.Name, masked)
				n++
			}
		}
	}
	return n
}

func (e *Engine) transform(ctx context.Context, job DomainJob, ref *reference.Set, logger sdtmflow.Logger) (*transform.Result, error) {
	domain := job.Spec.Domain
	ctx, span := e.tracer.Start(ctx, "sdtmflow.transform", trace.WithAttributes(attribute.String("domain", domain)))
	defer span.End()
	start := time.Now()
	defer func() { StageDuration.WithLabelValues(domain, "transform").Observe(time.Since(start).Seconds()) }()

	if err := job.Source.Ping(ctx); err != nil {
		return nil, fmt.Errorf("source ping failed: %w", err)
	}
	rows, err := csvsource.ReadAll(ctx, job.Source)
	if err != nil {
		return nil, fmt.Errorf("source read error: %w", err)
	}
	RowsRead.WithLabelValues(e.config.StudyID, domain).Add(float64(len(rows)))

	t := transform.New(transform.RunContext{
		StudyID:   e.config.StudyID,
		Codelists: e.codelists,
		Reference: ref,
		Logger:    logger,
	}, transform.WithWorkers(e.config.Workers))
	res, err := t.Transform(ctx, rows, job.Spec)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	RecordsProduced.WithLabelValues(e.config.StudyID, domain).Add(float64(res.Dataset.Len()))
	RecordsSkipped.WithLabelValues(e.config.StudyID, domain).Add(float64(res.Skipped))
	for _, w := range res.Warnings {
		TransformWarnings.WithLabelValues(e.config.StudyID, domain, w.Code).Inc()
	}
	span.SetAttributes(attribute.Int("rows", res.Rows), attribute.Int("records", res.Dataset.Len()))
	return res, nil
}

func (e *Engine) validate(ctx context.Context, spec *mapping.DomainSpec, res *transform.Result, future *reference.Future, logger sdtmflow.Logger) (*validate.Report, error) {
	ctx, span := e.tracer.Start(ctx, "sdtmflow.validate", trace.WithAttributes(attribute.String("domain", spec.Domain)))
	defer span.End()
	start := time.Now()
	defer func() { StageDuration.WithLabelValues(spec.Domain, "validate").Observe(time.Since(start).Seconds()) }()

	v, err := validate.New(spec, validate.Options{
		Threshold:  e.config.Threshold,
		Codelists:  e.codelists,
		Reference:  future,
		ZScore:     e.config.ZScore,
		MinSamples: e.config.MinSamples,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	rep, err := v.Validate(ctx, res.Dataset)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	rep.Add(TransformFindings(spec.Domain, res)...)

	for sev, n := range rep.Counts {
		Findings.WithLabelValues(e.config.StudyID, spec.Domain, sev).Add(float64(n))
	}
	ComplianceScore.WithLabelValues(e.config.StudyID, spec.Domain).Set(rep.Score)
	QualityScore.WithLabelValues(e.config.StudyID, spec.Domain).Set(rep.QualityScore)
	span.SetAttributes(attribute.Float64("score", rep.Score), attribute.Bool("ready", rep.Ready))
	return rep, nil
}

type pather interface {
	Path() string
}

func (e *Engine) write(ctx context.Context, sink sdtmflow.Sink, ds *record.Dataset) (string, error) {
	ctx, span := e.tracer.Start(ctx, "sdtmflow.write", trace.WithAttributes(attribute.String("domain", ds.Domain)))
	defer span.End()
	start := time.Now()
	defer func() { StageDuration.WithLabelValues(ds.Domain, "write").Observe(time.Since(start).Seconds()) }()

	if err := sink.Write(ctx, ds); err != nil {
		sink.Close()
		return "", fmt.Errorf("sink write error: %w", err)
	}
	if err := sink.Close(); err != nil {
		return "", fmt.Errorf("sink close error: %w", err)
	}
	if p, ok := sink.(pather); ok {
		return p.Path(), nil
	}
	return "", nil
}

// TransformFindings turns the records the transform dropped or degraded into report findings,
// so the score reflects them. Non-conformant terms are left to the terminology layer.
func TransformFindings(domain string, res *transform.Result) []validate.Finding {
	var out []validate.Finding
	for _, err := range res.Errors {
		var missing *transform.RequiredFieldMissing
		if !errors.As(err, &missing) {
			continue
		}
		out = append(out, validate.Finding{
			Severity: validate.Error,
			Rule:     "TR0001",
			Layer:    validate.Structural,
			Domain:   domain,
			Variable: missing.Variable,
			Records:  []validate.RecordRef{{Source: missing.Source.String()}},
			Message:  fmt.Sprintf("record dropped: required variable %s is missing", missing.Variable),
		})
	}
	for _, w := range res.Warnings {
		f := validate.Finding{
			Severity: validate.Warning,
			Domain:   domain,
			Variable: w.Variable,
			Message:  w.Message,
		}
		if w.Source.Row > 0 || w.Subject != "" {
			ref := validate.RecordRef{Subject: w.Subject}
			if w.Source.Row > 0 {
				ref.Source = w.Source.String()
			}
			f.Records = []validate.RecordRef{ref}
		}
		switch w.Code {
		case transform.WarnNormalization:
			f.Rule, f.Layer = "TR0002", validate.Quality
		case transform.WarnUnitUnknown:
			f.Rule, f.Layer = "TR0003", validate.Quality
		case transform.WarnReferentialGap:
			f.Rule, f.Layer = "TR0004", validate.CrossDomain
		default:
			continue
		}
		out = append(out, f)
	}
	return out
}

func (e *Engine) writeReports(run *report.Run) ([]string, error) {
	if e.config.OutputDir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(e.config.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var buf bytes.Buffer
	if err := report.WriteRunJSON(&buf, run); err != nil {
		return nil, err
	}
	jsonPath := filepath.Join(e.config.OutputDir, ReportJSON)
	if err := os.WriteFile(jsonPath, buf.Bytes(), 0644); err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}
	mdPath := filepath.Join(e.config.OutputDir, ReportMarkdown)
	if err := os.WriteFile(mdPath, []byte(report.RunMarkdown(run)), 0644); err != nil {
		return nil, fmt.Errorf("failed to write report summary: %w", err)
	}
	return []string{jsonPath, mdPath}, nil
}

func (e *Engine) publish(ctx context.Context, runID string, files []string, logger sdtmflow.Logger) []filestorage.Artifact {
	if e.publisher == nil {
		return nil
	}
	var artifacts []filestorage.Artifact
	for _, file := range files {
		a, err := e.publisher.PublishFile(ctx, runID, file)
		if err != nil {
			logger.Warn("Publish failed", "file", file, "error", err, "action", "publish")
			continue
		}
		artifacts = append(artifacts, a)
	}
	logger.Info("Artifacts published", "count", len(artifacts), "action", "publish")
	return artifacts
}

func (e *Engine) record(ctx context.Context, run *report.Run, artifacts []filestorage.Artifact, logger sdtmflow.Logger) {
	if e.history == nil {
		return
	}
	var buf bytes.Buffer
	if err := report.WriteRunJSON(&buf, run); err != nil {
		logger.Warn("History not recorded", "error", err)
		return
	}
	counts := run.Counts()
	entry := storage.Run{
		ID:        run.ID,
		StudyID:   run.StudyID,
		Started:   run.Started,
		Finished:  run.Finished,
		Status:    runStatus(run),
		Score:     run.Score(),
		Threshold: run.Threshold,
		Critical:  counts[validate.Critical.String()],
		Errors:    counts[validate.Error.String()],
		Warnings:  counts[validate.Warning.String()],
		Report:    strings.TrimSpace(buf.String()),
	}
	for _, d := range run.Domains {
		entry.Domains = append(entry.Domains, d.Domain)
	}
	entry.Domains = append(entry.Domains, slices.Sorted(maps.Keys(run.Errors))...)
	for _, a := range artifacts {
		entry.Artifacts = append(entry.Artifacts, a.URL)
	}
	if err := e.history.SaveRun(context.WithoutCancel(ctx), entry); err != nil {
		logger.Warn("History not recorded", "error", err)
	}
}

func runStatus(run *report.Run) string {
	switch {
	case len(run.Domains) == 0:
		return storage.StatusFailed
	case run.Ready():
		return storage.StatusReady
	default:
		return storage.StatusNotReady
	}
}
