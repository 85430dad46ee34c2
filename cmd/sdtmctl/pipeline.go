package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/user/sdtmflow"
	"github.com/user/sdtmflow/internal/config"
	"github.com/user/sdtmflow/internal/observability"
	sqlstorage "github.com/user/sdtmflow/internal/storage/sql"
	"github.com/user/sdtmflow/pkg/engine"
	"github.com/user/sdtmflow/pkg/filestorage"
	jsonfmt "github.com/user/sdtmflow/pkg/formatter/json"
	"github.com/user/sdtmflow/pkg/mapping"
	"github.com/user/sdtmflow/pkg/reference"
	csvsink "github.com/user/sdtmflow/pkg/sink/csv"
	filesink "github.com/user/sdtmflow/pkg/sink/file"
	parquetsink "github.com/user/sdtmflow/pkg/sink/parquet"
	sqlsink "github.com/user/sdtmflow/pkg/sink/sql"
	"github.com/user/sdtmflow/pkg/sink/stdout"
	csvsource "github.com/user/sdtmflow/pkg/source/csv"
	"github.com/user/sdtmflow/pkg/source/excel"
	"github.com/user/sdtmflow/pkg/terminology"
)

// loadCodelists returns the built-in codelists extended with the terms in path.
func loadCodelists(path string) (*terminology.Registry, error) {
	reg, err := terminology.Builtin()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return reg, nil
	}
	if err := reg.LoadFile(path); err != nil {
		return nil, fmt.Errorf("failed to load codelists %s: %w", path, err)
	}
	return reg, nil
}

func loadReference(path string) (*reference.Set, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open demographics: %w", err)
	}
	defer f.Close()
	return reference.LoadCSV(f)
}

func datasetPath(dir, domain, format string) string {
	ext := format
	if format == config.FormatJSON {
		ext = "ndjson"
	}
	return filepath.Join(dir, strings.ToLower(domain)+"."+ext)
}

// newSource picks the reader for a form export by its extension.
func newSource(d config.DomainConfig) sdtmflow.Source {
	if excel.IsWorkbook(d.Input) {
		return excel.NewXLSXSource(d.Input, d.Sheet, d.HeaderRow)
	}
	return csvsource.NewCSVSource(d.Input, d.DelimiterRune())
}

func newSink(format, path string) (sdtmflow.Sink, error) {
	switch format {
	case config.FormatCSV:
		return csvsink.NewCSVSink(path, ','), nil
	case config.FormatParquet:
		return parquetsink.NewParquetSink(path, 4), nil
	case config.FormatJSON:
		f := jsonfmt.NewJSONFormatter()
		f.SetMode(jsonfmt.ModeFull)
		return filesink.NewFileSink(path, f)
	default:
		return nil, fmt.Errorf("unknown output format: %s", format)
	}
}

// pipeline is an engine wired from a run configuration plus the resources it holds open.
type pipeline struct {
	engine  *engine.Engine
	jobs    []engine.DomainJob
	closers []func(context.Context) error
}

func buildPipeline(ctx context.Context, cfg *config.Config, logger sdtmflow.Logger) (*pipeline, error) {
	p := &pipeline{}
	ok := false
	defer func() {
		if !ok {
			p.Close(ctx)
		}
	}()

	if err := cfg.ResolveSecrets(ctx); err != nil {
		return nil, err
	}
	shutdown, err := observability.InitOTLP(ctx, cfg.OTLP, version)
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, shutdown)

	reg, err := loadCodelists(cfg.Codelists)
	if err != nil {
		return nil, err
	}

	reportDir := cfg.Output.Dir
	if reportDir == config.StdoutDir {
		reportDir = ""
	}
	e := engine.NewEngine(engine.Config{
		StudyID:   cfg.StudyID,
		Threshold: cfg.Threshold,
		Workers:   cfg.Workers,
		OutputDir: reportDir,
		MaskPII:   cfg.MaskPII,
	}, reg)
	e.SetLogger(logger)
	e.SetMetricsPush(cfg.Metrics.PushURL, cfg.Metrics.Job)

	ref, err := loadReference(cfg.Reference)
	if err != nil {
		return nil, err
	}
	if ref != nil {
		e.SetReference(ref)
	}

	if cfg.History.Enabled() {
		history, err := sqlstorage.Open(ctx, cfg.History)
		if err != nil {
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		p.closers = append(p.closers, func(context.Context) error { return history.Close() })
		e.SetHistory(history)
	}

	publisher, err := filestorage.NewPublisherFromConfig(ctx, cfg.Publish)
	if err != nil {
		return nil, fmt.Errorf("failed to configure publishing: %w", err)
	}
	if publisher != nil {
		e.SetPublisher(publisher)
	}

	sinkFor, err := p.sinkFactory(ctx, cfg)
	if err != nil {
		return nil, err
	}
	for _, d := range cfg.Domains {
		spec, err := mapping.Resolve(d.Spec)
		if err != nil {
			return nil, err
		}
		if issues := mapping.Lint(spec, reg); mapping.HasErrors(issues) {
			return nil, fmt.Errorf("mapping spec %s: %v", d.Spec, issues)
		}
		sink, err := sinkFor(spec.Domain)
		if err != nil {
			return nil, err
		}
		p.jobs = append(p.jobs, engine.DomainJob{Spec: spec, Source: newSource(d), Sink: sink})
	}

	p.engine = e
	ok = true
	return p, nil
}

// sinkFactory returns the per-domain sink constructor for the configured output. Stdout and SQL
// outputs share one sink across domains.
func (p *pipeline) sinkFactory(ctx context.Context, cfg *config.Config) (func(domain string) (sdtmflow.Sink, error), error) {
	if cfg.Output.Dir == config.StdoutDir {
		sink := stdout.NewStdoutSink(jsonfmt.NewJSONFormatter())
		return func(string) (sdtmflow.Sink, error) { return sink, nil }, nil
	}
	if cfg.Output.Format == config.FormatSQL {
		db, driver, err := sqlstorage.OpenDB(ctx, cfg.Output.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to open output database: %w", err)
		}
		p.closers = append(p.closers, func(context.Context) error { return db.Close() })
		sink := sqlsink.NewSQLSink(db, driver, cfg.Output.TablePrefix)
		return func(string) (sdtmflow.Sink, error) { return sink, nil }, nil
	}
	return func(domain string) (sdtmflow.Sink, error) {
		return newSink(cfg.Output.Format, datasetPath(cfg.Output.Dir, domain, cfg.Output.Format))
	}, nil
}

func (p *pipeline) Run(ctx context.Context) (*engine.Result, error) {
	return p.engine.Run(ctx, p.jobs)
}

func (p *pipeline) Close(ctx context.Context) {
	for i := len(p.closers) - 1; i >= 0; i-- {
		_ = p.closers[i](ctx)
	}
}
