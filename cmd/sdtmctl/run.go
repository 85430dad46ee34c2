package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/user/sdtmflow/internal/config"
	"github.com/user/sdtmflow/pkg/engine"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Transform and validate every domain of a run configuration",
	Long: `Reads each configured source form, maps it to its SDTM domain, validates the result and
writes the datasets plus report.json and report.md to the output directory.

Exits with status 2 when the run completes but is not submission-ready.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile == "" {
			return errors.New("--config is required")
		}
		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		if len(cfg.Domains) == 0 {
			return errors.New("config lists no domains")
		}
		return runConfig(cmd.Context(), cfg, cmd.OutOrStdout())
	},
}

func runConfig(ctx context.Context, cfg *config.Config, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	if cfg.Output.Dir == config.StdoutDir {
		out = os.Stderr
	}
	logger := newLoggerFor(cfg)
	p, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close(context.WithoutCancel(ctx))

	res, err := p.Run(ctx)
	if err != nil {
		return err
	}
	printResult(out, res)
	if !res.Run.Ready() {
		return notReadyError{score: res.Run.Score()}
	}
	return nil
}

func printResult(out io.Writer, res *engine.Result) {
	run := res.Run
	fmt.Fprintf(out, "Run %s (study %s)\n", run.ID, run.StudyID)
	fmt.Fprintf(out, "%-8s %8s %8s %9s %8s  %s\n", "DOMAIN", "RECORDS", "SCORE", "QUALITY", "CRITICAL", "READY")
	for _, d := range run.Domains {
		fmt.Fprintf(out, "%-8s %8d %8.1f %9.1f %8d  %s\n", d.Domain, d.Records, d.Score, d.QualityScore,
			d.Counts["critical"], yesNo(d.Ready))
	}
	failed := make([]string, 0, len(run.Errors))
	for d := range run.Errors {
		failed = append(failed, d)
	}
	sort.Strings(failed)
	for _, d := range failed {
		fmt.Fprintf(out, "%-8s FAILED: %s\n", d, run.Errors[d])
	}
	fmt.Fprintf(out, "Overall score %.1f, submission-ready: %s\n", run.Score(), yesNo(run.Ready()))
	for _, o := range res.Outputs {
		fmt.Fprintf(out, "  wrote %s\n", o)
	}
	for _, a := range res.Artifacts {
		fmt.Fprintf(out, "  published %s\n", a.URL)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
