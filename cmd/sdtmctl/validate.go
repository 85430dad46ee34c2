package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/user/sdtmflow/pkg/mapping"
	"github.com/user/sdtmflow/pkg/reference"
	"github.com/user/sdtmflow/pkg/report"
	csvsource "github.com/user/sdtmflow/pkg/source/csv"
	"github.com/user/sdtmflow/pkg/validate"
)

var validateOpts struct {
	spec      string
	dataset   string
	reference string
	codelists string
	threshold float64
	output    string
}

func init() {
	f := validateCmd.Flags()
	f.StringVar(&validateOpts.spec, "spec", "", "built-in domain (DM, VS, AE) or mapping spec file")
	f.StringVar(&validateOpts.dataset, "dataset", "", "long-format dataset CSV")
	f.StringVar(&validateOpts.reference, "reference", "", "demographics CSV for cross-domain checks")
	f.StringVar(&validateOpts.codelists, "codelists", "", "additional codelists (YAML or CSV)")
	f.Float64Var(&validateOpts.threshold, "threshold", validate.DefaultThreshold, "readiness threshold")
	f.StringVarP(&validateOpts.output, "output", "o", "markdown", "report format: markdown, json")
	validateCmd.MarkFlagRequired("spec")
	validateCmd.MarkFlagRequired("dataset")
	rootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate an existing long-format dataset and print its compliance report",
	Long: `Runs the structural, terminology, business, cross-domain and quality layers against a
dataset already in SDTM shape. Exits with status 2 when it is not submission-ready.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := validateDataset(cmd.Context(), validateOpts.spec, validateOpts.dataset)
		if err != nil {
			return err
		}
		if err := printReport(cmd.OutOrStdout(), rep, validateOpts.output); err != nil {
			return err
		}
		if !rep.Ready {
			return notReadyError{score: rep.Score}
		}
		return nil
	},
}

func validateDataset(ctx context.Context, specRef, path string) (*validate.Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	spec, err := mapping.Resolve(specRef)
	if err != nil {
		return nil, err
	}
	reg, err := loadCodelists(validateOpts.codelists)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()
	ds, err := csvsource.ReadDataset(f, filepath.Base(path), spec.Domain)
	if err != nil {
		return nil, err
	}

	var future *reference.Future
	if validateOpts.reference != "" {
		ref, err := loadReference(validateOpts.reference)
		if err != nil {
			return nil, err
		}
		future = reference.Resolved(ref)
	} else if spec.Domain == "DM" {
		future = reference.Resolved(reference.FromDataset(ds))
	}

	v, err := validate.New(spec, validate.Options{
		Threshold: validateOpts.threshold,
		Codelists: reg,
		Reference: future,
		Logger:    newLogger(),
	})
	if err != nil {
		return nil, err
	}
	rep, err := v.Validate(ctx, ds)
	if err != nil {
		return nil, err
	}
	return rep, nil
}

func printReport(out io.Writer, rep *validate.Report, format string) error {
	switch format {
	case "json":
		return report.WriteJSON(out, rep)
	case "markdown", "md", "":
		_, err := io.WriteString(out, report.Markdown(rep))
		return err
	default:
		return fmt.Errorf("unknown report format: %s", format)
	}
}
