package main

import (
	"github.com/spf13/cobra"
	"github.com/user/sdtmflow/internal/config"
)

var transformOpts struct {
	spec      string
	input     string
	out       string
	format    string
	study     string
	reference string
	codelists string
	delimiter string
	sheet     string
	headerRow int
	maskPII   bool
	threshold float64
}

func init() {
	f := transformCmd.Flags()
	f.StringVar(&transformOpts.spec, "spec", "", "built-in domain (DM, VS, AE) or mapping spec file")
	f.StringVar(&transformOpts.input, "input", "", "wide source form (delimited file or .xlsx workbook)")
	f.StringVar(&transformOpts.out, "out", "out", `output directory, or "-" to stream NDJSON records to stdout`)
	f.StringVar(&transformOpts.format, "format", config.FormatCSV, "dataset format: csv, parquet, json")
	f.StringVar(&transformOpts.study, "study", "STUDY", "study identifier")
	f.StringVar(&transformOpts.reference, "reference", "", "demographics CSV supplying RFSTDTC per subject")
	f.StringVar(&transformOpts.codelists, "codelists", "", "additional codelists (YAML or CSV)")
	f.StringVar(&transformOpts.delimiter, "delimiter", ",", "input delimiter")
	f.StringVar(&transformOpts.sheet, "sheet", "", "workbook sheet (default: the first sheet)")
	f.IntVar(&transformOpts.headerRow, "header-row", 1, "1-based workbook row holding the column names")
	f.BoolVar(&transformOpts.maskPII, "mask-pii", false, "mask personal identifiers found in free-text variables")
	f.Float64Var(&transformOpts.threshold, "threshold", 95, "readiness threshold")
	transformCmd.MarkFlagRequired("spec")
	transformCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(transformCmd)
}

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Map a single source form to its domain without a run configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Default()
		cfg.StudyID = transformOpts.study
		cfg.Threshold = transformOpts.threshold
		cfg.Reference = transformOpts.reference
		cfg.Codelists = transformOpts.codelists
		cfg.MaskPII = transformOpts.maskPII
		cfg.Output = config.OutputConfig{Dir: transformOpts.out, Format: transformOpts.format}
		cfg.Domains = []config.DomainConfig{{
			Spec:      transformOpts.spec,
			Input:     transformOpts.input,
			Delimiter: transformOpts.delimiter,
			Sheet:     transformOpts.sheet,
			HeaderRow: transformOpts.headerRow,
		}}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runConfig(cmd.Context(), cfg, cmd.OutOrStdout())
	},
}
