package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/user/sdtmflow/pkg/mapping"
)

var specCodelists string

func init() {
	rootCmd.AddCommand(specCmd)
	specCmd.AddCommand(specLintCmd)
	specCmd.AddCommand(specListCmd)
	specCmd.AddCommand(specShowCmd)
	specLintCmd.Flags().StringVar(&specCodelists, "codelists", "", "additional codelists (YAML or CSV) the spec may reference")
}

var specCmd = &cobra.Command{
	Use:   "spec",
	Short: "Inspect and lint domain mapping specifications",
}

var specLintCmd = &cobra.Command{
	Use:   "lint [file|domain]",
	Short: "Check a mapping spec against the schema and the loaded codelists",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		spec, err := mapping.Resolve(args[0])
		if err != nil {
			var schemaErr *mapping.SchemaError
			if errors.As(err, &schemaErr) {
				fmt.Fprintln(out, "❌ Spec does not match the schema")
			}
			return err
		}
		reg, err := loadCodelists(specCodelists)
		if err != nil {
			return err
		}

		issues := mapping.Lint(spec, reg)
		for _, issue := range issues {
			fmt.Fprintf(out, "  %s\n", issue)
		}
		if mapping.HasErrors(issues) {
			return fmt.Errorf("spec %s has errors", args[0])
		}
		fmt.Fprintf(out, "✅ %s spec is valid: %d variables, %d measurements, %d rules\n",
			spec.Domain, len(spec.Variables), len(spec.Measurements), len(spec.Rules))
		return nil
	},
}

var specListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the built-in domain specs",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, d := range mapping.BuiltinDomains() {
			spec, err := mapping.Builtin(d)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-4s %-12s %s\n", spec.Domain, spec.Class, spec.Name)
		}
		return nil
	},
}

var specShowCmd = &cobra.Command{
	Use:   "show [domain]",
	Short: "Print a built-in spec as YAML, as a starting point for a study-specific one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := mapping.Resolve(args[0])
		if err != nil {
			return err
		}
		data, err := mapping.Marshal(spec)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}
