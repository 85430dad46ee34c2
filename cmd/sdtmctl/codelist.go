package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/user/sdtmflow/pkg/secrets"
	"github.com/user/sdtmflow/pkg/terminology"
)

// secretEnvPrefix is tried before the bare name when a flag holds a "secret:" reference.
const secretEnvPrefix = "SDTM_SECRET_"

var codelistOpts struct {
	url   string
	token string
	out   string
	file  string
}

func init() {
	rootCmd.AddCommand(codelistCmd)
	codelistCmd.AddCommand(codelistPullCmd)
	codelistCmd.AddCommand(codelistListCmd)

	codelistPullCmd.Flags().StringVar(&codelistOpts.url, "url", "", "terminology service base URL (SDTM_TERMINOLOGY_URL)")
	codelistPullCmd.Flags().StringVar(&codelistOpts.token, "token", "", "bearer token or secret:<env var> (SDTM_TERMINOLOGY_TOKEN)")
	codelistPullCmd.Flags().StringVar(&codelistOpts.out, "out", "codelists.yaml", "local codelist cache to write")
	viper.BindPFlag("terminology_url", codelistPullCmd.Flags().Lookup("url"))
	viper.BindPFlag("terminology_token", codelistPullCmd.Flags().Lookup("token"))

	codelistListCmd.Flags().StringVar(&codelistOpts.file, "file", "", "additional codelists (YAML or CSV) to include")
}

var codelistCmd = &cobra.Command{
	Use:   "codelist",
	Short: "Manage controlled-terminology codelists",
}

var codelistPullCmd = &cobra.Command{
	Use:   "pull [codelist-id...]",
	Short: "Download codelists from a terminology service into a local cache file",
	RunE: func(cmd *cobra.Command, args []string) error {
		url := viper.GetString("terminology_url")
		if url == "" {
			return errors.New("--url or SDTM_TERMINOLOGY_URL is required")
		}
		token := viper.GetString("terminology_token")
		err := secrets.Resolve(cmd.Context(), &secrets.EnvManager{Prefix: secretEnvPrefix},
			secrets.Field{Name: "terminology token", Value: &token})
		if err != nil {
			return err
		}
		client := terminology.NewClient(url, token)
		lists, err := client.Fetch(cmd.Context(), args...)
		if err != nil {
			return err
		}
		if err := terminology.Save(codelistOpts.out, lists); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Saved %d codelists to %s\n", len(lists), codelistOpts.out)
		return nil
	},
}

var codelistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the loaded codelists",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadCodelists(codelistOpts.file)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, id := range reg.IDs() {
			cl, _ := reg.Get(id)
			kind := "closed"
			if cl.Extensible {
				kind = "extensible"
			}
			fmt.Fprintf(out, "%-12s %-10s %4d terms  %s\n", cl.ID, kind, len(cl.Terms), cl.Name)
		}
		return nil
	},
}
