package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/user/sdtmflow"
	"github.com/user/sdtmflow/internal/config"
	"github.com/user/sdtmflow/pkg/engine"
)

// exitNotReady is the exit code of a run that completed but is not submission-ready.
const exitNotReady = 2

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "sdtmctl",
	Short:         "sdtmctl transforms EDC extracts into SDTM datasets and scores their compliance",
	Long:          `A terminal tool for mapping raw clinical forms to SDTM domains, validating the result, and inspecting run history.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// notReadyError marks a finished run whose datasets are not submission-ready.
type notReadyError struct {
	score float64
}

func (e notReadyError) Error() string {
	return fmt.Sprintf("not submission-ready (score %.1f)", e.score)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if _, ok := err.(notReadyError); ok {
			os.Exit(exitNotReady)
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "run configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("pretty", false, "human-readable console logs")
	rootCmd.PersistentFlags().String("db-type", "", "history database type: sqlite, postgres, mysql")
	rootCmd.PersistentFlags().String("db-conn", "", "history database connection string")
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("pretty", rootCmd.PersistentFlags().Lookup("pretty"))
	viper.BindPFlag("db_type", rootCmd.PersistentFlags().Lookup("db-type"))
	viper.BindPFlag("db_conn", rootCmd.PersistentFlags().Lookup("db-conn"))
}

func initConfig() {
	viper.SetEnvPrefix("SDTM")
	viper.AutomaticEnv()
}

func newLogger() sdtmflow.Logger {
	return engine.NewLogger(os.Stderr, viper.GetString("log_level"), viper.GetBool("pretty"))
}

// newLoggerFor uses the run configuration's log settings unless a flag or SDTM_* variable
// overrides them.
func newLoggerFor(cfg *config.Config) sdtmflow.Logger {
	level, pretty := cfg.Log.Level, cfg.Log.Pretty
	if viper.IsSet("log_level") {
		level = viper.GetString("log_level")
	}
	if viper.IsSet("pretty") {
		pretty = viper.GetBool("pretty")
	}
	return engine.NewLogger(os.Stderr, level, pretty)
}

// historyConfig resolves the history store for commands that run without a run configuration.
func historyConfig() config.DBConfig {
	cfg := config.LoadDBConfig()
	if t := viper.GetString("db_type"); t != "" {
		cfg.Type = t
		cfg.Conn = ""
	}
	if c := viper.GetString("db_conn"); c != "" {
		cfg.Conn = c
	}
	if cfg.Conn == "" && cfg.Type == "sqlite" {
		cfg.Conn = config.DefaultHistoryPath
	}
	return cfg
}
