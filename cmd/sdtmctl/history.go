package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/user/sdtmflow/internal/storage"
	sqlstorage "github.com/user/sdtmflow/internal/storage/sql"
)

var historyOpts struct {
	study  string
	status string
	limit  int
	page   int
	path   string
	level  string
	logs   int
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyLogsCmd)
	historyCmd.AddCommand(historyDeleteCmd)

	historyListCmd.Flags().StringVar(&historyOpts.study, "study", "", "only runs of this study")
	historyListCmd.Flags().StringVar(&historyOpts.status, "status", "", "only runs with this status: ready, not_ready, failed")
	historyListCmd.Flags().IntVar(&historyOpts.limit, "limit", 20, "maximum number of runs")
	historyListCmd.Flags().IntVar(&historyOpts.page, "page", 1, "page number")

	historyShowCmd.Flags().StringVar(&historyOpts.path, "path", "", `query the stored report, e.g. "domains.#.score" or "domains.#(domain==\"VS\").findings.#"`)

	historyLogsCmd.Flags().StringVar(&historyOpts.level, "level", "", "only entries of this level: INFO, WARN, ERROR")
	historyLogsCmd.Flags().IntVar(&historyOpts.logs, "limit", 200, "maximum number of entries")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded runs",
}

func openHistory(ctx context.Context) (storage.Storage, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return sqlstorage.Open(ctx, historyConfig())
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		runs, total, err := store.ListRuns(cmd.Context(), storage.RunFilter{
			CommonFilter: storage.CommonFilter{Page: historyOpts.page, Limit: historyOpts.limit},
			StudyID:      historyOpts.study,
			Status:       historyOpts.status,
		})
		if err != nil {
			return err
		}
		printRuns(cmd.OutOrStdout(), runs, total)
		return nil
	},
}

func printRuns(out io.Writer, runs []storage.Run, total int) {
	fmt.Fprintf(out, "%-36s %-12s %-20s %-9s %6s %4s %4s %4s  %s\n",
		"ID", "STUDY", "STARTED", "STATUS", "SCORE", "CRIT", "ERR", "WARN", "DOMAINS")
	for _, r := range runs {
		fmt.Fprintf(out, "%-36s %-12s %-20s %-9s %6.1f %4d %4d %4d  %s\n",
			r.ID, r.StudyID, r.Started.Format("2006-01-02 15:04:05"), r.Status, r.Score,
			r.Critical, r.Errors, r.Warnings, strings.Join(r.Domains, ","))
	}
	fmt.Fprintf(out, "%d of %d runs\n", len(runs), total)
}

var historyShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Print the stored JSON report of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		run, err := store.GetRun(cmd.Context(), args[0])
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("run %s not found", args[0])
		}
		if err != nil {
			return err
		}
		out, err := queryReport(run.Report, historyOpts.path)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

// queryReport returns the report, or the part of it selected by a gjson path.
func queryReport(report, path string) (string, error) {
	if path == "" {
		return gjson.Get(report, "@pretty").String(), nil
	}
	if !gjson.Valid(report) {
		return "", errors.New("stored report is not valid JSON")
	}
	res := gjson.Get(report, path)
	if !res.Exists() {
		return "", fmt.Errorf("path %q matched nothing", path)
	}
	if res.IsObject() || res.IsArray() {
		return gjson.Get(res.Raw, "@pretty").String(), nil
	}
	return res.String(), nil
}

var historyLogsCmd = &cobra.Command{
	Use:   "logs [run-id]",
	Short: "Print the log entries recorded for a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		logs, _, err := store.ListLogs(cmd.Context(), storage.LogFilter{
			CommonFilter: storage.CommonFilter{Limit: historyOpts.logs},
			RunID:        args[0],
			Level:        strings.ToUpper(historyOpts.level),
		})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, l := range logs {
			color := "\033[0m"
			switch l.Level {
			case "ERROR":
				color = "\033[31m"
			case "WARN":
				color = "\033[33m"
			case "INFO":
				color = "\033[32m"
			}
			fmt.Fprintf(out, "[%s] %s%-5s\033[0m %s", l.Timestamp.Format("15:04:05"), color, l.Level, l.Message)
			if l.Domain != "" {
				fmt.Fprintf(out, " (domain: %s)", l.Domain)
			}
			if l.Data != "" {
				fmt.Fprintf(out, " %s", l.Data)
			}
			fmt.Fprintln(out)
		}
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete [run-id]",
	Short: "Remove a run and its log entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.DeleteRun(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Run %s deleted\n", args[0])
		return nil
	},
}
