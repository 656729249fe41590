package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/tikun-labs/sefirot-cli/internal/model"
	"github.com/tikun-labs/sefirot-cli/internal/report"
	"github.com/tikun-labs/sefirot-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect analysis run history",
	Long:  "Commands for listing, viewing, exporting, and summarizing persisted analysis runs.",
}

// runsStore validates store config, opens the store, and applies migrations.
func runsStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("runs"); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List analysis runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := runsStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		caseName, _ := cmd.Flags().GetString("case")
		limit, _ := cmd.Flags().GetInt("limit")
		since, _ := cmd.Flags().GetDuration("since")

		filter := store.RunFilter{
			Status:   model.RunStatus(status),
			CaseName: caseName,
			Limit:    limit,
		}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the full stored result of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := runsStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := runsStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		filter := store.RunFilter{}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}
		filter.Limit = 10000 // high limit for stats

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		stats := computeRunStats(runs)
		formatRunStats(os.Stdout, stats)
		return nil
	},
}

// -- runs export --

var runsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export run history to a file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := runsStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")
		limit, _ := cmd.Flags().GetInt("limit")

		if out == "" {
			out = "runs." + format
		}

		runs, err := st.ListRuns(ctx, store.RunFilter{Limit: limit})
		if err != nil {
			return eris.Wrap(err, "runs export")
		}

		switch format {
		case "xlsx":
			err = report.ExportRunsXLSX(runs, out)
		case "csv":
			err = report.ExportRunsCSV(runs, out)
		case "json":
			err = exportRunsJSON(runs, out)
		default:
			return eris.Errorf("unsupported format %q (use xlsx, csv or json)", format)
		}
		if err != nil {
			return err
		}

		fmt.Printf("Exported %d runs: %s\n", len(runs), out)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (queued, running, complete, failed)")
	runsListCmd.Flags().String("case", "", "filter by case name")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsListCmd.Flags().Duration("since", 0, "only runs newer than this (e.g. 24h, 168h)")

	runsStatsCmd.Flags().Duration("since", 168*time.Hour, "time window for stats (e.g. 24h, 72h, 168h)")

	runsExportCmd.Flags().String("format", "xlsx", "export format (xlsx, csv or json)")
	runsExportCmd.Flags().String("out", "", "output path (default runs.<format>)")
	runsExportCmd.Flags().Int("limit", 10000, "max number of runs to export")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	runsCmd.AddCommand(runsExportCmd)
	rootCmd.AddCommand(runsCmd)
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Total      int
	Complete   int
	Failed     int
	InFlight   int
	AvgScore   float64
	AvgDurSecs float64
	Quality    map[string]int
}

// computeRunStats computes aggregate statistics from a list of runs.
func computeRunStats(runs []model.Run) runStats {
	s := runStats{Quality: make(map[string]int)}
	s.Total = len(runs)

	var scoreSum, durSum float64
	var withResult int

	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			s.Complete++
		case model.RunStatusFailed:
			s.Failed++
		default:
			s.InFlight++
		}

		if r.Result == nil {
			continue
		}
		scoreSum += r.Result.Metrics.AverageScore
		durSum += r.Result.Metrics.TotalDurationSeconds
		withResult++
		if q := r.Result.Metrics.PipelineQuality; q != "" {
			s.Quality[q]++
		}
	}

	if withResult > 0 {
		s.AvgScore = scoreSum / float64(withResult)
		s.AvgDurSecs = durSum / float64(withResult)
	}
	return s
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCASE\tSTATUS\tQUALITY\tSCORE\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t----\t------\t-------\t-----\t-------\t--------")

	for _, r := range runs {
		name := r.CaseName
		if name == "" {
			name = "(unnamed)"
		}
		if len(name) > 30 {
			name = name[:27] + "..."
		}

		quality := ""
		score := ""
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String()
		if r.Result != nil {
			quality = r.Result.Metrics.PipelineQuality
			score = fmt.Sprintf("%.1f", r.Result.Metrics.AverageScore)
			dur = fmt.Sprintf("%.1fs", r.Result.Metrics.TotalDurationSeconds)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			name,
			r.Status,
			quality,
			score,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.Complete)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	if s.InFlight > 0 {
		_, _ = fmt.Fprintf(w, "In flight:\t%d\n", s.InFlight)
	}
	if s.AvgScore > 0 {
		_, _ = fmt.Fprintf(w, "Avg score:\t%.1f\n", s.AvgScore)
	}
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
	}
	if len(s.Quality) > 0 {
		_, _ = fmt.Fprintln(w, "Quality:")
		for _, q := range sortedCountKeys(s.Quality) {
			_, _ = fmt.Fprintf(w, "  %s:\t%d\n", q, s.Quality[q])
		}
	}
	_ = w.Flush()
}

// exportRunsJSON writes the run history as indented JSON.
func exportRunsJSON(runs []model.Run, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "runs export: create file")
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(runs); err != nil {
		f.Close() //nolint:errcheck
		return eris.Wrap(err, "runs export: encode")
	}
	return eris.Wrap(f.Close(), "runs export: close file")
}

// truncateID returns the first 8 characters of a run ID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
