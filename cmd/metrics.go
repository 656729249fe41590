package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tikun-labs/sefirot-cli/internal/monitoring"
)

var metricsJSON bool

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show pipeline health metrics over recent runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("metrics"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		snapshot, err := monitoring.NewCollector(st).Collect(ctx, cfg.Monitoring.LookbackHours)
		if err != nil {
			return err
		}

		if metricsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snapshot)
		}

		formatMetrics(os.Stdout, snapshot)
		return nil
	},
}

func init() {
	metricsCmd.Flags().BoolVar(&metricsJSON, "json", false, "print the snapshot as JSON")
	rootCmd.AddCommand(metricsCmd)
}

// formatMetrics writes a health snapshot to out.
func formatMetrics(out io.Writer, s *monitoring.MetricsSnapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\tlast %dh\n", s.LookbackHours)
	_, _ = fmt.Fprintf(w, "Runs:\t%d (%d complete, %d failed, %d running, %d queued)\n",
		s.RunsTotal, s.RunsComplete, s.RunsFailed, s.RunsRunning, s.RunsQueued)
	_, _ = fmt.Fprintf(w, "Failure rate:\t%.1f%%\n", s.FailRate*100)
	_, _ = fmt.Fprintf(w, "Avg stage success:\t%.1f%%\n", s.AvgSuccessRate)
	_, _ = fmt.Fprintf(w, "Avg score:\t%.1f\n", s.AvgScore)
	_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurationSecs)

	if len(s.QualityDistribution) > 0 {
		_, _ = fmt.Fprintln(w, "Quality:")
		for _, k := range sortedCountKeys(s.QualityDistribution) {
			_, _ = fmt.Fprintf(w, "  %s:\t%d\n", k, s.QualityDistribution[k])
		}
	}
	if len(s.StageFailures) > 0 {
		_, _ = fmt.Fprintln(w, "Stage failures:")
		for _, k := range sortedCountKeys(s.StageFailures) {
			_, _ = fmt.Fprintf(w, "  %s:\t%d\n", k, s.StageFailures[k])
		}
	}
	_ = w.Flush()
}

func sortedCountKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
