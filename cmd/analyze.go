package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tikun-labs/sefirot-cli/internal/model"
	"github.com/tikun-labs/sefirot-cli/internal/pipeline"
	"github.com/tikun-labs/sefirot-cli/internal/report"
)

var (
	analyzeScenario     string
	analyzeScenarioFile string
	analyzeCase         string
	analyzeDual         string
	analyzeOutput       string
	analyzeFormat       string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the ten-stage analysis on a single scenario",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		scenario, err := readScenario(analyzeScenario, analyzeScenarioFile)
		if err != nil {
			return err
		}

		format := report.Format(analyzeFormat)
		if format != report.FormatJSON && format != report.FormatText {
			return eris.Errorf("unsupported format %q (use json or txt)", analyzeFormat)
		}

		if analyzeDual != "" {
			cfg.Pipeline.DualMode = analyzeDual
		}

		env, err := initAnalysis(ctx, "analyze")
		if err != nil {
			return err
		}
		defer env.Close()

		orch, err := env.orchestrator(pipeline.WithProgress(printProgress))
		if err != nil {
			return err
		}

		result, err := orch.Process(ctx, scenario, analyzeCase)
		if err != nil {
			return eris.Wrap(err, "analyze")
		}

		formatAnalysisSummary(os.Stdout, result)

		var path string
		if analyzeOutput != "" {
			if err := report.Write(result, analyzeOutput, format); err != nil {
				return err
			}
			path = analyzeOutput
		} else {
			path, err = report.Export(result, cfg.Export.OutputDir, format)
			if err != nil {
				return err
			}
		}
		fmt.Printf("\nExported: %s\n", path)

		if env.Publisher != nil {
			if err := env.Publisher.Publish(ctx, result); err != nil {
				zap.L().Warn("notion publish failed", zap.Error(err))
			}
		}

		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeScenario, "scenario", "", "scenario text to analyze")
	analyzeCmd.Flags().StringVar(&analyzeScenarioFile, "scenario-file", "", "file containing the scenario text")
	analyzeCmd.Flags().StringVar(&analyzeCase, "case", "", "case name for exports and run history")
	analyzeCmd.Flags().StringVar(&analyzeDual, "dual", "", "dual-perspective mode: auto, always, or never")
	analyzeCmd.Flags().StringVar(&analyzeOutput, "output", "", "write the export to this exact path")
	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", "json", "export format: json or txt")
	rootCmd.AddCommand(analyzeCmd)
}

// readScenario resolves the scenario from the inline flag or a file.
func readScenario(inline, file string) (string, error) {
	switch {
	case inline != "" && file != "":
		return "", eris.New("use either --scenario or --scenario-file, not both")
	case inline != "":
		return inline, nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", eris.Wrap(err, "read scenario file")
		}
		s := strings.TrimSpace(string(data))
		if s == "" {
			return "", eris.Errorf("scenario file %s is empty", file)
		}
		return s, nil
	default:
		return "", eris.New("a scenario is required (--scenario or --scenario-file)")
	}
}

// printProgress writes one line per completed stage to stderr.
func printProgress(stage model.StageID, position int, result *model.StageResult) {
	status := "ok"
	if !result.OK() {
		status = "error"
	}
	fmt.Fprintf(os.Stderr, "[%2d/10] %-9s %s (%.1fs)\n", position, stage, status, result.DurationSeconds)
}

// formatAnalysisSummary writes the run's headline numbers to w.
func formatAnalysisSummary(out io.Writer, result *model.PipelineResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	m := result.Metrics

	caseName := result.Metadata.CaseName
	if caseName == "" {
		caseName = "(unnamed)"
	}
	_, _ = fmt.Fprintf(w, "Case:\t%s\n", caseName)
	_, _ = fmt.Fprintf(w, "Run ID:\t%s\n", result.Metadata.RunID)
	_, _ = fmt.Fprintf(w, "Stages:\t%d/%d succeeded\n", m.SuccessfulStages, m.TotalStages)
	_, _ = fmt.Fprintf(w, "Average score:\t%.1f\n", m.AverageScore)
	_, _ = fmt.Fprintf(w, "Quality:\t%s\n", m.PipelineQuality)

	if keter, ok := result.Stage(model.StageKeter); ok && keter.OK() {
		_, _ = fmt.Fprintf(w, "Keter alignment:\t%.1f%% (valid: %t)\n",
			keter.MetricOr("alignment_percentage", 0), keter.BoolMetric("manifestation_valid"))
	}
	if yesod, ok := result.Stage(model.StageYesod); ok && yesod.OK() {
		rec := yesod.MapField("go_no_go_recommendation")
		if decision, ok := rec["decision"].(string); ok && decision != "" {
			confidence, _ := rec["confidence"].(string)
			_, _ = fmt.Fprintf(w, "Decision:\t%s (%s confidence)\n", decision, confidence)
		}
	}
	_, _ = fmt.Fprintf(w, "Duration:\t%.1fs\n", m.TotalDurationSeconds)

	if len(result.Errors) > 0 {
		_, _ = fmt.Fprintf(w, "Errors:\t%d\n", len(result.Errors))
		for _, e := range result.Errors {
			_, _ = fmt.Fprintf(w, "\t%s\n", e)
		}
	}
	_ = w.Flush()
}
