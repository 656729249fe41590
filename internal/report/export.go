// Package report renders pipeline results for humans and downstream tools:
// timestamped JSON/text exports, a run-history workbook, and an optional
// Notion publish.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"

	"github.com/tikun-labs/sefirot-cli/internal/model"
)

// Format identifies an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "txt"
)

// fallbackName is used when a case name is empty or sanitizes to nothing.
const fallbackName = "sefirot_analysis"

// bookkeepingKeys are structural entries a model response sometimes echoes
// back; the text report shows analysis content only.
var bookkeepingKeys = map[string]bool{
	"timestamp":        true,
	"model_used":       true,
	"attempts":         true,
	"sefira":           true,
	"sefira_number":    true,
	"hebrew_name":      true,
	"status":           true,
	"duration_seconds": true,
}

// Render encodes the result in the given format.
func Render(result *model.PipelineResult, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return nil, eris.Wrap(err, "report: marshal result")
		}
		return data, nil
	case FormatText:
		return []byte(FormatReport(result)), nil
	default:
		return nil, eris.Errorf("report: unsupported format %q", format)
	}
}

// Export writes the result to outputDir as {case}_{timestamp}.{ext} and
// returns the path of the created file.
func Export(result *model.PipelineResult, outputDir string, format Format) (string, error) {
	data, err := Render(result, format)
	if err != nil {
		return "", err
	}

	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("%s_%s.%s", safeName(result.Metadata.CaseName), timestamp, format)
	path := filepath.Join(outputDir, filename)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", eris.Wrap(err, "report: write export file")
	}
	return path, nil
}

// Write writes the result to an explicit path in the given format.
func Write(result *model.PipelineResult, path string, format Format) error {
	data, err := Render(result, format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrap(err, "report: write export file")
	}
	return nil
}

// safeName reduces a case name to a filesystem-safe slug: letters, digits,
// dashes and underscores survive, spaces become underscores.
func safeName(caseName string) string {
	var b strings.Builder
	for _, r := range caseName {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	name := strings.TrimRight(b.String(), " ")
	name = strings.ReplaceAll(name, " ", "_")
	if name == "" {
		return fallbackName
	}
	return name
}

// FormatReport generates the human-readable text report for one run.
func FormatReport(result *model.PipelineResult) string {
	var b strings.Builder
	rule := strings.Repeat("=", 80)

	b.WriteString(rule + "\n")
	b.WriteString("SEFIROT ANALYSIS REPORT\n")
	b.WriteString(rule + "\n")

	caseName := result.Metadata.CaseName
	if caseName == "" {
		caseName = "N/A"
	}
	fmt.Fprintf(&b, "\nCase: %s\n", caseName)
	fmt.Fprintf(&b, "Timestamp: %s\n", result.Metadata.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "Run ID: %s\n", result.Metadata.RunID)

	b.WriteString("\n" + rule + "\n")
	b.WriteString("SCENARIO\n")
	b.WriteString(rule + "\n")
	b.WriteString(result.Metadata.Scenario + "\n")

	b.WriteString("\n\n" + rule + "\n")
	b.WriteString("STAGE RESULTS\n")
	b.WriteString(rule + "\n")

	for _, r := range result.StageResults {
		fmt.Fprintf(&b, "\n%s (%d/10):\n", strings.ToUpper(string(r.StageID)), r.Position)
		b.WriteString(strings.Repeat("-", 40) + "\n")

		if !r.OK() {
			fmt.Fprintf(&b, "ERROR: %s\n", r.Error)
			continue
		}
		writeScalars(&b, r.RawFields)
		writeScalars(&b, r.DerivedMetrics)
	}

	b.WriteString("\n\n" + rule + "\n")
	b.WriteString("PIPELINE METRICS\n")
	b.WriteString(rule + "\n")

	m := result.Metrics
	fmt.Fprintf(&b, "Successful stages: %d/%d\n", m.SuccessfulStages, m.TotalStages)
	fmt.Fprintf(&b, "Success rate: %.1f%%\n", m.SuccessRate)
	fmt.Fprintf(&b, "Total duration: %.2fs\n", m.TotalDurationSeconds)
	fmt.Fprintf(&b, "Average per stage: %.2fs\n", m.AvgDurationPerStage)
	fmt.Fprintf(&b, "Average score: %.1f\n", m.AverageScore)
	fmt.Fprintf(&b, "Pipeline quality: %s\n", m.PipelineQuality)

	b.WriteString("\n" + rule + "\n")

	return b.String()
}

// writeScalars prints the scalar entries of one field map in key order.
// Lists and nested records are too wide for the text report and stay in
// the JSON export.
func writeScalars(b *strings.Builder, fields map[string]any) {
	if len(fields) == 0 {
		return
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		if bookkeepingKeys[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch fields[k].(type) {
		case string, bool, int, int64, float32, float64:
			fmt.Fprintf(b, "  %s: %v\n", k, fields[k])
		}
	}
}
