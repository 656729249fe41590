package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tikun-labs/sefirot-cli/internal/model"
)

func TestReadScenario_Inline(t *testing.T) {
	s, err := readScenario("Deploy water meters city-wide", "")
	require.NoError(t, err)
	assert.Equal(t, "Deploy water meters city-wide", s)
}

func TestReadScenario_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.txt")
	require.NoError(t, os.WriteFile(path, []byte("\n  Deploy water meters city-wide  \n"), 0o644))

	s, err := readScenario("", path)
	require.NoError(t, err)
	assert.Equal(t, "Deploy water meters city-wide", s)
}

func TestReadScenario_Both(t *testing.T) {
	_, err := readScenario("inline", "file.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not both")
}

func TestReadScenario_Neither(t *testing.T) {
	_, err := readScenario("", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a scenario is required")
}

func TestReadScenario_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(path, []byte("   \n"), 0o644))

	_, err := readScenario("", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is empty")
}

func TestReadScenario_MissingFile(t *testing.T) {
	_, err := readScenario("", filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read scenario file")
}

// analysisResult builds a fully successful run with headline metrics set.
func analysisResult() *model.PipelineResult {
	result := batchResult(nil)
	result.Metadata = model.RunMetadata{
		CaseName:  "Water Meters",
		RunID:     "run-123",
		Timestamp: time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC),
		Scenario:  "Deploy water meters city-wide",
	}

	keter, _ := result.Stage(model.StageKeter)
	keter.DerivedMetrics = map[string]any{
		"alignment_percentage": 85.5,
		"manifestation_valid":  true,
	}
	yesod, _ := result.Stage(model.StageYesod)
	yesod.RawFields = map[string]any{
		"go_no_go_recommendation": map[string]any{"decision": "GO", "confidence": "high"},
	}

	result.Metrics.AverageScore = 86.2
	result.Metrics.PipelineQuality = "exceptional"
	result.Metrics.TotalDurationSeconds = 42.5
	return result
}

func TestFormatAnalysisSummary(t *testing.T) {
	var buf bytes.Buffer
	formatAnalysisSummary(&buf, analysisResult())

	output := buf.String()
	assert.Contains(t, output, "Case:")
	assert.Contains(t, output, "Water Meters")
	assert.Contains(t, output, "run-123")
	assert.Contains(t, output, "10/10 succeeded")
	assert.Contains(t, output, "86.2")
	assert.Contains(t, output, "exceptional")
	assert.Contains(t, output, "Keter alignment:")
	assert.Contains(t, output, "85.5% (valid: true)")
	assert.Contains(t, output, "Decision:")
	assert.Contains(t, output, "GO (high confidence)")
	assert.Contains(t, output, "42.5s")
	assert.NotContains(t, output, "Errors:")
}

func TestFormatAnalysisSummary_Degraded(t *testing.T) {
	result := batchResult(map[model.StageID]string{
		model.StageKeter: "provider timeout",
		model.StageYesod: "no decision",
	})
	result.Metadata.RunID = "run-456"

	var buf bytes.Buffer
	formatAnalysisSummary(&buf, result)

	output := buf.String()
	assert.Contains(t, output, "(unnamed)")
	assert.Contains(t, output, "8/10 succeeded")
	assert.Contains(t, output, "Errors:")
	assert.Contains(t, output, "provider timeout")
	// Failed keter and yesod contribute no headline lines.
	assert.NotContains(t, output, "Keter alignment:")
	assert.NotContains(t, output, "Decision:")
}
