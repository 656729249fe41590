package pipeline

import (
	"math"

	"github.com/tikun-labs/sefirot-cli/internal/model"
)

// keyScoreSources maps each pipeline-level score name to the stage metric
// it is read from. Only successful stages contribute.
var keyScoreSources = []struct {
	Name   string
	Stage  model.StageID
	Metric string
}{
	{"keter_alignment", model.StageKeter, "alignment_percentage"},
	{"binah_depth", model.StageBinah, "contextual_depth_score"},
	{"tiferet_harmony", model.StageTiferet, "harmony_score"},
	{"yesod_integration", model.StageYesod, "readiness_score"},
}

// computeMetrics aggregates stage outcomes into pipeline-level metrics.
// duration is the whole-run wall clock in seconds.
func computeMetrics(results []*model.StageResult, duration float64) model.PipelineMetrics {
	m := model.PipelineMetrics{
		TotalStages: len(results),
		KeyScores:   make(map[string]float64),
	}

	byStage := make(map[model.StageID]*model.StageResult, len(results))
	for _, r := range results {
		byStage[r.StageID] = r
		if r.OK() {
			m.SuccessfulStages++
		} else {
			m.FailedStages++
		}
	}

	if m.TotalStages > 0 {
		m.SuccessRate = round2(float64(m.SuccessfulStages) / float64(m.TotalStages) * 100)
		m.AvgDurationPerStage = round2(duration / float64(m.TotalStages))
	}
	m.TotalDurationSeconds = round2(duration)

	for _, src := range keyScoreSources {
		if r, ok := byStage[src.Stage]; ok && r.OK() {
			m.KeyScores[src.Name] = r.MetricOr(src.Metric, 0)
		}
	}
	if len(m.KeyScores) > 0 {
		var sum float64
		for _, v := range m.KeyScores {
			sum += v
		}
		m.AverageScore = round2(sum / float64(len(m.KeyScores)))
	}

	m.PipelineQuality = assessQuality(m.SuccessfulStages, m.AverageScore)
	return m
}

// assessQuality labels the run: incomplete unless all ten stages
// succeeded, otherwise banded by the average key score.
func assessQuality(successful int, avg float64) string {
	switch {
	case successful < len(model.StageOrder):
		return "incomplete"
	case avg >= 85:
		return "exceptional"
	case avg >= 70:
		return "high"
	case avg >= 55:
		return "moderate"
	default:
		return "low"
	}
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
