package model

import "time"

// RunMetadata describes one pipeline invocation.
type RunMetadata struct {
	CaseName  string    `json:"case_name,omitempty"`
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	Scenario  string    `json:"scenario"`
}

// PipelineMetrics aggregates the outcome of all ten stages.
type PipelineMetrics struct {
	TotalStages          int                `json:"total_sefirot"`
	SuccessfulStages     int                `json:"successful_sefirot"`
	FailedStages         int                `json:"failed_sefirot"`
	SuccessRate          float64            `json:"success_rate"`
	TotalDurationSeconds float64            `json:"total_duration_seconds"`
	AvgDurationPerStage  float64            `json:"avg_duration_per_sefira"`
	KeyScores            map[string]float64 `json:"key_scores"`
	AverageScore         float64            `json:"average_score"`
	PipelineQuality      string             `json:"pipeline_quality"`
}

// PipelineResult is the terminal artifact of one pipeline run. StageResults
// always carries exactly ten entries in canonical stage order, some of
// which may have error status.
type PipelineResult struct {
	Metadata     RunMetadata     `json:"metadata"`
	StageResults []*StageResult  `json:"sefirot_results"`
	Metrics      PipelineMetrics `json:"pipeline_metrics"`
	Errors       []string        `json:"errors"`
}

// Stage returns the result for the given stage, or (nil, false) when the
// result set does not contain it.
func (p *PipelineResult) Stage(id StageID) (*StageResult, bool) {
	for _, r := range p.StageResults {
		if r.StageID == id {
			return r, true
		}
	}
	return nil, false
}
