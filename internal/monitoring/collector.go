// Package monitoring summarizes recent pipeline runs into health metrics and
// raises webhook alerts when they degrade.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/tikun-labs/sefirot-cli/internal/model"
	"github.com/tikun-labs/sefirot-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of recent pipeline health.
type MetricsSnapshot struct {
	// Run counts within the lookback window.
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsRunning  int     `json:"runs_running"`
	RunsQueued   int     `json:"runs_queued"`
	FailRate     float64 `json:"fail_rate"`

	// Aggregates over runs that finished with a result.
	AvgSuccessRate  float64 `json:"avg_success_rate"`
	AvgScore        float64 `json:"avg_score"`
	AvgDurationSecs float64 `json:"avg_duration_seconds"`

	// PipelineQuality label counts across finished runs.
	QualityDistribution map[string]int `json:"quality_distribution"`

	// Failed stage executions by stage name, from phase records.
	StageFailures map[string]int `json:"stage_failures"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the run store.
type Collector struct {
	store store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of pipeline health over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		QualityDistribution: make(map[string]int),
		StageFailures:       make(map[string]int),
		LookbackHours:       lookbackHours,
		CollectedAt:         time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.store.ListRuns(ctx, store.RunFilter{
		Since: cutoff,
		Limit: 10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	var sumSuccessRate float64
	var sumDuration float64
	var sumScore float64
	var resultRuns int
	var scoredRuns int

	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
		case model.RunStatusQueued:
			snap.RunsQueued++
		}
		if r.Result != nil {
			resultRuns++
			sumSuccessRate += r.Result.Metrics.SuccessRate
			sumDuration += r.Result.Metrics.TotalDurationSeconds
			if r.Result.Metrics.AverageScore > 0 {
				sumScore += r.Result.Metrics.AverageScore
				scoredRuns++
			}
			if q := r.Result.Metrics.PipelineQuality; q != "" {
				snap.QualityDistribution[q]++
			}
		}
	}

	finished := snap.RunsComplete + snap.RunsFailed
	if finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if resultRuns > 0 {
		snap.AvgSuccessRate = sumSuccessRate / float64(resultRuns)
		snap.AvgDurationSecs = sumDuration / float64(resultRuns)
	}
	if scoredRuns > 0 {
		snap.AvgScore = sumScore / float64(scoredRuns)
	}

	// Stage failure tallies come from phase records, so they also cover runs
	// that never produced a final result.
	for _, r := range runs {
		if !hasStageFailures(r) {
			continue
		}
		phases, err := c.store.ListPhases(ctx, r.ID)
		if err != nil {
			return nil, eris.Wrapf(err, "monitoring: list phases for run %s", r.ID)
		}
		for _, p := range phases {
			if p.Status == model.PhaseStatusFailed {
				snap.StageFailures[string(p.Stage)]++
			}
		}
	}

	return snap, nil
}

// hasStageFailures reports whether a run is worth a phase lookup.
func hasStageFailures(r model.Run) bool {
	if r.Status == model.RunStatusFailed {
		return true
	}
	return r.Result != nil && r.Result.Metrics.FailedStages > 0
}
