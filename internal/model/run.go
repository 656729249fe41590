package model

import "time"

// RunStatus represents the current state of a persisted pipeline run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is the persisted record of one pipeline invocation.
type Run struct {
	ID        string          `json:"id"`
	CaseName  string          `json:"case_name,omitempty"`
	Scenario  string          `json:"scenario"`
	Status    RunStatus       `json:"status"`
	Result    *PipelineResult `json:"result,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// PhaseStatus represents the state of one stage execution within a run.
type PhaseStatus string

const (
	PhaseStatusRunning  PhaseStatus = "running"
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
)

// RunPhase is the persisted record of one stage execution.
type RunPhase struct {
	ID        string       `json:"id"`
	RunID     string       `json:"run_id"`
	Stage     StageID      `json:"stage"`
	Status    PhaseStatus  `json:"status"`
	Result    *PhaseResult `json:"result,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// PhaseResult holds the bookkeeping outcome of a single stage execution,
// kept small for the phase table; the full stage output lives on the run
// result.
type PhaseResult struct {
	Stage        StageID     `json:"stage"`
	Status       PhaseStatus `json:"status"`
	DurationMS   int64       `json:"duration_ms"`
	QualityLabel string      `json:"quality_label,omitempty"`
	Error        string      `json:"error,omitempty"`
}
