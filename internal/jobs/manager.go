// Package jobs runs analysis pipelines in the background and tracks their
// lifecycle for the job API.
package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tikun-labs/sefirot-cli/internal/model"
	"github.com/tikun-labs/sefirot-cli/internal/pipeline"
)

// Status is the lifecycle state of a background job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Sentinel errors callers branch on with errors.Is.
var (
	ErrNotFound     = eris.New("jobs: job not found")
	ErrJobRunning   = eris.New("jobs: job still running")
	ErrShuttingDown = eris.New("jobs: manager is shutting down")
)

// Job is one background analysis. Manager methods return copies; the
// Result pointer is written once at completion and never mutated after.
type Job struct {
	ID           string
	CaseName     string
	Scenario     string
	Status       Status
	Progress     int
	CurrentStage model.StageID
	CreatedAt    time.Time
	StartedAt    time.Time
	CompletedAt  time.Time
	Result       *model.PipelineResult
	Error        string
}

// Finished reports whether the job reached a terminal state.
func (j Job) Finished() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// ElapsedSeconds is whole seconds since the job started, frozen at
// completion time for finished jobs. Zero for jobs that never started.
func (j Job) ElapsedSeconds(now time.Time) int {
	if j.StartedAt.IsZero() {
		return 0
	}
	end := now
	if !j.CompletedAt.IsZero() {
		end = j.CompletedAt
	}
	return int(end.Sub(j.StartedAt).Seconds())
}

// EstimatedRemainingSeconds extrapolates total wall time from progress so
// far. Zero when the job is finished or has made no progress yet.
func (j Job) EstimatedRemainingSeconds(now time.Time) int {
	if j.Finished() || j.StartedAt.IsZero() || j.Progress <= 0 {
		return 0
	}
	elapsed := now.Sub(j.StartedAt).Seconds()
	total := elapsed / (float64(j.Progress) / 100)
	remaining := int(total - elapsed)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ExecutionSeconds is wall time from start to completion; zero while the
// job is still going.
func (j Job) ExecutionSeconds() float64 {
	if j.StartedAt.IsZero() || j.CompletedAt.IsZero() {
		return 0
	}
	return j.CompletedAt.Sub(j.StartedAt).Seconds()
}

// Runner executes one analysis pipeline.
type Runner interface {
	Process(ctx context.Context, scenario, caseName string) (*model.PipelineResult, error)
}

// RunnerFactory builds a Runner that reports progress through the given
// callback. Each job gets its own runner so progress updates stay scoped
// to that job.
type RunnerFactory func(progress pipeline.ProgressFunc) (Runner, error)

// Manager tracks background jobs in memory and runs each one on its own
// goroutine.
type Manager struct {
	newRunner RunnerFactory

	mu     sync.Mutex
	jobs   map[string]*Job
	closed bool

	wg        sync.WaitGroup
	runCtx    context.Context
	cancelRun context.CancelFunc
}

// NewManager creates a job manager that builds per-job runners with
// newRunner.
func NewManager(newRunner RunnerFactory) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		newRunner: newRunner,
		jobs:      make(map[string]*Job),
		runCtx:    ctx,
		cancelRun: cancel,
	}
}

// Start registers a job and launches its pipeline in the background. The
// returned Job is a snapshot taken before the run begins.
func (m *Manager) Start(scenario, caseName string) (Job, error) {
	if caseName == "" {
		caseName = "Analysis_" + time.Now().Format("20060102_150405")
	}
	job := &Job{
		ID:        uuid.New().String(),
		CaseName:  caseName,
		Scenario:  scenario,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Job{}, ErrShuttingDown
	}
	m.jobs[job.ID] = job
	m.wg.Add(1)
	m.mu.Unlock()

	snapshot := *job
	go m.run(job.ID, scenario, caseName)

	zap.L().Info("jobs: analysis queued",
		zap.String("job_id", job.ID),
		zap.String("case", caseName),
	)
	return snapshot, nil
}

func (m *Manager) run(jobID, scenario, caseName string) {
	defer m.wg.Done()

	m.update(jobID, func(j *Job) {
		j.Status = StatusRunning
		j.StartedAt = time.Now().UTC()
	})

	total := len(model.StageOrder)
	runner, err := m.newRunner(func(stage model.StageID, position int, _ *model.StageResult) {
		m.update(jobID, func(j *Job) {
			j.CurrentStage = stage
			j.Progress = position * 100 / total
		})
	})
	if err != nil {
		m.fail(jobID, err)
		return
	}

	result, err := runner.Process(m.runCtx, scenario, caseName)
	if err != nil {
		m.fail(jobID, err)
		return
	}

	m.update(jobID, func(j *Job) {
		j.Status = StatusCompleted
		j.CompletedAt = time.Now().UTC()
		j.Result = result
		j.Progress = 100
	})
	zap.L().Info("jobs: analysis complete",
		zap.String("job_id", jobID),
		zap.String("case", caseName),
	)
}

func (m *Manager) update(jobID string, fn func(*Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[jobID]; ok {
		fn(j)
	}
}

func (m *Manager) fail(jobID string, err error) {
	m.update(jobID, func(j *Job) {
		j.Status = StatusFailed
		j.CompletedAt = time.Now().UTC()
		j.Error = err.Error()
	})
	zap.L().Error("jobs: analysis failed",
		zap.String("job_id", jobID),
		zap.Error(err),
	)
}

// Get returns a snapshot of one job.
func (m *Manager) Get(id string) (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// List returns snapshots of all jobs, newest first.
func (m *Manager) List() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	return out
}

// Delete removes a finished job. Running or pending jobs report
// ErrJobRunning.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if !j.Finished() {
		return ErrJobRunning
	}
	delete(m.jobs, id)
	return nil
}

// Shutdown stops accepting new jobs and waits for running ones. When ctx
// expires before they finish, their run contexts are cancelled and the
// wait error is returned.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		m.cancelRun()
		return eris.Wrap(ctx.Err(), "jobs: shutdown wait")
	}
}
