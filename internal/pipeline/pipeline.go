// Package pipeline wires the ten analysis stages into a single sequential
// run: routing resolves each stage's gateway, results accumulate in the
// shared context, and aggregate metrics are computed at the end.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tikun-labs/sefirot-cli/internal/gateway"
	"github.com/tikun-labs/sefirot-cli/internal/model"
	"github.com/tikun-labs/sefirot-cli/internal/routing"
	"github.com/tikun-labs/sefirot-cli/internal/sefirot"
	"github.com/tikun-labs/sefirot-cli/internal/store"
)

// ProgressFunc is called after each stage is recorded, error or not.
// position is the 1-based pipeline position of the stage.
type ProgressFunc func(stage model.StageID, position int, result *model.StageResult)

// Orchestrator executes the ten stages in canonical order for one scenario
// per Process call. Runs are independent; a single Orchestrator may serve
// concurrent runs.
type Orchestrator struct {
	stages   []sefirot.Stage
	store    store.Store
	progress ProgressFunc
	dualMode sefirot.DualMode
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStore enables run persistence. Store failures are logged and never
// abort a run.
func WithStore(st store.Store) Option {
	return func(o *Orchestrator) { o.store = st }
}

// WithProgress registers a callback fired after every stage.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// WithDualMode sets the dual-perspective mode for the third stage.
func WithDualMode(mode sefirot.DualMode) Option {
	return func(o *Orchestrator) { o.dualMode = mode }
}

// New builds an Orchestrator from the routing table. All gateway and stage
// construction errors surface here; Process itself never fails on
// configuration.
func New(table *routing.Table, factory *gateway.Factory, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{dualMode: sefirot.DualAuto}
	for _, opt := range opts {
		opt(o)
	}

	o.stages = make([]sefirot.Stage, 0, len(model.StageOrder))
	for _, id := range model.StageOrder {
		st, err := o.buildStage(id, table, factory)
		if err != nil {
			return nil, err
		}
		o.stages = append(o.stages, st)
	}
	return o, nil
}

func (o *Orchestrator) buildStage(id model.StageID, table *routing.Table, factory *gateway.Factory) (sefirot.Stage, error) {
	route, err := table.ForStage(id)
	if err != nil {
		return nil, err
	}
	gw, err := factory.Gateway(route.Provider, route.Model)
	if err != nil {
		return nil, err
	}

	switch id {
	case model.StageKeter:
		return sefirot.NewKeter(gw, route.Temperature), nil
	case model.StageChochmah:
		return sefirot.NewChochmah(gw, route.Temperature), nil
	case model.StageBinah:
		return o.buildBinah(gw, route.Temperature, table, factory)
	case model.StageChesed:
		return sefirot.NewChesed(gw, route.Temperature), nil
	case model.StageGevurah:
		return sefirot.NewGevurah(gw, route.Temperature), nil
	case model.StageTiferet:
		return sefirot.NewTiferet(gw, route.Temperature), nil
	case model.StageNetzach:
		return sefirot.NewNetzach(gw, route.Temperature), nil
	case model.StageHod:
		return sefirot.NewHod(gw, route.Temperature), nil
	case model.StageYesod:
		return sefirot.NewYesod(gw, route.Temperature), nil
	case model.StageMalchut:
		return sefirot.NewMalchut(gw, route.Temperature), nil
	default:
		return nil, &gateway.UnknownStageError{Stage: string(id)}
	}
}

// buildBinah wraps the base stage in its dual-perspective variant unless
// the mode is never. An unavailable eastern provider degrades to
// single-model analysis instead of failing construction.
func (o *Orchestrator) buildBinah(gw gateway.Gateway, temperature float64, table *routing.Table, factory *gateway.Factory) (sefirot.Stage, error) {
	base := sefirot.NewBinah(gw, temperature)
	if o.dualMode == sefirot.DualNever {
		return base, nil
	}

	west := table.West()
	westGw, err := factory.Gateway(west.Provider, west.Model)
	if err != nil {
		return nil, err
	}

	synth := table.Synthesis()
	synthGw, err := factory.Gateway(synth.Provider, synth.Model)
	if err != nil {
		return nil, err
	}

	east := table.East()
	eastGw, err := factory.Gateway(east.Provider, east.Model)
	if err != nil {
		if !gateway.IsMissingDependency(err) {
			return nil, err
		}
		zap.L().Warn("pipeline: eastern perspective unavailable",
			zap.String("provider", east.Provider),
			zap.Error(err),
		)
		eastGw = nil
	}

	return sefirot.NewBinahSigma(base, sefirot.DualConfig{
		West:                 westGw,
		East:                 eastGw,
		Synthesis:            synthGw,
		WestTemperature:      west.Temperature,
		EastTemperature:      east.Temperature,
		SynthesisTemperature: synth.Temperature,
		Mode:                 o.dualMode,
	}), nil
}

// Process runs all ten stages for one scenario. Stage failures are
// recorded in the result rather than returned; the result always carries
// one entry per stage, in order. Cancelling ctx stops the loop and marks
// the remaining stages as cancelled.
func (o *Orchestrator) Process(ctx context.Context, scenario, caseName string) (*model.PipelineResult, error) {
	if strings.TrimSpace(scenario) == "" {
		return nil, eris.New("pipeline: scenario required")
	}

	runID := uuid.New().String()
	log := zap.L().With(zap.String("run_id", runID), zap.String("case", caseName))
	log.Info("pipeline: starting analysis", zap.Int("scenario_chars", len(scenario)))

	started := time.Now()
	result := &model.PipelineResult{
		Metadata: model.RunMetadata{
			CaseName:  caseName,
			RunID:     runID,
			Timestamp: started.UTC(),
			Scenario:  scenario,
		},
		StageResults: make([]*model.StageResult, 0, len(o.stages)),
		Errors:       []string{},
	}

	if o.store != nil {
		run := &model.Run{ID: runID, CaseName: caseName, Scenario: scenario, Status: model.RunStatusQueued}
		if err := o.store.CreateRun(ctx, run); err != nil {
			log.Warn("pipeline: create run record failed", zap.Error(err))
		}
		if err := o.store.UpdateRunStatus(ctx, runID, model.RunStatusRunning); err != nil {
			log.Warn("pipeline: update run status failed", zap.Error(err))
		}
	}

	pctx := model.NewPipelineContext()
	record := func(res *model.StageResult) {
		pctx.Put(res)
		result.StageResults = append(result.StageResults, res)
		if !res.OK() {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", res.StageID, res.Error))
		}
		if o.progress != nil {
			o.progress(res.StageID, res.Position, res)
		}
	}

	for i, st := range o.stages {
		if err := ctx.Err(); err != nil {
			log.Warn("pipeline: run cancelled", zap.Int("completed_stages", i))
			for _, rem := range o.stages[i:] {
				record(model.NewStageError(rem.ID(), eris.Wrap(err, "pipeline: run cancelled")))
			}
			break
		}
		record(o.runStage(ctx, st, scenario, pctx, runID, log))
	}

	result.Metrics = computeMetrics(result.StageResults, time.Since(started).Seconds())

	status := model.RunStatusComplete
	if result.Metrics.SuccessfulStages == 0 {
		status = model.RunStatusFailed
	}
	if o.store != nil {
		// Persist the terminal record even when the run context is
		// already cancelled.
		if err := o.store.UpdateRunResult(context.WithoutCancel(ctx), runID, result, status); err != nil {
			log.Warn("pipeline: persist run result failed", zap.Error(err))
		}
	}

	log.Info("pipeline: analysis finished",
		zap.Int("successful", result.Metrics.SuccessfulStages),
		zap.Int("failed", result.Metrics.FailedStages),
		zap.Float64("duration_seconds", result.Metrics.TotalDurationSeconds),
		zap.String("quality", result.Metrics.PipelineQuality),
	)
	return result, nil
}

func (o *Orchestrator) runStage(ctx context.Context, st sefirot.Stage, scenario string, pctx *model.PipelineContext, runID string, log *zap.Logger) *model.StageResult {
	id := st.ID()

	var phaseID string
	if o.store != nil {
		phase, err := o.store.CreatePhase(ctx, runID, id)
		if err != nil {
			log.Warn("pipeline: create phase failed", zap.String("stage", string(id)), zap.Error(err))
		} else {
			phaseID = phase.ID
		}
	}

	log.Info("pipeline: stage starting", zap.String("stage", string(id)), zap.Int("position", id.Ordinal()))
	start := time.Now()
	res := st.Process(ctx, scenario, pctx)
	elapsed := time.Since(start)

	if res == nil {
		res = model.NewStageError(id, eris.Errorf("pipeline: stage %s returned no result", id))
	}
	res.DurationSeconds = elapsed.Seconds()

	if res.OK() {
		log.Info("pipeline: stage complete",
			zap.String("stage", string(id)),
			zap.Duration("elapsed", elapsed),
			zap.String("quality", res.QualityLabel),
		)
	} else {
		log.Error("pipeline: stage failed",
			zap.String("stage", string(id)),
			zap.Duration("elapsed", elapsed),
			zap.String("error", res.Error),
		)
	}

	if phaseID != "" {
		o.completePhase(ctx, phaseID, res, elapsed, log)
	}
	return res
}

func (o *Orchestrator) completePhase(ctx context.Context, phaseID string, res *model.StageResult, elapsed time.Duration, log *zap.Logger) {
	pr := &model.PhaseResult{
		Stage:        res.StageID,
		Status:       model.PhaseStatusComplete,
		DurationMS:   elapsed.Milliseconds(),
		QualityLabel: res.QualityLabel,
	}
	if !res.OK() {
		pr.Status = model.PhaseStatusFailed
		pr.Error = res.Error
	}
	if err := o.store.CompletePhase(ctx, phaseID, pr); err != nil {
		log.Warn("pipeline: complete phase failed", zap.String("phase_id", phaseID), zap.Error(err))
	}
}

// Stages returns the stage identifiers in execution order.
func (o *Orchestrator) Stages() []model.StageID {
	out := make([]model.StageID, 0, len(o.stages))
	for _, st := range o.stages {
		out = append(out, st.ID())
	}
	return out
}
