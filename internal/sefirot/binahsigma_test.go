package sefirot

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tikun-labs/sefirot-cli/internal/gateway"
	"github.com/tikun-labs/sefirot-cli/internal/model"
)

const sigmaWestResponse = `{
	"stakeholders": [
		{"name": "citizens", "western_perspective": "rights holders"},
		{"name": "government", "western_perspective": "accountable steward"},
		{"name": "press", "western_perspective": "watchdog"}
	],
	"contextual_dimensions": {
		"political": "democratic governance",
		"economic": "market effects"
	},
	"key_insights": ["shared insight", "western only a", "western only b"]
}`

const sigmaEastResponse = `{
	"stakeholders": [
		{"name": "citizens", "eastern_perspective": "community members"},
		{"name": "government", "eastern_perspective": "guardian of stability"},
		{"name": "elders", "eastern_perspective": "continuity keepers"}
	],
	"contextual_dimensions": {
		"political": "stability analysis",
		"national": "sovereignty assessment"
	},
	"key_insights": ["shared insight", "eastern only a", "eastern only b"]
}`

func sigmaSynthesisResponse() string {
	return fmt.Sprintf(`{
		"west_blind_spots": [{"blind_spot": "collective costs"}, {"blind_spot": "stability value"}],
		"east_blind_spots": [{"blind_spot": "individual dissent"}, {"blind_spot": "minority rights"}],
		"universal_convergence": [
			{"convergence_point": "human dignity"},
			{"convergence_point": "material security"},
			{"convergence_point": "peace preference"}
		],
		"transcendent_synthesis": %q,
		"recommended_balance": "Pair individual safeguards with collective benefit tests."
	}`, strings.Repeat("t", 300))
}

func newSigma(base *Binah, cfg DualConfig) *BinahSigma {
	cfg.WestTemperature = 0.6
	cfg.EastTemperature = 0.6
	cfg.SynthesisTemperature = 0.5
	return NewBinahSigma(base, cfg)
}

func TestBinahSigma_ShouldUseDual(t *testing.T) {
	s := newSigma(NewBinah(newMockGateway("gemini-2.0-flash"), 0.5), DualConfig{
		West: newMockGateway("gemini-2.0-flash"),
		East: newMockGateway("deepseek-chat"),
	})

	tests := []struct {
		scenario string
		want     bool
	}{
		{"Russia-Ukraine conflict resolution", true},
		{"NATO Expansion Debate", true},
		{"DEMOCRACY UNDER THREAT", true},
		{"¿Es justa la OTAN para Europa?", true},
		{"Plan a neighborhood composting program", false},
		{"Should the city fund more bike lanes?", false},
	}
	for _, tt := range tests {
		t.Run(tt.scenario, func(t *testing.T) {
			assert.Equal(t, tt.want, s.ShouldUseDual(tt.scenario))
		})
	}
}

func TestBinahSigma_Process_AutoUsesSingleModel(t *testing.T) {
	baseGw := newMockGateway("gemini-2.0-flash")
	baseGw.On("Generate", mock.Anything, containing("9-DIMENSIONAL CONTEXT ANALYSIS"), 0.5).
		Return(binahResponse(), nil).Once()

	west := newMockGateway("gemini-2.0-flash")
	east := newMockGateway("deepseek-chat")
	s := newSigma(NewBinah(baseGw, 0.5), DualConfig{West: west, East: east, Mode: DualAuto})

	res := s.Process(context.Background(), "Plan a neighborhood composting program", model.NewPipelineContext())

	require.True(t, res.OK())
	_, hasMode := res.RawFields["mode"]
	assert.False(t, hasMode)
	west.AssertNumberOfCalls(t, "Generate", 0)
	east.AssertNumberOfCalls(t, "Generate", 0)
	baseGw.AssertExpectations(t)
}

func TestBinahSigma_Process_DualFlow(t *testing.T) {
	scenario := "How should democracies regulate surveillance technology?"

	west := newMockGateway("gemini-2.0-flash")
	west.On("Generate", mock.Anything, containing("WESTERN LIBERAL DEMOCRATIC", scenario), 0.6).
		Return(sigmaWestResponse, nil).Once()

	east := newMockGateway("deepseek-chat")
	east.On("Generate", mock.Anything, containing("EASTERN COLLECTIVE HARMONY", scenario), 0.6).
		Return(sigmaEastResponse, nil).Once()

	synth := newMockGateway("gemini-2.0-flash")
	synth.On("Generate", mock.Anything, containing("META-COGNITIVE SYNTHESIS", scenario), 0.5).
		Return(sigmaSynthesisResponse(), nil).Once()

	baseGw := newMockGateway("gemini-2.0-flash")
	s := newSigma(NewBinah(baseGw, 0.5), DualConfig{West: west, East: east, Synthesis: synth, Mode: DualAuto})

	res := s.Process(context.Background(), scenario, model.NewPipelineContext())

	require.True(t, res.OK())
	assert.Equal(t, model.StageBinah, res.StageID)
	assert.Equal(t, "gemini-2.0-flash", res.Model)

	assert.Equal(t, "sigma", res.RawFields["mode"])
	assert.Equal(t, "gemini-2.0-flash", res.RawFields["model_west"])
	assert.Equal(t, "deepseek-chat", res.RawFields["model_east"])

	westAnalysis, ok := res.RawFields["west_analysis"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Western Liberal Democratic", westAnalysis["perspective"])
	assert.Len(t, westAnalysis["stakeholders"], 3)

	eastAnalysis, ok := res.RawFields["east_analysis"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Eastern Collective Harmony", eastAnalysis["perspective"])

	synthesis, ok := res.RawFields["sigma_synthesis"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Pair individual safeguards with collective benefit tests.", synthesis["recommended_balance"])

	assert.InDelta(t, 80, res.MetricOr("bias_delta", 0), 0.001)
	assert.Equal(t, "extreme divergence", res.MetricString("divergence_level"))
	assert.Equal(t, 4, res.DerivedMetrics["blind_spots_detected"])
	assert.Equal(t, 3, res.DerivedMetrics["convergence_points"])
	assert.InDelta(t, 93, res.MetricOr("contextual_depth_score", 0), 0.001)
	assert.Equal(t, "exceptional", res.QualityLabel)

	west.AssertExpectations(t)
	east.AssertExpectations(t)
	synth.AssertExpectations(t)
	baseGw.AssertNumberOfCalls(t, "Generate", 0)
}

func TestBinahSigma_Process_EastParseFailureFallsBack(t *testing.T) {
	scenario := "Taiwan semiconductor export controls"

	west := newMockGateway("gemini-2.0-flash")
	west.On("Generate", mock.Anything, mock.Anything, 0.6).Return(sigmaWestResponse, nil).Once()

	east := newMockGateway("deepseek-chat")
	east.On("Generate", mock.Anything, mock.Anything, 0.6).Return("not a json object", nil).Once()

	synth := newMockGateway("gemini-2.0-flash")

	baseGw := newMockGateway("gemini-2.0-flash")
	baseGw.On("Generate", mock.Anything, containing("9-DIMENSIONAL CONTEXT ANALYSIS"), 0.5).
		Return(binahResponse(), nil).Once()

	s := newSigma(NewBinah(baseGw, 0.5), DualConfig{West: west, East: east, Synthesis: synth, Mode: DualAuto})

	res := s.Process(context.Background(), scenario, model.NewPipelineContext())

	require.True(t, res.OK())
	_, hasMode := res.RawFields["mode"]
	assert.False(t, hasMode)
	assert.Equal(t, "exceptional", res.QualityLabel)

	baseGw.AssertExpectations(t)
	west.AssertExpectations(t)
	east.AssertExpectations(t)
	synth.AssertNumberOfCalls(t, "Generate", 0)
}

func TestBinahSigma_Process_WestFailureFailsStage(t *testing.T) {
	west := newMockGateway("gemini-2.0-flash")
	west.On("Generate", mock.Anything, mock.Anything, 0.6).
		Return("", &gateway.ProviderTimeoutError{Provider: "gemini", Model: "gemini-2.0-flash", Timeout: 30 * time.Second}).Once()

	east := newMockGateway("deepseek-chat")
	east.On("Generate", mock.Anything, mock.Anything, 0.6).Return(sigmaEastResponse, nil)

	synth := newMockGateway("gemini-2.0-flash")
	baseGw := newMockGateway("gemini-2.0-flash")

	s := newSigma(NewBinah(baseGw, 0.5), DualConfig{West: west, East: east, Synthesis: synth, Mode: DualAlways})

	res := s.Process(context.Background(), "any scenario", model.NewPipelineContext())

	assert.False(t, res.OK())
	assert.Equal(t, model.StageStatusError, res.Status)
	assert.Contains(t, res.Error, "no response within")
	baseGw.AssertNumberOfCalls(t, "Generate", 0)
	synth.AssertNumberOfCalls(t, "Generate", 0)
}

func TestBinahSigma_Process_EastUnconfiguredDegrades(t *testing.T) {
	baseGw := newMockGateway("gemini-2.0-flash")
	baseGw.On("Generate", mock.Anything, mock.Anything, 0.5).Return(binahResponse(), nil).Once()

	west := newMockGateway("gemini-2.0-flash")
	s := newSigma(NewBinah(baseGw, 0.5), DualConfig{West: west, Mode: DualAlways})

	res := s.Process(context.Background(), "Russia-Ukraine conflict resolution", model.NewPipelineContext())

	require.True(t, res.OK())
	_, hasMode := res.RawFields["mode"]
	assert.False(t, hasMode)
	west.AssertNumberOfCalls(t, "Generate", 0)
	baseGw.AssertExpectations(t)
}

func TestBinahSigma_Process_NeverModeSkipsKeywordMatch(t *testing.T) {
	baseGw := newMockGateway("gemini-2.0-flash")
	baseGw.On("Generate", mock.Anything, mock.Anything, 0.5).Return(binahResponse(), nil).Once()

	west := newMockGateway("gemini-2.0-flash")
	east := newMockGateway("deepseek-chat")
	s := newSigma(NewBinah(baseGw, 0.5), DualConfig{West: west, East: east, Mode: DualNever})

	res := s.Process(context.Background(), "Russia-Ukraine conflict resolution", model.NewPipelineContext())

	require.True(t, res.OK())
	west.AssertNumberOfCalls(t, "Generate", 0)
	east.AssertNumberOfCalls(t, "Generate", 0)
	baseGw.AssertExpectations(t)
}

func TestBiasDelta(t *testing.T) {
	analysis := func(insights ...string) map[string]any {
		l := make([]any, len(insights))
		for i, s := range insights {
			l[i] = s
		}
		return map[string]any{"key_insights": l}
	}

	assert.InDelta(t, 0, biasDelta(analysis("a", "b"), analysis("a", "b")), 1e-9)
	assert.InDelta(t, 100, biasDelta(analysis("a", "b"), analysis("c", "d")), 1e-9)
	assert.InDelta(t, 66.667, biasDelta(analysis("a", "b"), analysis("b", "c")), 0.001)
	assert.InDelta(t, 100, biasDelta(analysis(), analysis("a", "b")), 1e-9)
	assert.InDelta(t, 0, biasDelta(analysis(), analysis()), 1e-9)
}

func TestBiasDelta_Symmetric(t *testing.T) {
	west := map[string]any{"key_insights": []any{"a", "b", "c"}}
	east := map[string]any{"key_insights": []any{"b", "d"}}

	assert.InDelta(t, biasDelta(west, east), biasDelta(east, west), 1e-9)
}

func TestDivergenceLevel(t *testing.T) {
	tests := []struct {
		delta float64
		want  string
	}{
		{80, "extreme divergence"},
		{70, "extreme divergence"},
		{55, "high divergence"},
		{50, "high divergence"},
		{35, "moderate divergence"},
		{30, "moderate divergence"},
		{20, "low divergence"},
		{15, "low divergence"},
		{14.99, "minimal divergence"},
		{0, "minimal divergence"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, divergenceLevel(tt.delta))
		})
	}
}

func TestSigmaDepthScore_Empty(t *testing.T) {
	assert.InDelta(t, 0, sigmaDepthScore(map[string]any{}, map[string]any{}, map[string]any{}), 1e-9)
}

func TestDualContext(t *testing.T) {
	keter := model.NewStageResult(model.StageKeter)
	keter.DerivedMetrics = map[string]any{"alignment_percentage": 85.0}

	chochmah := model.NewStageResult(model.StageChochmah)
	chochmah.RawFields = map[string]any{"insights": []any{"i1", "i2", "i3", "i4", "i5"}}

	pctx := model.NewPipelineContext()
	pctx.Put(keter)
	pctx.Put(chochmah)

	got := dualContext(pctx)
	assert.Contains(t, got, "PREVIOUS CONTEXT:")
	assert.Contains(t, got, "- Keter alignment: 85%")
	assert.Contains(t, got, "- Chochmah insights: 5 perspectives identified")

	assert.Equal(t, "", dualContext(model.NewPipelineContext()))
}

func TestParseDualMode(t *testing.T) {
	tests := []struct {
		in   string
		want DualMode
	}{
		{"", DualAuto},
		{"auto", DualAuto},
		{"always", DualAlways},
		{"never", DualNever},
	}
	for _, tt := range tests {
		got, err := ParseDualMode(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}

	_, err := ParseDualMode("sometimes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown dual mode")
}
