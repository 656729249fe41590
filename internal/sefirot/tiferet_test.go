package sefirot

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tikun-labs/sefirot-cli/internal/model"
)

func tiferetResponse() string {
	return fmt.Sprintf(`{
		"synthesis_points": [{"point": "p1"}, {"point": "p2"}, {"point": "p3"}, {"point": "p4"}],
		"balanced_recommendations": [{"recommendation": "r1"}, {"recommendation": "r2"}, {"recommendation": "r3"}],
		"trade_offs": [{"trade_off": "t1"}, {"trade_off": "t2"}, {"trade_off": "t3"}],
		"optimal_path": {
			"strategic_direction": "Phase the rollout behind local buy-in.",
			"phase_1": {"name": "pilot"},
			"phase_2": {"name": "expand"},
			"phase_3": {"name": "sustain"}
		},
		"integration_strategy": %q
	}`, strings.Repeat("x", 650))
}

// upstreamScores seeds the context with the two opposing-force results that
// feed the balance ratio.
func upstreamScores(chesedScore, gevurahScore float64) *model.PipelineContext {
	chesed := model.NewStageResult(model.StageChesed)
	chesed.DerivedMetrics = map[string]any{"expansion_score": chesedScore}

	gevurah := model.NewStageResult(model.StageGevurah)
	gevurah.DerivedMetrics = map[string]any{"severity_score": gevurahScore}

	pctx := model.NewPipelineContext()
	pctx.Put(chesed)
	pctx.Put(gevurah)
	return pctx
}

func TestTiferet_Process_Success(t *testing.T) {
	gw := newMockGateway("claude-3-5-sonnet-20241022")
	gw.On("Generate", mock.Anything, mock.Anything, 0.6).Return(tiferetResponse(), nil).Once()

	s := NewTiferet(gw, 0.6)
	res := s.Process(context.Background(), "scenario text", upstreamScores(85, 65))

	require.True(t, res.OK())
	assert.Equal(t, model.StageTiferet, res.StageID)
	assert.Equal(t, 6, res.Position)

	assert.InDelta(t, 99.99, res.MetricOr("harmony_score", 0), 0.001)
	assert.Equal(t, "expansion-leaning (56:44)", res.MetricString("balance_ratio"))
	assert.Equal(t, "exceptional", res.QualityLabel)
}

func TestHarmonyScore_SparseFields(t *testing.T) {
	fields := map[string]any{
		"synthesis_points": []any{map[string]any{}, map[string]any{}},
		"trade_offs":       []any{map[string]any{}},
		"optimal_path":     map[string]any{"phase_1": map[string]any{}},
	}

	// 2 points, 1 trade-off, 1 phase, no recommendations or strategy text.
	assert.InDelta(t, 26.67, harmonyScore(fields), 0.001)
}

func TestBalanceRatio(t *testing.T) {
	tests := []struct {
		name    string
		chesed  float64
		gevurah float64
		want    string
	}{
		{"even split", 80, 70, "well-balanced (53:47)"},
		{"expansion dominates", 85, 65, "expansion-leaning (56:44)"},
		{"constraints dominate", 40, 90, "constraint-leaning (30:70)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, balanceRatio(upstreamScores(tt.chesed, tt.gevurah)))
		})
	}
}

func TestBalanceRatio_MissingUpstream(t *testing.T) {
	assert.Equal(t, "well-balanced (50:50)", balanceRatio(model.NewPipelineContext()))

	gevurah := model.NewStageResult(model.StageGevurah)
	gevurah.DerivedMetrics = map[string]any{"severity_score": 90.0}
	pctx := model.NewPipelineContext()
	pctx.Put(gevurah)

	assert.Equal(t, "constraint-leaning (35:65)", balanceRatio(pctx))
}

func TestTiferetPrompt_IncludesBothForces(t *testing.T) {
	chesed := model.NewStageResult(model.StageChesed)
	chesed.QualityLabel = "high"
	chesed.DerivedMetrics = map[string]any{"expansion_score": 78.0, "opportunity_count": 5}
	chesed.RawFields = map[string]any{
		"opportunities": []any{map[string]any{"opportunity": "community storage"}},
	}

	gevurah := model.NewStageResult(model.StageGevurah)
	gevurah.QualityLabel = "exceptional"
	gevurah.DerivedMetrics = map[string]any{"severity_score": 64.0, "risk_count": 7}
	gevurah.RawFields = map[string]any{
		"risks": map[string]any{
			"short_term": []any{map[string]any{"risk": "funding shortfall"}},
		},
		"red_lines": []any{map[string]any{"line": "no forced participation"}},
	}

	pctx := model.NewPipelineContext()
	pctx.Put(chesed)
	pctx.Put(gevurah)

	prompt := tiferetPrompt("the scenario", pctx)

	assert.Contains(t, prompt, "CHESED (Expansion Force)")
	assert.Contains(t, prompt, "- Expansion Score: 78")
	assert.Contains(t, prompt, "community storage")
	assert.Contains(t, prompt, "GEVURAH (Restrictive Force)")
	assert.Contains(t, prompt, "funding shortfall")
}

func TestTiferetPrompt_DefaultsWithoutUpstream(t *testing.T) {
	prompt := tiferetPrompt("the scenario", model.NewPipelineContext())

	assert.Contains(t, prompt, "the scenario")
	assert.NotContains(t, prompt, "CHESED (Expansion Force)")
	assert.NotContains(t, prompt, "GEVURAH (Restrictive Force)")
}
