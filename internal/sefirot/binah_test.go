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

func binahResponse() string {
	return fmt.Sprintf(`{
		"context_9d": [
			{"dimension": "Historical Context"}, {"dimension": "Cultural Context"},
			{"dimension": "Economic Context"}, {"dimension": "Political Context"},
			{"dimension": "Social Context"}, {"dimension": "Technological Context"},
			{"dimension": "Environmental Context"}, {"dimension": "Legal/Regulatory Context"},
			{"dimension": "Ethical Context"}
		],
		"stakeholders": [
			{"name": "Villagers"}, {"name": "Local government"}, {"name": "Utility companies"},
			{"name": "Installers"}, {"name": "Lenders"}
		],
		"effects_cascade": {
			"first_order": [{"effect": "f1"}, {"effect": "f2"}, {"effect": "f3"}],
			"second_order": [{"effect": "s1"}, {"effect": "s2"}],
			"third_order": [{"effect": "t1"}, {"effect": "t2"}]
		},
		"systemic_risks": [{"risk": "grid defection"}, {"risk": "maintenance gap"}],
		"synthesis": %q,
		"contextual_complexity_rating": "high"
	}`, strings.Repeat("s", 850))
}

func TestBinah_Process_Success(t *testing.T) {
	gw := newMockGateway("gemini-2.0-flash")
	gw.On("Generate", mock.Anything, containing("9-DIMENSIONAL CONTEXT ANALYSIS"), 0.5).
		Return(binahResponse(), nil).Once()

	s := NewBinah(gw, 0.5)
	res := s.Process(context.Background(), "scenario text", model.NewPipelineContext())

	require.True(t, res.OK())
	assert.Equal(t, model.StageBinah, res.StageID)
	assert.Equal(t, 3, res.Position)

	assert.InDelta(t, 100, res.MetricOr("contextual_depth_score", 0), 1e-9)
	assert.Equal(t, 5, res.DerivedMetrics["stakeholder_coverage"])
	assert.Equal(t, "comprehensive (0-20 years)", res.MetricString("temporal_horizon"))
	assert.Equal(t, "exceptional", res.QualityLabel)

	gw.AssertExpectations(t)
}

func TestBinah_Process_PartialCascade(t *testing.T) {
	raw := fmt.Sprintf(`{
		"context_9d": [
			{"dimension": "d1"}, {"dimension": "d2"}, {"dimension": "d3"}, {"dimension": "d4"},
			{"dimension": "d5"}, {"dimension": "d6"}, {"dimension": "d7"}
		],
		"stakeholders": [{"name": "a"}, {"name": "b"}, {"name": "c"}],
		"effects_cascade": {
			"first_order": [{"effect": "f1"}, {"effect": "f2"}, {"effect": "f3"}],
			"second_order": [{"effect": "s1"}, {"effect": "s2"}],
			"third_order": []
		},
		"systemic_risks": [{"risk": "r1"}],
		"synthesis": %q
	}`, strings.Repeat("s", 550))

	gw := newMockGateway("gemini-2.0-flash")
	gw.On("Generate", mock.Anything, mock.Anything, 0.5).Return(raw, nil).Once()

	s := NewBinah(gw, 0.5)
	res := s.Process(context.Background(), "scenario text", model.NewPipelineContext())

	require.True(t, res.OK())
	assert.InDelta(t, 73.11, res.MetricOr("contextual_depth_score", 0), 0.001)
	assert.Equal(t, "medium-term (0-5 years)", res.MetricString("temporal_horizon"))
	assert.Equal(t, "high", res.QualityLabel)
}

func TestTemporalHorizon(t *testing.T) {
	cascade := func(first, second, third int) map[string]any {
		mk := func(n int) []any {
			l := make([]any, n)
			for i := range l {
				l[i] = map[string]any{"effect": "e"}
			}
			return l
		}
		return map[string]any{"effects_cascade": map[string]any{
			"first_order":  mk(first),
			"second_order": mk(second),
			"third_order":  mk(third),
		}}
	}

	assert.Equal(t, "comprehensive (0-20 years)", temporalHorizon(cascade(3, 2, 2)))
	assert.Equal(t, "medium-term (0-5 years)", temporalHorizon(cascade(3, 2, 0)))
	assert.Equal(t, "short-term (0-2 years)", temporalHorizon(cascade(2, 0, 0)))
	assert.Equal(t, "limited", temporalHorizon(cascade(0, 0, 0)))
	assert.Equal(t, "limited", temporalHorizon(map[string]any{}))
}

func TestBinahPrompt_IncludesUpstreamContext(t *testing.T) {
	keter := model.NewStageResult(model.StageKeter)
	keter.DerivedMetrics = map[string]any{
		"alignment_score":     0.85,
		"manifestation_valid": true,
		"corruption_severity": "none",
	}

	chochmah := model.NewStageResult(model.StageChochmah)
	chochmah.QualityLabel = "high"
	chochmah.RawFields = map[string]any{
		"insights":      []any{"insight one", "insight two", "insight three", "insight four"},
		"patterns":      []any{map[string]any{"pattern_name": "Commons"}, map[string]any{"pattern_name": "Cascade"}},
		"uncertainties": []any{"u1", "u2", "u3"},
	}

	pctx := model.NewPipelineContext()
	pctx.Put(keter)
	pctx.Put(chochmah)

	prompt := binahPrompt("the scenario", pctx)

	assert.Contains(t, prompt, "KETER CONTEXT")
	assert.Contains(t, prompt, "- Alignment Score: 0.85")
	assert.Contains(t, prompt, "CHOCHMAH CONTEXT")
	assert.Contains(t, prompt, "- Key Insights: insight one, insight two, insight three...")
	assert.Contains(t, prompt, "- Patterns Identified: Commons, Cascade")
	assert.Contains(t, prompt, "- Uncertainties Count: 3")
	assert.Contains(t, prompt, "- Wisdom Quality: high")
}

func TestBinahPrompt_NoUpstream(t *testing.T) {
	prompt := binahPrompt("the scenario", model.NewPipelineContext())

	assert.Contains(t, prompt, "the scenario")
	assert.NotContains(t, prompt, "KETER CONTEXT")
	assert.NotContains(t, prompt, "CHOCHMAH CONTEXT")
}
