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

func malchutResponse() string {
	return fmt.Sprintf(`{
		"immediate_actions": [
			{"action": "a1", "owner": "program lead"},
			{"action": "a2", "owner": "site engineer"},
			{"action": "a3", "owner": "finance"},
			{"action": "a4", "owner": "comms"}
		],
		"action_plan": [{"phase": "1"}, {"phase": "2"}, {"phase": "3"}],
		"resource_requirements": {
			"human_resources": {"teams": 3},
			"financial_resources": {"budget": "2M"},
			"technological_resources": {"panels": 400},
			"physical_resources": {"sites": 12}
		},
		"timeline": {
			"key_milestones": [{"milestone": "m1"}, {"milestone": "m2"}, {"milestone": "m3"}]
		},
		"success_metrics": [{"metric": "uptime"}, {"metric": "households"}, {"metric": "cost"}],
		"first_step": %q
	}`, strings.Repeat("step ", 24))
}

func TestMalchut_Process_Success(t *testing.T) {
	gw := newMockGateway("claude-3-5-sonnet-20241022")
	gw.On("Generate", mock.Anything, mock.Anything, 0.3).Return(malchutResponse(), nil).Once()

	s := NewMalchut(gw, 0.3)
	res := s.Process(context.Background(), "scenario text", model.NewPipelineContext())

	require.True(t, res.OK())
	assert.Equal(t, model.StageMalchut, res.StageID)
	assert.Equal(t, 10, res.Position)

	assert.InDelta(t, 99.99, res.MetricOr("manifestation_score", 0), 0.001)
	assert.Equal(t, 4, res.DerivedMetrics["action_count"])
	assert.Equal(t, "immediately executable", res.MetricString("feasibility_rating"))
	assert.Equal(t, "exceptional", res.QualityLabel)
}

func TestMalchut_Process_VaguePlan(t *testing.T) {
	raw := `{
		"immediate_actions": [{"action": "a1"}, {"action": "a2"}],
		"first_step": "start soon"
	}`

	gw := newMockGateway("claude-3-5-sonnet-20241022")
	gw.On("Generate", mock.Anything, mock.Anything, 0.3).Return(raw, nil).Once()

	s := NewMalchut(gw, 0.3)
	res := s.Process(context.Background(), "scenario text", model.NewPipelineContext())

	require.True(t, res.OK())
	assert.InDelta(t, 12.5, res.MetricOr("manifestation_score", 0), 0.001)
	assert.Equal(t, "requires preparation", res.MetricString("feasibility_rating"))
	assert.Equal(t, "low", res.QualityLabel)
}

func TestFeasibilityRating(t *testing.T) {
	action := func(owner string) map[string]any {
		m := map[string]any{"action": "a"}
		if owner != "" {
			m["owner"] = owner
		}
		return m
	}
	longStep := strings.Repeat("s", 60)

	fullPlan := map[string]any{
		"immediate_actions": []any{action("x"), action("y"), action("z"), action("w")},
		"resource_requirements": map[string]any{
			"human_resources":     map[string]any{},
			"financial_resources": map[string]any{},
		},
		"first_step": longStep,
	}
	assert.Equal(t, "immediately executable", feasibilityRating(fullPlan))

	minorPrep := map[string]any{
		"immediate_actions": []any{action(""), action(""), action("")},
		"first_step":        longStep,
	}
	assert.Equal(t, "executable with minor preparation", feasibilityRating(minorPrep))

	prep := map[string]any{
		"immediate_actions": []any{action(""), action("")},
	}
	assert.Equal(t, "requires preparation", feasibilityRating(prep))

	assert.Equal(t, "needs further planning", feasibilityRating(map[string]any{}))
}

func TestMalchutPrompt_IncludesYesodContext(t *testing.T) {
	yesod := model.NewStageResult(model.StageYesod)
	yesod.DerivedMetrics = map[string]any{
		"readiness_score":     92.0,
		"integration_quality": "exceptional integration",
	}
	yesod.RawFields = map[string]any{
		"go_no_go_recommendation": map[string]any{"decision": "GO"},
		"strengths_confirmed": []any{
			map[string]any{"strength": "validated ethics"},
			map[string]any{"strength": "clear strategy"},
		},
		"gaps_identified": []any{map[string]any{"gap": "funding not yet secured"}},
		"readiness_verification": map[string]any{
			"ethical_readiness":   map[string]any{"status": "ready"},
			"strategic_readiness": map[string]any{"status": "conditional"},
		},
	}

	pctx := model.NewPipelineContext()
	pctx.Put(yesod)

	prompt := malchutPrompt("the scenario", pctx)

	assert.Contains(t, prompt, "YESOD CONTEXT (Integration & Readiness)")
	assert.Contains(t, prompt, "- Readiness Score: 92")
	assert.Contains(t, prompt, "- Integration Quality: exceptional integration")
	assert.Contains(t, prompt, "- Readiness Decision: GO")
	assert.Contains(t, prompt, "- Key Strengths: validated ethics, clear strategy")
	assert.Contains(t, prompt, "- Key Gaps: funding not yet secured")
	assert.Contains(t, prompt, "- Ethical Readiness: ready")
	assert.Contains(t, prompt, "- Strategic Readiness: conditional")
}

func TestMalchutPrompt_NoYesod(t *testing.T) {
	prompt := malchutPrompt("the scenario", model.NewPipelineContext())

	assert.Contains(t, prompt, "the scenario")
	assert.NotContains(t, prompt, "YESOD CONTEXT")
}
