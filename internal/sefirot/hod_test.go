package sefirot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tikun-labs/sefirot-cli/internal/model"
)

const hodResponse = `{
	"key_messages": [
		{"message": "m1", "talking_points": ["t1", "t2"]},
		{"message": "m2", "talking_points": ["t3", "t4"]},
		{"message": "m3", "talking_points": ["t5", "t6"]},
		{"message": "m4", "talking_points": ["t7", "t8"]}
	],
	"messaging_by_stakeholder": [
		{"stakeholder": "villagers"}, {"stakeholder": "government"},
		{"stakeholder": "press"}, {"stakeholder": "funders"}
	],
	"narrative_arc": {
		"opening": "o", "context": "c", "vision": "v",
		"journey": "j", "call_to_action": "a", "ongoing_story": "s"
	},
	"documentation_requirements": [{"doc": "d1"}, {"doc": "d2"}, {"doc": "d3"}, {"doc": "d4"}],
	"communication_channels": [{"channel": "c1"}, {"channel": "c2"}, {"channel": "c3"}, {"channel": "c4"}]
}`

func TestHod_Process_Success(t *testing.T) {
	gw := newMockGateway("claude-3-5-sonnet-20241022")
	gw.On("Generate", mock.Anything, mock.Anything, 0.7).Return(hodResponse, nil).Once()

	s := NewHod(gw, 0.7)
	res := s.Process(context.Background(), "scenario text", model.NewPipelineContext())

	require.True(t, res.OK())
	assert.Equal(t, model.StageHod, res.StageID)
	assert.Equal(t, 8, res.Position)

	assert.InDelta(t, 99.98, res.MetricOr("splendor_score", 0), 0.001)
	assert.Equal(t, "exceptional clarity", res.MetricString("clarity_rating"))
	assert.Equal(t, 4, res.DerivedMetrics["message_count"])
	assert.Equal(t, "exceptional", res.QualityLabel)
}

func TestHod_Process_MinimalMessaging(t *testing.T) {
	raw := `{
		"key_messages": [
			{"message": "m1", "talking_points": ["t1"]},
			{"message": "m2"}
		],
		"messaging_by_stakeholder": [{"stakeholder": "villagers"}],
		"communication_channels": [{"channel": "c1"}]
	}`

	gw := newMockGateway("claude-3-5-sonnet-20241022")
	gw.On("Generate", mock.Anything, mock.Anything, 0.7).Return(raw, nil).Once()

	s := NewHod(gw, 0.7)
	res := s.Process(context.Background(), "scenario text", model.NewPipelineContext())

	require.True(t, res.OK())
	assert.InDelta(t, 21.25, res.MetricOr("splendor_score", 0), 0.001)
	assert.Equal(t, "moderate clarity", res.MetricString("clarity_rating"))
	assert.Equal(t, "low", res.QualityLabel)
}

func TestClarityRating(t *testing.T) {
	fields := func(messages, talkingPoints, stakeholders int) map[string]any {
		msgs := make([]any, messages)
		for i := range msgs {
			points := make([]any, talkingPoints)
			for j := range points {
				points[j] = "point"
			}
			msgs[i] = map[string]any{"talking_points": points}
		}
		st := make([]any, stakeholders)
		for i := range st {
			st[i] = map[string]any{}
		}
		return map[string]any{"key_messages": msgs, "messaging_by_stakeholder": st}
	}

	assert.Equal(t, "exceptional clarity", clarityRating(fields(4, 2, 4)))
	assert.Equal(t, "high clarity", clarityRating(fields(3, 1, 3)))
	assert.Equal(t, "moderate clarity", clarityRating(fields(2, 0, 1)))
	assert.Equal(t, "low clarity", clarityRating(fields(1, 0, 0)))
}

func TestHodPrompt_IncludesNetzachContext(t *testing.T) {
	netzach := model.NewStageResult(model.StageNetzach)
	netzach.DerivedMetrics = map[string]any{
		"milestone_count":   4,
		"persistence_score": 88.0,
		"resilience_rating": "very high",
	}
	netzach.RawFields = map[string]any{
		"implementation_strategy": "Sequenced rollout with quarterly checkpoints.",
	}

	pctx := model.NewPipelineContext()
	pctx.Put(netzach)

	prompt := hodPrompt("the scenario", pctx)

	assert.Contains(t, prompt, "NETZACH CONTEXT (Implementation Strategy)")
	assert.Contains(t, prompt, "- Implementation Strategy: Sequenced rollout with quarterly checkpoints.")
	assert.Contains(t, prompt, "- Milestone Count: 4")
	assert.Contains(t, prompt, "- Persistence Score: 88")
	assert.Contains(t, prompt, "- Resilience Rating: very high")
}
