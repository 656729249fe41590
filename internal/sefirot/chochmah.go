package sefirot

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/tikun-labs/sefirot-cli/internal/gateway"
	"github.com/tikun-labs/sefirot-cli/internal/model"
)

// Chochmah is the second stage: deep reasoning, pattern recognition, and
// insight generation with explicit epistemic humility. Its signature metric
// is the humility ratio, the share of declared uncertainties among all
// insight and uncertainty statements.
type Chochmah struct {
	gw          gateway.Gateway
	temperature float64
}

func NewChochmah(gw gateway.Gateway, temperature float64) *Chochmah {
	return &Chochmah{gw: gw, temperature: temperature}
}

func (s *Chochmah) ID() model.StageID { return model.StageChochmah }

func (s *Chochmah) Process(ctx context.Context, scenario string, pctx *model.PipelineContext) *model.StageResult {
	fields, errRes := invoke(ctx, s.gw, model.StageChochmah, chochmahPrompt(scenario, pctx), s.temperature)
	if errRes != nil {
		return errRes
	}

	insights := listLen(fields, "insights")
	uncertainties := listLen(fields, "uncertainties")
	patterns := listLen(fields, "patterns")

	humility := 0.0
	if total := insights + uncertainties; total > 0 {
		humility = float64(uncertainties) / float64(total) * 100
	}
	depth := insightDepthScore(fields)

	res := model.NewStageResult(model.StageChochmah)
	res.Model = s.gw.Model()
	res.RawFields = fields
	res.DerivedMetrics = map[string]any{
		"epistemic_humility_ratio":  round2(humility),
		"insight_depth_score":       round2(depth),
		"pattern_recognition_count": patterns,
	}
	res.QualityLabel = wisdomQuality(depth, uncertainties, patterns)
	return res
}

// insightDepthScore returns 0-100 based on insight, pattern, and precedent
// counts plus the depth of the understanding text and the presence of a
// meta reflection.
func insightDepthScore(fields map[string]any) float64 {
	score := math.Min(float64(listLen(fields, "insights"))*6, 30)
	score += math.Min(float64(listLen(fields, "patterns"))*12.5, 25)
	score += math.Min(float64(listLen(fields, "precedents"))*10, 20)

	switch l := len(str(fields, "understanding")); {
	case l > 500:
		score += 15
	case l > 300:
		score += 10
	case l > 150:
		score += 5
	}
	if str(fields, "meta_reflection") != "" {
		score += 10
	}
	return math.Min(score, 100)
}

func wisdomQuality(depth float64, uncertainties, patterns int) string {
	switch {
	case depth >= 80 && uncertainties >= 3 && patterns >= 2:
		return "exceptional"
	case depth >= 60 && uncertainties >= 2:
		return "high"
	case depth >= 40 || uncertainties >= 2:
		return "moderate"
	default:
		return "low"
	}
}

func chochmahPrompt(scenario string, pctx *model.PipelineContext) string {
	keterContext := ""
	if keter, ok := pctx.GetOK(model.StageKeter); ok {
		scores := keter.MapField("scores")
		keterContext = fmt.Sprintf(`
KETER VALIDATION CONTEXT:
- Alignment Score: %s
- Aligned with Tikun Olam: %t
- Key Scores:
  * Reduces Suffering: %s/10
  * Respects Free Will: %s/10
  * Promotes Harmony: %s/10
- Corruption Severity: %s
- Keter Reasoning: %s...
`,
			metricOr(keter, "alignment_score", "N/A"),
			keter.BoolMetric("manifestation_valid"),
			dimensionScore(scores, "reduces_suffering"),
			dimensionScore(scores, "respects_free_will"),
			dimensionScore(scores, "promotes_harmony"),
			metricStringOr(keter, "corruption_severity", "N/A"),
			truncate(keter.StringField("reasoning"), 300))
	}

	return fmt.Sprintf(`You are CHOCHMAH (חכמה), Wisdom - Sefira 2 of the Kabbalistic Tree.

FUNCTION: Deep reasoning, pattern recognition, insight generation, and epistemic humility.

SCENARIO TO ANALYZE:
%s
%s

YOUR TASK:
Provide DEEP WISDOM analysis of this scenario. Go beyond surface-level observations.

CRITICAL PRINCIPLES:
1. **EPISTEMIC HUMILITY**: You MUST acknowledge what you don't know. List uncertainties explicitly.
2. **PATTERN RECOGNITION**: Identify historical, conceptual, or systemic patterns.
3. **INSIGHT DEPTH**: Generate non-obvious insights that reveal deeper truths.
4. **LONG-TERM THINKING**: Consider implications beyond immediate effects.
5. **PRECEDENT AWARENESS**: Reference relevant historical precedents.

RESPONSE (JSON only, no markdown):
{
    "understanding": "Deep comprehension of the scenario in 2-3 paragraphs. Explain the ESSENCE, not just the facts.",

    "insights": [
        "Non-obvious insight 1 (reveal deeper pattern or truth)",
        "Non-obvious insight 2 (connect to broader context)",
        "Non-obvious insight 3 (identify hidden dynamics)",
        "Non-obvious insight 4 (long-term implication)",
        "Non-obvious insight 5 (ethical dimension)"
    ],

    "patterns": [
        {
            "pattern_name": "Name of pattern (e.g., 'Tragedy of the Commons')",
            "description": "How this pattern applies here",
            "historical_examples": ["Example 1", "Example 2"]
        },
        {
            "pattern_name": "Another pattern",
            "description": "How this pattern manifests",
            "historical_examples": ["Example 1", "Example 2"]
        }
    ],

    "uncertainties": [
        "What we DON'T know #1 (be specific about gaps in knowledge)",
        "What we DON'T know #2 (acknowledge limitations)",
        "What we DON'T know #3 (identify unpredictable factors)",
        "What we DON'T know #4 (recognize complexity beyond our understanding)"
    ],

    "implications": "Long-term implications (5-20 years). What second and third-order effects might emerge? What precedents does this set?",

    "precedents": [
        {
            "name": "Historical precedent 1",
            "relevance": "Why this precedent matters here",
            "outcome": "What happened and what we can learn"
        },
        {
            "name": "Historical precedent 2",
            "relevance": "Connection to current scenario",
            "outcome": "Lessons learned"
        }
    ],

    "confidence_level": 75,

    "meta_reflection": "Brief reflection on the limits of this analysis itself. What biases might be present? What perspectives might be missing?"
}

CRITICAL RULES:
- You MUST include at least 3 uncertainties (epistemic humility is NON-NEGOTIABLE)
- Insights must be NON-OBVIOUS (not surface-level observations)
- Patterns must connect to established frameworks or historical examples
- Confidence level should reflect genuine uncertainty (70-85%% is often appropriate)
- Return ONLY valid JSON, no markdown formatting

Remember: Wisdom includes knowing what you DON'T know.`, scenario, keterContext)
}

// dimensionScore renders one keter dimension score for prompt context.
func dimensionScore(scores map[string]any, key string) string {
	if v, ok := scores[key]; ok {
		if n, err := coerceInt(v); err == nil {
			return strconv.Itoa(n)
		}
	}
	return "N/A"
}
