package sefirot

import (
	"context"
	"fmt"
	"math"

	"github.com/tikun-labs/sefirot-cli/internal/gateway"
	"github.com/tikun-labs/sefirot-cli/internal/model"
)

// Tiferet is the sixth stage. It synthesizes the expansive force of Chesed
// with the restrictive force of Gevurah into a balanced path, and reports
// the balance ratio between the two upstream scores.
type Tiferet struct {
	gw          gateway.Gateway
	temperature float64
}

func NewTiferet(gw gateway.Gateway, temperature float64) *Tiferet {
	return &Tiferet{gw: gw, temperature: temperature}
}

func (s *Tiferet) ID() model.StageID { return model.StageTiferet }

func (s *Tiferet) Process(ctx context.Context, scenario string, pctx *model.PipelineContext) *model.StageResult {
	fields, errRes := invoke(ctx, s.gw, model.StageTiferet, tiferetPrompt(scenario, pctx), s.temperature)
	if errRes != nil {
		return errRes
	}

	harmony := harmonyScore(fields)
	synthesisPoints := listLen(fields, "synthesis_points")
	tradeOffs := listLen(fields, "trade_offs")

	res := model.NewStageResult(model.StageTiferet)
	res.Model = s.gw.Model()
	res.RawFields = fields
	res.DerivedMetrics = map[string]any{
		"harmony_score": round2(harmony),
		"balance_ratio": balanceRatio(pctx),
	}
	res.QualityLabel = synthesisQuality(harmony, synthesisPoints, tradeOffs)
	return res
}

// harmonyScore returns 0-100 based on synthesis points, balanced
// recommendations, trade-offs, path phases, and integration strategy depth.
func harmonyScore(fields map[string]any) float64 {
	score := math.Min(float64(listLen(fields, "synthesis_points"))*7.5, 30)
	score += math.Min(float64(listLen(fields, "balanced_recommendations"))*8.33, 25)
	score += math.Min(float64(listLen(fields, "trade_offs"))*6.67, 20)

	path := submap(fields, "optimal_path")
	phases := 0
	for _, p := range []string{"phase_1", "phase_2", "phase_3"} {
		if _, ok := path[p]; ok {
			phases++
		}
	}
	score += math.Min(float64(phases)*5, 15)

	switch l := len(str(fields, "integration_strategy")); {
	case l > 600:
		score += 10
	case l > 400:
		score += 7
	case l > 200:
		score += 4
	}
	return math.Min(score, 100)
}

// balanceRatio reports the relative weight of the expansion and severity
// scores as a percentage split. Missing upstream scores default to an even
// 50.
func balanceRatio(pctx *model.PipelineContext) string {
	chesedScore, gevurahScore := 50.0, 50.0
	if chesed, ok := pctx.GetOK(model.StageChesed); ok {
		chesedScore = chesed.MetricOr("expansion_score", 50)
	}
	if gevurah, ok := pctx.GetOK(model.StageGevurah); ok {
		gevurahScore = gevurah.MetricOr("severity_score", 50)
	}

	total := chesedScore + gevurahScore
	if total == 0 {
		return "balanced (50:50)"
	}
	chesedPct := int(chesedScore / total * 100)
	gevurahPct := 100 - chesedPct

	diff := chesedPct - gevurahPct
	if diff < 0 {
		diff = -diff
	}
	switch {
	case diff < 10:
		return fmt.Sprintf("well-balanced (%d:%d)", chesedPct, gevurahPct)
	case chesedPct > gevurahPct:
		return fmt.Sprintf("expansion-leaning (%d:%d)", chesedPct, gevurahPct)
	default:
		return fmt.Sprintf("constraint-leaning (%d:%d)", chesedPct, gevurahPct)
	}
}

func synthesisQuality(harmony float64, synthesisPoints, tradeOffs int) string {
	switch {
	case harmony >= 80 && synthesisPoints >= 4 && tradeOffs >= 3:
		return "exceptional"
	case harmony >= 65 && synthesisPoints >= 3:
		return "high"
	case harmony >= 50 && synthesisPoints >= 2:
		return "moderate"
	default:
		return "low"
	}
}

func tiferetPrompt(scenario string, pctx *model.PipelineContext) string {
	chesedContext := ""
	if chesed, ok := pctx.GetOK(model.StageChesed); ok {
		chesedContext = fmt.Sprintf(`
CHESED (Expansion Force):
- Opportunities Identified: %s
- Expansion Score: %s
- Quality: %s
- Key Opportunities: %s
`,
			metricOr(chesed, "opportunity_count", "0"),
			metricOr(chesed, "expansion_score", "0"),
			qualityOr(chesed, "N/A"),
			joinField(chesed.ListField("opportunities"), "opportunity", 3, 50))
	}

	gevurahContext := ""
	if gevurah, ok := pctx.GetOK(model.StageGevurah); ok {
		shortTerm := list(gevurah.MapField("risks"), "short_term")
		gevurahContext = fmt.Sprintf(`
GEVURAH (Restrictive Force):
- Risks Identified: %s
- Severity Score: %s
- Quality: %s
- Key Risks: %s
- Red Lines: %d
`,
			metricOr(gevurah, "risk_count", "0"),
			metricOr(gevurah, "severity_score", "0"),
			qualityOr(gevurah, "N/A"),
			joinField(shortTerm, "risk", 2, 50),
			len(gevurah.ListField("red_lines")))
	}

	return fmt.Sprintf(`You are TIFERET (תפארת), Beauty/Harmony - Sefira 6 of the Kabbalistic Tree.

FUNCTION: Synthesize the expansive force of CHESED with the restrictive force of GEVURAH into a harmonious, balanced path forward.

SCENARIO TO ANALYZE:
%s
%s
%s

YOUR TASK:
Create a BEAUTIFUL SYNTHESIS that honors both the opportunities (Chesed) and the constraints (Gevurah), finding the optimal balanced path.

CRITICAL PRINCIPLES:
1. **SYNTHESIS**: Integrate expansion and restriction into coherent whole
2. **BALANCE**: Find the golden mean between opportunity and caution
3. **TRADE-OFFS**: Explicitly navigate key trade-offs with wisdom
4. **OPTIMAL PATH**: Recommend specific path that maximizes value while respecting limits
5. **HARMONY**: Create elegant solution where both forces serve higher purpose

IMPORTANT: You are NOT choosing between Chesed and Gevurah - you are SYNTHESIZING them. The goal is not compromise (losing from both sides) but TRANSCENDENCE (gaining something neither alone could achieve).

RESPONSE (JSON only, no markdown):
{
    "synthesis_points": [
        {
            "synthesis": "How opportunity X can be pursued WHILE respecting constraint Y",
            "chesed_element": "Specific opportunity from Chesed",
            "gevurah_element": "Specific constraint/risk from Gevurah",
            "integrated_approach": "How to honor both simultaneously",
            "value_created": "What this synthesis achieves"
        },
        {
            "synthesis": "How risk mitigation creates new opportunities",
            "chesed_element": "Opportunity element",
            "gevurah_element": "Risk/constraint element",
            "integrated_approach": "Integration strategy",
            "value_created": "Value of synthesis"
        },
        {
            "synthesis": "Third synthesis point",
            "chesed_element": "Opportunity",
            "gevurah_element": "Constraint",
            "integrated_approach": "How to integrate",
            "value_created": "Value"
        },
        {
            "synthesis": "Fourth synthesis point",
            "chesed_element": "Opportunity",
            "gevurah_element": "Constraint",
            "integrated_approach": "Integration",
            "value_created": "Value"
        }
    ],

    "balanced_recommendations": [
        {
            "recommendation": "Specific balanced recommendation #1",
            "opportunity_honored": "How this captures Chesed's opportunities",
            "constraint_respected": "How this respects Gevurah's limits",
            "implementation": "Concrete implementation approach",
            "expected_outcome": "What this achieves"
        },
        {
            "recommendation": "Balanced recommendation #2",
            "opportunity_honored": "Opportunity aspect",
            "constraint_respected": "Constraint aspect",
            "implementation": "How to implement",
            "expected_outcome": "Expected result"
        },
        {
            "recommendation": "Balanced recommendation #3",
            "opportunity_honored": "Opportunity",
            "constraint_respected": "Constraint",
            "implementation": "Implementation",
            "expected_outcome": "Outcome"
        }
    ],

    "trade_offs": [
        {
            "trade_off": "Key trade-off #1 (e.g., speed vs safety)",
            "tension": "What's in tension between Chesed and Gevurah",
            "recommended_position": "Where to position on this spectrum (0-100, where 0=pure Gevurah, 100=pure Chesed)",
            "rationale": "Why this position is optimal",
            "conditions": "Under what conditions to adjust this position"
        },
        {
            "trade_off": "Key trade-off #2",
            "tension": "What's in tension",
            "recommended_position": 60,
            "rationale": "Why this balance",
            "conditions": "When to adjust"
        },
        {
            "trade_off": "Key trade-off #3",
            "tension": "Tension description",
            "recommended_position": 45,
            "rationale": "Rationale",
            "conditions": "Adjustment conditions"
        }
    ],

    "optimal_path": {
        "strategic_direction": "Overall strategic direction that balances expansion and caution",
        "phase_1": {
            "focus": "Initial phase focus (typically more Gevurah - establish foundations)",
            "duration": "Timeframe",
            "key_actions": ["Action 1", "Action 2", "Action 3"],
            "success_criteria": ["Criterion 1", "Criterion 2"]
        },
        "phase_2": {
            "focus": "Growth phase (typically more Chesed - expand within boundaries)",
            "duration": "Timeframe",
            "key_actions": ["Action 1", "Action 2", "Action 3"],
            "success_criteria": ["Criterion 1", "Criterion 2"]
        },
        "phase_3": {
            "focus": "Mature phase (dynamic balance based on feedback)",
            "duration": "Timeframe",
            "key_actions": ["Action 1", "Action 2"],
            "success_criteria": ["Criterion 1", "Criterion 2"]
        },
        "ongoing_balancing": "How to maintain balance over time through feedback loops"
    },

    "integration_strategy": "Comprehensive paragraph describing HOW to integrate Chesed and Gevurah in practice. What systems, processes, or governance structures enable both expansion and restraint? How to create dynamic equilibrium rather than static compromise?",

    "harmony_assessment": "Assessment of how naturally Chesed and Gevurah harmonize in this scenario. Are they fundamentally aligned (easy synthesis) or in deep tension (difficult balance requiring careful navigation)? What makes synthesis easier or harder here?",

    "beauty_quotient": "low/moderate/high/exceptional"
}

CRITICAL RULES:
- Create at least 4 synthesis points integrating Chesed and Gevurah
- Provide at least 3 balanced recommendations
- Navigate at least 3 key trade-offs with specific position recommendations
- Design optimal path with at least 3 phases
- Integration strategy must be comprehensive (2-3 paragraphs minimum)
- Focus on TRANSCENDENT SYNTHESIS, not mere compromise
- Be SPECIFIC and ACTIONABLE
- Return ONLY valid JSON, no markdown formatting

Remember: Tiferet is where opposites unite to create something more beautiful than either alone. True beauty is balanced power.`, scenario, chesedContext, gevurahContext)
}
