package sefirot

import (
	"context"
	"fmt"
	"math"

	"github.com/tikun-labs/sefirot-cli/internal/gateway"
	"github.com/tikun-labs/sefirot-cli/internal/model"
)

// Binah is the third stage: contextual understanding through a
// nine-dimensional analysis, stakeholder mapping, and a cascade of first,
// second, and third order effects.
type Binah struct {
	gw          gateway.Gateway
	temperature float64
}

func NewBinah(gw gateway.Gateway, temperature float64) *Binah {
	return &Binah{gw: gw, temperature: temperature}
}

func (s *Binah) ID() model.StageID { return model.StageBinah }

func (s *Binah) Process(ctx context.Context, scenario string, pctx *model.PipelineContext) *model.StageResult {
	fields, errRes := invoke(ctx, s.gw, model.StageBinah, binahPrompt(scenario, pctx), s.temperature)
	if errRes != nil {
		return errRes
	}

	depth := contextualDepthScore(fields)
	dimensions := listLen(fields, "context_9d")
	stakeholders := listLen(fields, "stakeholders")

	res := model.NewStageResult(model.StageBinah)
	res.Model = s.gw.Model()
	res.RawFields = fields
	res.DerivedMetrics = map[string]any{
		"contextual_depth_score": round2(depth),
		"stakeholder_coverage":   stakeholders,
		"temporal_horizon":       temporalHorizon(fields),
	}
	res.QualityLabel = understandingQuality(depth, dimensions, stakeholders)
	return res
}

// contextualDepthScore returns 0-100 based on dimensional completeness,
// stakeholder coverage, cascade depth, synthesis length, and systemic risk
// count.
func contextualDepthScore(fields map[string]any) float64 {
	score := math.Min(float64(listLen(fields, "context_9d"))/9*40, 40)

	switch n := listLen(fields, "stakeholders"); {
	case n >= 5:
		score += 20
	case n >= 3:
		score += 15
	case n >= 1:
		score += 10
	}

	cascade := submap(fields, "effects_cascade")
	first := listLen(cascade, "first_order")
	second := listLen(cascade, "second_order")
	third := listLen(cascade, "third_order")
	switch {
	case third >= 2 && second >= 2 && first >= 3:
		score += 20
	case second >= 2 && first >= 3:
		score += 15
	case first >= 3:
		score += 10
	}

	switch l := len(str(fields, "synthesis")); {
	case l > 800:
		score += 10
	case l > 500:
		score += 7
	case l > 300:
		score += 5
	}

	score += math.Min(float64(listLen(fields, "systemic_risks"))*5, 10)
	return math.Min(score, 100)
}

// temporalHorizon reports how far into the future the effects cascade
// reaches.
func temporalHorizon(fields map[string]any) string {
	cascade := submap(fields, "effects_cascade")
	first := listLen(cascade, "first_order") > 0
	second := listLen(cascade, "second_order") > 0
	third := listLen(cascade, "third_order") > 0
	switch {
	case first && second && third:
		return "comprehensive (0-20 years)"
	case first && second:
		return "medium-term (0-5 years)"
	case first:
		return "short-term (0-2 years)"
	default:
		return "limited"
	}
}

func understandingQuality(depth float64, dimensions, stakeholders int) string {
	switch {
	case depth >= 80 && dimensions == 9 && stakeholders >= 4:
		return "exceptional"
	case depth >= 65 && dimensions >= 7 && stakeholders >= 3:
		return "high"
	case depth >= 50 && dimensions >= 5:
		return "moderate"
	default:
		return "low"
	}
}

func binahPrompt(scenario string, pctx *model.PipelineContext) string {
	keterContext := ""
	if keter, ok := pctx.GetOK(model.StageKeter); ok {
		keterContext = fmt.Sprintf(`
KETER CONTEXT:
- Alignment Score: %s
- Aligned with Tikun Olam: %t
- Corruption Severity: %s
`,
			metricOr(keter, "alignment_score", "N/A"),
			keter.BoolMetric("manifestation_valid"),
			metricStringOr(keter, "corruption_severity", "N/A"))
	}

	chochmahContext := ""
	if chochmah, ok := pctx.GetOK(model.StageChochmah); ok {
		chochmahContext = fmt.Sprintf(`
CHOCHMAH CONTEXT:
- Key Insights: %s...
- Patterns Identified: %s
- Uncertainties Count: %d
- Wisdom Quality: %s
`,
			joinFirst(chochmah.ListField("insights"), 3, 0),
			joinField(chochmah.ListField("patterns"), "pattern_name", 2, 0),
			len(chochmah.ListField("uncertainties")),
			qualityOr(chochmah, "N/A"))
	}

	return fmt.Sprintf(`You are BINAH (בינה), Understanding - Sefira 3 of the Kabbalistic Tree.

FUNCTION: Deep contextual understanding through 9-dimensional analysis, stakeholder mapping, and effects cascade modeling.

SCENARIO TO ANALYZE:
%s
%s
%s

YOUR TASK:
Provide COMPREHENSIVE CONTEXTUAL UNDERSTANDING of this scenario through systematic multi-dimensional analysis.

CRITICAL PRINCIPLES:
1. **9-DIMENSIONAL CONTEXT ANALYSIS**: Analyze ALL 9 dimensions systematically
2. **STAKEHOLDER MAPPING**: Identify ALL affected parties with impact assessment
3. **EFFECTS CASCADE**: Map 1st → 2nd → 3rd order effects with confidence levels
4. **SYSTEMIC RISKS**: Identify emergent systemic risks beyond individual effects
5. **SYNTHESIS**: Generate coherent understanding integrating all dimensions

THE 9 DIMENSIONS YOU MUST ANALYZE:

1. **Historical Context**: Relevant historical background, precedents, evolution
2. **Cultural Context**: Cultural norms, values, beliefs, sensitivities affected
3. **Economic Context**: Economic systems, incentives, resources, distribution
4. **Political Context**: Power structures, governance, policies, stakeholders
5. **Social Context**: Social dynamics, relationships, community impacts
6. **Technological Context**: Tech capabilities, dependencies, disruptions
7. **Environmental Context**: Environmental impacts, sustainability, resources
8. **Legal/Regulatory Context**: Laws, regulations, compliance, rights
9. **Ethical Context**: Moral principles, values conflicts, dilemmas

RESPONSE (JSON only, no markdown):
{
    "context_9d": [
        {
            "dimension": "Historical Context",
            "analysis": "Detailed analysis of historical dimension (2-3 sentences)",
            "key_factors": ["Factor 1", "Factor 2", "Factor 3"],
            "relevance_score": 8
        },
        {
            "dimension": "Cultural Context",
            "analysis": "Detailed analysis of cultural dimension",
            "key_factors": ["Factor 1", "Factor 2", "Factor 3"],
            "relevance_score": 7
        },
        {
            "dimension": "Economic Context",
            "analysis": "Detailed analysis of economic dimension",
            "key_factors": ["Factor 1", "Factor 2", "Factor 3"],
            "relevance_score": 9
        },
        {
            "dimension": "Political Context",
            "analysis": "Detailed analysis of political dimension",
            "key_factors": ["Factor 1", "Factor 2", "Factor 3"],
            "relevance_score": 8
        },
        {
            "dimension": "Social Context",
            "analysis": "Detailed analysis of social dimension",
            "key_factors": ["Factor 1", "Factor 2", "Factor 3"],
            "relevance_score": 7
        },
        {
            "dimension": "Technological Context",
            "analysis": "Detailed analysis of technological dimension",
            "key_factors": ["Factor 1", "Factor 2", "Factor 3"],
            "relevance_score": 6
        },
        {
            "dimension": "Environmental Context",
            "analysis": "Detailed analysis of environmental dimension",
            "key_factors": ["Factor 1", "Factor 2", "Factor 3"],
            "relevance_score": 5
        },
        {
            "dimension": "Legal/Regulatory Context",
            "analysis": "Detailed analysis of legal/regulatory dimension",
            "key_factors": ["Factor 1", "Factor 2", "Factor 3"],
            "relevance_score": 7
        },
        {
            "dimension": "Ethical Context",
            "analysis": "Detailed analysis of ethical dimension",
            "key_factors": ["Factor 1", "Factor 2", "Factor 3"],
            "relevance_score": 9
        }
    ],

    "stakeholders": [
        {
            "name": "Primary Stakeholder Group 1",
            "description": "Who they are and their role",
            "impact_level": "high/medium/low",
            "impact_type": "positive/negative/mixed",
            "power_level": "high/medium/low",
            "interests": ["Interest 1", "Interest 2"],
            "vulnerabilities": ["Vulnerability 1", "Vulnerability 2"]
        },
        {
            "name": "Primary Stakeholder Group 2",
            "description": "Who they are and their role",
            "impact_level": "high/medium/low",
            "impact_type": "positive/negative/mixed",
            "power_level": "high/medium/low",
            "interests": ["Interest 1", "Interest 2"],
            "vulnerabilities": ["Vulnerability 1", "Vulnerability 2"]
        },
        {
            "name": "Secondary Stakeholder Group",
            "description": "Who they are and their role",
            "impact_level": "medium/low",
            "impact_type": "positive/negative/mixed",
            "power_level": "medium/low",
            "interests": ["Interest 1"],
            "vulnerabilities": ["Vulnerability 1"]
        }
    ],

    "effects_cascade": {
        "first_order": [
            {
                "effect": "Direct immediate effect 1",
                "affected_stakeholders": ["Stakeholder 1", "Stakeholder 2"],
                "timeframe": "Immediate (0-6 months)",
                "confidence": "high/medium/low"
            },
            {
                "effect": "Direct immediate effect 2",
                "affected_stakeholders": ["Stakeholder 3"],
                "timeframe": "Short-term (6-12 months)",
                "confidence": "high/medium/low"
            },
            {
                "effect": "Direct immediate effect 3",
                "affected_stakeholders": ["Stakeholder 4"],
                "timeframe": "Immediate (0-6 months)",
                "confidence": "high/medium/low"
            }
        ],
        "second_order": [
            {
                "effect": "Indirect consequence triggered by 1st order effects",
                "caused_by": "First order effect 1",
                "affected_stakeholders": ["Stakeholder 5"],
                "timeframe": "Medium-term (1-3 years)",
                "confidence": "medium/low"
            },
            {
                "effect": "Systemic response or adaptation",
                "caused_by": "First order effect 2",
                "affected_stakeholders": ["Stakeholder 6"],
                "timeframe": "Medium-term (1-3 years)",
                "confidence": "medium/low"
            }
        ],
        "third_order": [
            {
                "effect": "Emergent cultural/social shift",
                "caused_by": "Second order effects combination",
                "affected_stakeholders": ["Society at large"],
                "timeframe": "Long-term (3-10 years)",
                "confidence": "low"
            },
            {
                "effect": "Paradigm shift or structural transformation",
                "caused_by": "Feedback loops from 2nd order",
                "affected_stakeholders": ["Future generations"],
                "timeframe": "Long-term (5-20 years)",
                "confidence": "low"
            }
        ]
    },

    "systemic_risks": [
        {
            "risk": "Systemic risk 1 (emergent from interactions)",
            "description": "How this systemic risk emerges",
            "severity": "high/medium/low",
            "likelihood": "high/medium/low",
            "affected_systems": ["System 1", "System 2"]
        },
        {
            "risk": "Systemic risk 2 (feedback loops)",
            "description": "How feedback loops create this risk",
            "severity": "high/medium/low",
            "likelihood": "high/medium/low",
            "affected_systems": ["System 3"]
        }
    ],

    "ethical_considerations": [
        {
            "consideration": "Primary ethical consideration",
            "dilemma": "Core ethical dilemma or tension",
            "principles_involved": ["Justice", "Autonomy", "Beneficence"],
            "trade_offs": "What values are in tension"
        },
        {
            "consideration": "Secondary ethical consideration",
            "dilemma": "Additional ethical complexity",
            "principles_involved": ["Equity", "Dignity"],
            "trade_offs": "What must be balanced"
        }
    ],

    "synthesis": "Comprehensive synthesis integrating all 9 dimensions, stakeholder dynamics, effects cascades, and systemic risks. This should provide a HOLISTIC UNDERSTANDING of the scenario in 3-4 paragraphs, revealing how different dimensions interact and influence each other.",

    "contextual_complexity_rating": "low/medium/high/extreme"
}

CRITICAL RULES:
- You MUST analyze ALL 9 dimensions (no exceptions)
- Identify at least 3 stakeholder groups with detailed impact analysis
- Map at least 3 first-order, 2 second-order, and 2 third-order effects
- Identify at least 2 systemic risks (emergent, not just individual effects)
- Synthesis must integrate findings across all dimensions (3-4 paragraphs minimum)
- Return ONLY valid JSON, no markdown formatting

Remember: Understanding requires seeing the WHOLE system, not just isolated parts.`, scenario, keterContext, chochmahContext)
}
