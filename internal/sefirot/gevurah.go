package sefirot

import (
	"context"
	"fmt"
	"math"

	"github.com/tikun-labs/sefirot-cli/internal/gateway"
	"github.com/tikun-labs/sefirot-cli/internal/model"
)

// riskHorizons are the three temporal buckets of the gevurah risk map.
var riskHorizons = []string{"short_term", "medium_term", "long_term"}

// Gevurah is the fifth stage, the restrictive force: risks across three
// temporal horizons, constraints, boundaries, red lines, and failure modes.
type Gevurah struct {
	gw          gateway.Gateway
	temperature float64
}

func NewGevurah(gw gateway.Gateway, temperature float64) *Gevurah {
	return &Gevurah{gw: gw, temperature: temperature}
}

func (s *Gevurah) ID() model.StageID { return model.StageGevurah }

func (s *Gevurah) Process(ctx context.Context, scenario string, pctx *model.PipelineContext) *model.StageResult {
	fields, errRes := invoke(ctx, s.gw, model.StageGevurah, gevurahPrompt(scenario, pctx), s.temperature)
	if errRes != nil {
		return errRes
	}

	severity := severityScore(fields)
	risks := riskCount(fields)
	redLines := listLen(fields, "red_lines")

	res := model.NewStageResult(model.StageGevurah)
	res.Model = s.gw.Model()
	res.RawFields = fields
	res.DerivedMetrics = map[string]any{
		"severity_score":    round2(severity),
		"risk_count":        risks,
		"boundary_strength": boundaryStrength(fields),
	}
	res.QualityLabel = gevurahQuality(severity, risks, redLines)
	return res
}

// riskCount totals the risks across all three horizons.
func riskCount(fields map[string]any) int {
	risks := submap(fields, "risks")
	n := 0
	for _, horizon := range riskHorizons {
		n += listLen(risks, horizon)
	}
	return n
}

// severityScore returns 0-100 based on critical and high risk counts, red
// lines, constraints, failure modes, and mitigation requirements.
func severityScore(fields map[string]any) float64 {
	risks := submap(fields, "risks")
	var critical, high int
	for _, horizon := range riskHorizons {
		for _, r := range list(risks, horizon) {
			m, ok := r.(map[string]any)
			if !ok {
				continue
			}
			switch str(m, "severity") {
			case "critical":
				critical++
			case "high":
				high++
			}
		}
	}

	score := math.Min(float64(critical)*10, 25)
	score += math.Min(float64(high)*5, 15)
	score += math.Min(float64(listLen(fields, "red_lines"))*6.67, 20)
	score += math.Min(float64(listLen(fields, "constraints"))*5, 15)
	score += math.Min(float64(listLen(fields, "failure_modes"))*7.5, 15)
	score += math.Min(float64(listLen(fields, "mitigation_requirements"))*3.33, 10)
	return math.Min(score, 100)
}

func boundaryStrength(fields map[string]any) string {
	total := listLen(fields, "boundaries") + listLen(fields, "red_lines") + listLen(fields, "constraints")
	switch {
	case total >= 10:
		return "very strong (10+ boundaries)"
	case total >= 7:
		return "strong (7-9 boundaries)"
	case total >= 5:
		return "moderate (5-6 boundaries)"
	default:
		return "weak (< 5 boundaries)"
	}
}

func gevurahQuality(severity float64, risks, redLines int) string {
	switch {
	case severity >= 75 && risks >= 7 && redLines >= 3:
		return "exceptional"
	case severity >= 60 && risks >= 5:
		return "high"
	case severity >= 45 && risks >= 3:
		return "moderate"
	default:
		return "low"
	}
}

func gevurahPrompt(scenario string, pctx *model.PipelineContext) string {
	chesedContext := ""
	if chesed, ok := pctx.GetOK(model.StageChesed); ok {
		chesedContext = fmt.Sprintf(`
CHESED CONTEXT (Opportunities/Expansion):
- Opportunities Identified: %s...
- Expansion Score: %s
- Opportunity Count: %s
- Chesed Quality: %s
`,
			joinField(chesed.ListField("opportunities"), "opportunity", 3, 40),
			metricOr(chesed, "expansion_score", "N/A"),
			metricOr(chesed, "opportunity_count", "N/A"),
			qualityOr(chesed, "N/A"))
	}

	binahContext := ""
	if binah, ok := pctx.GetOK(model.StageBinah); ok {
		binahContext = fmt.Sprintf(`
BINAH CONTEXT (Understanding):
- Systemic Risks Identified: %s...
- Contextual Depth: %s
`,
			joinField(binah.ListField("systemic_risks"), "risk", 2, 40),
			metricOr(binah, "contextual_depth_score", "N/A"))
	}

	return fmt.Sprintf(`You are GEVURAH (גבורה), Severity/Judgment - Sefira 5 of the Kabbalistic Tree.

FUNCTION: Identify risks, constraints, boundaries, and necessary limitations through rigorous critical analysis.

SCENARIO TO ANALYZE:
%s
%s
%s

YOUR TASK:
Provide COMPREHENSIVE RISK AND CONSTRAINT ANALYSIS from the perspective of GEVURAH - the restrictive force that sets boundaries, identifies dangers, and establishes necessary limits.

CRITICAL PRINCIPLES:
1. **MULTI-TEMPORAL RISK ANALYSIS**: Identify risks across short, medium, and long-term horizons
2. **CONSTRAINT IDENTIFICATION**: Map necessary constraints and limitations
3. **BOUNDARY SETTING**: Establish hard boundaries that must not be crossed
4. **RED LINES**: Define ethical and practical red lines
5. **FAILURE MODES**: Anticipate ways this could fail catastrophically

IMPORTANT: While Chesed focuses on opportunities and expansion, YOU focus on what could go wrong, what limits are needed, and where boundaries must be drawn. This is not pessimism - it's PRUDENT JUDGMENT.

RESPONSE (JSON only, no markdown):
{
    "risks": {
        "short_term": [
            {
                "risk": "Specific short-term risk (0-2 years)",
                "description": "Detailed description of the risk",
                "likelihood": "high/medium/low",
                "severity": "critical/high/medium/low",
                "affected_stakeholders": ["Stakeholder 1", "Stakeholder 2"],
                "indicators": ["Early warning sign 1", "Early warning sign 2"]
            },
            {
                "risk": "Another short-term risk",
                "description": "Description",
                "likelihood": "high/medium/low",
                "severity": "critical/high/medium/low",
                "affected_stakeholders": ["Stakeholder 3"],
                "indicators": ["Warning sign"]
            },
            {
                "risk": "Third short-term risk",
                "description": "Description",
                "likelihood": "high/medium/low",
                "severity": "critical/high/medium/low",
                "affected_stakeholders": ["Stakeholder 4"],
                "indicators": ["Warning sign"]
            }
        ],
        "medium_term": [
            {
                "risk": "Medium-term risk (2-5 years)",
                "description": "Detailed description",
                "likelihood": "high/medium/low",
                "severity": "critical/high/medium/low",
                "affected_stakeholders": ["Stakeholder 5"],
                "indicators": ["Warning sign 1", "Warning sign 2"]
            },
            {
                "risk": "Another medium-term risk",
                "description": "Description",
                "likelihood": "high/medium/low",
                "severity": "critical/high/medium/low",
                "affected_stakeholders": ["Stakeholder 6"],
                "indicators": ["Warning sign"]
            }
        ],
        "long_term": [
            {
                "risk": "Long-term existential/structural risk (5+ years)",
                "description": "Detailed description of long-term risk",
                "likelihood": "medium/low",
                "severity": "critical/high",
                "affected_stakeholders": ["Future generations", "Society"],
                "indicators": ["Structural indicator 1", "Trend indicator 2"]
            },
            {
                "risk": "Another long-term risk",
                "description": "Description",
                "likelihood": "medium/low",
                "severity": "critical/high",
                "affected_stakeholders": ["Global systems"],
                "indicators": ["Indicator"]
            }
        ]
    },

    "constraints": [
        {
            "constraint": "Necessary constraint #1",
            "rationale": "Why this constraint is necessary",
            "type": "resource/regulatory/technical/ethical/social",
            "flexibility": "hard/moderate/soft",
            "consequences_if_violated": "What happens if this constraint is not respected"
        },
        {
            "constraint": "Necessary constraint #2",
            "rationale": "Why this is needed",
            "type": "resource/regulatory/technical/ethical/social",
            "flexibility": "hard/moderate/soft",
            "consequences_if_violated": "Consequences"
        },
        {
            "constraint": "Necessary constraint #3",
            "rationale": "Rationale",
            "type": "resource/regulatory/technical/ethical/social",
            "flexibility": "hard/moderate/soft",
            "consequences_if_violated": "Consequences"
        }
    ],

    "boundaries": [
        {
            "boundary": "Hard boundary #1 - absolute limit",
            "description": "What this boundary protects",
            "justification": "Why this boundary is non-negotiable",
            "monitoring": "How to monitor compliance with this boundary"
        },
        {
            "boundary": "Hard boundary #2",
            "description": "What this protects",
            "justification": "Why non-negotiable",
            "monitoring": "How to monitor"
        }
    ],

    "red_lines": [
        {
            "red_line": "Ethical red line #1 - MUST NOT be crossed",
            "category": "ethical/legal/safety/human-rights",
            "rationale": "Why this is a red line",
            "consequences": "What happens if crossed",
            "detection": "How to detect if approaching this red line"
        },
        {
            "red_line": "Ethical red line #2",
            "category": "ethical/legal/safety/human-rights",
            "rationale": "Why this is a red line",
            "consequences": "Consequences if crossed",
            "detection": "How to detect"
        },
        {
            "red_line": "Practical red line #3",
            "category": "ethical/legal/safety/human-rights",
            "rationale": "Rationale",
            "consequences": "Consequences",
            "detection": "Detection method"
        }
    ],

    "failure_modes": [
        {
            "failure_mode": "Catastrophic failure scenario #1",
            "description": "How this failure would unfold",
            "probability": "high/medium/low",
            "impact": "catastrophic/severe/moderate",
            "prevention": "How to prevent this failure mode"
        },
        {
            "failure_mode": "Failure scenario #2",
            "description": "How this unfolds",
            "probability": "high/medium/low",
            "impact": "catastrophic/severe/moderate",
            "prevention": "Prevention strategy"
        }
    ],

    "mitigation_requirements": [
        {
            "requirement": "Specific mitigation requirement #1",
            "addresses_risks": ["Risk 1", "Risk 2"],
            "priority": "critical/high/medium/low",
            "implementation_complexity": "high/medium/low"
        },
        {
            "requirement": "Mitigation requirement #2",
            "addresses_risks": ["Risk 3"],
            "priority": "critical/high/medium/low",
            "implementation_complexity": "high/medium/low"
        },
        {
            "requirement": "Mitigation requirement #3",
            "addresses_risks": ["Risk 4"],
            "priority": "critical/high/medium/low",
            "implementation_complexity": "high/medium/low"
        }
    ],

    "guardrails": "Paragraph describing the ESSENTIAL GUARDRAILS that must be in place. What systems, processes, or safeguards are absolutely necessary to prevent catastrophic outcomes? What ongoing monitoring is required?",

    "overall_risk_level": "critical/high/medium/low"
}

CRITICAL RULES:
- Identify at least 3 short-term, 2 medium-term, and 2 long-term risks
- Define at least 3 necessary constraints with clear rationale
- Establish at least 2 hard boundaries
- Define at least 3 red lines (ethical/practical limits that must not be crossed)
- Identify at least 2 failure modes
- Provide at least 3 mitigation requirements
- Be SPECIFIC and RIGOROUS, not vague
- Focus on WHAT COULD GO WRONG (this is Gevurah - the restrictive force)
- Use LOW temperature thinking - be precise and careful
- Return ONLY valid JSON, no markdown formatting

Remember: Gevurah establishes necessary limits. Expansion without boundaries leads to chaos.`, scenario, chesedContext, binahContext)
}
