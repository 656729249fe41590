package sefirot

import (
	"context"
	"fmt"
	"math"

	"github.com/tikun-labs/sefirot-cli/internal/gateway"
	"github.com/tikun-labs/sefirot-cli/internal/model"
)

// Chesed is the fourth stage, the expansive force: opportunities, benefits
// per stakeholder, and generative potential.
type Chesed struct {
	gw          gateway.Gateway
	temperature float64
}

func NewChesed(gw gateway.Gateway, temperature float64) *Chesed {
	return &Chesed{gw: gw, temperature: temperature}
}

func (s *Chesed) ID() model.StageID { return model.StageChesed }

func (s *Chesed) Process(ctx context.Context, scenario string, pctx *model.PipelineContext) *model.StageResult {
	fields, errRes := invoke(ctx, s.gw, model.StageChesed, chesedPrompt(scenario, pctx), s.temperature)
	if errRes != nil {
		return errRes
	}

	expansion := expansionScore(fields)
	opportunities := listLen(fields, "opportunities")
	synergies := listLen(fields, "synergies")

	res := model.NewStageResult(model.StageChesed)
	res.Model = s.gw.Model()
	res.RawFields = fields
	res.DerivedMetrics = map[string]any{
		"expansion_score":   round2(expansion),
		"opportunity_count": opportunities,
		"benefit_coverage":  benefitCoverage(fields),
	}
	res.QualityLabel = chesedQuality(expansion, opportunities, synergies)
	return res
}

// expansionScore returns 0-100 based on opportunity count and impact,
// benefit coverage, growth areas, abundance statements, and synergies.
func expansionScore(fields map[string]any) float64 {
	opportunities := list(fields, "opportunities")
	highImpact := 0
	for _, o := range opportunities {
		if m, ok := o.(map[string]any); ok && str(m, "potential_impact") == "high" {
			highImpact++
		}
	}

	score := math.Min(float64(len(opportunities))*5, 20)
	score += math.Min(float64(highImpact)*5, 10)
	score += math.Min(float64(stakeholderBenefits(fields))*3, 25)
	score += math.Min(float64(listLen(submap(fields, "expansion_potential"), "areas_for_growth"))*10, 20)
	score += math.Min(float64(listLen(fields, "abundance_mindset"))*3.75, 15)
	score += math.Min(float64(listLen(fields, "synergies"))*5, 10)
	return math.Min(score, 100)
}

// stakeholderBenefits counts the specific benefits across all stakeholder
// groups.
func stakeholderBenefits(fields map[string]any) int {
	n := 0
	for _, b := range list(fields, "benefits_by_stakeholder") {
		if m, ok := b.(map[string]any); ok {
			n += listLen(m, "specific_benefits")
		}
	}
	return n
}

func benefitCoverage(fields map[string]any) string {
	switch n := listLen(fields, "benefits_by_stakeholder"); {
	case n >= 5:
		return "comprehensive (5+ groups)"
	case n >= 3:
		return "broad (3-4 groups)"
	case n >= 1:
		return "focused (1-2 groups)"
	default:
		return "limited"
	}
}

func chesedQuality(expansion float64, opportunities, synergies int) string {
	switch {
	case expansion >= 80 && opportunities >= 5 && synergies >= 2:
		return "exceptional"
	case expansion >= 65 && opportunities >= 4:
		return "high"
	case expansion >= 50 && opportunities >= 3:
		return "moderate"
	default:
		return "low"
	}
}

func chesedPrompt(scenario string, pctx *model.PipelineContext) string {
	binahContext := ""
	if binah, ok := pctx.GetOK(model.StageBinah); ok {
		binahContext = fmt.Sprintf(`
BINAH CONTEXT (Understanding):
- Stakeholders Identified: %s
- Contextual Depth Score: %s
- Temporal Horizon: %s
- Synthesis Snippet: %s...
`,
			joinField(binah.ListField("stakeholders"), "name", 3, 0),
			metricOr(binah, "contextual_depth_score", "N/A"),
			metricStringOr(binah, "temporal_horizon", "N/A"),
			truncate(binah.StringField("synthesis"), 400))
	}

	return fmt.Sprintf(`You are CHESED (חסד), Mercy/Loving-kindness - Sefira 4 of the Kabbalistic Tree.

FUNCTION: Identify opportunities, benefits, and positive expansion potential through the lens of abundance and generosity.

SCENARIO TO ANALYZE:
%s
%s

YOUR TASK:
Provide COMPREHENSIVE OPPORTUNITY ANALYSIS from the perspective of CHESED - the expansive force of generosity, growth, and positive potential.

CRITICAL PRINCIPLES:
1. **OPPORTUNITY IDENTIFICATION**: Find ALL opportunities for positive impact, growth, and benefit
2. **BENEFIT MAPPING**: Map benefits to specific stakeholders with detail
3. **EXPANSION POTENTIAL**: Identify areas where expansion would create value
4. **ABUNDANCE MINDSET**: Think generatively - what new possibilities could emerge?
5. **SYNERGIES**: Find synergies between different opportunities

RESPONSE (JSON only, no markdown):
{
    "opportunities": [
        {
            "opportunity": "Specific opportunity #1",
            "description": "What this opportunity entails in detail",
            "potential_impact": "high/medium/low",
            "timeframe": "immediate/short-term/medium-term/long-term",
            "feasibility": "high/medium/low",
            "beneficiaries": ["Stakeholder group 1", "Stakeholder group 2"],
            "success_indicators": ["Measurable indicator 1", "Measurable indicator 2"]
        },
        {
            "opportunity": "Specific opportunity #2",
            "description": "What this opportunity entails",
            "potential_impact": "high/medium/low",
            "timeframe": "immediate/short-term/medium-term/long-term",
            "feasibility": "high/medium/low",
            "beneficiaries": ["Stakeholder group 3"],
            "success_indicators": ["Measurable indicator 1", "Measurable indicator 2"]
        },
        {
            "opportunity": "Specific opportunity #3",
            "description": "What this opportunity entails",
            "potential_impact": "high/medium/low",
            "timeframe": "immediate/short-term/medium-term/long-term",
            "feasibility": "high/medium/low",
            "beneficiaries": ["Stakeholder group 4"],
            "success_indicators": ["Measurable indicator 1"]
        },
        {
            "opportunity": "Specific opportunity #4",
            "description": "What this opportunity entails",
            "potential_impact": "high/medium/low",
            "timeframe": "immediate/short-term/medium-term/long-term",
            "feasibility": "high/medium/low",
            "beneficiaries": ["Stakeholder group 5"],
            "success_indicators": ["Measurable indicator 1"]
        },
        {
            "opportunity": "Specific opportunity #5",
            "description": "What this opportunity entails",
            "potential_impact": "high/medium/low",
            "timeframe": "immediate/short-term/medium-term/long-term",
            "feasibility": "high/medium/low",
            "beneficiaries": ["Stakeholder group 6"],
            "success_indicators": ["Measurable indicator 1"]
        }
    ],

    "benefits_by_stakeholder": [
        {
            "stakeholder_group": "Stakeholder Group 1",
            "specific_benefits": [
                {
                    "benefit": "Specific tangible benefit",
                    "type": "economic/social/health/educational/environmental/political",
                    "magnitude": "transformative/significant/moderate/minor",
                    "confidence": "high/medium/low"
                },
                {
                    "benefit": "Another specific benefit",
                    "type": "economic/social/health/educational/environmental/political",
                    "magnitude": "transformative/significant/moderate/minor",
                    "confidence": "high/medium/low"
                }
            ],
            "aggregate_impact": "Overall positive impact on this stakeholder group"
        },
        {
            "stakeholder_group": "Stakeholder Group 2",
            "specific_benefits": [
                {
                    "benefit": "Specific benefit for this group",
                    "type": "economic/social/health/educational/environmental/political",
                    "magnitude": "transformative/significant/moderate/minor",
                    "confidence": "high/medium/low"
                }
            ],
            "aggregate_impact": "Overall positive impact on this stakeholder group"
        },
        {
            "stakeholder_group": "Society at Large",
            "specific_benefits": [
                {
                    "benefit": "Systemic benefit to society",
                    "type": "social/environmental/political",
                    "magnitude": "transformative/significant/moderate/minor",
                    "confidence": "medium/low"
                }
            ],
            "aggregate_impact": "Broad societal benefit"
        }
    ],

    "expansion_potential": {
        "areas_for_growth": [
            {
                "area": "Specific area where expansion is possible",
                "current_state": "Description of current state",
                "expansion_path": "How to expand from current to desired state",
                "value_created": "What value expansion would create"
            },
            {
                "area": "Another area for expansion",
                "current_state": "Description of current state",
                "expansion_path": "How to expand",
                "value_created": "Value created"
            }
        ],
        "scalability_potential": "Assessment of how scalable the scenario/intervention is",
        "multiplicative_effects": "How benefits might multiply over time or across domains"
    },

    "abundance_mindset": [
        "Generative possibility #1 - something NEW that could emerge",
        "Generative possibility #2 - unexpected positive outcome",
        "Generative possibility #3 - long-term transformation potential",
        "Generative possibility #4 - catalyst effect (triggering other positive changes)"
    ],

    "synergies": [
        {
            "synergy": "Synergy between opportunities X and Y",
            "description": "How these opportunities reinforce each other",
            "amplification_factor": "How much more value is created together vs separately"
        },
        {
            "synergy": "Another synergy",
            "description": "How these opportunities reinforce each other",
            "amplification_factor": "Additional value created"
        }
    ],

    "generative_possibilities": "Paragraph describing the GENERATIVE POTENTIAL of this scenario. What new possibilities, innovations, or transformations could emerge if this is pursued with abundance mindset? Think beyond direct benefits to cascading positive effects.",

    "expansion_rating": "low/moderate/high/exceptional"
}

CRITICAL RULES:
- Identify at least 5 concrete opportunities with clear success indicators
- Map benefits to at least 3 stakeholder groups
- Identify at least 2 areas for expansion
- Provide at least 4 generative possibilities (abundance mindset)
- Find at least 2 synergies between opportunities
- Be SPECIFIC and CONCRETE, not vague or generic
- Focus on POSITIVE POTENTIAL (this is Chesed - the expansive force)
- Return ONLY valid JSON, no markdown formatting

Remember: Chesed sees possibilities where others see limitations. Abundance, not scarcity.`, scenario, binahContext)
}
