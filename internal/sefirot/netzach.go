package sefirot

import (
	"context"
	"fmt"
	"math"

	"github.com/tikun-labs/sefirot-cli/internal/gateway"
	"github.com/tikun-labs/sefirot-cli/internal/model"
)

// Netzach is the seventh stage: the implementation strategy that turns the
// balanced path into phased execution with milestones, persistence
// requirements, and resilience planning.
type Netzach struct {
	gw          gateway.Gateway
	temperature float64
}

func NewNetzach(gw gateway.Gateway, temperature float64) *Netzach {
	return &Netzach{gw: gw, temperature: temperature}
}

func (s *Netzach) ID() model.StageID { return model.StageNetzach }

func (s *Netzach) Process(ctx context.Context, scenario string, pctx *model.PipelineContext) *model.StageResult {
	fields, errRes := invoke(ctx, s.gw, model.StageNetzach, netzachPrompt(scenario, pctx), s.temperature)
	if errRes != nil {
		return errRes
	}

	persistence := persistenceScore(fields)
	phases := listLen(fields, "implementation_phases")
	milestones := listLen(fields, "milestones")

	res := model.NewStageResult(model.StageNetzach)
	res.Model = s.gw.Model()
	res.RawFields = fields
	res.DerivedMetrics = map[string]any{
		"persistence_score": round2(persistence),
		"milestone_count":   milestones,
		"resilience_rating": resilienceRating(fields),
	}
	res.QualityLabel = netzachQuality(persistence, phases, milestones)
	return res
}

// persistenceScore returns 0-100 based on phases, milestones, persistence
// requirements, planned obstacles, and momentum builders.
func persistenceScore(fields map[string]any) float64 {
	score := math.Min(float64(listLen(fields, "implementation_phases"))*6.25, 25)
	score += math.Min(float64(listLen(fields, "milestones"))*6.25, 25)
	score += math.Min(float64(listLen(fields, "persistence_requirements"))*6.67, 20)
	score += math.Min(float64(listLen(submap(fields, "resilience_planning"), "common_obstacles"))*6.67, 20)
	score += math.Min(float64(listLen(fields, "momentum_builders"))*2, 10)
	return math.Min(score, 100)
}

// resilienceRating grades the resilience plan by obstacle coverage and the
// depth of the recovery and adaptation texts.
func resilienceRating(fields map[string]any) string {
	plan := submap(fields, "resilience_planning")
	obstacles := listLen(plan, "common_obstacles")
	recovery := len(str(plan, "setback_recovery")) > 100
	adaptation := len(str(plan, "adaptation_mechanisms")) > 100

	switch {
	case obstacles >= 3 && recovery && adaptation:
		return "very high"
	case obstacles >= 2 && (recovery || adaptation):
		return "high"
	case obstacles >= 1:
		return "moderate"
	default:
		return "low"
	}
}

func netzachQuality(persistence float64, phases, milestones int) string {
	switch {
	case persistence >= 80 && phases >= 4 && milestones >= 4:
		return "exceptional"
	case persistence >= 65 && phases >= 3:
		return "high"
	case persistence >= 50 && phases >= 2:
		return "moderate"
	default:
		return "low"
	}
}

func netzachPrompt(scenario string, pctx *model.PipelineContext) string {
	tiferetContext := ""
	if tiferet, ok := pctx.GetOK(model.StageTiferet); ok {
		path := tiferet.MapField("optimal_path")
		tiferetContext = fmt.Sprintf(`
TIFERET CONTEXT (Balanced Synthesis):
- Strategic Direction: %s
- Harmony Score: %s
- Synthesis Quality: %s
- Balance Ratio: %s
`,
			truncate(strOr(path, "strategic_direction", "N/A"), 200),
			metricOr(tiferet, "harmony_score", "N/A"),
			qualityOr(tiferet, "N/A"),
			metricStringOr(tiferet, "balance_ratio", "N/A"))
	}

	return fmt.Sprintf(`You are NETZACH (נצח), Victory/Endurance - Sefira 7 of the Kabbalistic Tree.

FUNCTION: Create robust implementation strategy with persistence, momentum, and resilience to achieve victory over obstacles.

SCENARIO TO ANALYZE:
%s
%s

YOUR TASK:
Develop COMPREHENSIVE IMPLEMENTATION STRATEGY that ensures the balanced path from Tiferet is actually executed with endurance and resilience.

CRITICAL PRINCIPLES:
1. **STRATEGIC PLANNING**: Break down execution into clear phases with milestones
2. **PERSISTENCE**: Identify what's needed to maintain momentum over time
3. **RESILIENCE**: Plan for obstacles, setbacks, and how to overcome them
4. **MOMENTUM BUILDING**: Create positive feedback loops that sustain effort
5. **VICTORY MINDSET**: Focus on HOW to win, not just what to do

IMPORTANT: Tiferet provided the WHAT (balanced path). You provide the HOW (execution strategy) with emphasis on endurance and overcoming resistance.

RESPONSE (JSON only, no markdown):
{
    "implementation_strategy": "Comprehensive paragraph describing overall implementation approach. How do we execute Tiferet's balanced path? What's the core strategy for achieving victory? What makes this approach robust and sustainable?",

    "implementation_phases": [
        {
            "phase": "Phase 1: Foundation Building",
            "timeframe": "Months 1-3",
            "primary_objectives": ["Objective 1", "Objective 2", "Objective 3"],
            "key_activities": ["Activity 1", "Activity 2", "Activity 3"],
            "success_metrics": ["Metric 1", "Metric 2"],
            "critical_success_factors": ["Factor 1", "Factor 2"],
            "anticipated_challenges": ["Challenge 1", "Challenge 2"]
        },
        {
            "phase": "Phase 2: Momentum Building",
            "timeframe": "Months 4-8",
            "primary_objectives": ["Objective 1", "Objective 2"],
            "key_activities": ["Activity 1", "Activity 2", "Activity 3"],
            "success_metrics": ["Metric 1", "Metric 2"],
            "critical_success_factors": ["Factor 1", "Factor 2"],
            "anticipated_challenges": ["Challenge 1", "Challenge 2"]
        },
        {
            "phase": "Phase 3: Scaling & Consolidation",
            "timeframe": "Months 9-18",
            "primary_objectives": ["Objective 1", "Objective 2"],
            "key_activities": ["Activity 1", "Activity 2"],
            "success_metrics": ["Metric 1", "Metric 2"],
            "critical_success_factors": ["Factor 1"],
            "anticipated_challenges": ["Challenge 1"]
        },
        {
            "phase": "Phase 4: Sustained Victory",
            "timeframe": "18+ months",
            "primary_objectives": ["Objective 1"],
            "key_activities": ["Activity 1", "Activity 2"],
            "success_metrics": ["Metric 1"],
            "critical_success_factors": ["Factor 1"],
            "anticipated_challenges": ["Challenge 1"]
        }
    ],

    "milestones": [
        {
            "milestone": "Major milestone #1",
            "target_date": "Month 3",
            "success_criteria": ["Criterion 1", "Criterion 2", "Criterion 3"],
            "dependencies": ["Dependency 1", "Dependency 2"],
            "verification_method": "How to verify achievement",
            "importance": "critical/high/medium"
        },
        {
            "milestone": "Major milestone #2",
            "target_date": "Month 6",
            "success_criteria": ["Criterion 1", "Criterion 2"],
            "dependencies": ["Dependency 1"],
            "verification_method": "Verification method",
            "importance": "critical/high/medium"
        },
        {
            "milestone": "Major milestone #3",
            "target_date": "Month 12",
            "success_criteria": ["Criterion 1", "Criterion 2"],
            "dependencies": ["Dependency 1"],
            "verification_method": "Verification method",
            "importance": "critical/high/medium"
        },
        {
            "milestone": "Major milestone #4",
            "target_date": "Month 18",
            "success_criteria": ["Criterion 1"],
            "dependencies": [],
            "verification_method": "Verification method",
            "importance": "high/medium"
        }
    ],

    "persistence_requirements": [
        {
            "requirement": "Organizational commitment requirement",
            "description": "What organizational support is needed to sustain effort",
            "type": "leadership/resources/culture/governance",
            "criticality": "critical/high/medium",
            "how_to_secure": "How to obtain and maintain this requirement"
        },
        {
            "requirement": "Resource persistence requirement",
            "description": "What resources must be sustained over time",
            "type": "leadership/resources/culture/governance",
            "criticality": "critical/high/medium",
            "how_to_secure": "How to ensure continuous availability"
        },
        {
            "requirement": "Cultural/mindset requirement",
            "description": "What attitudes/beliefs must persist",
            "type": "leadership/resources/culture/governance",
            "criticality": "critical/high/medium",
            "how_to_secure": "How to cultivate and maintain"
        }
    ],

    "resilience_planning": {
        "common_obstacles": [
            {
                "obstacle": "Likely obstacle #1",
                "probability": "high/medium/low",
                "impact": "high/medium/low",
                "mitigation_strategy": "How to prevent or minimize",
                "response_plan": "What to do if it happens"
            },
            {
                "obstacle": "Likely obstacle #2",
                "probability": "high/medium/low",
                "impact": "high/medium/low",
                "mitigation_strategy": "Prevention strategy",
                "response_plan": "Response if occurs"
            },
            {
                "obstacle": "Likely obstacle #3",
                "probability": "high/medium/low",
                "impact": "high/medium/low",
                "mitigation_strategy": "Prevention",
                "response_plan": "Response"
            }
        ],
        "setback_recovery": "Paragraph on how to recover from major setbacks. What systems ensure we can get back on track? What's the reset protocol?",
        "adaptation_mechanisms": "How the strategy adapts based on feedback. What triggers adaptations? How do we learn and adjust?"
    },

    "momentum_builders": [
        "Early win that builds confidence and support",
        "Feedback loop that reinforces progress",
        "Visibility mechanism that maintains stakeholder engagement",
        "Celebration/recognition system that sustains motivation",
        "Incremental improvement system that compounds over time"
    ],

    "long_term_sustainability": "Paragraph describing how this initiative becomes self-sustaining over time. What makes it durable beyond initial implementation? What institutional mechanisms ensure continuation? How does it become 'the new normal'?",

    "victory_indicators": [
        "Clear indicator that victory has been achieved",
        "Another victory indicator",
        "Third success indicator"
    ]
}

CRITICAL RULES:
- Define at least 4 implementation phases with clear objectives
- Establish at least 4 major milestones with success criteria
- Identify at least 3 persistence requirements
- Plan for at least 3 common obstacles with mitigation strategies
- Provide at least 5 momentum builders
- Implementation strategy must be comprehensive (2-3 paragraphs)
- Focus on ENDURANCE and RESILIENCE, not just initial execution
- Be SPECIFIC and ACTIONABLE
- Return ONLY valid JSON, no markdown formatting

Remember: Netzach is about sustained effort leading to victory. Plans fail without persistence.`, scenario, tiferetContext)
}
