package sefirot

import (
	"context"
	"fmt"
	"math"

	"github.com/tikun-labs/sefirot-cli/internal/gateway"
	"github.com/tikun-labs/sefirot-cli/internal/model"
)

// resourceCategories are the four buckets of the malchut resource plan.
var resourceCategories = []string{"human_resources", "financial_resources", "technological_resources", "physical_resources"}

// Malchut is the tenth and final stage: the concrete action plan. It turns
// the verified foundation into immediate actions, phases, resources,
// timeline, and the single first step to take in the next 24 hours.
type Malchut struct {
	gw          gateway.Gateway
	temperature float64
}

func NewMalchut(gw gateway.Gateway, temperature float64) *Malchut {
	return &Malchut{gw: gw, temperature: temperature}
}

func (s *Malchut) ID() model.StageID { return model.StageMalchut }

func (s *Malchut) Process(ctx context.Context, scenario string, pctx *model.PipelineContext) *model.StageResult {
	fields, errRes := invoke(ctx, s.gw, model.StageMalchut, malchutPrompt(scenario, pctx), s.temperature)
	if errRes != nil {
		return errRes
	}

	manifestation := manifestationScore(fields)
	immediate := listLen(fields, "immediate_actions")
	milestones := listLen(submap(fields, "timeline"), "key_milestones")

	res := model.NewStageResult(model.StageMalchut)
	res.Model = s.gw.Model()
	res.RawFields = fields
	res.DerivedMetrics = map[string]any{
		"manifestation_score": round2(manifestation),
		"action_count":        immediate,
		"feasibility_rating":  feasibilityRating(fields),
	}
	res.QualityLabel = malchutQuality(manifestation, immediate, milestones)
	return res
}

// manifestationScore returns 0-100 based on how concrete the plan is:
// immediate actions, phases, resource coverage, milestones, metrics, and
// the specificity of the first step.
func manifestationScore(fields map[string]any) float64 {
	score := math.Min(float64(listLen(fields, "immediate_actions"))*6.25, 25)
	score += math.Min(float64(listLen(fields, "action_plan"))*6.67, 20)

	resources := submap(fields, "resource_requirements")
	categories := 0
	for _, k := range resourceCategories {
		if _, ok := resources[k]; ok {
			categories++
		}
	}
	score += math.Min(float64(categories)*5, 20)

	score += math.Min(float64(listLen(submap(fields, "timeline"), "key_milestones"))*5, 15)
	score += math.Min(float64(listLen(fields, "success_metrics"))*3.33, 10)

	switch l := len(str(fields, "first_step")); {
	case l > 100:
		score += 10
	case l > 50:
		score += 6
	case l > 20:
		score += 3
	}
	return math.Min(score, 100)
}

// feasibilityRating grades how executable the plan is right now.
func feasibilityRating(fields map[string]any) string {
	immediate := list(fields, "immediate_actions")
	hasResources := len(submap(fields, "resource_requirements")) >= 2
	hasFirstStep := len(str(fields, "first_step")) > 50

	owners := 0
	for _, a := range immediate {
		if m, ok := a.(map[string]any); ok && str(m, "owner") != "" {
			owners++
		}
	}

	switch {
	case len(immediate) >= 4 && hasResources && hasFirstStep && owners >= 3:
		return "immediately executable"
	case len(immediate) >= 3 && (hasResources || hasFirstStep):
		return "executable with minor preparation"
	case len(immediate) >= 2:
		return "requires preparation"
	default:
		return "needs further planning"
	}
}

func malchutQuality(manifestation float64, immediate, milestones int) string {
	switch {
	case manifestation >= 85 && immediate >= 4 && milestones >= 3:
		return "exceptional"
	case manifestation >= 70 && immediate >= 3:
		return "high"
	case manifestation >= 55 && immediate >= 2:
		return "moderate"
	default:
		return "low"
	}
}

func malchutPrompt(scenario string, pctx *model.PipelineContext) string {
	yesodContext := ""
	if yesod, ok := pctx.GetOK(model.StageYesod); ok {
		readiness := yesod.MapField("readiness_verification")
		recommendation := yesod.MapField("go_no_go_recommendation")
		yesodContext = fmt.Sprintf(`
YESOD CONTEXT (Integration & Readiness):
- Readiness Score: %s
- Integration Quality: %s
- Readiness Decision: %s
- Key Strengths: %s
- Key Gaps: %s
- Ethical Readiness: %s
- Strategic Readiness: %s
`,
			metricOr(yesod, "readiness_score", "N/A"),
			metricStringOr(yesod, "integration_quality", "N/A"),
			strOr(recommendation, "decision", "N/A"),
			joinField(yesod.ListField("strengths_confirmed"), "strength", 3, 0),
			joinField(yesod.ListField("gaps_identified"), "gap", 3, 0),
			strOr(submap(readiness, "ethical_readiness"), "status", "N/A"),
			strOr(submap(readiness, "strategic_readiness"), "status", "N/A"))
	}

	return fmt.Sprintf(`You are MALCHUT (מלכות), Kingdom/Manifestation - Sefira 10 of the Kabbalistic Tree.

FUNCTION: Convert all analysis into CONCRETE ACTION PLAN that manifests in physical reality. You are the final step - where wisdom becomes deed.

SCENARIO TO ANALYZE:
%s
%s

YOUR TASK:
Create COMPREHENSIVE ACTION PLAN that is IMMEDIATELY EXECUTABLE. This is where theory meets practice.

CRITICAL PRINCIPLES:
1. **CONCRETE**: Every action must be specific, measurable, actionable
2. **IMMEDIATE**: Define what happens in the next 24 hours, 7 days, 30 days
3. **RESOURCED**: Specify exactly what/who/when/where/how much
4. **TRACKABLE**: Clear success metrics and accountability
5. **GROUNDED**: Must work in REAL WORLD with real constraints

IMPORTANT: Yesod verified readiness. You now convert that readiness into ACTION. Every action must be implementable TODAY.

RESPONSE (JSON only, no markdown):
{
    "executive_summary": "Comprehensive 2-3 paragraph summary of the ENTIRE plan. What are we doing? Why now? What's the expected outcome? What makes this plan executable?",

    "go_no_go_decision": {
        "decision": "GO/NO-GO/CONDITIONAL_GO",
        "confidence_level": "very high/high/moderate/low",
        "rationale": "Why this decision now based on Yesod readiness assessment",
        "conditions_if_conditional": ["Condition 1 that must be met", "Condition 2"],
        "timeline_to_decision": "If conditional, when to make final GO/NO-GO"
    },

    "immediate_actions": [
        {
            "action": "Specific immediate action #1 (within 24-48 hours)",
            "owner": "Who is responsible (role/person)",
            "deadline": "Exact deadline (YYYY-MM-DD HH:MM)",
            "resources_needed": ["Resource 1", "Resource 2"],
            "deliverable": "What concrete output/result",
            "why_now": "Why this must happen immediately",
            "estimated_effort": "X hours/days",
            "dependencies": ["Dependency 1 if any"]
        },
        {
            "action": "Immediate action #2 (within 7 days)",
            "owner": "Responsible party",
            "deadline": "Deadline",
            "resources_needed": ["Resources"],
            "deliverable": "Deliverable",
            "why_now": "Why immediate",
            "estimated_effort": "Effort",
            "dependencies": []
        },
        {
            "action": "Immediate action #3 (within 30 days)",
            "owner": "Owner",
            "deadline": "Deadline",
            "resources_needed": ["Resources"],
            "deliverable": "Deliverable",
            "why_now": "Why now",
            "estimated_effort": "Effort",
            "dependencies": []
        },
        {
            "action": "Immediate action #4",
            "owner": "Owner",
            "deadline": "Deadline",
            "resources_needed": ["Resources"],
            "deliverable": "Deliverable",
            "why_now": "Why important now",
            "estimated_effort": "Effort",
            "dependencies": []
        }
    ],

    "action_plan": [
        {
            "phase": "Phase 1: Foundation (Months 1-3)",
            "objective": "Clear objective for this phase",
            "actions": [
                {
                    "action": "Specific action 1.1",
                    "owner": "Owner",
                    "deadline": "YYYY-MM-DD",
                    "success_criteria": ["Criterion 1", "Criterion 2"],
                    "resources": ["Resource 1", "Resource 2"]
                },
                {
                    "action": "Action 1.2",
                    "owner": "Owner",
                    "deadline": "Date",
                    "success_criteria": ["Criterion"],
                    "resources": ["Resource"]
                },
                {
                    "action": "Action 1.3",
                    "owner": "Owner",
                    "deadline": "Date",
                    "success_criteria": ["Criterion"],
                    "resources": ["Resource"]
                }
            ],
            "deliverables": ["Deliverable 1", "Deliverable 2"],
            "phase_success_criteria": ["Overall phase criterion 1", "Criterion 2"]
        },
        {
            "phase": "Phase 2: Execution (Months 4-9)",
            "objective": "Phase objective",
            "actions": [
                {
                    "action": "Action 2.1",
                    "owner": "Owner",
                    "deadline": "Date",
                    "success_criteria": ["Criterion"],
                    "resources": ["Resource"]
                },
                {
                    "action": "Action 2.2",
                    "owner": "Owner",
                    "deadline": "Date",
                    "success_criteria": ["Criterion"],
                    "resources": ["Resource"]
                }
            ],
            "deliverables": ["Deliverable"],
            "phase_success_criteria": ["Criterion"]
        },
        {
            "phase": "Phase 3: Scaling (Months 10-18)",
            "objective": "Phase objective",
            "actions": [
                {
                    "action": "Action 3.1",
                    "owner": "Owner",
                    "deadline": "Date",
                    "success_criteria": ["Criterion"],
                    "resources": ["Resource"]
                }
            ],
            "deliverables": ["Deliverable"],
            "phase_success_criteria": ["Criterion"]
        }
    ],

    "resource_requirements": {
        "human_resources": [
            {
                "role": "Role/position needed",
                "quantity": "Number needed",
                "skills_required": ["Skill 1", "Skill 2"],
                "time_commitment": "Full-time/part-time/hours per week",
                "when_needed": "Start date",
                "cost_estimate": "Annual cost or hourly rate"
            },
            {
                "role": "Another role",
                "quantity": "Number",
                "skills_required": ["Skills"],
                "time_commitment": "Commitment",
                "when_needed": "When",
                "cost_estimate": "Cost"
            }
        ],
        "financial_resources": [
            {
                "category": "Budget category (personnel/technology/marketing/etc)",
                "amount": "Specific dollar amount",
                "timeframe": "When needed (one-time/monthly/annual)",
                "justification": "Why this amount",
                "priority": "critical/high/medium/low"
            },
            {
                "category": "Another category",
                "amount": "Amount",
                "timeframe": "Timeframe",
                "justification": "Justification",
                "priority": "Priority"
            }
        ],
        "technological_resources": [
            {
                "resource": "Specific tool/platform/infrastructure",
                "purpose": "What it's for",
                "cost": "Cost estimate",
                "timeline": "When to acquire/implement",
                "alternatives": ["Alternative option 1", "Alternative 2"]
            }
        ],
        "physical_resources": [
            {
                "resource": "Office space/equipment/materials",
                "quantity": "How much/many",
                "cost": "Cost",
                "when_needed": "Timeline",
                "sourcing_plan": "How to acquire"
            }
        ]
    },

    "timeline": {
        "start_date": "YYYY-MM-DD",
        "key_milestones": [
            {
                "milestone": "First major milestone",
                "target_date": "YYYY-MM-DD",
                "deliverables": ["Deliverable 1", "Deliverable 2"],
                "gate_criteria": ["Criterion to proceed", "Criterion 2"],
                "responsible_party": "Who owns this milestone"
            },
            {
                "milestone": "Second milestone",
                "target_date": "Date",
                "deliverables": ["Deliverable"],
                "gate_criteria": ["Criterion"],
                "responsible_party": "Owner"
            },
            {
                "milestone": "Third milestone",
                "target_date": "Date",
                "deliverables": ["Deliverable"],
                "gate_criteria": ["Criterion"],
                "responsible_party": "Owner"
            }
        ],
        "review_cadence": "How often to review progress (weekly/bi-weekly/monthly)",
        "adjustment_protocol": "How to adjust plan based on feedback and results"
    },

    "success_metrics": [
        {
            "metric": "Specific measurable metric #1",
            "target_value": "Specific target (number, percentage, etc)",
            "measurement_method": "How to measure",
            "measurement_frequency": "How often to measure",
            "owner": "Who tracks this",
            "milestone_targets": {
                "30_days": "Target at 30 days",
                "90_days": "Target at 90 days",
                "6_months": "Target at 6 months",
                "12_months": "Target at 12 months"
            }
        },
        {
            "metric": "Metric #2",
            "target_value": "Target",
            "measurement_method": "Method",
            "measurement_frequency": "Frequency",
            "owner": "Owner",
            "milestone_targets": {
                "30_days": "Target",
                "90_days": "Target",
                "6_months": "Target",
                "12_months": "Target"
            }
        },
        {
            "metric": "Metric #3",
            "target_value": "Target",
            "measurement_method": "Method",
            "measurement_frequency": "Frequency",
            "owner": "Owner",
            "milestone_targets": {
                "30_days": "Target",
                "90_days": "Target",
                "6_months": "Target",
                "12_months": "Target"
            }
        }
    ],

    "governance_structure": {
        "decision_authority": "Who has final decision-making authority",
        "steering_committee": [
            {
                "role": "Role on committee",
                "responsibilities": ["Responsibility 1", "Responsibility 2"],
                "decision_scope": "What they can decide"
            },
            {
                "role": "Another role",
                "responsibilities": ["Responsibility"],
                "decision_scope": "Scope"
            }
        ],
        "reporting_structure": "How progress is reported up the chain",
        "escalation_process": "How to escalate issues and blockers",
        "meeting_cadence": "How often governance meets"
    },

    "risk_mitigation_execution": [
        {
            "risk": "Top risk from Gevurah that needs mitigation NOW",
            "mitigation_action": "Specific action to mitigate",
            "owner": "Who owns mitigation",
            "deadline": "When to complete",
            "resources_allocated": ["Resources for mitigation"],
            "success_indicator": "How to know mitigation worked"
        },
        {
            "risk": "Second risk",
            "mitigation_action": "Action",
            "owner": "Owner",
            "deadline": "Deadline",
            "resources_allocated": ["Resources"],
            "success_indicator": "Indicator"
        },
        {
            "risk": "Third risk",
            "mitigation_action": "Action",
            "owner": "Owner",
            "deadline": "Deadline",
            "resources_allocated": ["Resources"],
            "success_indicator": "Indicator"
        }
    ],

    "first_step": "THE SINGLE MOST IMPORTANT ACTION TO TAKE IN THE NEXT 24 HOURS. Be hyper-specific: Who does what, when, where, how. This is the action that starts everything.",

    "implementation_confidence": "very high/high/moderate/low"
}

CRITICAL RULES:
- Define at least 4 immediate actions (24 hours to 30 days)
- Create at least 3 action plan phases with specific actions
- Specify at least 2 human resource requirements
- Identify at least 2 financial resource categories
- Set at least 3 key milestones with dates
- Define at least 3 success metrics with milestone targets
- Specify at least 3 risk mitigation execution items
- First step must be HYPER-SPECIFIC and executable in 24 hours
- ALL dates must be realistic and specific (YYYY-MM-DD format)
- ALL costs must be estimated (even if rough)
- ALL actions must have clear owners
- Focus on EXECUTABLE, CONCRETE, IMMEDIATE action
- Return ONLY valid JSON, no markdown formatting

Remember: Malchut is where vision becomes reality. A plan that isn't executed is just a dream. Make it REAL.`, scenario, yesodContext)
}
