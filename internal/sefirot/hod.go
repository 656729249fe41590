package sefirot

import (
	"context"
	"fmt"
	"math"

	"github.com/tikun-labs/sefirot-cli/internal/gateway"
	"github.com/tikun-labs/sefirot-cli/internal/model"
)

// narrativeComponents are the six parts of a complete narrative arc.
var narrativeComponents = []string{"opening", "context", "vision", "journey", "call_to_action", "ongoing_story"}

// Hod is the eighth stage: the communication strategy that articulates the
// execution plan for each stakeholder group with a coherent narrative arc.
type Hod struct {
	gw          gateway.Gateway
	temperature float64
}

func NewHod(gw gateway.Gateway, temperature float64) *Hod {
	return &Hod{gw: gw, temperature: temperature}
}

func (s *Hod) ID() model.StageID { return model.StageHod }

func (s *Hod) Process(ctx context.Context, scenario string, pctx *model.PipelineContext) *model.StageResult {
	fields, errRes := invoke(ctx, s.gw, model.StageHod, hodPrompt(scenario, pctx), s.temperature)
	if errRes != nil {
		return errRes
	}

	splendor := splendorScore(fields)
	messages := listLen(fields, "key_messages")
	channels := listLen(fields, "communication_channels")

	res := model.NewStageResult(model.StageHod)
	res.Model = s.gw.Model()
	res.RawFields = fields
	res.DerivedMetrics = map[string]any{
		"splendor_score": round2(splendor),
		"clarity_rating": clarityRating(fields),
		"message_count":  messages,
	}
	res.QualityLabel = hodQuality(splendor, messages, channels)
	return res
}

// splendorScore returns 0-100 based on key messages, stakeholder messaging,
// narrative arc completeness, documentation, and channels.
func splendorScore(fields map[string]any) float64 {
	score := math.Min(float64(listLen(fields, "key_messages"))*6.25, 25)
	score += math.Min(float64(listLen(fields, "messaging_by_stakeholder"))*6.25, 25)

	narrative := submap(fields, "narrative_arc")
	components := 0
	for _, k := range narrativeComponents {
		if _, ok := narrative[k]; ok {
			components++
		}
	}
	score += math.Min(float64(components)*3.33, 20)

	score += math.Min(float64(listLen(fields, "documentation_requirements"))*5, 20)
	score += math.Min(float64(listLen(fields, "communication_channels"))*2.5, 10)
	return math.Min(score, 100)
}

// clarityRating grades message clarity by key message and stakeholder
// counts plus how many messages carry at least two talking points.
func clarityRating(fields map[string]any) string {
	messages := list(fields, "key_messages")
	stakeholders := listLen(fields, "messaging_by_stakeholder")

	detailed := 0
	for _, m := range messages {
		if mm, ok := m.(map[string]any); ok && listLen(mm, "talking_points") >= 2 {
			detailed++
		}
	}

	switch {
	case len(messages) >= 4 && stakeholders >= 4 && detailed >= 3:
		return "exceptional clarity"
	case len(messages) >= 3 && stakeholders >= 3:
		return "high clarity"
	case len(messages) >= 2:
		return "moderate clarity"
	default:
		return "low clarity"
	}
}

func hodQuality(splendor float64, messages, channels int) string {
	switch {
	case splendor >= 80 && messages >= 4 && channels >= 4:
		return "exceptional"
	case splendor >= 65 && messages >= 3:
		return "high"
	case splendor >= 50 && messages >= 2:
		return "moderate"
	default:
		return "low"
	}
}

func hodPrompt(scenario string, pctx *model.PipelineContext) string {
	netzachContext := ""
	if netzach, ok := pctx.GetOK(model.StageNetzach); ok {
		netzachContext = fmt.Sprintf(`
NETZACH CONTEXT (Implementation Strategy):
- Implementation Strategy: %s...
- Milestone Count: %s
- Persistence Score: %s
- Resilience Rating: %s
`,
			truncate(netzach.StringField("implementation_strategy"), 300),
			metricOr(netzach, "milestone_count", "0"),
			metricOr(netzach, "persistence_score", "N/A"),
			metricStringOr(netzach, "resilience_rating", "N/A"))
	}

	return fmt.Sprintf(`You are HOD (הוד), Splendor/Glory - Sefira 8 of the Kabbalistic Tree.

FUNCTION: Create clear, compelling communication that articulates the vision, strategy, and progress with elegance and precision.

SCENARIO TO ANALYZE:
%s
%s

YOUR TASK:
Design COMPREHENSIVE COMMUNICATION STRATEGY that makes complex ideas clear, builds support, and maintains transparency.

CRITICAL PRINCIPLES:
1. **CLARITY**: Make complex ideas accessible without oversimplification
2. **TAILORED MESSAGING**: Adapt communication for different stakeholders
3. **NARRATIVE ARC**: Tell a compelling story that resonates
4. **TRANSPARENCY**: Build trust through honest, clear communication
5. **DOCUMENTATION**: Create enduring records that capture wisdom

IMPORTANT: Netzach created the execution strategy. You ensure everyone understands it, supports it, and can track progress clearly.

RESPONSE (JSON only, no markdown):
{
    "communication_strategy": "Comprehensive paragraph describing overall communication approach. What's the core narrative? How do we build understanding and support? What makes this communication strategy effective and trustworthy?",

    "key_messages": [
        {
            "message": "Core message #1 - The Vision",
            "description": "What this message communicates",
            "talking_points": ["Point 1", "Point 2", "Point 3"],
            "emotional_appeal": "What emotion this evokes (hope/urgency/pride/trust)",
            "evidence_to_cite": ["Evidence 1", "Evidence 2"]
        },
        {
            "message": "Core message #2 - The Why",
            "description": "Why this matters now",
            "talking_points": ["Point 1", "Point 2", "Point 3"],
            "emotional_appeal": "Emotion evoked",
            "evidence_to_cite": ["Evidence 1", "Evidence 2"]
        },
        {
            "message": "Core message #3 - The Path Forward",
            "description": "How we'll achieve this",
            "talking_points": ["Point 1", "Point 2"],
            "emotional_appeal": "Emotion evoked",
            "evidence_to_cite": ["Evidence 1"]
        },
        {
            "message": "Core message #4 - The Benefits",
            "description": "What success looks like",
            "talking_points": ["Point 1", "Point 2"],
            "emotional_appeal": "Emotion evoked",
            "evidence_to_cite": ["Evidence 1"]
        }
    ],

    "messaging_by_stakeholder": [
        {
            "stakeholder_group": "Stakeholder Group 1",
            "primary_concerns": ["Concern 1", "Concern 2"],
            "tailored_message": "Message specifically for this group addressing their concerns",
            "communication_tone": "professional/empathetic/aspirational/reassuring",
            "preferred_channels": ["Channel 1", "Channel 2"],
            "frequency": "weekly/monthly/quarterly/as-needed"
        },
        {
            "stakeholder_group": "Stakeholder Group 2",
            "primary_concerns": ["Concern 1", "Concern 2"],
            "tailored_message": "Tailored message for this group",
            "communication_tone": "professional/empathetic/aspirational/reassuring",
            "preferred_channels": ["Channel 1", "Channel 2"],
            "frequency": "weekly/monthly/quarterly/as-needed"
        },
        {
            "stakeholder_group": "Stakeholder Group 3",
            "primary_concerns": ["Concern 1"],
            "tailored_message": "Message for this group",
            "communication_tone": "professional/empathetic/aspirational/reassuring",
            "preferred_channels": ["Channel 1"],
            "frequency": "monthly/quarterly"
        },
        {
            "stakeholder_group": "General Public",
            "primary_concerns": ["Concern 1"],
            "tailored_message": "Public-facing message",
            "communication_tone": "accessible/inspirational",
            "preferred_channels": ["Channel 1", "Channel 2"],
            "frequency": "quarterly/as-needed"
        }
    ],

    "narrative_arc": {
        "opening": "How we introduce this initiative. What hooks attention and builds credibility?",
        "context": "Background and why this matters now. Historical context, current challenges.",
        "vision": "Compelling picture of the desired future state. What becomes possible?",
        "journey": "Honest acknowledgment of challenges and how we'll overcome them. The path forward.",
        "call_to_action": "What we're asking stakeholders to do. How they can contribute to success.",
        "ongoing_story": "How we maintain narrative momentum over time. Celebration of milestones, adaptation to setbacks."
    },

    "documentation_requirements": [
        {
            "document": "Strategic Vision Document",
            "purpose": "Articulate long-term vision and rationale",
            "audience": "Leadership, key stakeholders",
            "update_frequency": "Annually or upon major strategy shifts",
            "key_sections": ["Section 1", "Section 2", "Section 3"]
        },
        {
            "document": "Implementation Playbook",
            "purpose": "Guide execution teams with clear instructions",
            "audience": "Implementation teams, project managers",
            "update_frequency": "Quarterly",
            "key_sections": ["Section 1", "Section 2", "Section 3"]
        },
        {
            "document": "Progress Dashboard",
            "purpose": "Track and communicate progress transparently",
            "audience": "All stakeholders",
            "update_frequency": "Real-time or monthly",
            "key_sections": ["Metrics", "Milestones", "Issues", "Wins"]
        },
        {
            "document": "Stakeholder FAQ",
            "purpose": "Address common questions and concerns",
            "audience": "All stakeholders",
            "update_frequency": "As-needed based on feedback",
            "key_sections": ["Questions by topic"]
        }
    ],

    "communication_channels": [
        {
            "channel": "Town Hall Meetings",
            "purpose": "Direct engagement and Q&A",
            "frequency": "Quarterly",
            "target_audience": "All stakeholders",
            "effectiveness_rating": "high/medium/low"
        },
        {
            "channel": "Email Updates",
            "purpose": "Regular progress updates",
            "frequency": "Monthly",
            "target_audience": "Registered stakeholders",
            "effectiveness_rating": "high/medium/low"
        },
        {
            "channel": "Public Website/Portal",
            "purpose": "Transparent information hub",
            "frequency": "Continuous",
            "target_audience": "General public",
            "effectiveness_rating": "high/medium/low"
        },
        {
            "channel": "Working Group Sessions",
            "purpose": "Deep dives with key stakeholders",
            "frequency": "Monthly/as-needed",
            "target_audience": "Subject matter experts",
            "effectiveness_rating": "high/medium/low"
        }
    ],

    "transparency_framework": "Paragraph describing commitment to transparency. What information will be shared publicly? How will progress and challenges be communicated honestly? What mechanisms ensure accountability and trust? How do we balance transparency with appropriate confidentiality?",

    "communication_quality_indicators": [
        "Indicator of effective communication #1",
        "Indicator #2",
        "Indicator #3"
    ]
}

CRITICAL RULES:
- Define at least 4 key messages with talking points
- Create tailored messaging for at least 4 stakeholder groups
- Design narrative arc with all 6 components
- Specify at least 4 documentation requirements
- Identify at least 4 communication channels
- Communication strategy must be comprehensive (2-3 paragraphs)
- Focus on CLARITY, RESONANCE, and TRUST
- Be SPECIFIC and ACTIONABLE
- Return ONLY valid JSON, no markdown formatting

Remember: Hod is the power of articulation. Ideas without clear communication remain unrealized.`, scenario, netzachContext)
}
