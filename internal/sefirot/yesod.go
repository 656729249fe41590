package sefirot

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/tikun-labs/sefirot-cli/internal/gateway"
	"github.com/tikun-labs/sefirot-cli/internal/model"
)

// Yesod is the ninth stage, the foundation check. It integrates all eight
// upstream results, verifies triad alignment and readiness, and issues the
// GO / CONDITIONAL_GO / NO_GO recommendation that Malchut acts on.
type Yesod struct {
	gw          gateway.Gateway
	temperature float64
}

func NewYesod(gw gateway.Gateway, temperature float64) *Yesod {
	return &Yesod{gw: gw, temperature: temperature}
}

func (s *Yesod) ID() model.StageID { return model.StageYesod }

func (s *Yesod) Process(ctx context.Context, scenario string, pctx *model.PipelineContext) *model.StageResult {
	fields, errRes := invoke(ctx, s.gw, model.StageYesod, yesodPrompt(scenario, pctx), s.temperature)
	if errRes != nil {
		return errRes
	}

	readiness := readinessScore(fields)

	res := model.NewStageResult(model.StageYesod)
	res.Model = s.gw.Model()
	res.RawFields = fields
	res.DerivedMetrics = map[string]any{
		"readiness_score":     round2(readiness),
		"integration_quality": integrationQuality(fields),
		"foundation_strength": foundationStrength(fields, readiness),
	}
	res.QualityLabel = yesodQuality(fields)
	return res
}

// readinessScore returns 0-100 from the readiness checks, triad alignment,
// the strengths-to-gaps balance, and the decisiveness of the go/no-go call.
func readinessScore(fields map[string]any) float64 {
	score := 0.0

	readiness := submap(fields, "readiness_verification")
	for _, k := range []string{"ethical_readiness", "strategic_readiness", "communication_readiness", "resource_readiness"} {
		if str(submap(readiness, k), "status") == "ready" {
			score += 10
		}
	}

	alignment := submap(fields, "sefirot_alignment")
	for _, k := range []string{"keter_chochmah_binah", "chesed_gevurah_tiferet", "netzach_hod"} {
		if str(submap(alignment, k), "alignment_status") == "aligned" {
			score += 10
		}
	}

	strengths := listLen(fields, "strengths_confirmed")
	gaps := listLen(fields, "gaps_identified")
	switch {
	case strengths > gaps:
		score += 20
	case strengths == gaps:
		score += 10
	}

	switch str(submap(fields, "go_no_go_recommendation"), "decision") {
	case "GO":
		score += 10
	case "CONDITIONAL_GO":
		score += 5
	}

	return math.Min(score, 100)
}

func integrationQuality(fields map[string]any) string {
	coherence := str(submap(submap(fields, "sefirot_alignment"), "overall_coherence"), "status")
	switch coherence {
	case "highly_coherent":
		return "exceptional integration"
	case "moderately_coherent":
		return "good integration"
	default:
		return "fragmented integration"
	}
}

func foundationStrength(fields map[string]any, readiness float64) string {
	gaps := listLen(fields, "gaps_identified")
	decision := str(submap(fields, "go_no_go_recommendation"), "decision")

	switch {
	case readiness >= 80 && gaps <= 1 && decision == "GO":
		return "rock solid"
	case readiness >= 60 && gaps <= 2:
		return "strong"
	case readiness >= 40:
		return "moderate"
	default:
		return "weak"
	}
}

func yesodQuality(fields map[string]any) string {
	strongSynthesis := len(str(fields, "integrated_assessment")) > 600 &&
		len(str(fields, "final_synthesis")) > 400

	decision := str(submap(fields, "go_no_go_recommendation"), "decision")
	clearDecision := decision == "GO" || decision == "CONDITIONAL_GO" || decision == "NO_GO"

	switch {
	case strongSynthesis && clearDecision:
		return "exceptional"
	case strongSynthesis || clearDecision:
		return "high"
	case len(str(fields, "integrated_assessment")) > 300:
		return "moderate"
	default:
		return "low"
	}
}

func yesodPrompt(scenario string, pctx *model.PipelineContext) string {
	var summary strings.Builder
	if pctx.Len() > 0 {
		summary.WriteString("\n\nSEFIROT PIPELINE RESULTS:\n")

		if keter, ok := pctx.GetOK(model.StageKeter); ok {
			summary.WriteString(fmt.Sprintf("\n1. KETER (Validation): Alignment=%s, Valid=%t\n",
				metricOr(keter, "alignment_score", "N/A"), keter.BoolMetric("manifestation_valid")))
		}
		if chochmah, ok := pctx.GetOK(model.StageChochmah); ok {
			summary.WriteString(fmt.Sprintf("2. CHOCHMAH (Wisdom): Quality=%s, Humility=%s%%\n",
				qualityOr(chochmah, "N/A"), metricOr(chochmah, "epistemic_humility_ratio", "N/A")))
		}
		if binah, ok := pctx.GetOK(model.StageBinah); ok {
			summary.WriteString(fmt.Sprintf("3. BINAH (Understanding): Depth=%s, Quality=%s\n",
				metricOr(binah, "contextual_depth_score", "N/A"), qualityOr(binah, "N/A")))
		}
		if chesed, ok := pctx.GetOK(model.StageChesed); ok {
			summary.WriteString(fmt.Sprintf("4. CHESED (Mercy): Opportunities=%s, Expansion=%s\n",
				metricOr(chesed, "opportunity_count", "N/A"), metricOr(chesed, "expansion_score", "N/A")))
		}
		if gevurah, ok := pctx.GetOK(model.StageGevurah); ok {
			summary.WriteString(fmt.Sprintf("5. GEVURAH (Severity): Risks=%s, Severity=%s\n",
				metricOr(gevurah, "risk_count", "N/A"), metricOr(gevurah, "severity_score", "N/A")))
		}
		if tiferet, ok := pctx.GetOK(model.StageTiferet); ok {
			summary.WriteString(fmt.Sprintf("6. TIFERET (Beauty): Harmony=%s, Balance=%s\n",
				metricOr(tiferet, "harmony_score", "N/A"), metricStringOr(tiferet, "balance_ratio", "N/A")))
		}
		if netzach, ok := pctx.GetOK(model.StageNetzach); ok {
			summary.WriteString(fmt.Sprintf("7. NETZACH (Victory): Milestones=%s, Persistence=%s\n",
				metricOr(netzach, "milestone_count", "N/A"), metricOr(netzach, "persistence_score", "N/A")))
		}
		if hod, ok := pctx.GetOK(model.StageHod); ok {
			summary.WriteString(fmt.Sprintf("8. HOD (Splendor): Messages=%s, Clarity=%s\n",
				metricOr(hod, "message_count", "N/A"), metricStringOr(hod, "clarity_rating", "N/A")))
		}
	}

	return fmt.Sprintf(`You are YESOD (יסוד), Foundation - Sefira 9 of the Kabbalistic Tree.

FUNCTION: Integrate ALL previous Sefirot (1-8) into unified foundation, verify readiness for manifestation.

SCENARIO:
%s
%s

YOUR TASK:
Perform COMPREHENSIVE INTEGRATION of all 8 Sefirot above, verify alignment, assess readiness, and make GO/NO-GO recommendation for Malchut (manifestation).

CRITICAL PRINCIPLES:
1. **INTEGRATION**: Synthesize insights from all Sefirot into coherent whole
2. **ALIGNMENT VERIFICATION**: Ensure all Sefirot point in same direction
3. **READINESS ASSESSMENT**: Determine if foundation is solid enough for action
4. **GAP IDENTIFICATION**: Find what's missing or weak
5. **GO/NO-GO DECISION**: Clear recommendation on proceeding to manifestation

IMPORTANT: You are the FINAL CHECK before action (Malchut). If something is misaligned or foundation is weak, you must identify it clearly.

RESPONSE (JSON only, no markdown):
{
    "integrated_assessment": "Comprehensive 3-4 paragraph synthesis integrating ALL 8 Sefirot. How do they work together? What emerges from their interaction? What's the COMPLETE picture when viewing all perspectives simultaneously?",

    "sefirot_alignment": {
        "keter_chochmah_binah": {
            "alignment_status": "aligned/partial/misaligned",
            "summary": "How these 3 work together (or don't)",
            "concerns": ["Any concerns about this triada"]
        },
        "chesed_gevurah_tiferet": {
            "alignment_status": "aligned/partial/misaligned",
            "summary": "How expansion, restriction, and balance integrate",
            "concerns": ["Concerns if any"]
        },
        "netzach_hod": {
            "alignment_status": "aligned/partial/misaligned",
            "summary": "How strategy and communication support each other",
            "concerns": ["Concerns if any"]
        },
        "overall_coherence": {
            "status": "highly_coherent/moderately_coherent/fragmented",
            "description": "Overall coherence across all 8 Sefirot"
        }
    },

    "readiness_verification": {
        "ethical_readiness": {
            "status": "ready/conditional/not_ready",
            "rationale": "Is this ethically sound based on Keter?",
            "conditions": ["Conditions if conditional"]
        },
        "strategic_readiness": {
            "status": "ready/conditional/not_ready",
            "rationale": "Is strategy (Netzach) solid and executable?",
            "conditions": ["Conditions if conditional"]
        },
        "communication_readiness": {
            "status": "ready/conditional/not_ready",
            "rationale": "Can we communicate this effectively (Hod)?",
            "conditions": ["Conditions if conditional"]
        },
        "resource_readiness": {
            "status": "ready/conditional/not_ready",
            "rationale": "Do we have what we need? Are constraints (Gevurah) manageable?",
            "conditions": ["Conditions if conditional"]
        },
        "overall_readiness": {
            "status": "ready/conditional/not_ready",
            "confidence": "high/medium/low",
            "summary": "Overall readiness assessment"
        }
    },

    "gaps_identified": [
        {
            "gap": "Specific gap or weakness #1",
            "affected_sefirot": ["Sefira 1", "Sefira 2"],
            "severity": "critical/high/medium/low",
            "recommendation": "How to address this gap"
        },
        {
            "gap": "Gap #2",
            "affected_sefirot": ["Sefira 3"],
            "severity": "critical/high/medium/low",
            "recommendation": "How to address"
        }
    ],

    "strengths_confirmed": [
        {
            "strength": "Confirmed strength #1",
            "supporting_sefirot": ["Sefira 1", "Sefira 2"],
            "leverage_opportunity": "How to maximize this strength"
        },
        {
            "strength": "Strength #2",
            "supporting_sefirot": ["Sefira 3"],
            "leverage_opportunity": "How to leverage"
        },
        {
            "strength": "Strength #3",
            "supporting_sefirot": ["Sefira 4"],
            "leverage_opportunity": "Leverage strategy"
        }
    ],

    "final_synthesis": "Final 2-3 paragraph synthesis. What is the ESSENCE of what we've learned through all 8 Sefirot? What's the core truth that emerges? What's the wisest path forward given everything we now understand?",

    "go_no_go_recommendation": {
        "decision": "GO/CONDITIONAL_GO/NO_GO",
        "confidence": "high/medium/low",
        "rationale": "Why this decision? What makes us ready or not ready?",
        "conditions_if_conditional": ["Condition 1 that must be met", "Condition 2"],
        "next_steps": ["Specific next step 1", "Next step 2", "Next step 3"]
    }
}

CRITICAL RULES:
- Integrated assessment must synthesize ALL 8 Sefirot (3-4 paragraphs minimum)
- Assess alignment for all 3 triads + overall
- Verify readiness across 4+ dimensions
- Identify at least 2 gaps or weaknesses
- Confirm at least 3 strengths
- Final synthesis must capture ESSENCE (2-3 paragraphs)
- GO/NO-GO decision must be clear with solid rationale
- Be HONEST - if not ready, say so clearly
- Return ONLY valid JSON, no markdown formatting

Remember: You are the FOUNDATION. If foundation is weak, everything built on it will crumble.`, scenario, summary.String())
}
