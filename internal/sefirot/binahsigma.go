package sefirot

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"

	"github.com/tikun-labs/sefirot-cli/internal/gateway"
	"github.com/tikun-labs/sefirot-cli/internal/model"
)

// DualMode controls when the understanding stage runs its dual-perspective
// analysis.
type DualMode int

const (
	// DualAuto runs the dual analysis when the scenario mentions
	// geopolitical vocabulary.
	DualAuto DualMode = iota
	// DualAlways forces the dual analysis for every scenario.
	DualAlways
	// DualNever always uses the single-model analysis.
	DualNever
)

// ParseDualMode maps a configuration string to a DualMode. The empty string
// means DualAuto.
func ParseDualMode(s string) (DualMode, error) {
	switch s {
	case "", "auto":
		return DualAuto, nil
	case "always":
		return DualAlways, nil
	case "never":
		return DualNever, nil
	default:
		return DualAuto, eris.Errorf("sefirot: unknown dual mode %q", s)
	}
}

// geopoliticalKeywords trigger the dual-perspective mode in DualAuto.
// English and Spanish variants are matched case-insensitively.
var geopoliticalKeywords = []string{
	"war", "guerra", "conflict", "conflicto", "invasion", "invasión",
	"nato", "otan", "military", "militar",

	"russia", "rusia", "ukraine", "ucrania",
	"china", "taiwan",
	"israel", "palestine", "palestina",
	"venezuela", "iran",

	"democracy", "democracia", "authoritarianism", "autoritarismo",
	"communism", "comunismo", "capitalism", "capitalismo",
	"socialism", "socialismo",

	"human rights", "derechos humanos",
	"freedom", "libertad", "privacy", "privacidad",
	"surveillance", "vigilancia",
	"censorship", "censura",

	"un security council", "consejo de seguridad",
	"world bank", "banco mundial",
}

// DualConfig wires the gateways and temperatures of the dual-perspective
// analysis. Synthesis defaults to the western gateway when nil.
type DualConfig struct {
	West      gateway.Gateway
	East      gateway.Gateway
	Synthesis gateway.Gateway

	WestTemperature      float64
	EastTemperature      float64
	SynthesisTemperature float64

	Mode DualMode
}

// BinahSigma extends the third stage with a dual-perspective mode: the
// scenario is analyzed by a western and an eastern model in parallel, then
// a meta-cognitive synthesis call surfaces each side's blind spots and the
// points where both converge. The bias delta metric is the Jaccard
// distance between the two insight sets, as a percentage.
//
// When the eastern gateway is not configured or its response cannot be
// parsed, the stage falls back to the plain single-model analysis, so the
// pipeline output stays structurally identical either way.
type BinahSigma struct {
	base *Binah
	cfg  DualConfig
}

func NewBinahSigma(base *Binah, cfg DualConfig) *BinahSigma {
	if cfg.Synthesis == nil {
		cfg.Synthesis = cfg.West
	}
	return &BinahSigma{base: base, cfg: cfg}
}

func (s *BinahSigma) ID() model.StageID { return model.StageBinah }

// ShouldUseDual reports whether the scenario mentions any of the
// geopolitical keywords.
func (s *BinahSigma) ShouldUseDual(scenario string) bool {
	folded := cases.Fold().String(scenario)
	for _, kw := range geopoliticalKeywords {
		if strings.Contains(folded, kw) {
			return true
		}
	}
	return false
}

func (s *BinahSigma) Process(ctx context.Context, scenario string, pctx *model.PipelineContext) *model.StageResult {
	useDual := false
	switch s.cfg.Mode {
	case DualAlways:
		useDual = true
	case DualNever:
		useDual = false
	default:
		useDual = s.ShouldUseDual(scenario)
	}

	if useDual && s.cfg.East == nil {
		zap.L().Warn("dual-perspective analysis unavailable, using single model",
			zap.String("stage", string(model.StageBinah)))
		useDual = false
	}
	if !useDual {
		return s.base.Process(ctx, scenario, pctx)
	}
	return s.processDual(ctx, scenario, pctx)
}

func (s *BinahSigma) processDual(ctx context.Context, scenario string, pctx *model.PipelineContext) *model.StageResult {
	contextBlock := dualContext(pctx)

	// The two perspective calls are independent; only a western failure
	// fails the stage. An eastern failure is captured and degrades to the
	// single-model analysis below.
	var (
		west    map[string]any
		east    map[string]any
		eastErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		raw, err := s.cfg.West.Generate(gctx, westPrompt(scenario, contextBlock), s.cfg.WestTemperature)
		if err != nil {
			return err
		}
		fields, err := gateway.ExtractStructured(raw)
		if err != nil {
			return err
		}
		west = fields
		return nil
	})
	g.Go(func() error {
		raw, err := s.cfg.East.Generate(gctx, eastPrompt(scenario, contextBlock), s.cfg.EastTemperature)
		if err != nil {
			eastErr = err
			return nil
		}
		fields, err := gateway.ExtractStructured(raw)
		if err != nil {
			eastErr = err
			return nil
		}
		east = fields
		return nil
	})
	if err := g.Wait(); err != nil {
		return model.NewStageError(model.StageBinah, err)
	}
	if eastErr != nil {
		zap.L().Warn("eastern analysis failed, falling back to single model",
			zap.String("stage", string(model.StageBinah)),
			zap.Error(eastErr))
		return s.base.Process(ctx, scenario, pctx)
	}

	synthesis, errRes := invoke(ctx, s.cfg.Synthesis, model.StageBinah, synthesisPrompt(scenario, west, east), s.cfg.SynthesisTemperature)
	if errRes != nil {
		return errRes
	}

	delta := biasDelta(west, east)
	blindSpots := listLen(synthesis, "west_blind_spots") + listLen(synthesis, "east_blind_spots")

	res := model.NewStageResult(model.StageBinah)
	res.Model = s.cfg.West.Model()
	res.RawFields = map[string]any{
		"mode": "sigma",
		"west_analysis": map[string]any{
			"perspective":           "Western Liberal Democratic",
			"stakeholders":          list(west, "stakeholders"),
			"contextual_dimensions": submap(west, "contextual_dimensions"),
			"key_insights":          list(west, "key_insights"),
		},
		"east_analysis": map[string]any{
			"perspective":           "Eastern Collective Harmony",
			"stakeholders":          list(east, "stakeholders"),
			"contextual_dimensions": submap(east, "contextual_dimensions"),
			"key_insights":          list(east, "key_insights"),
		},
		"sigma_synthesis": map[string]any{
			"west_blind_spots":       list(synthesis, "west_blind_spots"),
			"east_blind_spots":       list(synthesis, "east_blind_spots"),
			"universal_convergence":  list(synthesis, "universal_convergence"),
			"transcendent_synthesis": str(synthesis, "transcendent_synthesis"),
			"recommended_balance":    str(synthesis, "recommended_balance"),
		},
		"model_west": s.cfg.West.Model(),
		"model_east": s.cfg.East.Model(),
	}
	res.DerivedMetrics = map[string]any{
		"bias_delta":             round2(delta),
		"divergence_level":       divergenceLevel(delta),
		"blind_spots_detected":   blindSpots,
		"convergence_points":     listLen(synthesis, "universal_convergence"),
		"contextual_depth_score": round2(sigmaDepthScore(west, east, synthesis)),
	}
	res.QualityLabel = "exceptional"
	return res
}

// biasDelta is the Jaccard distance between the western and eastern insight
// sets, scaled to 0-100. Identical sets give 0, disjoint sets give 100.
func biasDelta(west, east map[string]any) float64 {
	wset := insightSet(west)
	eset := insightSet(east)
	if len(wset) == 0 && len(eset) == 0 {
		return 0
	}

	intersection := 0
	for insight := range wset {
		if _, ok := eset[insight]; ok {
			intersection++
		}
	}
	union := len(wset) + len(eset) - intersection
	if union == 0 {
		return 0
	}
	return math.Min((1-float64(intersection)/float64(union))*100, 100)
}

func insightSet(analysis map[string]any) map[string]struct{} {
	set := make(map[string]struct{})
	for _, v := range list(analysis, "key_insights") {
		if s, ok := v.(string); ok {
			set[s] = struct{}{}
		}
	}
	return set
}

func divergenceLevel(delta float64) string {
	switch {
	case delta >= 70:
		return "extreme divergence"
	case delta >= 50:
		return "high divergence"
	case delta >= 30:
		return "moderate divergence"
	case delta >= 15:
		return "low divergence"
	default:
		return "minimal divergence"
	}
}

// sigmaDepthScore returns 0-100 weighing both perspective analyses equally
// and the synthesis at half the total.
func sigmaDepthScore(west, east, synthesis map[string]any) float64 {
	score := math.Min(float64(listLen(west, "stakeholders"))*5+float64(listLen(west, "key_insights"))*3, 25)
	score += math.Min(float64(listLen(east, "stakeholders"))*5+float64(listLen(east, "key_insights"))*3, 25)

	blindSpots := listLen(synthesis, "west_blind_spots") + listLen(synthesis, "east_blind_spots")
	score += math.Min(float64(blindSpots)*5, 20)
	score += math.Min(float64(listLen(synthesis, "universal_convergence"))*5, 20)
	score += math.Min(float64(len(str(synthesis, "transcendent_synthesis")))/20, 10)
	return math.Min(score, 100)
}

// dualContext summarizes the upstream results for both perspective prompts.
func dualContext(pctx *model.PipelineContext) string {
	var lines []string
	if keter, ok := pctx.GetOK(model.StageKeter); ok {
		lines = append(lines, fmt.Sprintf("- Keter alignment: %s%%", metricOr(keter, "alignment_percentage", "N/A")))
	}
	if chochmah, ok := pctx.GetOK(model.StageChochmah); ok {
		if n := len(chochmah.ListField("insights")); n > 0 {
			lines = append(lines, fmt.Sprintf("- Chochmah insights: %d perspectives identified", n))
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "PREVIOUS CONTEXT:\n" + strings.Join(lines, "\n")
}

func westPrompt(scenario, contextBlock string) string {
	return fmt.Sprintf(`You are analyzing from WESTERN LIBERAL DEMOCRATIC perspective.

CORE VALUES:
- Individual rights and freedoms
- Democratic governance and rule of law
- Free markets and economic liberty
- Transparency and accountability
- Freedom of speech and expression
- Human rights universalism

SCENARIO:
%s

%s

YOUR TASK:
Analyze this scenario through Western lens. Focus on individual freedoms, democratic processes, market dynamics, and universal human rights.

RESPONSE (JSON only, no markdown):
{
    "stakeholders": [
        {
            "name": "Stakeholder group name",
            "western_perspective": "How Western values view this stakeholder",
            "rights_impact": "Impact on individual rights",
            "democratic_concerns": "Democratic governance concerns"
        }
    ],
    "contextual_dimensions": {
        "political": "Democratic governance analysis",
        "economic": "Free market implications",
        "social": "Individual liberty impact",
        "legal": "Rule of law considerations",
        "human_rights": "Universal rights assessment"
    },
    "key_insights": [
        "Western insight 1",
        "Western insight 2",
        "Western insight 3"
    ]
}

Return ONLY valid JSON.`, scenario, contextBlock)
}

func eastPrompt(scenario, contextBlock string) string {
	return fmt.Sprintf(`You are analyzing from EASTERN COLLECTIVE HARMONY perspective.

CORE VALUES:
- Social harmony and collective well-being
- Stability and long-term order
- National unity and sovereignty
- Pragmatic development and progress
- Community responsibility
- Harmonious coexistence

SCENARIO:
%s

%s

YOUR TASK:
Analyze this scenario through Eastern lens. Focus on social harmony, collective good, stability, and pragmatic development.

RESPONSE (JSON only, no markdown):
{
    "stakeholders": [
        {
            "name": "Stakeholder group name",
            "eastern_perspective": "How Eastern values view this stakeholder",
            "harmony_impact": "Impact on social harmony",
            "stability_concerns": "Stability and order concerns"
        }
    ],
    "contextual_dimensions": {
        "political": "Governance and stability analysis",
        "economic": "Collective development implications",
        "social": "Social harmony impact",
        "cultural": "Traditional values considerations",
        "national": "Sovereignty and unity assessment"
    },
    "key_insights": [
        "Eastern insight 1",
        "Eastern insight 2",
        "Eastern insight 3"
    ]
}

Return ONLY valid JSON.`, scenario, contextBlock)
}

func synthesisPrompt(scenario string, west, east map[string]any) string {
	westJSON, _ := json.MarshalIndent(west, "", "  ")
	eastJSON, _ := json.MarshalIndent(east, "", "  ")

	return fmt.Sprintf(`You are performing META-COGNITIVE SYNTHESIS between Western and Eastern perspectives.

SCENARIO: %s

WESTERN ANALYSIS:
%s

EASTERN ANALYSIS:
%s

YOUR TASK:
Perform deep meta-analysis to identify blind spots and universal truths.

RESPONSE (JSON only, no markdown):
{
    "west_blind_spots": [
        {
            "blind_spot": "What Western perspective misses",
            "why_blind": "Cultural/ideological reason for blindness",
            "eastern_sees": "What Eastern perspective sees instead"
        }
    ],
    "east_blind_spots": [
        {
            "blind_spot": "What Eastern perspective misses",
            "why_blind": "Cultural/ideological reason for blindness",
            "western_sees": "What Western perspective sees instead"
        }
    ],
    "universal_convergence": [
        {
            "convergence_point": "What both perspectives agree on",
            "shared_value": "Universal human value underlying agreement",
            "transcends": "How this transcends cultural boundaries"
        }
    ],
    "transcendent_synthesis": "Comprehensive synthesis that honors both perspectives while transcending their limitations. What emerges when we integrate Western emphasis on individual freedom with Eastern emphasis on collective harmony?",
    "recommended_balance": "Practical recommendation that balances individual rights with collective well-being. How to navigate this specific scenario honoring both traditions?"
}

Return ONLY valid JSON.`, scenario, westJSON, eastJSON)
}
