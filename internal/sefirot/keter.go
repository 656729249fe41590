package sefirot

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/tikun-labs/sefirot-cli/internal/gateway"
	"github.com/tikun-labs/sefirot-cli/internal/model"
	"github.com/tikun-labs/sefirot-cli/internal/resilience"
)

// alignmentThreshold is the minimum alignment score a scenario must reach
// before downstream manifestation is considered valid.
const alignmentThreshold = 0.60

// keterMaxAttempts bounds the retry loop around unparseable first-stage
// responses. Keter gates everything after it, so it gets a retry budget the
// other stages do not.
const keterMaxAttempts = 3

// Keter is the first stage. It scores the scenario on five ethical
// dimensions (each -10 to +10), detects corruptions, and derives the
// alignment score that gates the rest of the pipeline:
//
//	alignment = (sum of dimension scores + 50) / 100
//
// A scenario is valid for manifestation when alignment reaches the
// threshold and no critical corruption was detected.
type Keter struct {
	gw          gateway.Gateway
	temperature float64
	retry       resilience.RetryConfig
}

func NewKeter(gw gateway.Gateway, temperature float64) *Keter {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = keterMaxAttempts
	retry.ShouldRetry = gateway.IsMalformedResponse
	retry.OnRetry = resilience.RetryLogger("sefirot", "keter validate")
	return &Keter{gw: gw, temperature: temperature, retry: retry}
}

func (s *Keter) ID() model.StageID { return model.StageKeter }

func (s *Keter) Process(ctx context.Context, scenario string, _ *model.PipelineContext) *model.StageResult {
	prompt := keterPrompt(scenario)

	type validated struct {
		fields map[string]any
		scores map[string]any
		total  int
	}

	attempts := 0
	out, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (validated, error) {
		attempts++
		raw, err := s.gw.Generate(ctx, prompt, s.temperature)
		if err != nil {
			return validated{}, err
		}
		fields, err := gateway.ExtractStructured(raw)
		if err != nil {
			return validated{}, err
		}
		scores, ok := fields["scores"].(map[string]any)
		if !ok {
			return validated{}, gateway.NewMalformedResponseError(raw, eris.New("sefirot: response has no scores object"))
		}
		normalized := make(map[string]any, len(scores))
		total := 0
		for dim, v := range scores {
			n, err := coerceInt(v)
			if err != nil {
				return validated{}, gateway.NewMalformedResponseError(raw, err)
			}
			normalized[dim] = n
			total += n
		}
		return validated{fields: fields, scores: normalized, total: total}, nil
	})
	if err != nil {
		res := model.NewStageError(model.StageKeter, err)
		res.Attempts = attempts
		return res
	}

	alignment := (float64(out.total) + 50) / 100
	severity := corruptionSeverity(list(out.fields, "corruptions"))
	out.fields["scores"] = out.scores

	res := model.NewStageResult(model.StageKeter)
	res.Model = s.gw.Model()
	res.Attempts = attempts
	res.RawFields = out.fields
	res.DerivedMetrics = map[string]any{
		"alignment_score":      round4(alignment),
		"alignment_percentage": round2(alignment * 100),
		"corruption_severity":  severity,
		"manifestation_valid":  alignment >= alignmentThreshold && severity != "critical",
		"threshold_met":        alignment >= alignmentThreshold,
	}
	return res
}

// corruptionSeverity rolls per-corruption severities up to the worst level
// present.
func corruptionSeverity(corruptions []any) string {
	if len(corruptions) == 0 {
		return "none"
	}
	worst := "minor"
	for _, c := range corruptions {
		m, ok := c.(map[string]any)
		if !ok {
			continue
		}
		switch str(m, "severity") {
		case "critical":
			return "critical"
		case "moderate":
			worst = "moderate"
		}
	}
	return worst
}

func keterPrompt(scenario string) string {
	return fmt.Sprintf(`You are KETER - evaluate Tikun Olam (repairing the world) alignment.

SCENARIO:
%s

SCORE 5 DIMENSIONS (-10 to +10):

1. reduces_suffering: Does it reduce or increase suffering?
   Scale: -10=maximum suffering (1M+ casualties), 0=neutral, +10=maximum reduction

2. respects_free_will: Does it respect human autonomy?
   Scale: -10=violates free will, 0=neutral, +10=respects autonomy

3. promotes_harmony: Does it promote peace and harmony?
   CRITICAL: Military action/war MUST score ≤+3, mass violence (>10K deaths) MUST be ≤0
   Scale: -10=war/genocide, 0=neutral, +10=transformative peace

4. justice_mercy_balance: Balances justice with compassion?
   Scale: -10=pure revenge, 0=neutral, +10=perfect balance

5. aligned_with_truth: Based on truth?
   Scale: -10=lies/deception, 0=unclear, +10=aligned with truth

CORRUPTION DETECTION:
Identify deviations from divine purpose (type, severity: critical/moderate/minor, description).

RESPONSE (JSON only, no markdown, no text before/after):
{
    "scores": {
        "reduces_suffering": <integer -10 to +10>,
        "respects_free_will": <integer -10 to +10>,
        "promotes_harmony": <integer -10 to +10>,
        "justice_mercy_balance": <integer -10 to +10>,
        "aligned_with_truth": <integer -10 to +10>
    },
    "corruptions": [
        {
            "type": "corruption name",
            "severity": "critical/moderate/minor",
            "description": "brief explanation (max 150 words)"
        }
    ],
    "reasoning": "Explain your scores briefly (max 300 words)"
}

CRITICAL: Return ONLY valid JSON. No markdown formatting, no code blocks, no asterisks, no underscores for emphasis. Use plain text in descriptions.`, scenario)
}
