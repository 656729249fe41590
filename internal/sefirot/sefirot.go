// Package sefirot implements the ten analysis stages of the Tikun pipeline.
// Each stage builds a prompt from the scenario and the accumulated results of
// earlier stages, calls its model gateway, extracts the structured response,
// and derives deterministic scores and quality ratings from the parsed fields.
//
// Stages are fail-soft: a provider failure or an unparseable response becomes
// an error-status result rather than a Go error, so the pipeline can keep
// running on partial context.
package sefirot

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/tikun-labs/sefirot-cli/internal/gateway"
	"github.com/tikun-labs/sefirot-cli/internal/model"
)

// Stage is one step of the pipeline.
type Stage interface {
	// ID reports which sefira the stage computes.
	ID() model.StageID

	// Process runs the stage against the scenario. Upstream results are read
	// from pctx; the stage never writes to it. The returned result carries
	// either the parsed fields and derived metrics or an error status.
	Process(ctx context.Context, scenario string, pctx *model.PipelineContext) *model.StageResult
}

// invoke runs one generate-and-extract round trip against a gateway. The
// second return value is a ready error result when the call or the
// extraction failed, nil otherwise.
func invoke(ctx context.Context, gw gateway.Gateway, id model.StageID, prompt string, temperature float64) (map[string]any, *model.StageResult) {
	raw, err := gw.Generate(ctx, prompt, temperature)
	if err != nil {
		return nil, model.NewStageError(id, err)
	}
	fields, err := gateway.ExtractStructured(raw)
	if err != nil {
		return nil, model.NewStageError(id, err)
	}
	return fields, nil
}

// Stage outputs arrive as generic JSON maps. The accessors below tolerate
// missing or mistyped fields so a sparse response degrades the derived
// scores instead of panicking mid-pipeline.

func list(m map[string]any, key string) []any {
	l, _ := m[key].([]any)
	return l
}

func listLen(m map[string]any, key string) int {
	return len(list(m, key))
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func strOr(m map[string]any, key, fallback string) string {
	if s := str(m, key); s != "" {
		return s
	}
	return fallback
}

func submap(m map[string]any, key string) map[string]any {
	sm, _ := m[key].(map[string]any)
	return sm
}

// coerceInt converts a JSON-decoded value to an int. Models sometimes quote
// their numbers ("7" instead of 7); those are accepted. Fractional floats
// truncate toward zero. Anything else is an error.
func coerceInt(v any) (int, error) {
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, eris.Errorf("sefirot: non-numeric score %q", n)
		}
		return i, nil
	default:
		return 0, eris.Errorf("sefirot: non-numeric score of type %T", v)
	}
}

// truncate returns at most n runes of s. Prompt context blocks cap upstream
// snippets so one verbose stage cannot crowd out the next prompt.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }

func round4(f float64) float64 { return math.Round(f*10000) / 10000 }

// fmtNum renders a number compactly for prompt text ("85", "0.75", "93.33").
func fmtNum(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// metricOr renders a stage's numeric derived metric, or fallback when the
// stage or the metric is absent.
func metricOr(r *model.StageResult, key, fallback string) string {
	if v, ok := r.Metric(key); ok {
		return fmtNum(v)
	}
	return fallback
}

// metricStringOr renders a stage's string derived metric with a fallback.
func metricStringOr(r *model.StageResult, key, fallback string) string {
	if s := r.MetricString(key); s != "" {
		return s
	}
	return fallback
}

// qualityOr renders a stage's quality label with a fallback.
func qualityOr(r *model.StageResult, fallback string) string {
	if r != nil && r.QualityLabel != "" {
		return r.QualityLabel
	}
	return fallback
}

// joinFirst joins up to n string items of l, truncating each to maxRunes
// when maxRunes > 0.
func joinFirst(l []any, n, maxRunes int) string {
	parts := make([]string, 0, n)
	for _, v := range l {
		if len(parts) == n {
			break
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		if maxRunes > 0 {
			s = truncate(s, maxRunes)
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}

// joinField joins the named string field of up to n record items of l,
// truncating each to maxRunes when maxRunes > 0.
func joinField(l []any, field string, n, maxRunes int) string {
	parts := make([]string, 0, n)
	for _, v := range l {
		if len(parts) == n {
			break
		}
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		s := str(m, field)
		if maxRunes > 0 {
			s = truncate(s, maxRunes)
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}
