// Package model defines the core domain types shared across the pipeline:
// stage identifiers, stage results, the accumulated context, and the
// terminal pipeline result with its aggregate metrics.
package model

import (
	"time"
)

// StageID identifies one of the ten fixed pipeline stages.
type StageID string

const (
	StageKeter    StageID = "keter"
	StageChochmah StageID = "chochmah"
	StageBinah    StageID = "binah"
	StageChesed   StageID = "chesed"
	StageGevurah  StageID = "gevurah"
	StageTiferet  StageID = "tiferet"
	StageNetzach  StageID = "netzach"
	StageHod      StageID = "hod"
	StageYesod    StageID = "yesod"
	StageMalchut  StageID = "malchut"
)

// StageOrder is the canonical execution order. Every pipeline run visits
// all ten stages in exactly this sequence.
var StageOrder = []StageID{
	StageKeter,
	StageChochmah,
	StageBinah,
	StageChesed,
	StageGevurah,
	StageTiferet,
	StageNetzach,
	StageHod,
	StageYesod,
	StageMalchut,
}

var hebrewNames = map[StageID]string{
	StageKeter:    "כתר",
	StageChochmah: "חכמה",
	StageBinah:    "בינה",
	StageChesed:   "חסד",
	StageGevurah:  "גבורה",
	StageTiferet:  "תפארת",
	StageNetzach:  "נצח",
	StageHod:      "הוד",
	StageYesod:    "יסוד",
	StageMalchut:  "מלכות",
}

// Ordinal returns the 1-based pipeline position of the stage, or 0 for an
// unknown identifier.
func (s StageID) Ordinal() int {
	for i, id := range StageOrder {
		if id == s {
			return i + 1
		}
	}
	return 0
}

// HebrewName returns the traditional display name for the stage.
func (s StageID) HebrewName() string {
	return hebrewNames[s]
}

// Valid reports whether s is one of the ten known stage identifiers.
func (s StageID) Valid() bool {
	return s.Ordinal() > 0
}

// StageStatus is the terminal status of one stage execution.
type StageStatus string

const (
	StageStatusOK    StageStatus = "ok"
	StageStatusError StageStatus = "error"
)

// StageResult is the immutable record produced by exactly one stage
// execution. A result with Status == StageStatusError carries neither
// RawFields nor DerivedMetrics; downstream stages must tolerate its
// absence when summarizing upstream context.
type StageResult struct {
	StageID    StageID     `json:"sefira"`
	Position   int         `json:"sefira_number"`
	HebrewName string      `json:"hebrew_name,omitempty"`
	Status     StageStatus `json:"status"`
	Error      string      `json:"error,omitempty"`

	// RawFields is the structured LLM output after extraction/repair,
	// preserved verbatim. DerivedMetrics holds the deterministic scores
	// and ratings computed from RawFields.
	RawFields      map[string]any `json:"raw_fields,omitempty"`
	DerivedMetrics map[string]any `json:"derived_metrics,omitempty"`
	QualityLabel   string         `json:"quality_label,omitempty"`

	Model           string    `json:"model_used,omitempty"`
	Attempts        int       `json:"attempts,omitempty"`
	DurationSeconds float64   `json:"duration_seconds"`
	Timestamp       time.Time `json:"timestamp"`
}

// NewStageResult returns an ok-status result shell for the given stage
// with position and display name filled in.
func NewStageResult(id StageID) *StageResult {
	return &StageResult{
		StageID:    id,
		Position:   id.Ordinal(),
		HebrewName: id.HebrewName(),
		Status:     StageStatusOK,
		Timestamp:  time.Now().UTC(),
	}
}

// NewStageError returns an error-status result for the given stage. The
// result deliberately carries no fields or metrics.
func NewStageError(id StageID, err error) *StageResult {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &StageResult{
		StageID:    id,
		Position:   id.Ordinal(),
		HebrewName: id.HebrewName(),
		Status:     StageStatusError,
		Error:      msg,
		Timestamp:  time.Now().UTC(),
	}
}

// OK reports whether the stage completed successfully.
func (r *StageResult) OK() bool {
	return r != nil && r.Status == StageStatusOK
}

// Metric returns a numeric derived metric by key. Values stored as any
// numeric Go type are converted to float64. The second return is false
// when the key is missing or non-numeric.
func (r *StageResult) Metric(key string) (float64, bool) {
	if r == nil || r.DerivedMetrics == nil {
		return 0, false
	}
	return asFloat(r.DerivedMetrics[key])
}

// MetricOr returns a numeric derived metric by key, or def when the key
// is absent or non-numeric.
func (r *StageResult) MetricOr(key string, def float64) float64 {
	if v, ok := r.Metric(key); ok {
		return v
	}
	return def
}

// MetricString returns a categorical derived metric by key, or "" when
// absent.
func (r *StageResult) MetricString(key string) string {
	if r == nil || r.DerivedMetrics == nil {
		return ""
	}
	s, _ := r.DerivedMetrics[key].(string)
	return s
}

// StringField returns a text raw field by key, or "" when absent.
func (r *StageResult) StringField(key string) string {
	if r == nil || r.RawFields == nil {
		return ""
	}
	s, _ := r.RawFields[key].(string)
	return s
}

// ListField returns a list-valued raw field by key, or nil when absent.
func (r *StageResult) ListField(key string) []any {
	if r == nil || r.RawFields == nil {
		return nil
	}
	l, _ := r.RawFields[key].([]any)
	return l
}

// MapField returns a nested-record raw field by key, or nil when absent.
func (r *StageResult) MapField(key string) map[string]any {
	if r == nil || r.RawFields == nil {
		return nil
	}
	m, _ := r.RawFields[key].(map[string]any)
	return m
}

// BoolMetric returns a boolean derived metric by key; false when absent.
func (r *StageResult) BoolMetric(key string) bool {
	if r == nil || r.DerivedMetrics == nil {
		return false
	}
	b, _ := r.DerivedMetrics[key].(bool)
	return b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
