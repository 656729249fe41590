package gateway

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractStructured_StrictJSON(t *testing.T) {
	out, err := ExtractStructured(`{"alignment_score": 0.75, "valid": true}`)
	require.NoError(t, err)
	assert.Equal(t, 0.75, out["alignment_score"])
	assert.Equal(t, true, out["valid"])
}

func TestExtractStructured_JSONFence(t *testing.T) {
	response := "```json\n{\"key\": \"value\", \"n\": 3}\n```"
	out, err := ExtractStructured(response)
	require.NoError(t, err)
	assert.Equal(t, "value", out["key"])
	assert.Equal(t, float64(3), out["n"])
}

func TestExtractStructured_PlainFence(t *testing.T) {
	// A bare opening fence is not stripped; the brace-span fallback
	// recovers the object.
	response := "```\n{\"key\": \"value\"}\n```"
	out, err := ExtractStructured(response)
	require.NoError(t, err)
	assert.Equal(t, "value", out["key"])
}

func TestExtractStructured_SurroundingProse(t *testing.T) {
	response := `Here is the analysis you asked for:

{"insights": ["a", "b"], "score": 42}

Let me know if you need anything else.`
	out, err := ExtractStructured(response)
	require.NoError(t, err)
	assert.Equal(t, float64(42), out["score"])
	insights, ok := out["insights"].([]any)
	require.True(t, ok)
	assert.Len(t, insights, 2)
}

func TestExtractStructured_ControlCharacters(t *testing.T) {
	// Raw control bytes inside the payload are invalid JSON until stripped.
	response := "{\"key\": \"val\x01ue\", \"n\": 1}"
	out, err := ExtractStructured(response)
	require.NoError(t, err)
	assert.Equal(t, "value", out["key"])
}

func TestExtractStructured_EscapedNewlinesSurvive(t *testing.T) {
	// Escaped sequences are two characters in the raw text, not control
	// bytes, and must come through intact.
	response := `{"text": "line1\nline2"}`
	out, err := ExtractStructured(response)
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2", out["text"])
}

func TestExtractStructured_NestedObject(t *testing.T) {
	response := `{"outer": {"inner": {"deep": 1}}, "list": [{"x": 2}]}`
	out, err := ExtractStructured(response)
	require.NoError(t, err)
	outer, ok := out["outer"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, outer, "inner")
}

func TestExtractStructured_FencedWithProse(t *testing.T) {
	response := "The model concluded:\n```json\n{\"verdict\": \"go\"}\n```"
	out, err := ExtractStructured(response)
	require.NoError(t, err)
	assert.Equal(t, "go", out["verdict"])
}

func TestExtractStructured_ObjectInsideArray(t *testing.T) {
	// A top-level array is not an object; the fallback takes the span from
	// the first "{" to the last "}".
	out, err := ExtractStructured(`[{"only": "entry"}]`)
	require.NoError(t, err)
	assert.Equal(t, "entry", out["only"])
}

func TestExtractStructured_Malformed(t *testing.T) {
	_, err := ExtractStructured("I could not produce the requested output.")
	require.Error(t, err)
	assert.True(t, IsMalformedResponse(err))

	var m *MalformedResponseError
	require.True(t, errors.As(err, &m))
	assert.Equal(t, "I could not produce the requested output.", m.Original)
}

func TestExtractStructured_MalformedBraces(t *testing.T) {
	// The brace span exists but is not valid JSON.
	_, err := ExtractStructured(`prefix {not json at all} suffix`)
	require.Error(t, err)
	assert.True(t, IsMalformedResponse(err))
}

func TestExtractStructured_Empty(t *testing.T) {
	_, err := ExtractStructured("")
	require.Error(t, err)
	assert.True(t, IsMalformedResponse(err))
}

func TestExtractStructured_OriginalTruncated(t *testing.T) {
	long := strings.Repeat("x", 2000)
	_, err := ExtractStructured(long)
	require.Error(t, err)

	var m *MalformedResponseError
	require.True(t, errors.As(err, &m))
	assert.Len(t, m.Original, 500)
}

func TestIsMalformedResponse_OtherError(t *testing.T) {
	assert.False(t, IsMalformedResponse(errors.New("boom")))
	assert.False(t, IsMalformedResponse(nil))
}
