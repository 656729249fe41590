package gateway

import (
	"encoding/json"
	"regexp"
	"strings"
)

// The model is asked, but not guaranteed, to emit pure JSON. The recurring
// failure shapes: the object wrapped in a markdown fence, prose before or
// after it, and stray control characters inside it.
var (
	openFenceRe  = regexp.MustCompile("```json\\s*")
	closeFenceRe = regexp.MustCompile("```\\s*$")
	controlRe    = regexp.MustCompile(`[\x00-\x1f\x7f-\x9f]`)
)

// ExtractStructured parses a model response into a JSON object. It strips
// fence markers and control characters, attempts a strict parse, and on
// failure retries against the span from the first "{" to the last "}".
// Both attempts failing yields a MalformedResponseError carrying the
// original text.
func ExtractStructured(response string) (map[string]any, error) {
	cleaned := openFenceRe.ReplaceAllString(response, "")
	cleaned = closeFenceRe.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)
	cleaned = controlRe.ReplaceAllString(cleaned, "")

	var out map[string]any
	err := json.Unmarshal([]byte(cleaned), &out)
	if err == nil {
		return out, nil
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		span := controlRe.ReplaceAllString(cleaned[start:end+1], "")
		out = nil
		if spanErr := json.Unmarshal([]byte(span), &out); spanErr == nil {
			return out, nil
		}
	}

	return nil, NewMalformedResponseError(response, err)
}
