package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tikun-labs/sefirot-cli/internal/routing"
)

func TestFormatStagesTable(t *testing.T) {
	var buf bytes.Buffer
	formatStagesTable(&buf, routing.Defaults())

	output := buf.String()
	assert.Contains(t, output, "STAGE")
	assert.Contains(t, output, "PROVIDER")
	assert.Contains(t, output, "keter")
	assert.Contains(t, output, "malchut")
	assert.Contains(t, output, "כתר")
	assert.Contains(t, output, "gemini")
	assert.Contains(t, output, "gemini-2.0-flash-exp")
	assert.Contains(t, output, "Dual perspective (binah sigma):")
	assert.Contains(t, output, "west")
	assert.Contains(t, output, "east")
	assert.Contains(t, output, "synthesis")
	assert.Contains(t, output, "deepseek-chat")
}

func TestFormatStagesTable_PipelineOrder(t *testing.T) {
	var buf bytes.Buffer
	formatStagesTable(&buf, routing.Defaults())

	output := buf.String()
	keter := strings.Index(output, "keter")
	yesod := strings.Index(output, "yesod")
	malchut := strings.Index(output, "malchut")
	assert.True(t, keter >= 0 && keter < yesod && yesod < malchut,
		"stages should print in pipeline order")

	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "malchut") {
			assert.True(t, strings.HasPrefix(line, "10"), "malchut row should be numbered 10")
		}
	}
}
