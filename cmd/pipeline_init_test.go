package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tikun-labs/sefirot-cli/internal/config"
	"github.com/tikun-labs/sefirot-cli/internal/sefirot"
)

// validAnalysisConfig builds the minimal config that passes Validate for
// the analyze mode.
func validAnalysisConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Gemini: config.GeminiConfig{Key: "test-key"},
		Gateway: config.GatewayConfig{
			TimeoutSecs:       30,
			RequestsPerSecond: 2,
		},
		Pipeline: config.PipelineConfig{DualMode: "auto"},
		Store: config.StoreConfig{
			Driver: "sqlite",
			Path:   filepath.Join(t.TempDir(), "test.db"),
		},
		Export: config.ExportConfig{OutputDir: t.TempDir()},
	}
}

func TestAnalysisEnv_Close_Nil(t *testing.T) {
	env := &analysisEnv{}
	assert.NotPanics(t, func() {
		env.Close()
	})
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	cfg = &config.Config{
		Store: config.StoreConfig{Driver: "bolt"},
	}

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitAnalysis_InvalidConfig(t *testing.T) {
	cfg = validAnalysisConfig(t)
	cfg.Gemini.Key = ""

	env, err := initAnalysis(context.Background(), "analyze")
	assert.Nil(t, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider key")
}

func TestInitAnalysis_BadDualMode(t *testing.T) {
	cfg = validAnalysisConfig(t)
	cfg.Pipeline.DualMode = "sometimes"

	env, err := initAnalysis(context.Background(), "analyze")
	assert.Nil(t, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dual_mode")
}

func TestInitAnalysis_SQLite(t *testing.T) {
	cfg = validAnalysisConfig(t)

	env, err := initAnalysis(context.Background(), "analyze")
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Store)
	assert.NotNil(t, env.Table)
	assert.NotNil(t, env.Factory)
	assert.Equal(t, sefirot.DualAuto, env.DualMode)
	// No Notion config, so publishing stays off.
	assert.Nil(t, env.Publisher)
}

func TestInitAnalysis_NotionEnabled(t *testing.T) {
	cfg = validAnalysisConfig(t)
	cfg.Notion = config.NotionConfig{Token: "secret", RunsDB: "db-id"}

	env, err := initAnalysis(context.Background(), "analyze")
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Publisher)
}

func TestAnalysisEnv_Orchestrator(t *testing.T) {
	cfg = validAnalysisConfig(t)

	env, err := initAnalysis(context.Background(), "analyze")
	require.NoError(t, err)
	defer env.Close()

	orch, err := env.orchestrator()
	require.NoError(t, err)
	assert.NotNil(t, orch)
}
