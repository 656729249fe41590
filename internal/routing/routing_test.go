package routing

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tikun-labs/sefirot-cli/internal/gateway"
	"github.com/tikun-labs/sefirot-cli/internal/model"
)

func TestDefaults_AllStagesRouted(t *testing.T) {
	table := Defaults()

	wantTemps := map[model.StageID]float64{
		model.StageKeter:    0.3,
		model.StageChochmah: 0.7,
		model.StageBinah:    0.5,
		model.StageChesed:   0.7,
		model.StageGevurah:  0.3,
		model.StageTiferet:  0.6,
		model.StageNetzach:  0.5,
		model.StageHod:      0.7,
		model.StageYesod:    0.4,
		model.StageMalchut:  0.3,
	}

	for _, id := range model.StageOrder {
		r, err := table.ForStage(id)
		require.NoError(t, err, "stage %s", id)
		assert.Equal(t, "gemini", r.Provider)
		assert.Equal(t, "gemini-2.0-flash-exp", r.Model)
		assert.Equal(t, wantTemps[id], r.Temperature, "stage %s", id)
	}
}

func TestDefaults_DualPerspectiveRoutes(t *testing.T) {
	table := Defaults()

	assert.Equal(t, "gemini", table.West().Provider)
	assert.Equal(t, 0.6, table.West().Temperature)

	assert.Equal(t, "deepseek", table.East().Provider)
	assert.Equal(t, "deepseek-chat", table.East().Model)

	assert.Equal(t, "gemini", table.Synthesis().Provider)
	assert.Equal(t, 0.5, table.Synthesis().Temperature)
}

func TestForStage_Unknown(t *testing.T) {
	table := Defaults()
	_, err := table.ForStage(model.StageID("daat"))
	require.Error(t, err)

	var ue *gateway.UnknownStageError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "daat", ue.Stage)
}

func TestStages_PipelineOrder(t *testing.T) {
	routes := Defaults().Stages()
	require.Len(t, routes, 10)
	assert.Equal(t, model.StageKeter, routes[0].Stage)
	assert.Equal(t, model.StageMalchut, routes[9].Stage)
}

func writeRouting(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "routing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Overrides(t *testing.T) {
	path := writeRouting(t, `
routing:
  stages:
    binah:
      provider: claude
      model: claude-sonnet-4-20250514
      temperature: 0.4
  east:
    model: deepseek-reasoner
`)

	table, err := Load(path)
	require.NoError(t, err)

	binah, err := table.ForStage(model.StageBinah)
	require.NoError(t, err)
	assert.Equal(t, "claude", binah.Provider)
	assert.Equal(t, "claude-sonnet-4-20250514", binah.Model)
	assert.Equal(t, 0.4, binah.Temperature)

	// Partial override keeps defaults for unnamed fields.
	assert.Equal(t, "deepseek", table.East().Provider)
	assert.Equal(t, "deepseek-reasoner", table.East().Model)
	assert.Equal(t, 0.6, table.East().Temperature)

	// Untouched stages stay at defaults.
	keter, err := table.ForStage(model.StageKeter)
	require.NoError(t, err)
	assert.Equal(t, "gemini", keter.Provider)
	assert.Equal(t, 0.3, keter.Temperature)
}

func TestLoad_PartialStageOverride(t *testing.T) {
	path := writeRouting(t, `
routing:
  stages:
    malchut:
      model: gemini-1.5-pro
`)

	table, err := Load(path)
	require.NoError(t, err)

	malchut, err := table.ForStage(model.StageMalchut)
	require.NoError(t, err)
	assert.Equal(t, "gemini", malchut.Provider)
	assert.Equal(t, "gemini-1.5-pro", malchut.Model)
	assert.Equal(t, 0.3, malchut.Temperature)
}

func TestLoad_ExplicitZeroTemperature(t *testing.T) {
	path := writeRouting(t, `
routing:
  stages:
    keter:
      temperature: 0
`)

	table, err := Load(path)
	require.NoError(t, err)

	keter, err := table.ForStage(model.StageKeter)
	require.NoError(t, err)
	assert.Equal(t, 0.0, keter.Temperature)
}

func TestLoad_UnknownStage(t *testing.T) {
	path := writeRouting(t, `
routing:
  stages:
    nonsense:
      provider: gemini
`)

	_, err := Load(path)
	require.Error(t, err)

	var ue *gateway.UnknownStageError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "nonsense", ue.Stage)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeRouting(t, "routing: [not a map")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}
