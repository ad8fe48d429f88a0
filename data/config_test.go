package data

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sknet/models"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigFile_YAML(t *testing.T) {
	path := writeConfig(t, "cfg.yaml", `
architecture: custom
num_classes: 10
input_size: [1, 28, 28]
interpolation: nearest
crop_pct: 1.0
mean: [0.5, 0.5, 0.5]
std: [0.25, 0.25, 0.25]
`)

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "custom", cfg.Architecture)
	assert.Equal(t, 10, cfg.NumClasses)
	assert.Equal(t, [3]int{1, 28, 28}, cfg.InputSize)
	assert.Equal(t, "nearest", cfg.Interpolation)
	assert.Equal(t, 1.0, cfg.CropPct)
	assert.Equal(t, [3]float64{0.5, 0.5, 0.5}, cfg.Mean)
	assert.Equal(t, [3]float64{0.25, 0.25, 0.25}, cfg.Std)
}

func TestLoadConfigFile_JSON(t *testing.T) {
	path := writeConfig(t, "cfg.json", `{"num_classes": 7, "crop_pct": 0.9, "first_conv": "conv1.0"}`)

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.NumClasses)
	assert.Equal(t, 0.9, cfg.CropPct)
	assert.Equal(t, "conv1.0", cfg.FirstConv)
}

func TestLoadConfigFile_TOML(t *testing.T) {
	path := writeConfig(t, "cfg.toml", `
num_classes = 12
interpolation = "bicubic"
input_size = [3, 32, 32]
`)

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.NumClasses)
	assert.Equal(t, "bicubic", cfg.Interpolation)
	assert.Equal(t, [3]int{3, 32, 32}, cfg.InputSize)
}

func TestLoadConfigFile_Errors(t *testing.T) {
	_, err := LoadConfigFile("")
	assert.Error(t, err)

	_, err = LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := writeConfig(t, "cfg.txt", "num_classes: 10")
	_, err = LoadConfigFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config extension")

	path = writeConfig(t, "bad.yaml", "num_classes: [not a number")
	_, err = LoadConfigFile(path)
	assert.Error(t, err)
}

func TestResolveConfig_OverlaysNonZeroFields(t *testing.T) {
	base, ok := models.DefaultConfig("skresnet18")
	require.True(t, ok)

	path := writeConfig(t, "override.yaml", "num_classes: 10\ninterpolation: nearest\n")
	merged, err := ResolveConfig(base, path)
	require.NoError(t, err)

	assert.Equal(t, 10, merged.NumClasses)
	assert.Equal(t, "nearest", merged.Interpolation)
	// Untouched fields keep the model defaults.
	assert.Equal(t, base.Mean, merged.Mean)
	assert.Equal(t, base.CropPct, merged.CropPct)
	assert.Equal(t, base.InputSize, merged.InputSize)
}

func TestResolveConfig_EmptyPathKeepsBase(t *testing.T) {
	base, ok := models.DefaultConfig("skresnet26d")
	require.True(t, ok)

	merged, err := ResolveConfig(base, "")
	require.NoError(t, err)
	assert.Equal(t, base, merged)
}
