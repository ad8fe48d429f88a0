package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sknet/nn"
)

func TestModels_ListsRegisteredArchitectures(t *testing.T) {
	assert.Equal(t, []string{"skresnet18", "skresnet26d", "sksresnet18"}, Models(""))
}

func TestModels_FiltersWithGlobs(t *testing.T) {
	assert.Equal(t, []string{"skresnet18", "skresnet26d"}, Models("skresnet*"))
	assert.Equal(t, []string{"skresnet26d"}, Models("*26d"))
	assert.Empty(t, Models("resnext*"))
}

func TestIsModel(t *testing.T) {
	assert.True(t, IsModel("skresnet18"))
	assert.True(t, IsModel("sksresnet18"))
	assert.False(t, IsModel("resnet50"))
}

func TestEntrypoint(t *testing.T) {
	factory, ok := Entrypoint("skresnet26d")
	assert.True(t, ok)
	assert.NotNil(t, factory)

	_, ok = Entrypoint("resnet50")
	assert.False(t, ok)
}

func TestDefaultConfig(t *testing.T) {
	cfg, ok := DefaultConfig("skresnet26d")
	require.True(t, ok)
	assert.Equal(t, "skresnet26d", cfg.Architecture)
	assert.Equal(t, "conv1.0", cfg.FirstConv)

	cfg, ok = DefaultConfig("sksresnet18")
	require.True(t, ok)
	assert.Equal(t, "sksresnet18", cfg.Architecture)
	assert.Equal(t, 1000, cfg.NumClasses)
	assert.Equal(t, "conv1", cfg.FirstConv)

	_, ok = DefaultConfig("resnet50")
	assert.False(t, ok)
}

func TestCreate(t *testing.T) {
	model, err := Create("skresnet18", false, 10, 3)
	require.NoError(t, err)
	assert.Equal(t, 10, model.NumClasses())

	_, err = Create("resnet50", false, 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown architecture")
}

func TestCreate_PassesOverrides(t *testing.T) {
	model, err := Create("skresnet18", false, 10, 3, WithSE())
	require.NoError(t, err)
	assert.Contains(t, nn.Params(model), "layer1.0.se.fc1.weight")
}

func TestRegister_DuplicatePanics(t *testing.T) {
	assert.Panics(t, func() { Register("skresnet18", SKResNet18) })
}
