package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sknet/nn"
	"sknet/nn/layers"
	"sknet/tensor"
)

// blockInput returns a [1, chans, side, side] tensor with a repeating
// non-constant pattern.
func blockInput(chans, side int) *tensor.Tensor {
	x := tensor.New(1, chans, side, side)
	for i := range x.Data {
		x.Data[i] = float64(i%13)/6.5 - 1
	}
	return x
}

func assertAllEqual(t *testing.T, data []float64, want float64) {
	t.Helper()
	for i, v := range data {
		if v != want {
			t.Fatalf("element %d = %f, want %f", i, v, want)
		}
	}
}

func TestSelectiveKernelBasic_OutputChannels(t *testing.T) {
	sk := layers.DefaultSelectiveKernelConfig()
	block, err := NewSelectiveKernelBasic(BlockArgs{InPlanes: 32, Planes: 32}, sk)
	require.NoError(t, err)

	out, err := block.Forward(blockInput(32, 8))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 32, 8, 8}, out.Shape)
}

func TestSelectiveKernelBasic_RejectsGroupedConfig(t *testing.T) {
	sk := layers.DefaultSelectiveKernelConfig()

	_, err := NewSelectiveKernelBasic(BlockArgs{InPlanes: 32, Planes: 32, Cardinality: 2}, sk)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cardinality")

	_, err = NewSelectiveKernelBasic(BlockArgs{InPlanes: 32, Planes: 32, BaseWidth: 32}, sk)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base width")
}

func TestSelectiveKernelBasic_DownsampleProjectsResidual(t *testing.T) {
	sk := layers.DefaultSelectiveKernelConfig()
	down, err := downsampleConv(16, 32, 1, 2, 1)
	require.NoError(t, err)

	block, err := NewSelectiveKernelBasic(BlockArgs{InPlanes: 16, Planes: 32, Stride: 2, Downsample: down}, sk)
	require.NoError(t, err)

	out, err := block.Forward(blockInput(16, 8))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 32, 4, 4}, out.Shape)
}

func TestSelectiveKernelBasic_ZeroInitLastBN(t *testing.T) {
	sk := layers.DefaultSelectiveKernelConfig()
	block, err := NewSelectiveKernelBasic(BlockArgs{InPlanes: 32, Planes: 32}, sk)
	require.NoError(t, err)

	block.ZeroInitLastBN()

	assertAllEqual(t, block.Conv2.Bn.Gamma.Data, 0)
	// The branch norms keep their scale.
	assertAllEqual(t, block.Conv1.Paths[0].Bn.Gamma.Data, 1)
	assertAllEqual(t, block.Conv1.Attn.Bn.Gamma.Data, 1)
}

func TestSelectiveKernelBasic_ParamNames(t *testing.T) {
	sk := layers.DefaultSelectiveKernelConfig()
	down, err := downsampleConv(16, 32, 1, 2, 1)
	require.NoError(t, err)

	block, err := NewSelectiveKernelBasic(BlockArgs{
		InPlanes: 16, Planes: 32, Stride: 2, Downsample: down, UseSE: true,
	}, sk)
	require.NoError(t, err)

	params := nn.Params(block)
	for _, name := range []string{
		"conv1.paths.0.conv.weight",
		"conv1.paths.1.bn.running_mean",
		"conv1.attn.fc_reduce.weight",
		"conv1.attn.fc_select.weight",
		"conv2.conv.weight",
		"conv2.bn.running_var",
		"se.fc1.weight",
		"se.fc2.bias",
		"downsample.0.weight",
		"downsample.1.weight",
	} {
		assert.Contains(t, params, name)
	}
}

func TestSelectiveKernelBottleneck_ExpandsChannels(t *testing.T) {
	sk := layers.DefaultSelectiveKernelConfig()
	block, err := NewSelectiveKernelBottleneck(BlockArgs{InPlanes: 64, Planes: 16}, sk)
	require.NoError(t, err)

	out, err := block.Forward(blockInput(64, 8))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 64, 8, 8}, out.Shape)
}

func TestSelectiveKernelBottleneck_GroupedWidth(t *testing.T) {
	sk := layers.DefaultSelectiveKernelConfig()
	// width = floor(16 * 128/64) * 2 = 64, grouped into 2
	block, err := NewSelectiveKernelBottleneck(BlockArgs{
		InPlanes: 64, Planes: 16, Cardinality: 2, BaseWidth: 128,
	}, sk)
	require.NoError(t, err)

	params := nn.Params(block)
	w := params["conv2.paths.0.conv.weight"]
	require.NotNil(t, w)
	assert.Equal(t, []int{64, 32, 3, 3}, w.Shape)
}

func TestSelectiveKernelBottleneck_ZeroInitLastBN(t *testing.T) {
	sk := layers.DefaultSelectiveKernelConfig()
	block, err := NewSelectiveKernelBottleneck(BlockArgs{InPlanes: 64, Planes: 16}, sk)
	require.NoError(t, err)

	block.ZeroInitLastBN()

	assertAllEqual(t, block.Conv3.Bn.Gamma.Data, 0)
	assertAllEqual(t, block.Conv1.Bn.Gamma.Data, 1)
	assertAllEqual(t, block.Conv2.Paths[0].Bn.Gamma.Data, 1)
}

func TestSKResNet18_ForwardShape(t *testing.T) {
	model, err := SKResNet18(false, 0, 0)
	require.NoError(t, err)

	out, err := model.Forward(blockInput(3, 224))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1000}, out.Shape)
}

func TestSKResNet18_ConfigTracksArgs(t *testing.T) {
	model, err := SKResNet18(false, 10, 1)
	require.NoError(t, err)

	cfg := model.Config()
	assert.Equal(t, "skresnet18", cfg.Architecture)
	assert.Equal(t, 10, cfg.NumClasses)
	assert.Equal(t, [3]int{1, 224, 224}, cfg.InputSize)
	assert.Equal(t, 10, model.NumClasses())
	assert.Equal(t, 512, model.Features())

	params := nn.Params(model)
	assert.Equal(t, []int{64, 1, 7, 7}, params["conv1.weight"].Shape)
	assert.Equal(t, []int{10, 512}, params["fc.weight"].Shape)
}

func TestSKResNet18_AttentionFloor(t *testing.T) {
	model, err := SKResNet18(false, 10, 3)
	require.NoError(t, err)

	// 64 channels over reduction 16 gives 4, floored at the model's 16.
	params := nn.Params(model)
	assert.Equal(t, []int{16, 64, 1, 1}, params["layer1.0.conv1.attn.fc_reduce.weight"].Shape)
	assert.Equal(t, []int{128, 16, 1, 1}, params["layer1.0.conv1.attn.fc_select.weight"].Shape)
}

func TestSKSResNet18_SplitsBranchInput(t *testing.T) {
	base, err := SKResNet18(false, 10, 3)
	require.NoError(t, err)
	split, err := SKSResNet18(false, 10, 3)
	require.NoError(t, err)

	pb, ps := nn.Params(base), nn.Params(split)
	require.Equal(t, len(pb), len(ps))

	for name, tb := range pb {
		ts, ok := ps[name]
		require.True(t, ok, "missing %s", name)
		if strings.Contains(name, "conv1.paths.") && strings.HasSuffix(name, ".conv.weight") {
			// Splitting the input halves each branch's input channels.
			assert.Equal(t, tb.Shape[1], 2*ts.Shape[1], name)
			assert.Equal(t, tb.Shape[0], ts.Shape[0], name)
			continue
		}
		assert.Equal(t, tb.Shape, ts.Shape, name)
	}
}

func TestSKResNet26d_DeepStemAndPooledShortcuts(t *testing.T) {
	model, err := SKResNet26d(false, 10, 3)
	require.NoError(t, err)
	assert.Equal(t, 2048, model.Features())

	params := nn.Params(model)
	// Three stem convs at positions 0, 3 and 6 of the stem Sequential.
	assert.Equal(t, []int{32, 3, 3, 3}, params["conv1.0.weight"].Shape)
	assert.Equal(t, []int{32, 32, 3, 3}, params["conv1.3.weight"].Shape)
	assert.Equal(t, []int{64, 32, 3, 3}, params["conv1.6.weight"].Shape)
	assert.Contains(t, params, "conv1.1.running_mean")
	assert.Contains(t, params, "bn1.weight")

	// Stage 1 projects without a pool, stage 2 pools first.
	assert.Equal(t, []int{256, 64, 1, 1}, params["layer1.0.downsample.0.weight"].Shape)
	assert.Equal(t, []int{512, 256, 1, 1}, params["layer2.0.downsample.1.weight"].Shape)

	// Literal 3x3 and 5x5 branches instead of dilated 3x3s.
	assert.Equal(t, []int{64, 64, 3, 3}, params["layer1.0.conv2.paths.0.conv.weight"].Shape)
	assert.Equal(t, []int{64, 64, 5, 5}, params["layer1.0.conv2.paths.1.conv.weight"].Shape)
}

func TestSKResNet26d_ForwardShape(t *testing.T) {
	model, err := SKResNet26d(false, 10, 3)
	require.NoError(t, err)

	out, err := model.Forward(blockInput(3, 64))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 10}, out.Shape)
}

func TestZeroInitLastBN_OnlyLastNorms(t *testing.T) {
	model, err := SKResNet18(false, 10, 3)
	require.NoError(t, err)

	params := nn.Params(model)
	assertAllEqual(t, params["layer1.0.conv2.bn.weight"].Data, 0)
	assertAllEqual(t, params["layer4.1.conv2.bn.weight"].Data, 0)
	assertAllEqual(t, params["layer1.0.conv1.paths.0.bn.weight"].Data, 1)
	assertAllEqual(t, params["layer1.0.conv1.attn.bn.weight"].Data, 1)
	assertAllEqual(t, params["bn1.weight"].Data, 1)

	plain, err := SKResNet18(false, 10, 3, WithZeroInitLastBN(false))
	require.NoError(t, err)
	assertAllEqual(t, nn.Params(plain)["layer1.0.conv2.bn.weight"].Data, 1)
}

func TestWithSEAddsGates(t *testing.T) {
	model, err := SKResNet18(false, 10, 3, WithSE())
	require.NoError(t, err)

	params := nn.Params(model)
	// Reduction channels are planes/4.
	assert.Equal(t, []int{16, 64, 1, 1}, params["layer1.0.se.fc1.weight"].Shape)
	assert.Equal(t, []int{64, 16, 1, 1}, params["layer1.0.se.fc2.weight"].Shape)
}
