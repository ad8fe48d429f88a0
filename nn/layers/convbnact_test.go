package layers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sknet/tensor"
)

func TestConvBnAct_Stride1PreservesSize(t *testing.T) {
	cba, err := NewConvBnAct(3, 8, ConvBnActOpts{Kernel: 3})
	require.NoError(t, err)

	out, err := cba.Forward(seqInput(3, 7))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 8, 7, 7}, out.Shape)
}

func TestConvBnAct_Stride2HalvesSize(t *testing.T) {
	cba, err := NewConvBnAct(3, 8, ConvBnActOpts{Kernel: 3, Stride: 2})
	require.NoError(t, err)

	out, err := cba.Forward(seqInput(3, 8))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 8, 4, 4}, out.Shape)
}

func TestConvBnAct_DilationPreservesSize(t *testing.T) {
	cba, err := NewConvBnAct(2, 2, ConvBnActOpts{Kernel: 3, Dilation: 2})
	require.NoError(t, err)

	out, err := cba.Forward(seqInput(2, 9))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 9, 9}, out.Shape)
}

func TestConvBnAct_ActClampsNegatives(t *testing.T) {
	withAct, err := NewConvBnAct(1, 1, ConvBnActOpts{})
	require.NoError(t, err)
	withAct.Conv.W.Set(-1, 0, 0, 0, 0)

	out, err := withAct.Forward(seqInput(1, 2))
	require.NoError(t, err)
	for i, v := range out.Data {
		assert.Zero(t, v, "at %d", i)
	}
}

func TestConvBnAct_NoActKeepsNegatives(t *testing.T) {
	noAct, err := NewConvBnAct(1, 1, ConvBnActOpts{NoAct: true})
	require.NoError(t, err)
	noAct.Conv.W.Set(-1, 0, 0, 0, 0)

	out, err := noAct.Forward(seqInput(1, 2))
	require.NoError(t, err)
	for i, v := range out.Data {
		assert.Negative(t, v, "at %d", i)
	}
}

func TestConvBnAct_NamedParams(t *testing.T) {
	cba, err := NewConvBnAct(3, 8, ConvBnActOpts{Kernel: 3})
	require.NoError(t, err)

	params := map[string]*tensor.Tensor{}
	cba.NamedParams("conv2", params)
	assert.Contains(t, params, "conv2.conv.weight")
	assert.Contains(t, params, "conv2.bn.weight")
	assert.Contains(t, params, "conv2.bn.running_mean")
	assert.NotContains(t, params, "conv2.conv.bias", "conv carries no bias before a norm")
}

func TestConvBnAct_SetTrainingReachesNorm(t *testing.T) {
	cba, err := NewConvBnAct(1, 4, ConvBnActOpts{Kernel: 3})
	require.NoError(t, err)
	cba.SetTraining(true)

	_, err = cba.Forward(seqInput(1, 6))
	require.NoError(t, err)

	moved := false
	for _, v := range cba.Bn.RunningMean.Data {
		if v != 0 {
			moved = true
		}
	}
	assert.True(t, moved, "training forward should update running stats")
}
