package layers

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sknet/tensor"
)

func TestBatchNorm2D_EvalUsesRunningStats(t *testing.T) {
	bn, err := NewBatchNorm2D(2)
	require.NoError(t, err)

	bn.RunningMean.Data[0] = 1
	bn.RunningMean.Data[1] = 2
	bn.RunningVar.Data[0] = 4
	bn.RunningVar.Data[1] = 9
	bn.Gamma.Data[1] = 2
	bn.Beta.Data[1] = 1

	in := tensor.New(1, 2, 1, 2)
	copy(in.Data, []float64{3, 5, 5, 8})
	out, err := bn.Forward(in)
	require.NoError(t, err)

	assert.InDelta(t, (3-1)/math.Sqrt(4+1e-5), out.Data[0], 1e-9)
	assert.InDelta(t, (5-1)/math.Sqrt(4+1e-5), out.Data[1], 1e-9)
	assert.InDelta(t, 2*(5-2)/math.Sqrt(9+1e-5)+1, out.Data[2], 1e-9)
	assert.InDelta(t, 2*(8-2)/math.Sqrt(9+1e-5)+1, out.Data[3], 1e-9)
}

func TestBatchNorm2D_FreshLayerIsNearIdentity(t *testing.T) {
	bn, err := NewBatchNorm2D(1)
	require.NoError(t, err)

	in := seqInput(1, 2)
	out, err := bn.Forward(in)
	require.NoError(t, err)

	// Mean 0, var 1, gamma 1, beta 0: only eps perturbs the values.
	for i := range in.Data {
		assert.InDelta(t, in.Data[i], out.Data[i], 1e-4)
	}
}

func TestBatchNorm2D_TrainingNormalizesBatch(t *testing.T) {
	bn, err := NewBatchNorm2D(1)
	require.NoError(t, err)
	bn.SetTraining(true)

	in := tensor.New(2, 1, 2, 2)
	copy(in.Data, []float64{1, 2, 3, 4, 5, 6, 7, 8})
	out, err := bn.Forward(in)
	require.NoError(t, err)

	mean := 0.0
	for _, v := range out.Data {
		mean += v
	}
	mean /= float64(len(out.Data))
	variance := 0.0
	for _, v := range out.Data {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(out.Data))
	assert.InDelta(t, 0.0, mean, 1e-9)
	assert.InDelta(t, 1.0, variance, 1e-4)

	// Running stats moved toward the batch: mean 4.5, unbiased var 6.
	assert.InDelta(t, 0.45, bn.RunningMean.Data[0], 1e-9)
	assert.InDelta(t, 0.9+0.1*6.0, bn.RunningVar.Data[0], 1e-9)
}

func TestBatchNorm2D_ZeroGamma(t *testing.T) {
	bn, err := NewBatchNorm2D(3)
	require.NoError(t, err)
	bn.ZeroGamma()

	in := seqInput(3, 2)
	out, err := bn.Forward(in)
	require.NoError(t, err)
	for i, v := range out.Data {
		assert.Zero(t, v, "at %d", i)
	}
}

func TestBatchNorm2D_ChannelMismatch(t *testing.T) {
	bn, err := NewBatchNorm2D(4)
	require.NoError(t, err)
	_, err = bn.Forward(seqInput(3, 2))
	assert.Error(t, err)
}

func TestBatchNorm2D_NamedParams(t *testing.T) {
	bn, err := NewBatchNorm2D(8)
	require.NoError(t, err)

	params := map[string]*tensor.Tensor{}
	bn.NamedParams("bn1", params)
	for _, name := range []string{"bn1.weight", "bn1.bias", "bn1.running_mean", "bn1.running_var"} {
		assert.Contains(t, params, name)
	}
}
