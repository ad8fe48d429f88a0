package layers

import (
	"fmt"
	"math"

	"sknet/nn"
	"sknet/tensor"
)

// BatchNorm2D normalizes each channel of an NCHW tensor. In inference mode
// it uses the tracked running statistics; in training mode it uses batch
// statistics and updates the running ones.
type BatchNorm2D struct {
	chans    int
	eps      float64
	momentum float64
	training bool

	Gamma       *tensor.Tensor // scale: [chans]
	Beta        *tensor.Tensor // shift: [chans]
	RunningMean *tensor.Tensor // [chans]
	RunningVar  *tensor.Tensor // [chans]
}

// NewBatchNorm2D creates a BatchNorm2D with scale 1, shift 0, running mean 0
// and running variance 1 (eps 1e-5, momentum 0.1).
func NewBatchNorm2D(chans int) (*BatchNorm2D, error) {
	if chans <= 0 {
		return nil, fmt.Errorf("batchnorm2d: non-positive channel count %d", chans)
	}
	bn := &BatchNorm2D{
		chans:       chans,
		eps:         1e-5,
		momentum:    0.1,
		Gamma:       tensor.New(chans),
		Beta:        tensor.New(chans),
		RunningMean: tensor.New(chans),
		RunningVar:  tensor.New(chans),
	}
	bn.Gamma.Fill(1)
	bn.RunningVar.Fill(1)
	return bn, nil
}

// ZeroGamma zeroes the scale so the layer initially outputs its shift only.
// Residual blocks use this to start out as identity mappings.
func (bn *BatchNorm2D) ZeroGamma() {
	bn.Gamma.Fill(0)
}

// SetTraining switches between batch statistics and running statistics.
func (bn *BatchNorm2D) SetTraining(training bool) {
	bn.training = training
}

// Forward normalizes the input, which must be [batch, chans, H, W].
func (bn *BatchNorm2D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 4 {
		return nil, fmt.Errorf("batchnorm2d: input must be 4D [batch, chan, height, width], got %v", input.Shape)
	}
	batch, chans, height, width := input.Shape[0], input.Shape[1], input.Shape[2], input.Shape[3]
	if chans != bn.chans {
		return nil, fmt.Errorf("batchnorm2d: expected %d channels, got %d", bn.chans, chans)
	}

	plane := height * width
	output := tensor.New(input.Shape...)

	for c := 0; c < chans; c++ {
		mean := bn.RunningMean.Data[c]
		variance := bn.RunningVar.Data[c]
		if bn.training {
			// Batch statistics over every element of the channel.
			n := float64(batch * plane)
			sum := 0.0
			for b := 0; b < batch; b++ {
				off := (b*chans + c) * plane
				for i := 0; i < plane; i++ {
					sum += input.Data[off+i]
				}
			}
			mean = sum / n
			sqSum := 0.0
			for b := 0; b < batch; b++ {
				off := (b*chans + c) * plane
				for i := 0; i < plane; i++ {
					d := input.Data[off+i] - mean
					sqSum += d * d
				}
			}
			variance = sqSum / n
			// Running stats take the unbiased variance.
			unbiased := variance
			if n > 1 {
				unbiased = sqSum / (n - 1)
			}
			bn.RunningMean.Data[c] = (1-bn.momentum)*bn.RunningMean.Data[c] + bn.momentum*mean
			bn.RunningVar.Data[c] = (1-bn.momentum)*bn.RunningVar.Data[c] + bn.momentum*unbiased
		}

		scale := bn.Gamma.Data[c] / math.Sqrt(variance+bn.eps)
		shift := bn.Beta.Data[c] - mean*scale
		for b := 0; b < batch; b++ {
			off := (b*chans + c) * plane
			for i := 0; i < plane; i++ {
				output.Data[off+i] = input.Data[off+i]*scale + shift
			}
		}
	}
	return output, nil
}

// NamedParams registers scale, shift and both running statistics.
func (bn *BatchNorm2D) NamedParams(prefix string, dst map[string]*tensor.Tensor) {
	dst[nn.JoinName(prefix, "weight")] = bn.Gamma
	dst[nn.JoinName(prefix, "bias")] = bn.Beta
	dst[nn.JoinName(prefix, "running_mean")] = bn.RunningMean
	dst[nn.JoinName(prefix, "running_var")] = bn.RunningVar
}
