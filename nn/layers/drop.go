package layers

import (
	"fmt"
	"math/rand"

	"sknet/tensor"
)

// DropPath zeroes the whole residual branch of individual samples with the
// given probability (stochastic depth). Survivors are rescaled so the
// expectation is unchanged. Inference mode is an identity.
type DropPath struct {
	rate     float64
	training bool
}

// NewDropPath creates a stochastic depth layer.
func NewDropPath(rate float64) (*DropPath, error) {
	if rate < 0 || rate >= 1 {
		return nil, fmt.Errorf("droppath: rate %f outside [0, 1)", rate)
	}
	return &DropPath{rate: rate}, nil
}

// SetTraining enables the stochastic behavior.
func (d *DropPath) SetTraining(training bool) { d.training = training }

// Forward drops samples of the input, which must have a leading batch dim.
func (d *DropPath) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if !d.training || d.rate == 0 {
		return input, nil
	}
	if len(input.Shape) < 1 {
		return nil, fmt.Errorf("droppath: input needs a batch dimension")
	}
	batch := input.Shape[0]
	per := len(input.Data) / batch
	keep := 1 - d.rate
	output := tensor.New(input.Shape...)
	for b := 0; b < batch; b++ {
		if rand.Float64() >= keep {
			continue
		}
		off := b * per
		for i := 0; i < per; i++ {
			output.Data[off+i] = input.Data[off+i] / keep
		}
	}
	return output, nil
}

// Dropout zeroes individual elements with the given probability during
// training, rescaling survivors. Inference mode is an identity.
type Dropout struct {
	rate     float64
	training bool
}

// NewDropout creates an element dropout layer.
func NewDropout(rate float64) (*Dropout, error) {
	if rate < 0 || rate >= 1 {
		return nil, fmt.Errorf("dropout: rate %f outside [0, 1)", rate)
	}
	return &Dropout{rate: rate}, nil
}

// SetTraining enables the stochastic behavior.
func (d *Dropout) SetTraining(training bool) { d.training = training }

// Forward drops elements of the input.
func (d *Dropout) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if !d.training || d.rate == 0 {
		return input, nil
	}
	keep := 1 - d.rate
	output := tensor.New(input.Shape...)
	for i, v := range input.Data {
		if rand.Float64() < keep {
			output.Data[i] = v / keep
		}
	}
	return output, nil
}

// DropBlock2D zeroes contiguous spatial blocks of feature map channels.
// Inference mode is an identity.
type DropBlock2D struct {
	rate       float64
	blockSize  int
	gammaScale float64
	training   bool
}

// NewDropBlock2D creates a block dropout layer.
func NewDropBlock2D(rate float64, blockSize int, gammaScale float64) (*DropBlock2D, error) {
	if rate < 0 || rate >= 1 {
		return nil, fmt.Errorf("dropblock2d: rate %f outside [0, 1)", rate)
	}
	if blockSize <= 0 {
		return nil, fmt.Errorf("dropblock2d: non-positive block size %d", blockSize)
	}
	return &DropBlock2D{rate: rate, blockSize: blockSize, gammaScale: gammaScale}, nil
}

// SetTraining enables the stochastic behavior.
func (d *DropBlock2D) SetTraining(training bool) { d.training = training }

// Forward drops blocks of the input, which must be [batch, chan, H, W].
func (d *DropBlock2D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if !d.training || d.rate == 0 {
		return input, nil
	}
	if len(input.Shape) != 4 {
		return nil, fmt.Errorf("dropblock2d: input must be 4D [batch, chan, height, width], got %v", input.Shape)
	}
	batch, chans, height, width := input.Shape[0], input.Shape[1], input.Shape[2], input.Shape[3]

	clipped := d.blockSize
	if height < clipped {
		clipped = height
	}
	if width < clipped {
		clipped = width
	}
	validH := height - d.blockSize + 1
	validW := width - d.blockSize + 1
	if validH <= 0 || validW <= 0 {
		return input, nil
	}
	// Seed probability chosen so the expected dropped fraction matches rate.
	gamma := d.gammaScale * d.rate * float64(height*width) /
		float64(clipped*clipped) / float64(validH*validW)

	plane := height * width
	kept := make([]bool, len(input.Data))
	for i := range kept {
		kept[i] = true
	}
	lo := clipped / 2
	hi := (clipped - 1) / 2
	keptCount := len(input.Data)
	for b := 0; b < batch; b++ {
		for c := 0; c < chans; c++ {
			off := (b*chans + c) * plane
			// Centers stay far enough from the edges for the block to fit.
			for cy := lo; cy < height-hi; cy++ {
				for cx := lo; cx < width-hi; cx++ {
					if rand.Float64() >= gamma {
						continue
					}
					for y := cy - lo; y <= cy+hi; y++ {
						for x := cx - lo; x <= cx+hi; x++ {
							idx := off + y*width + x
							if kept[idx] {
								kept[idx] = false
								keptCount--
							}
						}
					}
				}
			}
		}
	}

	scale := float64(len(input.Data)) / (float64(keptCount) + 1e-7)
	output := tensor.New(input.Shape...)
	for i, v := range input.Data {
		if kept[i] {
			output.Data[i] = v * scale
		}
	}
	return output, nil
}
