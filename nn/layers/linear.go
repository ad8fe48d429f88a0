package layers

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"sknet/nn"
	"sknet/tensor"
)

// Linear is a fully-connected layer over [batch, inDim] tensors.
type Linear struct {
	inDim, outDim int

	W *tensor.Tensor // weights: [outDim, inDim]
	B *tensor.Tensor // bias: [outDim]
}

// NewLinear creates a Linear layer with fan-in uniform initialization.
func NewLinear(inDim, outDim int) (*Linear, error) {
	if inDim <= 0 || outDim <= 0 {
		return nil, fmt.Errorf("linear: non-positive dimension (in=%d out=%d)", inDim, outDim)
	}
	l := &Linear{
		inDim:  inDim,
		outDim: outDim,
		W:      tensor.New(outDim, inDim),
		B:      tensor.New(outDim),
	}
	nn.UniformFanIn(l.W, inDim)
	nn.UniformFanIn(l.B, inDim)
	return l, nil
}

// Forward computes x*W^T + b for input [batch, inDim].
func (l *Linear) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 2 {
		return nil, fmt.Errorf("linear: input must be 2D [batch, features], got %v", input.Shape)
	}
	batch, features := input.Shape[0], input.Shape[1]
	if features != l.inDim {
		return nil, fmt.Errorf("linear: expected %d input features, got %d", l.inDim, features)
	}

	output := tensor.New(batch, l.outDim)
	xm := mat.NewDense(batch, l.inDim, input.Data)
	wm := mat.NewDense(l.outDim, l.inDim, l.W.Data)
	om := mat.NewDense(batch, l.outDim, output.Data)
	om.Mul(xm, wm.T())
	for b := 0; b < batch; b++ {
		off := b * l.outDim
		for o := 0; o < l.outDim; o++ {
			output.Data[off+o] += l.B.Data[o]
		}
	}
	return output, nil
}

// NamedParams registers the weight matrix and bias.
func (l *Linear) NamedParams(prefix string, dst map[string]*tensor.Tensor) {
	dst[nn.JoinName(prefix, "weight")] = l.W
	dst[nn.JoinName(prefix, "bias")] = l.B
}
