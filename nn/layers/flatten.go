package layers

import (
	"fmt"

	"sknet/tensor"
)

// Flatten collapses everything after the batch dimension: [N, ...] -> [N, rest].
type Flatten struct{}

func NewFlatten() *Flatten { return &Flatten{} }

func (f *Flatten) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) < 2 {
		return nil, fmt.Errorf("flatten: input must have a batch dimension, got %v", x.Shape)
	}
	rest := 1
	for _, d := range x.Shape[1:] {
		rest *= d
	}
	y := x.Clone()
	if err := y.Reshape(x.Shape[0], rest); err != nil {
		return nil, err
	}
	return y, nil
}
