package layers

import (
	"math"

	"sknet/tensor"
)

// ReLU applies max(0, x) elementwise.
type ReLU struct{}

// NewReLU creates a ReLU layer.
func NewReLU() *ReLU { return &ReLU{} }

// Forward applies the rectifier.
func (r *ReLU) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	output := tensor.New(input.Shape...)
	for i, v := range input.Data {
		if v > 0 {
			output.Data[i] = v
		}
	}
	return output, nil
}

// Sigmoid applies 1/(1+exp(-x)) elementwise.
type Sigmoid struct{}

// NewSigmoid creates a Sigmoid layer.
func NewSigmoid() *Sigmoid { return &Sigmoid{} }

// Forward applies the logistic function.
func (s *Sigmoid) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	output := tensor.New(input.Shape...)
	for i, v := range input.Data {
		output.Data[i] = 1 / (1 + math.Exp(-v))
	}
	return output, nil
}
