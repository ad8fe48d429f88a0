package nn

import (
	"strconv"

	"sknet/tensor"
)

// Module defines a single layer/unit in the network.
type Module interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
}

// ParamSource exposes learnable state under hierarchical dotted names
// ("layer1.0.conv1.weight"). Running statistics count as state here so
// checkpoints capture them too.
type ParamSource interface {
	NamedParams(prefix string, dst map[string]*tensor.Tensor)
}

// Trainable is implemented by modules whose Forward differs between
// training and inference (batch norm, drop path, drop block).
type Trainable interface {
	SetTraining(training bool)
}

// Sequential chains multiple Modules in order.
type Sequential struct {
	Layers []Module
}

// NewSequential builds a Sequential from the given layers.
func NewSequential(layers ...Module) *Sequential {
	return &Sequential{Layers: layers}
}

// Forward applies each layer in sequence.
func (s *Sequential) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	var err error
	out := x
	for _, layer := range s.Layers {
		out, err = layer.Forward(out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// NamedParams names children by position ("prefix.0.weight", "prefix.1.bias").
func (s *Sequential) NamedParams(prefix string, dst map[string]*tensor.Tensor) {
	for i, layer := range s.Layers {
		if ps, ok := layer.(ParamSource); ok {
			ps.NamedParams(JoinName(prefix, strconv.Itoa(i)), dst)
		}
	}
}

// SetTraining propagates the mode to every child that cares.
func (s *Sequential) SetTraining(training bool) {
	for _, layer := range s.Layers {
		SetTrainingMode(layer, training)
	}
}

// SetTrainingMode flips training mode on m if it is Trainable.
func SetTrainingMode(m Module, training bool) {
	if t, ok := m.(Trainable); ok {
		t.SetTraining(training)
	}
}

// Params collects every named parameter reachable from m.
func Params(m Module) map[string]*tensor.Tensor {
	dst := make(map[string]*tensor.Tensor)
	if ps, ok := m.(ParamSource); ok {
		ps.NamedParams("", dst)
	}
	return dst
}

// JoinName appends a child name to a dotted prefix.
func JoinName(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
