package layers

import (
	"fmt"

	"sknet/nn"
	"sknet/tensor"
)

// SEModule is squeeze-and-excitation channel attention: global pool, a
// bottleneck of two 1x1 convs, then a sigmoid gate rescaling each channel.
type SEModule struct {
	chans int

	FC1  *Conv2D // 1x1 reduce, with bias
	FC2  *Conv2D // 1x1 expand, with bias
	pool *GlobalAvgPool2D
	act  *ReLU
	gate *Sigmoid
}

// NewSEModule creates the module with the given bottleneck width.
func NewSEModule(chans, rdChans int) (*SEModule, error) {
	if rdChans <= 0 {
		return nil, fmt.Errorf("semodule: non-positive reduction channels %d", rdChans)
	}
	fc1, err := NewConv2D(chans, rdChans, 1, 1, Conv2DOpts{Bias: true})
	if err != nil {
		return nil, err
	}
	fc2, err := NewConv2D(rdChans, chans, 1, 1, Conv2DOpts{Bias: true})
	if err != nil {
		return nil, err
	}
	return &SEModule{
		chans: chans,
		FC1:   fc1,
		FC2:   fc2,
		pool:  NewGlobalAvgPool2D(),
		act:   NewReLU(),
		gate:  NewSigmoid(),
	}, nil
}

// Forward rescales the input channels by their learned gate.
func (s *SEModule) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 4 {
		return nil, fmt.Errorf("semodule: input must be 4D [batch, chan, height, width], got %v", input.Shape)
	}
	batch, chans := input.Shape[0], input.Shape[1]
	if chans != s.chans {
		return nil, fmt.Errorf("semodule: expected %d channels, got %d", s.chans, chans)
	}

	g, err := s.pool.Forward(input)
	if err != nil {
		return nil, err
	}
	for _, m := range []nn.Module{s.FC1, s.act, s.FC2, s.gate} {
		g, err = m.Forward(g)
		if err != nil {
			return nil, err
		}
	}

	plane := input.Shape[2] * input.Shape[3]
	output := tensor.New(input.Shape...)
	for b := 0; b < batch; b++ {
		for c := 0; c < chans; c++ {
			off := (b*chans + c) * plane
			w := g.Data[b*chans+c]
			for i := 0; i < plane; i++ {
				output.Data[off+i] = input.Data[off+i] * w
			}
		}
	}
	return output, nil
}

// NamedParams registers both bottleneck convs.
func (s *SEModule) NamedParams(prefix string, dst map[string]*tensor.Tensor) {
	s.FC1.NamedParams(nn.JoinName(prefix, "fc1"), dst)
	s.FC2.NamedParams(nn.JoinName(prefix, "fc2"), dst)
}
